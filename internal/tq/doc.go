// Package tq provides a generic 2Q cache implementation.
//
// Includes code copied and modified from https://github.com/hashicorp/golang-lru/blob/80c98217689d6df152309d574ccc682b21dc802c/2q.go.
// github.com/hashicorp/golang-lru is licensed under Mozilla Public License 2.0, which can be viewed from
// https://github.com/hashicorp/golang-lru/blob/80c98217689d6df152309d574ccc682b21dc802c/LICENSE.
package tq
