// Package herdcache implements a request-coalescing client for a remote
// memcached-compatible cache.
//
// For any given key, herdcache guarantees that at most one value
// computation runs locally at a time, no matter how many concurrent callers
// ask for it - this is what keeps a cold or expired key from turning into a
// thundering herd against whatever backs Compute. An optional stale-value
// tier lets a concurrent caller receive a slightly older value instead of
// waiting on the in-flight computation, damping load further.
//
// Cache doesn't have a Set(key, value) method - this is intentional. Users
// delegate value computation to the cache by calling Apply, the same way
// github.com/motoki317/sc delegates it to Get.
package herdcache
