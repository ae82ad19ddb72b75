// Package keyhash provides herdcache.Hasher implementations for the three
// algorithms named in the canonical-key derivation (§1, §6): xxhash, MD5
// and SHA-256.
package keyhash

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// HasherFunc adapts a plain function to herdcache.Hasher without importing
// the root package, so this package stays a leaf dependency of it rather
// than the other way around.
type HasherFunc func(key string) string

// Hash implements herdcache.Hasher.
func (f HasherFunc) Hash(key string) string { return f(key) }

// XXHash64 hashes with github.com/cespare/xxhash/v2, the algorithm present
// across the retrieval pack's cache-adjacent repos and the default choice
// for this package.
var XXHash64 = HasherFunc(func(key string) string {
	h := xxhash.Sum64String(key)
	return hex.EncodeToString(binary.BigEndian.AppendUint64(nil, h))
})

// MD5 hashes with crypto/md5. No ecosystem library is canonical for a
// one-line stdlib digest call, so this stays on the standard library
// (see DESIGN.md).
var MD5 = HasherFunc(func(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
})

// SHA256 hashes with crypto/sha256, for callers who need a
// collision-resistant canonical key at the cost of a longer one.
var SHA256 = HasherFunc(func(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
})
