package herdcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// upperHasher is a deterministic, non-identity Hasher so prefix-policy
// tests can tell "hashed" apart from "left alone".
var upperHasher = HasherFunc(func(key string) string { return "H(" + key + ")" })

// TestCanonicalKey is invariant 8: the three prefix policies derive
// distinct, deterministic backend keys from the same user key.
func TestCanonicalKey(t *testing.T) {
	t.Parallel()

	t.Run("no prefix", func(t *testing.T) {
		t.Parallel()
		got := canonicalKey(upperHasher, "user", "", false)
		assert.Equal(t, "H(user)", got)
	})

	t.Run("prefix participates in hash", func(t *testing.T) {
		t.Parallel()
		got := canonicalKey(upperHasher, "user", "tenant:", true)
		assert.Equal(t, "H(tenant:user)", got)
	})

	t.Run("prefix prepended to independently-hashed key", func(t *testing.T) {
		t.Parallel()
		got := canonicalKey(upperHasher, "user", "tenant:", false)
		assert.Equal(t, "tenant:H(user)", got)
	})

	t.Run("same policy is deterministic across calls", func(t *testing.T) {
		t.Parallel()
		a := canonicalKey(upperHasher, "user", "tenant:", true)
		b := canonicalKey(upperHasher, "user", "tenant:", true)
		assert.Equal(t, a, b)
	})
}

// TestStaleKey confirms the stale-namespace key is derived from the
// already-canonicalized fresh key, not the raw user key.
func TestStaleKey(t *testing.T) {
	t.Parallel()
	fresh := canonicalKey(upperHasher, "user", "tenant:", true)
	assert.Equal(t, "stale"+fresh, staleKey(fresh, "stale"))
}
