package herdcache

// canonicalKey derives the backend key for a user key per the configured
// prefix policy (§3):
//   - prefix set, hashPrefix=true:  hash(prefix + userKey)
//   - prefix set, hashPrefix=false: prefix + hash(userKey)
//   - no prefix:                   hash(userKey)
func canonicalKey(h Hasher, userKey, prefix string, hashPrefix bool) string {
	switch {
	case prefix != "" && hashPrefix:
		return h.Hash(prefix + userKey)
	case prefix != "":
		return prefix + h.Hash(userKey)
	default:
		return h.Hash(userKey)
	}
}

// staleKey derives the stale-namespace key for an already-canonicalized
// fresh key.
func staleKey(freshKey, stalePrefix string) string {
	return stalePrefix + freshKey
}
