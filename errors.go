package herdcache

import "errors"

// Errors returned at construction time (§7 "construction-time validation"),
// except ErrNilCompute, which Apply publishes through its PendingResult.
var (
	ErrNilCompute        = errors.New("herdcache: compute function cannot be nil")
	ErrNilBackendClient  = errors.New("herdcache: backend client cannot be nil")
	ErrNilHasher         = errors.New("herdcache: hasher cannot be nil")
	ErrNegativeTTL       = errors.New("herdcache: ttl must be non-negative")
	ErrNegativeTimeout   = errors.New("herdcache: timeout must be non-negative")
	ErrNegativeCapacity  = errors.New("herdcache: capacity must be non-negative")
	ErrCapacityRequired  = errors.New("herdcache: capacity must be greater than 0 for this backend")
	ErrUnknownBackend    = errors.New("herdcache: unknown PromiseTable backend")

	// ErrCanCacheValueTypeMismatch is returned when WithCanCacheValue was
	// instantiated with a type parameter other than the Cache's own value
	// type V - surfaced at construction time instead of panicking the
	// first time a computed value is checked against the predicate.
	ErrCanCacheValueTypeMismatch = errors.New("herdcache: WithCanCacheValue's type parameter does not match the cache's value type")
)

// errStuckEntryReaped is the error published into a PendingResult that the
// stuck-entry reaper force-unclaimed (§9 design note, §8 S9). It is never
// returned from construction, only from a waiter's Wait call.
var errStuckEntryReaped = errors.New("herdcache: pending computation reaped after exceeding its max age")

// ErrCacheShutdown is returned by operations invoked after Shutdown. The
// spec leaves post-shutdown behavior undefined beyond "implementations
// SHOULD reject rather than corrupt" (§7); this is that rejection.
var ErrCacheShutdown = errors.New("herdcache: cache has been shut down")
