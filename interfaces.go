package herdcache

import (
	"context"
	"time"
)

// BackendClient is the narrow interface the core engine consumes to talk to
// the remote cache. Wire protocol, connection pooling and node discovery are
// the concrete implementation's problem - see the memcachedclient package
// for a default built on bradfitz/gomemcache.
type BackendClient interface {
	// Get returns the value stored at key, or ok=false on a miss or any
	// backend error. Implementations should log errors rather than
	// return them - the core always treats a Get failure as a miss.
	Get(ctx context.Context, key string, timeout time.Duration) (v []byte, ok bool)
	// Set stores v at key with the given TTL. ttl<1s truncates to 0,
	// meaning "no expiry" in the memcached convention. The returned
	// future completes with true on success; callers may ignore it.
	Set(ctx context.Context, key string, ttl time.Duration, v []byte) <-chan bool
	// Delete removes key. Returns nil if there is nothing meaningful to
	// wait for.
	Delete(ctx context.Context, key string) <-chan bool
	// Flush clears every key the backend holds.
	Flush(ctx context.Context) <-chan bool
	// IsAvailable reports whether the backend is currently reachable.
	// It may transiently return false; callers reroute to local-only
	// mode when it does.
	IsAvailable() bool
	// Shutdown releases the backend client's resources. Idempotent.
	Shutdown()
}

// Hasher canonicalizes a user key into the string form used as a backend
// key. Implementations must be pure functions of their input.
type Hasher interface {
	Hash(key string) string
}

// HasherFunc adapts a plain function to a Hasher.
type HasherFunc func(key string) string

// Hash implements Hasher.
func (f HasherFunc) Hash(key string) string { return f(key) }

// Cache type strings used both as metric labels and as the "cachetype"
// field of the structured hit/miss log line (§6).
const (
	CacheTypeValueCalculation      = "value_calculation_cache"
	CacheTypeStaleValueCalculation = "stale_value_calculation_cache"
	CacheTypeDisabled              = "disabled_cache"
	CacheTypeStaleDistributed      = "stale_distributed_cache"
	CacheTypeDistributed           = "distributed_cache"
)

// Stable counter names.
const (
	CounterDistributedCacheWrites  = "distributed_cache_writes"
	CounterValueCalculationSuccess = "value_calculation_success"
	CounterValueCalculationFailure = "value_calculation_failure"
)

// Stable duration names.
const (
	DurationValueCalculationTime = "value_calculation_time"
	DurationValueCalculation     = "value_calculation"
)

// MetricSink records cache events. Implementations must never block the
// caller for longer than recording the event itself requires. The
// zero-value NoopMetricSink discards everything.
type MetricSink interface {
	CacheHit(cacheType string)
	CacheMiss(cacheType string)
	IncrementCounter(name string)
	SetDuration(name string, d time.Duration)
}

// NoopMetricSink is a MetricSink that does nothing. It is the default when
// no sink is configured.
type NoopMetricSink struct{}

func (NoopMetricSink) CacheHit(string)                   {}
func (NoopMetricSink) CacheMiss(string)                  {}
func (NoopMetricSink) IncrementCounter(string)           {}
func (NoopMetricSink) SetDuration(string, time.Duration) {}
