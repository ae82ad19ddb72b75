package herdcache

import (
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeToLive        = 60 * time.Second
	defaultBackendGetTimeout = 2500 * time.Millisecond
	defaultSetWaitDuration   = 2 * time.Second
	defaultStalePrefix       = "stale"
)

// CacheOption configures a Cache. See the package-level With* functions.
type CacheOption func(c *cacheConfig)

type promiseTableBackendType int

const (
	promiseTableBackendMap promiseTableBackendType = iota
	promiseTableBackendLRU
	promiseTableBackend2Q
	promiseTableBackendARC
)

type cacheConfig struct {
	prefix     string
	hashPrefix bool

	stalePrefix string

	timeToLive         time.Duration
	staleTTLAdditional time.Duration

	backendGetTimeout         time.Duration
	staleBackendGetTimeout    time.Duration
	staleBackendGetTimeoutSet bool

	setWaitDuration     time.Duration
	waitForMemcachedSet bool

	waitForRemove time.Duration

	useStaleCache bool

	removeFromTableBeforeSettingValue bool

	// canCacheValue is evaluated against the computed value itself, before
	// marshaling (§3, §8 invariant 3) - boxed as any since cacheConfig is
	// not generic over V; WithCanCacheValue's type parameter recovers it.
	// canCacheValueType records the V the predicate was built for, so a
	// mismatch against the Cache[V] it's attached to is rejected at
	// construction time instead of panicking on first use.
	canCacheValue     func(v any) bool
	canCacheValueType reflect.Type

	freshBackend  promiseTableBackendType
	freshCapacity int
	staleBackend  promiseTableBackendType
	staleCapacity int

	stuckEntryReapInterval time.Duration
	stuckEntryMaxAge       time.Duration

	executor Executor
	metrics  MetricSink
	logger   zerolog.Logger
}

func defaultConfig() cacheConfig {
	return cacheConfig{
		stalePrefix:        defaultStalePrefix,
		timeToLive:         defaultTimeToLive,
		staleTTLAdditional: 0,

		backendGetTimeout: defaultBackendGetTimeout,

		setWaitDuration:     defaultSetWaitDuration,
		waitForMemcachedSet: false,

		waitForRemove: 0,

		useStaleCache: false,

		removeFromTableBeforeSettingValue: false,

		canCacheValue: func(any) bool { return true },

		freshBackend: promiseTableBackendMap,
		staleBackend: promiseTableBackendMap,

		executor: goroutinePerCallExecutor{},
		metrics:  NoopMetricSink{},
		logger:   zerolog.Nop(),
	}
}

// validate checks the fixed, non-option-settable invariants on a
// constructed config: negative durations and capacity/backend mismatches
// (§7 "construction-time validation"). The options themselves validate
// nothing; every check runs here (e.g. WithLRUBackend's capacity is checked
// here, against the backend kind, rather than in the option).
func (c cacheConfig) validate() error {
	if c.timeToLive < 0 {
		return ErrNegativeTTL
	}
	if c.backendGetTimeout < 0 || c.staleBackendGetTimeout < 0 {
		return ErrNegativeTimeout
	}
	if c.setWaitDuration < 0 || c.waitForRemove < 0 {
		return ErrNegativeTimeout
	}
	if err := validateBackendCapacity(c.freshBackend, c.freshCapacity); err != nil {
		return err
	}
	if c.useStaleCache {
		if err := validateBackendCapacity(c.staleBackend, c.resolvedStaleCapacity()); err != nil {
			return err
		}
	}
	return nil
}

func validateBackendCapacity(kind promiseTableBackendType, capacity int) error {
	switch kind {
	case promiseTableBackendMap:
		if capacity < 0 {
			return ErrNegativeCapacity
		}
	case promiseTableBackendLRU, promiseTableBackend2Q, promiseTableBackendARC:
		if capacity <= 0 {
			return ErrCapacityRequired
		}
	default:
		return ErrUnknownBackend
	}
	return nil
}

// resolvedStaleCapacity returns the stale table's capacity, defaulting to
// the fresh table's capacity when the stale capacity is <=0 (§3).
func (c cacheConfig) resolvedStaleCapacity() int {
	if c.staleCapacity > 0 {
		return c.staleCapacity
	}
	return c.freshCapacity
}

// Executor runs a computation. The core holds no worker threads of its own
// (§5) - Go schedules every compute on whatever Executor the cache is
// configured with, by default a fresh goroutine per call.
type Executor interface {
	Go(f func())
}

// ExecutorFunc adapts a plain function to an Executor.
type ExecutorFunc func(f func())

// Go implements Executor.
func (f ExecutorFunc) Go(g func()) { f(g) }

type goroutinePerCallExecutor struct{}

func (goroutinePerCallExecutor) Go(f func()) { go f() }

// WithExecutor overrides the Executor computations are scheduled on.
// Defaults to launching a new goroutine per call.
func WithExecutor(e Executor) CacheOption {
	return func(c *cacheConfig) { c.executor = e }
}

// WithMetricSink overrides the MetricSink cache events are recorded to.
// Defaults to NoopMetricSink.
func WithMetricSink(m MetricSink) CacheOption {
	return func(c *cacheConfig) { c.metrics = m }
}

// WithLogger sets the zerolog.Logger used for the structured hit/miss line
// (§6) and backend-fault warnings (§7). Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) CacheOption {
	return func(c *cacheConfig) { c.logger = l }
}

// staleTTL returns the TTL written for the stale-namespace entry, per §3:
// timeToLive if staleTTLAdditional<=0, else timeToLive+staleTTLAdditional.
func (c cacheConfig) staleTTL() time.Duration {
	if c.staleTTLAdditional <= 0 {
		return c.timeToLive
	}
	return c.timeToLive + c.staleTTLAdditional
}

func (c cacheConfig) staleGetTimeout() time.Duration {
	if c.staleBackendGetTimeoutSet {
		return c.staleBackendGetTimeout
	}
	return c.backendGetTimeout
}

// WithKeyPrefix sets a prefix applied to every canonical key. hashPrefix
// selects whether the prefix participates in hashing (hash(prefix+key)) or
// is prepended to an independently-hashed key (prefix+hash(key)).
func WithKeyPrefix(prefix string, hashPrefix bool) CacheOption {
	return func(c *cacheConfig) {
		c.prefix = prefix
		c.hashPrefix = hashPrefix
	}
}

// WithStaleKeyPrefix overrides the default "stale" prefix used to derive
// the stale-namespace backend key.
func WithStaleKeyPrefix(prefix string) CacheOption {
	return func(c *cacheConfig) { c.stalePrefix = prefix }
}

// WithTTL sets the expiry written to the backend for the fresh entry.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *cacheConfig) { c.timeToLive = ttl }
}

// WithStaleTTLAdditional sets the extra duration added to TTL for the
// stale-namespace entry. A value <=0 makes the stale entry share the fresh
// TTL.
func WithStaleTTLAdditional(d time.Duration) CacheOption {
	return func(c *cacheConfig) { c.staleTTLAdditional = d }
}

// WithBackendGetTimeout sets the per-operation timeout for the fresh
// backend get.
func WithBackendGetTimeout(d time.Duration) CacheOption {
	return func(c *cacheConfig) { c.backendGetTimeout = d }
}

// WithStaleBackendGetTimeout sets the per-operation timeout for the stale
// backend get. Defaults to the fresh timeout if not set.
func WithStaleBackendGetTimeout(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		c.staleBackendGetTimeout = d
		c.staleBackendGetTimeoutSet = true
	}
}

// WithSetWaitDuration bounds how long a wait-for-set backend write blocks
// before giving up and publishing the in-memory result anyway.
func WithSetWaitDuration(d time.Duration) CacheOption {
	return func(c *cacheConfig) { c.setWaitDuration = d }
}

// WithWaitForMemcachedSet makes the fresh backend set block the
// compute-completion path for up to SetWaitDuration before unclaiming the
// key. The in-memory result is published regardless of whether the set
// finishes in time.
func WithWaitForMemcachedSet(wait bool) CacheOption {
	return func(c *cacheConfig) { c.waitForMemcachedSet = wait }
}

// WithWaitForRemove bounds how long Clear blocks on the backend delete(s).
func WithWaitForRemove(d time.Duration) CacheOption {
	return func(c *cacheConfig) { c.waitForRemove = d }
}

// WithStaleCache enables the stale-value fallback tier (§4.3).
func WithStaleCache(enabled bool) CacheOption {
	return func(c *cacheConfig) { c.useStaleCache = enabled }
}

// WithRemoveFromTableBeforeSettingValue selects the publish-vs-unclaim
// order (§4.2): true removes the PromiseTable slot before resolving the
// promise, false resolves first. Both orders are legal; implementations
// must honor whichever is configured exactly.
func WithRemoveFromTableBeforeSettingValue(before bool) CacheOption {
	return func(c *cacheConfig) { c.removeFromTableBeforeSettingValue = before }
}

// WithCanCacheValue sets the predicate controlling which computed values
// are written to the backend (§3, §8 invariant 3). It is evaluated against
// the computed value itself, before marshaling. Values for which it
// returns false still resolve the in-flight future, but bypass the
// backend write.
//
// V must match the value type New/NewWithCodec is instantiated with;
// construction fails with ErrCanCacheValueTypeMismatch otherwise, rather
// than panicking the first time a computed value is checked.
func WithCanCacheValue[V any](predicate func(v V) bool) CacheOption {
	return func(c *cacheConfig) {
		c.canCacheValue = func(v any) bool { return predicate(v.(V)) }
		c.canCacheValueType = reflect.TypeOf((*V)(nil)).Elem()
	}
}

// WithMapBackend bounds the fresh PromiseTable with a plain unbounded map
// (the default).
func WithMapBackend() CacheOption {
	return func(c *cacheConfig) { c.freshBackend = promiseTableBackendMap }
}

// WithLRUBackend bounds the fresh PromiseTable to capacity entries,
// evicting least-recently-accessed keys (§3 Invariant I2).
func WithLRUBackend(capacity int) CacheOption {
	return func(c *cacheConfig) {
		c.freshBackend = promiseTableBackendLRU
		c.freshCapacity = capacity
	}
}

// With2QBackend bounds the fresh PromiseTable with a 2Q eviction policy.
func With2QBackend(capacity int) CacheOption {
	return func(c *cacheConfig) {
		c.freshBackend = promiseTableBackend2Q
		c.freshCapacity = capacity
	}
}

// WithARCBackend bounds the fresh PromiseTable with an adaptive
// replacement cache eviction policy.
func WithARCBackend(capacity int) CacheOption {
	return func(c *cacheConfig) {
		c.freshBackend = promiseTableBackendARC
		c.freshCapacity = capacity
	}
}

// WithStaleMapBackend, WithStaleLRUBackend, WithStale2QBackend and
// WithStaleARCBackend configure the independent stale PromiseTable the
// same way their fresh-table counterparts configure the fresh one.
// Capacity defaults to the fresh table's capacity when <=0 (§3).
func WithStaleMapBackend() CacheOption {
	return func(c *cacheConfig) { c.staleBackend = promiseTableBackendMap }
}

func WithStaleLRUBackend(capacity int) CacheOption {
	return func(c *cacheConfig) {
		c.staleBackend = promiseTableBackendLRU
		c.staleCapacity = capacity
	}
}

func WithStale2QBackend(capacity int) CacheOption {
	return func(c *cacheConfig) {
		c.staleBackend = promiseTableBackend2Q
		c.staleCapacity = capacity
	}
}

func WithStaleARCBackend(capacity int) CacheOption {
	return func(c *cacheConfig) {
		c.staleBackend = promiseTableBackendARC
		c.staleCapacity = capacity
	}
}

// WithStuckEntryReaper enables a background sweep that force-unclaims any
// PendingResult older than maxAge, run every interval. It guards against a
// leaked compute goroutine wedging a key's slot forever; see lifecycle.go.
// Disabled by default.
func WithStuckEntryReaper(interval, maxAge time.Duration) CacheOption {
	return func(c *cacheConfig) {
		c.stuckEntryReapInterval = interval
		c.stuckEntryMaxAge = maxAge
	}
}
