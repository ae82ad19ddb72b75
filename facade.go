package herdcache

import (
	"context"
	"reflect"
	"sync/atomic"
	"time"
)

// ComputeFunc produces the value for a key on a cache miss. The cache
// guarantees at most one ComputeFunc invocation per key is in flight at a
// time (§1, §5).
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// Cache is a single herd-protected distributed cache client instance (§4.4
// CacheFacade). All methods are safe for concurrent use. Cache has no
// Set(key, value) method by design - callers delegate value production to
// Apply, the same way github.com/motoki317/sc delegates it to Get.
type Cache[V any] struct {
	hasher  Hasher
	backend BackendClient
	codec   Codec[V]
	cfg     cacheConfig

	fresh *PromiseTable[string, V]
	stale *PromiseTable[string, V]

	reaperStop *reaperStopper
	shutdown   atomic.Bool
}

// New constructs a Cache using the default msgpack Codec. See NewWithCodec
// to supply a different serialization strategy.
func New[V any](backend BackendClient, hasher Hasher, opts ...CacheOption) (*Cache[V], error) {
	return NewWithCodec[V](backend, hasher, defaultCodec[V](), opts...)
}

// NewMust is like New but panics on error (§7's NewMust, mirroring the
// teacher's sc.NewMust).
func NewMust[V any](backend BackendClient, hasher Hasher, opts ...CacheOption) *Cache[V] {
	c, err := New[V](backend, hasher, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// NewWithCodec is New, but with an explicit Codec instead of the msgpack
// default.
func NewWithCodec[V any](backend BackendClient, hasher Hasher, codec Codec[V], opts ...CacheOption) (*Cache[V], error) {
	if backend == nil {
		return nil, ErrNilBackendClient
	}
	if hasher == nil {
		return nil, ErrNilHasher
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.canCacheValueType != nil && cfg.canCacheValueType != reflect.TypeOf((*V)(nil)).Elem() {
		return nil, ErrCanCacheValueTypeMismatch
	}

	c := &Cache[V]{
		hasher:  hasher,
		backend: backend,
		codec:   codec,
		cfg:     cfg,
		fresh:   newPromiseTable[string, V](cfg.freshBackend, cfg.freshCapacity),
	}
	if cfg.useStaleCache {
		c.stale = newPromiseTable[string, V](cfg.staleBackend, cfg.resolvedStaleCapacity())
	}
	if cfg.stuckEntryReapInterval > 0 {
		c.reaperStop = startReaper(c, cfg.stuckEntryReapInterval)
	}

	return c, nil
}

// Apply runs compute if, and only if, no computation for key is already in
// flight, and returns a PendingResult every caller for the same key shares
// (§4.2 FreshPath.apply). If compute returns a non-nil error, the error is
// the only thing ever surfaced through the returned PendingResult (§7).
func (c *Cache[V]) Apply(ctx context.Context, key string, compute ComputeFunc[V]) *PendingResult[V] {
	if c.shutdown.Load() {
		p := newPendingResult[V](monotonicNow())
		p.fail(ErrCacheShutdown)
		return p
	}
	if compute == nil {
		p := newPendingResult[V](monotonicNow())
		p.fail(ErrNilCompute)
		return p
	}
	canonical := c.canonicalKey(key)
	return c.applyFresh(ctx, canonical, compute)
}

// Get retrieves the current value for key without scheduling a
// computation (§4.2 "get(key) (read-only variant)"). If a computation is
// already in flight it returns that PendingResult (stale-wrapped when
// stale mode is on); otherwise it issues an async backend get and wraps
// the outcome in a PendingResult of its own, which resolves to the zero
// value of V on a miss.
func (c *Cache[V]) Get(ctx context.Context, key string) *PendingResult[V] {
	if c.shutdown.Load() {
		p := newPendingResult[V](monotonicNow())
		p.fail(ErrCacheShutdown)
		return p
	}
	canonical := c.canonicalKey(key)

	if prior, ok := c.fresh.get(canonical); ok {
		c.cfg.metrics.CacheHit(CacheTypeValueCalculation)
		if c.cfg.useStaleCache {
			return c.lookupStale(staleKey(canonical, c.cfg.stalePrefix), prior)
		}
		return prior
	}
	c.cfg.metrics.CacheMiss(CacheTypeValueCalculation)

	result := newPendingResult[V](monotonicNow())
	go func() {
		v, ok := c.backendGet(ctx, canonical, c.cfg.backendGetTimeout, CacheTypeDistributed)
		if ok {
			result.resolve(v)
			return
		}
		var zero V
		result.resolve(zero)
	}()
	return result
}

// Clear deletes key from the backend (§4.4 clear(key)): the stale-namespace
// entry first, if stale mode is enabled, then the fresh entry. It never
// touches any other key. Timeouts and delete errors are logged, not
// raised.
func (c *Cache[V]) Clear(ctx context.Context, key string) {
	if c.shutdown.Load() {
		return
	}
	canonical := c.canonicalKey(key)

	if c.cfg.useStaleCache {
		c.deleteAndMaybeWait(ctx, staleKey(canonical, c.cfg.stalePrefix))
	}
	c.deleteAndMaybeWait(ctx, canonical)
}

func (c *Cache[V]) deleteAndMaybeWait(ctx context.Context, key string) {
	done := c.backend.Delete(ctx, key)
	if done == nil {
		return
	}
	if c.cfg.waitForRemove <= 0 {
		return
	}
	select {
	case <-done:
	case <-time.After(c.cfg.waitForRemove):
		c.cfg.logger.Warn().Str("key", key).Msg("herdcache: delete wait timed out")
	}
}

// ClearAll clears both PromiseTables and issues a backend flush (§4.4
// clear(all)). If waitForClear is true, or WithWaitForRemove is configured
// with a positive duration, ClearAll blocks until the flush completes or
// that duration elapses.
func (c *Cache[V]) ClearAll(ctx context.Context, waitForClear bool) {
	if c.shutdown.Load() {
		return
	}
	c.fresh.clear()
	if c.stale != nil {
		c.stale.clear()
	}

	done := c.backend.Flush(ctx)
	if done == nil {
		return
	}
	if !waitForClear && c.cfg.waitForRemove <= 0 {
		return
	}
	wait := c.cfg.waitForRemove
	if wait <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(wait):
		c.cfg.logger.Warn().Msg("herdcache: flush wait timed out")
	}
}

// Shutdown clears both PromiseTables and releases the backend client.
// Idempotent; operations invoked after Shutdown are undefined beyond that
// they no longer corrupt cache state (§4.4, §7).
func (c *Cache[V]) Shutdown() {
	if !c.shutdown.CompareAndSwap(false, true) {
		return
	}
	if c.reaperStop != nil {
		c.reaperStop.stop()
	}
	c.fresh.clear()
	if c.stale != nil {
		c.stale.clear()
	}
	c.backend.Shutdown()
}

func (c *Cache[V]) canonicalKey(userKey string) string {
	return canonicalKey(c.hasher, userKey, c.cfg.prefix, c.cfg.hashPrefix)
}

// monotonicNow is the reaper's notion of "now" - wall-clock time is fine
// here since PendingResults live for at most a few backend round-trips and
// the reaper only needs coarse staleness, not a defense against clock
// skew.
func monotonicNow() int64 {
	return time.Now().UnixNano()
}
