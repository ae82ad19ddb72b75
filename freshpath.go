package herdcache

import (
	"context"
	"reflect"
	"time"
)

// applyFresh is FreshPath.apply (§4.2). It claims key in the fresh
// PromiseTable, consults the backend on a genuine claim, and schedules
// compute on a miss.
func (c *Cache[V]) applyFresh(ctx context.Context, key string, compute ComputeFunc[V]) *PendingResult[V] {
	if !c.backend.IsAvailable() {
		return c.applyLocalOnly(ctx, key, compute)
	}

	p := newPendingResult[V](monotonicNow())
	prior, inserted := c.fresh.putIfAbsent(key, p)
	if !inserted {
		c.cfg.metrics.CacheHit(CacheTypeValueCalculation)
		if c.cfg.useStaleCache {
			return c.lookupStale(staleKey(key, c.cfg.stalePrefix), prior)
		}
		return prior
	}
	c.cfg.metrics.CacheMiss(CacheTypeValueCalculation)

	if v, ok := c.backendGet(ctx, key, c.cfg.backendGetTimeout, CacheTypeDistributed); ok {
		completeAndUnclaim(c.fresh, c.cfg.removeFromTableBeforeSettingValue, key, p, v, nil)
		return p
	}

	c.cfg.executor.Go(func() {
		c.runFreshCompute(ctx, key, p, compute)
	})
	return p
}

// applyLocalOnly is FreshPath's degraded path (§4.2 step 6): same coalesce
// against freshStore, but no backend read or write at all. Used when
// BackendClient.IsAvailable reports false.
func (c *Cache[V]) applyLocalOnly(ctx context.Context, key string, compute ComputeFunc[V]) *PendingResult[V] {
	p := newPendingResult[V](monotonicNow())
	prior, inserted := c.fresh.putIfAbsent(key, p)
	if !inserted {
		c.cfg.metrics.CacheHit(CacheTypeDisabled)
		return prior
	}
	c.cfg.metrics.CacheMiss(CacheTypeDisabled)

	c.cfg.executor.Go(func() {
		v, err := compute(ctx)
		if err != nil {
			c.cfg.metrics.IncrementCounter(CounterValueCalculationFailure)
		} else {
			c.cfg.metrics.IncrementCounter(CounterValueCalculationSuccess)
		}
		completeAndUnclaim(c.fresh, c.cfg.removeFromTableBeforeSettingValue, key, p, v, err)
	})
	return p
}

// runFreshCompute runs compute on a genuine fresh-table claim and, on
// success, writes the result back to the backend (§4.2 step 5).
func (c *Cache[V]) runFreshCompute(ctx context.Context, key string, p *PendingResult[V], compute ComputeFunc[V]) {
	start := time.Now()
	v, err := compute(ctx)
	elapsed := time.Since(start)
	c.cfg.metrics.SetDuration(DurationValueCalculationTime, elapsed)
	c.cfg.metrics.SetDuration(DurationValueCalculation, elapsed)

	if err != nil {
		c.cfg.metrics.IncrementCounter(CounterValueCalculationFailure)
		completeAndUnclaim(c.fresh, c.cfg.removeFromTableBeforeSettingValue, key, p, v, err)
		return
	}
	c.cfg.metrics.IncrementCounter(CounterValueCalculationSuccess)

	if !isNilValue(v) && c.cfg.canCacheValue(v) {
		if data, marshalErr := c.codec.Marshal(v); marshalErr != nil {
			c.cfg.logger.Warn().Err(marshalErr).Str("key", key).Msg("herdcache: failed to marshal computed value")
		} else {
			c.writeBack(ctx, key, data)
		}
	}

	completeAndUnclaim(c.fresh, c.cfg.removeFromTableBeforeSettingValue, key, p, v, nil)
}

// writeBack performs the stale-then-fresh backend write pair (§4.2 step 5,
// §5 ordering guarantee). The stale Set is issued synchronously, in this
// same goroutine, before the fresh Set - issuance order is what §5
// guarantees, not completion order, so the stale write is never waited on
// (backendSet's wait=false) while the fresh write still follows it.
func (c *Cache[V]) writeBack(ctx context.Context, key string, data []byte) {
	if c.cfg.useStaleCache {
		c.backendSet(context.Background(), staleKey(key, c.cfg.stalePrefix), c.cfg.staleTTL(), data, false)
	}
	c.backendSet(ctx, key, c.cfg.timeToLive, data, c.cfg.waitForMemcachedSet)
	c.cfg.metrics.IncrementCounter(CounterDistributedCacheWrites)
}

// backendGet performs a typed backend get, recording the hit/miss metric
// and structured log line (§6). A backend error or miss are both treated
// as a miss (§4.2 step 4, §7, §9 open question: backend get errors are
// treated identically to misses).
func (c *Cache[V]) backendGet(ctx context.Context, key string, timeout time.Duration, cacheType string) (V, bool) {
	var zero V
	data, ok := c.backend.Get(ctx, key, timeout)
	if !ok {
		c.cfg.metrics.CacheMiss(cacheType)
		c.logHitMiss(key, false, cacheType)
		return zero, false
	}
	v, err := c.codec.Unmarshal(data)
	if err != nil {
		c.cfg.logger.Warn().Err(err).Str("key", key).Msg("herdcache: failed to unmarshal backend value")
		c.cfg.metrics.CacheMiss(cacheType)
		return zero, false
	}
	c.cfg.metrics.CacheHit(cacheType)
	c.logHitMiss(key, true, cacheType)
	return v, true
}

// backendSet writes data to key with ttl, optionally waiting up to
// SetWaitDuration for completion. On wait-timeout or backend error the
// fault is logged and nothing else happens - the in-memory result the
// caller already has is unaffected (§4.2 step 5, §7).
func (c *Cache[V]) backendSet(ctx context.Context, key string, ttl time.Duration, data []byte, wait bool) {
	done := c.backend.Set(ctx, key, ttl, data)
	if done == nil || !wait {
		return
	}
	select {
	case ok := <-done:
		if !ok {
			c.cfg.logger.Warn().Str("key", key).Msg("herdcache: backend set reported failure")
		}
	case <-time.After(c.cfg.setWaitDuration):
		c.cfg.logger.Warn().Str("key", key).Msg("herdcache: backend set wait timed out")
	}
}

func (c *Cache[V]) logHitMiss(key string, hit bool, cacheType string) {
	if hit {
		c.cfg.logger.Debug().Str("cachehit", key).Str("cachetype", cacheType).Msg("")
	} else {
		c.cfg.logger.Debug().Str("cachemiss", key).Str("cachetype", cacheType).Msg("")
	}
}

// completeAndUnclaim resolves or fails p and removes key from table,
// honoring the configured publish-vs-unclaim order (§4.2 "Publish-vs-
// unclaim order policy", §8 invariant 6).
func completeAndUnclaim[V any](table *PromiseTable[string, V], removeBeforeSet bool, key string, p *PendingResult[V], v V, err error) {
	publish := func() {
		if err != nil {
			p.fail(err)
		} else {
			p.resolve(v)
		}
	}
	if removeBeforeSet {
		table.remove(key, p)
		publish()
	} else {
		publish()
		table.remove(key, p)
	}
}

// isNilValue reports whether v is a nil pointer, interface, map, slice,
// channel or function - the Go analogue of the spec's "compute returns
// null" (§4.2 step 5). Value types (strings, numbers, structs) are never
// considered null: a zero string or zero int is a perfectly cacheable
// value, not the absence of one.
func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
