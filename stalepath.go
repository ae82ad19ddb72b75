package herdcache

import "context"

// lookupStale is StalePath.lookup (§4.3). It claims key in the stale
// PromiseTable; a genuine claim schedules a stale-backend lookup that
// either resolves directly on a hit or chains onto freshFuture on a miss
// or error, degrading the stale result to whatever the fresh computation
// eventually produces.
func (c *Cache[V]) lookupStale(key string, freshFuture *PendingResult[V]) *PendingResult[V] {
	p := newPendingResult[V](monotonicNow())
	prior, inserted := c.stale.putIfAbsent(key, p)
	if !inserted {
		c.cfg.metrics.CacheHit(CacheTypeStaleValueCalculation)
		return prior
	}
	c.cfg.metrics.CacheMiss(CacheTypeStaleValueCalculation)

	c.cfg.executor.Go(func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if v, ok := c.backendGet(ctx, key, c.cfg.staleGetTimeout(), CacheTypeStaleDistributed); ok {
			completeAndUnclaim(c.stale, c.cfg.removeFromTableBeforeSettingValue, key, p, v, nil)
			return
		}

		// Stale miss or error: chain the fresh future's eventual outcome
		// into the stale promise instead of returning null (§4.3).
		v, err := freshFuture.Wait()
		completeAndUnclaim(c.stale, c.cfg.removeFromTableBeforeSettingValue, key, p, v, err)
	})
	return p
}
