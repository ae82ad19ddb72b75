package herdcache

import (
	"runtime"
	"sync"
	"time"
	"weak"
)

// reaperStopper closes its channel at most once. Shutdown() and the
// runtime.AddCleanup callback registered in startReaper both race to stop
// the same reaper goroutine - Shutdown() when the caller is done with the
// cache, the cleanup when the cache is garbage-collected after Shutdown()
// was already called - and closing an already-closed channel panics.
type reaperStopper struct {
	once sync.Once
	ch   chan struct{}
}

func newReaperStopper() *reaperStopper {
	return &reaperStopper{ch: make(chan struct{})}
}

func (s *reaperStopper) stop() {
	s.once.Do(func() { close(s.ch) })
}

// reaper is the optional stuck-entry sweeper (§9 design note, §8 S9). It
// adapts the teacher's weak.Pointer/runtime.AddCleanup cleaner idiom
// (sc/cleaner.go): rather than a periodic value-expiry sweep, which is
// meaningless here since PromiseTable entries are removed explicitly by
// their writer on resolution or failure (§3 Invariant I3), it
// force-unclaims any PendingResult still pending past a configurable
// age, guarding against a leaked compute goroutine wedging a key's slot
// forever.
type reaper[V any] struct {
	stopper *reaperStopper
	// Weak, for the same reason the teacher holds one: a compute result
	// could in principle close back over the Cache, and a strong
	// reference here would then keep the reaper, and therefore the
	// cache, alive forever.
	c weak.Pointer[Cache[V]]
}

func startReaper[V any](c *Cache[V], interval time.Duration) *reaperStopper {
	stopper := newReaperStopper()
	r := &reaper[V]{
		stopper: stopper,
		c:       weak.Make(c),
	}
	go r.run(interval)
	runtime.AddCleanup(c, (*reaperStopper).stop, stopper)
	return stopper
}

func (r *reaper[V]) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c := r.c.Value()
			if c == nil {
				return
			}
			c.reapStuckEntries()
		case <-r.stopper.ch:
			return
		}
	}
}

// reapStuckEntries force-unclaims every PendingResult, fresh or stale,
// that has been pending for at least the maxAge given to
// WithStuckEntryReaper.
func (c *Cache[V]) reapStuckEntries() {
	now := monotonicNow()
	c.fresh.reapStuck(now, c.cfg.stuckEntryMaxAge)
	if c.stale != nil {
		c.stale.reapStuck(now, c.cfg.stuckEntryMaxAge)
	}
}
