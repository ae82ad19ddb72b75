package herdcache

import (
	"sync"
	"time"
)

// PromiseTable is a bounded key -> *PendingResult map with atomic
// insert-if-absent (§3, §4.1). It exists solely to deduplicate concurrent
// callers for the same key; it is not a value cache. Every method is safe
// for concurrent use.
type PromiseTable[K comparable, V any] struct {
	mu    sync.Mutex
	store promiseStore[K, *PendingResult[V]]
}

func newPromiseTable[K comparable, V any](kind promiseTableBackendType, capacity int) *PromiseTable[K, V] {
	return &PromiseTable[K, V]{
		store: newPromiseStore[K, *PendingResult[V]](kind, capacity),
	}
}

// putIfAbsent atomically installs p if no entry exists for key, returning
// (nil, true). If an entry already exists it is returned unchanged along
// with false, and p is discarded.
func (t *PromiseTable[K, V]) putIfAbsent(key K, p *PendingResult[V]) (existing *PendingResult[V], inserted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prior, ok := t.store.Get(key); ok {
		return prior, false
	}
	t.store.Set(key, p)
	return nil, true
}

// get returns the current entry for key, if any.
func (t *PromiseTable[K, V]) get(key K) (*PendingResult[V], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Get(key)
}

// remove unclaims key, but only if it is still owned by p - a newer
// generation may already have claimed the slot by the time the caller
// gets around to removing its own entry (§4.2 step 5 comment in the
// teacher's cache.set: "this deletion needs to be inside the 'owns the
// slot' check, because there may be a new ongoing call").
func (t *PromiseTable[K, V]) remove(key K, p *PendingResult[V]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.store.Get(key); ok && cur == p {
		t.store.Delete(key)
	}
}

// clear removes every entry, regardless of ownership (§4.4 clear(all),
// shutdown()).
func (t *PromiseTable[K, V]) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store.Clear()
}

// len reports the number of entries currently held, claimed or not.
func (t *PromiseTable[K, V]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Len()
}

// reapStuck force-unclaims every entry still pending after maxAge,
// returning how many were reaped. Used only by the optional stuck-entry
// reaper (lifecycle.go); normal operation never needs this because the
// owning writer always removes its own key on resolution or failure (§3
// Invariant I3).
func (t *PromiseTable[K, V]) reapStuck(now int64, maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	reaped := 0
	t.store.DeleteIf(func(_ K, p *PendingResult[V]) bool {
		if !p.isPending() {
			return false
		}
		if time.Duration(now-p.createdAt) < maxAge {
			return false
		}
		// Wake any waiter stuck on this generation; nothing else will
		// ever resolve it once we've decided it's abandoned.
		p.fail(errStuckEntryReaped)
		reaped++
		return true
	})
	return reaped
}
