package herdcache

import (
	extlru "github.com/motoki317/lru"

	"github.com/motoki317/herdcache/internal/arc"
	"github.com/motoki317/herdcache/internal/tq"
)

// promiseStore is the bounded storage backing a PromiseTable (§3 Invariant
// I2). Implementations do NOT need to be goroutine-safe - PromiseTable
// guards every call with its own mutex, the same division of labor the
// teacher's cache[K, V] uses for its own value backend.
type promiseStore[K comparable, V any] interface {
	Get(key K) (v V, ok bool)
	Set(key K, v V)
	Delete(key K)
	// DeleteIf removes every entry matching predicate. Used by the
	// stuck-entry reaper (lifecycle.go) to force-unclaim aged entries.
	DeleteIf(predicate func(key K, v V) bool)
	// Clear removes every entry.
	Clear()
	// Len reports the current number of live entries.
	Len() int
}

func newPromiseStore[K comparable, V any](kind promiseTableBackendType, capacity int) promiseStore[K, V] {
	switch kind {
	case promiseTableBackendLRU:
		return &lruStore[K, V]{c: extlru.New[K, V](extlru.WithCapacity(capacity))}
	case promiseTableBackend2Q:
		return &twoQueueStore[K, V]{c: tq.New[K, V](capacity)}
	case promiseTableBackendARC:
		return &arcStore[K, V]{c: arc.New[K, V](capacity)}
	default:
		return &mapStore[K, V]{m: make(map[K]V)}
	}
}

type mapStore[K comparable, V any] struct {
	m map[K]V
}

func (s *mapStore[K, V]) Get(key K) (v V, ok bool) { v, ok = s.m[key]; return }
func (s *mapStore[K, V]) Set(key K, v V)           { s.m[key] = v }
func (s *mapStore[K, V]) Delete(key K)             { delete(s.m, key) }
func (s *mapStore[K, V]) DeleteIf(predicate func(key K, v V) bool) {
	for k, v := range s.m {
		if predicate(k, v) {
			delete(s.m, k)
		}
	}
}
func (s *mapStore[K, V]) Clear()   { s.m = make(map[K]V) }
func (s *mapStore[K, V]) Len() int { return len(s.m) }

// lruStore wraps the external github.com/motoki317/lru cache, the same
// dependency the teacher's own backend.go uses for its LRU variant.
type lruStore[K comparable, V any] struct {
	c *extlru.Cache[K, V]
}

func (s *lruStore[K, V]) Get(key K) (V, bool) { return s.c.Get(key) }
func (s *lruStore[K, V]) Set(key K, v V)      { s.c.Set(key, v) }
func (s *lruStore[K, V]) Delete(key K)        { s.c.Delete(key) }
func (s *lruStore[K, V]) DeleteIf(predicate func(key K, v V) bool) {
	s.c.DeleteIf(predicate)
}
func (s *lruStore[K, V]) Clear()   { s.c.Purge() }
func (s *lruStore[K, V]) Len() int { return s.c.Len() }

type twoQueueStore[K comparable, V any] struct {
	c *tq.Cache[K, V]
}

func (s *twoQueueStore[K, V]) Get(key K) (V, bool) { return s.c.Get(key) }
func (s *twoQueueStore[K, V]) Set(key K, v V)      { s.c.Set(key, v) }
func (s *twoQueueStore[K, V]) Delete(key K)        { s.c.Delete(key) }
func (s *twoQueueStore[K, V]) DeleteIf(predicate func(key K, v V) bool) {
	s.c.DeleteIf(predicate)
}
func (s *twoQueueStore[K, V]) Clear()   { s.c.Purge() }
func (s *twoQueueStore[K, V]) Len() int { return s.c.Len() }

// arcStore wraps the internal/arc adaptive replacement cache. The teacher
// repo ships this package but never wires it into sc.Cache itself; here it
// becomes a selectable PromiseTable bound.
type arcStore[K comparable, V any] struct {
	c *arc.Cache[K, V]
}

func (s *arcStore[K, V]) Get(key K) (V, bool) { return s.c.Get(key) }
func (s *arcStore[K, V]) Set(key K, v V)      { s.c.Set(key, v) }
func (s *arcStore[K, V]) Delete(key K)        { s.c.Delete(key) }
func (s *arcStore[K, V]) DeleteIf(predicate func(key K, v V) bool) {
	s.c.DeleteIf(predicate)
}
func (s *arcStore[K, V]) Clear()   { s.c.Purge() }
func (s *arcStore[K, V]) Len() int { return s.c.Len() }
