package herdcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	t.Run("nil backend", func(t *testing.T) {
		t.Parallel()
		_, err := New[string](nil, identityHasher)
		assert.ErrorIs(t, err, ErrNilBackendClient)
	})

	t.Run("nil hasher", func(t *testing.T) {
		t.Parallel()
		_, err := New[string](newFakeBackend(), nil)
		assert.ErrorIs(t, err, ErrNilHasher)
	})

	t.Run("negative ttl", func(t *testing.T) {
		t.Parallel()
		_, err := New[string](newFakeBackend(), identityHasher, WithTTL(-1))
		assert.ErrorIs(t, err, ErrNegativeTTL)
	})

	t.Run("lru backend needs capacity", func(t *testing.T) {
		t.Parallel()
		_, err := New[string](newFakeBackend(), identityHasher, WithLRUBackend(0))
		assert.ErrorIs(t, err, ErrCapacityRequired)
	})

	t.Run("map backend rejects negative capacity", func(t *testing.T) {
		t.Parallel()
		_, err := New[string](newFakeBackend(), identityHasher, WithMapBackend(), func(c *cacheConfig) { c.freshCapacity = -1 })
		assert.ErrorIs(t, err, ErrNegativeCapacity)
	})

	t.Run("defaults construct cleanly", func(t *testing.T) {
		t.Parallel()
		c, err := New[string](newFakeBackend(), identityHasher)
		require.NoError(t, err)
		require.NotNil(t, c)
	})

	t.Run("WithCanCacheValue type mismatch is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := New[string](newFakeBackend(), identityHasher, WithCanCacheValue(func(v int) bool { return true }))
		assert.ErrorIs(t, err, ErrCanCacheValueTypeMismatch)
	})

	t.Run("stale LRU backend falls back to fresh capacity", func(t *testing.T) {
		t.Parallel()
		c, err := New[string](newFakeBackend(), identityHasher,
			WithStaleCache(true), WithLRUBackend(10), WithStaleLRUBackend(0))
		require.NoError(t, err)
		require.NotNil(t, c)
	})
}

func TestNewMustPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		NewMust[string](nil, identityHasher)
	})
}

// TestSingleFlight is S1 / invariant 1: N concurrent Apply calls on the
// same key while the backend misses invoke compute exactly once, and all
// callers observe the same value.
func TestSingleFlight(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher, WithTTL(60*time.Second))
	require.NoError(t, err)

	var computeCalls int32
	compute := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&computeCalls, 1)
		time.Sleep(20 * time.Millisecond)
		return "V", nil
	}

	const n = 100
	results := make([]*PendingResult[string], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = c.Apply(context.Background(), "a", compute)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		v, err := r.Wait()
		require.NoError(t, err)
		assert.Equal(t, "V", v)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&computeCalls))

	calls := backend.setCallsSnapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "a", calls[0].key)
	assert.Equal(t, 60*time.Second, calls[0].ttl)
}

// TestBackendHitShortCircuit is S2 / invariant 2: a backend hit on the
// first lookup means compute is never invoked.
func TestBackendHitShortCircuit(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher)
	require.NoError(t, err)

	data, err := defaultCodec[string]().Marshal("X")
	require.NoError(t, err)
	backend.populate("a", data)

	computeCalled := false
	p := c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		computeCalled = true
		return "", errors.New("should never run")
	})

	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "X", v)
	assert.False(t, computeCalled)
	assert.Empty(t, backend.setCallsSnapshot())
}

// TestUncacheableValueSkipsWrite is invariant 3: a value compute returns
// for which CanCacheValue is false still resolves the future, but is
// never written to the backend.
func TestUncacheableValueSkipsWrite(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher, WithCanCacheValue(func(v string) bool { return false }))
	require.NoError(t, err)

	p := c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		return "V", nil
	})
	v, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "V", v)
	assert.Empty(t, backend.setCallsSnapshot())
}

// TestNilValueSkipsWrite confirms the pointer-typed analogue of "compute
// returns null" also bypasses the backend write.
func TestNilValueSkipsWrite(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[*string](backend, identityHasher)
	require.NoError(t, err)

	p := c.Apply(context.Background(), "a", func(ctx context.Context) (*string, error) {
		return nil, nil
	})
	v, err := p.Wait()
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Empty(t, backend.setCallsSnapshot())
}

// TestStalePrecedence is S3 / invariant 4: a second caller that arrives
// while the first owns the fresh slot resolves via the stale lookup when
// the stale key is populated, and the stale write for the first caller's
// eventual success precedes its fresh write. Both writes are issued
// synchronously before call1.Wait() returns, so this assertion is
// deterministic rather than a race against a detached goroutine.
func TestStalePrecedence(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.getDelay = 0 // timing is driven explicitly below, not via sleep racing
	c, err := New[string](backend, identityHasher,
		WithStaleCache(true),
		WithStaleTTLAdditional(30*time.Second),
		WithTTL(60*time.Second),
	)
	require.NoError(t, err)

	started := make(chan struct{})
	proceed := make(chan struct{})
	compute := func(ctx context.Context) (string, error) {
		close(started)
		<-proceed
		return "slow-result", nil
	}

	call1 := c.Apply(context.Background(), "a", compute)
	<-started // call 1 has claimed the fresh slot and is mid-compute

	staleData, err := defaultCodec[string]().Marshal("S")
	require.NoError(t, err)
	backend.populate("stalea", staleData)

	call2 := c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		t.Fatal("call 2 must not invoke compute while call 1 is in flight")
		return "", nil
	})

	v2, err := call2.Wait()
	require.NoError(t, err)
	assert.Equal(t, "S", v2)

	close(proceed)
	v1, err := call1.Wait()
	require.NoError(t, err)
	assert.Equal(t, "slow-result", v1)

	calls := backend.setCallsSnapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "stalea", calls[0].key)
	assert.Equal(t, 90*time.Second, calls[0].ttl)
	assert.Equal(t, "a", calls[1].key)
	assert.Equal(t, 60*time.Second, calls[1].ttl)
}

// TestStaleFallbackToFresh is invariant 5: when the stale key is
// absent, the stale-path future degrades to the fresh path's own result.
func TestStaleFallbackToFresh(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher, WithStaleCache(true))
	require.NoError(t, err)

	started := make(chan struct{})
	proceed := make(chan struct{})
	call1 := c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		close(started)
		<-proceed
		return "fresh-value", nil
	})
	<-started

	call2 := c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		t.Fatal("call 2 must coalesce, not recompute")
		return "", nil
	})

	close(proceed)
	v1, err := call1.Wait()
	require.NoError(t, err)
	v2, err := call2.Wait()
	require.NoError(t, err)
	assert.Equal(t, "fresh-value", v1)
	assert.Equal(t, v1, v2)
}

// TestOrderingPolicyBeforeRemove is invariant 6 (the "true" half): with
// RemoveFromTableBeforeSettingValue, the slot is gone from the table by
// the time the promise resolves, so a very-late caller always starts a
// fresh generation instead of ever observing the old promise post-hoc.
func TestOrderingPolicyBeforeRemove(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	// Values are kept out of the backend so the second Apply cannot be
	// answered by a backend hit on the first generation's write-back.
	c, err := New[string](backend, identityHasher,
		WithRemoveFromTableBeforeSettingValue(true),
		WithCanCacheValue(func(v string) bool { return false }),
	)
	require.NoError(t, err)

	var generation int32
	compute := func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(&generation, 1)
		return fmt.Sprintf("gen-%d", n), nil
	}

	p1 := c.Apply(context.Background(), "a", compute)
	v1, err := p1.Wait()
	require.NoError(t, err)
	assert.Equal(t, "gen-1", v1)

	// The slot was removed before p1 resolved, so this Apply must start a
	// brand new generation rather than observing p1's promise.
	p2 := c.Apply(context.Background(), "a", compute)
	v2, err := p2.Wait()
	require.NoError(t, err)
	assert.Equal(t, "gen-2", v2)
}

// TestComputeFailure is S4: compute's error propagates to every observer,
// the slot is freed, and a subsequent Apply starts a new computation.
func TestComputeFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher)
	require.NoError(t, err)

	boom := errors.New("boom")
	p1 := c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		return "", boom
	})
	_, err = p1.Wait()
	assert.ErrorIs(t, err, boom)

	p2 := c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		return "recovered", nil
	})
	v2, err := p2.Wait()
	require.NoError(t, err)
	assert.Equal(t, "recovered", v2)
	assert.Empty(t, backend.setCallsSnapshot())
}

// TestBackendDown is S5: with IsAvailable false throughout, every caller
// still coalesces to a single compute and resolves, with no backend
// traffic at all.
func TestBackendDown(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.setAvailable(false)
	c, err := New[string](backend, identityHasher)
	require.NoError(t, err)

	var computeCalls int32
	compute := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&computeCalls, 1)
		time.Sleep(10 * time.Millisecond)
		return "V", nil
	}

	const n = 50
	results := make([]*PendingResult[string], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = c.Apply(context.Background(), "a", compute)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		v, err := r.Wait()
		require.NoError(t, err)
		assert.Equal(t, "V", v)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&computeCalls))
	assert.Empty(t, backend.setCallsSnapshot())
	assert.Empty(t, backend.deleteCalls)
}

// TestBoundedTable is S6 / invariant 7: a bounded fresh table never grows
// past its configured capacity, and no observer of an evicted entry's
// promise loses its result.
func TestBoundedTable(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher, WithLRUBackend(8))
	require.NoError(t, err)

	started := make(chan struct{}, 64)
	proceed := make(chan struct{})

	const n = 64
	results := make([]*PendingResult[string], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%d", i)
		go func(i int, key string) {
			defer wg.Done()
			results[i] = c.Apply(context.Background(), key, func(ctx context.Context) (string, error) {
				started <- struct{}{}
				<-proceed
				return key, nil
			})
		}(i, key)
	}

	for i := 0; i < n; i++ {
		<-started
	}
	assert.LessOrEqual(t, c.fresh.len(), 8)
	close(proceed)
	wg.Wait()

	for i, r := range results {
		v, err := r.Wait()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("key-%d", i), v)
	}
}

// TestClearSemantics is invariant 9: Clear issues exactly one delete for
// the fresh key and, in stale mode, one for the stale key, touching no
// other key.
func TestClearSemantics(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher, WithStaleCache(true))
	require.NoError(t, err)

	c.Clear(context.Background(), "a")

	assert.Equal(t, []string{"stalea", "a"}, backend.deleteCalls)
}

// TestClearAllFlushesBackend covers clear(all): both tables are cleared
// and exactly one backend flush is issued.
func TestClearAllFlushesBackend(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher)
	require.NoError(t, err)

	c.Apply(context.Background(), "a", func(ctx context.Context) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "v", nil
	})

	c.ClearAll(context.Background(), true)
	assert.Equal(t, 1, backend.flushCalls)
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher)
	require.NoError(t, err)

	c.Shutdown()
	c.Shutdown()
}

// TestGetReadOnly exercises the read-only Get variant (§4.2): no claim,
// no compute scheduling, just a backend lookup wrapped in a PendingResult.
func TestGetReadOnly(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := New[string](backend, identityHasher)
	require.NoError(t, err)

	v, err := c.Get(context.Background(), "missing").Wait()
	require.NoError(t, err)
	assert.Equal(t, "", v)

	data, err := defaultCodec[string]().Marshal("hello")
	require.NoError(t, err)
	backend.populate("present", data)

	v, err = c.Get(context.Background(), "present").Wait()
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}
