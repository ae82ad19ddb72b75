package herdcache

import (
	"sync"
	"sync/atomic"
)

// pendingState is the lifecycle state of a PendingResult (§3).
type pendingState int32

const (
	pendingStatePending pendingState = iota
	pendingStateResolved
	pendingStateFailed
)

// PendingResult is a single-assignment future: born pending, terminal once
// resolved or failed. Multiple observers may call Wait; all receive the
// same outcome. This generalizes the teacher's call[V] (wg sync.WaitGroup,
// val V, err error) into an explicit three-state object per §3.
type PendingResult[V any] struct {
	wg sync.WaitGroup

	// val and err are written at most once, guarded by a CAS on state
	// (see resolve/fail) so a racing reaper force-fail and a genuine
	// compute completion can't both write them or double-call wg.Done.
	// Once that CAS succeeds, wg itself provides the happens-before edge
	// to readers, so val/err need no further synchronization to read.
	// state is additionally read by the stuck-entry reaper without
	// waiting on wg, so it is accessed atomically.
	state int32
	val   V
	err   error

	createdAt int64 // wall-clock nanoseconds (monotonicNow), for the stuck-entry reaper
}

func newPendingResult[V any](createdAt int64) *PendingResult[V] {
	p := &PendingResult[V]{createdAt: createdAt}
	p.wg.Add(1)
	return p
}

// Wait blocks until the result is terminal and returns its value and
// error.
func (p *PendingResult[V]) Wait() (V, error) {
	p.wg.Wait()
	return p.val, p.err
}

// resolve publishes a successful value and makes the result terminal. If
// the result is already terminal - the stuck-entry reaper can race a
// compute that finishes just as it force-fails the same promise - this is
// a no-op: the CAS on state ensures only the first of resolve/fail to
// arrive ever writes val/err or calls wg.Done.
func (p *PendingResult[V]) resolve(v V) {
	if !atomic.CompareAndSwapInt32(&p.state, int32(pendingStatePending), int32(pendingStateResolved)) {
		return
	}
	p.val = v
	p.wg.Done()
}

// fail publishes a failure and makes the result terminal. See resolve for
// the race it guards against.
func (p *PendingResult[V]) fail(err error) {
	if !atomic.CompareAndSwapInt32(&p.state, int32(pendingStatePending), int32(pendingStateFailed)) {
		return
	}
	p.err = err
	p.wg.Done()
}

// isPending reports whether the result has not yet terminated. Used by the
// stuck-entry reaper, which must not block on Wait.
func (p *PendingResult[V]) isPending() bool {
	return atomic.LoadInt32(&p.state) == int32(pendingStatePending)
}
