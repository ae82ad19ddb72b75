package herdcache

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
)

// identityHasher returns the key unchanged. Canonical-key policy tests
// (TestCanonicalKey) use their own non-identity upperHasher; everything
// else only needs a Hasher at all, so using the identity keeps assertions
// about the resulting backend key readable.
var identityHasher = HasherFunc(func(key string) string { return key })

// backendCase names one selectable PromiseTable backend, paired with the
// CacheOption(s) that select it. Used to run the same test body against
// all four backends, the way the teacher's sc_test.go runs allCaches.
type backendCase struct {
	name string
	opts []CacheOption
}

var allPromiseTableBackends = []backendCase{
	{name: "map", opts: []CacheOption{WithMapBackend()}},
	{name: "lru", opts: []CacheOption{WithLRUBackend(64)}},
	{name: "2q", opts: []CacheOption{With2QBackend(64)}},
	{name: "arc", opts: []CacheOption{WithARCBackend(64)}},
}

// allPromiseTableBackendsWithStale derives a stale-cache-enabled variant of
// every backend case, the same way the teacher's sc_test.go derives its
// strictCaches table from nonStrictCaches via lo.Map.
var allPromiseTableBackendsWithStale = lo.Map(allPromiseTableBackends, func(bc backendCase, _ int) backendCase {
	return backendCase{
		name: "stale " + bc.name,
		opts: append(append([]CacheOption{}, bc.opts...), WithStaleCache(true)),
	}
})

// fakeSetCall records one Set invocation observed by fakeBackend.
type fakeSetCall struct {
	key   string
	ttl   time.Duration
	value []byte
}

// fakeBackend is an in-memory BackendClient test double (§6). It never
// blocks beyond an optional injected getDelay, and records every Set/
// Delete/Flush call so tests can assert on issuance order and arguments.
type fakeBackend struct {
	mu sync.Mutex

	data      map[string][]byte
	available bool
	getDelay  time.Duration

	setCalls    []fakeSetCall
	deleteCalls []string
	flushCalls  int

	// onGet, if set, runs synchronously before a Get looks up the key -
	// tests use it to inject state (e.g. populate a stale key) at a
	// precise point in another goroutine's in-flight computation.
	onGet func(key string)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte), available: true}
}

func (f *fakeBackend) Get(_ context.Context, key string, _ time.Duration) ([]byte, bool) {
	if f.getDelay > 0 {
		time.Sleep(f.getDelay)
	}
	if f.onGet != nil {
		f.onGet(key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeBackend) Set(_ context.Context, key string, ttl time.Duration, v []byte) <-chan bool {
	done := make(chan bool, 1)
	f.mu.Lock()
	f.data[key] = v
	f.setCalls = append(f.setCalls, fakeSetCall{key: key, ttl: ttl, value: append([]byte(nil), v...)})
	f.mu.Unlock()
	done <- true
	return done
}

func (f *fakeBackend) Delete(_ context.Context, key string) <-chan bool {
	done := make(chan bool, 1)
	f.mu.Lock()
	delete(f.data, key)
	f.deleteCalls = append(f.deleteCalls, key)
	f.mu.Unlock()
	done <- true
	return done
}

func (f *fakeBackend) Flush(_ context.Context) <-chan bool {
	done := make(chan bool, 1)
	f.mu.Lock()
	f.data = make(map[string][]byte)
	f.flushCalls++
	f.mu.Unlock()
	done <- true
	return done
}

func (f *fakeBackend) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeBackend) setAvailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = v
}

func (f *fakeBackend) Shutdown() {}

func (f *fakeBackend) setCallsSnapshot() []fakeSetCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeSetCall(nil), f.setCalls...)
}

func (f *fakeBackend) populate(key string, v []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = v
}
