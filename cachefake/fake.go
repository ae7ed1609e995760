// Package cachefake provides test doubles: a Fake cache that records calls
// per operation and key, and an in-memory RemoteClient with failure
// injection.
package cachefake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/cachemaster"
	"github.com/goforj/cachemaster/cachecore"
)

// Op identifies a cache operation for assertions.
type Op string

const (
	OpGet        Op = "get"
	OpSet        Op = "set"
	OpAdd        Op = "add"
	OpInc        Op = "inc"
	OpDec        Op = "dec"
	OpDelete     Op = "delete"
	OpGetMany    Op = "get_many"
	OpSetMany    Op = "set_many"
	OpDeleteMany Op = "delete_many"
	OpHas        Op = "has"
	OpTouch      Op = "touch"
	OpClear      Op = "clear"
)

// Fake exposes a deterministic local cache plus assertion helpers.
// Counts are keyed by the logical key, without app or namespace prefix.
type Fake struct {
	cache  *cachemaster.Cache
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake backed by the local store under app name "fake".
func New(opts ...cachemaster.Option) *Fake {
	keys, _ := cachecore.NewKeyCodec("fake", "", 0)
	f := &Fake{counts: make(map[Op]map[string]int)}
	store := &countingStore{inner: cachemaster.NewLocalStore(keys), onCount: f.record}
	opts = append([]cachemaster.Option{cachemaster.WithAppName("fake")}, opts...)
	f.cache = cachemaster.NewCache(store, opts...)
	return f
}

// Cache returns the cache to inject into code under test.
func (f *Fake) Cache() *cachemaster.Cache { return f.cache }

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingStore wraps a Store to record calls. Namespace views share the
// counter.
type countingStore struct {
	inner   cachemaster.Store
	onCount func(Op, string)
}

func (s *countingStore) Backend() cachemaster.Backend { return s.inner.Backend() }

func (s *countingStore) Namespace(ns string) (cachemaster.Store, error) {
	inner, err := s.inner.Namespace(ns)
	if err != nil {
		return nil, err
	}
	return &countingStore{inner: inner, onCount: s.onCount}, nil
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingStore) Add(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	s.bump(OpAdd, key)
	return s.inner.Add(ctx, key, val, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) (bool, error) {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	for _, k := range keys {
		s.bump(OpGetMany, k)
	}
	return s.inner.GetMany(ctx, keys...)
}

func (s *countingStore) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for k := range items {
		s.bump(OpSetMany, k)
	}
	return s.inner.SetMany(ctx, items, ttl)
}

func (s *countingStore) DeleteMany(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		s.bump(OpDeleteMany, k)
	}
	return s.inner.DeleteMany(ctx, keys...)
}

func (s *countingStore) Has(ctx context.Context, key string) (bool, error) {
	s.bump(OpHas, key)
	return s.inner.Has(ctx, key)
}

func (s *countingStore) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.bump(OpTouch, key)
	return s.inner.Touch(ctx, key, ttl)
}

func (s *countingStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	s.bump(OpInc, key)
	return s.inner.Increment(ctx, key, delta)
}

func (s *countingStore) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	s.bump(OpDec, key)
	return s.inner.Decrement(ctx, key, delta)
}

func (s *countingStore) Clear(ctx context.Context) error {
	s.bump(OpClear, "")
	return s.inner.Clear(ctx)
}

func (s *countingStore) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}
