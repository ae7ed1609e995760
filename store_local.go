package cachemaster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goforj/cachemaster/cachecore"
	gocache "github.com/patrickmn/go-cache"
)

// localState is shared by every namespace view of one local store.
type localState struct {
	// mu serializes mutations and expired-entry removal.
	mu    sync.Mutex
	items *gocache.Cache
}

type localStore struct {
	state *localState
	keys  KeyCodec
}

// NewLocalStore returns an in-process store. Expiration is evaluated lazily
// on access; no sweeper goroutine runs.
// @group Constructors
//
// Example: local store
//
//	keys, _ := cachecore.NewKeyCodec("app", "", 0)
//	store := cachemaster.NewLocalStore(keys)
//	fmt.Println(store.Backend()) // local
func NewLocalStore(keys KeyCodec) Store {
	return &localStore{
		// cleanup interval 0 disables the go-cache janitor
		state: &localState{items: gocache.New(gocache.NoExpiration, 0)},
		keys:  keys,
	}
}

func (s *localStore) Backend() Backend { return BackendLocal }

func (s *localStore) Namespace(ns string) (Store, error) {
	keys, err := s.keys.WithNamespace(ns)
	if err != nil {
		return nil, err
	}
	return &localStore{state: s.state, keys: keys}, nil
}

func (s *localStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	k, err := s.keys.Make(key)
	if err != nil {
		return nil, false, err
	}
	if body, ok := s.lookup(k); ok {
		return body, true, nil
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	// A writer may have raced in; otherwise drop any expired leftover.
	if body, ok := s.lookup(k); ok {
		return body, true, nil
	}
	s.state.items.Delete(k)
	return nil, false, nil
}

func (s *localStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := s.keys.Make(key)
	if err != nil {
		return err
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.items.Set(k, cloneBytes(value), goCacheTTL(ttl))
	return nil
}

// Add overwrites like Set and always reports true.
func (s *localStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *localStore) Delete(_ context.Context, key string) (bool, error) {
	k, err := s.keys.Make(key)
	if err != nil {
		return false, err
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	_, existed := s.state.items.Get(k)
	s.state.items.Delete(k)
	return existed, nil
}

func (s *localStore) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		body, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = body
		}
	}
	return out, nil
}

func (s *localStore) SetMany(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	encoded := make(map[string][]byte, len(items))
	for key, value := range items {
		k, err := s.keys.Make(key)
		if err != nil {
			return err
		}
		encoded[k] = cloneBytes(value)
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for k, value := range encoded {
		s.state.items.Set(k, value, goCacheTTL(ttl))
	}
	return nil
}

func (s *localStore) DeleteMany(_ context.Context, keys ...string) error {
	encoded, err := s.keys.MakeMany(keys)
	if err != nil {
		return err
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for _, k := range encoded {
		s.state.items.Delete(k)
	}
	return nil
}

func (s *localStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *localStore) Touch(_ context.Context, key string, ttl time.Duration) (bool, error) {
	k, err := s.keys.Make(key)
	if err != nil {
		return false, err
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	item, ok := s.state.items.Get(k)
	if !ok {
		s.state.items.Delete(k)
		return false, nil
	}
	s.state.items.Set(k, item, goCacheTTL(ttl))
	return true, nil
}

func (s *localStore) Increment(_ context.Context, key string, delta int64) (int64, error) {
	k, err := s.keys.Make(key)
	if err != nil {
		return 0, err
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	item, expiresAt, ok := s.state.items.GetWithExpiration(k)
	if !ok {
		s.state.items.Delete(k)
		return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	ttl := gocache.NoExpiration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			s.state.items.Delete(k)
			return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
	}
	body, _ := item.([]byte)
	current, err := cachecore.ParseCounter(body)
	if err != nil {
		return 0, fmt.Errorf("cache key %q: %w", key, err)
	}
	next, err := cachecore.AddCounter(current, delta)
	if err != nil {
		return 0, fmt.Errorf("cache key %q: %w", key, err)
	}
	s.state.items.Set(k, cachecore.FormatCounter(next), ttl)
	return next, nil
}

func (s *localStore) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return s.Increment(ctx, key, -delta)
}

// Clear drops every entry, across all namespaces of this store.
func (s *localStore) Clear(_ context.Context) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.items.Flush()
	return nil
}

func (s *localStore) lookup(k string) ([]byte, bool) {
	item, ok := s.state.items.Get(k)
	if !ok {
		return nil, false
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false
	}
	return cloneBytes(body), true
}

func goCacheTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
