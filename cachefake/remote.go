package cachefake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goforj/cachemaster/cachecore"
)

type remoteEntry struct {
	value     []byte
	expiresAt int64
}

// Remote is an in-memory cachecore.RemoteClient. It stores encoded keys as
// given, honors ttls, and can be told to fail specific operations.
type Remote struct {
	mu      sync.Mutex
	entries map[string]remoteEntry
	fail    map[string]error
	calls   map[string]int
	now     func() time.Time
}

var _ cachecore.RemoteClient = (*Remote)(nil)

// NewRemote returns an empty in-memory remote client.
func NewRemote() *Remote {
	return &Remote{
		entries: make(map[string]remoteEntry),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
		now:     time.Now,
	}
}

// Fail makes op return err until cleared with Fail(op, nil). Use "*" for
// every operation. Op names match the method names in lower case.
func (r *Remote) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

// SetClock replaces the time source used for expiry.
func (r *Remote) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Calls reports how often op was invoked, failed calls included.
func (r *Remote) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// Keys returns the stored keys, expired ones included.
func (r *Remote) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	return out
}

// enter records op and returns the injected failure. The caller holds r.mu.
func (r *Remote) enter(op string) error {
	r.calls[op]++
	if err, ok := r.fail[op]; ok {
		return err
	}
	return r.fail["*"]
}

func (r *Remote) live(key string) (remoteEntry, bool) {
	e, ok := r.entries[key]
	if !ok {
		return remoteEntry{}, false
	}
	if cachecore.Expired(r.now(), e.expiresAt) {
		delete(r.entries, key)
		return remoteEntry{}, false
	}
	return e, true
}

func (r *Remote) Handle() any { return r }

func (r *Remote) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enter("start")
}

func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enter("close")
}

func (r *Remote) Get(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("get"); err != nil {
		return nil, false, err
	}
	e, ok := r.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (r *Remote) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("set"); err != nil {
		return err
	}
	r.entries[key] = remoteEntry{value: append([]byte(nil), value...), expiresAt: cachecore.ExpiresAt(r.now(), ttl)}
	return nil
}

func (r *Remote) Delete(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("delete"); err != nil {
		return false, err
	}
	_, ok := r.live(key)
	delete(r.entries, key)
	return ok, nil
}

func (r *Remote) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("getmany"); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if e, ok := r.live(k); ok {
			out[k] = append([]byte(nil), e.value...)
		}
	}
	return out, nil
}

func (r *Remote) SetMany(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("setmany"); err != nil {
		return err
	}
	ea := cachecore.ExpiresAt(r.now(), ttl)
	for k, v := range items {
		r.entries[k] = remoteEntry{value: append([]byte(nil), v...), expiresAt: ea}
	}
	return nil
}

func (r *Remote) DeleteMany(_ context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("deletemany"); err != nil {
		return err
	}
	for _, k := range keys {
		delete(r.entries, k)
	}
	return nil
}

func (r *Remote) Has(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("has"); err != nil {
		return false, err
	}
	_, ok := r.live(key)
	return ok, nil
}

func (r *Remote) Touch(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("touch"); err != nil {
		return false, err
	}
	e, ok := r.live(key)
	if !ok {
		return false, nil
	}
	e.expiresAt = cachecore.ExpiresAt(r.now(), ttl)
	r.entries[key] = e
	return true, nil
}

func (r *Remote) Increment(_ context.Context, key string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("increment"); err != nil {
		return 0, err
	}
	e, ok := r.live(key)
	if !ok {
		return 0, fmt.Errorf("%w: %q", cachecore.ErrKeyNotFound, key)
	}
	cur, err := cachecore.ParseCounter(e.value)
	if err != nil {
		return 0, err
	}
	next, err := cachecore.AddCounter(cur, delta)
	if err != nil {
		return 0, err
	}
	e.value = cachecore.FormatCounter(next)
	r.entries[key] = e
	return next, nil
}

func (r *Remote) Clear(_ context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("clear"); err != nil {
		return err
	}
	for k := range r.entries {
		if strings.HasPrefix(k, prefix) {
			delete(r.entries, k)
		}
	}
	return nil
}
