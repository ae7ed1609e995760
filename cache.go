package cachemaster

import (
	"context"
	"fmt"
	"time"
)

// Cache routes every operation to exactly one Store chosen at construction.
// A ttl <= 0 means the entry never expires.
type Cache struct {
	store    Store
	appName  string
	logger   Logger
	observer Observer
}

// NewCache wraps an existing Store. Only the AppName, Logger and Observer
// options apply; the store already fixes backend and keys.
// @group Constructors
//
// Example: custom store
//
//	keys, _ := cachecore.NewKeyCodec("shop", "", 0)
//	c := cachemaster.NewCache(cachemaster.NewLocalStore(keys), cachemaster.WithAppName("shop"))
//	fmt.Println(c.Backend()) // local
func NewCache(store Store, opts ...Option) *Cache {
	return newCache(store, applyOptions(Config{}, opts).withDefaults())
}

func newCache(store Store, cfg Config) *Cache {
	return &Cache{
		store:    store,
		appName:  cfg.AppName,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
}

// Store returns the underlying store implementation.
// @group Cache
func (c *Cache) Store() Store {
	return c.store
}

// Backend reports which store this cache routes to.
// @group Cache
func (c *Cache) Backend() Backend {
	return c.store.Backend()
}

// AppName returns the key prefix shared by every namespace.
func (c *Cache) AppName() string {
	return c.appName
}

// Namespace returns a cache bound to ns. It shares storage, connection,
// logger and observer with c.
// @group Cache
//
// Example: namespaced view
//
//	c, _ := cachemaster.New(ctx, cachemaster.Config{AppName: "shop"})
//	users, _ := c.Namespace("users")
//	_ = users.Set("42", []byte("Ada"), time.Minute) // stored as shop:users:42
func (c *Cache) Namespace(ns string) (*Cache, error) {
	store, err := c.store.Namespace(ns)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, appName: c.appName, logger: c.logger, observer: c.observer}, nil
}

// Start establishes the remote connection. It is a no-op for the local
// backend and safe to call repeatedly.
func (c *Cache) Start(ctx context.Context) error {
	conn, ok := c.store.(connector)
	if !ok {
		return nil
	}
	start := time.Now()
	err := conn.Start(ctx)
	c.observe(ctx, "start", "", err == nil, err, start)
	if err != nil {
		return err
	}
	c.logger.Debug("remote cache connection started", Fields{"app": c.appName})
	return nil
}

// Close releases the remote connection. It is a no-op for the local backend.
func (c *Cache) Close() error {
	conn, ok := c.store.(connector)
	if !ok {
		return nil
	}
	err := conn.Close()
	c.logger.Debug("remote cache connection closed", Fields{"app": c.appName, "error": errString(err)})
	return err
}

// RemoteClient returns the driver behind a remote cache.
// It fails with ErrNotInitialized for the local backend.
func (c *Cache) RemoteClient() (RemoteClient, error) {
	conn, ok := c.store.(connector)
	if !ok || conn.Client() == nil {
		return nil, fmt.Errorf("%w: app %q uses the %s backend", ErrNotInitialized, c.appName, c.Backend())
	}
	return conn.Client(), nil
}

// Get returns raw bytes for key when present.
// @group Cache
//
// Example: get bytes
//
//	c, _ := cachemaster.New(ctx, cachemaster.Config{})
//	_ = c.Set("user:42", []byte("Ada"), 0)
//	value, ok, _ := c.Get("user:42")
//	fmt.Println(ok, string(value)) // true Ada
func (c *Cache) Get(key string) ([]byte, bool, error) {
	return c.GetCtx(context.Background(), key)
}

func (c *Cache) GetCtx(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	body, ok, err := c.store.Get(ctx, key)
	c.observe(ctx, "get", key, ok, err, start)
	return body, ok, err
}

// GetString returns a UTF-8 string value for key when present.
// @group Cache
func (c *Cache) GetString(key string) (string, bool, error) {
	return c.GetStringCtx(context.Background(), key)
}

func (c *Cache) GetStringCtx(ctx context.Context, key string) (string, bool, error) {
	body, ok, err := c.GetCtx(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(body), true, nil
}

// Set writes raw bytes to key, overwriting any existing entry.
// @group Cache
//
// Example: set bytes with ttl
//
//	c, _ := cachemaster.New(ctx, cachemaster.Config{})
//	fmt.Println(c.Set("token", []byte("abc"), time.Minute) == nil) // true
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	return c.SetCtx(context.Background(), key, value, ttl)
}

func (c *Cache) SetCtx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.store.Set(ctx, key, value, ttl)
	c.observe(ctx, "set", key, false, err, start)
	return err
}

// SetString writes a string value to key.
// @group Cache
func (c *Cache) SetString(key string, value string, ttl time.Duration) error {
	return c.SetStringCtx(context.Background(), key, value, ttl)
}

func (c *Cache) SetStringCtx(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.SetCtx(ctx, key, []byte(value), ttl)
}

// Add writes value like Set. Existing entries are overwritten and the
// result is always true on success.
// @group Cache
func (c *Cache) Add(key string, value []byte, ttl time.Duration) (bool, error) {
	return c.AddCtx(context.Background(), key, value, ttl)
}

func (c *Cache) AddCtx(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	start := time.Now()
	created, err := c.store.Add(ctx, key, value, ttl)
	c.observe(ctx, "add", key, created, err, start)
	return created, err
}

// Delete removes key and reports whether it existed.
// @group Cache
//
// Example: delete key
//
//	c, _ := cachemaster.New(ctx, cachemaster.Config{})
//	_ = c.Set("a", []byte("1"), time.Minute)
//	removed, _ := c.Delete("a")
//	fmt.Println(removed) // true
func (c *Cache) Delete(key string) (bool, error) {
	return c.DeleteCtx(context.Background(), key)
}

func (c *Cache) DeleteCtx(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	removed, err := c.store.Delete(ctx, key)
	c.observe(ctx, "delete", key, removed, err, start)
	return removed, err
}

// GetMany returns the present keys; missing keys are omitted.
// @group Cache
func (c *Cache) GetMany(keys ...string) (map[string][]byte, error) {
	return c.GetManyCtx(context.Background(), keys...)
}

func (c *Cache) GetManyCtx(ctx context.Context, keys ...string) (map[string][]byte, error) {
	start := time.Now()
	found, err := c.store.GetMany(ctx, keys...)
	for _, key := range keys {
		_, hit := found[key]
		c.observe(ctx, "get_many", key, hit, err, start)
	}
	return found, err
}

// SetMany writes every item with the same ttl.
// @group Cache
func (c *Cache) SetMany(items map[string][]byte, ttl time.Duration) error {
	return c.SetManyCtx(context.Background(), items, ttl)
}

func (c *Cache) SetManyCtx(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	err := c.store.SetMany(ctx, items, ttl)
	for key := range items {
		c.observe(ctx, "set_many", key, false, err, start)
	}
	return err
}

// DeleteMany removes multiple keys.
// @group Cache
func (c *Cache) DeleteMany(keys ...string) error {
	return c.DeleteManyCtx(context.Background(), keys...)
}

func (c *Cache) DeleteManyCtx(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.store.DeleteMany(ctx, keys...)
	for _, key := range keys {
		c.observe(ctx, "delete_many", key, err == nil, err, start)
	}
	return err
}

// Has reports whether key holds a live entry.
// @group Cache
func (c *Cache) Has(key string) (bool, error) {
	return c.HasCtx(context.Background(), key)
}

func (c *Cache) HasCtx(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := c.store.Has(ctx, key)
	c.observe(ctx, "has", key, ok, err, start)
	return ok, err
}

// Touch replaces the expiry of a live entry without changing its value.
// It reports false when key is absent or already expired.
// @group Cache
//
// Example: extend a session
//
//	c, _ := cachemaster.New(ctx, cachemaster.Config{})
//	_ = c.Set("session:1", []byte("x"), time.Second)
//	ok, _ := c.Touch("session:1", time.Hour)
//	fmt.Println(ok) // true
func (c *Cache) Touch(key string, ttl time.Duration) (bool, error) {
	return c.TouchCtx(context.Background(), key, ttl)
}

func (c *Cache) TouchCtx(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.store.Touch(ctx, key, ttl)
	c.observe(ctx, "touch", key, ok, err, start)
	return ok, err
}

// Increment adds delta to an integer entry and returns the result.
// It fails with ErrKeyNotFound when key is absent and ErrTypeMismatch when
// the stored value is not an integer; neither case changes the entry.
// @group Cache
//
// Example: increment counter
//
//	c, _ := cachemaster.New(ctx, cachemaster.Config{})
//	_ = c.SetString("hits", "1", 0)
//	val, _ := c.Increment("hits", 2)
//	fmt.Println(val) // 3
func (c *Cache) Increment(key string, delta int64) (int64, error) {
	return c.IncrementCtx(context.Background(), key, delta)
}

func (c *Cache) IncrementCtx(ctx context.Context, key string, delta int64) (int64, error) {
	start := time.Now()
	val, err := c.store.Increment(ctx, key, delta)
	c.observe(ctx, "increment", key, err == nil, err, start)
	return val, err
}

// Decrement subtracts delta from an integer entry and returns the result.
// @group Cache
func (c *Cache) Decrement(key string, delta int64) (int64, error) {
	return c.DecrementCtx(context.Background(), key, delta)
}

func (c *Cache) DecrementCtx(ctx context.Context, key string, delta int64) (int64, error) {
	start := time.Now()
	val, err := c.store.Decrement(ctx, key, delta)
	c.observe(ctx, "decrement", key, err == nil, err, start)
	return val, err
}

// Clear removes every entry of the store. It is not scoped to a namespace.
// @group Cache
func (c *Cache) Clear() error {
	return c.ClearCtx(context.Background())
}

func (c *Cache) ClearCtx(ctx context.Context) error {
	start := time.Now()
	err := c.store.Clear(ctx)
	c.observe(ctx, "clear", "", err == nil, err, start)
	return err
}

// Remember returns key value or computes and stores it when missing.
// @group Cache
//
// Example: remember bytes
//
//	c, _ := cachemaster.New(ctx, cachemaster.Config{})
//	data, err := c.Remember("dashboard:summary", time.Minute, func() ([]byte, error) {
//		return []byte("payload"), nil
//	})
//	fmt.Println(err == nil, string(data)) // true payload
func (c *Cache) Remember(key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if fn == nil {
		return nil, errRememberCallback
	}
	return c.RememberCtx(context.Background(), key, ttl, func(context.Context) ([]byte, error) {
		return fn()
	})
}

var errRememberCallback = fmt.Errorf("%w: remember requires a callback", ErrUsage)

func (c *Cache) RememberCtx(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	body, ok, err := c.GetCtx(ctx, key)
	if err != nil {
		c.observe(ctx, "remember", key, ok, err, start)
		return nil, err
	}
	if ok {
		c.observe(ctx, "remember", key, true, nil, start)
		return body, nil
	}
	if fn == nil {
		c.observe(ctx, "remember", key, false, errRememberCallback, start)
		return nil, errRememberCallback
	}
	body, err = fn(ctx)
	if err != nil {
		c.observe(ctx, "remember", key, false, err, start)
		return nil, err
	}
	if err := c.SetCtx(ctx, key, body, ttl); err != nil {
		c.observe(ctx, "remember", key, false, err, start)
		return nil, err
	}
	c.observe(ctx, "remember", key, false, nil, start)
	return body, nil
}

func (c *Cache) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), c.Backend())
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
