package natscache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goforj/cachemaster/cachecore"
	"github.com/nats-io/nats.go"
)

const (
	defaultBucket = "cache"
	keyPrefix     = "k."
	casAttempts   = 16
)

// KeyValue captures the subset of nats.KeyValue used by the client.
type KeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

// envelope carries the expiry next to the value; JetStream KV has no
// per-key ttl. ExpiresAt is unix millis, 0 for never.
type envelope struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"ea"`
}

// Client implements cachecore.RemoteClient on a JetStream KeyValue bucket.
type Client struct {
	mu     sync.Mutex
	kv     KeyValue
	nc     *nats.Conn
	server string
	bucket string
	now    func() time.Time
}

var _ cachecore.RemoteClient = (*Client)(nil)

// New wraps an already bound bucket. Start and Close are no-ops for it.
func New(kv KeyValue) *Client {
	return &Client{kv: kv, now: time.Now}
}

// Open parses nats://host:port/bucket. The connection is made by Start, or
// by the first operation when Start was skipped. The bucket is created when
// missing and defaults to "cache".
func Open(rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse nats url: %w", cachecore.ErrConfiguration, err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return nil, fmt.Errorf("%w: unsupported nats scheme %q", cachecore.ErrConfiguration, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: nats url has no host", cachecore.ErrConfiguration)
	}
	bucket := strings.Trim(u.Path, "/")
	if bucket == "" {
		bucket = defaultBucket
	}
	server := *u
	server.Path = ""
	server.RawQuery = ""
	return &Client{server: server.String(), bucket: bucket, now: time.Now}, nil
}

// Handle returns the bound KeyValue, or nil before the first connection.
func (c *Client) Handle() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv
}

// Start connects to the server and binds the bucket.
func (c *Client) Start(ctx context.Context) error {
	_, err := c.bucketKV(ctx)
	return err
}

// Close drains the connection this client opened. Injected buckets are left
// alone.
func (c *Client) Close() error {
	c.mu.Lock()
	nc := c.nc
	c.nc = nil
	if c.server != "" {
		c.kv = nil
	}
	c.mu.Unlock()
	if nc == nil || nc.IsClosed() {
		return nil
	}
	if err := nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

func (c *Client) bucketKV(ctx context.Context) (KeyValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv != nil {
		return c.kv, nil
	}
	if c.server == "" {
		return nil, errors.New("nats cache key-value unavailable")
	}
	opts := []nats.Option{nats.Name("cachemaster")}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	nc, err := nats.Connect(c.server, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	kv, err := js.KeyValue(c.bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: c.bucket, History: 1})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind nats bucket %q: %w", c.bucket, err)
	}
	c.nc = nc
	c.kv = jetStreamKV{kv: kv}
	return c.kv, nil
}

// load returns the live envelope and revision for an encoded key. Expired
// entries are purged and reported missing.
func (c *Client) load(kv KeyValue, natsKey string) (envelope, uint64, bool, error) {
	entry, err := kv.Get(natsKey)
	if isMiss(err) {
		return envelope{}, 0, false, nil
	}
	if err != nil {
		return envelope{}, 0, false, err
	}
	if entry.Operation() != nats.KeyValuePut {
		return envelope{}, 0, false, nil
	}
	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return envelope{}, 0, false, fmt.Errorf("decode nats cache envelope: %w", err)
	}
	if cachecore.Expired(c.now(), env.ExpiresAt) {
		_ = kv.Purge(natsKey)
		return envelope{}, 0, false, nil
	}
	return env, entry.Revision(), true, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	kv, err := c.bucketKV(ctx)
	if err != nil {
		return nil, false, err
	}
	env, _, ok, err := c.load(kv, encodeKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	return env.Value, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	kv, err := c.bucketKV(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{Value: value, ExpiresAt: cachecore.ExpiresAt(c.now(), ttl)})
	if err != nil {
		return err
	}
	_, err = kv.Put(encodeKey(key), body)
	return err
}

func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	kv, err := c.bucketKV(ctx)
	if err != nil {
		return false, err
	}
	natsKey := encodeKey(key)
	_, _, ok, err := c.load(kv, natsKey)
	if err != nil || !ok {
		return false, err
	}
	if err := kv.Delete(natsKey); err != nil && !isMiss(err) {
		return false, err
	}
	return true, nil
}

func (c *Client) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, ok, err := c.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = value
		}
	}
	return out, nil
}

func (c *Client) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for key, value := range items {
		if err := c.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) DeleteMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := c.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *Client) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	touched := false
	err := c.update(ctx, key, func(env envelope) (envelope, error) {
		env.ExpiresAt = cachecore.ExpiresAt(c.now(), ttl)
		touched = true
		return env, nil
	})
	if errors.Is(err, cachecore.ErrKeyNotFound) {
		return false, nil
	}
	return touched, err
}

// Increment applies delta with a revision check, retrying when another
// writer got there first. The expiry is kept.
func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	var next int64
	err := c.update(ctx, key, func(env envelope) (envelope, error) {
		cur, err := cachecore.ParseCounter(env.Value)
		if err != nil {
			return env, err
		}
		next, err = cachecore.AddCounter(cur, delta)
		if err != nil {
			return env, err
		}
		env.Value = cachecore.FormatCounter(next)
		return env, nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// update runs a compare-and-swap loop over a live key. A missing key yields
// cachecore.ErrKeyNotFound.
func (c *Client) update(ctx context.Context, key string, apply func(envelope) (envelope, error)) error {
	kv, err := c.bucketKV(ctx)
	if err != nil {
		return err
	}
	natsKey := encodeKey(key)
	for attempt := 0; attempt < casAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, rev, ok, err := c.load(kv, natsKey)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %q", cachecore.ErrKeyNotFound, key)
		}
		env, err = apply(env)
		if err != nil {
			return fmt.Errorf("cache key %q: %w", key, err)
		}
		body, err := json.Marshal(env)
		if err != nil {
			return err
		}
		_, err = kv.Update(natsKey, body, rev)
		if err == nil {
			return nil
		}
		if errors.Is(err, nats.ErrKeyExists) || isMiss(err) {
			continue
		}
		return err
	}
	return errors.New("nats update exceeded retry limit")
}

// Clear purges every key whose decoded form starts with prefix.
func (c *Client) Clear(ctx context.Context, prefix string) error {
	kv, err := c.bucketKV(ctx)
	if err != nil {
		return err
	}
	lister, err := kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	for natsKey := range lister.Keys() {
		key, ok := decodeKey(natsKey)
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := kv.Purge(natsKey); err != nil && !isMiss(err) {
			return err
		}
	}
	return nil
}

// jetStreamKV narrows nats.KeyValue to KeyValue.
type jetStreamKV struct {
	kv nats.KeyValue
}

func (j jetStreamKV) Get(key string) (nats.KeyValueEntry, error) { return j.kv.Get(key) }
func (j jetStreamKV) Put(key string, value []byte) (uint64, error) {
	return j.kv.Put(key, value)
}
func (j jetStreamKV) Update(key string, value []byte, last uint64) (uint64, error) {
	return j.kv.Update(key, value, last)
}
func (j jetStreamKV) Delete(key string, opts ...nats.DeleteOpt) error { return j.kv.Delete(key, opts...) }
func (j jetStreamKV) Purge(key string, opts ...nats.DeleteOpt) error  { return j.kv.Purge(key, opts...) }
func (j jetStreamKV) ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error) {
	return j.kv.ListKeys(opts...)
}

func isMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

// encodeKey maps arbitrary cache keys onto the NATS key alphabet.
func encodeKey(key string) string {
	return keyPrefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(natsKey string) (string, bool) {
	if !strings.HasPrefix(natsKey, keyPrefix) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(natsKey[len(keyPrefix):])
	if err != nil {
		return "", false
	}
	return string(raw), true
}
