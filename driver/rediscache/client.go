package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goforj/cachemaster/cachecore"
	"github.com/redis/go-redis/v9"
)

const (
	scanBatch   = 200
	pingTimeout = 5 * time.Second
)

// incrementScript fails with NOKEY instead of creating the key, which plain
// INCRBY would do. INCRBY keeps the key's TTL.
const incrementScript = `if redis.call('EXISTS', KEYS[1]) == 0 then return redis.error_reply('NOKEY') end
return redis.call('INCRBY', KEYS[1], ARGV[1])`

// setManyScript writes every key with one shared ttl in milliseconds.
// ARGV[1] is the ttl; ARGV[i+1] is the value for KEYS[i].
const setManyScript = `local ttl = tonumber(ARGV[1])
for i, key in ipairs(KEYS) do
	if ttl > 0 then
		redis.call('SET', key, ARGV[i + 1], 'PX', ttl)
	else
		redis.call('SET', key, ARGV[i + 1])
	end
end
return #KEYS`

// Cmdable captures the subset of redis.Client used by the client.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Persist(ctx context.Context, key string) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Client implements cachecore.RemoteClient on top of go-redis.
type Client struct {
	rdb Cmdable
}

var _ cachecore.RemoteClient = (*Client)(nil)

// New wraps an existing redis client. A nil rdb is allowed; every operation
// then returns an error.
func New(rdb Cmdable) *Client {
	return &Client{rdb: rdb}
}

// Open parses a redis://, rediss:// or unix:// URL and builds a client.
// No connection is made until the first command or Start.
func Open(rawURL string) (*Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %w", cachecore.ErrConfiguration, err)
	}
	return New(redis.NewClient(opts)), nil
}

// Handle returns the underlying go-redis client.
func (c *Client) Handle() any { return c.rdb }

// Start pings the server. Without a caller deadline it waits at most 5s.
func (c *Client) Start(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pingTimeout)
		defer cancel()
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// Close releases the connection pool. Closing twice is not an error.
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := c.ready(); err != nil {
		return nil, false, err
	}
	value, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, value, expiration(ttl)).Err()
}

func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Client) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if i >= len(keys) {
			break
		}
		switch body := v.(type) {
		case string:
			out[keys[i]] = []byte(body)
		case []byte:
			out[keys[i]] = body
		}
	}
	return out, nil
}

func (c *Client) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)+1)
	args = append(args, ttlMillis(ttl))
	for key, value := range items {
		keys = append(keys, key)
		args = append(args, value)
	}
	return c.rdb.Eval(ctx, setManyScript, keys, args...).Err()
}

func (c *Client) DeleteMany(ctx context.Context, keys []string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Has(ctx context.Context, key string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Touch sets a new ttl on an existing key; ttl <= 0 removes the expiry.
func (c *Client) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	if ttl > 0 {
		return c.rdb.Expire(ctx, key, ttl).Result()
	}
	// PERSIST reports false both for missing keys and keys without a ttl.
	ok, err := c.Has(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := c.rdb.Persist(ctx, key).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	n, err := c.rdb.Eval(ctx, incrementScript, []string{key}, strconv.FormatInt(delta, 10)).Int64()
	if err != nil {
		return 0, classifyIncrementErr(key, err)
	}
	return n, nil
}

// Clear deletes every key starting with prefix using SCAN, so it does not
// block the server the way KEYS would.
func (c *Client) Clear(ctx context.Context, prefix string) error {
	if err := c.ready(); err != nil {
		return err
	}
	pattern := escapeGlob(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *Client) ready() error {
	if c == nil || c.rdb == nil {
		return errors.New("redis cache client unavailable")
	}
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// ttlMillis converts ttl for the scripts. Positive values below one
// millisecond round up so they still expire.
func ttlMillis(ttl time.Duration) int64 {
	ms := expiration(ttl).Milliseconds()
	if ttl > 0 && ms < 1 {
		return 1
	}
	return ms
}

func classifyIncrementErr(key string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOKEY"):
		return fmt.Errorf("%w: %q", cachecore.ErrKeyNotFound, key)
	case strings.Contains(msg, "not an integer"), strings.Contains(msg, "overflow"):
		return fmt.Errorf("%w: %q: %s", cachecore.ErrTypeMismatch, key, msg)
	default:
		return err
	}
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
