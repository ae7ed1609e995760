package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// stubRedis is an in-memory Cmdable used for unit tests. It understands the
// two scripts the client evaluates.
type stubRedis struct {
	store map[string]string
	ttl   map[string]time.Time

	getErr  error
	setErr  error
	evalErr error
	scanErr error
	delErr  error
	pingErr error

	pings  int
	closed bool
}

func newStubRedis() *stubRedis {
	return &stubRedis{
		store: make(map[string]string),
		ttl:   make(map[string]time.Time),
	}
}

func (c *stubRedis) expireIfNeeded(key string) {
	if deadline, ok := c.ttl[key]; ok && !time.Now().Before(deadline) {
		delete(c.ttl, key)
		delete(c.store, key)
	}
}

func (c *stubRedis) put(key string, value interface{}, expiration time.Duration) {
	switch v := value.(type) {
	case []byte:
		c.store[key] = string(v)
	case string:
		c.store[key] = v
	default:
		c.store[key] = fmt.Sprint(v)
	}
	if expiration > 0 {
		c.ttl[key] = time.Now().Add(expiration)
	} else {
		delete(c.ttl, key)
	}
}

func (c *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if val, ok := c.store[key]; ok {
		cmd.SetVal(val)
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *stubRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if c.setErr != nil {
		cmd.SetErr(c.setErr)
		return cmd
	}
	c.put(key, value, expiration)
	cmd.SetVal("OK")
	return cmd
}

func (c *stubRedis) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	cmd := redis.NewSliceCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	vals := make([]interface{}, len(keys))
	for i, key := range keys {
		c.expireIfNeeded(key)
		if v, ok := c.store[key]; ok {
			vals[i] = v
		}
	}
	cmd.SetVal(vals)
	return cmd
}

func (c *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if c.delErr != nil {
		cmd.SetErr(c.delErr)
		return cmd
	}
	var removed int64
	for _, key := range keys {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok {
			delete(c.store, key)
			delete(c.ttl, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (c *stubRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, key := range keys {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (c *stubRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	c.expireIfNeeded(key)
	if _, ok := c.store[key]; !ok {
		cmd.SetVal(false)
		return cmd
	}
	c.ttl[key] = time.Now().Add(expiration)
	cmd.SetVal(true)
	return cmd
}

func (c *stubRedis) Persist(ctx context.Context, key string) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	c.expireIfNeeded(key)
	_, had := c.ttl[key]
	delete(c.ttl, key)
	cmd.SetVal(had)
	return cmd
}

func (c *stubRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if c.evalErr != nil {
		cmd.SetErr(c.evalErr)
		return cmd
	}
	switch script {
	case incrementScript:
		key := keys[0]
		c.expireIfNeeded(key)
		cur, ok := c.store[key]
		if !ok {
			cmd.SetErr(errors.New("NOKEY"))
			return cmd
		}
		n, err := strconv.ParseInt(cur, 10, 64)
		if err != nil {
			cmd.SetErr(errors.New("ERR value is not an integer or out of range"))
			return cmd
		}
		delta, _ := strconv.ParseInt(fmt.Sprint(args[0]), 10, 64)
		n += delta
		c.store[key] = strconv.FormatInt(n, 10)
		cmd.SetVal(n)
	case setManyScript:
		ms, _ := args[0].(int64)
		for i, key := range keys {
			c.put(key, args[i+1], time.Duration(ms)*time.Millisecond)
		}
		cmd.SetVal(int64(len(keys)))
	default:
		cmd.SetErr(errors.New("NOSCRIPT unknown script"))
	}
	return cmd
}

func (c *stubRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	if c.scanErr != nil {
		cmd.SetErr(c.scanErr)
		return cmd
	}
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for key := range c.store {
		c.expireIfNeeded(key)
		if _, ok := c.store[key]; ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	cmd.SetVal(keys, 0)
	return cmd
}

func (c *stubRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	c.pings++
	if c.pingErr != nil {
		cmd.SetErr(c.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func (c *stubRedis) Close() error {
	if c.closed {
		return redis.ErrClosed
	}
	c.closed = true
	return nil
}
