package cachemaster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/goforj/cachemaster/codec"
)

const (
	memoKeyPrefix  = "memo:"
	memoNameMaxLen = 64
)

// Result carries the outcome of an asynchronous computation.
type Result[R any] struct {
	Value R
	Err   error
}

type memoConfig[R any] struct {
	name  string
	codec codec.Codec[R]
}

// MemoOption customizes Memoize and MemoizeAsync.
type MemoOption[R any] func(*memoConfig[R])

// WithName overrides the function identity used in memo keys. Use it for
// closures, whose runtime name is shared by every closure of the same literal
// and is not stable across builds.
func WithName[R any](name string) MemoOption[R] {
	return func(c *memoConfig[R]) { c.name = name }
}

// WithCodec sets the codec for stored results. Defaults to msgpack.
func WithCodec[R any](cd codec.Codec[R]) MemoOption[R] {
	return func(c *memoConfig[R]) { c.codec = cd }
}

// memoizer holds everything a wrapped call needs besides the user function.
type memoizer[A, R any] struct {
	cache *Cache
	name  string
	codec codec.Codec[R]
	args  codec.CBOR[A]
	// dynamic is set when A holds interface values checked per call.
	dynamic bool
}

func newMemoizer[A, R any](c *Cache, namespace string, fn any, opts []MemoOption[R]) (*memoizer[A, R], error) {
	if c == nil {
		return nil, fmt.Errorf("%w: memoize requires a cache", ErrUsage)
	}
	if fn == nil || reflect.ValueOf(fn).IsNil() {
		return nil, fmt.Errorf("%w: memoize requires a function", ErrUsage)
	}
	cfg := memoConfig[R]{codec: codec.Msgpack[R]{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	}
	scoped, err := c.Namespace(namespace)
	if err != nil {
		return nil, err
	}
	dynamic, err := checkArgType(reflect.TypeFor[A](), map[reflect.Type]bool{})
	if err != nil {
		return nil, fmt.Errorf("%w: memoize %s: arguments are not serializable: %w", ErrUsage, cfg.name, err)
	}
	args, err := codec.NewCBOR[A](true)
	if err != nil {
		return nil, err
	}
	return &memoizer[A, R]{cache: scoped, name: cfg.name, codec: cfg.codec, args: args, dynamic: dynamic}, nil
}

// key hashes the function identity with the deterministic CBOR encoding of
// arg. Every field of arg takes part; types that would encode lossily are
// rejected with ErrUsage.
func (m *memoizer[A, R]) key(arg A) (string, error) {
	if m.dynamic {
		if err := checkArgValue(reflect.ValueOf(&arg).Elem(), 0); err != nil {
			return "", fmt.Errorf("%w: memoize %s: arguments are not serializable: %w", ErrUsage, m.name, err)
		}
	}
	body, err := m.args.Encode(arg)
	if err != nil {
		return "", fmt.Errorf("%w: memoize %s: arguments are not serializable: %w", ErrUsage, m.name, err)
	}
	h := sha256.New()
	h.Write([]byte(m.name))
	h.Write([]byte{0})
	h.Write(body)
	return memoKeyPrefix + shortFuncName(m.name) + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

func (m *memoizer[A, R]) lookup(ctx context.Context, key string) (R, bool, error) {
	var zero R
	body, ok, err := m.cache.GetCtx(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := m.codec.Decode(body)
	if err != nil {
		m.cache.logger.Warn("discarding undecodable memoized result", Fields{"func": m.name, "key": key, "error": err.Error()})
		return zero, false, nil
	}
	return v, true, nil
}

func (m *memoizer[A, R]) store(ctx context.Context, key string, v R, ttl time.Duration) error {
	body, err := m.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("memoize %s: encode result: %w", m.name, err)
	}
	return m.cache.SetCtx(ctx, key, body, ttl)
}

// Memoize wraps fn so results are cached per distinct argument under
// namespace for ttl. A hit returns the stored result without calling fn;
// errors from fn are returned and never cached. Concurrent misses for the
// same argument may both call fn, and the last write wins.
//
// Multiple parameters are passed as one struct value. Arguments that cannot
// be encoded deterministically fail with ErrUsage, including structs with
// unexported fields.
//
// The function identity defaults to the runtime name of fn. Closures created
// from the same function literal share that name, so two such closures over
// different captured state in one namespace share entries; give each a
// distinct WithName.
// @group Memoize
//
// Example: memoize a lookup
//
//	lookup, _ := cachemaster.Memoize(c, "users", time.Minute,
//		func(ctx context.Context, id int) (string, error) {
//			return db.UserName(ctx, id)
//		})
//	name, err := lookup(ctx, 42) // second call with 42 is served from cache
func Memoize[A, R any](c *Cache, namespace string, ttl time.Duration, fn func(context.Context, A) (R, error), opts ...MemoOption[R]) (func(context.Context, A) (R, error), error) {
	m, err := newMemoizer[A, R](c, namespace, fn, opts)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, arg A) (R, error) {
		var zero R
		key, err := m.key(arg)
		if err != nil {
			return zero, err
		}
		if v, ok, err := m.lookup(ctx, key); err != nil || ok {
			return v, err
		}
		v, err := fn(ctx, arg)
		if err != nil {
			return zero, err
		}
		if err := m.store(ctx, key, v, ttl); err != nil {
			return zero, err
		}
		return v, nil
	}, nil
}

// MemoizeAsync is Memoize for functions that deliver their result on a
// channel. The wrapped function keeps that shape: it returns a channel that
// yields exactly one Result, on a hit as well as on a miss. The cache is only
// touched before fn is called and after its result arrives.
// @group Memoize
func MemoizeAsync[A, R any](c *Cache, namespace string, ttl time.Duration, fn func(context.Context, A) <-chan Result[R], opts ...MemoOption[R]) (func(context.Context, A) <-chan Result[R], error) {
	m, err := newMemoizer[A, R](c, namespace, fn, opts)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, arg A) <-chan Result[R] {
		out := make(chan Result[R], 1)
		key, err := m.key(arg)
		if err != nil {
			out <- Result[R]{Err: err}
			close(out)
			return out
		}
		if v, ok, err := m.lookup(ctx, key); err != nil || ok {
			out <- Result[R]{Value: v, Err: err}
			close(out)
			return out
		}
		pending := fn(ctx, arg)
		if pending == nil {
			out <- Result[R]{Err: fmt.Errorf("%w: memoize %s: function returned a nil result channel", ErrUsage, m.name)}
			close(out)
			return out
		}
		go func() {
			defer close(out)
			var res Result[R]
			select {
			case r, ok := <-pending:
				if !ok {
					r.Err = fmt.Errorf("%w: memoize %s: result channel closed without a value", ErrUsage, m.name)
				}
				res = r
			case <-ctx.Done():
				res.Err = ctx.Err()
			}
			if res.Err == nil {
				if err := m.store(ctx, key, res.Value, ttl); err != nil {
					res = Result[R]{Err: err}
				}
			}
			out <- res
		}()
		return out
	}, nil
}

func shortFuncName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
	if len(name) > memoNameMaxLen {
		name = strings.ToValidUTF8(name[:memoNameMaxLen], "")
	}
	if name == "" {
		name = "func"
	}
	return name
}
