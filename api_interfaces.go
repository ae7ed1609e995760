package cachemaster

import (
	"context"
	"time"
)

// CoreAPI exposes basic cache metadata.
type CoreAPI interface {
	Backend() Backend
	AppName() string
}

// ReadAPI exposes read-oriented cache operations.
type ReadAPI interface {
	Get(key string) ([]byte, bool, error)
	GetCtx(ctx context.Context, key string) ([]byte, bool, error)
	GetString(key string) (string, bool, error)
	GetStringCtx(ctx context.Context, key string) (string, bool, error)
	GetMany(keys ...string) (map[string][]byte, error)
	GetManyCtx(ctx context.Context, keys ...string) (map[string][]byte, error)
	Has(key string) (bool, error)
	HasCtx(ctx context.Context, key string) (bool, error)
}

// WriteAPI exposes write and invalidation operations.
type WriteAPI interface {
	Set(key string, value []byte, ttl time.Duration) error
	SetCtx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetString(key string, value string, ttl time.Duration) error
	SetStringCtx(ctx context.Context, key string, value string, ttl time.Duration) error
	SetMany(items map[string][]byte, ttl time.Duration) error
	SetManyCtx(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	Add(key string, value []byte, ttl time.Duration) (bool, error)
	AddCtx(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(key string) (bool, error)
	DeleteCtx(ctx context.Context, key string) (bool, error)
	DeleteMany(keys ...string) error
	DeleteManyCtx(ctx context.Context, keys ...string) error
	Touch(key string, ttl time.Duration) (bool, error)
	TouchCtx(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Clear() error
	ClearCtx(ctx context.Context) error
}

// CounterAPI exposes increment/decrement operations.
type CounterAPI interface {
	Increment(key string, delta int64) (int64, error)
	IncrementCtx(ctx context.Context, key string, delta int64) (int64, error)
	Decrement(key string, delta int64) (int64, error)
	DecrementCtx(ctx context.Context, key string, delta int64) (int64, error)
}

// RememberAPI exposes read-through helpers.
type RememberAPI interface {
	Remember(key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)
	RememberCtx(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error)
}

// ConnectionAPI exposes the remote connection lifecycle.
type ConnectionAPI interface {
	Start(ctx context.Context) error
	Close() error
	RemoteClient() (RemoteClient, error)
}

// CacheAPI is the composed application-facing interface for Cache.
type CacheAPI interface {
	CoreAPI
	ReadAPI
	WriteAPI
	CounterAPI
	RememberAPI
	ConnectionAPI
}

var _ CacheAPI = (*Cache)(nil)
