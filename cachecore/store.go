package cachecore

import (
	"context"
	"time"
)

// Store is the unified cache contract implemented by the local and remote
// backends. Keys are logical keys; the store encodes them with its KeyCodec.
// A ttl <= 0 means the entry never expires.
type Store interface {
	Backend() Backend
	// Namespace returns a view of the same storage bound to ns.
	Namespace(ns string) (Store, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys ...string) error
	Has(ctx context.Context, key string) (bool, error)
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Decrement(ctx context.Context, key string, delta int64) (int64, error)
	// Clear removes every entry of the store, across namespaces.
	Clear(ctx context.Context) error
}

// RemoteClient is the contract a remote key-value driver provides.
// Keys are already encoded. Increment fails with ErrKeyNotFound when the key
// is absent and ErrTypeMismatch when the value is not an integer.
type RemoteClient interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys []string) error
	Has(ctx context.Context, key string) (bool, error)
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	// Clear removes every key starting with prefix.
	Clear(ctx context.Context, prefix string) error
	// Start establishes or verifies the connection. Repeated calls are allowed.
	Start(ctx context.Context) error
	Close() error
	// Handle returns the native client.
	Handle() any
}
