package cachemaster

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type remoteStore struct {
	client RemoteClient
	keys   KeyCodec
	logger Logger
}

// connector is implemented by stores that own a connection.
type connector interface {
	Start(ctx context.Context) error
	Close() error
	Client() RemoteClient
}

// NewRemoteStore adapts a remote driver to the Store contract. Every key is
// encoded with keys before it reaches the client, and transport failures
// surface as ErrBackendUnavailable. Nothing is retried.
// @group Constructors
//
// Example: remote store over redis
//
//	client, _ := rediscache.Open("redis://127.0.0.1:6379/0")
//	keys, _ := cachecore.NewKeyCodec("app", "", 0)
//	store := cachemaster.NewRemoteStore(client, keys, nil)
//	fmt.Println(store.Backend()) // remote
func NewRemoteStore(client RemoteClient, keys KeyCodec, logger Logger) Store {
	if logger == nil {
		logger = NopLogger{}
	}
	return &remoteStore{client: client, keys: keys, logger: logger}
}

func (s *remoteStore) Backend() Backend { return BackendRemote }

func (s *remoteStore) Namespace(ns string) (Store, error) {
	keys, err := s.keys.WithNamespace(ns)
	if err != nil {
		return nil, err
	}
	return &remoteStore{client: s.client, keys: keys, logger: s.logger}, nil
}

func (s *remoteStore) Client() RemoteClient { return s.client }

func (s *remoteStore) Start(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.translate("start", s.client.Start(ctx))
}

func (s *remoteStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.translate("close", s.client.Close())
}

func (s *remoteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	k, err := s.encode(key)
	if err != nil {
		return nil, false, err
	}
	body, ok, err := s.client.Get(ctx, k)
	if err != nil {
		return nil, false, s.translate("get", err)
	}
	return body, ok, nil
}

func (s *remoteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k, err := s.encode(key)
	if err != nil {
		return err
	}
	return s.translate("set", s.client.Set(ctx, k, value, normalizeTTL(ttl)))
}

// Add overwrites like Set and always reports true.
func (s *remoteStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *remoteStore) Delete(ctx context.Context, key string) (bool, error) {
	k, err := s.encode(key)
	if err != nil {
		return false, err
	}
	removed, err := s.client.Delete(ctx, k)
	return removed, s.translate("delete", err)
}

func (s *remoteStore) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	encoded, err := s.encodeMany(keys)
	if err != nil {
		return nil, err
	}
	if len(encoded) == 0 {
		return map[string][]byte{}, nil
	}
	found, err := s.client.GetMany(ctx, encoded)
	if err != nil {
		return nil, s.translate("get_many", err)
	}
	out := make(map[string][]byte, len(found))
	for i, k := range encoded {
		if body, ok := found[k]; ok {
			out[keys[i]] = body
		}
	}
	return out, nil
}

func (s *remoteStore) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}
	encoded := make(map[string][]byte, len(items))
	for key, value := range items {
		k, err := s.keys.Make(key)
		if err != nil {
			return err
		}
		encoded[k] = value
	}
	if len(encoded) == 0 {
		return nil
	}
	return s.translate("set_many", s.client.SetMany(ctx, encoded, normalizeTTL(ttl)))
}

func (s *remoteStore) DeleteMany(ctx context.Context, keys ...string) error {
	encoded, err := s.encodeMany(keys)
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}
	return s.translate("delete_many", s.client.DeleteMany(ctx, encoded))
}

func (s *remoteStore) Has(ctx context.Context, key string) (bool, error) {
	k, err := s.encode(key)
	if err != nil {
		return false, err
	}
	ok, err := s.client.Has(ctx, k)
	return ok, s.translate("has", err)
}

func (s *remoteStore) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k, err := s.encode(key)
	if err != nil {
		return false, err
	}
	ok, err := s.client.Touch(ctx, k, normalizeTTL(ttl))
	return ok, s.translate("touch", err)
}

func (s *remoteStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	k, err := s.encode(key)
	if err != nil {
		return 0, err
	}
	n, err := s.client.Increment(ctx, k, delta)
	if err != nil {
		return 0, s.translate("increment", err)
	}
	return n, nil
}

func (s *remoteStore) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return s.Increment(ctx, key, -delta)
}

// Clear removes every key of this app, across namespaces.
func (s *remoteStore) Clear(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.translate("clear", s.client.Clear(ctx, s.keys.Scope()))
}

func (s *remoteStore) ready() error {
	if s.client == nil {
		return fmt.Errorf("%w: remote cache client unavailable", ErrBackendUnavailable)
	}
	return nil
}

func (s *remoteStore) encode(key string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.keys.Make(key)
}

func (s *remoteStore) encodeMany(keys []string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.keys.MakeMany(keys)
}

// translate maps driver errors into the shared taxonomy. Errors that are
// already classified, and context cancellation, pass through untouched.
func (s *remoteStore) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrKeyNotFound),
		errors.Is(err, ErrTypeMismatch),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	s.logger.Warn("remote cache operation failed", Fields{"op": op, "error": err.Error()})
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
