package cachemaster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle stage of a Registry.
type State int32

const (
	StateAbsent State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Builder constructs the cache a Registry holds. New is the default.
type Builder func(ctx context.Context, cfg Config, opts ...Option) (*Cache, error)

// Registry holds at most one shared Cache. It is created lazily on first use
// and discarded by CloseConnection. Create registries with NewRegistry; the
// zero value reports ErrUsage from every method.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Cache]
	state   atomic.Int32
	build   Builder
	opts    []Option
	logger  Logger
}

// NewRegistry returns an empty registry. opts apply to every cache it builds.
// @group Lifecycle
//
// Example: one cache per application
//
//	reg := cachemaster.NewRegistry(cachemaster.WithLogger(logger))
//	c, err := reg.StartConnection(ctx, cachemaster.Config{
//		AppName:   "shop",
//		Backend:   cachemaster.BackendRemote,
//		RemoteURL: os.Getenv("CACHE_REMOTE_URL"),
//	})
//	defer reg.CloseConnection()
func NewRegistry(opts ...Option) *Registry {
	return NewRegistryWithBuilder(New, opts...)
}

// NewRegistryWithBuilder is NewRegistry with a custom constructor.
// @group Lifecycle
func NewRegistryWithBuilder(build Builder, opts ...Option) *Registry {
	if build == nil {
		build = New
	}
	logger := applyOptions(Config{}, opts).Logger
	if logger == nil {
		logger = NopLogger{}
	}
	return &Registry{build: build, opts: opts, logger: logger}
}

// State reports the lifecycle stage.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// Current returns the held cache without creating one.
func (r *Registry) Current() (*Cache, bool) {
	c := r.current.Load()
	return c, c != nil
}

// Instance returns the held cache, building it from cfg on first use.
// Concurrent first calls build exactly once; later calls ignore cfg.
// @group Lifecycle
func (r *Registry) Instance(ctx context.Context, cfg Config) (*Cache, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	if c := r.current.Load(); c != nil {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.current.Load(); c != nil {
		return c, nil
	}

	r.state.Store(int32(StateInitializing))
	r.logger.Debug("initializing shared cache instance", Fields{"app": cfg.AppName, "backend": string(cfg.Backend)})
	c, err := r.build(ctx, cfg, r.opts...)
	if err != nil {
		r.state.Store(int32(StateAbsent))
		return nil, err
	}
	if c == nil {
		r.state.Store(int32(StateAbsent))
		return nil, fmt.Errorf("%w: builder returned no cache", ErrUsage)
	}
	r.current.Store(c)
	r.state.Store(int32(StateReady))
	return c, nil
}

// StartConnection ensures an instance exists and, for a remote backend,
// starts its connection. Repeated calls are allowed.
// @group Lifecycle
func (r *Registry) StartConnection(ctx context.Context, cfg Config) (*Cache, error) {
	c, err := r.Instance(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c.Backend() == BackendRemote {
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CloseConnection closes a remote backend and resets the registry to
// absent. The instance is discarded even when closing fails. It is a no-op
// when nothing is held.
// @group Lifecycle
func (r *Registry) CloseConnection() error {
	if err := r.usable(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.current.Load()
	if c == nil {
		return nil
	}
	var err error
	if c.Backend() == BackendRemote {
		err = c.Close()
	}
	r.current.Store(nil)
	r.state.Store(int32(StateAbsent))
	r.logger.Debug("shared cache instance released", Fields{"app": c.AppName(), "error": errString(err)})
	return err
}

// RemoteClient returns the remote driver of the shared instance, creating a
// remote instance for appName when none exists. It fails with
// ErrNotInitialized when the instance is local or cannot be built.
// @group Lifecycle
func (r *Registry) RemoteClient(ctx context.Context, appName string) (RemoteClient, error) {
	c, err := r.Instance(ctx, Config{AppName: appName, Backend: BackendRemote})
	if err != nil {
		if err == errZeroRegistry {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	return c.RemoteClient()
}

var errZeroRegistry = fmt.Errorf("%w: use NewRegistry instead of instantiating Registry directly", ErrUsage)

func (r *Registry) usable() error {
	if r == nil || r.build == nil {
		return errZeroRegistry
	}
	return nil
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the package helpers.
func Default() *Registry { return defaultRegistry }

// Instance calls Default().Instance.
func Instance(ctx context.Context, cfg Config) (*Cache, error) {
	return defaultRegistry.Instance(ctx, cfg)
}

// StartConnection calls Default().StartConnection.
func StartConnection(ctx context.Context, cfg Config) (*Cache, error) {
	return defaultRegistry.StartConnection(ctx, cfg)
}

// CloseConnection calls Default().CloseConnection.
func CloseConnection() error {
	return defaultRegistry.CloseConnection()
}

// GetRemoteClient calls Default().RemoteClient.
func GetRemoteClient(ctx context.Context, appName string) (RemoteClient, error) {
	return defaultRegistry.RemoteClient(ctx, appName)
}
