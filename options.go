package cachemaster

// Option mutates Config when constructing a cache or a registry.
type Option func(Config) Config

// WithAppName sets the key prefix shared by every namespace.
func WithAppName(name string) Option {
	return func(cfg Config) Config {
		cfg.AppName = name
		return cfg
	}
}

// WithBackend selects the local or remote store.
func WithBackend(b Backend) Option {
	return func(cfg Config) Config {
		cfg.Backend = b
		return cfg
	}
}

// WithRemoteURL sets the remote endpoint; required for BackendRemote unless
// a client is supplied with WithRemoteClient.
func WithRemoteURL(url string) Option {
	return func(cfg Config) Config {
		cfg.RemoteURL = url
		return cfg
	}
}

// WithRemoteClient supplies a ready remote driver.
func WithRemoteClient(client RemoteClient) Option {
	return func(cfg Config) Config {
		cfg.RemoteClient = client
		return cfg
	}
}

// WithMaxKeyLength overrides the encoded key length limit.
func WithMaxKeyLength(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxKeyLength = n
		return cfg
	}
}

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(cfg Config) Config {
		cfg.Logger = l
		return cfg
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}
