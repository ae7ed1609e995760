package cachemaster

import (
	"fmt"

	"github.com/goforj/cachemaster/cachecore"
)

// Config controls how a Cache is constructed.
type Config struct {
	// AppName prefixes every key. Defaults to "app".
	AppName string

	// Backend selects the store. Defaults to BackendLocal.
	Backend Backend

	// RemoteURL selects and configures the remote driver by scheme
	// (redis, rediss, unix, nats, postgres, mysql, sqlite, dynamodb).
	RemoteURL string

	// RemoteClient is used instead of dialing RemoteURL when set.
	RemoteClient RemoteClient

	// MaxKeyLength bounds the encoded key length in bytes.
	MaxKeyLength int

	Logger   Logger
	Observer Observer
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = cachecore.DefaultPrefix
	}
	if c.Backend == "" {
		c.Backend = BackendLocal
	}
	if c.MaxKeyLength <= 0 {
		c.MaxKeyLength = cachecore.DefaultMaxKeyLength
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	return c
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendLocal:
		return nil
	case BackendRemote:
		if c.RemoteURL == "" && c.RemoteClient == nil {
			return fmt.Errorf("%w: remote URL is missing; pass RemoteURL", ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrConfiguration, c.Backend)
	}
}

func applyOptions(cfg Config, opts []Option) Config {
	for _, opt := range opts {
		if opt != nil {
			cfg = opt(cfg)
		}
	}
	return cfg
}
