package cachecore

import (
	"fmt"
	"strings"
)

// Backend identifies which store a cache routes to.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// ParseBackend maps a configuration string to a Backend.
// "memory" and "redis" are accepted as aliases.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local", "memory":
		return BackendLocal, nil
	case "remote", "redis":
		return BackendRemote, nil
	default:
		return "", fmt.Errorf("%w: unknown backend %q", ErrConfiguration, s)
	}
}

func (b Backend) String() string { return string(b) }
