package cachemaster

import "github.com/goforj/cachemaster/cachecore"

// Backend identifies which store a Cache routes to.
type Backend = cachecore.Backend

const (
	BackendLocal  = cachecore.BackendLocal
	BackendRemote = cachecore.BackendRemote
)

// Store is the unified contract shared by the local and remote backends.
type Store = cachecore.Store

// RemoteClient is the driver contract consumed by the remote store.
type RemoteClient = cachecore.RemoteClient

// KeyCodec builds validated storage keys.
type KeyCodec = cachecore.KeyCodec
