package cachemaster

import "github.com/goforj/cachemaster/cachecore"

// Error taxonomy. Match with errors.Is.
var (
	ErrInvalidKey         = cachecore.ErrInvalidKey
	ErrConfiguration      = cachecore.ErrConfiguration
	ErrTypeMismatch       = cachecore.ErrTypeMismatch
	ErrKeyNotFound        = cachecore.ErrKeyNotFound
	ErrBackendUnavailable = cachecore.ErrBackendUnavailable
	ErrUsage              = cachecore.ErrUsage
	ErrNotInitialized     = cachecore.ErrNotInitialized
)
