package cachecore

import "errors"

var (
	// ErrInvalidKey reports an empty, oversized or malformed cache key.
	ErrInvalidKey = errors.New("cache: invalid key")
	// ErrConfiguration reports a missing or invalid backend parameter.
	ErrConfiguration = errors.New("cache: configuration error")
	// ErrTypeMismatch reports a counter operation on a non-numeric value.
	ErrTypeMismatch = errors.New("cache: value is not an integer")
	// ErrKeyNotFound reports a counter operation on an absent key.
	ErrKeyNotFound = errors.New("cache: key not found")
	// ErrBackendUnavailable reports a remote transport failure.
	ErrBackendUnavailable = errors.New("cache: backend unavailable")
	// ErrUsage reports an API misuse such as a zero-value registry.
	ErrUsage = errors.New("cache: usage error")
	// ErrNotInitialized reports a remote accessor used without a remote backend.
	ErrNotInitialized = errors.New("cache: remote cache is not initialized")
)
