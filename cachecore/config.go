package cachecore

import "time"

const (
	// DefaultPrefix is the app name used when none is configured.
	DefaultPrefix = "app"
	// DefaultMaxKeyLength bounds the encoded key length.
	DefaultMaxKeyLength = 250
)

// ExpiresAt converts a relative ttl into unix milliseconds.
// Zero means the entry never expires.
func ExpiresAt(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixMilli()
}

// Expired reports whether an absolute unix-milli expiry has passed.
func Expired(now time.Time, expiresAt int64) bool {
	return expiresAt > 0 && now.UnixMilli() >= expiresAt
}
