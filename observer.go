package cachemaster

import (
	"context"
	"time"
)

// Observer receives events for cache operations.
// It is called from Cache methods after each operation completes.
type Observer interface {
	OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, backend Backend)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, backend Backend)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op string, key string, hit bool, err error, dur time.Duration, backend Backend) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur, backend)
}
