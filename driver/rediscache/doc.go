// Package rediscache provides a Redis-backed cachecore.RemoteClient.
//
// Example:
//
//	import (
//		"github.com/goforj/cachemaster"
//		"github.com/goforj/cachemaster/driver/rediscache"
//	)
//
//	client, err := rediscache.Open("redis://127.0.0.1:6379/0")
//	if err != nil {
//		panic(err)
//	}
//	c, _ := cachemaster.New(ctx, cachemaster.Config{
//		Backend:      cachemaster.BackendRemote,
//		RemoteClient: client,
//	})
package rediscache
