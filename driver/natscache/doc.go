// Package natscache stores cache entries in a NATS JetStream KeyValue bucket.
//
// Values are wrapped in a small JSON envelope holding the expiry, since the
// bucket has no per-key ttl. Counters use revision checks instead of locks.
//
//	client, err := natscache.Open("nats://127.0.0.1:4222/cache")
//	if err != nil {
//		return err
//	}
//	c, err := cachemaster.New(ctx, cachemaster.Config{
//		AppName:      "shop",
//		Backend:      cachemaster.BackendRemote,
//		RemoteClient: client,
//	})
package natscache
