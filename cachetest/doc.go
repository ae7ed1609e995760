// Package cachetest provides reusable contract suites for cache stores and
// remote drivers.
//
// Driver packages run RunRemoteClientContract against a live or stubbed
// backend; store implementations run RunStoreContract. The package depends
// only on cachecore, so driver tests can import it without cycles.
//
// Example pattern (driver test):
//
//	func TestRedisClientContract(t *testing.T) {
//		client, err := rediscache.Open(redisURL)
//		if err != nil {
//			t.Fatalf("open redis: %v", err)
//		}
//		t.Cleanup(func() { _ = client.Close() })
//
//		cachetest.RunRemoteClientContract(t, client, cachetest.Options{
//			TTL:     time.Second,
//			TTLWait: 1500 * time.Millisecond,
//		})
//	}
package cachetest
