package natscache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goforj/cachemaster/cachecore"
	"github.com/goforj/cachemaster/cachetest"
)

func TestClientContractWithStub(t *testing.T) {
	cachetest.RunRemoteClientContract(t, New(newStubKeyValue()), cachetest.Options{})
}

func TestNilKeyValueErrors(t *testing.T) {
	c := New(nil)
	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected get error when key-value is nil")
	}
}

func TestOpenParsesBucket(t *testing.T) {
	c, err := Open("nats://127.0.0.1:4222/sessions")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if c.bucket != "sessions" || c.server != "nats://127.0.0.1:4222" {
		t.Fatalf("unexpected parse: server=%q bucket=%q", c.server, c.bucket)
	}
	c, err = Open("nats://127.0.0.1:4222")
	if err != nil || c.bucket != defaultBucket {
		t.Fatalf("expected default bucket, got %q err=%v", c.bucket, err)
	}
	if _, err := Open("redis://x"); !errors.Is(err, cachecore.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if c.Handle() != nil {
		t.Fatalf("expected no bound bucket before start")
	}
}

func TestKeysAreEncoded(t *testing.T) {
	key := "app:ns:user 1/é"
	enc := encodeKey(key)
	for _, r := range enc[len(keyPrefix):] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			t.Fatalf("unexpected rune %q in %q", r, enc)
		}
	}
	got, ok := decodeKey(enc)
	if !ok || got != key {
		t.Fatalf("round-trip failed: %q ok=%v", got, ok)
	}
	if _, ok := decodeKey("other"); ok {
		t.Fatalf("expected foreign key to be rejected")
	}
}

func TestExpiredEntryIsPurged(t *testing.T) {
	ctx := context.Background()
	kv := newStubKeyValue()
	c := New(kv)
	now := time.Now()
	c.now = func() time.Time { return now }
	if err := c.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	c.now = func() time.Time { return now.Add(2 * time.Second) }
	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expired miss; ok=%v err=%v", ok, err)
	}
	if _, ok := kv.entries[encodeKey("k")]; ok {
		t.Fatalf("expected expired entry purged")
	}
}

func TestZeroTTLStoresNoExpiry(t *testing.T) {
	kv := newStubKeyValue()
	c := New(kv)
	if err := c.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(kv.entries[encodeKey("k")].value, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.ExpiresAt != 0 {
		t.Fatalf("expected ea=0, got %d", env.ExpiresAt)
	}
}

func TestIncrementRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	kv := newStubKeyValue()
	c := New(kv)
	if err := c.Set(ctx, "n", []byte("1"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	kv.conflicts = 3
	n, err := c.Increment(ctx, "n", 1)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 after retries, got %d err=%v", n, err)
	}
}

func TestIncrementGivesUpAfterRetryLimit(t *testing.T) {
	ctx := context.Background()
	kv := newStubKeyValue()
	c := New(kv)
	_ = c.Set(ctx, "n", []byte("1"), 0)
	kv.conflicts = casAttempts + 1
	if _, err := c.Increment(ctx, "n", 1); err == nil {
		t.Fatalf("expected retry limit error")
	}
}

func TestClearRespectsPrefix(t *testing.T) {
	ctx := context.Background()
	c := New(newStubKeyValue())
	_ = c.Set(ctx, "app:a", []byte("1"), 0)
	_ = c.Set(ctx, "other:a", []byte("1"), 0)
	if err := c.Clear(ctx, "app:"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if ok, _ := c.Has(ctx, "app:a"); ok {
		t.Fatalf("expected app key cleared")
	}
	if ok, _ := c.Has(ctx, "other:a"); !ok {
		t.Fatalf("expected other key kept")
	}
}

func TestErrorPropagation(t *testing.T) {
	ctx := context.Background()
	kv := newStubKeyValue()
	c := New(kv)
	boom := errors.New("boom")
	kv.putErr = boom
	if err := c.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, boom) {
		t.Fatalf("expected put error, got %v", err)
	}
	kv.putErr = nil
	kv.listErr = boom
	if err := c.Clear(ctx, "app:"); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	if err := New(newStubKeyValue()).Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
