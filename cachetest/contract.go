package cachetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goforj/cachemaster/cachecore"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipClear disables the clear assertion for backends where it is expensive
	// or shared with other tests.
	SkipClear bool
}

func (o Options) withDefaults(t *testing.T) Options {
	if o.CaseName == "" {
		o.CaseName = t.Name()
	}
	if o.TTL <= 0 {
		o.TTL = 50 * time.Millisecond
	}
	if o.TTLWait <= 0 {
		o.TTLWait = 120 * time.Millisecond
	}
	return o
}

// Store is the contract exercised by RunStoreContract.
type Store = cachecore.Store

// RunStoreContract runs a backend-agnostic suite against a Store. Keys are
// logical; the store encodes them.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()
	opts = opts.withDefaults(t)

	ns, err := store.Namespace(sanitize(opts.CaseName))
	if err != nil {
		t.Fatalf("namespace failed: %v", err)
	}
	store = ns
	ctx := context.Background()

	// Set/Get round-trip.
	if err := store.Set(ctx, "alpha", []byte("value"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "alpha")
	if err != nil || !ok || string(body) != "value" {
		t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
	}
	if !opts.SkipCloneCheck {
		body[0] = 'X'
		body2, ok2, err2 := store.Get(ctx, "alpha")
		if err2 != nil || !ok2 || string(body2) != "value" {
			t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
		}
	}
	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss for unknown key; ok=%v err=%v", ok, err)
	}

	// Invalid keys never reach the backend.
	if _, _, err := store.Get(ctx, "has space"); !errors.Is(err, cachecore.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if err := store.Set(ctx, "", []byte("x"), 0); !errors.Is(err, cachecore.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for empty key, got %v", err)
	}

	// TTL expiry.
	if err := store.Set(ctx, "ttl", []byte("v"), opts.TTL); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	if err := waitForMiss(ctx, store, "ttl", opts.TTLWait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}

	// Add overwrites.
	if added, err := store.Add(ctx, "once", []byte("first"), time.Minute); err != nil || !added {
		t.Fatalf("add first failed: added=%v err=%v", added, err)
	}
	if added, err := store.Add(ctx, "once", []byte("second"), time.Minute); err != nil || !added {
		t.Fatalf("add second failed: added=%v err=%v", added, err)
	}
	if body, _, _ := store.Get(ctx, "once"); string(body) != "second" {
		t.Fatalf("expected add to overwrite, got %q", string(body))
	}

	// Has and Delete.
	if ok, err := store.Has(ctx, "once"); err != nil || !ok {
		t.Fatalf("expected has=true; ok=%v err=%v", ok, err)
	}
	if removed, err := store.Delete(ctx, "once"); err != nil || !removed {
		t.Fatalf("expected delete to remove key; removed=%v err=%v", removed, err)
	}
	if removed, err := store.Delete(ctx, "once"); err != nil || removed {
		t.Fatalf("expected second delete to report false; removed=%v err=%v", removed, err)
	}
	if ok, err := store.Has(ctx, "once"); err != nil || ok {
		t.Fatalf("expected has=false after delete; ok=%v err=%v", ok, err)
	}

	// Batches.
	if err := store.SetMany(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, time.Minute); err != nil {
		t.Fatalf("set many failed: %v", err)
	}
	got, err := store.GetMany(ctx, "a", "b", "c")
	if err != nil {
		t.Fatalf("get many failed: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Fatalf("unexpected get many result: %v", got)
	}
	if _, ok := got["c"]; ok {
		t.Fatalf("expected missing key omitted from get many")
	}
	if err := store.DeleteMany(ctx, "a", "b"); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if got, err := store.GetMany(ctx, "a", "b"); err != nil || len(got) != 0 {
		t.Fatalf("expected batch deleted; got=%v err=%v", got, err)
	}
	if got, err := store.GetMany(ctx); err != nil || len(got) != 0 {
		t.Fatalf("expected empty get many; got=%v err=%v", got, err)
	}

	// Touch.
	if touched, err := store.Touch(ctx, "nope", time.Minute); err != nil || touched {
		t.Fatalf("expected touch on missing key to report false; touched=%v err=%v", touched, err)
	}
	if err := store.Set(ctx, "touch", []byte("t"), opts.TTL); err != nil {
		t.Fatalf("set touch failed: %v", err)
	}
	if touched, err := store.Touch(ctx, "touch", time.Minute); err != nil || !touched {
		t.Fatalf("expected touch to extend ttl; touched=%v err=%v", touched, err)
	}
	time.Sleep(opts.TTLWait)
	if _, ok, err := store.Get(ctx, "touch"); err != nil || !ok {
		t.Fatalf("expected touched key to survive original ttl; ok=%v err=%v", ok, err)
	}

	// Counters.
	if _, err := store.Increment(ctx, "counter", 1); !errors.Is(err, cachecore.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for missing counter, got %v", err)
	}
	if err := store.Set(ctx, "counter", []byte("5"), time.Minute); err != nil {
		t.Fatalf("set counter failed: %v", err)
	}
	if n, err := store.Increment(ctx, "counter", 3); err != nil || n != 8 {
		t.Fatalf("expected increment=8, got %d err=%v", n, err)
	}
	if n, err := store.Decrement(ctx, "counter", 10); err != nil || n != -2 {
		t.Fatalf("expected decrement=-2, got %d err=%v", n, err)
	}
	if body, _, _ := store.Get(ctx, "counter"); string(body) != "-2" {
		t.Fatalf("expected counter stored as decimal text, got %q", string(body))
	}
	if err := store.Set(ctx, "word", []byte("abc"), time.Minute); err != nil {
		t.Fatalf("set word failed: %v", err)
	}
	if _, err := store.Increment(ctx, "word", 1); !errors.Is(err, cachecore.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}

	// Namespaces isolate keys.
	other, err := store.Namespace(sanitize(opts.CaseName) + "-other")
	if err != nil {
		t.Fatalf("other namespace failed: %v", err)
	}
	if _, ok, err := other.Get(ctx, "counter"); err != nil || ok {
		t.Fatalf("expected namespace isolation; ok=%v err=%v", ok, err)
	}

	// Clear.
	if !opts.SkipClear {
		if err := other.Set(ctx, "flush", []byte("x"), time.Minute); err != nil {
			t.Fatalf("set flush failed: %v", err)
		}
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		for _, probe := range []struct {
			s   Store
			key string
		}{{store, "counter"}, {other, "flush"}} {
			if _, ok, err := probe.s.Get(ctx, probe.key); err != nil || ok {
				t.Fatalf("expected clear to remove %q; ok=%v err=%v", probe.key, ok, err)
			}
		}
	}
}

// RemoteClient is the contract exercised by RunRemoteClientContract.
type RemoteClient = cachecore.RemoteClient

// RunRemoteClientContract runs the raw driver suite. Keys are passed through
// as-is, so every key is prefixed with the case name.
func RunRemoteClientContract(t *testing.T, client RemoteClient, opts Options) {
	t.Helper()
	opts = opts.withDefaults(t)

	ctx := context.Background()
	prefix := "contract:" + sanitize(opts.CaseName) + ":"
	key := func(s string) string { return prefix + s }

	if err := client.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := client.Set(ctx, key("alpha"), []byte("value"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := client.Get(ctx, key("alpha"))
	if err != nil || !ok || string(body) != "value" {
		t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
	}
	if _, ok, err := client.Get(ctx, key("missing")); err != nil || ok {
		t.Fatalf("expected miss; ok=%v err=%v", ok, err)
	}

	if err := client.Set(ctx, key("ttl"), []byte("v"), opts.TTL); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	deadline := time.Now().Add(opts.TTLWait)
	for {
		_, ok, err := client.Get(ctx, key("ttl"))
		if err != nil {
			t.Fatalf("get ttl failed: %v", err)
		}
		if !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("key still present after %s", opts.TTLWait)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if removed, err := client.Delete(ctx, key("alpha")); err != nil || !removed {
		t.Fatalf("expected delete=true; removed=%v err=%v", removed, err)
	}
	if removed, err := client.Delete(ctx, key("alpha")); err != nil || removed {
		t.Fatalf("expected delete=false; removed=%v err=%v", removed, err)
	}

	if err := client.SetMany(ctx, map[string][]byte{key("a"): []byte("1"), key("b"): []byte("2")}, 0); err != nil {
		t.Fatalf("set many failed: %v", err)
	}
	got, err := client.GetMany(ctx, []string{key("a"), key("b"), key("c")})
	if err != nil || len(got) != 2 || string(got[key("a")]) != "1" || string(got[key("b")]) != "2" {
		t.Fatalf("unexpected get many: got=%v err=%v", got, err)
	}
	if ok, err := client.Has(ctx, key("a")); err != nil || !ok {
		t.Fatalf("expected has=true; ok=%v err=%v", ok, err)
	}
	if touched, err := client.Touch(ctx, key("a"), time.Minute); err != nil || !touched {
		t.Fatalf("expected touch=true; touched=%v err=%v", touched, err)
	}
	if touched, err := client.Touch(ctx, key("zzz"), time.Minute); err != nil || touched {
		t.Fatalf("expected touch=false; touched=%v err=%v", touched, err)
	}
	if err := client.DeleteMany(ctx, []string{key("a"), key("b")}); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if ok, err := client.Has(ctx, key("b")); err != nil || ok {
		t.Fatalf("expected has=false; ok=%v err=%v", ok, err)
	}

	if _, err := client.Increment(ctx, key("n"), 1); !errors.Is(err, cachecore.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := client.Set(ctx, key("n"), []byte("41"), time.Minute); err != nil {
		t.Fatalf("set counter failed: %v", err)
	}
	if n, err := client.Increment(ctx, key("n"), 1); err != nil || n != 42 {
		t.Fatalf("expected 42, got %d err=%v", n, err)
	}
	if n, err := client.Increment(ctx, key("n"), -50); err != nil || n != -8 {
		t.Fatalf("expected -8, got %d err=%v", n, err)
	}
	if err := client.Set(ctx, key("word"), []byte("abc"), time.Minute); err != nil {
		t.Fatalf("set word failed: %v", err)
	}
	if _, err := client.Increment(ctx, key("word"), 1); !errors.Is(err, cachecore.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}

	if !opts.SkipClear {
		if err := client.Clear(ctx, prefix); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		for _, k := range []string{key("n"), key("word")} {
			if ok, err := client.Has(ctx, k); err != nil || ok {
				t.Fatalf("expected clear to remove %q; ok=%v err=%v", k, ok, err)
			}
		}
	}
}

func waitForMiss(ctx context.Context, store Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

// sanitize turns a test name into a valid namespace: no separators or spaces.
func sanitize(s string) string {
	return strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(s)
}
