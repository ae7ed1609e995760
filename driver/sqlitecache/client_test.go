package sqlitecache

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/goforj/cachemaster/cachecore"
	"github.com/goforj/cachemaster/cachetest"
)

func TestDSN(t *testing.T) {
	cases := []struct {
		raw, dsn, table string
	}{
		{"sqlite:///var/lib/app/cache.db", "/var/lib/app/cache.db", ""},
		{"sqlite://cache.db?table=entries", "cache.db", "entries"},
		{"sqlite::memory:", ":memory:", ""},
	}
	for _, tc := range cases {
		dsn, table, err := DSN(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if dsn != tc.dsn || table != tc.table {
			t.Fatalf("%s: got dsn=%q table=%q", tc.raw, dsn, table)
		}
	}
	if _, _, err := DSN("redis://x"); !errors.Is(err, cachecore.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestSQLiteClientContract(t *testing.T) {
	client, err := Open("sqlite://" + filepath.ToSlash(filepath.Join(t.TempDir(), "cache.db")))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	cachetest.RunRemoteClientContract(t, client, cachetest.Options{})
}
