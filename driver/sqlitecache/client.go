// Package sqlitecache opens a SQLite-backed cache client using the pure Go
// modernc.org/sqlite driver.
package sqlitecache

import (
	"fmt"
	"strings"

	"github.com/goforj/cachemaster/cachecore"
	"github.com/goforj/cachemaster/driver/sqlcore"
	_ "modernc.org/sqlite"
)

// Open accepts sqlite:///abs/path.db, sqlite://relative.db or
// sqlite::memory:, plus an optional table parameter. Other query parameters
// go to the driver, for example _pragma=busy_timeout(5000).
//
// The pool is capped at one connection so in-memory databases are shared and
// writers never see SQLITE_BUSY.
func Open(rawURL string) (*sqlcore.Client, error) {
	dsn, table, err := DSN(rawURL)
	if err != nil {
		return nil, err
	}
	return sqlcore.New(sqlcore.Config{
		DriverName:   "sqlite",
		DSN:          dsn,
		Table:        table,
		MaxOpenConns: 1,
	})
}

// DSN converts a sqlite: URL into a driver DSN and the table parameter.
func DSN(rawURL string) (string, string, error) {
	u, table, err := sqlcore.SplitTable(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "sqlite" {
		return "", "", fmt.Errorf("%w: unsupported sqlite scheme %q", cachecore.ErrConfiguration, u.Scheme)
	}
	path := u.Opaque
	if path == "" {
		path = u.Host + u.Path
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", "", fmt.Errorf("%w: sqlite url has no path", cachecore.ErrConfiguration)
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, table, nil
}
