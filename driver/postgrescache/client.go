// Package postgrescache opens a PostgreSQL-backed cache client using the pgx
// database/sql driver.
package postgrescache

import (
	"fmt"

	"github.com/goforj/cachemaster/cachecore"
	"github.com/goforj/cachemaster/driver/sqlcore"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open accepts postgres:// or postgresql:// URLs as understood by pgx, plus
// an optional table parameter.
//
//	client, err := postgrescache.Open("postgres://app:secret@db:5432/app?sslmode=disable&table=cache")
func Open(rawURL string) (*sqlcore.Client, error) {
	u, table, err := sqlcore.SplitTable(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("%w: unsupported postgres scheme %q", cachecore.ErrConfiguration, u.Scheme)
	}
	return sqlcore.New(sqlcore.Config{
		DriverName: "pgx",
		DSN:        u.String(),
		Table:      table,
	})
}
