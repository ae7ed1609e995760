package sqlcore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goforj/cachemaster/cachecore"
)

const defaultTable = "cache_entries"

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config configures a SQL-backed cache client.
type Config struct {
	// DriverName is the database/sql driver: "pgx", "postgres", "mysql" or
	// "sqlite". The dialect follows from it.
	DriverName string
	DSN        string
	// Table defaults to cache_entries. Dotted schema names are allowed.
	Table string
	// MaxOpenConns caps the pool when positive.
	MaxOpenConns int
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
	dialectMySQL
)

func dialectFor(driverName string) dialect {
	switch driverName {
	case "postgres", "pgx":
		return dialectPostgres
	case "mysql":
		return dialectMySQL
	default:
		return dialectSQLite
	}
}

// Client implements cachecore.RemoteClient over a k/v/ea table. ea holds the
// expiry in unix millis, 0 for never.
type Client struct {
	db      *sql.DB
	table   string
	dialect dialect
	now     func() time.Time

	schemaMu sync.Mutex
	schemaOK bool
}

var _ cachecore.RemoteClient = (*Client)(nil)

// New opens the pool without connecting. The table is created by Start or by
// the first operation.
func New(cfg Config) (*Client, error) {
	if cfg.DriverName == "" || cfg.DSN == "" {
		return nil, fmt.Errorf("%w: sql driver requires driver name and dsn", cachecore.ErrConfiguration)
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cachecore.ErrConfiguration, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return &Client{db: db, table: table, dialect: dialectFor(cfg.DriverName), now: time.Now}, nil
}

// Handle returns the *sql.DB.
func (c *Client) Handle() any { return c.db }

// Start verifies connectivity and creates the table when missing.
func (c *Client) Start(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return c.ensureSchema(ctx)
}

func (c *Client) Close() error { return c.db.Close() }

func (c *Client) ensureSchema(ctx context.Context) error {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	if c.schemaOK {
		return nil
	}
	if _, err := c.db.ExecContext(ctx, c.schemaSQL()); err != nil {
		return fmt.Errorf("create cache table %s: %w", c.table, err)
	}
	c.schemaOK = true
	return nil
}

func (c *Client) schemaSQL() string {
	switch c.dialect {
	case dialectPostgres:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL,
			ea BIGINT NOT NULL DEFAULT 0
		)`, c.table)
	case dialectMySQL:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(1024) PRIMARY KEY,
			v LONGBLOB NOT NULL,
			ea BIGINT NOT NULL DEFAULT 0
		) ENGINE=InnoDB`, c.table)
	default:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			ea INTEGER NOT NULL DEFAULT 0
		)`, c.table)
	}
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := c.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	var v []byte
	var ea int64
	err := c.db.QueryRowContext(ctx, c.getSQL(), key).Scan(&v, &ea)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cachecore.Expired(c.now(), ea) {
		_, _ = c.db.ExecContext(ctx, c.purgeSQL(), key, ea)
		return nil, false, nil
	}
	return v, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.ensureSchema(ctx); err != nil {
		return err
	}
	ea := cachecore.ExpiresAt(c.now(), ttl)
	_, err := c.db.ExecContext(ctx, c.upsertSQL(), key, nonNil(value), ea, nonNil(value), ea)
	return err
}

// Delete reports whether a live row was removed. Expired leftovers are
// removed too but do not count.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	if err := c.ensureSchema(ctx); err != nil {
		return false, err
	}
	res, err := c.db.ExecContext(ctx, c.deleteLiveSQL(), key, c.now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := c.db.ExecContext(ctx, c.deleteSQL(), key); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

func (c *Client) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT k, v, ea FROM %s WHERE k IN (%s)", c.table, c.placeholders(1, len(keys)))
	rows, err := c.db.QueryContext(ctx, query, stringArgs(keys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	now := c.now()
	for rows.Next() {
		var k string
		var v []byte
		var ea int64
		if err := rows.Scan(&k, &v, &ea); err != nil {
			return nil, err
		}
		if !cachecore.Expired(now, ea) {
			out[k] = v
		}
	}
	return out, rows.Err()
}

// SetMany writes all items in one transaction.
func (c *Client) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	if err := c.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, c.upsertSQL())
	if err != nil {
		return err
	}
	defer stmt.Close()
	ea := cachecore.ExpiresAt(c.now(), ttl)
	for key, value := range items {
		if _, err := stmt.ExecContext(ctx, key, nonNil(value), ea, nonNil(value), ea); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *Client) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.ensureSchema(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE k IN (%s)", c.table, c.placeholders(1, len(keys)))
	_, err := c.db.ExecContext(ctx, query, stringArgs(keys)...)
	return err
}

func (c *Client) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *Client) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := c.ensureSchema(ctx); err != nil {
		return false, err
	}
	now := c.now()
	query := fmt.Sprintf("UPDATE %s SET ea = %s WHERE k = %s AND (ea = 0 OR ea > %s)", c.table, c.ph(1), c.ph(2), c.ph(3))
	res, err := c.db.ExecContext(ctx, query, cachecore.ExpiresAt(now, ttl), key, now.UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment reads and rewrites the row inside one transaction. Postgres and
// MySQL lock the row; SQLite serializes writers itself.
func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if err := c.ensureSchema(ctx); err != nil {
		return 0, err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := c.getSQL()
	if c.dialect != dialectSQLite {
		query += " FOR UPDATE"
	}
	var v []byte
	var ea int64
	err = tx.QueryRowContext(ctx, query, key).Scan(&v, &ea)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && cachecore.Expired(c.now(), ea)) {
		return 0, fmt.Errorf("%w: %q", cachecore.ErrKeyNotFound, key)
	}
	if err != nil {
		return 0, err
	}
	cur, err := cachecore.ParseCounter(v)
	if err != nil {
		return 0, fmt.Errorf("cache key %q: %w", key, err)
	}
	next, err := cachecore.AddCounter(cur, delta)
	if err != nil {
		return 0, fmt.Errorf("cache key %q: %w", key, err)
	}
	update := fmt.Sprintf("UPDATE %s SET v = %s WHERE k = %s", c.table, c.ph(1), c.ph(2))
	if _, err := tx.ExecContext(ctx, update, cachecore.FormatCounter(next), key); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// Clear deletes rows whose key starts with prefix. The comparison uses
// SUBSTR so prefix needs no LIKE escaping.
func (c *Client) Clear(ctx context.Context, prefix string) error {
	if err := c.ensureSchema(ctx); err != nil {
		return err
	}
	if prefix == "" {
		_, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c.table))
		return err
	}
	// VARBINARY compares bytes; TEXT columns count characters.
	n := utf8.RuneCountInString(prefix)
	if c.dialect == dialectMySQL {
		n = len(prefix)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE SUBSTR(k, 1, %d) = %s", c.table, n, c.ph(1))
	_, err := c.db.ExecContext(ctx, query, prefix)
	return err
}

func (c *Client) getSQL() string {
	return fmt.Sprintf("SELECT v, ea FROM %s WHERE k = %s", c.table, c.ph(1))
}

func (c *Client) upsertSQL() string {
	p1, p2, p3, p4, p5 := c.ph(1), c.ph(2), c.ph(3), c.ph(4), c.ph(5)
	switch c.dialect {
	case dialectMySQL:
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE v = %s, ea = %s", c.table, p1, p2, p3, p4, p5)
	default:
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = %s, ea = %s", c.table, p1, p2, p3, p4, p5)
	}
}

func (c *Client) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", c.table, c.ph(1))
}

func (c *Client) deleteLiveSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s AND (ea = 0 OR ea > %s)", c.table, c.ph(1), c.ph(2))
}

// purgeSQL removes an expired row only if nobody rewrote it meanwhile.
func (c *Client) purgeSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s AND ea = %s", c.table, c.ph(1), c.ph(2))
}

func (c *Client) ph(i int) string {
	if c.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (c *Client) placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = c.ph(from + i)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}

// nonNil keeps NOT NULL columns happy for empty values.
func nonNil(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: sql table name is required", cachecore.ErrConfiguration)
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("%w: invalid sql table name %q", cachecore.ErrConfiguration, name)
		}
	}
	return nil
}
