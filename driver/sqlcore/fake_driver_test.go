package sqlcore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

// execRecord is one statement seen by a recordingDriver.
type execRecord struct {
	query string
	args  []any
}

// recordingDriver logs every Exec and returns empty result sets, so schema
// and upsert statements can be asserted without a database.
type recordingDriver struct {
	execErr error
	pingErr error

	mu    sync.Mutex
	execs []execRecord
}

func (d *recordingDriver) Open(string) (driver.Conn, error) { return &recordingConn{d: d}, nil }

func (d *recordingDriver) record(query string, args []driver.NamedValue) {
	rec := execRecord{query: query}
	for _, a := range args {
		rec.args = append(rec.args, a.Value)
	}
	d.mu.Lock()
	d.execs = append(d.execs, rec)
	d.mu.Unlock()
}

// statements returns and forgets what was executed so far.
func (d *recordingDriver) statements() []execRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.execs
	d.execs = nil
	return out
}

type recordingConn struct{ d *recordingDriver }

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("recording driver: prepare not supported")
}
func (c *recordingConn) Close() error { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) {
	return nil, errors.New("recording driver: transactions not supported")
}

func (c *recordingConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.d.record(query, args)
	if c.d.execErr != nil {
		return nil, c.d.execErr
	}
	return driver.RowsAffected(1), nil
}

func (c *recordingConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return emptyRows{}, nil
}

func (c *recordingConn) Ping(context.Context) error { return c.d.pingErr }

type emptyRows struct{}

func (emptyRows) Columns() []string         { return []string{"k", "v", "ea"} }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

var (
	recordingPG    = &recordingDriver{}
	recordingMySQL = &recordingDriver{}
)

func init() {
	sql.Register("pgfake", recordingPG)
	sql.Register("mysqlfake", recordingMySQL)
	sql.Register("pgfail", &recordingDriver{execErr: errors.New("boom")})
	sql.Register("pingfail", &recordingDriver{pingErr: errors.New("ping boom")})
}
