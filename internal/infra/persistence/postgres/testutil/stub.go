// Package testutil is a database/sql driver double for the postgres store. It
// understands the DDL, upsert and select statements the snapshot table issues
// and nothing more.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
)

var seq atomic.Int64

var (
	insertRe = regexp.MustCompile(`(?is)^\s*insert\s+into\s+(\w+)\s*\(([^)]*)\)`)
	selectRe = regexp.MustCompile(`(?is)^\s*select\s+(.+?)\s+from\s+(\w+)`)
)

// StubConn is the single connection behind a stub DB. Tables keep rows in
// insertion order; an upsert replaces the row sharing its first column.
type StubConn struct {
	Execs   []string
	Tables  map[string][]map[string]any
	Upserts map[string]int
	Commits int

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
}

// NewStubDB registers a fresh driver and opens a DB limited to one connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: map[string][]map[string]any{}, Upserts: map[string]int{}}
	name := fmt.Sprintf("pcx-stub-%d", seq.Add(1))
	sql.Register(name, stubDriver{conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare is unsupported; the store only uses the context variants.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepare not supported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("stub: ping failed")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	return stubTx{c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	m := insertRe.FindStringSubmatch(query)
	if m == nil {
		return driver.RowsAffected(0), nil
	}
	table, cols := strings.ToLower(m[1]), columns(m[2])
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %d columns, %d args", len(cols), len(args))
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if strings.Contains(strings.ToUpper(query), "ON CONFLICT") {
		c.Upserts[table]++
		for i, existing := range c.Tables[table] {
			if existing[cols[0]] == row[cols[0]] {
				c.Tables[table][i] = row
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext for plain column selects.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	m := selectRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("stub: unsupported query %q", query)
	}
	cols, table := columns(m[1]), strings.ToLower(m[2])
	out := &stubRows{cols: cols}
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("stub: commit failed")
	}
	t.conn.Commits++
	return nil
}

func (t stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}

func columns(raw string) []string {
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return parts
}
