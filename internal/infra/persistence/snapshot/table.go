// Package snapshot stores the memory store's buckets as JSON rows in a
// single SQL table. Both durable backends share it and differ only in dialect.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"pcx/internal/infra/persistence/memory"
)

// Dialect carries the SQL that differs between engines.
type Dialect struct {
	Name        string
	PayloadType string
	TimeType    string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// SQLite binds with "?" and stores payloads as BLOB.
var SQLite = Dialect{
	Name:        "sqlite",
	PayloadType: "BLOB",
	TimeType:    "TEXT",
	Placeholder: func(int) string { return "?" },
}

// Postgres binds with "$n" and stores payloads as JSONB.
var Postgres = Dialect{
	Name:        "postgres",
	PayloadType: "JSONB",
	TimeType:    "TIMESTAMPTZ",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// Table tracks what was last written so Save only rewrites changed buckets.
type Table struct {
	dialect Dialect
	name    string

	mu      sync.Mutex
	written map[string][]byte
}

// NewTable returns a Table named name. An empty name means "state".
func NewTable(d Dialect, name string) *Table {
	if name == "" {
		name = "state"
	}
	return &Table{dialect: d, name: name, written: make(map[string][]byte)}
}

// Name is the SQL table name.
func (t *Table) Name() string { return t.name }

// Ensure creates the table when missing.
func (t *Table) Ensure(ctx context.Context, db *sql.DB) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		bucket TEXT PRIMARY KEY,
		payload %s NOT NULL,
		updated_at %s NOT NULL
	)`, t.name, t.dialect.PayloadType, t.dialect.TimeType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s table: %w", t.name, err)
	}
	return nil
}

// Load reads every stored bucket. found is false on an empty table.
func (t *Table) Load(ctx context.Context, db *sql.DB) (snap memory.Snapshot, found bool, err error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT bucket, payload FROM %s`, t.name))
	if err != nil {
		return snap, false, fmt.Errorf("select %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	t.mu.Lock()
	defer t.mu.Unlock()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snap, false, fmt.Errorf("scan %s: %w", t.name, err)
		}
		if err := snap.DecodeBucket(bucket, payload); err != nil {
			return snap, false, err
		}
		t.written[bucket] = bytes.Clone(payload)
		found = true
	}
	if err := rows.Err(); err != nil {
		return snap, false, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return snap, found, nil
}

// Save upserts the buckets whose encoding differs from the last write, in one
// transaction. It returns the buckets written.
func (t *Table) Save(ctx context.Context, db *sql.DB, snap memory.Snapshot, at time.Time) (written []string, err error) {
	encoded, err := snap.EncodeBuckets()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var dirty []string
	for _, bucket := range memory.Buckets {
		if prev, ok := t.written[bucket]; !ok || !bytes.Equal(prev, encoded[bucket]) {
			dirty = append(dirty, bucket)
		}
	}
	if len(dirty) == 0 {
		return nil, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s snapshot: %w", t.dialect.Name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	p := t.dialect.Placeholder
	upsert := fmt.Sprintf(`INSERT INTO %s(bucket,payload,updated_at) VALUES(%s,%s,%s) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		t.name, p(1), p(2), p(3))
	stamp := at.UTC()
	for _, bucket := range dirty {
		if _, err = tx.ExecContext(ctx, upsert, bucket, encoded[bucket], stamp); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s snapshot: %w", t.dialect.Name, err)
	}
	for _, bucket := range dirty {
		t.written[bucket] = encoded[bucket]
	}
	return dirty, nil
}
