// Package sqlite keeps the memory store's state durable in an embedded SQLite
// file. It needs no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pcx/internal/infra/persistence/memory"
	"pcx/internal/infra/persistence/snapshot"
	"pcx/pkg/domain"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "pcx.db"

// Store is a memory.Store whose committed state is mirrored to a SQLite file.
type Store struct {
	*memory.Store
	db    *sql.DB
	table *snapshot.Table
	path  string
}

// NewStore opens (or creates) the database at path and loads any saved state.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; the memory store already serialises commits
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	table := snapshot.NewTable(snapshot.SQLite, "")
	if err := table.Ensure(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	state, found, err := table.Load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	if found {
		mem.ImportState(state)
	}
	return &Store{Store: mem, db: db, table: table, path: path}, nil
}

// RunInTransaction commits in memory and then writes the changed buckets.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if _, err := s.table.Save(ctx, s.db, s.ExportState(), time.Now()); err != nil {
		return res, fmt.Errorf("persist sqlite snapshot: %w", err)
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }
