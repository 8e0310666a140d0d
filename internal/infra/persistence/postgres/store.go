// Package postgres keeps the memory store's state durable in a Postgres JSONB
// table, rewriting changed buckets after each committed transaction.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"pcx/internal/infra/persistence/memory"
	"pcx/internal/infra/persistence/snapshot"
	"pcx/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/pcx?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a memory.Store whose committed state is mirrored to Postgres.
type Store struct {
	*memory.Store
	db    *sql.DB
	table *snapshot.Table
	now   func() time.Time
}

// NewStore connects to dsn (defaultDSN when empty), creates the state table
// and hydrates the memory store from it.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s, err := newStore(ctx, db, engine)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, db *sql.DB, engine *domain.RulesEngine) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	table := snapshot.NewTable(snapshot.Postgres, "")
	if err := table.Ensure(ctx, db); err != nil {
		return nil, err
	}
	state, found, err := table.Load(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	if found {
		mem.ImportState(state)
	}
	return &Store{Store: mem, db: db, table: table, now: time.Now}, nil
}

// RunInTransaction commits in memory first and then writes the changed
// buckets. A failed write is returned with the in-memory result.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if _, err := s.table.Save(ctx, s.db, s.ExportState(), s.now()); err != nil {
		return res, fmt.Errorf("persist postgres snapshot: %w", err)
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for tests and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the opener for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
