package core

import (
	"context"
	"fmt"
	"strings"

	"pcx/internal/infra/persistence/memory"
	"pcx/internal/infra/persistence/postgres"
	"pcx/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // process memory (default)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures the persistence backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the configured backend. An empty driver selects
// the in-memory store.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(string(opts.Driver))))
	switch driver {
	case "", StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(opts.SQLitePath, engine)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN, engine)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
