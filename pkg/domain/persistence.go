package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	CreateMeasurement(Measurement) (Measurement, error)
	UpdateMeasurement(id string, mutator func(*Measurement) error) (Measurement, error)
	CreateDiscrepancy(Discrepancy) (Discrepancy, error)
	UpdateDiscrepancy(id string, mutator func(*Discrepancy) error) (Discrepancy, error)
	FindBatch(id string) (Batch, bool)
	FindMeasurement(id string) (Measurement, bool)
	FindDiscrepancy(id string) (Discrepancy, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// derived computations.
type TransactionView interface {
	RuleView
}

// PersistentStore is the injected repository abstraction. Implementations
// differ only in where committed state is durably kept.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBatch(id string) (Batch, bool)
	ListBatches() []Batch
	GetMeasurement(id string) (Measurement, bool)
	ListMeasurements() []Measurement
	GetDiscrepancy(id string) (Discrepancy, bool)
	ListDiscrepancies() []Discrepancy
}
