package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"pcx/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	var batchID string
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		b, e := tx.CreateBatch(domain.Batch{ProductName: "Persist", Status: domain.BatchStatusReceived})
		if e != nil {
			return e
		}
		batchID = b.ID
		_, e = tx.CreateMeasurement(domain.Measurement{Value: 12.5, BatchID: &batchID})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok := reloaded.GetBatch(batchID)
	if !ok || got.ProductName != "Persist" {
		t.Fatalf("expected batch reloaded, got %+v ok=%v", got, ok)
	}
	if n := len(reloaded.ListMeasurements()); n != 1 {
		t.Fatalf("expected 1 measurement, got %d", n)
	}

	var next string
	if _, err := reloaded.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		b, e := tx.CreateBatch(domain.Batch{ProductName: "Second"})
		next = b.ID
		return e
	}); err != nil {
		t.Fatalf("create after reload: %v", err)
	}
	if next == batchID {
		t.Fatalf("sequence must survive reload, got duplicate id %s", next)
	}
}

func TestSQLiteStoreCreatesStateTable(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var name string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", "state").Scan(&name); err != nil {
		t.Fatalf("lookup state table: %v", err)
	}
	if name != "state" {
		t.Fatalf("expected state table, got %s", name)
	}
	if store.Path() == "" {
		t.Fatalf("expected path recorded")
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, _ = tx.CreateBatch(domain.Batch{ProductName: "discard"})
		return domain.ValidationError{Message: "abort"}
	})
	if err == nil {
		t.Fatalf("expected abort")
	}
	var rows int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM state").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no persisted buckets, got %d", rows)
	}
	_ = store.Close()
}
