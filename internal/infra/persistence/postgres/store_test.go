package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"pcx/internal/infra/persistence/postgres/testutil"
	"pcx/pkg/domain"
)

func openStub(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return db, conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	_, conn := openStub(t)
	if _, err := NewStore(context.Background(), "", domain.NewRulesEngine()); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state DDL, got %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	db, conn := openStub(t)
	store, err := NewStore(ctx, "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		b, e := tx.CreateBatch(domain.Batch{ProductName: "Recycled HDPE Pellets"})
		id = b.ID
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if conn.Commits != 1 {
		t.Fatalf("expected one snapshot commit, got %d", conn.Commits)
	}
	if rows := len(conn.Tables["state"]); rows != 4 {
		t.Fatalf("expected 4 bucket rows, got %d", rows)
	}

	// second write upserts rather than appends
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.CreateBatch(domain.Batch{ProductName: "Second"})
		return e
	}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if rows := len(conn.Tables["state"]); rows != 4 {
		t.Fatalf("expected upserted bucket rows, got %d", rows)
	}
	if got := conn.Upserts["state"]; got != 6 {
		t.Fatalf("second commit should rewrite batches and sequences only, got %d upserts", got)
	}

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	reloaded, err := NewStore(ctx, "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := reloaded.GetBatch(id); !ok {
		t.Fatalf("expected batch %s reloaded", id)
	}
	if n := len(reloaded.ListBatches()); n != 2 {
		t.Fatalf("expected 2 batches, got %d", n)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	_, conn := openStub(t)
	conn.FailPing = true
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected ping error")
	}
}

func TestPersistCommitFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	_, conn := openStub(t)
	store, err := NewStore(ctx, "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailCommit = true
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.CreateBatch(domain.Batch{})
		return e
	}); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestFailedTransactionSkipsPersist(t *testing.T) {
	ctx := context.Background()
	_, conn := openStub(t)
	store, err := NewStore(ctx, "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := len(conn.Execs)
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return domain.ValidationError{Message: "nope"}
	}); err == nil {
		t.Fatalf("expected error")
	}
	if len(conn.Execs) != before {
		t.Fatalf("expected no statements after failed transaction")
	}
}
