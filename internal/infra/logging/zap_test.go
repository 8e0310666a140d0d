package logging

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pcx/internal/core"
	"pcx/pkg/domain"
)

func TestCoreLoggerWritesStructuredFields(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	logger := NewCoreLogger(zap.New(obs)).With("component", "test")

	logger.Info("operation completed", "operation", "create_batch", "entity_id", "BATCH-2026-001")
	logger.Warn("operation rejected", "operation", "link_measurement")
	logger.Debug("query failed")
	logger.Error("publish event failed")

	if logs.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", logs.Len())
	}
	first := logs.All()[0]
	if first.LoggerName != "core" || first.Level != zapcore.InfoLevel {
		t.Fatalf("unexpected entry %+v", first.Entry)
	}
	fields := first.ContextMap()
	if fields["operation"] != "create_batch" || fields["entity_id"] != "BATCH-2026-001" || fields["component"] != "test" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Fatalf("expected one warning")
	}
}

func TestNewParsesLevel(t *testing.T) {
	logger, err := New("warn", false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info must be disabled at warn level")
	}
	verbose, err := New("error", true)
	if err != nil {
		t.Fatalf("new verbose: %v", err)
	}
	if !verbose.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("verbose must enable debug")
	}
	if _, err := New("chatty", false); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	NewCoreLogger(nil).Info("nothing happens")
}

func TestAuditRecorderLogsEntries(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	rec := NewAuditRecorder(zap.New(obs))
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	rec.Record(context.Background(), core.AuditEntry{
		Operation: "create_batch",
		Entity:    domain.EntityBatch,
		Action:    domain.ActionCreate,
		EntityID:  "BATCH-2026-001",
		Actor:     "operator-1",
		Status:    core.AuditStatusSuccess,
		Duration:  3 * time.Millisecond,
		Timestamp: ts,
	})
	rec.Record(context.Background(), core.AuditEntry{
		Operation: "link_measurement",
		Status:    core.AuditStatusError,
		Error:     "measurement not found",
		Timestamp: ts,
	})

	if logs.Len() != 2 {
		t.Fatalf("expected 2 audit lines, got %d", logs.Len())
	}
	ok := logs.All()[0]
	if ok.LoggerName != "audit" || ok.Level != zapcore.InfoLevel || ok.Message != "audit" {
		t.Fatalf("unexpected entry %+v", ok.Entry)
	}
	fields := ok.ContextMap()
	if fields["operation"] != "create_batch" || fields["entity_id"] != "BATCH-2026-001" || fields["actor"] != "operator-1" || fields["status"] != "success" {
		t.Fatalf("unexpected fields %v", fields)
	}
	failed := logs.All()[1]
	if failed.Level != zapcore.WarnLevel || failed.ContextMap()["error"] != "measurement not found" {
		t.Fatalf("unexpected failure entry %+v %v", failed.Entry, failed.ContextMap())
	}
	if _, present := failed.ContextMap()["entity_id"]; present {
		t.Fatalf("empty entity id should be omitted")
	}
}
