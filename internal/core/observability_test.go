package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pcx/pkg/domain"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+":"+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

type countingMetrics struct {
	mu      sync.Mutex
	success map[string]int
	failure map[string]int
}

func (m *countingMetrics) Observe(_ context.Context, op string, ok bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.success == nil {
		m.success, m.failure = map[string]int{}, map[string]int{}
	}
	if ok {
		m.success[op]++
	} else {
		m.failure[op]++
	}
}

func TestMutateEmitsAuditMetricsTraceAndEvents(t *testing.T) {
	ctx := context.Background()
	audit := &captureAudit{}
	metrics := &countingMetrics{}
	tracer := NewJSONTracer(nil)
	events := &capturePublisher{}
	logger := &recordingLogger{}
	svc := newTestService(t,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithEventPublisher(events),
		WithLogger(logger),
	)

	b := mustCreateBatch(t, svc)
	entry := audit.last()
	if entry.Operation != "create_batch" || entry.Entity != domain.EntityBatch || entry.Action != domain.ActionCreate || entry.EntityID != b.ID {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.Status != AuditStatusSuccess || !entry.Timestamp.Equal(fixedNow) {
		t.Fatalf("expected success entry stamped with clock, got %+v", entry)
	}
	if metrics.success["create_batch"] != 1 {
		t.Fatalf("expected metrics observation, got %+v", metrics.success)
	}
	spans := tracer.Entries()
	if len(spans) != 1 || spans[0].Operation != "create_batch" || spans[0].Status != "success" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if got := events.types(); len(got) != 1 || got[0] != "pcx.batch.created" {
		t.Fatalf("unexpected events %v", got)
	}
	if events.events[0].EntityID != b.ID || events.events[0].ID == "" || !events.events[0].OccurredAt.Equal(fixedNow) {
		t.Fatalf("unexpected envelope %+v", events.events[0])
	}
	if !logger.has("info:operation completed") {
		t.Fatalf("expected completion log, got %v", logger.lines)
	}

	_, _, err := svc.UpdateBatchStatus(ctx, "BATCH-2026-404", domain.BatchStatusCompleted, SystemActor)
	requireNotFound(t, err)
	entry = audit.last()
	if entry.Status != AuditStatusError || entry.Operation != "update_batch_status" || entry.Error == "" {
		t.Fatalf("expected error audit entry, got %+v", entry)
	}
	if metrics.failure["update_batch_status"] != 1 {
		t.Fatalf("expected failure observation")
	}
	if !logger.has("warn:operation rejected") {
		t.Fatalf("expected not-found logged as warning, got %v", logger.lines)
	}
	if len(events.types()) != 1 {
		t.Fatalf("failed operations must not publish")
	}
}

func TestReadsAreTracedButNotAudited(t *testing.T) {
	audit := &captureAudit{}
	metrics := &countingMetrics{}
	svc := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics))
	if _, err := svc.ListBatches(context.Background(), BatchFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(audit.entries) != 0 {
		t.Fatalf("reads must not be audited, got %+v", audit.entries)
	}
	if metrics.success["list_batches"] != 1 {
		t.Fatalf("expected list_batches observation, got %+v", metrics.success)
	}
}

func TestRecordAuditDropsUnknownOperations(t *testing.T) {
	audit := &captureAudit{}
	svc := newTestService(t, WithAuditRecorder(audit))
	ctx := context.Background()
	svc.recordAudit(ctx, AuditEntry{Operation: "mystery_op", EntityID: "X", Status: AuditStatusSuccess, Duration: time.Millisecond})
	if len(audit.entries) != 0 {
		t.Fatalf("unknown operation must be dropped, got %+v", audit.entries)
	}
	svc.recordAudit(ctx, AuditEntry{Operation: "resolve_discrepancy", EntityID: "DSC-2026-001", Status: AuditStatusSuccess, Duration: time.Millisecond})
	got := audit.last()
	if got.Entity != domain.EntityDiscrepancy || got.Action != domain.ActionUpdate {
		t.Fatalf("expected catalog lookup, got %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatalf("expected timestamp from the service clock, got %+v", got)
	}
}

func TestPublishFailureIsLoggedNotReturned(t *testing.T) {
	events := &capturePublisher{err: errors.New("broker down")}
	logger := &recordingLogger{}
	svc := newTestService(t, WithEventPublisher(events), WithLogger(logger))
	b := mustCreateBatch(t, svc)
	if _, err := svc.GetBatch(context.Background(), b.ID); err != nil {
		t.Fatalf("batch must be committed despite publish failure: %v", err)
	}
	if !logger.has("error:publish event failed") {
		t.Fatalf("expected publish failure logged, got %v", logger.lines)
	}
}

func TestIdempotentLinkSkipsEvent(t *testing.T) {
	ctx := context.Background()
	events := &capturePublisher{}
	svc := newTestService(t, WithEventPublisher(events))
	b := mustCreateBatch(t, svc)
	m := mustCreateMeasurement(t, svc, measurementInput(domain.SourceScale, "INTAKE-01", "Receipt", domain.ClassificationRecycled, 10))
	for i := 0; i < 2; i++ {
		if _, _, err := svc.LinkMeasurement(ctx, b.ID, m.ID, SystemActor); err != nil {
			t.Fatalf("link %d: %v", i, err)
		}
	}
	linked := 0
	for _, typ := range events.types() {
		if typ == "pcx.batch.measurement_linked" {
			linked++
		}
	}
	if linked != 1 {
		t.Fatalf("expected one link event, got %v", events.types())
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "pcx_service_metrics_") {
		t.Fatalf("unexpected generated name %s", rec.Name())
	}
	rec.Observe(context.Background(), "create_batch", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "create_batch", false, 3*time.Millisecond)
	snap := rec.Snapshot()
	if snap.Results["create_batch"]["success"] != 1 || snap.Results["create_batch"]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if snap.DurationsMS["create_batch"] != 5 || snap.AverageMS["create_batch"] != 2.5 {
		t.Fatalf("unexpected durations %+v %+v", snap.DurationsMS, snap.AverageMS)
	}

	other := &countingMetrics{}
	MultiMetricsRecorder{rec, other, nil}.Observe(context.Background(), "x", true, 0)
	if other.success["x"] != 1 {
		t.Fatalf("multi recorder must fan out")
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "mass_balance")
	span.End(errors.New("boom"))
	if !strings.Contains(buf.String(), `"operation":"mass_balance"`) || !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Fatalf("unexpected trace output %s", buf.String())
	}
}
