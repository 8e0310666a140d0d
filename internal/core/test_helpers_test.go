package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pcx/pkg/domain"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAudit) Record(_ context.Context, e AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
}

func (c *captureAudit) last() AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return AuditEntry{}
	}
	return c.entries[len(c.entries)-1]
}

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{WithClock(ClockFunc(func() time.Time { return fixedNow }))}
	return NewInMemoryService(NewDefaultRulesEngine(domain.DefaultPolicy()), append(base, opts...)...)
}

func mustCreateBatch(t *testing.T, svc *Service, composition ...domain.MaterialComposition) Batch {
	t.Helper()
	if len(composition) == 0 {
		composition = []domain.MaterialComposition{
			{MaterialTypeCode: "MAT-R01", MaterialTypeName: "Post-Consumer HDPE", Classification: domain.ClassificationRecycled, Percentage: 70},
			{MaterialTypeCode: "MAT-V02", MaterialTypeName: "Virgin HDPE", Classification: domain.ClassificationVirgin, Percentage: 30},
		}
	}
	b, _, err := svc.CreateBatch(context.Background(), CreateBatchInput{
		ProductName:      "Recycled HDPE Pellets",
		ProductType:      domain.ProductPellets,
		Composition:      composition,
		ExpectedQuantity: 1000,
	}, Actor{ID: "OP-001", Role: RoleOperator})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return b
}

func measurementInput(source domain.MeasurementSource, station, step string, class domain.Classification, value float64) CreateMeasurementInput {
	return CreateMeasurementInput{
		Source:                 source,
		StationID:              station,
		StationName:            station,
		ProcessStep:            step,
		Value:                  value,
		MaterialClassification: class,
		MaterialTypeCode:       "MAT-R01",
		OperatorID:             "OP-001",
	}
}

func mustCreateMeasurement(t *testing.T, svc *Service, in CreateMeasurementInput) Measurement {
	t.Helper()
	m, _, err := svc.CreateMeasurement(context.Background(), in, Actor{ID: "OP-001"})
	if err != nil {
		t.Fatalf("create measurement: %v", err)
	}
	return m
}

func mustChangePayload[T any](t *testing.T, v T) domain.ChangePayload {
	t.Helper()
	p, err := domain.NewChangePayloadFromValue(v)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func requireValidation(t *testing.T, err error) {
	t.Helper()
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T %v", err, err)
	}
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T %v", err, err)
	}
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
