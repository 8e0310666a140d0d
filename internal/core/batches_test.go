package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pcx/pkg/domain"
)

func TestCreateBatchAndCompleteScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	b := mustCreateBatch(t, svc)
	if b.ID != "BATCH-2026-001" {
		t.Fatalf("unexpected id %s", b.ID)
	}
	if b.Status != domain.BatchStatusReceived || b.Audit.Version != 1 {
		t.Fatalf("expected RECEIVED v1, got %s v%d", b.Status, b.Audit.Version)
	}
	if b.Quantities.Expected != 1000 || b.Quantities.Received != 0 || b.Quantities.Unit != domain.UnitKilogram {
		t.Fatalf("unexpected quantities %+v", b.Quantities)
	}
	if got := domain.RecycledContentPercentage(b); got != 70 {
		t.Fatalf("expected recycled content 70, got %v", got)
	}

	completed, _, err := svc.UpdateBatchStatus(ctx, b.ID, domain.BatchStatusCompleted, Actor{ID: "SUP-001"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.CompletionDate == nil || !completed.CompletionDate.Equal(fixedNow) {
		t.Fatalf("expected completion date stamped, got %v", completed.CompletionDate)
	}
	if completed.Audit.Version != 2 || completed.Audit.LastModifiedBy != "SUP-001" {
		t.Fatalf("expected version 2 by SUP-001, got %+v", completed.Audit)
	}

	again, _, err := svc.UpdateBatchStatus(ctx, b.ID, domain.BatchStatusCompleted, Actor{ID: "SUP-001"})
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if again.Audit.Version != 3 || !again.CompletionDate.Equal(*completed.CompletionDate) {
		t.Fatalf("expected version bump and unchanged completion date, got %+v", again)
	}
}

func TestCreateBatchValidation(t *testing.T) {
	svc := newTestService(t)
	good := []domain.MaterialComposition{{MaterialTypeCode: "A", Classification: domain.ClassificationRecycled, Percentage: 100}}
	cases := map[string]CreateBatchInput{
		"blank name":     {ProductName: " ", ProductType: domain.ProductPellets, Composition: good, ExpectedQuantity: 10},
		"bad type":       {ProductName: "x", ProductType: "BRICKS", Composition: good, ExpectedQuantity: 10},
		"zero quantity":  {ProductName: "x", ProductType: domain.ProductPellets, Composition: good},
		"no composition": {ProductName: "x", ProductType: domain.ProductPellets, ExpectedQuantity: 10},
		"negative line": {ProductName: "x", ProductType: domain.ProductPellets, ExpectedQuantity: 10, Composition: []domain.MaterialComposition{
			{Classification: domain.ClassificationRecycled, Percentage: 110},
			{Classification: domain.ClassificationVirgin, Percentage: -10},
		}},
		"sum off": {ProductName: "x", ProductType: domain.ProductPellets, ExpectedQuantity: 10, Composition: []domain.MaterialComposition{
			{Classification: domain.ClassificationRecycled, Percentage: 60},
			{Classification: domain.ClassificationVirgin, Percentage: 39.9},
		}},
		"waste in composition": {ProductName: "x", ProductType: domain.ProductPellets, ExpectedQuantity: 10, Composition: []domain.MaterialComposition{
			{Classification: domain.ClassificationWaste, Percentage: 100},
		}},
		"bad unit": {ProductName: "x", ProductType: domain.ProductPellets, ExpectedQuantity: 10, Composition: good, Unit: "stone"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.CreateBatch(context.Background(), in, SystemActor)
			requireValidation(t, err)
		})
	}
	if n := len(svc.Store().ListBatches()); n != 0 {
		t.Fatalf("expected no batches stored, got %d", n)
	}
}

func TestCreateBatchAcceptsThirds(t *testing.T) {
	svc := newTestService(t)
	b := mustCreateBatch(t, svc,
		domain.MaterialComposition{Classification: domain.ClassificationRecycled, Percentage: 33.33},
		domain.MaterialComposition{Classification: domain.ClassificationRecycled, Percentage: 33.33},
		domain.MaterialComposition{Classification: domain.ClassificationVirgin, Percentage: 33.34},
	)
	if got := domain.RecycledContentPercentage(b); got != 66.66 {
		t.Fatalf("expected 66.66, got %v", got)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetBatch(context.Background(), "BATCH-2026-999")
	requireNotFound(t, err)
	_, _, err = svc.UpdateBatchStatus(context.Background(), "BATCH-2026-999", domain.BatchStatusCompleted, SystemActor)
	requireNotFound(t, err)
}

func TestUpdateBatchStatusRejectsUnknown(t *testing.T) {
	svc := newTestService(t)
	b := mustCreateBatch(t, svc)
	_, _, err := svc.UpdateBatchStatus(context.Background(), b.ID, "SHIPPED", SystemActor)
	requireValidation(t, err)
	got, _ := svc.GetBatch(context.Background(), b.ID)
	if got.Audit.Version != 1 {
		t.Fatalf("rejected update must not bump version, got %d", got.Audit.Version)
	}
}

func TestListBatchesFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mk := func(name string, pt domain.ProductType, class domain.Classification, start time.Time) Batch {
		b, _, err := svc.CreateBatch(ctx, CreateBatchInput{
			ProductName:      name,
			ProductType:      pt,
			ExpectedQuantity: 10,
			StartDate:        start,
			Composition:      []domain.MaterialComposition{{Classification: class, Percentage: 100}},
		}, SystemActor)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return b
	}
	jan := mk("jan", domain.ProductFlakes, domain.ClassificationRecycled, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	feb := mk("feb", domain.ProductPellets, domain.ClassificationMixed, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	mar := mk("mar", domain.ProductPellets, domain.ClassificationRecycled, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if _, _, err := svc.UpdateBatchStatus(ctx, feb.ID, domain.BatchStatusInProgress, SystemActor); err != nil {
		t.Fatalf("status: %v", err)
	}

	ids := func(list []Batch) []string {
		out := make([]string, 0, len(list))
		for _, b := range list {
			out = append(out, b.ID)
		}
		return out
	}
	all, err := svc.ListBatches(ctx, BatchFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{mar.ID, feb.ID, jan.ID}, ids(all)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		filter BatchFilter
		want   []string
	}{
		{"status", BatchFilter{Status: domain.BatchStatusInProgress}, []string{feb.ID}},
		{"product type", BatchFilter{ProductType: domain.ProductPellets}, []string{mar.ID, feb.ID}},
		{"range", BatchFilter{From: &from, To: &to}, []string{feb.ID}},
		{"classification", BatchFilter{Classification: domain.ClassificationRecycled}, []string{mar.ID, jan.ID}},
	}
	for _, tc := range cases {
		got, err := svc.ListBatches(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestUpdateBatchQuantities(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	b := mustCreateBatch(t, svc)

	updated, res, err := svc.UpdateBatchQuantities(ctx, b.ID, QuantitiesPatch{Received: floatPtr(1000), Yielded: floatPtr(900), Waste: floatPtr(50)}, SystemActor)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
	if updated.Quantities.Expected != 1000 || updated.Quantities.Received != 1000 || updated.Audit.Version != 2 {
		t.Fatalf("unexpected merge %+v", updated)
	}
	eff := domain.CalculateEfficiency(updated)
	if eff.YieldPct != 90 || eff.WastePct != 5 || eff.UtilizationPct != 95 {
		t.Fatalf("unexpected efficiency %+v", eff)
	}

	_, _, err = svc.UpdateBatchQuantities(ctx, b.ID, QuantitiesPatch{Waste: floatPtr(-1)}, SystemActor)
	requireValidation(t, err)

	_, res, err = svc.UpdateBatchQuantities(ctx, b.ID, QuantitiesPatch{Consumed: floatPtr(1200)}, SystemActor)
	if err != nil {
		t.Fatalf("consumed above received should commit: %v", err)
	}
	if len(res.Violations) == 0 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected warn violation, got %+v", res.Violations)
	}
}

func TestUpdateBatchPatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	b := mustCreateBatch(t, svc)
	pt := domain.ProductGranules
	updated, _, err := svc.UpdateBatch(ctx, b.ID, BatchPatch{
		ProductName:      strPtr("Granulate"),
		ProductType:      &pt,
		Notes:            strPtr("re-run"),
		SourceDocumentID: strPtr("DOC-9"),
		Metadata:         &domain.BatchMetadata{Supplier: "EcoPlastics Ltd"},
	}, Actor{ID: "OP-002"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ProductName != "Granulate" || updated.ProductType != pt || *updated.SourceDocumentID != "DOC-9" || updated.Metadata.Supplier != "EcoPlastics Ltd" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Audit.Version != 2 || updated.Audit.LastModifiedBy != "OP-002" {
		t.Fatalf("expected version bump, got %+v", updated.Audit)
	}
	_, _, err = svc.UpdateBatch(ctx, b.ID, BatchPatch{ProductName: strPtr("")}, SystemActor)
	requireValidation(t, err)
}

func TestLinkMeasurementIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	b := mustCreateBatch(t, svc)
	m := mustCreateMeasurement(t, svc, measurementInput(domain.SourceScale, "INTAKE-01", "Receipt", domain.ClassificationRecycled, 100))

	linked, _, err := svc.LinkMeasurement(ctx, b.ID, m.ID, SystemActor)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if linked.Audit.Version != 2 || !linked.HasMeasurement(m.ID) {
		t.Fatalf("expected linked at version 2, got %+v", linked)
	}
	stamped, _ := svc.GetMeasurement(ctx, m.ID)
	if stamped.BatchID == nil || *stamped.BatchID != b.ID {
		t.Fatalf("expected measurement stamped with batch, got %v", stamped.BatchID)
	}

	again, _, err := svc.LinkMeasurement(ctx, b.ID, m.ID, SystemActor)
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if again.Audit.Version != 2 || len(again.LinkedMeasurementIDs) != 1 {
		t.Fatalf("relink must be a no-op, got %+v", again)
	}
}

func TestLinkMeasurementErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	b := mustCreateBatch(t, svc)
	other := mustCreateBatch(t, svc)
	in := measurementInput(domain.SourceMES, "EXT-01", "Extrusion", domain.ClassificationMixed, 10)
	in.BatchID = strPtr(other.ID)
	m := mustCreateMeasurement(t, svc, in)

	_, _, err := svc.LinkMeasurement(ctx, "BATCH-2026-404", m.ID, SystemActor)
	requireNotFound(t, err)
	_, _, err = svc.LinkMeasurement(ctx, b.ID, "MR-2026-404404", SystemActor)
	requireNotFound(t, err)
	_, _, err = svc.LinkMeasurement(ctx, b.ID, m.ID, SystemActor)
	requireValidation(t, err)

	if _, _, err := svc.LinkMeasurement(ctx, other.ID, m.ID, SystemActor); err != nil {
		t.Fatalf("link to owning batch: %v", err)
	}
}

func TestBatchEfficiencyZeroReceived(t *testing.T) {
	svc := newTestService(t)
	b := mustCreateBatch(t, svc)
	eff, err := svc.BatchEfficiency(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("efficiency: %v", err)
	}
	if eff != (domain.Efficiency{}) {
		t.Fatalf("expected zero efficiency, got %+v", eff)
	}
}
