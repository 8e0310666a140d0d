package core

import (
	"context"
	"time"

	"pcx/pkg/domain"
)

func seedTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

// DemoBatches returns the pilot demo batches.
func DemoBatches() []Batch {
	return []Batch{
		{
			ID:          "BATCH-2026-001",
			Status:      domain.BatchStatusInProgress,
			ProductName: "Recycled HDPE Pellets",
			ProductType: domain.ProductPellets,
			Composition: []domain.MaterialComposition{
				{MaterialTypeCode: "MAT-R01", MaterialTypeName: "Post-Consumer HDPE", Classification: domain.ClassificationRecycled, Percentage: 85},
				{MaterialTypeCode: "MAT-V02", MaterialTypeName: "Virgin HDPE", Classification: domain.ClassificationVirgin, Percentage: 15},
			},
			Quantities:           domain.BatchQuantities{Expected: 5000, Received: 5020, Consumed: 3200, Yielded: 2800, Waste: 150, Unit: domain.UnitKilogram},
			StartDate:            seedTime("2026-02-01T00:00:00Z"),
			SourceDocumentID:     ptr("DOC-2026-001"),
			LinkedMeasurementIDs: []string{"MR-2026-000001", "MR-2026-000002", "MR-2026-000003"},
			Notes:                "High quality batch from supplier A",
			Metadata:             domain.BatchMetadata{Supplier: "EcoPlastics Ltd", LotNumber: "LOT-2026-Q1-001", QualityGrade: "A"},
			Audit: domain.BatchAudit{
				CreatedAt:      seedTime("2026-02-01T08:00:00Z"),
				CreatedBy:      "OP-001",
				LastModifiedAt: seedTime("2026-02-04T10:00:00Z"),
				LastModifiedBy: "OP-002",
				Version:        3,
			},
		},
		{
			ID:          "BATCH-2026-002",
			Status:      domain.BatchStatusCompleted,
			ProductName: "Recycled PET Flakes",
			ProductType: domain.ProductFlakes,
			Composition: []domain.MaterialComposition{
				{MaterialTypeCode: "MAT-R05", MaterialTypeName: "Post-Consumer PET", Classification: domain.ClassificationRecycled, Percentage: 100},
			},
			Quantities:       domain.BatchQuantities{Expected: 3000, Received: 2985, Consumed: 2985, Yielded: 2750, Waste: 235, Unit: domain.UnitKilogram},
			StartDate:        seedTime("2026-01-25T00:00:00Z"),
			CompletionDate:   ptr(seedTime("2026-01-31T00:00:00Z")),
			SourceDocumentID: ptr("DOC-2026-002"),
			Notes:            "Completed successfully",
			Metadata:         domain.BatchMetadata{Supplier: "GreenCycle Inc", LotNumber: "LOT-2026-Q1-002", QualityGrade: "A+"},
			Audit: domain.BatchAudit{
				CreatedAt:      seedTime("2026-01-25T09:00:00Z"),
				CreatedBy:      "OP-001",
				LastModifiedAt: seedTime("2026-01-31T16:30:00Z"),
				LastModifiedBy: "OP-001",
				Version:        5,
			},
		},
		{
			ID:          "BATCH-2026-003",
			Status:      domain.BatchStatusReceived,
			ProductName: "Mixed Plastic Regrind",
			ProductType: domain.ProductRegrind,
			Composition: []domain.MaterialComposition{
				{MaterialTypeCode: "MAT-M01", MaterialTypeName: "Mixed PE/PP", Classification: domain.ClassificationMixed, Percentage: 100},
			},
			Quantities: domain.BatchQuantities{Expected: 1500, Received: 1500, Unit: domain.UnitKilogram},
			StartDate:  seedTime("2026-02-04T00:00:00Z"),
			Metadata:   domain.BatchMetadata{Supplier: "RecycleMart", LotNumber: "LOT-2026-Q1-003"},
			Audit: domain.BatchAudit{
				CreatedAt:      seedTime("2026-02-04T07:00:00Z"),
				CreatedBy:      "OP-003",
				LastModifiedAt: seedTime("2026-02-04T07:00:00Z"),
				LastModifiedBy: "OP-003",
				Version:        1,
			},
		},
	}
}

// DemoMeasurements returns the pilot demo readings.
func DemoMeasurements() []Measurement {
	batch := "BATCH-2026-001"
	return []Measurement{
		{
			ID:                     "MR-2026-000001",
			Source:                 domain.SourceScale,
			Timestamp:              seedTime("2026-02-04T08:30:00Z"),
			RecordedAt:             seedTime("2026-02-04T08:30:05Z"),
			Location:               domain.Location{StationID: "INTAKE-01", StationName: "Intake Station 1", ProcessStep: "Material Receipt - Ready for Production"},
			BatchID:                ptr(batch),
			OperatorID:             "OP-001",
			OperatorName:           "John Operator",
			Value:                  500.5,
			Unit:                   domain.UnitKilogram,
			MaterialClassification: domain.ClassificationRecycled,
			MaterialTypeCode:       "MAT-R01",
			ValidationStatus:       domain.ValidationValidated,
			Metadata:               domain.MeasurementMetadata{Notes: "Clean material, ready for processing"},
			Audit:                  domain.MeasurementAudit{CreatedAt: seedTime("2026-02-04T08:30:05Z"), CreatedBy: "OP-001", Version: 1},
		},
		{
			ID:                     "MR-2026-000002",
			Source:                 domain.SourceManual,
			Timestamp:              seedTime("2026-02-04T09:15:00Z"),
			RecordedAt:             seedTime("2026-02-04T09:15:20Z"),
			Location:               domain.Location{StationID: "MIXING-01", StationName: "Mixing Station 1", ProcessStep: "Before Mixing"},
			BatchID:                ptr(batch),
			OperatorID:             "OP-001",
			OperatorName:           "John Operator",
			Value:                  450.2,
			Unit:                   domain.UnitKilogram,
			MaterialClassification: domain.ClassificationVirgin,
			MaterialTypeCode:       "MAT-V01",
			ValidationStatus:       domain.ValidationPending,
			Metadata: domain.MeasurementMetadata{
				EntryJustification: "Scale temporarily unavailable",
				Notes:              "Virgin material addition for recipe compliance",
			},
			Audit: domain.MeasurementAudit{CreatedAt: seedTime("2026-02-04T09:15:20Z"), CreatedBy: "OP-001", Version: 1},
		},
		{
			ID:                     "MR-2026-000003",
			Source:                 domain.SourceMES,
			Timestamp:              seedTime("2026-02-04T10:45:00Z"),
			RecordedAt:             seedTime("2026-02-04T10:45:02Z"),
			Location:               domain.Location{StationID: "EXTRUSION-01", StationName: "Extrusion Station 1", ProcessStep: "After Extrusion"},
			BatchID:                ptr(batch),
			OperatorID:             "OP-002",
			OperatorName:           "Jane Smith",
			Value:                  850.0,
			Unit:                   domain.UnitKilogram,
			MaterialClassification: domain.ClassificationMixed,
			MaterialTypeCode:       "PROD-001",
			ValidationStatus:       domain.ValidationValidated,
			Audit:                  domain.MeasurementAudit{CreatedAt: seedTime("2026-02-04T10:45:02Z"), CreatedBy: "SYSTEM", Version: 1},
		},
	}
}

// DemoDiscrepancies returns the open findings shown on the reconciliation page.
func DemoDiscrepancies() []Discrepancy {
	return []Discrepancy{
		{
			ID:            "DSC-2026-001",
			Type:          "WEIGHT_MISMATCH",
			Severity:      domain.SeverityHigh,
			Status:        domain.DiscrepancyOpen,
			Description:   "Intake weight differs from supplier delivery note",
			BatchID:       "BATCH-2026-001",
			ExpectedValue: ptr(5000.0),
			ActualValue:   ptr(5020.0),
			Difference:    ptr(20.0),
			Unit:          "kg",
			Detected:      seedTime("2026-02-04T06:00:00Z"),
			SLADeadline:   ptr(seedTime("2026-02-06T06:00:00Z")),
		},
		{
			ID:            "DSC-2026-002",
			Type:          "YIELD_VARIANCE",
			Severity:      domain.SeverityMedium,
			Status:        domain.DiscrepancyOpen,
			Description:   "Yield below expected for completed PET batch",
			BatchID:       "BATCH-2026-002",
			ExpectedValue: ptr(2800.0),
			ActualValue:   ptr(2750.0),
			Difference:    ptr(-50.0),
			Unit:          "kg",
			Detected:      seedTime("2026-02-01T06:00:00Z"),
			SLADeadline:   ptr(seedTime("2026-02-03T06:00:00Z")),
		},
	}
}

// SeedDemoData loads the demo data set. Records that already exist are left
// untouched, so seeding twice is harmless. It reports how many records were
// created.
func (s *Service) SeedDemoData(ctx context.Context) (int, error) {
	created := 0
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, m := range DemoMeasurements() {
			if _, exists := tx.FindMeasurement(m.ID); exists {
				continue
			}
			if _, err := tx.CreateMeasurement(m); err != nil {
				return err
			}
			created++
		}
		for _, b := range DemoBatches() {
			if _, exists := tx.FindBatch(b.ID); exists {
				continue
			}
			if _, err := tx.CreateBatch(b); err != nil {
				return err
			}
			created++
		}
		for _, d := range DemoDiscrepancies() {
			if _, exists := tx.FindDiscrepancy(d.ID); exists {
				continue
			}
			if _, err := tx.CreateDiscrepancy(d); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("demo data seeded", "created", created)
	return created, nil
}
