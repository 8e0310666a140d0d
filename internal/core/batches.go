package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"pcx/pkg/domain"
)

// CreateBatchInput carries the caller-supplied fields of a new batch.
type CreateBatchInput struct {
	ProductName      string
	ProductType      domain.ProductType
	Composition      []domain.MaterialComposition
	ExpectedQuantity float64
	Unit             domain.Unit
	StartDate        time.Time
	SourceDocumentID *string
	Notes            string
	Metadata         domain.BatchMetadata
}

// BatchFilter narrows ListBatches. Zero values match everything.
type BatchFilter struct {
	Status         domain.BatchStatus
	ProductType    domain.ProductType
	From           *time.Time
	To             *time.Time
	Classification domain.Classification
}

// QuantitiesPatch updates the provided quantity fields only.
type QuantitiesPatch struct {
	Expected *float64
	Received *float64
	Consumed *float64
	Yielded  *float64
	Waste    *float64
	Unit     *domain.Unit
}

// BatchPatch updates descriptive batch fields. Nil pointers are left unchanged.
type BatchPatch struct {
	ProductName      *string
	ProductType      *domain.ProductType
	Notes            *string
	SourceDocumentID *string
	Metadata         *domain.BatchMetadata
	StartDate        *time.Time
}

func (s *Service) validateComposition(lines []domain.MaterialComposition) error {
	if len(lines) == 0 {
		return domain.Invalid("composition", "at least one material is required")
	}
	for i, line := range lines {
		if !line.Classification.ValidForComposition() {
			return domain.Invalid("composition", "line %d has invalid classification %q", i, line.Classification)
		}
		if line.Percentage < 0 {
			return domain.Invalid("composition", "line %d has negative percentage %v", i, line.Percentage)
		}
	}
	if !domain.CompositionBalanced(lines, s.policy.CompositionTolerance) {
		return domain.Invalid("composition", "percentages must sum to 100, got %v", domain.CompositionTotal(lines))
	}
	return nil
}

func (s *Service) validateCreateBatch(in CreateBatchInput) error {
	if strings.TrimSpace(in.ProductName) == "" {
		return domain.Invalid("productName", "is required")
	}
	if !in.ProductType.Valid() {
		return domain.Invalid("productType", "unknown product type %q", in.ProductType)
	}
	if in.ExpectedQuantity <= 0 {
		return domain.Invalid("expectedQuantity", "must be positive, got %v", in.ExpectedQuantity)
	}
	if in.Unit != "" && !in.Unit.Valid() {
		return domain.Invalid("unit", "unknown unit %q", in.Unit)
	}
	return s.validateComposition(in.Composition)
}

// CreateBatch validates the input and stores a RECEIVED batch at version 1.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput, actor Actor) (Batch, Result, error) {
	var created Batch
	res, err := s.mutate(ctx, "create_batch", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		if err := s.validateCreateBatch(in); err != nil {
			return outcome{}, err
		}
		unit := in.Unit
		if unit == "" {
			unit = domain.UnitKilogram
		}
		start := in.StartDate
		if start.IsZero() {
			start = tx.Now()
		}
		composition := make([]domain.MaterialComposition, len(in.Composition))
		copy(composition, in.Composition)
		var err error
		created, err = tx.CreateBatch(domain.Batch{
			Status:           domain.BatchStatusReceived,
			ProductName:      strings.TrimSpace(in.ProductName),
			ProductType:      in.ProductType,
			Composition:      composition,
			Quantities:       domain.BatchQuantities{Expected: in.ExpectedQuantity, Unit: unit},
			StartDate:        start.UTC(),
			SourceDocumentID: in.SourceDocumentID,
			Notes:            in.Notes,
			Metadata:         in.Metadata,
			Audit: domain.BatchAudit{
				CreatedAt:      tx.Now(),
				CreatedBy:      actor.name(),
				LastModifiedAt: tx.Now(),
				LastModifiedBy: actor.name(),
				Version:        1,
			},
		})
		return outcome{entityID: created.ID, data: created}, err
	})
	return created, res, err
}

// GetBatch returns the batch or a NotFoundError.
func (s *Service) GetBatch(ctx context.Context, id string) (Batch, error) {
	var batch Batch
	err := s.read(ctx, "get_batch", func(context.Context) error {
		var ok bool
		batch, ok = s.store.GetBatch(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
		}
		return nil
	})
	return batch, err
}

func (f BatchFilter) matches(b Batch) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.ProductType != "" && b.ProductType != f.ProductType {
		return false
	}
	if f.From != nil && b.StartDate.Before(*f.From) {
		return false
	}
	if f.To != nil && b.StartDate.After(*f.To) {
		return false
	}
	if f.Classification != "" && !b.HasClassification(f.Classification) {
		return false
	}
	return true
}

// ListBatches returns matching batches, newest start date first.
func (s *Service) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error) {
	var out []Batch
	err := s.read(ctx, "list_batches", func(context.Context) error {
		out = make([]Batch, 0)
		for _, b := range s.store.ListBatches() {
			if filter.matches(b) {
				out = append(out, b)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].StartDate.Equal(out[j].StartDate) {
				return out[i].StartDate.After(out[j].StartDate)
			}
			return out[i].ID < out[j].ID
		})
		return nil
	})
	return out, err
}

func touchBatch(b *Batch, tx Transaction, actor Actor) {
	b.Audit.Version++
	b.Audit.LastModifiedAt = tx.Now()
	b.Audit.LastModifiedBy = actor.name()
}

// UpdateBatchStatus moves a batch to status. Completing a batch stamps the
// completion date once.
func (s *Service) UpdateBatchStatus(ctx context.Context, id string, status domain.BatchStatus, actor Actor) (Batch, Result, error) {
	var updated Batch
	res, err := s.mutate(ctx, "update_batch_status", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		if !status.Valid() {
			return outcome{entityID: id}, domain.Invalid("status", "unknown batch status %q", status)
		}
		var from domain.BatchStatus
		var err error
		updated, err = tx.UpdateBatch(id, func(b *Batch) error {
			from = b.Status
			b.Status = status
			if status == domain.BatchStatusCompleted && b.CompletionDate == nil {
				completed := tx.Now()
				b.CompletionDate = &completed
			}
			touchBatch(b, tx, actor)
			return nil
		})
		return outcome{
			entityID: id,
			note:     string(from) + "->" + string(status),
			data:     map[string]any{"from": from, "to": status, "version": updated.Audit.Version},
		}, err
	})
	return updated, res, err
}

// UpdateBatchQuantities merges the patch into the batch quantities.
func (s *Service) UpdateBatchQuantities(ctx context.Context, id string, patch QuantitiesPatch, actor Actor) (Batch, Result, error) {
	var updated Batch
	res, err := s.mutate(ctx, "update_batch_quantities", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		if err := patch.validate(); err != nil {
			return outcome{entityID: id}, err
		}
		var err error
		updated, err = tx.UpdateBatch(id, func(b *Batch) error {
			patch.apply(&b.Quantities)
			touchBatch(b, tx, actor)
			return nil
		})
		return outcome{entityID: id, data: updated.Quantities}, err
	})
	return updated, res, err
}

func (p QuantitiesPatch) validate() error {
	fields := []struct {
		name  string
		value *float64
	}{
		{"expected", p.Expected},
		{"received", p.Received},
		{"consumed", p.Consumed},
		{"yielded", p.Yielded},
		{"waste", p.Waste},
	}
	for _, f := range fields {
		if f.value != nil && *f.value < 0 {
			return domain.Invalid("quantities."+f.name, "must not be negative, got %v", *f.value)
		}
	}
	if p.Unit != nil && !p.Unit.Valid() {
		return domain.Invalid("quantities.unit", "unknown unit %q", *p.Unit)
	}
	return nil
}

func (p QuantitiesPatch) apply(q *domain.BatchQuantities) {
	if p.Expected != nil {
		q.Expected = *p.Expected
	}
	if p.Received != nil {
		q.Received = *p.Received
	}
	if p.Consumed != nil {
		q.Consumed = *p.Consumed
	}
	if p.Yielded != nil {
		q.Yielded = *p.Yielded
	}
	if p.Waste != nil {
		q.Waste = *p.Waste
	}
	if p.Unit != nil {
		q.Unit = *p.Unit
	}
}

// UpdateBatch applies a descriptive patch. Status, quantities and links have
// dedicated operations.
func (s *Service) UpdateBatch(ctx context.Context, id string, patch BatchPatch, actor Actor) (Batch, Result, error) {
	var updated Batch
	res, err := s.mutate(ctx, "update_batch", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		if patch.ProductName != nil && strings.TrimSpace(*patch.ProductName) == "" {
			return outcome{entityID: id}, domain.Invalid("productName", "must not be blank")
		}
		if patch.ProductType != nil && !patch.ProductType.Valid() {
			return outcome{entityID: id}, domain.Invalid("productType", "unknown product type %q", *patch.ProductType)
		}
		var err error
		updated, err = tx.UpdateBatch(id, func(b *Batch) error {
			if patch.ProductName != nil {
				b.ProductName = strings.TrimSpace(*patch.ProductName)
			}
			if patch.ProductType != nil {
				b.ProductType = *patch.ProductType
			}
			if patch.Notes != nil {
				b.Notes = *patch.Notes
			}
			if patch.SourceDocumentID != nil {
				doc := *patch.SourceDocumentID
				b.SourceDocumentID = &doc
			}
			if patch.Metadata != nil {
				b.Metadata = *patch.Metadata
			}
			if patch.StartDate != nil {
				b.StartDate = patch.StartDate.UTC()
			}
			touchBatch(b, tx, actor)
			return nil
		})
		return outcome{entityID: id, data: updated}, err
	})
	return updated, res, err
}

// LinkMeasurement associates a measurement with a batch in one transaction.
// Linking an already linked pair is a no-op.
func (s *Service) LinkMeasurement(ctx context.Context, batchID, measurementID string, actor Actor) (Batch, Result, error) {
	var linked Batch
	res, err := s.mutate(ctx, "link_measurement", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		out := outcome{entityID: batchID}
		batch, ok := tx.FindBatch(batchID)
		if !ok {
			return out, domain.NotFoundError{Entity: domain.EntityBatch, ID: batchID}
		}
		m, ok := tx.FindMeasurement(measurementID)
		if !ok {
			return out, domain.NotFoundError{Entity: domain.EntityMeasurement, ID: measurementID}
		}
		if m.BatchID != nil && *m.BatchID != "" && *m.BatchID != batchID {
			return out, domain.Invalid("measurementId", "measurement %s belongs to batch %s", measurementID, *m.BatchID)
		}
		if batch.HasMeasurement(measurementID) {
			linked = batch
			out.skipEvent = true
			out.note = "already linked"
			return out, nil
		}
		var err error
		linked, err = tx.UpdateBatch(batchID, func(b *Batch) error {
			b.LinkedMeasurementIDs = append(b.LinkedMeasurementIDs, measurementID)
			touchBatch(b, tx, actor)
			return nil
		})
		if err != nil {
			return out, err
		}
		if m.BatchID == nil || *m.BatchID == "" {
			if _, err := tx.UpdateMeasurement(measurementID, func(mm *Measurement) error {
				id := batchID
				mm.BatchID = &id
				return nil
			}); err != nil {
				return out, err
			}
		}
		out.data = map[string]string{"batchId": batchID, "measurementId": measurementID}
		return out, nil
	})
	return linked, res, err
}

// BatchEfficiency returns yield, waste and utilization for a batch.
func (s *Service) BatchEfficiency(ctx context.Context, id string) (domain.Efficiency, error) {
	batch, err := s.GetBatch(ctx, id)
	if err != nil {
		return domain.Efficiency{}, err
	}
	return domain.CalculateEfficiency(batch), nil
}
