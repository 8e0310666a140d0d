package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pcx/pkg/domain"
)

// CreateMeasurementInput carries a new reading.
type CreateMeasurementInput struct {
	Source                 domain.MeasurementSource
	Timestamp              time.Time
	StationID              string
	StationName            string
	ProcessStep            string
	BatchID                *string
	OperatorID             string
	OperatorName           string
	Value                  float64
	Unit                   domain.Unit
	MaterialClassification domain.Classification
	MaterialTypeCode       string
	EntryJustification     string
	Notes                  string
	Evidence               []domain.Evidence
}

// MeasurementFilter narrows ListMeasurements. Zero values match everything.
type MeasurementFilter struct {
	BatchID          string
	Source           domain.MeasurementSource
	Classification   domain.Classification
	ProcessStep      string
	ValidationStatus domain.ValidationStatus
	From             *time.Time
	To               *time.Time
	// HeadsOnly drops readings that were replaced by a correction.
	HeadsOnly bool
}

func (s *Service) validateMeasurement(in CreateMeasurementInput) error {
	if !in.Source.Valid() {
		return domain.Invalid("source", "unknown source %q", in.Source)
	}
	if in.Value <= 0 {
		return domain.Invalid("value", "must be positive, got %v", in.Value)
	}
	if strings.TrimSpace(in.MaterialTypeCode) == "" {
		return domain.Invalid("materialTypeCode", "is required")
	}
	if strings.TrimSpace(in.ProcessStep) == "" {
		return domain.Invalid("location.processStep", "is required")
	}
	if !in.MaterialClassification.ValidForMeasurement() {
		return domain.Invalid("materialClassification", "unknown classification %q", in.MaterialClassification)
	}
	if in.Unit != "" && !in.Unit.Valid() {
		return domain.Invalid("unit", "unknown unit %q", in.Unit)
	}
	for i, ev := range in.Evidence {
		if !ev.Type.Valid() {
			return domain.Invalid("evidenceLinks", "entry %d has unknown type %q", i, ev.Type)
		}
	}
	if s.policy.RequireManualJustification && in.Source == domain.SourceManual && strings.TrimSpace(in.EntryJustification) == "" {
		return domain.Invalid("metadata.entryJustification", "is required for manual entries")
	}
	return nil
}

func (s *Service) buildMeasurement(tx Transaction, in CreateMeasurementInput, actor Actor) Measurement {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = tx.Now()
	}
	unit := in.Unit
	if unit == "" {
		unit = domain.UnitKilogram
	}
	var batchID *string
	if in.BatchID != nil && strings.TrimSpace(*in.BatchID) != "" {
		id := strings.TrimSpace(*in.BatchID)
		batchID = &id
	}
	evidence := make([]domain.Evidence, 0, len(in.Evidence))
	for _, ev := range in.Evidence {
		evidence = append(evidence, stampEvidence(ev, tx.Now()))
	}
	return Measurement{
		Source:    in.Source,
		Timestamp: ts.UTC(),
		Location: domain.Location{
			StationID:   in.StationID,
			StationName: in.StationName,
			ProcessStep: strings.TrimSpace(in.ProcessStep),
		},
		BatchID:                batchID,
		OperatorID:             in.OperatorID,
		OperatorName:           in.OperatorName,
		Value:                  in.Value,
		Unit:                   unit,
		MaterialClassification: in.MaterialClassification,
		MaterialTypeCode:       strings.TrimSpace(in.MaterialTypeCode),
		EvidenceLinks:          evidence,
		ValidationStatus:       domain.DefaultValidationStatus(in.Source),
		Metadata: domain.MeasurementMetadata{
			EntryJustification: in.EntryJustification,
			Notes:              in.Notes,
		},
		Audit: domain.MeasurementAudit{
			CreatedAt: tx.Now(),
			CreatedBy: actor.name(),
			Version:   1,
		},
	}
}

func stampEvidence(ev domain.Evidence, now time.Time) domain.Evidence {
	if ev.EvidenceID == "" {
		ev.EvidenceID = "EV-" + uuid.NewString()
	}
	if ev.UploadedAt.IsZero() {
		ev.UploadedAt = now
	}
	return ev
}

// CreateMeasurement stores a reading. Manual entries start PENDING review.
func (s *Service) CreateMeasurement(ctx context.Context, in CreateMeasurementInput, actor Actor) (Measurement, Result, error) {
	var created Measurement
	res, err := s.mutate(ctx, "create_measurement", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		if err := s.validateMeasurement(in); err != nil {
			return outcome{}, err
		}
		var err error
		created, err = tx.CreateMeasurement(s.buildMeasurement(tx, in, actor))
		return outcome{entityID: created.ID, data: created}, err
	})
	return created, res, err
}

// GetMeasurement returns the measurement or a NotFoundError.
func (s *Service) GetMeasurement(ctx context.Context, id string) (Measurement, error) {
	var m Measurement
	err := s.read(ctx, "get_measurement", func(context.Context) error {
		var ok bool
		m, ok = s.store.GetMeasurement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityMeasurement, ID: id}
		}
		return nil
	})
	return m, err
}

func (f MeasurementFilter) matches(m Measurement) bool {
	if f.BatchID != "" && (m.BatchID == nil || *m.BatchID != f.BatchID) {
		return false
	}
	if f.Source != "" && m.Source != f.Source {
		return false
	}
	if f.Classification != "" && m.MaterialClassification != f.Classification {
		return false
	}
	if f.ProcessStep != "" && !strings.EqualFold(m.Location.ProcessStep, f.ProcessStep) {
		return false
	}
	if f.ValidationStatus != "" && m.ValidationStatus != f.ValidationStatus {
		return false
	}
	if f.From != nil && m.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && m.Timestamp.After(*f.To) {
		return false
	}
	if f.HeadsOnly && m.Superseded() {
		return false
	}
	return true
}

func sortMeasurements(ms []Measurement) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].Timestamp.Equal(ms[j].Timestamp) {
			return ms[i].Timestamp.After(ms[j].Timestamp)
		}
		return ms[i].ID > ms[j].ID
	})
}

// ListMeasurements returns matching readings, newest first.
func (s *Service) ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]Measurement, error) {
	var out []Measurement
	err := s.read(ctx, "list_measurements", func(context.Context) error {
		out = make([]Measurement, 0)
		for _, m := range s.store.ListMeasurements() {
			if filter.matches(m) {
				out = append(out, m)
			}
		}
		sortMeasurements(out)
		return nil
	})
	return out, err
}

// SupersedeMeasurement records a correction. The original keeps its value and
// gains a forward pointer to the replacement.
func (s *Service) SupersedeMeasurement(ctx context.Context, originalID string, in CreateMeasurementInput, actor Actor) (Measurement, Result, error) {
	var created Measurement
	res, err := s.mutate(ctx, "supersede_measurement", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		original, ok := tx.FindMeasurement(originalID)
		if !ok {
			return outcome{entityID: originalID}, domain.NotFoundError{Entity: domain.EntityMeasurement, ID: originalID}
		}
		if original.Superseded() {
			return outcome{entityID: originalID}, domain.Invalid("id", "measurement %s is already superseded by %s", originalID, *original.Metadata.SupersededBy)
		}
		if in.BatchID == nil && original.BatchID != nil {
			in.BatchID = original.BatchID
		}
		if err := s.validateMeasurement(in); err != nil {
			return outcome{entityID: originalID}, err
		}
		replacement := s.buildMeasurement(tx, in, actor)
		back := originalID
		replacement.Metadata.Supersedes = &back
		var err error
		created, err = tx.CreateMeasurement(replacement)
		if err != nil {
			return outcome{entityID: originalID}, err
		}
		forward := created.ID
		if _, err := tx.UpdateMeasurement(originalID, func(m *Measurement) error {
			m.Metadata.SupersededBy = &forward
			return nil
		}); err != nil {
			return outcome{entityID: created.ID}, err
		}
		return outcome{
			entityID: created.ID,
			note:     "supersedes " + originalID,
			data:     map[string]string{"originalId": originalID, "replacementId": created.ID},
		}, nil
	})
	return created, res, err
}

// AttachEvidence appends an evidence link to a measurement.
func (s *Service) AttachEvidence(ctx context.Context, id string, ev domain.Evidence, actor Actor) (Measurement, Result, error) {
	var updated Measurement
	res, err := s.mutate(ctx, "attach_evidence", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		if !ev.Type.Valid() {
			return outcome{entityID: id}, domain.Invalid("type", "unknown evidence type %q", ev.Type)
		}
		if strings.TrimSpace(ev.URL) == "" {
			return outcome{entityID: id}, domain.Invalid("url", "is required")
		}
		stamped := stampEvidence(ev, tx.Now())
		var err error
		updated, err = tx.UpdateMeasurement(id, func(m *Measurement) error {
			m.EvidenceLinks = append(m.EvidenceLinks, stamped)
			return nil
		})
		return outcome{entityID: id, data: stamped}, err
	})
	return updated, res, err
}

// UpdateValidationStatus moves a measurement through review. Transitions
// outside the review graph need override from a privileged actor.
func (s *Service) UpdateValidationStatus(ctx context.Context, id string, status domain.ValidationStatus, actor Actor, override bool) (Measurement, Result, error) {
	var updated Measurement
	res, err := s.mutate(ctx, "update_validation_status", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		out := outcome{entityID: id}
		if !status.Valid() {
			return out, domain.Invalid("validationStatus", "unknown status %q", status)
		}
		current, ok := tx.FindMeasurement(id)
		if !ok {
			return out, domain.NotFoundError{Entity: domain.EntityMeasurement, ID: id}
		}
		from := current.ValidationStatus
		if from == status {
			updated = current
			out.skipEvent = true
			out.note = "unchanged"
			return out, nil
		}
		if !domain.ValidationTransitionAllowed(from, status) {
			if !override {
				return out, domain.Invalid("validationStatus", "cannot move from %s to %s", from, status)
			}
			if !actor.Privileged() {
				return out, domain.Invalid("override", "actor %s with role %q may not override validation", actor.name(), actor.Role)
			}
			out.note = "override"
		}
		var err error
		updated, err = tx.UpdateMeasurement(id, func(m *Measurement) error {
			m.ValidationStatus = status
			m.Audit.Version++
			return nil
		})
		out.data = map[string]any{"from": from, "to": status, "override": out.note == "override"}
		return out, err
	})
	return updated, res, err
}

// MeasurementChain returns every record of the correction chain containing
// id, oldest first.
func (s *Service) MeasurementChain(ctx context.Context, id string) ([]Measurement, error) {
	var chain []Measurement
	err := s.read(ctx, "measurement_chain", func(ctx context.Context) error {
		return s.store.View(ctx, func(view TransactionView) error {
			start, ok := view.FindMeasurement(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityMeasurement, ID: id}
			}
			seen := map[string]struct{}{start.ID: {}}
			root := start
			for root.Metadata.Supersedes != nil {
				prev, ok := view.FindMeasurement(*root.Metadata.Supersedes)
				if !ok {
					break
				}
				if _, dup := seen[prev.ID]; dup {
					break
				}
				seen[prev.ID] = struct{}{}
				root = prev
			}
			chain = []Measurement{root}
			visited := map[string]struct{}{root.ID: {}}
			cur := root
			for cur.Metadata.SupersededBy != nil {
				next, ok := view.FindMeasurement(*cur.Metadata.SupersededBy)
				if !ok {
					break
				}
				if _, dup := visited[next.ID]; dup {
					break
				}
				visited[next.ID] = struct{}{}
				chain = append(chain, next)
				cur = next
			}
			return nil
		})
	})
	return chain, err
}
