package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"pcx/pkg/domain"
)

// DiscrepancyTypeVariance marks findings raised by the reconciliation check.
const DiscrepancyTypeVariance = "MEASUREMENT_VARIANCE"

// CreateDiscrepancyInput describes a manually reported finding.
type CreateDiscrepancyInput struct {
	Type          string
	Severity      domain.DiscrepancySeverity
	Description   string
	BatchID       string
	ProcessStep   string
	ExpectedValue *float64
	ActualValue   *float64
	Unit          string
	SLADeadline   *time.Time
}

// DiscrepancyFilter narrows ListDiscrepancies.
type DiscrepancyFilter struct {
	Status   domain.DiscrepancyStatus
	Severity domain.DiscrepancySeverity
	BatchID  string
}

func (f DiscrepancyFilter) matches(d Discrepancy) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Severity != "" && d.Severity != f.Severity {
		return false
	}
	if f.BatchID != "" && d.BatchID != f.BatchID {
		return false
	}
	return true
}

// CreateDiscrepancy stores an OPEN finding. When both expected and actual are
// present the difference is derived and, without an explicit severity, the
// severity comes from the variance band.
func (s *Service) CreateDiscrepancy(ctx context.Context, in CreateDiscrepancyInput, actor Actor) (Discrepancy, Result, error) {
	var created Discrepancy
	res, err := s.mutate(ctx, "create_discrepancy", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		if strings.TrimSpace(in.BatchID) == "" {
			return outcome{}, domain.Invalid("batchId", "is required")
		}
		if in.Severity != "" && !in.Severity.Valid() {
			return outcome{}, domain.Invalid("severity", "unknown severity %q", in.Severity)
		}
		d := Discrepancy{
			Type:          in.Type,
			Severity:      in.Severity,
			Status:        domain.DiscrepancyOpen,
			Description:   in.Description,
			BatchID:       strings.TrimSpace(in.BatchID),
			ProcessStep:   in.ProcessStep,
			ExpectedValue: in.ExpectedValue,
			ActualValue:   in.ActualValue,
			Unit:          in.Unit,
			Detected:      tx.Now(),
			SLADeadline:   in.SLADeadline,
		}
		if d.Type == "" {
			d.Type = "MANUAL_REPORT"
		}
		if d.ExpectedValue != nil && d.ActualValue != nil {
			diff := domain.Round2(*d.ActualValue - *d.ExpectedValue)
			d.Difference = &diff
			if d.Severity == "" {
				d.Severity = s.policy.Classify(domain.Variance(*d.ExpectedValue, diff)).Severity()
			}
		}
		if d.Severity == "" {
			d.Severity = domain.SeverityLow
		}
		if d.SLADeadline == nil && s.policy.DiscrepancySLA > 0 {
			deadline := d.Detected.Add(s.policy.DiscrepancySLA)
			d.SLADeadline = &deadline
		}
		var err error
		created, err = tx.CreateDiscrepancy(d)
		return outcome{entityID: created.ID, data: created}, err
	})
	return created, res, err
}

// GetDiscrepancy returns the discrepancy or a NotFoundError.
func (s *Service) GetDiscrepancy(ctx context.Context, id string) (Discrepancy, error) {
	var d Discrepancy
	err := s.read(ctx, "get_discrepancy", func(context.Context) error {
		var ok bool
		d, ok = s.store.GetDiscrepancy(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityDiscrepancy, ID: id}
		}
		return nil
	})
	return d, err
}

// ListDiscrepancies returns matching findings, most recently detected first.
func (s *Service) ListDiscrepancies(ctx context.Context, filter DiscrepancyFilter) ([]Discrepancy, error) {
	var out []Discrepancy
	err := s.read(ctx, "list_discrepancies", func(context.Context) error {
		out = make([]Discrepancy, 0)
		for _, d := range s.store.ListDiscrepancies() {
			if filter.matches(d) {
				out = append(out, d)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].Detected.Equal(out[j].Detected) {
				return out[i].Detected.After(out[j].Detected)
			}
			return out[i].ID > out[j].ID
		})
		return nil
	})
	return out, err
}

// ResolveDiscrepancy closes an OPEN finding with a resolution reason.
func (s *Service) ResolveDiscrepancy(ctx context.Context, id, reason string, actor Actor) (Discrepancy, Result, error) {
	return s.closeDiscrepancy(ctx, "resolve_discrepancy", id, domain.DiscrepancyResolved, reason, actor)
}

// IgnoreDiscrepancy dismisses an OPEN finding with a reason.
func (s *Service) IgnoreDiscrepancy(ctx context.Context, id, reason string, actor Actor) (Discrepancy, Result, error) {
	return s.closeDiscrepancy(ctx, "ignore_discrepancy", id, domain.DiscrepancyIgnored, reason, actor)
}

func (s *Service) closeDiscrepancy(ctx context.Context, op, id string, target domain.DiscrepancyStatus, reason string, actor Actor) (Discrepancy, Result, error) {
	var updated Discrepancy
	res, err := s.mutate(ctx, op, actor, func(_ context.Context, tx Transaction) (outcome, error) {
		out := outcome{entityID: id, note: reason}
		if strings.TrimSpace(reason) == "" {
			return out, domain.Invalid("resolution", "a reason is required")
		}
		current, ok := tx.FindDiscrepancy(id)
		if !ok {
			return out, domain.NotFoundError{Entity: domain.EntityDiscrepancy, ID: id}
		}
		if current.Status != domain.DiscrepancyOpen {
			return out, domain.Invalid("status", "discrepancy %s is %s; only OPEN findings can move to %s", id, current.Status, target)
		}
		var err error
		updated, err = tx.UpdateDiscrepancy(id, func(d *Discrepancy) error {
			at := tx.Now()
			d.Status = target
			d.ResolvedAt = &at
			d.ResolvedBy = actor.name()
			d.Resolution = strings.TrimSpace(reason)
			return nil
		})
		out.data = updated
		return out, err
	})
	return updated, res, err
}

// ReconciliationRow is a discrepancy decorated with its variance band.
type ReconciliationRow struct {
	Discrepancy
	Variance float64             `json:"variance"`
	Band     domain.VarianceBand `json:"band"`
	Overdue  bool                `json:"overdue"`
}

// ReconciliationRows returns the reconciliation table for matching findings.
func (s *Service) ReconciliationRows(ctx context.Context, filter DiscrepancyFilter) ([]ReconciliationRow, error) {
	list, err := s.ListDiscrepancies(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	rows := make([]ReconciliationRow, 0, len(list))
	for _, d := range list {
		row := ReconciliationRow{Discrepancy: d, Band: domain.BandGreen}
		if d.Difference != nil {
			expected := 0.0
			if d.ExpectedValue != nil {
				expected = *d.ExpectedValue
			}
			row.Variance = domain.Variance(expected, *d.Difference)
			row.Band = s.policy.Classify(row.Variance)
		}
		row.Overdue = d.Status == domain.DiscrepancyOpen && d.SLADeadline != nil && now.After(*d.SLADeadline)
		rows = append(rows, row)
	}
	return rows, nil
}

type reconciliationKey struct {
	batchID     string
	processStep string
}

// reconciliationSums keeps sums in the group's own unit and in kilograms. A
// group whose readings disagree on unit is reported in kilograms.
type reconciliationSums struct {
	automated, manual     float64
	automatedKg, manualKg float64
	hasAutomated          bool
	hasManual             bool
	unit                  domain.Unit
	mixedUnits            bool
}

func (r *reconciliationSums) add(m domain.Measurement) {
	if m.Unit != r.unit {
		r.mixedUnits = true
	}
	kg := m.Unit.ToKilograms(m.Value)
	switch {
	case m.Source.Automated():
		r.automated += m.Value
		r.automatedKg += kg
		r.hasAutomated = true
	case m.Source == domain.SourceManual:
		r.manual += m.Value
		r.manualKg += kg
		r.hasManual = true
	}
}

func (r *reconciliationSums) totals() (automated, manual float64, unit domain.Unit) {
	if r.mixedUnits {
		return r.automatedKg, r.manualKg, domain.UnitKilogram
	}
	return r.automated, r.manual, r.unit
}

// RunReconciliationCheck compares automated and manual readings per batch and
// process step and opens a finding for every pair whose variance leaves the
// green band. Pairs that already have an OPEN finding are skipped.
func (s *Service) RunReconciliationCheck(ctx context.Context, actor Actor) ([]Discrepancy, Result, error) {
	var created []Discrepancy
	res, err := s.mutate(ctx, "run_reconciliation_check", actor, func(_ context.Context, tx Transaction) (outcome, error) {
		view := tx.Snapshot()
		groups := make(map[reconciliationKey]*reconciliationSums)
		for _, m := range view.ListMeasurements() {
			if m.Superseded() || m.BatchID == nil || *m.BatchID == "" {
				continue
			}
			key := reconciliationKey{batchID: *m.BatchID, processStep: strings.ToUpper(m.Location.ProcessStep)}
			sums, ok := groups[key]
			if !ok {
				sums = &reconciliationSums{unit: m.Unit}
				groups[key] = sums
			}
			sums.add(m)
		}

		open := make(map[reconciliationKey]bool)
		for _, d := range view.ListDiscrepancies() {
			if d.Status == domain.DiscrepancyOpen && d.Type == DiscrepancyTypeVariance {
				open[reconciliationKey{batchID: d.BatchID, processStep: strings.ToUpper(d.ProcessStep)}] = true
			}
		}

		keys := make([]reconciliationKey, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].batchID != keys[j].batchID {
				return keys[i].batchID < keys[j].batchID
			}
			return keys[i].processStep < keys[j].processStep
		})

		for _, key := range keys {
			sums := groups[key]
			if !sums.hasAutomated || !sums.hasManual || open[key] {
				continue
			}
			automated, manual, unit := sums.totals()
			expected := domain.Round2(automated)
			actual := domain.Round2(manual)
			diff := domain.Round2(actual - expected)
			band := s.policy.Classify(domain.Variance(expected, diff))
			if band == domain.BandGreen {
				continue
			}
			detected := tx.Now()
			deadline := detected.Add(s.policy.DiscrepancySLA)
			d, err := tx.CreateDiscrepancy(Discrepancy{
				Type:          DiscrepancyTypeVariance,
				Severity:      band.Severity(),
				Status:        domain.DiscrepancyOpen,
				Description:   fmt.Sprintf("manual %s readings differ from automated readings by %.2f %s", key.processStep, diff, unit),
				BatchID:       key.batchID,
				ProcessStep:   key.processStep,
				ExpectedValue: &expected,
				ActualValue:   &actual,
				Difference:    &diff,
				Unit:          string(unit),
				Detected:      detected,
				SLADeadline:   &deadline,
			})
			if err != nil {
				return outcome{}, err
			}
			created = append(created, d)
		}
		return outcome{note: fmt.Sprintf("%d created", len(created))}, nil
	})
	if err != nil {
		return nil, res, err
	}
	for _, d := range created {
		s.publish(ctx, "create_discrepancy", d.ID, actor, d)
	}
	return created, res, nil
}
