package core

import (
	"context"
	"fmt"

	"pcx/pkg/domain"
)

// BatchIntegrityRule guards batch quantities, the creation-time composition
// and measurement links.
func BatchIntegrityRule(policy domain.Policy) domain.Rule {
	return batchIntegrityRule{tolerance: policy.CompositionTolerance}
}

type batchIntegrityRule struct {
	tolerance float64
}

func (batchIntegrityRule) Name() string { return "batch_integrity" }

func (r batchIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	add := func(sev domain.Severity, id, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "batch_integrity",
			Severity: sev,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityBatch,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityBatch {
			continue
		}
		b, ok := domain.DecodeChangePayload[domain.Batch](change.After)
		if !ok {
			continue
		}
		q := b.Quantities
		if q.Expected < 0 || q.Received < 0 || q.Consumed < 0 || q.Yielded < 0 || q.Waste < 0 {
			add(domain.SeverityBlock, b.ID, "batch %s has negative quantities", b.ID)
		}
		if change.Action == domain.ActionCreate && !domain.CompositionBalanced(b.Composition, r.tolerance) {
			add(domain.SeverityBlock, b.ID, "batch %s composition sums to %v, expected 100", b.ID, domain.CompositionTotal(b.Composition))
		}
		if q.Consumed > q.Received {
			add(domain.SeverityWarn, b.ID, "batch %s consumed %v exceeds received %v", b.ID, q.Consumed, q.Received)
		}
		if q.Consumed > 0 && q.Yielded+q.Waste > q.Consumed {
			add(domain.SeverityWarn, b.ID, "batch %s yield plus waste exceeds consumed mass", b.ID)
		}
		for _, mid := range b.LinkedMeasurementIDs {
			if _, ok := view.FindMeasurement(mid); !ok {
				add(domain.SeverityBlock, b.ID, "batch %s links unknown measurement %s", b.ID, mid)
			}
		}
	}
	return res, nil
}
