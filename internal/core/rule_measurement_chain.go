package core

import (
	"context"
	"fmt"

	"pcx/pkg/domain"
)

// MeasurementChainRule keeps supersede pointers mutual and the chain acyclic.
func MeasurementChainRule() domain.Rule {
	return measurementChainRule{}
}

type measurementChainRule struct{}

func (measurementChainRule) Name() string { return "measurement_chain" }

func (r measurementChainRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	checked := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityMeasurement {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Measurement](change.After)
		if !ok {
			continue
		}
		if _, done := checked[after.ID]; done {
			continue
		}
		checked[after.ID] = struct{}{}
		current, ok := view.FindMeasurement(after.ID)
		if !ok {
			continue
		}
		if msg := r.pointerProblem(view, current); msg != "" {
			res.Violations = append(res.Violations, r.violation(current.ID, msg))
			continue
		}
		if cycleAt := supersedeCycle(view, current); cycleAt != "" {
			res.Violations = append(res.Violations, r.violation(current.ID, fmt.Sprintf("correction chain of %s loops back through %s", current.ID, cycleAt)))
		}
	}
	return res, nil
}

func (measurementChainRule) violation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "measurement_chain",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityMeasurement,
		EntityID: id,
	}
}

func (measurementChainRule) pointerProblem(view domain.RuleView, m domain.Measurement) string {
	if prev := m.Metadata.Supersedes; prev != nil {
		if *prev == m.ID {
			return fmt.Sprintf("measurement %s supersedes itself", m.ID)
		}
		target, ok := view.FindMeasurement(*prev)
		if !ok {
			return fmt.Sprintf("measurement %s supersedes unknown measurement %s", m.ID, *prev)
		}
		if target.Metadata.SupersededBy == nil || *target.Metadata.SupersededBy != m.ID {
			return fmt.Sprintf("measurement %s supersedes %s but %s does not point forward to it", m.ID, *prev, *prev)
		}
	}
	if next := m.Metadata.SupersededBy; next != nil {
		if *next == m.ID {
			return fmt.Sprintf("measurement %s is superseded by itself", m.ID)
		}
		target, ok := view.FindMeasurement(*next)
		if !ok {
			return fmt.Sprintf("measurement %s is superseded by unknown measurement %s", m.ID, *next)
		}
		if target.Metadata.Supersedes == nil || *target.Metadata.Supersedes != m.ID {
			return fmt.Sprintf("measurement %s is superseded by %s but %s does not point back", m.ID, *next, *next)
		}
	}
	return ""
}

// supersedeCycle walks the backward pointers and returns the id at which a
// loop is detected, or "".
func supersedeCycle(view domain.RuleView, start domain.Measurement) string {
	seen := map[string]struct{}{start.ID: {}}
	cur := start
	for cur.Metadata.Supersedes != nil {
		id := *cur.Metadata.Supersedes
		if _, dup := seen[id]; dup {
			return id
		}
		seen[id] = struct{}{}
		next, ok := view.FindMeasurement(id)
		if !ok {
			return ""
		}
		cur = next
	}
	return ""
}
