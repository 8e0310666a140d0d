package core

import (
	"context"
	"fmt"

	"pcx/pkg/domain"
)

// LifecycleTransitionRule blocks unknown states and exits from terminal states.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	entity    domain.EntityType
	label     string
	terminal  map[string]struct{}
	valid     map[string]struct{}
	extractor func(payload domain.ChangePayload) (id string, state string, ok bool)
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntityBatch: {
		entity:   domain.EntityBatch,
		label:    "batch",
		terminal: toSet(),
		valid: toSet(
			string(domain.BatchStatusReceived),
			string(domain.BatchStatusInProgress),
			string(domain.BatchStatusCompleted),
			string(domain.BatchStatusCancelled),
		),
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			batch, ok := domain.DecodeChangePayload[domain.Batch](payload)
			if !ok {
				return "", "", false
			}
			return batch.ID, string(batch.Status), true
		},
	},
	domain.EntityMeasurement: {
		entity:   domain.EntityMeasurement,
		label:    "measurement",
		terminal: toSet(),
		valid: toSet(
			string(domain.ValidationPending),
			string(domain.ValidationValidated),
			string(domain.ValidationFlagged),
		),
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			m, ok := domain.DecodeChangePayload[domain.Measurement](payload)
			if !ok {
				return "", "", false
			}
			return m.ID, string(m.ValidationStatus), true
		},
	},
	domain.EntityDiscrepancy: {
		entity:   domain.EntityDiscrepancy,
		label:    "discrepancy",
		terminal: toSet(string(domain.DiscrepancyResolved), string(domain.DiscrepancyIgnored)),
		valid: toSet(
			string(domain.DiscrepancyOpen),
			string(domain.DiscrepancyResolved),
			string(domain.DiscrepancyIgnored),
		),
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			d, ok := domain.DecodeChangePayload[domain.Discrepancy](payload)
			if !ok {
				return "", "", false
			}
			return d.ID, string(d.Status), true
		},
	},
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, afterState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if _, valid := machine.valid[afterState]; !valid {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s %s is set to invalid state %q", machine.label, afterID, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
			continue
		}

		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if _, terminal := machine.terminal[beforeState]; !terminal {
			continue
		}
		if afterState != beforeState {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from terminal state %s to %s", machine.label, beforeID, beforeState, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
