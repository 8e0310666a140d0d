package core

import (
	"context"
	"fmt"

	"pcx/pkg/domain"
)

// MeasurementImmutabilityRule blocks updates that rewrite a recorded reading.
// Corrections must go through a superseding record.
func MeasurementImmutabilityRule() domain.Rule {
	return measurementImmutabilityRule{}
}

type measurementImmutabilityRule struct{}

func (measurementImmutabilityRule) Name() string { return "measurement_immutability" }

func (measurementImmutabilityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityMeasurement || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := domain.DecodeChangePayload[domain.Measurement](change.Before)
		if !ok {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Measurement](change.After)
		if !ok {
			continue
		}
		if field := rewrittenField(before, after); field != "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "measurement_immutability",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("measurement %s %s cannot change after recording; supersede it instead", after.ID, field),
				Entity:   domain.EntityMeasurement,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func rewrittenField(before, after domain.Measurement) string {
	switch {
	case before.Value != after.Value:
		return "value"
	case !before.Timestamp.Equal(after.Timestamp):
		return "timestamp"
	case before.Source != after.Source:
		return "source"
	case before.Location != after.Location:
		return "location"
	case before.MaterialClassification != after.MaterialClassification:
		return "materialClassification"
	case before.MaterialTypeCode != after.MaterialTypeCode:
		return "materialTypeCode"
	case before.Unit != after.Unit:
		return "unit"
	case before.Metadata.Supersedes != nil && (after.Metadata.Supersedes == nil || *after.Metadata.Supersedes != *before.Metadata.Supersedes):
		return "supersedes"
	case before.Metadata.SupersededBy != nil && (after.Metadata.SupersededBy == nil || *after.Metadata.SupersededBy != *before.Metadata.SupersededBy):
		return "supersededBy"
	case before.BatchID != nil && (after.BatchID == nil || *after.BatchID != *before.BatchID):
		return "batchId"
	}
	return ""
}
