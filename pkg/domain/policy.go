package domain

import (
	"fmt"
	"strings"
	"time"
)

// Policy holds the business thresholds used by validation, mass balance and
// reconciliation.
type Policy struct {
	LossFallbackRate           float64       `yaml:"loss_fallback_rate" json:"lossFallbackRate"`
	BalanceTolerance           float64       `yaml:"balance_tolerance" json:"balanceTolerance"`
	VarianceWarning            float64       `yaml:"variance_warning" json:"varianceWarning"`
	VarianceCritical           float64       `yaml:"variance_critical" json:"varianceCritical"`
	CompositionTolerance       float64       `yaml:"composition_tolerance" json:"compositionTolerance"`
	IntakeStationPrefix        string        `yaml:"intake_station_prefix" json:"intakeStationPrefix"`
	DiscrepancySLA             time.Duration `yaml:"discrepancy_sla" json:"discrepancySla"`
	RequireManualJustification bool          `yaml:"require_manual_justification" json:"requireManualJustification"`
}

// DefaultPolicy returns the pilot thresholds.
func DefaultPolicy() Policy {
	return Policy{
		LossFallbackRate:     0.03,
		BalanceTolerance:     0.05,
		VarianceWarning:      2,
		VarianceCritical:     5,
		CompositionTolerance: 0.01,
		IntakeStationPrefix:  "INTAKE",
		DiscrepancySLA:       48 * time.Hour,
	}
}

// Validate rejects thresholds that would make the classifications meaningless.
func (p Policy) Validate() error {
	switch {
	case p.LossFallbackRate < 0 || p.LossFallbackRate >= 1:
		return fmt.Errorf("policy: loss_fallback_rate must be in [0,1), got %v", p.LossFallbackRate)
	case p.BalanceTolerance <= 0:
		return fmt.Errorf("policy: balance_tolerance must be positive, got %v", p.BalanceTolerance)
	case p.VarianceWarning < 0 || p.VarianceCritical < 0:
		return fmt.Errorf("policy: variance thresholds must be non-negative")
	case p.VarianceWarning > p.VarianceCritical:
		return fmt.Errorf("policy: variance_warning (%v) exceeds variance_critical (%v)", p.VarianceWarning, p.VarianceCritical)
	case p.CompositionTolerance < 0:
		return fmt.Errorf("policy: composition_tolerance must be non-negative")
	case p.DiscrepancySLA < 0:
		return fmt.Errorf("policy: discrepancy_sla must be non-negative")
	}
	return nil
}

// IsIntakeStation reports whether the location counts toward mass-balance inputs.
func (p Policy) IsIntakeStation(loc Location) bool {
	prefix := strings.ToUpper(strings.TrimSpace(p.IntakeStationPrefix))
	if prefix == "" {
		prefix = "INTAKE"
	}
	if strings.HasPrefix(strings.ToUpper(loc.StationID), prefix) {
		return true
	}
	return strings.HasPrefix(strings.ToUpper(loc.StationName), prefix)
}

// VarianceBand is the highlight class of a reconciliation row.
type VarianceBand string

const (
	BandRed    VarianceBand = "red"
	BandYellow VarianceBand = "yellow"
	BandGreen  VarianceBand = "green"
)

// Classify bands a variance percentage. Thresholds are exclusive.
func (p Policy) Classify(variance float64) VarianceBand {
	abs := variance
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > p.VarianceCritical:
		return BandRed
	case abs > p.VarianceWarning:
		return BandYellow
	default:
		return BandGreen
	}
}

// Severity maps a variance band to a discrepancy severity.
func (b VarianceBand) Severity() DiscrepancySeverity {
	switch b {
	case BandRed:
		return SeverityHigh
	case BandYellow:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
