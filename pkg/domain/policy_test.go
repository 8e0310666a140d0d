package domain

import (
	"testing"
	"time"
)

func TestDefaultPolicyValid(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}

func TestPolicyValidateRejects(t *testing.T) {
	mutate := []func(*Policy){
		func(p *Policy) { p.LossFallbackRate = -0.1 },
		func(p *Policy) { p.LossFallbackRate = 1 },
		func(p *Policy) { p.BalanceTolerance = 0 },
		func(p *Policy) { p.VarianceWarning = 6 },
		func(p *Policy) { p.CompositionTolerance = -1 },
		func(p *Policy) { p.DiscrepancySLA = -time.Hour },
	}
	for i, fn := range mutate {
		p := DefaultPolicy()
		fn(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, p)
		}
	}
}

func TestPolicyClassifyBands(t *testing.T) {
	p := DefaultPolicy()
	cases := map[float64]VarianceBand{
		0:     BandGreen,
		2:     BandGreen,
		2.01:  BandYellow,
		-3:    BandYellow,
		5:     BandYellow,
		5.5:   BandRed,
		-12.4: BandRed,
	}
	for variance, want := range cases {
		if got := p.Classify(variance); got != want {
			t.Fatalf("Classify(%v)=%s want %s", variance, got, want)
		}
	}
	if BandRed.Severity() != SeverityHigh || BandYellow.Severity() != SeverityMedium || BandGreen.Severity() != SeverityLow {
		t.Fatalf("unexpected band severity mapping")
	}
}

func TestPolicyClassifyCustomThresholds(t *testing.T) {
	p := DefaultPolicy()
	p.VarianceWarning = 1
	p.VarianceCritical = 3
	if got := p.Classify(4); got != BandRed {
		t.Fatalf("expected red with lowered thresholds, got %s", got)
	}
	if got := p.Classify(1.5); got != BandYellow {
		t.Fatalf("expected yellow with lowered thresholds, got %s", got)
	}
}

func TestPolicyIntakeStation(t *testing.T) {
	p := DefaultPolicy()
	if !p.IsIntakeStation(Location{StationID: "intake-02"}) {
		t.Fatalf("expected case-insensitive station id match")
	}
	if !p.IsIntakeStation(Location{StationID: "RCV-9", StationName: "Intake Station"}) {
		t.Fatalf("expected station name match")
	}
	if p.IsIntakeStation(Location{StationID: "MIXING-01", StationName: "Mixing Station 1"}) {
		t.Fatalf("mixing station must not count as intake")
	}
}

func TestValidationTransitions(t *testing.T) {
	allowed := [][2]ValidationStatus{
		{ValidationPending, ValidationValidated},
		{ValidationPending, ValidationFlagged},
		{ValidationFlagged, ValidationValidated},
		{ValidationValidated, ValidationValidated},
	}
	for _, tr := range allowed {
		if !ValidationTransitionAllowed(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s allowed", tr[0], tr[1])
		}
	}
	denied := [][2]ValidationStatus{
		{ValidationValidated, ValidationPending},
		{ValidationValidated, ValidationFlagged},
		{ValidationFlagged, ValidationPending},
	}
	for _, tr := range denied {
		if ValidationTransitionAllowed(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s denied", tr[0], tr[1])
		}
	}
}

func TestDefaultValidationStatus(t *testing.T) {
	if DefaultValidationStatus(SourceManual) != ValidationPending {
		t.Fatalf("manual entries start pending")
	}
	for _, src := range []MeasurementSource{SourceMES, SourceScale, SourceDocumentScan} {
		if DefaultValidationStatus(src) != ValidationValidated {
			t.Fatalf("%s entries start validated", src)
		}
	}
}
