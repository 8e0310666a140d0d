package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "batch_integrity", Severity: SeverityWarn, Entity: EntityBatch}}})
	if result.HasBlocking() {
		t.Fatalf("warnings must not block")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "measurement_chain", Severity: SeverityBlock, Entity: EntityMeasurement}}})
	if !result.HasBlocking() || len(result.Violations) != 2 {
		t.Fatalf("expected blocking violation, got %+v", result)
	}
	if (RuleViolationError{Result: result}).Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected error text")
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type emptyView struct{}

func (emptyView) ListBatches() []Batch                       { return nil }
func (emptyView) ListMeasurements() []Measurement            { return nil }
func (emptyView) ListDiscrepancies() []Discrepancy           { return nil }
func (emptyView) FindBatch(string) (Batch, bool)             { return Batch{}, false }
func (emptyView) FindMeasurement(string) (Measurement, bool) { return Measurement{}, false }
func (emptyView) FindDiscrepancy(string) (Discrepancy, bool) { return Discrepancy{}, false }

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	_, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err == nil || !strings.HasPrefix(err.Error(), "rule error: ") {
		t.Fatalf("expected evaluation error tagged with rule name, got %v", err)
	}
}

func TestRulesEngineRegisterAndCancel(t *testing.T) {
	engine := NewRulesEngine()
	calls := 0
	engine.Register(nil, RuleFunc{RuleName: "count", Fn: func(context.Context, RuleView, []Change) (Result, error) {
		calls++
		return Result{}, nil
	}}, staticRule{"warn"})
	if got := engine.Rules(); len(got) != 2 || got[0] != "count" || got[1] != "warn" {
		t.Fatalf("unexpected rule order %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Evaluate(ctx, emptyView{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("cancelled evaluation must not run rules")
	}
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil || calls != 1 || len(res.Violations) != 1 {
		t.Fatalf("expected both rules to run: %v calls=%d %+v", err, calls, res)
	}
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return Result{}, fmt.Errorf("boom")
}
