package domain

import (
	"context"
	"fmt"
)

// RuleView provides read-only access to domain entities for rule evaluation.
type RuleView interface {
	ListBatches() []Batch
	ListMeasurements() []Measurement
	ListDiscrepancies() []Discrepancy
	FindBatch(id string) (Batch, bool)
	FindMeasurement(id string) (Measurement, bool)
	FindDiscrepancy(id string) (Discrepancy, bool)
}

// Rule inspects the changes staged by one transaction against the state they
// would produce. Blocking violations abort the commit.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RuleFunc adapts a function to Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// Name implements Rule.
func (f RuleFunc) Name() string { return f.RuleName }

// Evaluate implements Rule.
func (f RuleFunc) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return f.Fn(ctx, view, changes)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends rules in evaluation order. Nil rules are ignored.
func (e *RulesEngine) Register(rules ...Rule) {
	for _, rule := range rules {
		if rule != nil {
			e.rules = append(e.rules, rule)
		}
	}
}

// Rules returns the registered rule names in evaluation order.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		names = append(names, rule.Name())
	}
	return names
}

// Evaluate runs every rule in order and merges the violations.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
