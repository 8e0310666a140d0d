package core

import "pcx/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds an engine with the built-in rule set.
func NewDefaultRulesEngine(policy domain.Policy) *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(
		LifecycleTransitionRule(),
		MeasurementChainRule(),
		MeasurementImmutabilityRule(),
		BatchIntegrityRule(policy),
	)
	return engine
}
