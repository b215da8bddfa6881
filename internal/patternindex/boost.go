package patternindex

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// defaultBoostFormula is the deterministic context-boost function the spec
// leaves to the implementer: domain match carries the most weight, then
// framework, then caller preference, then recency, summing to at most 0.3
// when every signal is maxed.
const defaultBoostFormula = "0.12*domain_match + 0.10*framework_match + 0.06*preference_score + 0.02*recency"

// boostEnv is the expr evaluation environment; field names are the
// identifiers the formula string references.
type boostEnv struct {
	DomainMatch     float64 `expr:"domain_match"`
	FrameworkMatch  float64 `expr:"framework_match"`
	PreferenceScore float64 `expr:"preference_score"`
	Recency         float64 `expr:"recency"`
}

// boostEvaluator compiles a context-boost formula once and evaluates it
// per candidate pattern during search.
type boostEvaluator struct {
	program *vm.Program
}

// newBoostEvaluator compiles formula (or defaultBoostFormula if empty)
// against boostEnv's field set.
func newBoostEvaluator(formula string) (*boostEvaluator, error) {
	if formula == "" {
		formula = defaultBoostFormula
	}
	program, err := expr.Compile(formula, expr.Env(boostEnv{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile context-boost formula: %w", err)
	}
	return &boostEvaluator{program: program}, nil
}

// evaluate runs the compiled formula and clamps the result into [0, 0.3].
func (b *boostEvaluator) evaluate(env boostEnv) (float64, error) {
	out, err := expr.Run(b.program, env)
	if err != nil {
		return 0, fmt.Errorf("evaluate context-boost formula: %w", err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("context-boost formula must return a number, got %T", out)
	}
	if v < 0 {
		return 0, nil
	}
	if v > 0.3 {
		return 0.3, nil
	}
	return v, nil
}
