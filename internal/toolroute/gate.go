package toolroute

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Gate is a compiled declarative approval expression, evaluated against a
// small environment of named confidence/threshold values. Tool routing's
// composite-confidence check and the pipeline's other branch conditions
// (loop-detector aggregator threshold, pipeline short-circuit gates) are
// natural fits for a small expression language rather than hand-rolled
// comparisons scattered across packages — this is the first concrete use
// of expr-lang/expr in the codebase.
type Gate struct {
	program *vm.Program
}

// env is the variable set available to a compiled gate expression.
type env struct {
	SelectionConfidence float64
	ReviewConfidence    float64
	Composite           float64
	Approved            bool
	Threshold           float64
}

// CompileGate compiles a boolean expression such as
// "Approved && Composite >= Threshold" against env's fields.
func CompileGate(expression string) (*Gate, error) {
	program, err := expr.Compile(expression, expr.Env(env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile gate %q: %w", expression, err)
	}
	return &Gate{program: program}, nil
}

// DefaultApprovalGate is the spec §4.1 step 6 composite-confidence rule:
// reviewer approval plus a composite score at or above the threshold.
const DefaultApprovalGate = "Approved && Composite >= Threshold"

// Evaluate runs the compiled gate against the given selection/review
// inputs.
func (g *Gate) Evaluate(selectionConfidence, reviewConfidence float64, approved bool, threshold float64) (bool, error) {
	out, err := expr.Run(g.program, env{
		SelectionConfidence: selectionConfidence,
		ReviewConfidence:    reviewConfidence,
		Composite:           CompositeConfidence(selectionConfidence, reviewConfidence),
		Approved:            approved,
		Threshold:           threshold,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate gate: %w", err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("evaluate gate: non-bool result %v", out)
	}
	return result, nil
}
