package loopdetect

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// aggregatorEnv is the variable set the weighted-combination expression
// evaluates against.
type aggregatorEnv struct {
	Max           float64
	CountAbove07  int
	Weighted      float64
}

// DefaultAggregatorGate mirrors spec §4.1 step 12's trigger rule: any
// detector at or above 0.9, or two-plus at or above 0.7, or a weighted
// combination at or above 0.6.
const DefaultAggregatorGate = "Max >= 0.9 || CountAbove07 >= 2 || Weighted >= 0.6"

// Aggregator evaluates the five detectors' signals against a compiled
// trigger expression.
type Aggregator struct {
	program *vm.Program
	weights map[string]float64
}

// defaultWeights give tool-call and error-cycle detectors more say than
// the softer stylistic signals, matching the spec's ordering (repetition
// and error cycles are treated as the more decisive patterns).
var defaultWeights = map[string]float64{
	"tool_call_repetition": 0.3,
	"output_similarity":    0.2,
	"state_oscillation":    0.15,
	"error_cycle":          0.25,
	"token_pattern":        0.1,
}

// NewAggregator compiles the trigger gate expression.
func NewAggregator() (*Aggregator, error) {
	program, err := expr.Compile(DefaultAggregatorGate, expr.Env(aggregatorEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("loopdetect: compile aggregator gate: %w", err)
	}
	return &Aggregator{program: program, weights: defaultWeights}, nil
}

// Verdict is the aggregator's trigger decision plus the signals that fed
// it, for logging/diagnostics.
type Verdict struct {
	Triggered bool
	Signals   []Signal
	Max       float64
	Weighted  float64
}

// Evaluate runs every non-nil signal through the trigger gate.
func (a *Aggregator) Evaluate(signals []*Signal) (Verdict, error) {
	var present []Signal
	max := 0.0
	countAbove07 := 0
	weighted := 0.0
	for _, s := range signals {
		if s == nil {
			continue
		}
		present = append(present, *s)
		if s.Confidence > max {
			max = s.Confidence
		}
		if s.Confidence >= 0.7 {
			countAbove07++
		}
		weighted += s.Confidence * a.weights[s.Detector]
	}

	out, err := expr.Run(a.program, aggregatorEnv{Max: max, CountAbove07: countAbove07, Weighted: weighted})
	if err != nil {
		return Verdict{}, fmt.Errorf("loopdetect: evaluate aggregator: %w", err)
	}
	triggered, _ := out.(bool)
	return Verdict{Triggered: triggered, Signals: present, Max: max, Weighted: weighted}, nil
}

// EscalationHint is the context injected into the next generation attempt
// on a loop-recovery reset, scaled to the escalation ladder rung.
type EscalationHint struct {
	Rung    int // 1=soft hint, 2=strong constraint, 3=request user intervention
	Pattern string
	Text    string
}

// Advance applies the warn-then-block escalation ladder (spec §4.1 step
// 12): first trigger for a session only warns (state carries forward,
// generation proceeds with a soft hint); a second consecutive trigger
// resets and escalates. Ladder: reset 1 = soft hint, 2 = strong "do NOT"
// constraints, 3 = request user intervention.
func Advance(state *models.LoopDetectorState, verdict Verdict) (warn bool, hint *EscalationHint) {
	if !verdict.Triggered {
		state.WarnActive = false
		return false, nil
	}

	pattern := ""
	if len(verdict.Signals) > 0 {
		pattern = verdict.Signals[0].Pattern
	}

	if !state.WarnActive {
		state.WarnActive = true
		state.LastPattern = pattern
		return true, nil
	}

	state.WarnActive = false
	state.ResetCount++
	state.LastPattern = pattern

	rung := state.ResetCount
	if rung > 3 {
		rung = 3
	}
	return false, &EscalationHint{Rung: rung, Pattern: pattern, Text: escalationText(rung, pattern)}
}

func escalationText(rung int, pattern string) string {
	switch rung {
	case 1:
		return fmt.Sprintf("<loop-recovery>A %s pattern was detected. Try a different approach.</loop-recovery>", pattern)
	case 2:
		return fmt.Sprintf("<loop-recovery>A %s pattern was detected again. Do NOT repeat the prior approach; do NOT call the same tool with the same arguments.</loop-recovery>", pattern)
	default:
		return fmt.Sprintf("<loop-recovery>A %s pattern has recurred multiple times. Ask the user for guidance instead of retrying.</loop-recovery>", pattern)
	}
}
