// Package strategy is the deterministic rule engine that maps competitor
// signals to a strategy decision.
//
// Decide is total and pure: it performs no I/O, never fails, and always
// returns exactly one decision. Memory and analytics are strictly
// downstream of this package and never feed back into it.
package strategy

import (
	"fmt"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// Decide evaluates the priority-ordered rule set against the signals and
// returns the first matching decision, falling through to default_wait.
func Decide(s model.Signals) model.StrategyDecision {
	for _, r := range rules {
		if d := r.evaluate(s); d != nil {
			return *d
		}
	}
	return fallbackDecision()
}

// RuleEvaluation is one row of the diagnostics output: which rule, whether
// it matched, and a human-readable reason.
type RuleEvaluation struct {
	Rule     string                  `json:"rule"`
	Matched  bool                    `json:"matched"`
	Reason   string                  `json:"reason"`
	Decision *model.StrategyDecision `json:"decision,omitempty"`
}

// ExplainEvaluation evaluates every rule (not just until the first match)
// and reports the outcome per rule plus the fallback. Audit and test path
// only; the fast path is Decide.
func ExplainEvaluation(s model.Signals) []RuleEvaluation {
	evals := make([]RuleEvaluation, 0, len(rules)+1)
	matched := false
	for _, r := range rules {
		d := r.evaluate(s)
		ev := RuleEvaluation{Rule: r.name, Matched: d != nil, Decision: d}
		switch {
		case d != nil && !matched:
			ev.Reason = "matched; selected by priority order"
			matched = true
		case d != nil:
			ev.Reason = "matched; shadowed by a higher-priority rule"
		default:
			ev.Reason = fmt.Sprintf("conditions not met for signals event=%s sentiment=%s clarity=%s execution=%s",
				s.Event, s.Sentiment, s.Clarity, s.ExecutionQuality)
		}
		evals = append(evals, ev)
	}

	fb := fallbackDecision()
	ev := RuleEvaluation{Rule: fallbackName, Matched: !matched, Decision: &fb}
	if matched {
		ev.Reason = "not reached; a prior rule matched"
		ev.Matched = false
		ev.Decision = nil
	} else {
		ev.Reason = "no rule matched; fallback selected"
	}
	return append(evals, ev)
}
