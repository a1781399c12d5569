package guardrail

import (
	"fmt"
	"strings"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// forbiddenTactics can never appear in an approved decision's strategy
// type, focus, or avoid labels.
var forbiddenTactics = []string{
	"price_war",
	"race_to_bottom",
	"aggressive_undercutting",
	"feature_copying",
	"direct_attack",
}

// aggressiveWords trigger a tone warning when they appear in advice text.
var aggressiveWords = []string{
	"destroy",
	"crush",
	"annihilate",
	"attack",
	"dominate",
	"kill",
}

// ValidateOutput checks a decision and its advice text before they are
// returned, cached, or remembered. Hard violations mean the caller must
// substitute SafeFallback instead of failing the pipeline.
func ValidateOutput(d model.StrategyDecision, advice string) Result {
	result := pass()

	for _, tactic := range forbiddenTactics {
		if strings.Contains(string(d.StrategyType), tactic) || strings.Contains(strings.ToLower(d.Focus), tactic) {
			result.addViolation(CategoryForbiddenStrategy, SeverityHigh,
				fmt.Sprintf("strategy names forbidden tactic: %s", tactic))
		}
	}
	// The avoid set is exempt: it lists tactics the decision steers away
	// from, so forbidden tactic names are expected there.

	if d.StrategyType.IsWait() && d.Urgency == model.UrgencyHigh {
		result.addViolation(CategoryInconsistentUrgency, SeverityMedium,
			"wait strategy must not carry high urgency")
	}

	if HasAggressiveTone(advice) {
		result.addWarning("advice tone may be too aggressive; consider softer language")
	}

	return result
}

// HasAggressiveTone detects hostile language in advice text. The pipeline
// substitutes the safe fallback for freshly generated advice that trips it.
func HasAggressiveTone(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range aggressiveWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// SafeFallback is the hardcoded conservative decision substituted when the
// output guardrail hard-blocks the engine's decision.
func SafeFallback() model.StrategyDecision {
	return model.StrategyDecision{
		StrategyType: model.StrategyDefaultWait,
		Focus:        "monitoring",
		Urgency:      model.UrgencyLow,
		Avoid:        []string{},
		Confidence:   model.ConfidenceLow,
	}
}

// SafeFallbackAdvice pairs with SafeFallback in the response.
const (
	SafeFallbackAdvice = "Recommend careful monitoring before taking action."
	SafeFallbackReason = "Output validation required a conservative approach."
)
