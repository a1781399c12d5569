package strategy

import "github.com/taisaku-ai/taisaku/internal/model"

// rule pairs a named predicate with the decision it produces on match.
// Predicates are pure functions over Signals; a nil return means no match.
type rule struct {
	name     string
	evaluate func(model.Signals) *model.StrategyDecision
}

// rules is the priority-ordered rule set. Evaluation stops at the first
// match, so earlier rules win even when a later rule's condition also holds.
var rules = []rule{
	{
		// Tier 1: high-urgency threats.
		name: "market_leader_defense",
		evaluate: func(s model.Signals) *model.StrategyDecision {
			if s.ExecutionQuality == model.ExecutionStrong && s.Clarity == model.ClarityClear {
				return &model.StrategyDecision{
					StrategyType: model.StrategyMarketLeaderDefense,
					Focus:        "defend_core_segments",
					Urgency:      model.UrgencyHigh,
					Avoid:        []string{"price_war", "feature_copying"},
					Confidence:   model.ConfidenceHigh,
				}
			}
			return nil
		},
	},
	{
		name: "aggressive_positioning",
		evaluate: func(s model.Signals) *model.StrategyDecision {
			if s.ExecutionQuality == model.ExecutionStrong && s.Clarity == model.ClarityConfusing {
				return &model.StrategyDecision{
					StrategyType: model.StrategyAggressivePositioning,
					Focus:        "exploit_messaging_gap",
					Urgency:      model.UrgencyHigh,
					Avoid:        []string{"direct_attack"},
					Confidence:   model.ConfidenceHigh,
				}
			}
			return nil
		},
	},
	{
		// Tier 2: standard competitive responses.
		name: "pricing_response",
		evaluate: func(s model.Signals) *model.StrategyDecision {
			if s.Event == model.EventPriceDrop {
				urgency := model.UrgencyMedium
				if s.ExecutionQuality == model.ExecutionStrong {
					urgency = model.UrgencyHigh
				}
				return &model.StrategyDecision{
					StrategyType: model.StrategyPricingResponse,
					Focus:        "value_not_discount",
					Urgency:      urgency,
					Avoid:        []string{"race_to_bottom"},
					Confidence:   model.ConfidenceHigh,
				}
			}
			return nil
		},
	},
	{
		name: "standard_positioning",
		evaluate: func(s model.Signals) *model.StrategyDecision {
			positive := s.Sentiment == model.SentimentPositive || s.Sentiment == model.SentimentMixedPositive
			if s.Event == model.EventProductLaunch && s.Clarity == model.ClarityConfusing && positive {
				return &model.StrategyDecision{
					StrategyType: model.StrategyStandardPositioning,
					Focus:        "clarity_and_simplicity",
					Urgency:      model.UrgencyMedium,
					Avoid:        []string{"price_war"},
					Confidence:   model.ConfidenceMedium,
				}
			}
			return nil
		},
	},
	{
		// Tier 3: opportunistic moves.
		name: "price_increase_response",
		evaluate: func(s model.Signals) *model.StrategyDecision {
			if s.Event == model.EventPriceIncrease {
				return &model.StrategyDecision{
					StrategyType: model.StrategyPriceIncreaseResponse,
					Focus:        "capture_switchers",
					Urgency:      model.UrgencyMedium,
					Avoid:        []string{"aggressive_undercutting"},
					Confidence:   model.ConfidenceMedium,
				}
			}
			return nil
		},
	},
	{
		// Tier 4: strategic patience.
		name: "defensive_wait",
		evaluate: func(s model.Signals) *model.StrategyDecision {
			if s.Sentiment == model.SentimentNegative && s.Clarity == model.ClarityConfusing {
				return &model.StrategyDecision{
					StrategyType: model.StrategyDefensiveWait,
					Focus:        "let_them_stumble",
					Urgency:      model.UrgencyLow,
					Avoid:        []string{},
					Confidence:   model.ConfidenceMedium,
				}
			}
			return nil
		},
	},
}

// fallbackName is reported by diagnostics for the implicit default rule.
const fallbackName = "default_wait"

// fallbackDecision is returned when no rule matches.
func fallbackDecision() model.StrategyDecision {
	return model.StrategyDecision{
		StrategyType: model.StrategyDefaultWait,
		Focus:        "monitoring",
		Urgency:      model.UrgencyLow,
		Avoid:        []string{},
		Confidence:   model.ConfidenceLow,
	}
}
