package model

import (
	"time"

	"github.com/google/uuid"
)

// StrategyType enumerates the closed set of strategies the rule engine can pick.
type StrategyType string

const (
	StrategyMarketLeaderDefense   StrategyType = "market_leader_defense"
	StrategyAggressivePositioning StrategyType = "aggressive_positioning"
	StrategyPricingResponse       StrategyType = "pricing_response"
	StrategyStandardPositioning   StrategyType = "standard_positioning"
	StrategyPriceIncreaseResponse StrategyType = "price_increase_response"
	StrategyDefensiveWait         StrategyType = "defensive_wait"
	StrategyDefaultWait           StrategyType = "default_wait"
)

// IsWait reports whether the strategy is a wait-type strategy.
func (s StrategyType) IsWait() bool {
	return s == StrategyDefensiveWait || s == StrategyDefaultWait
}

// Urgency is how quickly the recommended response should be executed.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Rank maps urgency to an ordinal for trend math (low=1 .. high=3).
func (u Urgency) Rank() int {
	switch u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	default:
		return 1
	}
}

// Confidence buckets how certain the pipeline is about an output.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// StrategyDecision is the deterministic output of the rule engine.
// Immutable; constructed only by the engine or by the guardrail fallback.
type StrategyDecision struct {
	StrategyType StrategyType `json:"strategy_type"`
	Focus        string       `json:"focus"`
	Urgency      Urgency      `json:"urgency"`
	Avoid        []string     `json:"avoid"`
	Confidence   Confidence   `json:"confidence"`
}

// Recommendation is the caller-facing result of one pipeline run.
type Recommendation struct {
	DecisionID uuid.UUID    `json:"decision_id"`
	BestMove   StrategyType `json:"best_move"`
	Focus      string       `json:"focus"`
	Urgency    Urgency      `json:"urgency"`
	Avoid      []string     `json:"avoid"`
	Advice     string       `json:"advice"`
	Reason     string       `json:"reason"`
	Confidence Confidence   `json:"confidence"`
	CacheHit   bool         `json:"cache_hit"`
}

// DecisionMemory is one append-only record of a fully processed request.
// Never mutated or deleted by the pipeline; retention is an external concern.
type DecisionMemory struct {
	DecisionID     uuid.UUID        `json:"decision_id"`
	BusinessID     uuid.UUID        `json:"business_id"`
	CreatedAt      time.Time        `json:"created_at"`
	CompetitorName string           `json:"competitor_name"`
	Signals        Signals          `json:"signals"`
	Decision       StrategyDecision `json:"decision"`
	Fingerprint    string           `json:"fingerprint"`
	CacheHit       bool             `json:"cache_hit"`
}

// BusinessProfile aggregates a business's decision history over a trailing
// window. Derived on demand from the memory log, never stored.
type BusinessProfile struct {
	BusinessID        uuid.UUID            `json:"business_id"`
	WindowDays        int                  `json:"window_days"`
	TotalDecisions    int                  `json:"total_decisions"`
	DecisionFrequency map[StrategyType]int `json:"decision_frequency"`
	UrgencyCounts     map[Urgency]int      `json:"urgency_counts"`
	CommonCompetitors []string             `json:"common_competitors"`
	LastDecisionAt    *time.Time           `json:"last_decision_at,omitempty"`

	ReactivityLevel     string `json:"reactivity_level"`
	WaitTendency        string `json:"wait_tendency"`
	PriceWarRisk        string `json:"price_war_risk"`
	CompetitorDiversity string `json:"competitor_diversity"`
}

// SpiralWarning flags an unhealthy reactive pattern in recent history.
type SpiralWarning struct {
	Severity           string  `json:"severity"` // moderate or high
	DecisionsPerWeek   float64 `json:"decisions_per_week"`
	HighUrgencyRate    float64 `json:"high_urgency_rate"`
	DominantCompetitor string  `json:"dominant_competitor"`
	Recommendation     string  `json:"recommendation"`
}

// CompetitorTrend summarizes how responses to one competitor have evolved.
type CompetitorTrend struct {
	CompetitorName     string       `json:"competitor_name"`
	TotalAnalyses      int          `json:"total_analyses"`
	FirstSeen          time.Time    `json:"first_seen"`
	LastSeen           time.Time    `json:"last_seen"`
	MostCommonResponse StrategyType `json:"most_common_response"`
	UrgencyTrend       string       `json:"urgency_trend"` // increasing, decreasing, stable, insufficient_data
}

// Business is a registered tenant of the analysis API.
type Business struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
