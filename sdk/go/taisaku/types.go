package taisaku

import (
	"time"

	"github.com/google/uuid"
)

// Signals is the structured representation of one competitor move,
// as extracted by the server's analyst.
type Signals struct {
	Event            string `json:"event"`
	Sentiment        string `json:"sentiment"`
	Clarity          string `json:"clarity"`
	ExecutionQuality string `json:"execution_quality"`
	CompetitorName   string `json:"competitor_name"`
}

// StrategyDecision is the deterministic output of the server's rule engine.
type StrategyDecision struct {
	StrategyType string   `json:"strategy_type"`
	Focus        string   `json:"focus"`
	Urgency      string   `json:"urgency"`
	Avoid        []string `json:"avoid"`
	Confidence   string   `json:"confidence"`
}

// Recommendation is the result of one analysis.
type Recommendation struct {
	DecisionID uuid.UUID `json:"decision_id"`
	BestMove   string    `json:"best_move"`
	Focus      string    `json:"focus"`
	Urgency    string    `json:"urgency"`
	Avoid      []string  `json:"avoid"`
	Advice     string    `json:"advice"`
	Reason     string    `json:"reason"`
	Confidence string    `json:"confidence"`
	CacheHit   bool      `json:"cache_hit"`
}

// DecisionMemory is one record of a fully processed analysis.
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

// BusinessProfile aggregates decision history over a trailing window.
type BusinessProfile struct {
	BusinessID        uuid.UUID      `json:"business_id"`
	WindowDays        int            `json:"window_days"`
	TotalDecisions    int            `json:"total_decisions"`
	DecisionFrequency map[string]int `json:"decision_frequency"`
	UrgencyCounts     map[string]int `json:"urgency_counts"`
	CommonCompetitors []string       `json:"common_competitors"`
	LastDecisionAt    *time.Time     `json:"last_decision_at,omitempty"`

	ReactivityLevel     string `json:"reactivity_level"`
	WaitTendency        string `json:"wait_tendency"`
	PriceWarRisk        string `json:"price_war_risk"`
	CompetitorDiversity string `json:"competitor_diversity"`
}

// SpiralWarning flags an unhealthy reactive pattern in recent history.
type SpiralWarning struct {
	Severity           string  `json:"severity"`
	DecisionsPerWeek   float64 `json:"decisions_per_week"`
	HighUrgencyRate    float64 `json:"high_urgency_rate"`
	DominantCompetitor string  `json:"dominant_competitor"`
	Recommendation     string  `json:"recommendation"`
}

// CompetitorTrend summarizes how responses to one competitor have evolved.
type CompetitorTrend struct {
	CompetitorName     string    `json:"competitor_name"`
	TotalAnalyses      int       `json:"total_analyses"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
	MostCommonResponse string    `json:"most_common_response"`
	UrgencyTrend       string    `json:"urgency_trend"`
}

// InsightsResponse is the body of GET /v1/insights.
type InsightsResponse struct {
	Profile       *BusinessProfile `json:"profile"`
	SpiralWarning *SpiralWarning   `json:"spiral_warning,omitempty"`
}

// CompetitorHistoryResponse is the body of GET /v1/competitors/{name}/history.
type CompetitorHistoryResponse struct {
	Trend     *CompetitorTrend `json:"trend"`
	Decisions []DecisionMemory `json:"decisions"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
}
