// Package insights derives aggregate analytics from the decision memory log:
// business profiles, reactive spiral warnings, and per-competitor trends.
// Everything here is strictly downstream of the rule engine; nothing computed
// in this package ever feeds back into decision-making.
package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taisaku-ai/taisaku/internal/model"
)

const (
	// ProfileWindowDays is the trailing window for business profiles.
	ProfileWindowDays = 90
	// SpiralWindowDays is the trailing window for spiral detection.
	SpiralWindowDays = 14

	spiralMinDecisions  = 5
	spiralRatePerWeek   = 1.5
	spiralHighUrgency   = 0.6
	spiralDominantShare = 0.5
	spiralSeverePerWeek = 3.0
	trendMinDecisions   = 4
	trendRankDelta      = 0.5
)

// BuildProfile aggregates a window of memory records into a business profile.
// Records may arrive in any order.
func BuildProfile(businessID uuid.UUID, windowDays int, memories []model.DecisionMemory) model.BusinessProfile {
	p := model.BusinessProfile{
		BusinessID:        businessID,
		WindowDays:        windowDays,
		TotalDecisions:    len(memories),
		DecisionFrequency: make(map[model.StrategyType]int),
		UrgencyCounts:     make(map[model.Urgency]int),
	}
	if len(memories) == 0 {
		p.ReactivityLevel = "low"
		p.WaitTendency = "low"
		p.PriceWarRisk = "low"
		p.CompetitorDiversity = "low"
		return p
	}

	var highUrgency, waitType, pricing int
	competitorCounts := make(map[string]int)
	var last time.Time

	for _, m := range memories {
		p.DecisionFrequency[m.Decision.StrategyType]++
		p.UrgencyCounts[m.Decision.Urgency]++
		if m.Decision.Urgency == model.UrgencyHigh {
			highUrgency++
		}
		if m.Decision.StrategyType.IsWait() {
			waitType++
		}
		if m.Decision.StrategyType == model.StrategyPricingResponse {
			pricing++
		}
		competitorCounts[normalizeCompetitor(m.CompetitorName)]++
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}

	total := float64(len(memories))
	p.ReactivityLevel = band(float64(highUrgency)/total, 0.5, 0.25)
	p.WaitTendency = band(float64(waitType)/total, 0.6, 0.3)
	p.PriceWarRisk = band(float64(pricing)/total, 0.4, 0.2)
	p.CompetitorDiversity = diversityBand(len(competitorCounts))
	p.CommonCompetitors = topCompetitors(competitorCounts, 5)
	p.LastDecisionAt = &last
	return p
}

// DetectSpiral inspects a 14-day window of memory records and returns a
// warning when the business shows an unhealthy reactive pattern: sustained
// decision rate, mostly high urgency, fixated on a single competitor.
// Returns nil when the pattern is absent.
func DetectSpiral(memories []model.DecisionMemory) *model.SpiralWarning {
	if len(memories) < spiralMinDecisions {
		return nil
	}

	perWeek := float64(len(memories)) / (float64(SpiralWindowDays) / 7.0)
	if perWeek <= spiralRatePerWeek {
		return nil
	}

	var highUrgency int
	competitorCounts := make(map[string]int)
	for _, m := range memories {
		if m.Decision.Urgency == model.UrgencyHigh {
			highUrgency++
		}
		competitorCounts[normalizeCompetitor(m.CompetitorName)]++
	}

	total := float64(len(memories))
	highRate := float64(highUrgency) / total
	if highRate <= spiralHighUrgency {
		return nil
	}

	dominant, dominantCount := "", 0
	for name, count := range competitorCounts {
		if count > dominantCount {
			dominant, dominantCount = name, count
		}
	}
	if float64(dominantCount)/total <= spiralDominantShare {
		return nil
	}

	severity := "moderate"
	if perWeek > spiralSeverePerWeek {
		severity = "high"
	}

	return &model.SpiralWarning{
		Severity:           severity,
		DecisionsPerWeek:   perWeek,
		HighUrgencyRate:    highRate,
		DominantCompetitor: dominant,
		Recommendation: fmt.Sprintf(
			"You have reacted to %s %d times in the last two weeks, mostly at high urgency. "+
				"Consider pausing reactive moves and reviewing your own roadmap before responding again.",
			dominant, dominantCount,
		),
	}
}

// BuildCompetitorTrend summarizes responses to one competitor. Memories must
// be ordered oldest first; the urgency trend compares the mean urgency rank
// of the first half against the second half.
func BuildCompetitorTrend(name string, memories []model.DecisionMemory) model.CompetitorTrend {
	t := model.CompetitorTrend{
		CompetitorName: name,
		TotalAnalyses:  len(memories),
		UrgencyTrend:   "insufficient_data",
	}
	if len(memories) == 0 {
		return t
	}

	t.FirstSeen = memories[0].CreatedAt
	t.LastSeen = memories[len(memories)-1].CreatedAt

	strategyCounts := make(map[model.StrategyType]int)
	for _, m := range memories {
		strategyCounts[m.Decision.StrategyType]++
	}
	best, bestCount := model.StrategyType(""), 0
	for s, count := range strategyCounts {
		if count > bestCount {
			best, bestCount = s, count
		}
	}
	t.MostCommonResponse = best

	if len(memories) < trendMinDecisions {
		return t
	}

	mid := len(memories) / 2
	delta := meanUrgencyRank(memories[mid:]) - meanUrgencyRank(memories[:mid])
	switch {
	case delta > trendRankDelta:
		t.UrgencyTrend = "increasing"
	case delta < -trendRankDelta:
		t.UrgencyTrend = "decreasing"
	default:
		t.UrgencyTrend = "stable"
	}
	return t
}

func meanUrgencyRank(memories []model.DecisionMemory) float64 {
	if len(memories) == 0 {
		return 0
	}
	var sum int
	for _, m := range memories {
		sum += m.Decision.Urgency.Rank()
	}
	return float64(sum) / float64(len(memories))
}

func band(ratio, high, moderate float64) string {
	switch {
	case ratio > high:
		return "high"
	case ratio > moderate:
		return "moderate"
	default:
		return "low"
	}
}

func diversityBand(distinct int) string {
	switch {
	case distinct > 5:
		return "high"
	case distinct > 1:
		return "moderate"
	default:
		return "low"
	}
}

func topCompetitors(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// normalizeCompetitor folds case so "Acme Corp" and "ACME CORP" count as
// one competitor, matching the fingerprint's treatment of names.
func normalizeCompetitor(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "unknown"
	}
	return name
}
