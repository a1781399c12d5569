// Package analyst turns free-text competitor reports into structured signals.
//
// Defines a Provider interface with a Gemini implementation and a
// deterministic keyword implementation. The interface allows swapping
// providers without changing the pipeline.
package analyst

import (
	"context"
	"regexp"
	"strings"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// Provider extracts structured signals from raw text.
//
// A provider returns an error only for hard failures (transport, auth,
// provider outage). Degraded extraction, such as unparseable model output,
// yields UnknownSignals with low confidence and a nil error so the pipeline
// can still produce a conservative recommendation.
type Provider interface {
	Extract(ctx context.Context, text string) (model.Signals, model.Confidence, error)
}

// KeywordProvider extracts signals with deterministic keyword matching.
// Used when no API key is configured, and as the fallback in tests.
type KeywordProvider struct{}

// NewKeywordProvider creates a deterministic keyword-based provider.
func NewKeywordProvider() *KeywordProvider {
	return &KeywordProvider{}
}

var eventKeywords = []struct {
	event model.EventType
	words []string
}{
	{model.EventPriceDrop, []string{"dropped price", "price drop", "price cut", "cut price", "slashed", "discount", "% off", "lowered price", "dropped their price", "dropped prices"}},
	{model.EventPriceIncrease, []string{"raised price", "price increase", "price hike", "increased price", "raised their price"}},
	{model.EventProductLaunch, []string{"launch", "released", "unveiled", "new product", "shipping", "introduced"}},
	{model.EventMessaging, []string{"campaign", "rebrand", "messaging", "announc", "marketing", "advertis", "positioning"}},
}

// competitorPattern matches a run of capitalized words, the usual shape of a
// company name in a report.
var competitorPattern = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]+(?:\s+[A-Z][a-zA-Z0-9]+)*)\b`)

// sentenceStarters are capitalized words that open reports but never name a
// competitor.
var sentenceStarters = map[string]bool{
	"The": true, "Our": true, "They": true, "Their": true, "It": true,
	"This": true, "That": true, "A": true, "An": true, "We": true,
	"Today": true, "Yesterday": true, "Competitor": true,
}

// Extract maps the text onto signal enums by keyword.
func (p *KeywordProvider) Extract(_ context.Context, text string) (model.Signals, model.Confidence, error) {
	lower := strings.ToLower(text)

	s := model.UnknownSignals()
	for _, ek := range eventKeywords {
		if containsAny(lower, ek.words) {
			s.Event = ek.event
			break
		}
	}

	switch {
	case containsAny(lower, []string{"loved", "praised", "well received", "excited", "acclaim"}):
		s.Sentiment = model.SentimentPositive
	case containsAny(lower, []string{"mixed reviews", "mostly positive", "some praise"}):
		s.Sentiment = model.SentimentMixedPositive
	case containsAny(lower, []string{"criticized", "backlash", "complaints", "poorly received", "negative"}):
		s.Sentiment = model.SentimentNegative
	case s.Event != model.EventUnknown:
		s.Sentiment = model.SentimentNeutral
	}

	switch {
	case containsAny(lower, []string{"confus", "unclear", "mixed messages", "muddled", "vague"}):
		s.Clarity = model.ClarityConfusing
	case containsAny(lower, []string{"clear message", "clearly", "well communicated", "clean launch"}):
		s.Clarity = model.ClarityClear
	}

	switch {
	case containsAny(lower, []string{"well executed", "polished", "strong execution", "flawless", "impressive"}):
		s.ExecutionQuality = model.ExecutionStrong
	case containsAny(lower, []string{"buggy", "botched", "poor execution", "sloppy", "half-baked", "weak"}):
		s.ExecutionQuality = model.ExecutionWeak
	}

	if name := guessCompetitor(text); name != "" {
		s.CompetitorName = name
	}

	confidence := model.ConfidenceLow
	if s.Event != model.EventUnknown {
		confidence = model.ConfidenceMedium
	}
	return s.Normalize(), confidence, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func guessCompetitor(text string) string {
	for _, match := range competitorPattern.FindAllString(text, -1) {
		words := strings.Fields(match)
		for len(words) > 0 && sentenceStarters[words[0]] {
			words = words[1:]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	return ""
}
