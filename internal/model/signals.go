// Package model defines the domain types shared across the pipeline:
// competitor signals, strategy decisions, memory records, and the API envelope.
package model

import "strings"

// EventType classifies the competitor move described in the input.
type EventType string

const (
	EventPriceDrop     EventType = "price_drop"
	EventPriceIncrease EventType = "price_increase"
	EventProductLaunch EventType = "product_launch"
	EventMessaging     EventType = "messaging"
	EventUnknown       EventType = "unknown"
)

// Sentiment is the market reception of the competitor move.
type Sentiment string

const (
	SentimentPositive      Sentiment = "positive"
	SentimentMixedPositive Sentiment = "mixed_positive"
	SentimentNeutral       Sentiment = "neutral"
	SentimentNegative      Sentiment = "negative"
	SentimentUnknown       Sentiment = "unknown"
)

// Clarity is how clearly the competitor communicated the move.
type Clarity string

const (
	ClarityClear     Clarity = "clear"
	ClarityConfusing Clarity = "confusing"
	ClarityUnknown   Clarity = "unknown"
)

// ExecutionQuality is how well the competitor executed the move.
type ExecutionQuality string

const (
	ExecutionStrong  ExecutionQuality = "strong"
	ExecutionWeak    ExecutionQuality = "weak"
	ExecutionUnknown ExecutionQuality = "unknown"
)

// Signals is the structured representation of one competitor move,
// produced by the analyst from raw text. Unknown values are valid
// first-class members, never absent, so every rule predicate is total.
// Treat Signals as immutable once constructed.
type Signals struct {
	Event            EventType        `json:"event"`
	Sentiment        Sentiment        `json:"sentiment"`
	Clarity          Clarity          `json:"clarity"`
	ExecutionQuality ExecutionQuality `json:"execution_quality"`
	CompetitorName   string           `json:"competitor_name"`
}

// UnknownSignals returns a signal set with every field unknown.
// Used as the low-confidence fallback when extraction degrades.
func UnknownSignals() Signals {
	return Signals{
		Event:            EventUnknown,
		Sentiment:        SentimentUnknown,
		Clarity:          ClarityUnknown,
		ExecutionQuality: ExecutionUnknown,
		CompetitorName:   "Unknown",
	}
}

// Normalize coerces every field to a valid enum member (fallback unknown)
// and trims the competitor name. Extraction providers call this so that
// downstream code never sees an out-of-range value.
func (s Signals) Normalize() Signals {
	s.Event = ParseEventType(string(s.Event))
	s.Sentiment = ParseSentiment(string(s.Sentiment))
	s.Clarity = ParseClarity(string(s.Clarity))
	s.ExecutionQuality = ParseExecutionQuality(string(s.ExecutionQuality))
	s.CompetitorName = strings.TrimSpace(s.CompetitorName)
	if s.CompetitorName == "" {
		s.CompetitorName = "Unknown"
	}
	return s
}

// ParseEventType maps an arbitrary string to an EventType, falling back to unknown.
func ParseEventType(v string) EventType {
	switch EventType(normEnum(v)) {
	case EventPriceDrop, EventPriceIncrease, EventProductLaunch, EventMessaging:
		return EventType(normEnum(v))
	default:
		return EventUnknown
	}
}

// ParseSentiment maps an arbitrary string to a Sentiment, falling back to unknown.
func ParseSentiment(v string) Sentiment {
	switch Sentiment(normEnum(v)) {
	case SentimentPositive, SentimentMixedPositive, SentimentNeutral, SentimentNegative:
		return Sentiment(normEnum(v))
	default:
		return SentimentUnknown
	}
}

// ParseClarity maps an arbitrary string to a Clarity, falling back to unknown.
func ParseClarity(v string) Clarity {
	switch Clarity(normEnum(v)) {
	case ClarityClear, ClarityConfusing:
		return Clarity(normEnum(v))
	default:
		return ClarityUnknown
	}
}

// ParseExecutionQuality maps an arbitrary string to an ExecutionQuality,
// falling back to unknown.
func ParseExecutionQuality(v string) ExecutionQuality {
	switch ExecutionQuality(normEnum(v)) {
	case ExecutionStrong, ExecutionWeak:
		return ExecutionQuality(normEnum(v))
	default:
		return ExecutionUnknown
	}
}

func normEnum(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
