// Package advisor turns a strategy decision into a short natural-language
// explanation for the business owner.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// Advice is the explanation attached to a recommendation.
type Advice struct {
	Advice string
	Reason string
}

// Provider generates explanations for decisions.
//
// Providers return an error only for hard failures; the pipeline substitutes
// a template explanation rather than failing the request.
type Provider interface {
	Explain(ctx context.Context, decision model.StrategyDecision, signals model.Signals) (Advice, error)
}

// TemplateProvider generates explanations from fixed templates.
// Used when no API key is configured, and as the fallback in tests.
type TemplateProvider struct{}

// NewTemplateProvider creates a deterministic template-based provider.
func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

var strategyAdvice = map[model.StrategyType]string{
	model.StrategyMarketLeaderDefense:   "Reinforce your position with existing customers rather than chasing the competitor's move.",
	model.StrategyAggressivePositioning: "Move quickly to claim the clear story the competitor failed to tell.",
	model.StrategyPricingResponse:       "Hold your price and sharpen the value message instead of matching the cut.",
	model.StrategyStandardPositioning:   "Tighten your own messaging so the contrast with their confusing launch is obvious.",
	model.StrategyPriceIncreaseResponse: "Court the customers their price increase will push away.",
	model.StrategyDefensiveWait:         "Let the competitor's stumble play out before committing resources.",
	model.StrategyDefaultWait:           "Keep monitoring; the situation does not yet justify a move.",
}

// Explain builds advice from the decision and signals without any model call.
func (p *TemplateProvider) Explain(_ context.Context, decision model.StrategyDecision, signals model.Signals) (Advice, error) {
	advice, ok := strategyAdvice[decision.StrategyType]
	if !ok {
		advice = strategyAdvice[model.StrategyDefaultWait]
	}

	var reason strings.Builder
	fmt.Fprintf(&reason, "The recommended response is %s with %s urgency",
		decision.StrategyType, decision.Urgency)
	if signals.Event != model.EventUnknown {
		fmt.Fprintf(&reason, " because %s reported a %s", signals.CompetitorName, signals.Event)
		if signals.ExecutionQuality != model.ExecutionUnknown {
			fmt.Fprintf(&reason, " with %s execution", signals.ExecutionQuality)
		}
	} else {
		reason.WriteString(" because the report did not contain enough signal to act on")
	}
	reason.WriteString(".")
	if len(decision.Avoid) > 0 {
		fmt.Fprintf(&reason, " Avoid: %s.", strings.Join(decision.Avoid, ", "))
	}

	return Advice{Advice: advice, Reason: reason.String()}, nil
}
