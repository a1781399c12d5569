package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const explainPrompt = `You advise a small business owner on competitive strategy. A rule engine has already chosen the response; your job is only to explain it in plain language. Do not suggest a different strategy and do not use aggressive or hostile language.

Competitor move: %s by %s (sentiment: %s, clarity: %s, execution: %s)
Chosen response: %s, focus on %s, urgency %s, avoid: %s

Respond with only a JSON object, no prose:
{
  "advice": "<two sentences of practical guidance>",
  "reason": "<one sentence on why this response fits the move>"
}`

// GeminiProvider generates explanations using the Gemini API.
type GeminiProvider struct {
	client   *genai.Client
	model    string
	fallback *TemplateProvider
}

// NewGeminiProvider creates a Gemini-backed explanation provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("advisor: gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("advisor: create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, fallback: NewTemplateProvider()}, nil
}

// Explain asks Gemini for an explanation of the already-made decision.
// Malformed model output degrades to the template explanation.
func (p *GeminiProvider) Explain(ctx context.Context, decision model.StrategyDecision, signals model.Signals) (Advice, error) {
	prompt := fmt.Sprintf(explainPrompt,
		signals.Event, signals.CompetitorName, signals.Sentiment, signals.Clarity, signals.ExecutionQuality,
		decision.StrategyType, decision.Focus, decision.Urgency, strings.Join(decision.Avoid, ", "),
	)

	resp, err := p.client.Models.GenerateContent(ctx,
		p.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return Advice{}, fmt.Errorf("advisor: gemini generate: %w", err)
	}

	advice, ok := parseAdvice(resp.Text())
	if !ok {
		return p.fallback.Explain(ctx, decision, signals)
	}
	return advice, nil
}

type advicePayload struct {
	Advice string `json:"advice"`
	Reason string `json:"reason"`
}

func parseAdvice(raw string) (Advice, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")

	var payload advicePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Advice{}, false
	}
	if strings.TrimSpace(payload.Advice) == "" {
		return Advice{}, false
	}
	return Advice{
		Advice: strings.TrimSpace(payload.Advice),
		Reason: strings.TrimSpace(payload.Reason),
	}, true
}
