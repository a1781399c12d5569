package analyst

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

const extractPrompt = `You are a competitive intelligence analyst. Extract structured signals from this report of a competitor's move.

Report:
%s

Respond with only a JSON object, no prose:
{
  "event": "price_drop" | "price_increase" | "product_launch" | "messaging" | "unknown",
  "sentiment": "positive" | "mixed_positive" | "neutral" | "negative" | "unknown",
  "clarity": "clear" | "confusing" | "unknown",
  "execution_quality": "strong" | "weak" | "unknown",
  "competitor_name": "<name or Unknown>",
  "confidence": "high" | "medium" | "low"
}

Use "unknown" for any field the report does not support.`

// GeminiProvider extracts signals using the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed extraction provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("analyst: gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("analyst: create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Extract asks Gemini for a signal JSON and maps it onto the enums.
// Transport and API errors are hard failures; malformed model output
// degrades to unknown signals with low confidence.
func (p *GeminiProvider) Extract(ctx context.Context, text string) (model.Signals, model.Confidence, error) {
	resp, err := p.client.Models.GenerateContent(ctx,
		p.model,
		genai.Text(fmt.Sprintf(extractPrompt, text)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return model.Signals{}, "", fmt.Errorf("analyst: gemini generate: %w", err)
	}

	signals, confidence, ok := parseExtraction(resp.Text())
	if !ok {
		return model.UnknownSignals(), model.ConfidenceLow, nil
	}
	return signals, confidence, nil
}

type extractionPayload struct {
	Event            string `json:"event"`
	Sentiment        string `json:"sentiment"`
	Clarity          string `json:"clarity"`
	ExecutionQuality string `json:"execution_quality"`
	CompetitorName   string `json:"competitor_name"`
	Confidence       string `json:"confidence"`
}

// parseExtraction decodes the model's JSON reply. Out-of-range enum values
// fall back to unknown rather than failing.
func parseExtraction(raw string) (model.Signals, model.Confidence, bool) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return model.Signals{}, "", false
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.Signals{}, "", false
	}

	signals := model.Signals{
		Event:            model.ParseEventType(payload.Event),
		Sentiment:        model.ParseSentiment(payload.Sentiment),
		Clarity:          model.ParseClarity(payload.Clarity),
		ExecutionQuality: model.ParseExecutionQuality(payload.ExecutionQuality),
		CompetitorName:   payload.CompetitorName,
	}.Normalize()

	confidence := model.ConfidenceLow
	switch strings.ToLower(strings.TrimSpace(payload.Confidence)) {
	case "high":
		confidence = model.ConfidenceHigh
	case "medium":
		confidence = model.ConfidenceMedium
	}
	return signals, confidence, true
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around its JSON despite the MIME type hint.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
