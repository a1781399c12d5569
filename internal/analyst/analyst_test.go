package analyst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taisaku-ai/taisaku/internal/model"
)

func TestKeywordProviderPriceDrop(t *testing.T) {
	p := NewKeywordProvider()
	signals, confidence, err := p.Extract(context.Background(), "Acme Corp dropped prices by 30% and the launch was well executed")
	require.NoError(t, err)

	assert.Equal(t, model.EventPriceDrop, signals.Event)
	assert.Equal(t, model.ExecutionStrong, signals.ExecutionQuality)
	assert.Equal(t, "Acme Corp", signals.CompetitorName)
	assert.Equal(t, model.ConfidenceMedium, confidence)
}

func TestKeywordProviderProductLaunch(t *testing.T) {
	p := NewKeywordProvider()
	signals, _, err := p.Extract(context.Background(), "Initech unveiled a new product but reviewers found the messaging confusing")
	require.NoError(t, err)

	assert.Equal(t, model.EventProductLaunch, signals.Event)
	assert.Equal(t, model.ClarityConfusing, signals.Clarity)
	assert.Equal(t, "Initech", signals.CompetitorName)
}

func TestKeywordProviderNoSignals(t *testing.T) {
	p := NewKeywordProvider()
	signals, confidence, err := p.Extract(context.Background(), "nothing interesting happened this week in the market")
	require.NoError(t, err)

	assert.Equal(t, model.EventUnknown, signals.Event)
	assert.Equal(t, model.SentimentUnknown, signals.Sentiment)
	assert.Equal(t, "Unknown", signals.CompetitorName)
	assert.Equal(t, model.ConfidenceLow, confidence)
}

func TestKeywordProviderSkipsSentenceStarters(t *testing.T) {
	p := NewKeywordProvider()
	signals, _, err := p.Extract(context.Background(), "Yesterday Globex launched a campaign that was poorly received")
	require.NoError(t, err)

	assert.Equal(t, "Globex", signals.CompetitorName)
	assert.Equal(t, model.SentimentNegative, signals.Sentiment)
}

func TestParseExtraction(t *testing.T) {
	raw := `{"event":"price_drop","sentiment":"neutral","clarity":"clear","execution_quality":"strong","competitor_name":"Acme","confidence":"high"}`

	signals, confidence, ok := parseExtraction(raw)
	require.True(t, ok)
	assert.Equal(t, model.EventPriceDrop, signals.Event)
	assert.Equal(t, model.ClarityClear, signals.Clarity)
	assert.Equal(t, "Acme", signals.CompetitorName)
	assert.Equal(t, model.ConfidenceHigh, confidence)
}

func TestParseExtractionCodeFence(t *testing.T) {
	raw := "```json\n{\"event\":\"messaging\",\"confidence\":\"medium\"}\n```"

	signals, confidence, ok := parseExtraction(raw)
	require.True(t, ok)
	assert.Equal(t, model.EventMessaging, signals.Event)
	assert.Equal(t, model.ConfidenceMedium, confidence)
	// Absent fields normalize to unknown.
	assert.Equal(t, model.SentimentUnknown, signals.Sentiment)
	assert.Equal(t, "Unknown", signals.CompetitorName)
}

func TestParseExtractionOutOfRangeEnums(t *testing.T) {
	raw := `{"event":"MERGER","sentiment":"ecstatic","clarity":"CLEAR","execution_quality":"","competitor_name":"  Rival  ","confidence":"absolutely"}`

	signals, confidence, ok := parseExtraction(raw)
	require.True(t, ok)
	assert.Equal(t, model.EventUnknown, signals.Event)
	assert.Equal(t, model.SentimentUnknown, signals.Sentiment)
	assert.Equal(t, model.ClarityClear, signals.Clarity)
	assert.Equal(t, "Rival", signals.CompetitorName)
	assert.Equal(t, model.ConfidenceLow, confidence)
}

func TestParseExtractionMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json at all", "{'single': 'quotes'}", "```\n```"} {
		_, _, ok := parseExtraction(raw)
		assert.False(t, ok, "raw=%q", raw)
	}
}
