package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taisaku-ai/taisaku/internal/advisor"
	"github.com/taisaku-ai/taisaku/internal/auth"
	"github.com/taisaku-ai/taisaku/internal/cache"
	"github.com/taisaku-ai/taisaku/internal/guardrail"
	"github.com/taisaku-ai/taisaku/internal/insights"
	"github.com/taisaku-ai/taisaku/internal/model"
	"github.com/taisaku-ai/taisaku/internal/pipeline"
)

type stubAnalyst struct {
	signals    model.Signals
	confidence model.Confidence
}

func (s stubAnalyst) Extract(_ context.Context, _ string) (model.Signals, model.Confidence, error) {
	return s.signals, s.confidence, nil
}

// fakeStore satisfies both pipeline.Store and insights.Store in memory.
type fakeStore struct {
	memories []model.DecisionMemory
}

func (f *fakeStore) AppendDecision(_ context.Context, m model.DecisionMemory) (model.DecisionMemory, error) {
	f.memories = append(f.memories, m)
	return m, nil
}

func (f *fakeStore) DecisionsSince(_ context.Context, businessID uuid.UUID, since time.Time) ([]model.DecisionMemory, error) {
	var out []model.DecisionMemory
	for _, m := range f.memories {
		if m.BusinessID == businessID && !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) DecisionsByCompetitor(_ context.Context, businessID uuid.UUID, competitor string, since time.Time) ([]model.DecisionMemory, error) {
	var out []model.DecisionMemory
	for _, m := range f.memories {
		if m.BusinessID == businessID && m.CompetitorName == competitor && !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentDecisions(_ context.Context, businessID uuid.UUID, limit int) ([]model.DecisionMemory, error) {
	var out []model.DecisionMemory
	for i := len(f.memories) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if f.memories[i].BusinessID == businessID {
			out = append(out, f.memories[i])
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	server   *Server
	jwtMgr   *auth.JWTManager
	store    *fakeStore
	business model.Business
	token    string
}

func newTestEnv(t *testing.T, an stubAnalyst) *testEnv {
	t.Helper()
	logger := testLogger()

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	store := &fakeStore{}
	rateGuard := guardrail.NewRateGuard(nil, guardrail.DefaultRateLimits())
	decisionCache := cache.New(cache.NewMemoryBackend(), time.Hour, logger)
	pipelineSvc := pipeline.New(rateGuard, an, advisor.NewTemplateProvider(), decisionCache, store, logger, pipeline.DefaultTimeouts())
	insightsSvc := insights.NewService(store, logger)

	srv := New(ServerConfig{
		JWTMgr:              jwtMgr,
		PipelineSvc:         pipelineSvc,
		InsightsSvc:         insightsSvc,
		Logger:              logger,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
		AdminAPIKey:         "admin-secret",
	})

	business := model.Business{
		ID:        uuid.New(),
		Name:      "acme",
		CreatedAt: time.Now().UTC(),
	}
	token, _, err := jwtMgr.IssueToken(business, auth.RoleBusiness)
	require.NoError(t, err)

	return &testEnv{server: srv, jwtMgr: jwtMgr, store: store, business: business, token: token}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorDetail {
	t.Helper()
	var envelope struct {
		Error model.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error
}

func TestAnalyzeEndToEnd(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{
		signals: model.Signals{
			Event:            model.EventPriceDrop,
			Sentiment:        model.SentimentNegative,
			Clarity:          model.ClarityClear,
			ExecutionQuality: model.ExecutionStrong,
			CompetitorName:   "Initech",
		},
		confidence: model.ConfidenceMedium,
	})

	rec := env.do(t, http.MethodPost, "/v1/analyze", env.token, model.AnalyzeRequest{
		Text: "Initech dropped prices by 30% across their product line",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[model.Recommendation](t, rec)
	assert.Equal(t, model.StrategyPricingResponse, result.BestMove)
	assert.Equal(t, model.UrgencyHigh, result.Urgency)
	assert.False(t, result.CacheHit)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// The record lands in memory for the same business.
	require.Len(t, env.store.memories, 1)
	assert.Equal(t, env.business.ID, env.store.memories[0].BusinessID)
}

func TestAnalyzeRequiresAuth(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodPost, "/v1/analyze", "", model.AnalyzeRequest{
		Text: "Initech dropped prices by 30% across their product line",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.ErrCodeUnauthorized, decodeError(t, rec).Code)
}

func TestAnalyzeRejectsShortText(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodPost, "/v1/analyze", env.token, model.AnalyzeRequest{Text: "short"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeBadRequest, decodeError(t, rec).Code)
}

func TestAnalyzeGuardrailBlockReturns422(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodPost, "/v1/analyze", env.token, model.AnalyzeRequest{
		Text: "We should hack competitor systems to learn their pricing",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, model.ErrCodeBlocked, detail.Code)
	assert.NotNil(t, detail.Details)
	assert.Empty(t, env.store.memories)
}

func TestInsightsEmptyHistory(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodGet, "/v1/insights", env.token, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[model.InsightsResponse](t, rec)
	require.NotNil(t, result.Profile)
	assert.Equal(t, 0, result.Profile.TotalDecisions)
	assert.Nil(t, result.SpiralWarning)
}

func TestCompetitorHistoryValidatesDays(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodGet, "/v1/competitors/Initech/history?days=zero", env.token, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompetitorHistoryReturnsTrend(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		env.store.memories = append(env.store.memories, model.DecisionMemory{
			DecisionID:     uuid.New(),
			BusinessID:     env.business.ID,
			CreatedAt:      now.Add(-time.Duration(3-i) * 24 * time.Hour),
			CompetitorName: "Initech",
			Decision:       model.StrategyDecision{StrategyType: model.StrategyDefaultWait, Urgency: model.UrgencyLow},
		})
	}

	rec := env.do(t, http.MethodGet, "/v1/competitors/Initech/history", env.token, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[model.CompetitorHistoryResponse](t, rec)
	require.NotNil(t, result.Trend)
	assert.Equal(t, 3, result.Trend.TotalAnalyses)
	assert.Len(t, result.Decisions, 3)
}

func TestRecentDecisionsNewestFirst(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		env.store.memories = append(env.store.memories, model.DecisionMemory{
			DecisionID:     uuid.New(),
			BusinessID:     env.business.ID,
			CreatedAt:      now.Add(time.Duration(i) * time.Minute),
			CompetitorName: "Initech",
		})
	}

	rec := env.do(t, http.MethodGet, "/v1/decisions/recent?limit=2", env.token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeData[[]model.DecisionMemory](t, rec)
	require.Len(t, result, 2)
	assert.True(t, result[0].CreatedAt.After(result[1].CreatedAt))
}

func TestCreateBusinessRejectsWithoutAdminKey(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodPost, "/v1/businesses", "", model.CreateBusinessRequest{Name: "globex"})

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBusinessRejectsBusinessToken(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodPost, "/v1/businesses", env.token, model.CreateBusinessRequest{Name: "globex"})

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	rec := env.do(t, http.MethodGet, "/v1/insights", "not-a-token", nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t, stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-12345")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-12345", rec.Header().Get("X-Request-ID"))
	var envelope struct {
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "req-12345", envelope.Meta.RequestID)
}
