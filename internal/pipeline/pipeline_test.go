package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taisaku-ai/taisaku/internal/advisor"
	"github.com/taisaku-ai/taisaku/internal/cache"
	"github.com/taisaku-ai/taisaku/internal/guardrail"
	"github.com/taisaku-ai/taisaku/internal/model"
	"github.com/taisaku-ai/taisaku/internal/ratelimit"
)

type stubAnalyst struct {
	signals    model.Signals
	confidence model.Confidence
	err        error
	calls      int
}

func (a *stubAnalyst) Extract(_ context.Context, _ string) (model.Signals, model.Confidence, error) {
	a.calls++
	if a.err != nil {
		return model.Signals{}, "", a.err
	}
	return a.signals, a.confidence, nil
}

type stubAdvisor struct {
	advice advisor.Advice
	err    error
	calls  int
}

func (a *stubAdvisor) Explain(_ context.Context, _ model.StrategyDecision, _ model.Signals) (advisor.Advice, error) {
	a.calls++
	return a.advice, a.err
}

type recordingStore struct {
	appended []model.DecisionMemory
	err      error
}

func (s *recordingStore) AppendDecision(_ context.Context, m model.DecisionMemory) (model.DecisionMemory, error) {
	if s.err != nil {
		return model.DecisionMemory{}, s.err
	}
	s.appended = append(s.appended, m)
	return m, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func priceDropSignals() model.Signals {
	return model.Signals{
		Event:            model.EventPriceDrop,
		Sentiment:        model.SentimentNeutral,
		Clarity:          model.ClarityClear,
		ExecutionQuality: model.ExecutionStrong,
		CompetitorName:   "Acme",
	}
}

func newTestService(an *stubAnalyst, adv *stubAdvisor, store Store) *Service {
	backend := cache.NewMemoryBackend()
	c := cache.New(backend, time.Hour, testLogger())
	return New(nil, an, adv, c, store, testLogger(), DefaultTimeouts())
}

const reportText = "Competitor dropped prices by 30% across their product line"

func TestAnalyzePriceDropScenario(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "Hold your price.", Reason: "Their cut is aggressive but fragile."}}
	store := &recordingStore{}
	svc := newTestService(an, adv, store)

	rec, err := svc.Analyze(context.Background(), uuid.New(), reportText)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyPricingResponse, rec.BestMove)
	assert.Equal(t, model.UrgencyHigh, rec.Urgency)
	assert.Contains(t, rec.Avoid, "race_to_bottom")
	assert.Equal(t, "Hold your price.", rec.Advice)
	assert.Equal(t, model.ConfidenceHigh, rec.Confidence)
	assert.False(t, rec.CacheHit)
	require.Len(t, store.appended, 1)
	assert.Equal(t, rec.DecisionID, store.appended[0].DecisionID)
	assert.Equal(t, "Acme", store.appended[0].CompetitorName)
}

func TestAnalyzeAllUnknownSignals(t *testing.T) {
	an := &stubAnalyst{signals: model.UnknownSignals(), confidence: model.ConfidenceLow}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "Keep watching.", Reason: "Nothing actionable yet."}}
	svc := newTestService(an, adv, &recordingStore{})

	rec, err := svc.Analyze(context.Background(), uuid.New(), reportText)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyDefaultWait, rec.BestMove)
	assert.Equal(t, model.UrgencyLow, rec.Urgency)
	assert.Equal(t, model.ConfidenceLow, rec.Confidence)
}

func TestAnalyzeCacheHitSkipsEngineAndAdvisor(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "Hold your price.", Reason: "r"}}
	store := &recordingStore{}
	svc := newTestService(an, adv, store)
	ctx := context.Background()
	businessID := uuid.New()

	first, err := svc.Analyze(ctx, businessID, reportText)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := svc.Analyze(ctx, businessID, reportText)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.BestMove, second.BestMove)
	assert.Equal(t, first.Advice, second.Advice)
	assert.Equal(t, 1, adv.calls, "advisor must not run on a cache hit")
	// Both runs land in memory, with distinct decision IDs.
	require.Len(t, store.appended, 2)
	assert.NotEqual(t, store.appended[0].DecisionID, store.appended[1].DecisionID)
	assert.True(t, store.appended[1].CacheHit)
}

func TestAnalyzeHostileAdviceSubstitutesSafeFallback(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "Cut prices and destroy them completely.", Reason: "r"}}
	svc := newTestService(an, adv, &recordingStore{})

	rec, err := svc.Analyze(context.Background(), uuid.New(), reportText)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyDefaultWait, rec.BestMove)
	assert.Equal(t, model.UrgencyLow, rec.Urgency)
	assert.Equal(t, guardrail.SafeFallbackAdvice, rec.Advice)
	assert.Equal(t, model.ConfidenceLow, rec.Confidence)
}

func TestAnalyzeSubstitutedResultNotCached(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "destroy them", Reason: "r"}}
	svc := newTestService(an, adv, &recordingStore{})
	ctx := context.Background()

	_, err := svc.Analyze(ctx, uuid.New(), reportText)
	require.NoError(t, err)

	// A clean advisor on the second run should produce the real decision,
	// which means the fallback was not cached under the fingerprint.
	adv.advice = advisor.Advice{Advice: "Hold your price.", Reason: "r"}
	rec, err := svc.Analyze(ctx, uuid.New(), reportText)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyPricingResponse, rec.BestMove)
	assert.False(t, rec.CacheHit)
}

func TestAnalyzeInputBlockHasNoSideEffects(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "a", Reason: "r"}}
	store := &recordingStore{}
	svc := newTestService(an, adv, store)

	_, err := svc.Analyze(context.Background(), uuid.New(), "We should hack competitor systems to learn their pricing")

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.False(t, blocked.RateLimited())
	assert.Equal(t, guardrail.CategoryHarmfulIntent, blocked.Result.First().Category)
	assert.Zero(t, an.calls, "extraction must not run after a block")
	assert.Empty(t, store.appended)
}

func TestAnalyzeLeakedSourceBlocked(t *testing.T) {
	svc := newTestService(&stubAnalyst{}, &stubAdvisor{}, &recordingStore{})

	_, err := svc.Analyze(context.Background(), uuid.New(), "According to a leaked internal document, they plan a price cut")

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, guardrail.CategoryUnethicalSource, blocked.Result.First().Category)
}

func TestAnalyzeRateLimited(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "a", Reason: "r"}}

	limiter := ratelimit.NewMemoryLimiter()
	defer limiter.Close()
	guard := guardrail.NewRateGuard(limiter, guardrail.RateLimits{PerMinute: 2, PerHour: 100, PerDay: 500})

	backend := cache.NewMemoryBackend()
	defer backend.Close()
	svc := New(guard, an, adv, cache.New(backend, time.Hour, testLogger()), &recordingStore{}, testLogger(), DefaultTimeouts())

	ctx := context.Background()
	businessID := uuid.New()
	for range 2 {
		_, err := svc.Analyze(ctx, businessID, reportText)
		require.NoError(t, err)
	}

	_, err := svc.Analyze(ctx, businessID, reportText)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.True(t, blocked.RateLimited())
}

func TestAnalyzeExtractionHardError(t *testing.T) {
	an := &stubAnalyst{err: errors.New("api unreachable")}
	svc := newTestService(an, &stubAdvisor{}, &recordingStore{})

	_, err := svc.Analyze(context.Background(), uuid.New(), reportText)

	var extraction *ExtractionError
	require.ErrorAs(t, err, &extraction)
}

func TestAnalyzeAdvisorFailureFallsBackToTemplate(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{err: errors.New("model overloaded")}
	svc := newTestService(an, adv, &recordingStore{})

	rec, err := svc.Analyze(context.Background(), uuid.New(), reportText)
	require.NoError(t, err)

	assert.Equal(t, model.StrategyPricingResponse, rec.BestMove)
	assert.NotEmpty(t, rec.Advice)
	assert.NotEmpty(t, rec.Reason)
}

func TestAnalyzeCapsConfidenceToExtraction(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceLow}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "a", Reason: "r"}}
	svc := newTestService(an, adv, &recordingStore{})

	rec, err := svc.Analyze(context.Background(), uuid.New(), reportText)
	require.NoError(t, err)

	// The rule itself is high confidence; low-confidence extraction caps it.
	assert.Equal(t, model.StrategyPricingResponse, rec.BestMove)
	assert.Equal(t, model.ConfidenceLow, rec.Confidence)
}

func TestAnalyzeMemoryAppendFailureIsNonFatal(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "a", Reason: "r"}}
	svc := newTestService(an, adv, &recordingStore{err: errors.New("disk full")})

	rec, err := svc.Analyze(context.Background(), uuid.New(), reportText)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyPricingResponse, rec.BestMove)
}

func TestCapConfidence(t *testing.T) {
	assert.Equal(t, model.ConfidenceHigh, capConfidence(model.ConfidenceHigh, model.ConfidenceHigh))
	assert.Equal(t, model.ConfidenceMedium, capConfidence(model.ConfidenceHigh, model.ConfidenceMedium))
	assert.Equal(t, model.ConfidenceLow, capConfidence(model.ConfidenceHigh, model.ConfidenceLow))
	assert.Equal(t, model.ConfidenceMedium, capConfidence(model.ConfidenceMedium, model.ConfidenceHigh))
}

type hangingAnalyst struct{}

func (hangingAnalyst) Extract(ctx context.Context, _ string) (model.Signals, model.Confidence, error) {
	<-ctx.Done()
	return model.Signals{}, "", ctx.Err()
}

type hangingAdvisor struct{}

func (hangingAdvisor) Explain(ctx context.Context, _ model.StrategyDecision, _ model.Signals) (advisor.Advice, error) {
	<-ctx.Done()
	return advisor.Advice{}, ctx.Err()
}

func TestAnalyzeExtractionDeadline(t *testing.T) {
	backend := cache.NewMemoryBackend()
	defer backend.Close()
	adv := &stubAdvisor{advice: advisor.Advice{Advice: "a", Reason: "r"}}
	svc := New(nil, hangingAnalyst{}, adv,
		cache.New(backend, time.Hour, testLogger()), &recordingStore{}, testLogger(),
		Timeouts{Extract: 50 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), uuid.New(), reportText)
		done <- err
	}()

	select {
	case err := <-done:
		var extractErr *ExtractionError
		require.ErrorAs(t, err, &extractErr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Analyze did not return after the extraction deadline")
	}
}

func TestAnalyzeAdvisorDeadlineFallsBack(t *testing.T) {
	an := &stubAnalyst{signals: priceDropSignals(), confidence: model.ConfidenceHigh}
	backend := cache.NewMemoryBackend()
	defer backend.Close()
	svc := New(nil, an, hangingAdvisor{},
		cache.New(backend, time.Hour, testLogger()), &recordingStore{}, testLogger(),
		Timeouts{Explain: 50 * time.Millisecond})

	type result struct {
		rec model.Recommendation
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := svc.Analyze(context.Background(), uuid.New(), reportText)
		done <- result{rec, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		// The timed-out advisor was replaced by template advice.
		assert.NotEmpty(t, res.rec.Advice)
		assert.False(t, res.rec.CacheHit)
	case <-time.After(2 * time.Second):
		t.Fatal("Analyze did not return after the advisor deadline")
	}
}
