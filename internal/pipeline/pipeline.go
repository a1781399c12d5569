// Package pipeline composes the guardrails, analyst, rule engine, advisor,
// cache, and memory log into the end-to-end analysis handler.
//
// Both the HTTP API and MCP server delegate to this service so that every
// surface enforces the same sequence: input guardrails, extraction,
// fingerprint, cache, engine, explanation, output guardrails, best-effort
// cache store and memory append.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/taisaku-ai/taisaku/internal/advisor"
	"github.com/taisaku-ai/taisaku/internal/analyst"
	"github.com/taisaku-ai/taisaku/internal/cache"
	"github.com/taisaku-ai/taisaku/internal/fingerprint"
	"github.com/taisaku-ai/taisaku/internal/guardrail"
	"github.com/taisaku-ai/taisaku/internal/model"
	"github.com/taisaku-ai/taisaku/internal/strategy"
	"github.com/taisaku-ai/taisaku/internal/telemetry"
)

// Store is the slice of the storage layer the pipeline writes to.
type Store interface {
	AppendDecision(ctx context.Context, m model.DecisionMemory) (model.DecisionMemory, error)
}

// BlockedError is returned when a guardrail hard-blocks the request.
type BlockedError struct {
	Result guardrail.Result
}

func (e *BlockedError) Error() string {
	v := e.Result.First()
	return fmt.Sprintf("pipeline: blocked by guardrail: %s: %s", v.Category, v.Message)
}

// RateLimited reports whether the block came from the rate guard.
func (e *BlockedError) RateLimited() bool {
	return e.Result.First().Category == guardrail.CategoryRateLimitExceeded
}

// ExtractionError is returned when the analyst fails hard (transport, auth).
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("pipeline: extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Timeouts bounds every external call the pipeline makes. A hung provider
// or store fails that one step instead of stalling the request on the
// caller's context.
type Timeouts struct {
	Extract time.Duration
	Explain time.Duration
	Cache   time.Duration
	Memory  time.Duration
}

// DefaultTimeouts are generous enough for a slow model call but still
// bounded.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Extract: 15 * time.Second,
		Explain: 15 * time.Second,
		Cache:   2 * time.Second,
		Memory:  5 * time.Second,
	}
}

// withDefaults fills unset fields so a zero Timeouts never disables the
// deadlines.
func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Extract <= 0 {
		t.Extract = d.Extract
	}
	if t.Explain <= 0 {
		t.Explain = d.Explain
	}
	if t.Cache <= 0 {
		t.Cache = d.Cache
	}
	if t.Memory <= 0 {
		t.Memory = d.Memory
	}
	return t
}

// Service runs the analysis pipeline.
type Service struct {
	rateGuard *guardrail.RateGuard
	analyst   analyst.Provider
	advisor   advisor.Provider
	fallback  *advisor.TemplateProvider
	cache     *cache.DecisionCache
	store     Store
	logger    *slog.Logger
	timeouts  Timeouts

	// group collapses concurrent cache misses on the same fingerprint so
	// the engine and advisor run once per distinct signal set.
	group singleflight.Group

	analyzeDuration metric.Float64Histogram
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	blocks          metric.Int64Counter
}

// New creates a pipeline service. cache may carry a nil backend (caching
// disabled) and store may be nil (memory log disabled, used in some tests).
// Zero fields in timeouts fall back to DefaultTimeouts.
func New(rateGuard *guardrail.RateGuard, an analyst.Provider, adv advisor.Provider, c *cache.DecisionCache, store Store, logger *slog.Logger, timeouts Timeouts) *Service {
	meter := telemetry.Meter("taisaku/pipeline")
	dur, _ := meter.Float64Histogram("taisaku.analyze.duration",
		metric.WithDescription("End-to-end analysis time (ms)"),
		metric.WithUnit("ms"),
	)
	hits, _ := meter.Int64Counter("taisaku.cache.hits",
		metric.WithDescription("Decision cache hits"),
	)
	misses, _ := meter.Int64Counter("taisaku.cache.misses",
		metric.WithDescription("Decision cache misses"),
	)
	blocks, _ := meter.Int64Counter("taisaku.guardrail.blocks",
		metric.WithDescription("Requests blocked by a guardrail"),
	)
	return &Service{
		rateGuard:       rateGuard,
		analyst:         an,
		advisor:         adv,
		fallback:        advisor.NewTemplateProvider(),
		cache:           c,
		store:           store,
		logger:          logger,
		timeouts:        timeouts.withDefaults(),
		analyzeDuration: dur,
		cacheHits:       hits,
		cacheMisses:     misses,
		blocks:          blocks,
	}
}

// decisionOutcome is what the miss path produces and the cache remembers.
type decisionOutcome struct {
	entry       cache.Entry
	substituted bool
}

// Analyze runs one report through the full pipeline.
//
// Hard guardrail blocks return *BlockedError with no cache or memory side
// effects. Analyst hard failures return *ExtractionError. Everything past
// extraction degrades instead of failing: unparseable model output becomes
// unknown signals, advisor failures fall back to template advice, and output
// violations substitute the safe fallback decision.
func (s *Service) Analyze(ctx context.Context, businessID uuid.UUID, text string) (model.Recommendation, error) {
	start := time.Now()
	defer func() {
		s.analyzeDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("taisaku.business_id", businessID.String()))

	// Input guardrails. Order matters: rate counters only increment for
	// requests that pass the content checks.
	input := guardrail.ValidateInput(text)
	input.Merge(guardrail.ValidateDataSource(text))
	if !input.Passed {
		return s.block(ctx, businessID, input)
	}
	for _, w := range input.Warnings {
		s.logger.Warn("input guardrail warning", "business_id", businessID, "warning", w)
	}

	if rate := s.rateGuard.Check(ctx, businessID.String()); !rate.Passed {
		return s.block(ctx, businessID, rate)
	}

	// Extraction. A deadline here surfaces as an *ExtractionError like any
	// other analyst failure.
	extractCtx, cancelExtract := context.WithTimeout(ctx, s.timeouts.Extract)
	signals, extractionConfidence, err := s.analyst.Extract(extractCtx, text)
	cancelExtract()
	if err != nil {
		return model.Recommendation{}, &ExtractionError{Err: err}
	}
	signals = signals.Normalize()
	span.SetAttributes(
		attribute.String("taisaku.event", string(signals.Event)),
		attribute.String("taisaku.competitor", signals.CompetitorName),
	)

	fp := fingerprint.Compute(signals)

	// Cache lookup. A hit reuses the decision and explanation verbatim;
	// the stored entry already passed output validation when it was made.
	outcome, cacheHit := s.lookup(ctx, fp)
	if !cacheHit {
		s.cacheMisses.Add(ctx, 1)
		outcome = s.decideOnce(ctx, fp, signals)
		if s.cache != nil && !outcome.substituted {
			storeCtx, cancel := context.WithTimeout(ctx, s.timeouts.Cache)
			s.cache.Store(storeCtx, fp, outcome.entry)
			cancel()
		}
	} else {
		s.cacheHits.Add(ctx, 1)
	}

	confidence := capConfidence(outcome.entry.Confidence, extractionConfidence)

	memory := model.DecisionMemory{
		DecisionID:     uuid.New(),
		BusinessID:     businessID,
		CreatedAt:      time.Now().UTC(),
		CompetitorName: signals.CompetitorName,
		Signals:        signals,
		Decision:       outcome.entry.Decision,
		Fingerprint:    fp,
		CacheHit:       cacheHit,
	}
	if s.store != nil {
		memCtx, cancel := context.WithTimeout(ctx, s.timeouts.Memory)
		if _, err := s.store.AppendDecision(memCtx, memory); err != nil {
			s.logger.Error("memory append failed", "business_id", businessID, "error", err)
		}
		cancel()
	}

	return model.Recommendation{
		DecisionID: memory.DecisionID,
		BestMove:   outcome.entry.Decision.StrategyType,
		Focus:      outcome.entry.Decision.Focus,
		Urgency:    outcome.entry.Decision.Urgency,
		Avoid:      outcome.entry.Decision.Avoid,
		Advice:     outcome.entry.Advice,
		Reason:     outcome.entry.Reason,
		Confidence: confidence,
		CacheHit:   cacheHit,
	}, nil
}

// Explain runs the rule engine diagnostically, reporting every rule's
// match state for the given signals. No guardrails, cache, or memory.
func (s *Service) Explain(signals model.Signals) []strategy.RuleEvaluation {
	return strategy.ExplainEvaluation(signals.Normalize())
}

func (s *Service) lookup(ctx context.Context, fp string) (decisionOutcome, bool) {
	if s.cache == nil {
		return decisionOutcome{}, false
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeouts.Cache)
	defer cancel()
	entry, ok := s.cache.Lookup(lookupCtx, fp)
	if !ok {
		return decisionOutcome{}, false
	}
	return decisionOutcome{entry: entry}, true
}

// decideOnce runs the engine and advisor for a fingerprint, collapsing
// concurrent misses through singleflight.
func (s *Service) decideOnce(ctx context.Context, fp string, signals model.Signals) decisionOutcome {
	v, _, _ := s.group.Do(fp, func() (any, error) {
		return s.decide(ctx, signals), nil
	})
	return v.(decisionOutcome)
}

func (s *Service) decide(ctx context.Context, signals model.Signals) decisionOutcome {
	decision := strategy.Decide(signals)

	// A timed-out advisor degrades to template advice like any other
	// advisor failure.
	explainCtx, cancel := context.WithTimeout(ctx, s.timeouts.Explain)
	advice, err := s.advisor.Explain(explainCtx, decision, signals)
	cancel()
	if err != nil {
		s.logger.Warn("advisor failed, using template advice", "error", err)
		advice, _ = s.fallback.Explain(ctx, decision, signals)
	}

	// Output guardrails. Hard violations and hostile advice both force the
	// safe fallback; the request still succeeds.
	out := guardrail.ValidateOutput(decision, advice.Advice)
	if !out.Passed || guardrail.HasAggressiveTone(advice.Advice) || guardrail.HasAggressiveTone(advice.Reason) {
		s.blocks.Add(ctx, 1)
		s.logger.Warn("output guardrail substituted safe fallback",
			"strategy", decision.StrategyType,
			"violations", len(out.Violations),
		)
		return decisionOutcome{
			entry: cache.Entry{
				Decision:   guardrail.SafeFallback(),
				Advice:     guardrail.SafeFallbackAdvice,
				Reason:     guardrail.SafeFallbackReason,
				Confidence: model.ConfidenceLow,
				CreatedAt:  time.Now().UTC(),
			},
			substituted: true,
		}
	}
	for _, w := range out.Warnings {
		s.logger.Warn("output guardrail warning", "warning", w)
	}

	return decisionOutcome{
		entry: cache.Entry{
			Decision:   decision,
			Advice:     advice.Advice,
			Reason:     advice.Reason,
			Confidence: decision.Confidence,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func (s *Service) block(ctx context.Context, businessID uuid.UUID, result guardrail.Result) (model.Recommendation, error) {
	s.blocks.Add(ctx, 1)
	v := result.First()
	s.logger.Warn("request blocked by guardrail",
		"business_id", businessID,
		"category", v.Category,
		"severity", v.Severity,
	)
	return model.Recommendation{}, &BlockedError{Result: result}
}

// capConfidence never lets the response claim more certainty than the
// extraction that produced the signals.
func capConfidence(c, extraction model.Confidence) model.Confidence {
	if extraction == model.ConfidenceLow {
		return model.ConfidenceLow
	}
	if extraction == model.ConfidenceMedium && c == model.ConfidenceHigh {
		return model.ConfidenceMedium
	}
	return c
}
