package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/taisaku-ai/taisaku/internal/ctxutil"
	"github.com/taisaku-ai/taisaku/internal/model"
	"github.com/taisaku-ai/taisaku/internal/pipeline"
)

func (s *Server) registerTools() {
	// taisaku_analyze — run a competitor report through the pipeline.
	s.mcpServer.AddTool(
		mcplib.NewTool("taisaku_analyze",
			mcplib.WithDescription(`Analyze a free-text competitor report and get a strategy recommendation.

WHEN TO USE: Whenever you learn about a competitor move — a price change,
a product launch, new messaging — and need to decide how to respond.

WHAT YOU GET BACK:
- best_move: the recommended strategy (e.g. pricing_response, default_wait)
- urgency: how quickly to act (high/medium/low)
- avoid: tactics to stay away from (e.g. race_to_bottom)
- advice and reason: a plain-language explanation of the recommendation
- confidence: how certain the pipeline is about the output

Identical reports produce identical recommendations; repeated analyses of
the same move are served from cache.

EXAMPLE: text="Initech dropped prices by 30% across their product line"`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("text",
				mcplib.Description("The competitor report in plain language, 10-3000 characters"),
				mcplib.Required(),
			),
		),
		s.handleAnalyze,
	)

	// taisaku_insights — decision patterns and spiral warning.
	s.mcpServer.AddTool(
		mcplib.NewTool("taisaku_insights",
			mcplib.WithDescription(`Get aggregated decision patterns for your business over the last 90 days.

WHEN TO USE: Periodically, or before acting on a high-urgency recommendation.
The profile shows whether you are overreacting to competitors.

WHAT YOU GET BACK:
- profile: reactivity level, wait tendency, price war risk, competitor
  diversity, and per-strategy decision counts
- spiral_warning: present only when recent history shows an unhealthy
  reactive pattern (many high-urgency responses to one competitor)`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleInsights,
	)

	// taisaku_history — per-competitor decision history and trend.
	s.mcpServer.AddTool(
		mcplib.NewTool("taisaku_history",
			mcplib.WithDescription(`Get your decision history and urgency trend for one competitor.

WHEN TO USE: Before responding to a competitor you have responded to
before. An increasing urgency trend means your reactions to this
competitor are escalating.

WHAT YOU GET BACK:
- trend: total analyses, first/last seen, most common response, and
  whether urgency is increasing, decreasing, or stable
- decisions: the underlying memory records, oldest first`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("competitor",
				mcplib.Description("The competitor name as it appeared in past recommendations"),
				mcplib.Required(),
			),
			mcplib.WithNumber("days",
				mcplib.Description("Trailing window in days"),
				mcplib.Min(1),
				mcplib.Max(365),
				mcplib.DefaultNumber(90),
			),
		),
		s.handleHistory,
	)

	// taisaku_explain — show which strategy rules fire for a signal set.
	s.mcpServer.AddTool(
		mcplib.NewTool("taisaku_explain",
			mcplib.WithDescription(`Show how the rule engine evaluates a set of competitor signals.

WHEN TO USE: To understand why a recommendation came out the way it did,
or to explore what-if scenarios without recording a decision.

Each rule is reported with whether it matched; the first match wins.
Nothing is cached or written to memory.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("event",
				mcplib.Description("Event type: price_drop, price_increase, product_launch, messaging, or unknown"),
				mcplib.Required(),
			),
			mcplib.WithString("sentiment",
				mcplib.Description("Market sentiment: positive, mixed_positive, neutral, negative, or unknown"),
			),
			mcplib.WithString("clarity",
				mcplib.Description("Message clarity: clear, confusing, or unknown"),
			),
			mcplib.WithString("execution_quality",
				mcplib.Description("Execution quality: strong, weak, or unknown"),
			),
		),
		s.handleExplain,
	)
}

func (s *Server) handleAnalyze(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	businessID := ctxutil.BusinessIDFromContext(ctx)
	if businessID == uuid.Nil {
		return errorResult("authentication required"), nil
	}

	text := request.GetString("text", "")
	req := model.AnalyzeRequest{Text: text}
	if err := req.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	rec, err := s.pipelineSvc.Analyze(ctx, businessID, text)
	if err != nil {
		var blocked *pipeline.BlockedError
		if errors.As(err, &blocked) {
			return errorResult(fmt.Sprintf("request blocked: %s", blocked.Result.First().Message)), nil
		}
		return errorResult(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	return jsonResult(rec), nil
}

func (s *Server) handleInsights(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	businessID := ctxutil.BusinessIDFromContext(ctx)
	if businessID == uuid.Nil {
		return errorResult("authentication required"), nil
	}

	profile, spiral, err := s.insightsSvc.Insights(ctx, businessID)
	if err != nil {
		return errorResult(fmt.Sprintf("insights failed: %v", err)), nil
	}

	return jsonResult(model.InsightsResponse{
		Profile:       &profile,
		SpiralWarning: spiral,
	}), nil
}

func (s *Server) handleHistory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	businessID := ctxutil.BusinessIDFromContext(ctx)
	if businessID == uuid.Nil {
		return errorResult("authentication required"), nil
	}

	competitor := request.GetString("competitor", "")
	if competitor == "" {
		return errorResult("competitor is required"), nil
	}
	days := request.GetInt("days", 90)

	trend, decisions, err := s.insightsSvc.CompetitorHistory(ctx, businessID, competitor, days)
	if err != nil {
		return errorResult(fmt.Sprintf("history failed: %v", err)), nil
	}

	return jsonResult(model.CompetitorHistoryResponse{
		Trend:     &trend,
		Decisions: decisions,
	}), nil
}

func (s *Server) handleExplain(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	signals := model.Signals{
		Event:            model.ParseEventType(request.GetString("event", "")),
		Sentiment:        model.ParseSentiment(request.GetString("sentiment", "")),
		Clarity:          model.ParseClarity(request.GetString("clarity", "")),
		ExecutionQuality: model.ParseExecutionQuality(request.GetString("execution_quality", "")),
		CompetitorName:   "Unknown",
	}

	return jsonResult(map[string]any{
		"signals":     signals,
		"evaluations": s.pipelineSvc.Explain(signals),
	}), nil
}
