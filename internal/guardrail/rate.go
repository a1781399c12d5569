package guardrail

import (
	"context"
	"fmt"
	"time"

	"github.com/taisaku-ai/taisaku/internal/ratelimit"
)

// RateLimits holds the three per-business quota windows.
type RateLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// DefaultRateLimits are the shipped per-business quotas.
func DefaultRateLimits() RateLimits {
	return RateLimits{PerMinute: 10, PerHour: 100, PerDay: 500}
}

// RateGuard enforces the per-business request quotas using an injected
// counter store. It runs after all other input checks so that rejected
// requests never consume quota.
type RateGuard struct {
	limiter ratelimit.Limiter
	rules   []ratelimit.Rule
}

// NewRateGuard creates a rate guardrail over the given limiter.
// A nil limiter disables enforcement (every check passes).
func NewRateGuard(limiter ratelimit.Limiter, limits RateLimits) *RateGuard {
	return &RateGuard{
		limiter: limiter,
		rules: []ratelimit.Rule{
			{Prefix: "analyze:minute", Limit: limits.PerMinute, Window: time.Minute},
			{Prefix: "analyze:hour", Limit: limits.PerHour, Window: time.Hour},
			{Prefix: "analyze:day", Limit: limits.PerDay, Window: 24 * time.Hour},
		},
	}
}

// Check evaluates all three windows for the business and fails if any
// window's limit is exceeded. Counters only increment when every window has
// capacity, so a denied request consumes no quota anywhere. Limiter
// malfunctions fail open.
func (g *RateGuard) Check(ctx context.Context, businessID string) Result {
	result := pass()
	if g == nil || g.limiter == nil {
		return result
	}

	res, err := g.limiter.AllowAll(ctx, g.rules, businessID)
	if err != nil {
		// Fail open: a broken limiter must not block traffic.
		return result
	}
	if !res.Allowed {
		result.addViolation(CategoryRateLimitExceeded, SeverityHigh,
			fmt.Sprintf("exceeded %d requests per %s", res.Rule.Limit, windowLabel(res.Rule.Window)))
	}
	return result
}

func windowLabel(w time.Duration) string {
	switch w {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	default:
		return w.String()
	}
}
