// Package ratelimit provides a pluggable fixed-window rate limiting interface.
//
// The OSS distribution ships an in-memory counter store (MemoryLimiter).
// Multi-instance deployments can substitute a Redis-backed implementation
// for cross-instance coordination — the Limiter interface is the contract.
package ratelimit

import (
	"context"
	"time"
)

// Rule describes one counting window.
type Rule struct {
	// Prefix namespaces the counter (e.g. "analyze:minute").
	Prefix string
	// Limit is the maximum number of requests per window.
	Limit int
	// Window is the fixed bucket size.
	Window time.Duration
}

// Result reports the outcome of one increment-and-check operation.
type Result struct {
	Allowed bool
	// Count is the number of requests recorded in the current window,
	// including this one when allowed.
	Count int
	Limit int
	// ResetAt is when the current window rolls over.
	ResetAt time.Time
	// Rule is the rule this result was evaluated against. For AllowAll
	// denials it identifies the window that ran out of quota.
	Rule Rule
}

// Limiter decides whether a request identified by key should be allowed
// under a rule. Implementations must be safe for concurrent use.
//
// Returning an error signals a limiter malfunction; callers should treat
// errors as fail-open (permit the request) rather than blocking traffic.
type Limiter interface {
	// Allow atomically increments the counter for (rule, key) and reports
	// whether the request is within the rule's limit. Denied requests do
	// not consume quota.
	Allow(ctx context.Context, rule Rule, key string) (Result, error)

	// AllowAll checks every rule for key and increments the counters only
	// when all of them have capacity. A denial consumes no quota in any
	// window; the returned Result identifies the first exhausted rule.
	AllowAll(ctx context.Context, rules []Rule, key string) (Result, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always permits.
func (NoopLimiter) Allow(_ context.Context, rule Rule, _ string) (Result, error) {
	return Result{Allowed: true, Count: 0, Limit: rule.Limit, ResetAt: time.Now().Add(rule.Window), Rule: rule}, nil
}

// AllowAll always permits.
func (NoopLimiter) AllowAll(_ context.Context, rules []Rule, _ string) (Result, error) {
	res := Result{Allowed: true}
	if len(rules) > 0 {
		res.Limit = rules[0].Limit
		res.ResetAt = time.Now().Add(rules[0].Window)
		res.Rule = rules[0]
	}
	return res, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
