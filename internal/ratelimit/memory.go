package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is a single fixed-window counter for one (rule, key) pair.
type window struct {
	count      int
	start      time.Time
	lastAccess time.Time
}

// MemoryLimiter implements Limiter using in-memory fixed-window counters.
//
// Each (rule prefix, key) pair gets an independent counter that resets when
// its window elapses. A background goroutine evicts stale entries to bound
// memory. Call Close to stop it.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	stopOnce sync.Once
	done     chan struct{}

	// now is overridable in tests.
	now func() time.Time
}

// NewMemoryLimiter creates an in-memory fixed-window limiter.
func NewMemoryLimiter() *MemoryLimiter {
	m := &MemoryLimiter{
		windows: make(map[string]*window),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go m.cleanup()
	return m
}

// Allow increments the counter for (rule, key) unless the limit is already
// reached. Denied requests do not consume quota.
func (m *MemoryLimiter) Allow(_ context.Context, rule Rule, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w := m.windowFor(rule, key, now)

	resetAt := w.start.Add(rule.Window)
	if w.count >= rule.Limit {
		return Result{Allowed: false, Count: w.count, Limit: rule.Limit, ResetAt: resetAt, Rule: rule}, nil
	}
	w.count++
	return Result{Allowed: true, Count: w.count, Limit: rule.Limit, ResetAt: resetAt, Rule: rule}, nil
}

// AllowAll checks every rule for key under one lock and increments the
// counters only when all rules have capacity. A denial by any window leaves
// every counter untouched.
func (m *MemoryLimiter) AllowAll(_ context.Context, rules []Rule, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windows := make([]*window, len(rules))
	for i, rule := range rules {
		w := m.windowFor(rule, key, now)
		if w.count >= rule.Limit {
			return Result{
				Allowed: false,
				Count:   w.count,
				Limit:   rule.Limit,
				ResetAt: w.start.Add(rule.Window),
				Rule:    rule,
			}, nil
		}
		windows[i] = w
	}

	res := Result{Allowed: true}
	for i, w := range windows {
		w.count++
		if i == 0 {
			res.Count = w.count
			res.Limit = rules[i].Limit
			res.ResetAt = w.start.Add(rules[i].Window)
			res.Rule = rules[i]
		}
	}
	return res, nil
}

// windowFor returns the live counter for (rule, key), resetting it when the
// window has elapsed. Callers must hold m.mu.
func (m *MemoryLimiter) windowFor(rule Rule, key string, now time.Time) *window {
	id := rule.Prefix + ":" + key
	w, ok := m.windows[id]
	if !ok || now.Sub(w.start) >= rule.Window {
		w = &window{start: now}
		m.windows[id] = w
	}
	w.lastAccess = now
	return w
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

// staleThreshold covers the longest window in use (the daily quota) plus slack.
const staleThreshold = 25 * time.Hour

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-staleThreshold)
	for id, w := range m.windows {
		if w.lastAccess.Before(cutoff) {
			delete(m.windows, id)
		}
	}
}
