// Package cache implements the fingerprint-keyed decision cache.
//
// The cache is an optimization layer, never a source of truth: every backend
// error is logged and treated as a miss on read or a no-op on write, so the
// pipeline proceeds as if the cache were absent (fail-open). There is no
// negative caching, and last-write-wins is acceptable because decisions for
// a given fingerprint are idempotent.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// Backend is the raw byte store contract. Implementations own expiry:
// Get must never return an expired value.
type Backend interface {
	// Get returns the value for key, a presence flag, and any backend error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the value under key with the given time to live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Close releases backend resources.
	Close() error
}

// Entry is the cached payload for one fingerprint: the approved decision
// plus its advisory texts. Only guardrail-approved payloads are stored.
type Entry struct {
	Decision   model.StrategyDecision `json:"decision"`
	Advice     string                 `json:"advice"`
	Reason     string                 `json:"reason"`
	Confidence model.Confidence       `json:"confidence"`
	CreatedAt  time.Time              `json:"created_at"`
}

// DecisionCache wraps a Backend with serialization, TTL policy, and
// fail-open error handling.
type DecisionCache struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates a DecisionCache. A nil backend disables caching entirely
// (every Lookup misses, every Store is a no-op).
func New(backend Backend, ttl time.Duration, logger *slog.Logger) *DecisionCache {
	return &DecisionCache{backend: backend, ttl: ttl, logger: logger}
}

// Lookup returns the cached entry for a fingerprint. Any backend or decode
// error is logged and reported as a miss; Lookup never fails.
func (c *DecisionCache) Lookup(ctx context.Context, fp string) (Entry, bool) {
	if c == nil || c.backend == nil {
		return Entry{}, false
	}

	raw, ok, err := c.backend.Get(ctx, fp)
	if err != nil {
		c.logger.Warn("cache: read failed, treating as miss", "error", err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache: corrupt entry, treating as miss", "error", err)
		return Entry{}, false
	}
	return entry, true
}

// Store writes an entry under the fingerprint, best-effort. Errors are
// logged and swallowed; Store never fails.
func (c *DecisionCache) Store(ctx context.Context, fp string, entry Entry) {
	if c == nil || c.backend == nil {
		return
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache: marshal failed, skipping write", "error", err)
		return
	}
	if err := c.backend.Set(ctx, fp, raw, c.ttl); err != nil {
		c.logger.Warn("cache: write failed, skipping", "error", err)
	}
}
