package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taisaku-ai/taisaku/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEntry() Entry {
	return Entry{
		Decision: model.StrategyDecision{
			StrategyType: model.StrategyPricingResponse,
			Focus:        "value_not_discount",
			Urgency:      model.UrgencyHigh,
			Avoid:        []string{"race_to_bottom"},
			Confidence:   model.ConfidenceHigh,
		},
		Advice:     "Hold price and communicate value.",
		Reason:     "Competitor price drop with strong execution.",
		Confidence: model.ConfidenceHigh,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

// failingBackend simulates a down cache backend.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingBackend) Close() error { return nil }

func TestDecisionCacheRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	c := New(backend, time.Hour, testLogger())
	ctx := context.Background()
	want := sampleEntry()

	c.Store(ctx, "v1:abc", want)
	got, ok := c.Lookup(ctx, "v1:abc")
	require.True(t, ok, "expected a cache hit after store")
	assert.Equal(t, want.Decision, got.Decision)
	assert.Equal(t, want.Advice, got.Advice)
	assert.Equal(t, want.Reason, got.Reason)
}

func TestDecisionCacheMissOnUnknownKey(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	c := New(backend, time.Hour, testLogger())
	_, ok := c.Lookup(context.Background(), "v1:missing")
	assert.False(t, ok)
}

func TestDecisionCacheFailOpenOnBackendErrors(t *testing.T) {
	c := New(failingBackend{}, time.Hour, testLogger())
	ctx := context.Background()

	// Lookup must report a miss, never panic or error.
	_, ok := c.Lookup(ctx, "v1:abc")
	assert.False(t, ok)

	// Store must be a silent no-op.
	c.Store(ctx, "v1:abc", sampleEntry())
}

func TestDecisionCacheNilBackendDisablesCaching(t *testing.T) {
	c := New(nil, time.Hour, testLogger())
	ctx := context.Background()

	c.Store(ctx, "v1:abc", sampleEntry())
	_, ok := c.Lookup(ctx, "v1:abc")
	assert.False(t, ok)
}

func TestDecisionCacheCorruptEntryIsMiss(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	require.NoError(t, backend.Set(context.Background(), "v1:abc", []byte("{not json"), time.Hour))

	c := New(backend, time.Hour, testLogger())
	_, ok := c.Lookup(context.Background(), "v1:abc")
	assert.False(t, ok, "corrupt entries must read as misses")
}

func TestMemoryBackendExpiry(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return current }

	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, "k", []byte("v"), time.Hour))

	_, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	current = current.Add(2 * time.Hour)
	_, ok, err = backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries must not be returned")
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLiteBackend(ctx, t.TempDir()+"/cache.db")
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Set(ctx, "v1:abc", []byte(`{"x":1}`), time.Hour))

	got, ok, err := backend.Get(ctx, "v1:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"x":1}`), got)
}

func TestSQLiteBackendExpiredEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLiteBackend(ctx, ":memory:")
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Set(ctx, "v1:abc", []byte("v"), -time.Second))

	_, ok, err := backend.Get(ctx, "v1:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteBackendOverwrite(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLiteBackend(ctx, ":memory:")
	require.NoError(t, err)
	defer backend.Close()

	require.NoError(t, backend.Set(ctx, "k", []byte("first"), time.Hour))
	require.NoError(t, backend.Set(ctx, "k", []byte("second"), time.Hour))

	got, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)
}
