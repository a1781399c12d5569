package storage_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/taisaku-ai/taisaku/internal/model"
	"github.com/taisaku-ai/taisaku/internal/storage"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "taisaku",
			"POSTGRES_PASSWORD": "taisaku",
			"POSTGRES_DB":       "taisaku",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://taisaku:taisaku@%s:%s/taisaku?sslmode=disable", host, port.Port())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	testDB, err = storage.New(ctx, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.RunMigrations(ctx, os.DirFS("../../migrations")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func mustCreateBusiness(t *testing.T, name string) model.Business {
	t.Helper()
	b, err := testDB.CreateBusiness(context.Background(), name, "argon2id$test-hash")
	require.NoError(t, err)
	return b
}

func sampleMemory(businessID uuid.UUID, competitor string, createdAt time.Time, urgency model.Urgency) model.DecisionMemory {
	return model.DecisionMemory{
		BusinessID:     businessID,
		CreatedAt:      createdAt,
		CompetitorName: competitor,
		Signals: model.Signals{
			Event:            model.EventPriceDrop,
			Sentiment:        model.SentimentNeutral,
			Clarity:          model.ClarityClear,
			ExecutionQuality: model.ExecutionStrong,
			CompetitorName:   competitor,
		},
		Decision: model.StrategyDecision{
			StrategyType: model.StrategyPricingResponse,
			Focus:        "value_not_discount",
			Urgency:      urgency,
			Avoid:        []string{"race_to_bottom"},
			Confidence:   model.ConfidenceHigh,
		},
		Fingerprint: "v1:" + uuid.NewString(),
	}
}

func TestCreateAndGetBusiness(t *testing.T) {
	ctx := context.Background()

	b := mustCreateBusiness(t, "acme-widgets")
	assert.NotEqual(t, uuid.Nil, b.ID)

	got, err := testDB.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme-widgets", got.Name)
	assert.Equal(t, "argon2id$test-hash", got.APIKeyHash)

	byName, err := testDB.GetBusinessByName(ctx, "acme-widgets")
	require.NoError(t, err)
	assert.Equal(t, b.ID, byName.ID)
}

func TestCreateBusinessDuplicateName(t *testing.T) {
	mustCreateBusiness(t, "duplicate-co")

	_, err := testDB.CreateBusiness(context.Background(), "duplicate-co", "other-hash")
	assert.ErrorIs(t, err, storage.ErrDuplicateName)
}

func TestGetBusinessNotFound(t *testing.T) {
	_, err := testDB.GetBusiness(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = testDB.GetBusinessByName(context.Background(), "no-such-business")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendAndRecentDecisions(t *testing.T) {
	ctx := context.Background()
	b := mustCreateBusiness(t, "recency-co")

	base := time.Now().UTC().Add(-time.Hour)
	for i := range 3 {
		_, err := testDB.AppendDecision(ctx, sampleMemory(b.ID, "RivalCorp", base.Add(time.Duration(i)*time.Minute), model.UrgencyHigh))
		require.NoError(t, err)
	}

	got, err := testDB.RecentDecisions(ctx, b.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
	assert.Equal(t, model.StrategyPricingResponse, got[0].Decision.StrategyType)
	assert.Equal(t, model.EventPriceDrop, got[0].Signals.Event)
}

func TestAppendDecisionRoundTripsPayloads(t *testing.T) {
	ctx := context.Background()
	b := mustCreateBusiness(t, "roundtrip-co")

	in := sampleMemory(b.ID, "Initech", time.Now().UTC(), model.UrgencyMedium)
	stored, err := testDB.AppendDecision(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.DecisionID)

	got, err := testDB.RecentDecisions(ctx, b.ID, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in.Signals, got[0].Signals)
	assert.Equal(t, in.Decision, got[0].Decision)
	assert.Equal(t, in.Fingerprint, got[0].Fingerprint)
}

func TestDecisionsSince(t *testing.T) {
	ctx := context.Background()
	b := mustCreateBusiness(t, "window-co")

	now := time.Now().UTC()
	_, err := testDB.AppendDecision(ctx, sampleMemory(b.ID, "OldCo", now.Add(-30*24*time.Hour), model.UrgencyLow))
	require.NoError(t, err)
	_, err = testDB.AppendDecision(ctx, sampleMemory(b.ID, "NewCo", now.Add(-time.Hour), model.UrgencyHigh))
	require.NoError(t, err)

	got, err := testDB.DecisionsSince(ctx, b.ID, now.Add(-14*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NewCo", got[0].CompetitorName)
}

func TestDecisionsByCompetitorCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	b := mustCreateBusiness(t, "casefold-co")

	now := time.Now().UTC()
	_, err := testDB.AppendDecision(ctx, sampleMemory(b.ID, "Acme Corp", now.Add(-2*time.Hour), model.UrgencyLow))
	require.NoError(t, err)
	_, err = testDB.AppendDecision(ctx, sampleMemory(b.ID, "ACME CORP", now.Add(-time.Hour), model.UrgencyHigh))
	require.NoError(t, err)
	_, err = testDB.AppendDecision(ctx, sampleMemory(b.ID, "Other", now, model.UrgencyLow))
	require.NoError(t, err)

	got, err := testDB.DecisionsByCompetitor(ctx, b.ID, "acme corp", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Oldest first for trend math.
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))
}

func TestDecisionsScopedToBusiness(t *testing.T) {
	ctx := context.Background()
	b1 := mustCreateBusiness(t, "tenant-one")
	b2 := mustCreateBusiness(t, "tenant-two")

	_, err := testDB.AppendDecision(ctx, sampleMemory(b1.ID, "Shared", time.Now().UTC(), model.UrgencyHigh))
	require.NoError(t, err)

	got, err := testDB.RecentDecisions(ctx, b2.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	count, err := testDB.CountDecisions(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
