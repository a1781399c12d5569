package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// Store is the slice of the storage layer the insights service reads.
type Store interface {
	DecisionsSince(ctx context.Context, businessID uuid.UUID, since time.Time) ([]model.DecisionMemory, error)
	DecisionsByCompetitor(ctx context.Context, businessID uuid.UUID, competitor string, since time.Time) ([]model.DecisionMemory, error)
	RecentDecisions(ctx context.Context, businessID uuid.UUID, limit int) ([]model.DecisionMemory, error)
}

// Service computes insights on demand from the memory log.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates an insights service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Insights returns the business profile over the 90-day window and, when the
// pattern is present, a spiral warning over the 14-day window. The two
// window reads run concurrently.
func (s *Service) Insights(ctx context.Context, businessID uuid.UUID) (model.BusinessProfile, *model.SpiralWarning, error) {
	now := time.Now().UTC()

	var profileWindow, spiralWindow []model.DecisionMemory
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profileWindow, err = s.store.DecisionsSince(gctx, businessID, now.AddDate(0, 0, -ProfileWindowDays))
		return err
	})
	g.Go(func() error {
		var err error
		spiralWindow, err = s.store.DecisionsSince(gctx, businessID, now.AddDate(0, 0, -SpiralWindowDays))
		return err
	})
	if err := g.Wait(); err != nil {
		return model.BusinessProfile{}, nil, fmt.Errorf("insights: load windows: %w", err)
	}

	profile := BuildProfile(businessID, ProfileWindowDays, profileWindow)
	warning := DetectSpiral(spiralWindow)
	if warning != nil {
		s.logger.Warn("reactive spiral detected",
			"business_id", businessID,
			"severity", warning.Severity,
			"dominant_competitor", warning.DominantCompetitor,
		)
	}
	return profile, warning, nil
}

// CompetitorHistory returns the trend summary and the underlying records for
// one competitor over a trailing window of days (default 90).
func (s *Service) CompetitorHistory(ctx context.Context, businessID uuid.UUID, competitor string, days int) (model.CompetitorTrend, []model.DecisionMemory, error) {
	if days <= 0 {
		days = ProfileWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	memories, err := s.store.DecisionsByCompetitor(ctx, businessID, competitor, since)
	if err != nil {
		return model.CompetitorTrend{}, nil, fmt.Errorf("insights: competitor history: %w", err)
	}
	return BuildCompetitorTrend(competitor, memories), memories, nil
}

// Recent returns the newest memory records for a business.
func (s *Service) Recent(ctx context.Context, businessID uuid.UUID, limit int) ([]model.DecisionMemory, error) {
	memories, err := s.store.RecentDecisions(ctx, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("insights: recent decisions: %w", err)
	}
	return memories, nil
}
