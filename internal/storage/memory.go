package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taisaku-ai/taisaku/internal/model"
)

const memoryColumns = `decision_id, business_id, created_at, competitor_name,
	 signals, decision, fingerprint, cache_hit`

// AppendDecision records one fully processed analysis in the memory log.
// The log is append-only; rows are never updated.
func (db *DB) AppendDecision(ctx context.Context, m model.DecisionMemory) (model.DecisionMemory, error) {
	if m.DecisionID == uuid.Nil {
		m.DecisionID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO decision_memory (`+memoryColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.DecisionID, m.BusinessID, m.CreatedAt, m.CompetitorName,
			m.Signals, m.Decision, m.Fingerprint, m.CacheHit,
		)
		return err
	})
	if err != nil {
		return model.DecisionMemory{}, fmt.Errorf("storage: append decision: %w", err)
	}
	return m, nil
}

// RecentDecisions returns the newest memory records for a business.
func (db *DB) RecentDecisions(ctx context.Context, businessID uuid.UUID, limit int) ([]model.DecisionMemory, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM decision_memory
		 WHERE business_id = $1 ORDER BY created_at DESC LIMIT $2`,
		businessID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: recent decisions: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// DecisionsSince returns all memory records for a business created at or
// after the given time, newest first. The insights layer derives profiles
// and spiral warnings from this window.
func (db *DB) DecisionsSince(ctx context.Context, businessID uuid.UUID, since time.Time) ([]model.DecisionMemory, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM decision_memory
		 WHERE business_id = $1 AND created_at >= $2 ORDER BY created_at DESC`,
		businessID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: decisions since: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// DecisionsByCompetitor returns memory records for one competitor within a
// trailing window, oldest first so trend math can split halves in order.
// Competitor matching is case-insensitive.
func (db *DB) DecisionsByCompetitor(ctx context.Context, businessID uuid.UUID, competitor string, since time.Time) ([]model.DecisionMemory, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM decision_memory
		 WHERE business_id = $1 AND lower(competitor_name) = lower($2) AND created_at >= $3
		 ORDER BY created_at ASC`,
		businessID, competitor, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: decisions by competitor: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// CountDecisions returns the total number of memory records for a business.
func (db *DB) CountDecisions(ctx context.Context, businessID uuid.UUID) (int, error) {
	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM decision_memory WHERE business_id = $1`, businessID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage: count decisions: %w", err)
	}
	return total, nil
}

func scanMemories(rows pgx.Rows) ([]model.DecisionMemory, error) {
	var memories []model.DecisionMemory
	for rows.Next() {
		var m model.DecisionMemory
		if err := rows.Scan(
			&m.DecisionID, &m.BusinessID, &m.CreatedAt, &m.CompetitorName,
			&m.Signals, &m.Decision, &m.Fingerprint, &m.CacheHit,
		); err != nil {
			return nil, fmt.Errorf("storage: scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
