package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// CreateBusiness registers a new business with a pre-hashed API key.
// Names are unique; a clash returns ErrDuplicateName.
func (db *DB) CreateBusiness(ctx context.Context, name, apiKeyHash string) (model.Business, error) {
	b := model.Business{
		ID:         uuid.New(),
		Name:       name,
		APIKeyHash: apiKeyHash,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO businesses (id, name, api_key_hash, created_at)
		 VALUES ($1, $2, $3, $4)`,
		b.ID, b.Name, b.APIKeyHash, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Business{}, ErrDuplicateName
		}
		return model.Business{}, fmt.Errorf("storage: create business: %w", err)
	}
	return b, nil
}

// GetBusiness retrieves a business by ID.
func (db *DB) GetBusiness(ctx context.Context, id uuid.UUID) (model.Business, error) {
	var b model.Business
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, api_key_hash, created_at FROM businesses WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.APIKeyHash, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Business{}, ErrNotFound
		}
		return model.Business{}, fmt.Errorf("storage: get business: %w", err)
	}
	return b, nil
}

// GetBusinessByName retrieves a business by its registered name.
// Used by the token endpoint to verify API keys.
func (db *DB) GetBusinessByName(ctx context.Context, name string) (model.Business, error) {
	var b model.Business
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, api_key_hash, created_at FROM businesses WHERE name = $1`, name,
	).Scan(&b.ID, &b.Name, &b.APIKeyHash, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Business{}, ErrNotFound
		}
		return model.Business{}, fmt.Errorf("storage: get business by name: %w", err)
	}
	return b, nil
}
