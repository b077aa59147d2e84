package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-link-backend/internal/models"
)

// HeartbeatRepository handles database operations for heartbeats
type HeartbeatRepository struct {
	db *pgxpool.Pool
}

// NewHeartbeatRepository creates a new heartbeat repository
func NewHeartbeatRepository(db *pgxpool.Pool) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// Create appends a heartbeat
func (r *HeartbeatRepository) Create(ctx context.Context, hb *models.Heartbeat) error {
	query := `
		INSERT INTO heartbeats (id, from_id, to_id, timestamp)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, hb.ID, hb.FromID, hb.ToID, hb.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create heartbeat: %w", err)
	}
	return nil
}

// LatestForUser retrieves the newest heartbeat addressed to a user
func (r *HeartbeatRepository) LatestForUser(ctx context.Context, toID string) (*models.Heartbeat, error) {
	query := `
		SELECT id, from_id, to_id, timestamp
		FROM heartbeats
		WHERE to_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`
	var hb models.Heartbeat
	err := r.db.QueryRow(ctx, query, toID).Scan(&hb.ID, &hb.FromID, &hb.ToID, &hb.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("heartbeat: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest heartbeat: %w", err)
	}
	return &hb, nil
}

// DeleteOlderThan prunes heartbeat history; retention is a store-side concern
func (r *HeartbeatRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM heartbeats WHERE timestamp < $1`
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune heartbeats: %w", err)
	}
	return result.RowsAffected(), nil
}
