package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-link-backend/internal/models"
)

// LocationRepository handles database operations for user locations
type LocationRepository struct {
	db *pgxpool.Pool
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *pgxpool.Pool) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create inserts a location record
func (r *LocationRepository) Create(ctx context.Context, loc *models.UserLocation) error {
	query := `
		INSERT INTO user_locations (id, user_id, latitude, longitude, timestamp, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		loc.ID, loc.UserID, loc.Latitude, loc.Longitude, loc.Timestamp, loc.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

// DeleteForUser removes all location records for a user
func (r *LocationRepository) DeleteForUser(ctx context.Context, userID string) error {
	query := `DELETE FROM user_locations WHERE user_id = $1`
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete locations: %w", err)
	}
	return nil
}

// LatestForUser retrieves the newest location record for a user. Expiry is
// the reader's concern; stale rows are still returned.
func (r *LocationRepository) LatestForUser(ctx context.Context, userID string) (*models.UserLocation, error) {
	query := `
		SELECT id, user_id, latitude, longitude, timestamp, expires_at
		FROM user_locations
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`
	var loc models.UserLocation
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&loc.ID, &loc.UserID, &loc.Latitude, &loc.Longitude, &loc.Timestamp, &loc.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("location: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest location: %w", err)
	}
	return &loc, nil
}
