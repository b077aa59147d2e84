package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-link-backend/internal/models"
)

// EncounterRepository handles database operations for encounters
type EncounterRepository struct {
	db *pgxpool.Pool
}

// NewEncounterRepository creates a new encounter repository
func NewEncounterRepository(db *pgxpool.Pool) *EncounterRepository {
	return &EncounterRepository{db: db}
}

// Create appends an encounter log entry
func (r *EncounterRepository) Create(ctx context.Context, e *models.Encounter) error {
	query := `
		INSERT INTO encounters (id, user1_id, user2_id, timestamp, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.User1ID, e.User2ID, e.Timestamp, e.Latitude, e.Longitude,
	)
	if err != nil {
		return fmt.Errorf("failed to create encounter: %w", err)
	}
	return nil
}
