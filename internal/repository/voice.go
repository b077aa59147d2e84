package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-link-backend/internal/models"
)

// VoiceRecord is a voice message row; the clip itself lives in blob storage
// under S3Key.
type VoiceRecord struct {
	models.VoiceMessage
	S3Key string
}

// VoiceRepository handles database operations for voice messages
type VoiceRepository struct {
	db *pgxpool.Pool
}

// NewVoiceRepository creates a new voice repository
func NewVoiceRepository(db *pgxpool.Pool) *VoiceRepository {
	return &VoiceRepository{db: db}
}

// Create inserts a voice message row
func (r *VoiceRepository) Create(ctx context.Context, v *VoiceRecord) error {
	query := `
		INSERT INTO voice_messages (id, from_id, to_id, timestamp, duration, s3_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		v.ID, v.FromID, v.ToID, v.Timestamp, v.Duration, v.S3Key,
	)
	if err != nil {
		return fmt.Errorf("failed to create voice message: %w", err)
	}
	return nil
}

// GetByID retrieves a voice message row by ID
func (r *VoiceRepository) GetByID(ctx context.Context, id string) (*VoiceRecord, error) {
	query := `
		SELECT id, from_id, to_id, timestamp, duration, s3_key
		FROM voice_messages
		WHERE id = $1
	`
	var v VoiceRecord
	err := r.db.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.FromID, &v.ToID, &v.Timestamp, &v.Duration, &v.S3Key,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("voice message: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get voice message: %w", err)
	}
	return &v, nil
}

// LatestForUser retrieves the newest voice message addressed to a user
func (r *VoiceRepository) LatestForUser(ctx context.Context, toID string) (*VoiceRecord, error) {
	query := `
		SELECT id, from_id, to_id, timestamp, duration, s3_key
		FROM voice_messages
		WHERE to_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`
	var v VoiceRecord
	err := r.db.QueryRow(ctx, query, toID).Scan(
		&v.ID, &v.FromID, &v.ToID, &v.Timestamp, &v.Duration, &v.S3Key,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("voice message: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest voice message: %w", err)
	}
	return &v, nil
}

// Delete removes a voice message row
func (r *VoiceRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM voice_messages WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete voice message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("voice message: %w", ErrNotFound)
	}
	return nil
}
