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

// SessionRepository handles database operations for pairing sessions
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new pairing session
func (r *SessionRepository) Create(ctx context.Context, s *models.PairingSession) error {
	query := `
		INSERT INTO pairing_sessions (id, code, initiator_id, receiver_id, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.Code, s.InitiatorID, s.ReceiverID, s.Used, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.PairingSession, error) {
	query := `
		SELECT id, code, initiator_id, receiver_id, used, expires_at, created_at
		FROM pairing_sessions
		WHERE id = $1
	`
	var s models.PairingSession
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Code, &s.InitiatorID, &s.ReceiverID, &s.Used, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// GetByCode retrieves the newest session with an exact code match.
// Lookups are deliberately not scoped by initiator.
func (r *SessionRepository) GetByCode(ctx context.Context, code string) (*models.PairingSession, error) {
	query := `
		SELECT id, code, initiator_id, receiver_id, used, expires_at, created_at
		FROM pairing_sessions
		WHERE code = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var s models.PairingSession
	err := r.db.QueryRow(ctx, query, code).Scan(
		&s.ID, &s.Code, &s.InitiatorID, &s.ReceiverID, &s.Used, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by code: %w", err)
	}
	return &s, nil
}

// ActiveCodeExists checks whether an unexpired, unused session already holds the code
func (r *SessionRepository) ActiveCodeExists(ctx context.Context, code string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM pairing_sessions
			WHERE code = $1 AND used = FALSE AND expires_at > $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, code, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active code: %w", err)
	}
	return exists, nil
}

// Redeem claims the session for a receiver, touching only the receiver and
// used columns. The row guard makes the first writer win; a second redeemer
// gets ErrConflict.
func (r *SessionRepository) Redeem(ctx context.Context, id, receiverID string) error {
	query := `
		UPDATE pairing_sessions
		SET receiver_id = $1, used = TRUE
		WHERE id = $2 AND used = FALSE AND receiver_id IS NULL
	`
	result, err := r.db.Exec(ctx, query, receiverID, id)
	if err != nil {
		return fmt.Errorf("failed to redeem session: %w", err)
	}
	if result.RowsAffected() == 0 {
		// either missing or already claimed; disambiguate for the caller
		if _, err := r.GetByID(ctx, id); err != nil {
			return fmt.Errorf("session: %w", ErrNotFound)
		}
		return fmt.Errorf("session already redeemed: %w", ErrConflict)
	}
	return nil
}

// DeleteByInitiator removes every session the initiator owns
func (r *SessionRepository) DeleteByInitiator(ctx context.Context, initiatorID string) error {
	query := `DELETE FROM pairing_sessions WHERE initiator_id = $1`
	if _, err := r.db.Exec(ctx, query, initiatorID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}
