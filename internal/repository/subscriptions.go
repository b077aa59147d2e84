package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-link-backend/internal/models"
)

// SubscriptionRepository handles database operations for push subscriptions
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create registers a subscription
func (r *SubscriptionRepository) Create(ctx context.Context, s *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, device_id, category, record_id, filter_user_id, silent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.DeviceID, s.Category, s.RecordID, s.FilterUserID, s.Silent, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription owned by the device
func (r *SubscriptionRepository) Delete(ctx context.Context, id, deviceID string) error {
	query := `DELETE FROM subscriptions WHERE id = $1 AND device_id = $2`
	result, err := r.db.Exec(ctx, query, id, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscription: %w", ErrNotFound)
	}
	return nil
}

// Match finds subscriptions triggered by a record change: an exact record-id
// match, or a filter-user match against the record's addressee or owner.
func (r *SubscriptionRepository) Match(ctx context.Context, category models.Category, recordID, filterUserID string) ([]*models.Subscription, error) {
	query := `
		SELECT id, device_id, category, record_id, filter_user_id, silent, created_at
		FROM subscriptions
		WHERE category = $1
		  AND ((record_id <> '' AND record_id = $2)
		    OR (filter_user_id <> '' AND filter_user_id = $3))
	`
	rows, err := r.db.Query(ctx, query, category, recordID, filterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to match subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		var s models.Subscription
		err := rows.Scan(&s.ID, &s.DeviceID, &s.Category, &s.RecordID, &s.FilterUserID, &s.Silent, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}
