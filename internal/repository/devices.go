package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulse-link-backend/internal/models"
)

// DeviceRepository handles database operations for devices
type DeviceRepository struct {
	db *pgxpool.Pool
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create creates a new device
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (id, token, push_token, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, d.ID, d.Token, d.PushToken, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// GetByID retrieves a device by ID
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	query := `
		SELECT id, token, push_token, created_at
		FROM devices
		WHERE id = $1
	`
	var d models.Device
	err := r.db.QueryRow(ctx, query, id).Scan(&d.ID, &d.Token, &d.PushToken, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("device: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &d, nil
}

// UpdatePushToken updates the push token for a device
func (r *DeviceRepository) UpdatePushToken(ctx context.Context, deviceID string, pushToken *string) error {
	query := `UPDATE devices SET push_token = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, pushToken, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}
