package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Shared repository error classes mapped by the handlers.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id UUID PRIMARY KEY,
			token TEXT NOT NULL,
			push_token TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pairing_sessions (
			id UUID PRIMARY KEY,
			code TEXT NOT NULL,
			initiator_id UUID NOT NULL,
			receiver_id UUID,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pairing_sessions_code ON pairing_sessions (code)`,
		`CREATE INDEX IF NOT EXISTS idx_pairing_sessions_initiator ON pairing_sessions (initiator_id)`,
		`CREATE TABLE IF NOT EXISTS heartbeats (
			id UUID PRIMARY KEY,
			from_id UUID NOT NULL,
			to_id UUID NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_heartbeats_to ON heartbeats (to_id, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS user_locations (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_locations_user ON user_locations (user_id, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS encounters (
			id UUID PRIMARY KEY,
			user1_id UUID NOT NULL,
			user2_id UUID NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS voice_messages (
			id UUID PRIMARY KEY,
			from_id UUID NOT NULL,
			to_id UUID NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			duration DOUBLE PRECISION NOT NULL,
			s3_key TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_messages_to ON voice_messages (to_id, timestamp DESC)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			device_id UUID NOT NULL,
			category TEXT NOT NULL,
			record_id TEXT,
			filter_user_id TEXT,
			silent BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_category ON subscriptions (category)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
