// Package store defines the record store contract the device coordinator
// speaks, together with its HTTP implementation and an in-memory fake for
// tests. The store is shared, eventually consistent and fallible; callers
// are expected to treat push notifications as hints and these calls as the
// source of truth.
package store

import (
	"context"

	"pulse-link-backend/internal/models"
)

// Availability reflects whether the backing store can currently accept writes.
type Availability int

const (
	StatusUnknown Availability = iota
	StatusAvailable
	StatusUnavailable
)

// Store is the typed record store surface used by the coordinator.
type Store interface {
	// Status probes store reachability. It never returns an error; failures
	// map to StatusUnavailable.
	Status(ctx context.Context) Availability

	// Pairing sessions.
	CreateSession(ctx context.Context, s *models.PairingSession) error
	GetSession(ctx context.Context, id string) (*models.PairingSession, error)
	FindSessionByCode(ctx context.Context, code string) (*models.PairingSession, error)
	// RedeemSession sets the receiver and used flag, touching nothing else.
	// The first successful writer wins; losers get ErrConflict.
	RedeemSession(ctx context.Context, id, receiverID string) error
	DeleteSessionsByInitiator(ctx context.Context, initiatorID string) error

	// Heartbeats.
	CreateHeartbeat(ctx context.Context, hb *models.Heartbeat) error
	LatestHeartbeat(ctx context.Context, toID string) (*models.Heartbeat, error)

	// Locations.
	CreateLocation(ctx context.Context, loc *models.UserLocation) error
	DeleteLocations(ctx context.Context, userID string) error
	LatestLocation(ctx context.Context, userID string) (*models.UserLocation, error)

	// Encounters.
	CreateEncounter(ctx context.Context, e *models.Encounter) error

	// Voice messages. LatestVoiceMessage returns metadata only;
	// GetVoiceMessage includes the clip bytes.
	CreateVoiceMessage(ctx context.Context, m *models.VoiceMessage) error
	LatestVoiceMessage(ctx context.Context, toID string) (*models.VoiceMessage, error)
	GetVoiceMessage(ctx context.Context, id string) (*models.VoiceMessage, error)
	DeleteVoiceMessage(ctx context.Context, id string) error

	// Subscriptions.
	Subscribe(ctx context.Context, sub *models.Subscription) error
	Unsubscribe(ctx context.Context, id string) error
}
