package models

import "time"

// Device represents a registered device in the system
type Device struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PairingSession is a time-boxed, single-use handshake record linking two devices.
// A session is created by the initiator and redeemed exactly once by the receiver.
type PairingSession struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	InitiatorID string    `json:"initiator_id"`
	ReceiverID  *string   `json:"receiver_id,omitempty"`
	Used        bool      `json:"used"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *PairingSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Heartbeat is a one-way "thinking of you" signal between paired partners.
// Append-only; retention is handled store-side.
type Heartbeat struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Timestamp time.Time `json:"timestamp"`
}

// UserLocation is the single active coarse location record for a user.
// Replaced wholesale on publish and ignored once expired.
type UserLocation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the location is past its expiry at the given instant.
func (l *UserLocation) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Encounter is an append-only log entry marking a proximity rising edge.
type Encounter struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// VoiceMessage carries a short recorded clip between partners.
// Clip holds the raw audio bytes; it is empty on metadata-only fetches.
type VoiceMessage struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"`
	Clip      []byte    `json:"clip,omitempty"`
}

// Category tags a push payload with the record family that changed.
type Category string

const (
	CategoryHeartbeat       Category = "Heartbeat"
	CategoryPairing         Category = "Pairing"
	CategoryPartnerLocation Category = "PartnerLocation"
	CategoryVoiceMessage    Category = "VoiceMessage"
)

// Subscription asks the store to push a payload when a matching record is
// created or updated. RecordID matches a specific record (pairing sessions);
// FilterUserID matches the record's addressee (heartbeats, voice messages) or
// its owner (locations), depending on Category.
type Subscription struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	Category     Category  `json:"category"`
	RecordID     string    `json:"record_id,omitempty"`
	FilterUserID string    `json:"filter_user_id,omitempty"`
	Silent       bool      `json:"silent"`
	CreatedAt    time.Time `json:"created_at"`
}

// PushPayload is the opaque payload delivered to a subscribed device.
// It is a hint, not a source of truth: receivers re-fetch authoritative state.
type PushPayload struct {
	Category Category `json:"category"`
	RecordID string   `json:"record_id,omitempty"`
}
