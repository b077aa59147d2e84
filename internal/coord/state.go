package coord

import "time"

// PairingPhase is the device's position in the pairing state machine.
type PairingPhase int

const (
	PhaseUnpaired PairingPhase = iota
	PhaseAwaitingPartner
	PhasePaired
)

func (p PairingPhase) String() string {
	switch p {
	case PhaseAwaitingPartner:
		return "awaiting_partner"
	case PhasePaired:
		return "paired"
	default:
		return "unpaired"
	}
}

// Coordinates is a lat/lon pair.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// State is the published snapshot the presentation layer observes. It is a
// value; the coordinator hands out copies, never the live struct.
type State struct {
	Phase       PairingPhase
	PartnerID   string
	PairingCode string // active code while awaiting a partner

	LastHeartbeatSentAt     time.Time
	LastHeartbeatReceivedAt time.Time

	PresenceEnabled bool
	IsNearPartner   bool
	PartnerLocation *Coordinates
	LastEncounterAt time.Time

	HasIncomingVoice      bool
	IncomingVoiceDuration float64
	VoiceSentAt           time.Time

	// LastError holds the most recent failure message for the area that
	// failed; it is overwritten, not accumulated, and cleared by the next
	// success.
	LastError string
}
