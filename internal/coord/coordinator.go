// Package coord implements the device-side cloud coordination layer: pairing
// sessions, heartbeat delivery, presence and proximity detection, and voice
// message handoff. All coordination passes through a shared record store;
// devices never talk to each other directly. Push notifications wake the
// coordinator, but authoritative state is always re-fetched from the store.
package coord

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pulse-link-backend/internal/store"
)

const (
	pairingCodeLength   = 6
	pairingSessionTTL   = 10 * time.Minute
	pairingPollInterval = 5 * time.Second

	heartbeatDebounce    = 2 * time.Second
	heartbeatTimeout     = 10 * time.Second
	heartbeatMaxAttempts = 2
	heartbeatBackoffCap  = 30 * time.Second

	locationPublishInterval = 5 * time.Minute
	locationTTL             = 15 * time.Minute
	nearThresholdMeters     = 100.0
	encounterCooldown       = 30 * time.Minute

	maxRecordingDuration = 5 * time.Second
)

// Identity supplies the stable local identity once store permissions are
// available. Absence of identity is a hard precondition failure for all
// partner-facing operations.
type Identity interface {
	UserID(ctx context.Context) (string, error)
}

// StaticIdentity is an Identity backed by a fixed string.
type StaticIdentity string

func (s StaticIdentity) UserID(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrAccountUnavailable
	}
	return string(s), nil
}

// Notifier receives events worth a local notification or haptic. How they are
// presented is out of the coordinator's hands.
type Notifier interface {
	HeartbeatReceived(at time.Time)
	VoiceMessageReceived(duration float64)
	EncounterDetected(at time.Time, where Coordinates)
	PartnerPaired(partnerID string)
}

type nopNotifier struct{}

func (nopNotifier) HeartbeatReceived(time.Time)              {}
func (nopNotifier) VoiceMessageReceived(float64)             {}
func (nopNotifier) EncounterDetected(time.Time, Coordinates) {}
func (nopNotifier) PartnerPaired(string)                     {}

// AuthorizationStatus is the device's location permission state.
type AuthorizationStatus int

const (
	AuthNotDetermined AuthorizationStatus = iota
	AuthDenied
	AuthWhenInUse
	AuthAlways
)

// LocationAuthorizer reports and requests location permission.
type LocationAuthorizer interface {
	Status() AuthorizationStatus
	Request()
}

// GrantedAuthorizer always reports AuthAlways; used by headless deployments.
type GrantedAuthorizer struct{}

func (GrantedAuthorizer) Status() AuthorizationStatus { return AuthAlways }
func (GrantedAuthorizer) Request()                    {}

// Options configures a Coordinator. Store is required; everything else has a
// sensible default so tests can substitute fakes selectively.
type Options struct {
	Store      store.Store
	Identity   Identity
	Clock      Clock
	Persister  Persister
	Notifier   Notifier
	Authorizer LocationAuthorizer
	Rand       io.Reader
	OnChange   func(State)
	Logger     zerolog.Logger
}

type localFix struct {
	coords Coordinates
	at     time.Time
}

// Coordinator owns all published and persisted device state. Mutations are
// serialized under one mutex; observers only ever see value snapshots.
type Coordinator struct {
	store      store.Store
	identity   Identity
	clock      Clock
	persist    Persister
	notifier   Notifier
	authorizer LocationAuthorizer
	rand       io.Reader
	onChange   func(State)
	log        zerolog.Logger

	// sleep is the backoff wait between heartbeat attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration)

	mu    sync.Mutex
	state State

	// pairing
	awaitingID     string
	subscriptionID string
	standingSubs   []string
	pollCancel     context.CancelFunc

	// heartbeat
	sending     bool
	lastAttempt time.Time

	// presence
	lastPublishAt time.Time
	localLoc      *localFix
	partnerLoc    *Coordinates
	partnerLocExp time.Time
	authRequested bool

	// voice
	playing    bool
	incomingID string
}

// New builds a Coordinator and restores its persisted local state.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("coord: store is required")
	}
	c := &Coordinator{
		store:      opts.Store,
		identity:   opts.Identity,
		clock:      opts.Clock,
		persist:    opts.Persister,
		notifier:   opts.Notifier,
		authorizer: opts.Authorizer,
		rand:       opts.Rand,
		onChange:   opts.OnChange,
		log:        opts.Logger,
	}
	if c.identity == nil {
		c.identity = StaticIdentity("")
	}
	if c.clock == nil {
		c.clock = SystemClock()
	}
	if c.persist == nil {
		c.persist = &memPersister{}
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.authorizer == nil {
		c.authorizer = GrantedAuthorizer{}
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	c.sleep = func(ctx context.Context, d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}

	saved, err := c.persist.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load local state: %w", err)
	}
	c.state = State{
		PartnerID:               saved.PartnerID,
		LastHeartbeatSentAt:     saved.LastSentAt,
		LastHeartbeatReceivedAt: saved.LastReceivedAt,
		PresenceEnabled:         saved.PresenceEnabled,
		LastEncounterAt:         saved.LastEncounterAt,
	}
	if saved.PartnerID != "" {
		c.state.Phase = PhasePaired
	}
	return c, nil
}

// State returns a snapshot of the published state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels any background polling.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.mu.Unlock()
}

// emit delivers a state snapshot to the registered observer. Called without
// the mutex held so observers may call back into the coordinator.
func (c *Coordinator) emit(snap State) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

// fail records err as the current error message and returns it unchanged.
func (c *Coordinator) fail(err error) error {
	c.mu.Lock()
	c.state.LastError = err.Error()
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)
	return err
}

// persistLocked writes the durable scalars at a defined save point.
// Caller must hold c.mu.
func (c *Coordinator) persistLocked() {
	st := &LocalState{
		PartnerID:       c.state.PartnerID,
		LastSentAt:      c.state.LastHeartbeatSentAt,
		LastReceivedAt:  c.state.LastHeartbeatReceivedAt,
		PresenceEnabled: c.state.PresenceEnabled,
		LastEncounterAt: c.state.LastEncounterAt,
	}
	if err := c.persist.Save(st); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist local state")
	}
}
