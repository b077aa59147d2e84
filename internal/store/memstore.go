package store

import (
	"context"
	"sort"
	"sync"

	"pulse-link-backend/internal/models"
)

// MemStore is an in-memory Store used by tests and local development.
// Failures can be scripted per operation with FailNext, and availability
// can be forced with SetStatus.
type MemStore struct {
	mu           sync.Mutex
	availability Availability

	sessions   map[string]*models.PairingSession
	heartbeats []*models.Heartbeat
	locations  []*models.UserLocation
	encounters []*models.Encounter
	voices     map[string]*models.VoiceMessage
	subs       map[string]*models.Subscription

	failures map[string][]error
	calls    map[string]int
}

// NewMemStore creates an empty, available MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		availability: StatusAvailable,
		sessions:     make(map[string]*models.PairingSession),
		voices:       make(map[string]*models.VoiceMessage),
		subs:         make(map[string]*models.Subscription),
		failures:     make(map[string][]error),
		calls:        make(map[string]int),
	}
}

// SetStatus forces the availability returned by Status.
func (m *MemStore) SetStatus(a Availability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availability = a
}

// FailNext queues an error returned by the next call to the named operation.
// Repeated calls queue further failures in order.
func (m *MemStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// CallCount reports how many times the named operation was invoked,
// including calls that failed.
func (m *MemStore) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// begin counts the call and pops a scripted failure if one is queued.
// Caller must hold m.mu.
func (m *MemStore) begin(op string) error {
	m.calls[op]++
	if q := m.failures[op]; len(q) > 0 {
		err := q[0]
		m.failures[op] = q[1:]
		return err
	}
	return nil
}

func (m *MemStore) Status(ctx context.Context) Availability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availability
}

func (m *MemStore) CreateSession(ctx context.Context, s *models.PairingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateSession"); err != nil {
		return err
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) GetSession(ctx context.Context, id string) (*models.PairingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("GetSession"); err != nil {
		return nil, err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) FindSessionByCode(ctx context.Context, code string) (*models.PairingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("FindSessionByCode"); err != nil {
		return nil, err
	}
	var newest *models.PairingSession
	for _, s := range m.sessions {
		if s.Code != code {
			continue
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *MemStore) RedeemSession(ctx context.Context, id, receiverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("RedeemSession"); err != nil {
		return err
	}
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Used || s.ReceiverID != nil {
		return ErrConflict
	}
	rid := receiverID
	s.ReceiverID = &rid
	s.Used = true
	return nil
}

func (m *MemStore) DeleteSessionsByInitiator(ctx context.Context, initiatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("DeleteSessionsByInitiator"); err != nil {
		return err
	}
	for id, s := range m.sessions {
		if s.InitiatorID == initiatorID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemStore) CreateHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateHeartbeat"); err != nil {
		return err
	}
	cp := *hb
	m.heartbeats = append(m.heartbeats, &cp)
	return nil
}

func (m *MemStore) LatestHeartbeat(ctx context.Context, toID string) (*models.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("LatestHeartbeat"); err != nil {
		return nil, err
	}
	var newest *models.Heartbeat
	for _, hb := range m.heartbeats {
		if hb.ToID != toID {
			continue
		}
		if newest == nil || hb.Timestamp.After(newest.Timestamp) {
			newest = hb
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *MemStore) CreateLocation(ctx context.Context, loc *models.UserLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateLocation"); err != nil {
		return err
	}
	cp := *loc
	m.locations = append(m.locations, &cp)
	return nil
}

func (m *MemStore) DeleteLocations(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("DeleteLocations"); err != nil {
		return err
	}
	kept := m.locations[:0]
	for _, loc := range m.locations {
		if loc.UserID != userID {
			kept = append(kept, loc)
		}
	}
	m.locations = kept
	return nil
}

func (m *MemStore) LatestLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("LatestLocation"); err != nil {
		return nil, err
	}
	var newest *models.UserLocation
	for _, loc := range m.locations {
		if loc.UserID != userID {
			continue
		}
		if newest == nil || loc.Timestamp.After(newest.Timestamp) {
			newest = loc
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (m *MemStore) CreateEncounter(ctx context.Context, e *models.Encounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateEncounter"); err != nil {
		return err
	}
	cp := *e
	m.encounters = append(m.encounters, &cp)
	return nil
}

// Encounters returns a copy of the encounter log for assertions.
func (m *MemStore) Encounters() []*models.Encounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Encounter, 0, len(m.encounters))
	for _, e := range m.encounters {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

func (m *MemStore) CreateVoiceMessage(ctx context.Context, msg *models.VoiceMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreateVoiceMessage"); err != nil {
		return err
	}
	cp := *msg
	cp.Clip = append([]byte(nil), msg.Clip...)
	m.voices[msg.ID] = &cp
	return nil
}

func (m *MemStore) LatestVoiceMessage(ctx context.Context, toID string) (*models.VoiceMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("LatestVoiceMessage"); err != nil {
		return nil, err
	}
	var candidates []*models.VoiceMessage
	for _, v := range m.voices {
		if v.ToID == toID {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})
	cp := *candidates[0]
	cp.Clip = nil // metadata only
	return &cp, nil
}

func (m *MemStore) GetVoiceMessage(ctx context.Context, id string) (*models.VoiceMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("GetVoiceMessage"); err != nil {
		return nil, err
	}
	v, ok := m.voices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	cp.Clip = append([]byte(nil), v.Clip...)
	return &cp, nil
}

func (m *MemStore) DeleteVoiceMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("DeleteVoiceMessage"); err != nil {
		return err
	}
	if _, ok := m.voices[id]; !ok {
		return ErrNotFound
	}
	delete(m.voices, id)
	return nil
}

func (m *MemStore) Subscribe(ctx context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("Subscribe"); err != nil {
		return err
	}
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *MemStore) Unsubscribe(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("Unsubscribe"); err != nil {
		return err
	}
	delete(m.subs, id)
	return nil
}

// Subscriptions returns a copy of the registered subscriptions for assertions.
func (m *MemStore) Subscriptions() []*models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

var _ Store = (*MemStore)(nil)
