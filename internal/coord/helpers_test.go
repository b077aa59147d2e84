package coord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pulse-link-backend/internal/store"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// recNotifier records every notifier callback.
type recNotifier struct {
	mu         sync.Mutex
	heartbeats []time.Time
	voices     []float64
	encounters []Coordinates
	paired     []string
}

func (n *recNotifier) HeartbeatReceived(at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.heartbeats = append(n.heartbeats, at)
}

func (n *recNotifier) VoiceMessageReceived(duration float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.voices = append(n.voices, duration)
}

func (n *recNotifier) EncounterDetected(at time.Time, where Coordinates) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.encounters = append(n.encounters, where)
}

func (n *recNotifier) PartnerPaired(partnerID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paired = append(n.paired, partnerID)
}

func (n *recNotifier) encounterCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.encounters)
}

func (n *recNotifier) voiceCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.voices)
}

// fixedAuthorizer reports a fixed status and records permission requests.
type fixedAuthorizer struct {
	mu        sync.Mutex
	status    AuthorizationStatus
	requested int
}

func (a *fixedAuthorizer) Status() AuthorizationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *fixedAuthorizer) Request() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requested++
}

type testEnv struct {
	c        *Coordinator
	ms       *store.MemStore
	clk      *fakeClock
	notifier *recNotifier
	auth     *fixedAuthorizer
}

type envOption func(*Options)

func withPartner(partnerID string) envOption {
	return func(o *Options) {
		o.Persister = &memPersister{st: LocalState{PartnerID: partnerID}}
	}
}

func withAuthStatus(a *fixedAuthorizer) envOption {
	return func(o *Options) {
		o.Authorizer = a
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		ms:       store.NewMemStore(),
		clk:      newFakeClock(),
		notifier: &recNotifier{},
		auth:     &fixedAuthorizer{status: AuthAlways},
	}

	o := Options{
		Store:      env.ms,
		Identity:   StaticIdentity("me"),
		Clock:      env.clk,
		Notifier:   env.notifier,
		Authorizer: env.auth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if a, ok := o.Authorizer.(*fixedAuthorizer); ok {
		env.auth = a
	}

	c, err := New(o)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	// backoff waits advance the fake clock instead of blocking
	c.sleep = func(ctx context.Context, d time.Duration) {
		env.clk.Advance(d)
	}

	env.c = c
	return env
}
