package coord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/store"
)

func TestGeneratePairingCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.c.GeneratePairingCode(ctx)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code must be all digits, got %q", code)
	}

	st := env.c.State()
	assert.Equal(t, PhaseAwaitingPartner, st.Phase)
	assert.Equal(t, code, st.PairingCode)

	sess, err := env.ms.FindSessionByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "me", sess.InitiatorID)
	assert.Equal(t, env.clk.Now().Add(10*time.Minute), sess.ExpiresAt)

	subs := env.ms.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, models.CategoryPairing, subs[0].Category)
	assert.Equal(t, sess.ID, subs[0].RecordID)
}

func TestGeneratePairingCodeSupersedesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.c.GeneratePairingCode(ctx)
	require.NoError(t, err)
	_, err = env.c.GeneratePairingCode(ctx)
	require.NoError(t, err)

	_, err = env.ms.FindSessionByCode(ctx, first)
	assert.ErrorIs(t, err, store.ErrNotFound, "first session must be cleared")
}

func TestGeneratePairingCodeUnavailableStore(t *testing.T) {
	env := newTestEnv(t)
	env.ms.SetStatus(store.StatusUnavailable)

	_, err := env.c.GeneratePairingCode(context.Background())
	assert.ErrorIs(t, err, ErrAccountUnavailable)
	assert.Equal(t, 0, env.ms.CallCount("CreateSession"))
}

func TestEnterPairingCodeFormatValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, code := range []string{"", "12345", "1234567", "12a456", "12 456"} {
		err := env.c.EnterPairingCode(ctx, code)
		assert.ErrorIs(t, err, ErrInvalidCodeFormat, "code %q", code)
	}
	// malformed input never reaches the store
	assert.Equal(t, 0, env.ms.CallCount("FindSessionByCode"))
}

func seedSession(t *testing.T, env *testEnv, sess *models.PairingSession) {
	t.Helper()
	require.NoError(t, env.ms.CreateSession(context.Background(), sess))
}

func TestEnterPairingCodeSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedSession(t, env, &models.PairingSession{
		ID:          "sess-1",
		Code:        "123456",
		InitiatorID: "partner",
		ExpiresAt:   env.clk.Now().Add(10 * time.Minute),
		CreatedAt:   env.clk.Now(),
	})

	require.NoError(t, env.c.EnterPairingCode(ctx, "123456"))

	st := env.c.State()
	assert.Equal(t, PhasePaired, st.Phase)
	assert.Equal(t, "partner", st.PartnerID)
	assert.Empty(t, st.PairingCode)
	assert.Equal(t, []string{"partner"}, env.notifier.paired)

	sess, err := env.ms.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, sess.Used)
	require.NotNil(t, sess.ReceiverID)
	assert.Equal(t, "me", *sess.ReceiverID)
}

func TestEnterPairingCodeNotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.c.EnterPairingCode(context.Background(), "999999")
	assert.ErrorIs(t, err, ErrCodeNotFound)
	assert.Contains(t, env.c.State().LastError, ErrCodeNotFound.Error())
}

func TestEnterPairingCodeExpired(t *testing.T) {
	env := newTestEnv(t)
	seedSession(t, env, &models.PairingSession{
		ID:          "sess-1",
		Code:        "123456",
		InitiatorID: "partner",
		ExpiresAt:   env.clk.Now().Add(-time.Minute),
		CreatedAt:   env.clk.Now().Add(-11 * time.Minute),
	})

	err := env.c.EnterPairingCode(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrPairingExpired)
	assert.Equal(t, PhaseUnpaired, env.c.State().Phase)
}

func TestEnterPairingCodeAlreadyUsed(t *testing.T) {
	env := newTestEnv(t)
	receiver := "other"
	seedSession(t, env, &models.PairingSession{
		ID:          "sess-1",
		Code:        "123456",
		InitiatorID: "partner",
		ReceiverID:  &receiver,
		Used:        true,
		ExpiresAt:   env.clk.Now().Add(10 * time.Minute),
	})

	err := env.c.EnterPairingCode(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestEnterPairingCodeSelfPairing(t *testing.T) {
	env := newTestEnv(t)
	seedSession(t, env, &models.PairingSession{
		ID:          "sess-1",
		Code:        "123456",
		InitiatorID: "me",
		ExpiresAt:   env.clk.Now().Add(10 * time.Minute),
	})

	err := env.c.EnterPairingCode(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrSelfPairing)
	assert.Equal(t, 0, env.ms.CallCount("RedeemSession"))
}

func TestEnterPairingCodeLostRace(t *testing.T) {
	env := newTestEnv(t)
	seedSession(t, env, &models.PairingSession{
		ID:          "sess-1",
		Code:        "123456",
		InitiatorID: "partner",
		ExpiresAt:   env.clk.Now().Add(10 * time.Minute),
	})

	// another receiver redeems between our read and our write
	env.ms.FailNext("RedeemSession", store.ErrConflict)

	err := env.c.EnterPairingCode(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
	assert.Equal(t, PhaseUnpaired, env.c.State().Phase)
}

func TestConcurrentRedemptionExactlyOneWins(t *testing.T) {
	ms := store.NewMemStore()
	clk := newFakeClock()
	ctx := context.Background()

	require.NoError(t, ms.CreateSession(ctx, &models.PairingSession{
		ID:          "sess-1",
		Code:        "123456",
		InitiatorID: "initiator",
		ExpiresAt:   clk.Now().Add(10 * time.Minute),
	}))

	newReceiver := func(id string) *Coordinator {
		c, err := New(Options{Store: ms, Identity: StaticIdentity(id), Clock: clk})
		require.NoError(t, err)
		return c
	}
	a := newReceiver("receiver-a")
	b := newReceiver("receiver-b")
	defer a.Close()
	defer b.Close()

	errA := a.EnterPairingCode(ctx, "123456")
	errB := b.EnterPairingCode(ctx, "123456")

	require.NoError(t, errA)
	assert.ErrorIs(t, errB, ErrCodeAlreadyUsed)
	assert.Equal(t, PhasePaired, a.State().Phase)
	assert.Equal(t, PhaseUnpaired, b.State().Phase)
}

func TestCheckPairingStatusAdoptsReceiver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.c.GeneratePairingCode(ctx)
	require.NoError(t, err)
	sessID := env.c.awaitingID

	// partner redeems out of band; push or poll delivers the hint
	require.NoError(t, env.ms.RedeemSession(ctx, sessID, "partner"))
	require.NoError(t, env.c.CheckPairingStatus(ctx, sessID))

	st := env.c.State()
	assert.Equal(t, PhasePaired, st.Phase)
	assert.Equal(t, "partner", st.PartnerID)
	assert.Equal(t, []string{"partner"}, env.notifier.paired)

	// the one-shot pairing subscription is swapped for standing ones
	categories := map[models.Category]int{}
	for _, sub := range env.ms.Subscriptions() {
		categories[sub.Category]++
	}
	assert.Zero(t, categories[models.CategoryPairing], "pairing subscription must be dropped")
	assert.Equal(t, 1, categories[models.CategoryHeartbeat])
	assert.Equal(t, 1, categories[models.CategoryVoiceMessage])
	assert.Equal(t, 1, categories[models.CategoryPartnerLocation])
}

func TestUnpairDropsStandingSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedSession(t, env, &models.PairingSession{
		ID:          "sess-1",
		Code:        "123456",
		InitiatorID: "partner",
		ExpiresAt:   env.clk.Now().Add(10 * time.Minute),
	})
	require.NoError(t, env.c.EnterPairingCode(ctx, "123456"))
	require.NotEmpty(t, env.ms.Subscriptions())

	env.c.Unpair(ctx)
	assert.Empty(t, env.ms.Subscriptions())
}

func TestCheckPairingStatusIgnoresPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.c.GeneratePairingCode(ctx)
	require.NoError(t, err)
	sessID := env.c.awaitingID

	require.NoError(t, env.c.CheckPairingStatus(ctx, sessID))
	assert.Equal(t, PhaseAwaitingPartner, env.c.State().Phase)

	// a session deleted out from under us is not an error
	require.NoError(t, env.c.CheckPairingStatus(ctx, "gone"))
}

func TestAwaitingExpiry(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.c.GeneratePairingCode(context.Background())
	require.NoError(t, err)
	sessID := env.c.awaitingID

	env.clk.Advance(11 * time.Minute)
	env.c.expireAwaiting(sessID)

	st := env.c.State()
	assert.Equal(t, PhaseUnpaired, st.Phase)
	assert.Empty(t, st.PairingCode)
	assert.Equal(t, ErrPairingExpired.Error(), st.LastError)
}

func TestExpireAwaitingIgnoresStaleSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.c.GeneratePairingCode(context.Background())
	require.NoError(t, err)

	env.c.expireAwaiting("some-older-session")
	assert.Equal(t, PhaseAwaitingPartner, env.c.State().Phase)
}

func TestUnpairResetsEverything(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	require.NoError(t, env.c.SendHeartbeat(ctx))
	require.NoError(t, env.c.SetPresenceEnabled(true))

	env.c.Unpair(ctx)

	st := env.c.State()
	assert.Equal(t, State{}, st)

	// paired-only operations now refuse
	err := env.c.SendHeartbeat(ctx)
	assert.ErrorIs(t, err, ErrNotPaired)
	assert.ErrorIs(t, env.c.FetchPartnerLocation(ctx), ErrNotPaired)
}

func TestPairedStateSurvivesRestart(t *testing.T) {
	persist := &memPersister{}
	ms := store.NewMemStore()
	clk := newFakeClock()

	c1, err := New(Options{Store: ms, Identity: StaticIdentity("me"), Clock: clk, Persister: persist})
	require.NoError(t, err)
	c1.adoptPartner("partner")
	c1.Close()

	c2, err := New(Options{Store: ms, Identity: StaticIdentity("me"), Clock: clk, Persister: persist})
	require.NoError(t, err)
	defer c2.Close()

	st := c2.State()
	assert.Equal(t, PhasePaired, st.Phase)
	assert.Equal(t, "partner", st.PartnerID)
}
