package coord

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/store"
)

func seedHeartbeat(t *testing.T, env *testEnv, from, to string, at time.Time) {
	t.Helper()
	require.NoError(t, env.ms.CreateHeartbeat(context.Background(), &models.Heartbeat{
		ID:        uuid.NewString(),
		FromID:    from,
		ToID:      to,
		Timestamp: at,
	}))
}

func TestSendHeartbeat(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	sentAt := env.clk.Now()
	require.NoError(t, env.c.SendHeartbeat(ctx))

	hb, err := env.ms.LatestHeartbeat(ctx, "partner")
	require.NoError(t, err)
	assert.Equal(t, "me", hb.FromID)
	assert.Equal(t, "partner", hb.ToID)
	assert.Equal(t, sentAt, hb.Timestamp)

	st := env.c.State()
	assert.Equal(t, sentAt, st.LastHeartbeatSentAt)
	assert.Empty(t, st.LastError)
}

func TestSendHeartbeatNotPaired(t *testing.T) {
	env := newTestEnv(t)

	err := env.c.SendHeartbeat(context.Background())
	assert.ErrorIs(t, err, ErrNotPaired)
	assert.Equal(t, 0, env.ms.CallCount("CreateHeartbeat"))
}

func TestSendHeartbeatSelfPartnerRejected(t *testing.T) {
	env := newTestEnv(t, withPartner("me"))

	err := env.c.SendHeartbeat(context.Background())
	assert.ErrorIs(t, err, ErrSelfHeartbeat)
	assert.Equal(t, 0, env.ms.CallCount("CreateHeartbeat"))
}

func TestSendHeartbeatStoreUnavailable(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	env.ms.SetStatus(store.StatusUnavailable)

	err := env.c.SendHeartbeat(context.Background())
	assert.ErrorIs(t, err, ErrAccountUnavailable)
	assert.Equal(t, 0, env.ms.CallCount("CreateHeartbeat"))
}

func TestSendHeartbeatDebounce(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	require.NoError(t, env.c.SendHeartbeat(ctx))

	env.clk.Advance(500 * time.Millisecond)
	err := env.c.SendHeartbeat(ctx)
	assert.ErrorIs(t, err, ErrSendDebounced)
	assert.Equal(t, 1, env.ms.CallCount("CreateHeartbeat"), "debounced tap must not reach the store")

	env.clk.Advance(2 * time.Second)
	require.NoError(t, env.c.SendHeartbeat(ctx))
	assert.Equal(t, 2, env.ms.CallCount("CreateHeartbeat"))
}

func TestSendHeartbeatDebounceCountsFailedAttempts(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	env.ms.FailNext("CreateHeartbeat", store.ErrNotFound) // non-retryable
	require.ErrorIs(t, env.c.SendHeartbeat(ctx), ErrSendFailed)

	// the failed attempt still armed the debounce window
	env.clk.Advance(time.Second)
	assert.ErrorIs(t, env.c.SendHeartbeat(ctx), ErrSendDebounced)
}

func TestSendHeartbeatSingleFlight(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	env.c.sleep = func(ctx context.Context, d time.Duration) {
		close(entered)
		<-release
	}
	// first attempt fails retryably so the send parks in backoff
	env.ms.FailNext("CreateHeartbeat", store.ErrNetworkUnavailable)

	done := make(chan error, 1)
	go func() { done <- env.c.SendHeartbeat(ctx) }()
	<-entered

	err := env.c.SendHeartbeat(ctx)
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestSendHeartbeatRetriesOnce(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	sentAt := env.clk.Now()
	env.ms.FailNext("CreateHeartbeat", store.ErrNetworkUnavailable)

	require.NoError(t, env.c.SendHeartbeat(ctx))
	assert.Equal(t, 2, env.ms.CallCount("CreateHeartbeat"))

	// the retry is the same logical event: original timestamp, even though
	// the clock moved during backoff
	hb, err := env.ms.LatestHeartbeat(ctx, "partner")
	require.NoError(t, err)
	assert.Equal(t, sentAt, hb.Timestamp)
	assert.Equal(t, sentAt, env.c.State().LastHeartbeatSentAt)
}

func TestSendHeartbeatGivesUpAfterRetry(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))

	env.ms.FailNext("CreateHeartbeat", store.ErrNetworkUnavailable)
	env.ms.FailNext("CreateHeartbeat", store.ErrServiceUnavailable)

	err := env.c.SendHeartbeat(context.Background())
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 2, env.ms.CallCount("CreateHeartbeat"))
	assert.Contains(t, env.c.State().LastError, ErrSendFailed.Error())
}

func TestSendHeartbeatNoRetryOnNonRetryable(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))

	env.ms.FailNext("CreateHeartbeat", store.ErrNotFound)

	err := env.c.SendHeartbeat(context.Background())
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 1, env.ms.CallCount("CreateHeartbeat"))
}

func TestSendHeartbeatTimeoutAbandoned(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))

	env.ms.FailNext("CreateHeartbeat", context.DeadlineExceeded)

	err := env.c.SendHeartbeat(context.Background())
	require.ErrorIs(t, err, ErrSendFailed)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, 1, env.ms.CallCount("CreateHeartbeat"), "a timed-out attempt is not retried")
}

func TestCheckForHeartbeats(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	// nothing pending is not an error
	require.NoError(t, env.c.CheckForHeartbeats(ctx))
	assert.True(t, env.c.State().LastHeartbeatReceivedAt.IsZero())

	at := env.clk.Now()
	seedHeartbeat(t, env, "partner", "me", at)

	require.NoError(t, env.c.CheckForHeartbeats(ctx))
	assert.Equal(t, at, env.c.State().LastHeartbeatReceivedAt)
	assert.Equal(t, []time.Time{at}, env.notifier.heartbeats)
}

func TestCheckForHeartbeatsIgnoresStale(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	at := env.clk.Now()
	seedHeartbeat(t, env, "partner", "me", at)
	require.NoError(t, env.c.CheckForHeartbeats(ctx))

	// re-delivery of the same record must not re-notify
	require.NoError(t, env.c.CheckForHeartbeats(ctx))
	assert.Len(t, env.notifier.heartbeats, 1)
}
