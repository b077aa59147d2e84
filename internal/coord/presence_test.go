package coord

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse-link-backend/internal/models"
)

// Offsets from the base point chosen with a clear margin around the 100 m
// threshold: ~89 m of latitude reads near, ~106 m reads apart.
const (
	baseLat = 40.0
	baseLon = -74.0

	nearLatOffset = 0.00080
	farLatOffset  = 0.00095
)

func seedPartnerLocation(t *testing.T, env *testEnv, lat, lon float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.ms.DeleteLocations(ctx, "partner"))
	require.NoError(t, env.ms.CreateLocation(ctx, &models.UserLocation{
		ID:        uuid.NewString(),
		UserID:    "partner",
		Latitude:  lat,
		Longitude: lon,
		Timestamp: env.clk.Now(),
		ExpiresAt: env.clk.Now().Add(15 * time.Minute),
	}))
}

func TestHaversineMeters(t *testing.T) {
	assert.Zero(t, haversineMeters(baseLat, baseLon, baseLat, baseLon))

	d := haversineMeters(baseLat, baseLon, baseLat+nearLatOffset, baseLon)
	assert.InDelta(t, 89.0, d, 1.0)

	d = haversineMeters(baseLat, baseLon, baseLat+farLatOffset, baseLon)
	assert.InDelta(t, 105.6, d, 1.0)
}

func TestSetPresenceEnabledGranted(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))

	require.NoError(t, env.c.SetPresenceEnabled(true))
	assert.True(t, env.c.State().PresenceEnabled)

	require.NoError(t, env.c.SetPresenceEnabled(false))
	st := env.c.State()
	assert.False(t, st.PresenceEnabled)
	assert.False(t, st.IsNearPartner)
}

func TestSetPresenceEnabledDeferredUntilGrant(t *testing.T) {
	auth := &fixedAuthorizer{status: AuthNotDetermined}
	env := newTestEnv(t, withPartner("partner"), withAuthStatus(auth))

	require.NoError(t, env.c.SetPresenceEnabled(true))
	assert.False(t, env.c.State().PresenceEnabled, "tracking waits for the grant")
	assert.Equal(t, 1, auth.requested)

	env.c.AuthorizationChanged(AuthWhenInUse)
	assert.True(t, env.c.State().PresenceEnabled)
}

func TestSetPresenceEnabledDenied(t *testing.T) {
	auth := &fixedAuthorizer{status: AuthDenied}
	env := newTestEnv(t, withPartner("partner"), withAuthStatus(auth))

	err := env.c.SetPresenceEnabled(true)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, env.c.State().PresenceEnabled)
}

func TestAuthorizationChangedWithoutPendingRequest(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))

	env.c.AuthorizationChanged(AuthAlways)
	assert.False(t, env.c.State().PresenceEnabled, "an unsolicited grant does not enable tracking")
}

func TestReportLocationDisabledIsNoop(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))

	require.NoError(t, env.c.ReportLocation(context.Background(), baseLat, baseLon))
	assert.Equal(t, 0, env.ms.CallCount("CreateLocation"))
}

func TestReportLocationPublishThrottle(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()
	require.NoError(t, env.c.SetPresenceEnabled(true))

	require.NoError(t, env.c.ReportLocation(ctx, baseLat, baseLon))
	assert.Equal(t, 1, env.ms.CallCount("CreateLocation"))

	// sensor chatter inside the publish interval stays local
	env.clk.Advance(time.Minute)
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+0.0001, baseLon))
	assert.Equal(t, 1, env.ms.CallCount("CreateLocation"))

	env.clk.Advance(5 * time.Minute)
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+0.0002, baseLon))
	assert.Equal(t, 2, env.ms.CallCount("CreateLocation"))
}

func TestReportLocationReplacesAndExpires(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()
	require.NoError(t, env.c.SetPresenceEnabled(true))

	require.NoError(t, env.c.ReportLocation(ctx, baseLat, baseLon))

	loc, err := env.ms.LatestLocation(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, env.clk.Now().Add(15*time.Minute), loc.ExpiresAt)
	// publish is delete-then-insert, never accumulate
	assert.Equal(t, 1, env.ms.CallCount("DeleteLocations"))
}

func TestFetchPartnerLocation(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	seedPartnerLocation(t, env, baseLat, baseLon)
	require.NoError(t, env.c.FetchPartnerLocation(ctx))

	st := env.c.State()
	require.NotNil(t, st.PartnerLocation)
	assert.Equal(t, baseLat, st.PartnerLocation.Latitude)
	assert.Equal(t, baseLon, st.PartnerLocation.Longitude)
}

func TestFetchPartnerLocationAbsentClears(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	seedPartnerLocation(t, env, baseLat, baseLon)
	require.NoError(t, env.c.FetchPartnerLocation(ctx))
	require.NotNil(t, env.c.State().PartnerLocation)

	require.NoError(t, env.ms.DeleteLocations(ctx, "partner"))
	require.NoError(t, env.c.FetchPartnerLocation(ctx))

	st := env.c.State()
	assert.Nil(t, st.PartnerLocation)
	assert.False(t, st.IsNearPartner)
}

func TestFetchPartnerLocationExpiredClears(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()

	seedPartnerLocation(t, env, baseLat, baseLon)
	require.NoError(t, env.c.FetchPartnerLocation(ctx))

	env.clk.Advance(16 * time.Minute)
	require.NoError(t, env.c.FetchPartnerLocation(ctx))

	st := env.c.State()
	assert.Nil(t, st.PartnerLocation)
	assert.False(t, st.IsNearPartner)
}

func TestProximityRisingEdgeEncounter(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()
	require.NoError(t, env.c.SetPresenceEnabled(true))

	seedPartnerLocation(t, env, baseLat, baseLon)
	require.NoError(t, env.c.FetchPartnerLocation(ctx))

	// approach: far first, then inside the threshold
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+farLatOffset, baseLon))
	assert.False(t, env.c.State().IsNearPartner)
	assert.Equal(t, 0, env.notifier.encounterCount())

	require.NoError(t, env.c.ReportLocation(ctx, baseLat+nearLatOffset, baseLon))
	assert.True(t, env.c.State().IsNearPartner)
	assert.Equal(t, 1, env.notifier.encounterCount())

	encounters := env.ms.Encounters()
	require.Len(t, encounters, 1)
	assert.Equal(t, "me", encounters[0].User1ID)
	assert.Equal(t, "partner", encounters[0].User2ID)

	// staying near is not a new encounter
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+nearLatOffset/2, baseLon))
	assert.Equal(t, 1, env.notifier.encounterCount())
}

func TestEncounterCooldown(t *testing.T) {
	env := newTestEnv(t, withPartner("partner"))
	ctx := context.Background()
	require.NoError(t, env.c.SetPresenceEnabled(true))

	seedPartnerLocation(t, env, baseLat, baseLon)
	require.NoError(t, env.c.FetchPartnerLocation(ctx))
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+nearLatOffset, baseLon))
	require.Equal(t, 1, env.notifier.encounterCount())

	// leave and come straight back: rising edge, but inside the cooldown
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+farLatOffset, baseLon))
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+nearLatOffset, baseLon))
	assert.True(t, env.c.State().IsNearPartner)
	assert.Equal(t, 1, env.notifier.encounterCount())

	// past the cooldown the next rising edge counts again
	env.clk.Advance(31 * time.Minute)
	seedPartnerLocation(t, env, baseLat, baseLon)
	require.NoError(t, env.c.FetchPartnerLocation(ctx))
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+farLatOffset, baseLon))
	require.NoError(t, env.c.ReportLocation(ctx, baseLat+nearLatOffset, baseLon))
	assert.Equal(t, 2, env.notifier.encounterCount())
	assert.Len(t, env.ms.Encounters(), 2)
}
