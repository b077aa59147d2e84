package coord

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	f := NewStateFile(path)

	want := &LocalState{
		PartnerID:       "partner",
		LastSentAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		LastReceivedAt:  time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		PresenceEnabled: true,
		LastEncounterAt: time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.Save(want))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// no stray temp file left behind
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStateFileMissingYieldsZeroState(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "absent.yaml"))

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, &LocalState{}, st)
}

func TestStateFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\tnot yaml at all {"), 0o600))

	_, err := NewStateFile(path).Load()
	assert.Error(t, err)
}

func TestStateFileOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	f := NewStateFile(path)

	require.NoError(t, f.Save(&LocalState{PartnerID: "first"}))
	require.NoError(t, f.Save(&LocalState{PartnerID: "second", PresenceEnabled: true}))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", got.PartnerID)
	assert.True(t, got.PresenceEnabled)
}
