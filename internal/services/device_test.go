package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	s := NewDeviceService(nil, "test-secret")

	token, err := s.GenerateJWT("device-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	deviceID, err := s.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "device-1", deviceID)
}

func TestJWTWrongSecretRejected(t *testing.T) {
	token, err := NewDeviceService(nil, "secret-a").GenerateJWT("device-1")
	require.NoError(t, err)

	_, err = NewDeviceService(nil, "secret-b").ValidateJWT(token)
	assert.Error(t, err)
}

func TestJWTGarbageRejected(t *testing.T) {
	s := NewDeviceService(nil, "test-secret")

	_, err := s.ValidateJWT("not-a-token")
	assert.Error(t, err)

	_, err = s.ValidateJWT("")
	assert.Error(t, err)
}
