package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow("device-1"))
	assert.True(t, l.Allow("device-1"))
	assert.True(t, l.Allow("device-1"))
	assert.False(t, l.Allow("device-1"))

	// other keys have their own budget
	assert.True(t, l.Allow("device-2"))
}

func TestRateLimiterWindowReset(t *testing.T) {
	l := NewRateLimiter(1, 50*time.Millisecond)
	defer l.Stop()

	assert.True(t, l.Allow("device-1"))
	assert.False(t, l.Allow("device-1"))

	time.Sleep(120 * time.Millisecond)
	assert.True(t, l.Allow("device-1"), "budget returns once the window expires")
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	defer l.Stop()

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
