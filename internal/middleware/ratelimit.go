package middleware

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// RateLimiter caps requests per device over a fixed window. Counters live in
// a TTL cache and vanish when the window closes, so there is no cleanup loop
// of our own to run.
type RateLimiter struct {
	counters *ttlcache.Cache[string, *atomic.Int64]
	limit    int64
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	counters := ttlcache.New(
		ttlcache.WithTTL[string, *atomic.Int64](window),
		ttlcache.WithDisableTouchOnHit[string, *atomic.Int64](),
	)
	go counters.Start()
	return &RateLimiter{counters: counters, limit: int64(limit)}
}

// Allow records one request for a key and reports whether it is within limit.
func (l *RateLimiter) Allow(key string) bool {
	item := l.counters.Get(key)
	if item == nil {
		counter := &atomic.Int64{}
		counter.Store(1)
		l.counters.Set(key, counter, ttlcache.DefaultTTL)
		return l.limit >= 1
	}
	return item.Value().Add(1) <= l.limit
}

// Stop halts the cache's expiry loop.
func (l *RateLimiter) Stop() {
	l.counters.Stop()
}

// Middleware rejects over-limit requests with 429. Keyed by device when
// authenticated, by remote address otherwise.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetDeviceID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		if !l.Allow(key) {
			respondError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
