package store

import "errors"

// Sentinel error classes surfaced by store implementations. Callers match
// with errors.Is; implementations wrap them with transport detail.
var (
	ErrNotFound           = errors.New("record not found")
	ErrConflict           = errors.New("record conflict")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// Retryable reports whether err is a transient store failure worth a bounded
// retry: network loss, service outage, rate limiting, or write contention.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConflict)
}
