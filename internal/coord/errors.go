package coord

import "errors"

// Coordinator error taxonomy. Validation errors are raised before any network
// call; the rest wrap the underlying store failure with %w so callers can
// still classify with errors.Is.
var (
	ErrAccountUnavailable = errors.New("store account unavailable")
	ErrNotPaired          = errors.New("not paired with a partner")

	ErrInvalidCodeFormat = errors.New("pairing code must be exactly 6 digits")
	ErrCodeNotFound      = errors.New("pairing code not found")
	ErrPairingExpired    = errors.New("pairing code expired")
	ErrCodeAlreadyUsed   = errors.New("pairing code already used")
	ErrSelfPairing       = errors.New("cannot pair with yourself")
	ErrPairingFailed     = errors.New("pairing failed")

	ErrSendInFlight  = errors.New("heartbeat send already in flight")
	ErrSendDebounced = errors.New("heartbeat sent too recently")
	ErrSelfHeartbeat = errors.New("refusing self-addressed heartbeat")
	ErrSendFailed    = errors.New("send failed")

	ErrFetchFailed = errors.New("fetch failed")

	ErrPermissionDenied  = errors.New("permission denied")
	ErrRecordingFailed   = errors.New("recording failed")
	ErrPlaybackFailed    = errors.New("playback failed")
	ErrPlaybackInFlight  = errors.New("playback already in progress")
	ErrNoIncomingMessage = errors.New("no incoming voice message")
)
