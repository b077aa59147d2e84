package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/store"
)

// SendHeartbeat writes one heartbeat record to the store. Guards, in order:
// single-flight, 2-second attempt debounce, paired identity, self-send
// rejection, store availability. A passing call makes at most two delivery
// attempts; the timestamp is captured once so a retried attempt stays the
// same logical event.
func (c *Coordinator) SendHeartbeat(ctx context.Context) error {
	me, idErr := c.identity.UserID(ctx)

	c.mu.Lock()
	now := c.clock.Now()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < heartbeatDebounce {
		c.mu.Unlock()
		return ErrSendDebounced
	}
	partner := c.state.PartnerID
	c.mu.Unlock()

	if idErr != nil || partner == "" {
		return ErrNotPaired
	}
	// Structurally impossible once paired, checked anyway.
	if me == partner {
		return ErrSelfHeartbeat
	}
	if c.store.Status(ctx) != store.StatusAvailable {
		return c.fail(ErrAccountUnavailable)
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.sending = true
	c.lastAttempt = now
	c.mu.Unlock()

	hb := &models.Heartbeat{
		ID:        uuid.NewString(),
		FromID:    me,
		ToID:      partner,
		Timestamp: now,
	}
	err := c.deliverHeartbeat(ctx, hb)

	c.mu.Lock()
	c.sending = false
	if err == nil {
		c.state.LastHeartbeatSentAt = hb.Timestamp
		c.state.LastError = ""
		c.persistLocked()
	} else {
		c.state.LastError = err.Error()
	}
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	if err == nil {
		c.log.Info().Str("to", partner).Time("timestamp", hb.Timestamp).Msg("heartbeat sent")
	}
	return err
}

// deliverHeartbeat races each attempt against a timeout. A timed-out attempt
// is abandoned outright; a retryable store failure earns one more attempt
// after exponential backoff.
func (c *Coordinator) deliverHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	var lastErr error
	for attempt := 1; attempt <= heartbeatMaxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
		err := c.store.CreateHeartbeat(actx, hb)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %s", ErrSendFailed, heartbeatTimeout)
		}
		if !store.Retryable(err) {
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		if attempt < heartbeatMaxAttempts {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if backoff > heartbeatBackoffCap {
				backoff = heartbeatBackoffCap
			}
			c.log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying heartbeat send")
			c.sleep(ctx, backoff)
		}
	}
	return fmt.Errorf("%w: %v", ErrSendFailed, lastErr)
}

// MarkHeartbeatReceived records a partner heartbeat. This is the sole trusted
// write path for the received timestamp.
func (c *Coordinator) MarkHeartbeatReceived(at time.Time) {
	c.mu.Lock()
	c.state.LastHeartbeatReceivedAt = at
	c.persistLocked()
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)
	c.notifier.HeartbeatReceived(at)
}

// CheckForHeartbeats pulls the newest heartbeat addressed to this device and
// marks it received if it postdates what we already know. The push payload is
// never trusted for the timestamp itself.
func (c *Coordinator) CheckForHeartbeats(ctx context.Context) error {
	me, err := c.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	hb, err := c.store.LatestHeartbeat(ctx, me)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	c.mu.Lock()
	known := c.state.LastHeartbeatReceivedAt
	c.mu.Unlock()
	if !hb.Timestamp.After(known) {
		return nil
	}
	c.MarkHeartbeatReceived(hb.Timestamp)
	return nil
}
