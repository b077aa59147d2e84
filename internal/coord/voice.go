package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/store"
)

// Player plays back a clip. Implementations are presentation glue; the bytes
// are an opaque encoded clip.
type Player interface {
	Play(ctx context.Context, clip []byte) error
}

// RecordingSession bounds one clip capture at the maximum duration. The
// actual audio capture happens in an external recorder; this session only
// tracks the time envelope.
type RecordingSession struct {
	clock Clock

	mu        sync.Mutex
	startedAt time.Time
	finished  bool
	duration  time.Duration
}

// StartRecording opens a new bounded recording session.
func (c *Coordinator) StartRecording() *RecordingSession {
	return &RecordingSession{clock: c.clock, startedAt: c.clock.Now()}
}

// Progress reports elapsed/max as a fraction in [0,1].
func (r *RecordingSession) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := r.elapsedLocked()
	f := elapsed.Seconds() / maxRecordingDuration.Seconds()
	if f > 1 {
		f = 1
	}
	return f
}

// Done reports whether the hard ceiling has been reached.
func (r *RecordingSession) Done() bool {
	return r.Progress() >= 1
}

// Finish finalizes the session and returns the clip duration in seconds,
// capped at the maximum. An early stop and hitting the ceiling finalize
// identically.
func (r *RecordingSession) Finish() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		r.finished = true
		r.duration = r.elapsedLocked()
		if r.duration > maxRecordingDuration {
			r.duration = maxRecordingDuration
		}
	}
	return r.duration.Seconds()
}

// Cancel abandons the session; nothing is sent.
func (r *RecordingSession) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	r.duration = 0
}

func (r *RecordingSession) elapsedLocked() time.Duration {
	if r.finished {
		return r.duration
	}
	return r.clock.Now().Sub(r.startedAt)
}

// SendVoiceClip uploads a finalized clip to the partner. On failure the clip
// is discarded, not queued for retry; retry is an explicit user action.
func (c *Coordinator) SendVoiceClip(ctx context.Context, clip []byte, duration float64) error {
	me, err := c.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	c.mu.Lock()
	partner := c.state.PartnerID
	c.mu.Unlock()
	if partner == "" {
		return ErrNotPaired
	}
	if duration > maxRecordingDuration.Seconds() {
		duration = maxRecordingDuration.Seconds()
	}

	msg := &models.VoiceMessage{
		ID:        uuid.NewString(),
		FromID:    me,
		ToID:      partner,
		Timestamp: c.clock.Now(),
		Duration:  duration,
		Clip:      clip,
	}
	if err := c.store.CreateVoiceMessage(ctx, msg); err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrSendFailed, err))
	}

	c.mu.Lock()
	c.state.VoiceSentAt = msg.Timestamp
	c.state.LastError = ""
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	c.log.Info().Str("to", partner).Float64("duration", duration).Msg("voice message sent")
	return nil
}

// CheckForIncomingMessages refreshes the single visible pending message: the
// newest one addressed to this device. Older queued messages surface one at a
// time as each current one is played and deleted.
func (c *Coordinator) CheckForIncomingMessages(ctx context.Context) error {
	me, err := c.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}

	msg, err := c.store.LatestVoiceMessage(ctx, me)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.mu.Lock()
			c.incomingID = ""
			c.state.HasIncomingVoice = false
			c.state.IncomingVoiceDuration = 0
			snap := c.state
			c.mu.Unlock()
			c.emit(snap)
			return nil
		}
		return c.fail(fmt.Errorf("%w: %v", ErrFetchFailed, err))
	}

	c.mu.Lock()
	isNew := msg.ID != c.incomingID
	c.incomingID = msg.ID
	c.state.HasIncomingVoice = true
	c.state.IncomingVoiceDuration = msg.Duration
	c.state.LastError = ""
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	if isNew {
		c.notifier.VoiceMessageReceived(msg.Duration)
	}
	return nil
}

// PlayIncoming plays the current pending message, then deletes it from the
// store and surfaces the next one if any. Playback is single-flight.
func (c *Coordinator) PlayIncoming(ctx context.Context, player Player) error {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return ErrPlaybackInFlight
	}
	id := c.incomingID
	if id == "" {
		c.mu.Unlock()
		return ErrNoIncomingMessage
	}
	c.playing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.playing = false
		c.mu.Unlock()
	}()

	msg, err := c.store.GetVoiceMessage(ctx, id)
	if err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrFetchFailed, err))
	}
	if err := player.Play(ctx, msg.Clip); err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrPlaybackFailed, err))
	}

	// Receiver-driven cleanup after successful playback.
	if err := c.store.DeleteVoiceMessage(ctx, id); err != nil {
		c.log.Warn().Err(err).Str("message_id", id).Msg("failed to delete played voice message")
	}

	c.mu.Lock()
	if c.incomingID == id {
		c.incomingID = ""
		c.state.HasIncomingVoice = false
		c.state.IncomingVoiceDuration = 0
	}
	c.mu.Unlock()

	return c.CheckForIncomingMessages(ctx)
}
