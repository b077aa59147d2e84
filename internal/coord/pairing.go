package coord

import (
	"context"
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/store"
)

// GeneratePairingCode starts a new pairing handshake: it clears any session
// this device initiated before, writes a fresh 10-minute session, subscribes
// to updates on it, and starts the poll fallback. It returns the 6-digit code
// the partner must enter.
//
// Codes are drawn uniformly over the full digit range and are not scoped by
// initiator in the lookup, so a collision with another initiator's active
// code is possible within the expiry window. That is a known limitation of
// the protocol, not something this layer papers over.
func (c *Coordinator) GeneratePairingCode(ctx context.Context) (string, error) {
	me, err := c.identity.UserID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	if c.store.Status(ctx) == store.StatusUnavailable {
		return "", c.fail(ErrAccountUnavailable)
	}

	// Old sessions are superseded, never resurrected. Best effort: a failed
	// cleanup does not block the new code.
	if err := c.store.DeleteSessionsByInitiator(ctx, me); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear prior pairing sessions")
	}

	code, err := c.randomCode()
	if err != nil {
		return "", c.fail(fmt.Errorf("%w: %v", ErrPairingFailed, err))
	}

	now := c.clock.Now()
	sess := &models.PairingSession{
		ID:          uuid.NewString(),
		Code:        code,
		InitiatorID: me,
		ExpiresAt:   now.Add(pairingSessionTTL),
		CreatedAt:   now,
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return "", c.fail(fmt.Errorf("%w: %v", ErrPairingFailed, err))
	}

	sub := &models.Subscription{
		ID:        uuid.NewString(),
		DeviceID:  me,
		Category:  models.CategoryPairing,
		RecordID:  sess.ID,
		Silent:    true,
		CreatedAt: now,
	}
	subID := sub.ID
	if err := c.store.Subscribe(ctx, sub); err != nil {
		// Push delivery is a hint; the poll fallback still covers us.
		c.log.Warn().Err(err).Msg("failed to register pairing subscription")
		subID = ""
	}

	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel
	c.awaitingID = sess.ID
	c.subscriptionID = subID
	c.state.Phase = PhaseAwaitingPartner
	c.state.PairingCode = code
	c.state.LastError = ""
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	go c.pollPairing(pollCtx, sess.ID, sess.ExpiresAt)

	c.log.Info().Str("session_id", sess.ID).Msg("pairing code generated")
	return code, nil
}

func (c *Coordinator) randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < pairingCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := cryptorand.Int(c.rand, max)
	if err != nil {
		return "", fmt.Errorf("failed to draw pairing code: %w", err)
	}
	return fmt.Sprintf("%0*d", pairingCodeLength, n), nil
}

// pollPairing re-checks the awaited session every few seconds. Push delivery
// is not guaranteed in a background-execution context, so polling is the
// source of truth while waiting.
func (c *Coordinator) pollPairing(ctx context.Context, sessionID string, expiresAt time.Time) {
	ticker := time.NewTicker(pairingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.clock.Now().After(expiresAt) {
				c.expireAwaiting(sessionID)
				return
			}
			if err := c.CheckPairingStatus(ctx, sessionID); err != nil {
				c.log.Debug().Err(err).Msg("pairing poll failed")
			}
			if c.State().Phase == PhasePaired {
				return
			}
		}
	}
}

// expireAwaiting moves the device back to unpaired once the awaited session
// goes inert. A new GeneratePairingCode call is required after this.
func (c *Coordinator) expireAwaiting(sessionID string) {
	c.mu.Lock()
	if c.awaitingID != sessionID || c.state.Phase != PhaseAwaitingPartner {
		c.mu.Unlock()
		return
	}
	c.awaitingID = ""
	c.state.Phase = PhaseUnpaired
	c.state.PairingCode = ""
	c.state.LastError = ErrPairingExpired.Error()
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)
}

// EnterPairingCode redeems a partner's code on the receiver side. Validation
// failures are rejected before any network call.
func (c *Coordinator) EnterPairingCode(ctx context.Context, code string) error {
	if !validCode(code) {
		return ErrInvalidCodeFormat
	}
	me, err := c.identity.UserID(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}

	sess, err := c.store.FindSessionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.fail(ErrCodeNotFound)
		}
		return c.fail(fmt.Errorf("%w: %v", ErrPairingFailed, err))
	}
	if sess.Expired(c.clock.Now()) {
		return c.fail(ErrPairingExpired)
	}
	if sess.Used || sess.ReceiverID != nil {
		return c.fail(ErrCodeAlreadyUsed)
	}
	if sess.InitiatorID == me {
		return c.fail(ErrSelfPairing)
	}

	// Only receiver_id and used are written, so a concurrent unrelated update
	// is never clobbered. The first successful writer wins; a lost race comes
	// back as a conflict.
	if err := c.store.RedeemSession(ctx, sess.ID, me); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return c.fail(ErrCodeAlreadyUsed)
		case errors.Is(err, store.ErrNotFound):
			return c.fail(ErrCodeNotFound)
		default:
			return c.fail(fmt.Errorf("%w: %v", ErrPairingFailed, err))
		}
	}

	c.adoptPartner(sess.InitiatorID)
	return nil
}

func validCode(code string) bool {
	if len(code) != pairingCodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CheckPairingStatus fetches a specific session and adopts its receiver as
// partner if redemption happened. Invoked from both the push router and the
// poll fallback; both paths converge here.
func (c *Coordinator) CheckPairingStatus(ctx context.Context, recordID string) error {
	sess, err := c.store.GetSession(ctx, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// superseded or cleaned up; nothing to adopt
			return nil
		}
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if sess.ReceiverID == nil || *sess.ReceiverID == "" {
		return nil
	}
	if sess.Expired(c.clock.Now()) {
		return nil
	}
	c.adoptPartner(*sess.ReceiverID)
	return nil
}

// adoptPartner marks the device paired and tears down the handshake scaffolding.
func (c *Coordinator) adoptPartner(partnerID string) {
	c.mu.Lock()
	if c.state.Phase == PhasePaired && c.state.PartnerID == partnerID {
		c.mu.Unlock()
		return
	}
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	subID := c.subscriptionID
	c.subscriptionID = ""
	c.awaitingID = ""
	c.state.Phase = PhasePaired
	c.state.PartnerID = partnerID
	c.state.PairingCode = ""
	c.state.LastError = ""
	c.persistLocked()
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	if subID != "" {
		if err := c.store.Unsubscribe(context.Background(), subID); err != nil {
			c.log.Warn().Err(err).Msg("failed to drop pairing subscription")
		}
	}
	c.registerStandingSubscriptions(partnerID)
	c.notifier.PartnerPaired(partnerID)
	c.log.Info().Str("partner_id", partnerID).Msg("paired with partner")
}

// registerStandingSubscriptions asks the store to push when a heartbeat or
// voice message is addressed to this device, or when the partner publishes a
// location. Best effort; the poll loop covers a device that never got these
// registered.
func (c *Coordinator) registerStandingSubscriptions(partnerID string) {
	ctx := context.Background()
	me, err := c.identity.UserID(ctx)
	if err != nil {
		return
	}
	now := c.clock.Now()

	wanted := []*models.Subscription{
		{Category: models.CategoryHeartbeat, FilterUserID: me},
		{Category: models.CategoryVoiceMessage, FilterUserID: me},
		{Category: models.CategoryPartnerLocation, FilterUserID: partnerID, Silent: true},
	}
	var ids []string
	for _, sub := range wanted {
		sub.ID = uuid.NewString()
		sub.DeviceID = me
		sub.CreatedAt = now
		if err := c.store.Subscribe(ctx, sub); err != nil {
			c.log.Warn().Err(err).Str("category", string(sub.Category)).Msg("failed to register subscription")
			continue
		}
		ids = append(ids, sub.ID)
	}

	c.mu.Lock()
	c.standingSubs = append(c.standingSubs, ids...)
	c.mu.Unlock()
}

// Unpair invalidates locally initiated sessions (best effort) and resets the
// device to a pre-first-use state: partner, timestamps and presence flags all
// clear together.
func (c *Coordinator) Unpair(ctx context.Context) {
	if me, err := c.identity.UserID(ctx); err == nil {
		if err := c.store.DeleteSessionsByInitiator(ctx, me); err != nil {
			c.log.Warn().Err(err).Msg("failed to invalidate pairing sessions")
		}
	}

	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	subID := c.subscriptionID
	c.subscriptionID = ""
	dropped := c.standingSubs
	c.standingSubs = nil
	c.awaitingID = ""
	c.state = State{}
	c.lastAttempt = time.Time{}
	c.lastPublishAt = time.Time{}
	c.localLoc = nil
	c.partnerLoc = nil
	c.incomingID = ""
	c.authRequested = false
	c.persistLocked()
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	if subID != "" {
		dropped = append(dropped, subID)
	}
	for _, id := range dropped {
		if err := c.store.Unsubscribe(ctx, id); err != nil {
			c.log.Warn().Err(err).Str("subscription_id", id).Msg("failed to drop subscription")
		}
	}
	c.log.Info().Msg("unpaired")
}
