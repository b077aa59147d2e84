package coord

import (
	"context"

	"pulse-link-backend/internal/models"
)

// HandlePush classifies an opaque push payload and invokes the matching
// refresh operation. The payload is a hint only: every path re-fetches
// authoritative state from the store, and the same operations run on timer
// polls when pushes are dropped.
func (c *Coordinator) HandlePush(ctx context.Context, payload models.PushPayload) {
	logger := c.log.With().
		Str("category", string(payload.Category)).
		Str("record_id", payload.RecordID).
		Logger()

	var err error
	switch payload.Category {
	case models.CategoryHeartbeat:
		err = c.CheckForHeartbeats(ctx)
	case models.CategoryPairing:
		if payload.RecordID != "" {
			err = c.CheckPairingStatus(ctx, payload.RecordID)
		}
	case models.CategoryPartnerLocation:
		err = c.FetchPartnerLocation(ctx)
	case models.CategoryVoiceMessage:
		err = c.CheckForIncomingMessages(ctx)
	default:
		// An unrecognized or absent category with a record id defaults to the
		// pairing path.
		if payload.RecordID != "" {
			err = c.CheckPairingStatus(ctx, payload.RecordID)
		}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("push-triggered refresh failed")
	}
}
