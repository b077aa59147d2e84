package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/blob"
	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/push"
	"pulse-link-backend/internal/repository"
)

// RecordService owns record lifecycles and triggers subscription fan-out on
// every create or update that matches a registered subscription.
type RecordService struct {
	sessions   *repository.SessionRepository
	heartbeats *repository.HeartbeatRepository
	locations  *repository.LocationRepository
	encounters *repository.EncounterRepository
	voices     *repository.VoiceRepository
	subs       *repository.SubscriptionRepository
	blobs      *blob.S3Store
	dispatcher *push.Dispatcher
}

// NewRecordService creates a new record service
func NewRecordService(
	sessions *repository.SessionRepository,
	heartbeats *repository.HeartbeatRepository,
	locations *repository.LocationRepository,
	encounters *repository.EncounterRepository,
	voices *repository.VoiceRepository,
	subs *repository.SubscriptionRepository,
	blobs *blob.S3Store,
	dispatcher *push.Dispatcher,
) *RecordService {
	return &RecordService{
		sessions:   sessions,
		heartbeats: heartbeats,
		locations:  locations,
		encounters: encounters,
		voices:     voices,
		subs:       subs,
		blobs:      blobs,
		dispatcher: dispatcher,
	}
}

// fanOut notifies every subscribed device except the one that caused the
// change. Best effort and asynchronous; polling covers dropped pushes.
func (s *RecordService) fanOut(category models.Category, recordID, filterUserID, causedBy string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	go func() {
		defer cancel()
		matched, err := s.subs.Match(ctx, category, recordID, filterUserID)
		if err != nil {
			log.Warn().Err(err).Str("category", string(category)).Msg("subscription match failed")
			return
		}
		for _, sub := range matched {
			if sub.DeviceID == causedBy {
				continue
			}
			s.dispatcher.Notify(ctx, sub.DeviceID, models.PushPayload{
				Category: category,
				RecordID: recordID,
			})
		}
	}()
}

// CreateSession writes a pairing session for the calling device. A code that
// is already active on another unexpired session is rejected with a conflict,
// which narrows (but does not close) the cross-initiator collision window.
func (s *RecordService) CreateSession(ctx context.Context, callerID string, sess *models.PairingSession) error {
	sess.InitiatorID = callerID
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}

	exists, err := s.sessions.ActiveCodeExists(ctx, sess.Code, now)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("code already active: %w", repository.ErrConflict)
	}
	return s.sessions.Create(ctx, sess)
}

// GetSession fetches one session by id
func (s *RecordService) GetSession(ctx context.Context, id string) (*models.PairingSession, error) {
	return s.sessions.GetByID(ctx, id)
}

// FindSessionByCode fetches the newest session holding a code
func (s *RecordService) FindSessionByCode(ctx context.Context, code string) (*models.PairingSession, error) {
	return s.sessions.GetByCode(ctx, code)
}

// RedeemSession claims a session for the calling device and notifies the
// initiator's subscription on success.
func (s *RecordService) RedeemSession(ctx context.Context, callerID, sessionID string) error {
	if err := s.sessions.Redeem(ctx, sessionID, callerID); err != nil {
		return err
	}
	s.fanOut(models.CategoryPairing, sessionID, "", callerID)
	return nil
}

// DeleteSessionsByInitiator removes the calling device's sessions
func (s *RecordService) DeleteSessionsByInitiator(ctx context.Context, callerID string) error {
	return s.sessions.DeleteByInitiator(ctx, callerID)
}

// CreateHeartbeat appends a heartbeat from the calling device
func (s *RecordService) CreateHeartbeat(ctx context.Context, callerID string, hb *models.Heartbeat) error {
	hb.FromID = callerID
	if hb.ID == "" {
		hb.ID = uuid.New().String()
	}
	if hb.ToID == callerID {
		return fmt.Errorf("self-addressed heartbeat: %w", repository.ErrConflict)
	}
	if err := s.heartbeats.Create(ctx, hb); err != nil {
		return err
	}
	s.fanOut(models.CategoryHeartbeat, hb.ID, hb.ToID, callerID)
	return nil
}

// LatestHeartbeat fetches the newest heartbeat addressed to the caller
func (s *RecordService) LatestHeartbeat(ctx context.Context, callerID string) (*models.Heartbeat, error) {
	return s.heartbeats.LatestForUser(ctx, callerID)
}

// CreateLocation inserts a location for the calling device
func (s *RecordService) CreateLocation(ctx context.Context, callerID string, loc *models.UserLocation) error {
	loc.UserID = callerID
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}
	if err := s.locations.Create(ctx, loc); err != nil {
		return err
	}
	s.fanOut(models.CategoryPartnerLocation, loc.ID, loc.UserID, callerID)
	return nil
}

// DeleteLocations removes the caller's location records
func (s *RecordService) DeleteLocations(ctx context.Context, callerID string) error {
	return s.locations.DeleteForUser(ctx, callerID)
}

// LatestLocation fetches the newest location for any user; expiry is the
// reader's concern.
func (s *RecordService) LatestLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	return s.locations.LatestForUser(ctx, userID)
}

// CreateEncounter appends an encounter involving the caller
func (s *RecordService) CreateEncounter(ctx context.Context, callerID string, e *models.Encounter) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.User1ID != callerID && e.User2ID != callerID {
		return fmt.Errorf("encounter does not involve caller: %w", repository.ErrConflict)
	}
	return s.encounters.Create(ctx, e)
}

// CreateVoiceMessage stores the clip in blob storage, inserts the row and
// notifies the recipient's subscription.
func (s *RecordService) CreateVoiceMessage(ctx context.Context, callerID string, msg *models.VoiceMessage) error {
	msg.FromID = callerID
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	key := fmt.Sprintf("voice/%s.m4a", msg.ID)
	if err := s.blobs.Put(ctx, key, msg.Clip); err != nil {
		return err
	}

	record := &repository.VoiceRecord{VoiceMessage: *msg, S3Key: key}
	record.Clip = nil
	if err := s.voices.Create(ctx, record); err != nil {
		// do not leave an orphaned clip behind
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("failed to remove orphaned clip")
		}
		return err
	}
	s.fanOut(models.CategoryVoiceMessage, msg.ID, msg.ToID, callerID)
	return nil
}

// LatestVoiceMessage fetches metadata for the newest message addressed to the caller
func (s *RecordService) LatestVoiceMessage(ctx context.Context, callerID string) (*models.VoiceMessage, error) {
	record, err := s.voices.LatestForUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	msg := record.VoiceMessage
	msg.Clip = nil
	return &msg, nil
}

// GetVoiceMessage fetches a full message, clip included. Only the sender or
// the addressee may read it.
func (s *RecordService) GetVoiceMessage(ctx context.Context, callerID, id string) (*models.VoiceMessage, error) {
	record, err := s.voices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.FromID != callerID && record.ToID != callerID {
		return nil, fmt.Errorf("voice message: %w", repository.ErrNotFound)
	}
	clip, err := s.blobs.Get(ctx, record.S3Key)
	if err != nil {
		return nil, err
	}
	msg := record.VoiceMessage
	msg.Clip = clip
	return &msg, nil
}

// DeleteVoiceMessage removes the row and its clip; receiver-driven cleanup
func (s *RecordService) DeleteVoiceMessage(ctx context.Context, callerID, id string) error {
	record, err := s.voices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record.FromID != callerID && record.ToID != callerID {
		return fmt.Errorf("voice message: %w", repository.ErrNotFound)
	}
	if err := s.voices.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, record.S3Key); err != nil {
		log.Warn().Err(err).Str("key", record.S3Key).Msg("failed to delete clip blob")
	}
	return nil
}

// Subscribe registers a push subscription for the calling device
func (s *RecordService) Subscribe(ctx context.Context, callerID string, sub *models.Subscription) error {
	sub.DeviceID = callerID
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	return s.subs.Create(ctx, sub)
}

// Unsubscribe removes a subscription owned by the calling device
func (s *RecordService) Unsubscribe(ctx context.Context, callerID, id string) error {
	return s.subs.Delete(ctx, id, callerID)
}
