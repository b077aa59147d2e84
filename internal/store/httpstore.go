package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pulse-link-backend/internal/models"
)

// HTTPStore talks to the rendezvous backend over its JSON API.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPStore creates a store client for the given base URL and bearer token.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Status probes the backend availability endpoint.
func (s *HTTPStore) Status(ctx context.Context) Availability {
	if err := s.do(ctx, http.MethodGet, "/api/v1/status", nil, nil); err != nil {
		return StatusUnavailable
	}
	return StatusAvailable
}

// CreateSession writes a new pairing session record.
func (s *HTTPStore) CreateSession(ctx context.Context, sess *models.PairingSession) error {
	return s.do(ctx, http.MethodPost, "/api/v1/sessions", sess, sess)
}

// GetSession fetches a pairing session by identifier.
func (s *HTTPStore) GetSession(ctx context.Context, id string) (*models.PairingSession, error) {
	var sess models.PairingSession
	if err := s.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// FindSessionByCode queries sessions by exact code match, newest first.
func (s *HTTPStore) FindSessionByCode(ctx context.Context, code string) (*models.PairingSession, error) {
	var sess models.PairingSession
	path := "/api/v1/sessions?code=" + url.QueryEscape(code)
	if err := s.do(ctx, http.MethodGet, path, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

type redeemRequest struct {
	ReceiverID string `json:"receiver_id"`
}

// RedeemSession claims a session for the receiver. The backend only touches
// the receiver and used fields; a lost race surfaces as ErrConflict.
func (s *HTTPStore) RedeemSession(ctx context.Context, id, receiverID string) error {
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/redeem"
	return s.do(ctx, http.MethodPost, path, redeemRequest{ReceiverID: receiverID}, nil)
}

// DeleteSessionsByInitiator removes every session the initiator owns.
func (s *HTTPStore) DeleteSessionsByInitiator(ctx context.Context, initiatorID string) error {
	path := "/api/v1/sessions?initiator=" + url.QueryEscape(initiatorID)
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateHeartbeat appends a heartbeat record.
func (s *HTTPStore) CreateHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	return s.do(ctx, http.MethodPost, "/api/v1/heartbeats", hb, nil)
}

// LatestHeartbeat fetches the newest heartbeat addressed to the given user.
func (s *HTTPStore) LatestHeartbeat(ctx context.Context, toID string) (*models.Heartbeat, error) {
	var hb models.Heartbeat
	path := "/api/v1/heartbeats/latest?to=" + url.QueryEscape(toID)
	if err := s.do(ctx, http.MethodGet, path, nil, &hb); err != nil {
		return nil, err
	}
	return &hb, nil
}

// CreateLocation inserts a location record.
func (s *HTTPStore) CreateLocation(ctx context.Context, loc *models.UserLocation) error {
	return s.do(ctx, http.MethodPost, "/api/v1/locations", loc, nil)
}

// DeleteLocations removes all location records for a user.
func (s *HTTPStore) DeleteLocations(ctx context.Context, userID string) error {
	path := "/api/v1/locations?user=" + url.QueryEscape(userID)
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// LatestLocation fetches the newest location record for a user.
func (s *HTTPStore) LatestLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	var loc models.UserLocation
	path := "/api/v1/locations/latest?user=" + url.QueryEscape(userID)
	if err := s.do(ctx, http.MethodGet, path, nil, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// CreateEncounter appends an encounter log entry.
func (s *HTTPStore) CreateEncounter(ctx context.Context, e *models.Encounter) error {
	return s.do(ctx, http.MethodPost, "/api/v1/encounters", e, nil)
}

// CreateVoiceMessage uploads a voice message record including its clip.
func (s *HTTPStore) CreateVoiceMessage(ctx context.Context, m *models.VoiceMessage) error {
	return s.do(ctx, http.MethodPost, "/api/v1/voice", m, nil)
}

// LatestVoiceMessage fetches metadata for the newest message addressed to the user.
func (s *HTTPStore) LatestVoiceMessage(ctx context.Context, toID string) (*models.VoiceMessage, error) {
	var m models.VoiceMessage
	path := "/api/v1/voice/latest?to=" + url.QueryEscape(toID)
	if err := s.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetVoiceMessage fetches a full voice message, clip included.
func (s *HTTPStore) GetVoiceMessage(ctx context.Context, id string) (*models.VoiceMessage, error) {
	var m models.VoiceMessage
	if err := s.do(ctx, http.MethodGet, "/api/v1/voice/"+url.PathEscape(id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteVoiceMessage removes a voice message and its stored clip.
func (s *HTTPStore) DeleteVoiceMessage(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/api/v1/voice/"+url.PathEscape(id), nil, nil)
}

// Subscribe registers a push subscription.
func (s *HTTPStore) Subscribe(ctx context.Context, sub *models.Subscription) error {
	return s.do(ctx, http.MethodPost, "/api/v1/subscriptions", sub, sub)
}

// Unsubscribe removes a push subscription.
func (s *HTTPStore) Unsubscribe(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/api/v1/subscriptions/"+url.PathEscape(id), nil, nil)
}

// do performs one JSON round trip and maps transport and status failures onto
// the store error classes.
func (s *HTTPStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("store request aborted: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, code)
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

var _ Store = (*HTTPStore)(nil)
