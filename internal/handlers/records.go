package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/middleware"
	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/services"
)

// RecordHandler exposes the record API the device agents talk to.
type RecordHandler struct {
	records *services.RecordService
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(records *services.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// Status handles GET /api/v1/status
func (h *RecordHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// CreateSession handles POST /api/v1/sessions
func (h *RecordHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var sess models.PairingSession
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if sess.Code == "" {
		respondError(w, "code is required", http.StatusBadRequest)
		return
	}

	if err := h.records.CreateSession(r.Context(), deviceID, &sess); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create session")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	log.Info().Str("device_id", deviceID).Str("session_id", sess.ID).Msg("Pairing session created")
	respondJSON(w, sess, http.StatusCreated)
}

// GetSession handles GET /api/v1/sessions/{id} and GET /api/v1/sessions?code=
func (h *RecordHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.records.GetSession(r.Context(), id)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, sess, http.StatusOK)
}

// FindSession handles GET /api/v1/sessions?code=
func (h *RecordHandler) FindSession(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, "code is required", http.StatusBadRequest)
		return
	}

	sess, err := h.records.FindSessionByCode(r.Context(), code)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, sess, http.StatusOK)
}

// RedeemSession handles POST /api/v1/sessions/{id}/redeem
func (h *RecordHandler) RedeemSession(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.records.RedeemSession(r.Context(), deviceID, id); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Str("session_id", id).Msg("Session redemption rejected")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	log.Info().Str("device_id", deviceID).Str("session_id", id).Msg("Pairing session redeemed")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSessions handles DELETE /api/v1/sessions?initiator=
func (h *RecordHandler) DeleteSessions(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	// the initiator query parameter is advisory; the token decides ownership
	if err := h.records.DeleteSessionsByInitiator(r.Context(), deviceID); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateHeartbeat handles POST /api/v1/heartbeats
func (h *RecordHandler) CreateHeartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var hb models.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if hb.ToID == "" {
		respondError(w, "to_id is required", http.StatusBadRequest)
		return
	}

	if err := h.records.CreateHeartbeat(r.Context(), deviceID, &hb); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create heartbeat")
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, hb, http.StatusCreated)
}

// LatestHeartbeat handles GET /api/v1/heartbeats/latest?to=
func (h *RecordHandler) LatestHeartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	hb, err := h.records.LatestHeartbeat(r.Context(), deviceID)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, hb, http.StatusOK)
}

// CreateLocation handles POST /api/v1/locations
func (h *RecordHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var loc models.UserLocation
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.records.CreateLocation(r.Context(), deviceID, &loc); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create location")
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, loc, http.StatusCreated)
}

// DeleteLocations handles DELETE /api/v1/locations?user=
func (h *RecordHandler) DeleteLocations(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	if err := h.records.DeleteLocations(r.Context(), deviceID); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LatestLocation handles GET /api/v1/locations/latest?user=
func (h *RecordHandler) LatestLocation(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		respondError(w, "user is required", http.StatusBadRequest)
		return
	}

	loc, err := h.records.LatestLocation(r.Context(), userID)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, loc, http.StatusOK)
}

// CreateEncounter handles POST /api/v1/encounters
func (h *RecordHandler) CreateEncounter(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var e models.Encounter
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.records.CreateEncounter(r.Context(), deviceID, &e); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create encounter")
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, e, http.StatusCreated)
}

// CreateVoiceMessage handles POST /api/v1/voice
func (h *RecordHandler) CreateVoiceMessage(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var msg models.VoiceMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg.ToID == "" || len(msg.Clip) == 0 {
		respondError(w, "to_id and clip are required", http.StatusBadRequest)
		return
	}

	if err := h.records.CreateVoiceMessage(r.Context(), deviceID, &msg); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create voice message")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	log.Info().
		Str("device_id", deviceID).
		Str("message_id", msg.ID).
		Float64("duration", msg.Duration).
		Msg("Voice message stored")

	msg.Clip = nil
	respondJSON(w, msg, http.StatusCreated)
}

// LatestVoiceMessage handles GET /api/v1/voice/latest?to=
func (h *RecordHandler) LatestVoiceMessage(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	msg, err := h.records.LatestVoiceMessage(r.Context(), deviceID)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, msg, http.StatusOK)
}

// GetVoiceMessage handles GET /api/v1/voice/{id}
func (h *RecordHandler) GetVoiceMessage(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())
	id := chi.URLParam(r, "id")

	msg, err := h.records.GetVoiceMessage(r.Context(), deviceID, id)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, msg, http.StatusOK)
}

// DeleteVoiceMessage handles DELETE /api/v1/voice/{id}
func (h *RecordHandler) DeleteVoiceMessage(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.records.DeleteVoiceMessage(r.Context(), deviceID, id); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscribe handles POST /api/v1/subscriptions
func (h *RecordHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var sub models.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if sub.Category == "" {
		respondError(w, "category is required", http.StatusBadRequest)
		return
	}

	if err := h.records.Subscribe(r.Context(), deviceID, &sub); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create subscription")
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, sub, http.StatusCreated)
}

// Unsubscribe handles DELETE /api/v1/subscriptions/{id}
func (h *RecordHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.records.Unsubscribe(r.Context(), deviceID, id); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
