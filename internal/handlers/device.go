package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/middleware"
	"pulse-link-backend/internal/services"
)

// DeviceHandler handles device registration requests
type DeviceHandler struct {
	deviceService *services.DeviceService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

// RegisterRequest represents the request body for registering a device
type RegisterRequest struct {
	PushToken *string `json:"push_token,omitempty"`
}

// Register handles POST /api/v1/devices
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if r.Body != nil {
		// body is optional; a bare POST registers without a push token
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	device, err := h.deviceService.Register(r.Context(), req.PushToken)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register device")
		respondError(w, "failed to register device", http.StatusInternalServerError)
		return
	}

	log.Info().Str("device_id", device.ID).Msg("Device registered")
	respondJSON(w, device, http.StatusCreated)
}

// PushTokenRequest represents the request body for updating a push token
type PushTokenRequest struct {
	PushToken *string `json:"push_token"`
}

// SetPushToken handles PUT /api/v1/devices/push-token
func (h *DeviceHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.deviceService.SetPushToken(r.Context(), deviceID, req.PushToken); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to update push token")
		respondError(w, "failed to update push token", statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
