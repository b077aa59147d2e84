package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/push"
	"pulse-link-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // native clients only, no browser origin to check
	},
}

// WebSocketHandler attaches device push feeds to the hub.
type WebSocketHandler struct {
	hub           *push.Hub
	deviceService *services.DeviceService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *push.Hub, deviceService *services.DeviceService) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, deviceService: deviceService}
}

// HandleWebSocket handles GET /ws?token=
//
// The feed is one-directional: the server pushes payloads, the client only
// reads. Anything the client writes is discarded.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	deviceID, err := h.deviceService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(deviceID, conn)
	defer h.hub.Unregister(deviceID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("device_id", deviceID).Msg("WebSocket read error")
			}
			return
		}
	}
}
