// Package push delivers subscription payloads to devices: over a live
// websocket when the device is connected, falling back to APNs when it is
// not. Delivery is a hint, never a guarantee; clients poll regardless.
package push

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/models"
)

// Hub manages live websocket connections keyed by device id.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{connections: make(map[string]*websocket.Conn)}
}

// Register attaches a connection for a device, replacing any previous one.
func (h *Hub) Register(deviceID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.connections[deviceID]; ok {
		existing.Close()
	}
	h.connections[deviceID] = conn

	log.Info().Str("device_id", deviceID).Msg("push feed connected")
}

// Unregister drops the device's connection if it is the given one.
func (h *Hub) Unregister(deviceID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.connections[deviceID]; ok && current == conn {
		current.Close()
		delete(h.connections, deviceID)
		log.Info().Str("device_id", deviceID).Msg("push feed disconnected")
	}
}

// IsOnline checks if a device has a live connection.
func (h *Hub) IsOnline(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[deviceID]
	return ok
}

// Send writes one payload to a connected device.
func (h *Hub) Send(deviceID string, payload models.PushPayload) error {
	h.mu.RLock()
	conn, ok := h.connections[deviceID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("device %s is not connected", deviceID)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.Unregister(deviceID, conn)
		return fmt.Errorf("failed to send payload: %w", err)
	}
	return nil
}
