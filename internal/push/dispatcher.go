package push

import (
	"context"

	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/repository"
)

// Dispatcher routes a payload to a device: live socket first, APNs fallback.
// Failures are logged and swallowed; a missed push is recovered by polling.
type Dispatcher struct {
	hub     *Hub
	apns    *APNsSender
	devices *repository.DeviceRepository
}

// NewDispatcher creates a dispatcher. apns may be nil when APNs is not configured.
func NewDispatcher(hub *Hub, apns *APNsSender, devices *repository.DeviceRepository) *Dispatcher {
	return &Dispatcher{hub: hub, apns: apns, devices: devices}
}

// Notify delivers one payload to one device, best effort.
func (d *Dispatcher) Notify(ctx context.Context, deviceID string, payload models.PushPayload) {
	if d.hub.IsOnline(deviceID) {
		err := d.hub.Send(deviceID, payload)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("device_id", deviceID).Msg("websocket push failed")
	}

	if d.apns == nil {
		return
	}
	device, err := d.devices.GetByID(ctx, deviceID)
	if err != nil || device.PushToken == nil || *device.PushToken == "" {
		return
	}
	if err := d.apns.Send(*device.PushToken, payload); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("APNs push failed")
	}
}
