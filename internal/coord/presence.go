package coord

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/store"
)

// SetPresenceEnabled turns presence tracking on or off. Enabling requires
// location permission; with permission undetermined, a request is issued and
// tracking stays deferred until AuthorizationChanged reports a grant.
func (c *Coordinator) SetPresenceEnabled(enabled bool) error {
	if !enabled {
		c.mu.Lock()
		c.authRequested = false
		c.state.PresenceEnabled = false
		c.state.IsNearPartner = false
		c.persistLocked()
		snap := c.state
		c.mu.Unlock()
		c.emit(snap)
		return nil
	}

	switch c.authorizer.Status() {
	case AuthWhenInUse, AuthAlways:
		c.mu.Lock()
		c.state.PresenceEnabled = true
		c.persistLocked()
		snap := c.state
		c.mu.Unlock()
		c.emit(snap)
		return nil
	case AuthNotDetermined:
		c.mu.Lock()
		c.authRequested = true
		c.mu.Unlock()
		c.authorizer.Request()
		return nil
	default:
		return ErrPermissionDenied
	}
}

// AuthorizationChanged is invoked by the location collaborator when the
// permission state changes. A pending enable request completes on grant.
func (c *Coordinator) AuthorizationChanged(status AuthorizationStatus) {
	if status != AuthWhenInUse && status != AuthAlways {
		return
	}
	c.mu.Lock()
	if !c.authRequested {
		c.mu.Unlock()
		return
	}
	c.authRequested = false
	c.state.PresenceEnabled = true
	c.persistLocked()
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)
}

// ReportLocation ingests a sensor fix. The store is written at most once per
// publish interval regardless of how often the sensor reports; each publish
// replaces prior records by delete-then-insert with a short TTL. Proximity is
// re-evaluated on every fix.
func (c *Coordinator) ReportLocation(ctx context.Context, lat, lon float64) error {
	c.mu.Lock()
	if !c.state.PresenceEnabled {
		c.mu.Unlock()
		return nil
	}
	now := c.clock.Now()
	c.localLoc = &localFix{coords: Coordinates{Latitude: lat, Longitude: lon}, at: now}
	publish := c.lastPublishAt.IsZero() || now.Sub(c.lastPublishAt) >= locationPublishInterval
	c.mu.Unlock()

	if publish {
		me, err := c.identity.UserID(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
		}
		// Best effort: a failed delete leaves a soon-to-expire stale row, not
		// a correctness problem.
		if err := c.store.DeleteLocations(ctx, me); err != nil {
			c.log.Warn().Err(err).Msg("failed to clear prior location records")
		}
		loc := &models.UserLocation{
			ID:        uuid.NewString(),
			UserID:    me,
			Latitude:  lat,
			Longitude: lon,
			Timestamp: now,
			ExpiresAt: now.Add(locationTTL),
		}
		if err := c.store.CreateLocation(ctx, loc); err != nil {
			return c.fail(fmt.Errorf("%w: %v", ErrSendFailed, err))
		}
		c.mu.Lock()
		c.lastPublishAt = now
		c.state.LastError = ""
		c.mu.Unlock()
	}

	c.evaluateProximity(ctx)
	return nil
}

// FetchPartnerLocation pulls the partner's newest location record. Absence or
// expiry clears the cached partner location and proximity state.
func (c *Coordinator) FetchPartnerLocation(ctx context.Context) error {
	c.mu.Lock()
	partner := c.state.PartnerID
	c.mu.Unlock()
	if partner == "" {
		return ErrNotPaired
	}

	loc, err := c.store.LatestLocation(ctx, partner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.clearPartnerLocation()
			return nil
		}
		return c.fail(fmt.Errorf("%w: %v", ErrFetchFailed, err))
	}
	if loc.Expired(c.clock.Now()) {
		c.clearPartnerLocation()
		return nil
	}

	c.mu.Lock()
	coords := Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}
	c.partnerLoc = &coords
	c.partnerLocExp = loc.ExpiresAt
	c.state.PartnerLocation = &coords
	c.state.LastError = ""
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	c.evaluateProximity(ctx)
	return nil
}

func (c *Coordinator) clearPartnerLocation() {
	c.mu.Lock()
	c.partnerLoc = nil
	c.state.PartnerLocation = nil
	c.state.IsNearPartner = false
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)
}

// evaluateProximity recomputes distance when both fixes are known. An
// encounter fires only on the rising edge into "near", and only outside the
// cooldown window.
func (c *Coordinator) evaluateProximity(ctx context.Context) {
	c.mu.Lock()
	now := c.clock.Now()
	if c.localLoc == nil || c.partnerLoc == nil || now.After(c.partnerLocExp) {
		c.mu.Unlock()
		return
	}
	d := haversineMeters(
		c.localLoc.coords.Latitude, c.localLoc.coords.Longitude,
		c.partnerLoc.Latitude, c.partnerLoc.Longitude,
	)
	near := d <= nearThresholdMeters
	rising := near && !c.state.IsNearPartner
	c.state.IsNearPartner = near

	var fire bool
	var where Coordinates
	if rising {
		if c.state.LastEncounterAt.IsZero() || now.Sub(c.state.LastEncounterAt) >= encounterCooldown {
			c.state.LastEncounterAt = now
			c.persistLocked()
			fire = true
			where = c.localLoc.coords
		}
	}
	partner := c.state.PartnerID
	snap := c.state
	c.mu.Unlock()
	c.emit(snap)

	if !fire {
		return
	}
	me, err := c.identity.UserID(ctx)
	if err == nil {
		e := &models.Encounter{
			ID:        uuid.NewString(),
			User1ID:   me,
			User2ID:   partner,
			Timestamp: now,
			Latitude:  where.Latitude,
			Longitude: where.Longitude,
		}
		if err := c.store.CreateEncounter(ctx, e); err != nil {
			c.log.Warn().Err(err).Msg("failed to record encounter")
		}
	}
	c.notifier.EncounterDetected(now, where)
	c.log.Info().Float64("distance_m", d).Msg("encounter detected")
}

// haversineMeters returns the great-circle distance in meters between two
// lat/lon points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}
