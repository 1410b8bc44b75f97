package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/verdantcl/greenhouse-core/internal/facility"
)

// TransitionFanout adapts accepted facility transitions into
// notifications and realtime events. It satisfies the coordinator's
// listener interface; delivery runs on its own timeout and never blocks
// or fails the transition.
type TransitionFanout struct {
	service *Service
	timeout time.Duration
}

// NewTransitionFanout wires the notification service to coordinator
// transitions.
func NewTransitionFanout(service *Service) *TransitionFanout {
	return &TransitionFanout{service: service, timeout: 5 * time.Second}
}

// GreenhouseStateChanged notifies operators of a greenhouse transition.
func (f *TransitionFanout) GreenhouseStateChanged(g *facility.Greenhouse, previous facility.State) {
	f.dispatch(string(KindGreenhouseState), "Greenhouse state changed",
		fmt.Sprintf("Greenhouse %s moved from %s to %s", g.Name, previous, g.State), "")
	f.broadcast("greenhouse.state_changed", map[string]any{
		"greenhouse_id": g.ID,
		"state":         string(g.State),
		"previous":      string(previous),
		"active_zones":  g.ActiveZones,
		"total_zones":   g.TotalZones,
	})
}

// ZoneStateChanged notifies operators of a zone transition.
func (f *TransitionFanout) ZoneStateChanged(z *facility.Zone, previous facility.State) {
	f.dispatch(string(KindZoneState), "Zone state changed",
		fmt.Sprintf("Zone %s moved from %s to %s", z.Name, previous, z.State), z.ID)
	f.broadcast("zone.state_changed", map[string]any{
		"zone_id":       z.ID,
		"greenhouse_id": z.GreenhouseID,
		"state":         string(z.State),
		"previous":      string(previous),
	})
}

// CropFinalized notifies operators that a cultivation cycle closed.
func (f *TransitionFanout) CropFinalized(c *facility.Crop) {
	zoneID := ""
	if c.ZoneID != nil {
		zoneID = *c.ZoneID
	}
	f.dispatch(string(KindCropFinalized), "Crop finalised",
		fmt.Sprintf("Crop %s has been finalised", c.Name), zoneID)
	f.broadcast("crop.finalized", map[string]any{
		"crop_id": c.ID,
		"zone_id": zoneID,
	})
}

func (f *TransitionFanout) dispatch(kind, title, message, zoneID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err := f.service.Notify(ctx, kind, title, message, zoneID); err != nil {
			f.service.logger.Warn("transition notification failed", "kind", kind, "error", err)
		}
	}()
}

func (f *TransitionFanout) broadcast(channel string, payload any) {
	if f.service.hub != nil {
		f.service.hub.Broadcast(channel, payload)
	}
}
