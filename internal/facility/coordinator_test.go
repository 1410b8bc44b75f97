package facility

import (
	"context"
	"errors"
	"testing"
)

// recordingListener captures transition callbacks for assertions.
type recordingListener struct {
	greenhouseChanges []string
	zoneChanges       []string
	cropsFinalized    []string
}

func (l *recordingListener) GreenhouseStateChanged(g *Greenhouse, _ State) {
	l.greenhouseChanges = append(l.greenhouseChanges, g.ID)
}

func (l *recordingListener) ZoneStateChanged(z *Zone, _ State) {
	l.zoneChanges = append(l.zoneChanges, z.ID)
}

func (l *recordingListener) CropFinalized(c *Crop) {
	l.cropsFinalized = append(l.cropsFinalized, c.ID)
}

// An active greenhouse with an active zone cannot leave the active state.
func TestSetGreenhouseState_BlockedByActiveZone(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	ctx := context.Background()

	_, err := coord.SetGreenhouseState(ctx, "gh-north", StateMaintenance)
	if !errors.Is(err, ErrActiveZones) {
		t.Fatalf("expected ErrActiveZones, got %v", err)
	}

	// Greenhouse must still be active.
	g, err := NewSQLiteRepository(db).GetGreenhouse(ctx, "gh-north")
	if err != nil {
		t.Fatalf("GetGreenhouse failed: %v", err)
	}
	if g.State != StateActive {
		t.Errorf("State = %q, want active after rejected transition", g.State)
	}
}

func TestSetGreenhouseState_AllowedAfterZonesDeactivated(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	listener := &recordingListener{}
	coord.AddListener(listener)
	ctx := context.Background()

	if _, err := coord.SetZoneState(ctx, "zone-a", StateInactive); err != nil {
		t.Fatalf("SetZoneState failed: %v", err)
	}

	g, err := coord.SetGreenhouseState(ctx, "gh-north", StateMaintenance)
	if err != nil {
		t.Fatalf("SetGreenhouseState failed: %v", err)
	}
	if g.State != StateMaintenance {
		t.Errorf("State = %q, want maintenance", g.State)
	}
	if len(listener.zoneChanges) != 1 || len(listener.greenhouseChanges) != 1 {
		t.Errorf("listener calls = %d zone, %d greenhouse, want 1 each",
			len(listener.zoneChanges), len(listener.greenhouseChanges))
	}
}

func TestSetZoneState_RequiresActiveGreenhouse(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	ctx := context.Background()

	// Move the greenhouse to maintenance first.
	if _, err := coord.SetZoneState(ctx, "zone-a", StateInactive); err != nil {
		t.Fatalf("SetZoneState failed: %v", err)
	}
	if _, err := coord.SetGreenhouseState(ctx, "gh-north", StateMaintenance); err != nil {
		t.Fatalf("SetGreenhouseState failed: %v", err)
	}

	_, err := coord.SetZoneState(ctx, "zone-b", StateActive)
	if !errors.Is(err, ErrGreenhouseNotActive) {
		t.Errorf("expected ErrGreenhouseNotActive, got %v", err)
	}
}

func TestSetZoneState_CountersAlwaysMatchLiveRows(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	steps := []struct {
		zone   string
		target State
	}{
		{"zone-b", StateActive},
		{"zone-a", StateMaintenance},
		{"zone-a", StateActive},
		{"zone-b", StateInactive},
	}

	for _, step := range steps {
		if _, err := coord.SetZoneState(ctx, step.zone, step.target); err != nil {
			t.Fatalf("SetZoneState(%s, %s) failed: %v", step.zone, step.target, err)
		}

		g, err := repo.GetGreenhouse(ctx, "gh-north")
		if err != nil {
			t.Fatalf("GetGreenhouse failed: %v", err)
		}
		zones, err := repo.ListZonesByGreenhouse(ctx, "gh-north")
		if err != nil {
			t.Fatalf("ListZonesByGreenhouse failed: %v", err)
		}
		active := 0
		for _, z := range zones {
			if z.State == StateActive {
				active++
			}
		}
		if g.ActiveZones != active || g.TotalZones != len(zones) {
			t.Errorf("after %s->%s: counters %d/%d, live rows %d/%d",
				step.zone, step.target, g.ActiveZones, g.TotalZones, active, len(zones))
		}
	}
}

func TestSetZoneState_InvalidTarget(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)

	_, err := coord.SetZoneState(context.Background(), "zone-a", "paused")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestSetZoneLightingState(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	ctx := context.Background()

	if err := coord.SetZoneLightingState(ctx, "zone-a", LightingActive); err != nil {
		t.Fatalf("SetZoneLightingState failed: %v", err)
	}

	z, err := NewSQLiteRepository(db).GetZone(ctx, "zone-a")
	if err != nil {
		t.Fatalf("GetZone failed: %v", err)
	}
	if z.LightingState != LightingActive {
		t.Errorf("LightingState = %q, want active", z.LightingState)
	}
	// Lighting is independent of the zone lifecycle state.
	if z.State != StateActive {
		t.Errorf("State = %q, want active", z.State)
	}
}

func TestFinalizeCrop_OneWay(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	crops := NewSQLiteCropRepository(db)
	ctx := context.Background()

	c := &Crop{ID: "crop-1", Name: "Tomatoes"}
	if err := crops.CreateCrop(ctx, c); err != nil {
		t.Fatalf("CreateCrop failed: %v", err)
	}

	got, err := coord.FinalizeCrop(ctx, "crop-1")
	if err != nil {
		t.Fatalf("FinalizeCrop failed: %v", err)
	}
	if got.State != CropFinalized {
		t.Errorf("State = %q, want finalized", got.State)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not stamped")
	}

	_, err = coord.FinalizeCrop(ctx, "crop-1")
	if !errors.Is(err, ErrCropFinalized) {
		t.Errorf("expected ErrCropFinalized on second finalisation, got %v", err)
	}
}

func TestAssignCurrentCrop_Upserts(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	crops := NewSQLiteCropRepository(db)
	ctx := context.Background()

	for _, id := range []string{"crop-1", "crop-2"} {
		if err := crops.CreateCrop(ctx, &Crop{ID: id, Name: "Crop " + id}); err != nil {
			t.Fatalf("CreateCrop %s failed: %v", id, err)
		}
	}

	if err := coord.AssignCurrentCrop(ctx, "zone-a", "crop-1"); err != nil {
		t.Fatalf("AssignCurrentCrop failed: %v", err)
	}
	// Re-assigning replaces the link rather than adding a second row.
	if err := coord.AssignCurrentCrop(ctx, "zone-a", "crop-2"); err != nil {
		t.Fatalf("AssignCurrentCrop (replace) failed: %v", err)
	}

	current, err := crops.GetCurrentCrop(ctx, "zone-a")
	if err != nil {
		t.Fatalf("GetCurrentCrop failed: %v", err)
	}
	if current.ID != "crop-2" {
		t.Errorf("current crop = %q, want crop-2", current.ID)
	}

	var links int
	if err := db.QueryRow("SELECT COUNT(*) FROM zone_current_crop WHERE zone_id = 'zone-a'").Scan(&links); err != nil {
		t.Fatalf("counting links: %v", err)
	}
	if links != 1 {
		t.Errorf("link rows = %d, want exactly 1", links)
	}
}

func TestAssignCurrentCrop_RejectsFinalized(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	crops := NewSQLiteCropRepository(db)
	ctx := context.Background()

	if err := crops.CreateCrop(ctx, &Crop{ID: "crop-1", Name: "Tomatoes"}); err != nil {
		t.Fatalf("CreateCrop failed: %v", err)
	}
	if _, err := coord.FinalizeCrop(ctx, "crop-1"); err != nil {
		t.Fatalf("FinalizeCrop failed: %v", err)
	}

	err := coord.AssignCurrentCrop(ctx, "zone-a", "crop-1")
	if !errors.Is(err, ErrCropFinalized) {
		t.Errorf("expected ErrCropFinalized, got %v", err)
	}
}

func TestUnassignCurrentCrop(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	crops := NewSQLiteCropRepository(db)
	ctx := context.Background()

	if err := crops.CreateCrop(ctx, &Crop{ID: "crop-1", Name: "Tomatoes"}); err != nil {
		t.Fatalf("CreateCrop failed: %v", err)
	}
	if err := coord.AssignCurrentCrop(ctx, "zone-a", "crop-1"); err != nil {
		t.Fatalf("AssignCurrentCrop failed: %v", err)
	}
	if err := coord.UnassignCurrentCrop(ctx, "zone-a"); err != nil {
		t.Fatalf("UnassignCurrentCrop failed: %v", err)
	}

	if _, err := crops.GetCurrentCrop(ctx, "zone-a"); !errors.Is(err, ErrNoCurrentCrop) {
		t.Errorf("expected ErrNoCurrentCrop after unassign, got %v", err)
	}

	if err := coord.UnassignCurrentCrop(ctx, "zone-a"); !errors.Is(err, ErrNoCurrentCrop) {
		t.Errorf("expected ErrNoCurrentCrop on second unassign, got %v", err)
	}
}

func TestDeleteGreenhouse_Guards(t *testing.T) {
	db := setupTestDB(t)
	coord := NewCoordinator(db)
	ctx := context.Background()

	// Still active: rejected.
	err := coord.DeleteGreenhouse(ctx, "gh-north")
	if !errors.Is(err, ErrGreenhouseNotInactive) {
		t.Fatalf("expected ErrGreenhouseNotInactive, got %v", err)
	}

	if _, err := coord.SetZoneState(ctx, "zone-a", StateInactive); err != nil {
		t.Fatalf("SetZoneState failed: %v", err)
	}
	if _, err := coord.SetGreenhouseState(ctx, "gh-north", StateInactive); err != nil {
		t.Fatalf("SetGreenhouseState failed: %v", err)
	}

	if err := coord.DeleteGreenhouse(ctx, "gh-north"); err != nil {
		t.Fatalf("DeleteGreenhouse failed: %v", err)
	}

	_, err = NewSQLiteRepository(db).GetGreenhouse(ctx, "gh-north")
	if !errors.Is(err, ErrGreenhouseNotFound) {
		t.Errorf("expected ErrGreenhouseNotFound after deletion, got %v", err)
	}

	// Owned zones cascade with the greenhouse.
	var zones int
	if err := db.QueryRow("SELECT COUNT(*) FROM zones WHERE greenhouse_id = 'gh-north'").Scan(&zones); err != nil {
		t.Fatalf("counting zones: %v", err)
	}
	if zones != 0 {
		t.Errorf("zone rows = %d, want 0 after cascade", zones)
	}
}
