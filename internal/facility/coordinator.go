package facility

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Logger defines the logging interface used by the Coordinator.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TransitionListener receives accepted state transitions. The notification
// fan-out registers here; delivery failures never roll back the transition.
type TransitionListener interface {
	GreenhouseStateChanged(g *Greenhouse, previous State)
	ZoneStateChanged(z *Zone, previous State)
	CropFinalized(c *Crop)
}

// Coordinator serialises and validates every greenhouse, zone and crop
// state change. Guard checks and the subsequent write execute inside a
// single transaction, so two concurrent transitions can never both pass
// the same stale guard.
type Coordinator struct {
	db        *sql.DB
	crops     *SQLiteCropRepository
	logger    Logger
	listeners []TransitionListener
}

// NewCoordinator creates a state transition coordinator over db.
func NewCoordinator(db *sql.DB) *Coordinator {
	return &Coordinator{
		db:     db,
		crops:  NewSQLiteCropRepository(db),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// AddListener registers a transition listener. Listeners are invoked
// after commit, outside the transaction.
func (c *Coordinator) AddListener(l TransitionListener) {
	c.listeners = append(c.listeners, l)
}

// SetGreenhouseState transitions a greenhouse to the target state.
// Leaving the active state is rejected with ErrActiveZones while any
// owned zone is still active.
func (c *Coordinator) SetGreenhouseState(ctx context.Context, id string, target State) (*Greenhouse, error) {
	if !ValidState(string(target)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, target)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var current string
	err = tx.QueryRowContext(ctx, "SELECT state FROM greenhouses WHERE id = ?", id).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGreenhouseNotFound
		}
		return nil, fmt.Errorf("reading greenhouse %s: %w", id, err)
	}

	if State(current) == StateActive && target != StateActive {
		var activeZones int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM zones WHERE greenhouse_id = ? AND state = 'active'", id).Scan(&activeZones)
		if err != nil {
			return nil, fmt.Errorf("counting active zones for greenhouse %s: %w", id, err)
		}
		if activeZones > 0 {
			return nil, fmt.Errorf("%w: %d zones must be deactivated first", ErrActiveZones, activeZones)
		}
	}

	const query = `UPDATE greenhouses SET state = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, string(target), id); err != nil {
		return nil, fmt.Errorf("updating greenhouse %s state: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing greenhouse transition: %w", err)
	}

	g, err := NewSQLiteRepository(c.db).GetGreenhouse(ctx, id)
	if err != nil {
		return nil, err
	}
	c.logger.Info("greenhouse state changed", "greenhouse_id", id, "from", current, "to", target)
	for _, l := range c.listeners {
		l.GreenhouseStateChanged(g, State(current))
	}
	return g, nil
}

// SetZoneState transitions a zone to the target state. Activation is
// rejected with ErrGreenhouseNotActive unless the owning greenhouse is
// active. The greenhouse's zone counters are recomputed in the same
// transaction as the write.
func (c *Coordinator) SetZoneState(ctx context.Context, id string, target State) (*Zone, error) {
	if !ValidState(string(target)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, target)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var current, greenhouseID string
	err = tx.QueryRowContext(ctx,
		"SELECT state, greenhouse_id FROM zones WHERE id = ?", id).Scan(&current, &greenhouseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrZoneNotFound
		}
		return nil, fmt.Errorf("reading zone %s: %w", id, err)
	}

	if target == StateActive {
		var parentState string
		err = tx.QueryRowContext(ctx,
			"SELECT state FROM greenhouses WHERE id = ?", greenhouseID).Scan(&parentState)
		if err != nil {
			return nil, fmt.Errorf("reading greenhouse %s: %w", greenhouseID, err)
		}
		if State(parentState) != StateActive {
			return nil, fmt.Errorf("%w: cannot activate zone while greenhouse is %s",
				ErrGreenhouseNotActive, parentState)
		}
	}

	const query = `UPDATE zones SET state = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, string(target), id); err != nil {
		return nil, fmt.Errorf("updating zone %s state: %w", id, err)
	}
	if err := recomputeCounters(ctx, tx, greenhouseID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing zone transition: %w", err)
	}

	z, err := NewSQLiteRepository(c.db).GetZone(ctx, id)
	if err != nil {
		return nil, err
	}
	c.logger.Info("zone state changed", "zone_id", id, "from", current, "to", target)
	for _, l := range c.listeners {
		l.ZoneStateChanged(z, State(current))
	}
	return z, nil
}

// SetZoneLightingState sets the zone lighting sub-state. The lighting
// state is independent of the zone lifecycle state and carries no guard
// conditions of its own.
func (c *Coordinator) SetZoneLightingState(ctx context.Context, id string, target LightingState) error {
	if !ValidLightingState(string(target)) {
		return fmt.Errorf("%w: lighting %q", ErrInvalidState, target)
	}
	const query = `UPDATE zones SET lighting_state = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := c.db.ExecContext(ctx, query, string(target), id)
	if err != nil {
		return fmt.Errorf("updating zone %s lighting state: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// FinalizeCrop transitions a crop from active to finalized and stamps
// the finish time. The transition is one-way: a finalized crop is
// rejected with ErrCropFinalized. Finalising does not unassign the
// zone's current-crop link.
func (c *Coordinator) FinalizeCrop(ctx context.Context, id string) (*Crop, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var current string
	err = tx.QueryRowContext(ctx, "SELECT state FROM crops WHERE id = ?", id).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCropNotFound
		}
		return nil, fmt.Errorf("reading crop %s: %w", id, err)
	}
	if CropState(current) == CropFinalized {
		return nil, fmt.Errorf("%w: cannot finalise twice", ErrCropFinalized)
	}

	const query = `UPDATE crops SET state = ?, finished_at = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, query, string(CropFinalized), now, id); err != nil {
		return nil, fmt.Errorf("finalising crop %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing crop finalisation: %w", err)
	}

	crop, err := c.crops.GetCrop(ctx, id)
	if err != nil {
		return nil, err
	}
	c.logger.Info("crop finalised", "crop_id", id)
	for _, l := range c.listeners {
		l.CropFinalized(crop)
	}
	return crop, nil
}

// AssignCurrentCrop upserts the zone current-crop link and attaches the
// crop to the zone. The link's primary key is the zone ID, which is what
// structurally guarantees at most one current crop per zone. Only active
// crops can be assigned.
func (c *Coordinator) AssignCurrentCrop(ctx context.Context, zoneID, cropID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM zones WHERE id = ?", zoneID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("reading zone %s: %w", zoneID, err)
	}
	if exists == 0 {
		return ErrZoneNotFound
	}

	var cropState string
	err = tx.QueryRowContext(ctx, "SELECT state FROM crops WHERE id = ?", cropID).Scan(&cropState)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrCropNotFound
		}
		return fmt.Errorf("reading crop %s: %w", cropID, err)
	}
	if CropState(cropState) == CropFinalized {
		return fmt.Errorf("%w: cannot assign as current crop", ErrCropFinalized)
	}

	const upsert = `INSERT INTO zone_current_crop (zone_id, crop_id)
		VALUES (?, ?)
		ON CONFLICT(zone_id) DO UPDATE SET crop_id = excluded.crop_id,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	if _, err := tx.ExecContext(ctx, upsert, zoneID, cropID); err != nil {
		return fmt.Errorf("linking crop %s to zone %s: %w", cropID, zoneID, err)
	}

	const attach = `UPDATE crops SET zone_id = ?, started_at = COALESCE(started_at, strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, attach, zoneID, cropID); err != nil {
		return fmt.Errorf("attaching crop %s to zone %s: %w", cropID, zoneID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing crop assignment: %w", err)
	}
	c.logger.Info("current crop assigned", "zone_id", zoneID, "crop_id", cropID)
	return nil
}

// UnassignCurrentCrop removes the zone's current-crop link. The crop row
// keeps its zone reference as history.
func (c *Coordinator) UnassignCurrentCrop(ctx context.Context, zoneID string) error {
	result, err := c.db.ExecContext(ctx, "DELETE FROM zone_current_crop WHERE zone_id = ?", zoneID)
	if err != nil {
		return fmt.Errorf("unlinking current crop for zone %s: %w", zoneID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNoCurrentCrop
	}
	return nil
}

// DeleteGreenhouse removes a greenhouse and everything under it. The
// greenhouse must already be inactive and own no active zone; both
// checks run in the deleting transaction.
func (c *Coordinator) DeleteGreenhouse(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var state string
	err = tx.QueryRowContext(ctx, "SELECT state FROM greenhouses WHERE id = ?", id).Scan(&state)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrGreenhouseNotFound
		}
		return fmt.Errorf("reading greenhouse %s: %w", id, err)
	}
	if State(state) != StateInactive {
		return fmt.Errorf("%w: currently %s", ErrGreenhouseNotInactive, state)
	}

	var activeZones int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM zones WHERE greenhouse_id = ? AND state = 'active'", id).Scan(&activeZones)
	if err != nil {
		return fmt.Errorf("counting active zones for greenhouse %s: %w", id, err)
	}
	if activeZones > 0 {
		return fmt.Errorf("%w: %d zones must be deactivated first", ErrActiveZones, activeZones)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM greenhouses WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting greenhouse %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing greenhouse deletion: %w", err)
	}
	c.logger.Info("greenhouse deleted", "greenhouse_id", id)
	return nil
}
