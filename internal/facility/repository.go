package facility

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for facility persistence operations.
// State transitions and guarded deletions go through the Coordinator,
// not the repository.
type Repository interface {
	CreateGreenhouse(ctx context.Context, g *Greenhouse) error
	ListGreenhouses(ctx context.Context) ([]Greenhouse, error)
	GetGreenhouse(ctx context.Context, id string) (*Greenhouse, error)
	UpdateGreenhouse(ctx context.Context, g *Greenhouse) error

	CreateZone(ctx context.Context, z *Zone) error
	ListZones(ctx context.Context) ([]Zone, error)
	ListZonesByGreenhouse(ctx context.Context, greenhouseID string) ([]Zone, error)
	GetZone(ctx context.Context, id string) (*Zone, error)
	UpdateZone(ctx context.Context, z *Zone) error
	DeleteZone(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed facility repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateGreenhouse inserts a new greenhouse record.
func (r *SQLiteRepository) CreateGreenhouse(ctx context.Context, g *Greenhouse) error {
	if err := ValidateGreenhouse(g); err != nil {
		return err
	}
	const query = `INSERT INTO greenhouses (id, name, description, state)
		VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, g.ID, g.Name, g.Description, string(g.State))
	if err != nil {
		return fmt.Errorf("inserting greenhouse %s: %w", g.ID, err)
	}
	return nil
}

// ListGreenhouses returns all greenhouses ordered by name.
func (r *SQLiteRepository) ListGreenhouses(ctx context.Context) ([]Greenhouse, error) {
	const query = `SELECT id, name, description, state, total_zones, active_zones,
		created_at, updated_at
		FROM greenhouses ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying greenhouses: %w", err)
	}
	defer rows.Close()

	var out []Greenhouse
	for rows.Next() {
		var g Greenhouse
		var createdAt, updatedAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.State,
			&g.TotalZones, &g.ActiveZones, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning greenhouse row: %w", err)
		}
		g.CreatedAt = parseTime(createdAt)
		g.UpdatedAt = parseTime(updatedAt)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating greenhouse rows: %w", err)
	}
	return out, nil
}

// GetGreenhouse returns a single greenhouse by ID.
func (r *SQLiteRepository) GetGreenhouse(ctx context.Context, id string) (*Greenhouse, error) {
	const query = `SELECT id, name, description, state, total_zones, active_zones,
		created_at, updated_at
		FROM greenhouses WHERE id = ?`
	var g Greenhouse
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.Description,
		&g.State, &g.TotalZones, &g.ActiveZones, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrGreenhouseNotFound
		}
		return nil, fmt.Errorf("scanning greenhouse: %w", err)
	}
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return &g, nil
}

// UpdateGreenhouse updates name and description. State changes go through
// the Coordinator so guard conditions cannot be bypassed.
func (r *SQLiteRepository) UpdateGreenhouse(ctx context.Context, g *Greenhouse) error {
	if err := ValidateName(g.Name); err != nil {
		return err
	}
	const query = `UPDATE greenhouses SET name = ?, description = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, g.Name, g.Description, g.ID)
	if err != nil {
		return fmt.Errorf("updating greenhouse %s: %w", g.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrGreenhouseNotFound
	}
	return nil
}

// CreateZone inserts a new zone and recomputes the owning greenhouse's
// counters in the same transaction. Zones may only be created under an
// active greenhouse.
func (r *SQLiteRepository) CreateZone(ctx context.Context, z *Zone) error {
	if err := ValidateZone(z); err != nil {
		return err
	}
	if z.LightingState == "" {
		z.LightingState = LightingInactive
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var parentState string
	err = tx.QueryRowContext(ctx, "SELECT state FROM greenhouses WHERE id = ?", z.GreenhouseID).Scan(&parentState)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrGreenhouseNotFound
		}
		return fmt.Errorf("reading greenhouse %s: %w", z.GreenhouseID, err)
	}
	if State(parentState) != StateActive {
		return fmt.Errorf("%w: cannot create zone under %s greenhouse", ErrGreenhouseNotActive, parentState)
	}

	const query = `INSERT INTO zones (id, greenhouse_id, name, description, state, lighting_state)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, z.ID, z.GreenhouseID, z.Name,
		z.Description, string(z.State), string(z.LightingState)); err != nil {
		return fmt.Errorf("inserting zone %s: %w", z.ID, err)
	}

	if err := recomputeCounters(ctx, tx, z.GreenhouseID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing zone creation: %w", err)
	}
	return nil
}

// ListZones returns all zones ordered by name.
func (r *SQLiteRepository) ListZones(ctx context.Context) ([]Zone, error) {
	const query = `SELECT id, greenhouse_id, name, description, state, lighting_state,
		created_at, updated_at
		FROM zones ORDER BY name`
	return r.queryZones(ctx, query)
}

// ListZonesByGreenhouse returns zones owned by a specific greenhouse.
func (r *SQLiteRepository) ListZonesByGreenhouse(ctx context.Context, greenhouseID string) ([]Zone, error) {
	const query = `SELECT id, greenhouse_id, name, description, state, lighting_state,
		created_at, updated_at
		FROM zones WHERE greenhouse_id = ? ORDER BY name`
	return r.queryZones(ctx, query, greenhouseID)
}

// GetZone returns a single zone by ID.
func (r *SQLiteRepository) GetZone(ctx context.Context, id string) (*Zone, error) {
	const query = `SELECT id, greenhouse_id, name, description, state, lighting_state,
		created_at, updated_at
		FROM zones WHERE id = ?`
	var z Zone
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&z.ID, &z.GreenhouseID, &z.Name,
		&z.Description, &z.State, &z.LightingState, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrZoneNotFound
		}
		return nil, fmt.Errorf("scanning zone: %w", err)
	}
	z.CreatedAt = parseTime(createdAt)
	z.UpdatedAt = parseTime(updatedAt)
	return &z, nil
}

// UpdateZone updates name and description. State and lighting changes go
// through the Coordinator.
func (r *SQLiteRepository) UpdateZone(ctx context.Context, z *Zone) error {
	if err := ValidateName(z.Name); err != nil {
		return err
	}
	const query = `UPDATE zones SET name = ?, description = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, z.Name, z.Description, z.ID)
	if err != nil {
		return fmt.Errorf("updating zone %s: %w", z.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// DeleteZone removes a zone and recomputes the owning greenhouse's
// counters in the same transaction. Deletion is unconditional: links,
// programs and history cascade at the schema level.
func (r *SQLiteRepository) DeleteZone(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var greenhouseID string
	err = tx.QueryRowContext(ctx, "SELECT greenhouse_id FROM zones WHERE id = ?", id).Scan(&greenhouseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrZoneNotFound
		}
		return fmt.Errorf("reading zone %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM zones WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting zone %s: %w", id, err)
	}
	if err := recomputeCounters(ctx, tx, greenhouseID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing zone deletion: %w", err)
	}
	return nil
}

// queryZones executes a query and returns a slice of Zone.
func (r *SQLiteRepository) queryZones(ctx context.Context, query string, args ...any) ([]Zone, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying zones: %w", err)
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		var z Zone
		var createdAt, updatedAt string
		if err := rows.Scan(&z.ID, &z.GreenhouseID, &z.Name, &z.Description,
			&z.State, &z.LightingState, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning zone row: %w", err)
		}
		z.CreatedAt = parseTime(createdAt)
		z.UpdatedAt = parseTime(updatedAt)
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone rows: %w", err)
	}
	return zones, nil
}

// execer covers *sql.Tx and *sql.DB for the counter recompute.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// recomputeCounters rewrites a greenhouse's derived zone counters from the
// live zone rows. Always called inside the transaction that mutated the
// zones so the counters can never drift.
func recomputeCounters(ctx context.Context, e execer, greenhouseID string) error {
	const query = `UPDATE greenhouses SET
		total_zones = (SELECT COUNT(*) FROM zones WHERE greenhouse_id = ?),
		active_zones = (SELECT COUNT(*) FROM zones WHERE greenhouse_id = ? AND state = 'active'),
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	if _, err := e.ExecContext(ctx, query, greenhouseID, greenhouseID, greenhouseID); err != nil {
		return fmt.Errorf("recomputing counters for greenhouse %s: %w", greenhouseID, err)
	}
	return nil
}

// parseTime parses an ISO 8601 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// nullStr converts a *string to a sql.NullString for nullable columns.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTime converts a *time.Time to a sql.NullString in RFC3339 UTC.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
