package facility

import (
	"context"
	"database/sql"
	"fmt"
)

// CropRepository defines the interface for crop persistence and the
// zone current-crop link.
type CropRepository interface {
	CreateCrop(ctx context.Context, c *Crop) error
	ListCrops(ctx context.Context) ([]Crop, error)
	ListCropsByZone(ctx context.Context, zoneID string) ([]Crop, error)
	GetCrop(ctx context.Context, id string) (*Crop, error)
	UpdateCrop(ctx context.Context, c *Crop) error
	DeleteCrop(ctx context.Context, id string) error
	UpdateHarvest(ctx context.Context, id string, harvested, reserved int) (*Crop, error)

	GetCurrentCrop(ctx context.Context, zoneID string) (*Crop, error)
}

// SQLiteCropRepository implements CropRepository using SQLite.
type SQLiteCropRepository struct {
	db *sql.DB
}

// NewSQLiteCropRepository creates a new SQLite-backed crop repository.
func NewSQLiteCropRepository(db *sql.DB) *SQLiteCropRepository {
	return &SQLiteCropRepository{db: db}
}

const cropColumns = `id, zone_id, name, description, state,
	temp_min, temp_max, humidity_min, humidity_max,
	unit, harvested, reserved, available,
	started_at, finished_at, created_at, updated_at`

// CreateCrop inserts a new crop record. The available quantity is
// derived from harvested and reserved, never taken from the caller.
func (r *SQLiteCropRepository) CreateCrop(ctx context.Context, c *Crop) error {
	if c.State == "" {
		c.State = CropActive
	}
	if c.Unit == "" {
		c.Unit = UnitKilograms
	}
	if err := ValidateCrop(c); err != nil {
		return err
	}
	c.Available = c.Harvested - c.Reserved

	const query = `INSERT INTO crops (id, zone_id, name, description, state,
		temp_min, temp_max, humidity_min, humidity_max,
		unit, harvested, reserved, available, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, nullStr(c.ZoneID), c.Name, c.Description, string(c.State),
		c.TempMin, c.TempMax, c.HumidityMin, c.HumidityMax,
		string(c.Unit), c.Harvested, c.Reserved, c.Available, nullTime(c.StartedAt))
	if err != nil {
		return fmt.Errorf("inserting crop %s: %w", c.ID, err)
	}
	return nil
}

// ListCrops returns all crops ordered by name.
func (r *SQLiteCropRepository) ListCrops(ctx context.Context) ([]Crop, error) {
	query := `SELECT ` + cropColumns + ` FROM crops ORDER BY name`
	return r.queryCrops(ctx, query)
}

// ListCropsByZone returns the crop history for a zone, newest first.
func (r *SQLiteCropRepository) ListCropsByZone(ctx context.Context, zoneID string) ([]Crop, error) {
	query := `SELECT ` + cropColumns + ` FROM crops WHERE zone_id = ? ORDER BY created_at DESC`
	return r.queryCrops(ctx, query, zoneID)
}

// GetCrop returns a single crop by ID.
func (r *SQLiteCropRepository) GetCrop(ctx context.Context, id string) (*Crop, error) {
	query := `SELECT ` + cropColumns + ` FROM crops WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	c, err := scanCrop(row)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCrop updates a crop's descriptive fields and tolerance bands.
// Cycle state changes and harvest bookkeeping have dedicated operations.
func (r *SQLiteCropRepository) UpdateCrop(ctx context.Context, c *Crop) error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if c.TempMin > c.TempMax {
		return fmt.Errorf("%w: temperature min %.1f > max %.1f", ErrInvalidToleranceBand, c.TempMin, c.TempMax)
	}
	if c.HumidityMin > c.HumidityMax {
		return fmt.Errorf("%w: humidity min %.1f > max %.1f", ErrInvalidToleranceBand, c.HumidityMin, c.HumidityMax)
	}

	const query = `UPDATE crops SET name = ?, description = ?,
		temp_min = ?, temp_max = ?, humidity_min = ?, humidity_max = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		c.Name, c.Description, c.TempMin, c.TempMax, c.HumidityMin, c.HumidityMax, c.ID)
	if err != nil {
		return fmt.Errorf("updating crop %s: %w", c.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrCropNotFound
	}
	return nil
}

// DeleteCrop removes a crop. The current-crop link, if any, cascades at
// the schema level.
func (r *SQLiteCropRepository) DeleteCrop(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM crops WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting crop %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrCropNotFound
	}
	return nil
}

// UpdateHarvest records new harvest bookkeeping for a crop. The bounds
// check and the write happen in one transaction so a rejected update can
// never leave the derived available quantity inconsistent.
func (r *SQLiteCropRepository) UpdateHarvest(ctx context.Context, id string, harvested, reserved int) (*Crop, error) {
	if err := ValidateHarvest(harvested, reserved); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var state string
	err = tx.QueryRowContext(ctx, "SELECT state FROM crops WHERE id = ?", id).Scan(&state)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCropNotFound
		}
		return nil, fmt.Errorf("reading crop %s: %w", id, err)
	}
	if CropState(state) == CropFinalized {
		return nil, fmt.Errorf("%w: harvest cannot change after finalisation", ErrCropFinalized)
	}

	const query = `UPDATE crops SET harvested = ?, reserved = ?, available = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, harvested, reserved, harvested-reserved, id); err != nil {
		return nil, fmt.Errorf("updating harvest for crop %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing harvest update: %w", err)
	}
	return r.GetCrop(ctx, id)
}

// GetCurrentCrop returns the crop currently linked to a zone, or
// ErrNoCurrentCrop if the link does not exist.
func (r *SQLiteCropRepository) GetCurrentCrop(ctx context.Context, zoneID string) (*Crop, error) {
	query := `SELECT c.id, c.zone_id, c.name, c.description, c.state,
		c.temp_min, c.temp_max, c.humidity_min, c.humidity_max,
		c.unit, c.harvested, c.reserved, c.available,
		c.started_at, c.finished_at, c.created_at, c.updated_at
		FROM zone_current_crop l
		JOIN crops c ON c.id = l.crop_id
		WHERE l.zone_id = ?`
	row := r.db.QueryRowContext(ctx, query, zoneID)
	c, err := scanCrop(row)
	if err != nil {
		if err == ErrCropNotFound {
			return nil, ErrNoCurrentCrop
		}
		return nil, err
	}
	return c, nil
}

// queryCrops executes a query and returns a slice of Crop.
func (r *SQLiteCropRepository) queryCrops(ctx context.Context, query string, args ...any) ([]Crop, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying crops: %w", err)
	}
	defer rows.Close()

	var crops []Crop
	for rows.Next() {
		c, err := scanCropRow(rows)
		if err != nil {
			return nil, err
		}
		crops = append(crops, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating crop rows: %w", err)
	}
	return crops, nil
}

// scanCrop scans a single row into a Crop (for QueryRow).
func scanCrop(row *sql.Row) (*Crop, error) {
	var c Crop
	var zoneID, startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &zoneID, &c.Name, &c.Description, &c.State,
		&c.TempMin, &c.TempMax, &c.HumidityMin, &c.HumidityMax,
		&c.Unit, &c.Harvested, &c.Reserved, &c.Available,
		&startedAt, &finishedAt, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCropNotFound
		}
		return nil, fmt.Errorf("scanning crop: %w", err)
	}
	applyCropNullables(&c, zoneID, startedAt, finishedAt, createdAt, updatedAt)
	return &c, nil
}

// scanCropRow scans a crop from a Rows cursor.
func scanCropRow(rows *sql.Rows) (*Crop, error) {
	var c Crop
	var zoneID, startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(&c.ID, &zoneID, &c.Name, &c.Description, &c.State,
		&c.TempMin, &c.TempMax, &c.HumidityMin, &c.HumidityMax,
		&c.Unit, &c.Harvested, &c.Reserved, &c.Available,
		&startedAt, &finishedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning crop row: %w", err)
	}
	applyCropNullables(&c, zoneID, startedAt, finishedAt, createdAt, updatedAt)
	return &c, nil
}

func applyCropNullables(c *Crop, zoneID, startedAt, finishedAt sql.NullString, createdAt, updatedAt string) {
	if zoneID.Valid {
		c.ZoneID = &zoneID.String
	}
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		c.StartedAt = &t
	}
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		c.FinishedAt = &t
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
}
