package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for program and activation history
// persistence. History is append-only: records are written on activation
// edges and only ever removed by cascade with their owning program.
type Repository interface {
	Create(ctx context.Context, p *Program, now time.Time) error
	Get(ctx context.Context, id string) (*Program, error)
	List(ctx context.Context) ([]Program, error)
	ListByZone(ctx context.Context, zoneID string) ([]Program, error)
	Update(ctx context.Context, p *Program, now time.Time) error
	Delete(ctx context.Context, id string, now time.Time) error
	SetEnabled(ctx context.Context, id string, enabled bool) (*Program, bool, error)

	// ListRunnable returns enabled programs joined with their zone's
	// lifecycle state, which is what the evaluator ticks over.
	ListRunnable(ctx context.Context) ([]RunnableProgram, error)

	// ListZoneIDs returns every zone ID, so activation maps can report
	// an explicit false for zones with nothing scheduled.
	ListZoneIDs(ctx context.Context) ([]string, error)

	AppendHistory(ctx context.Context, rec *ActivationRecord) error
	ListHistory(ctx context.Context, kind Kind, limit int) ([]ActivationRecord, error)
	ListHistoryByZone(ctx context.Context, zoneID string, limit int) ([]ActivationRecord, error)
	ListHistoryByProgram(ctx context.Context, programID string, limit int) ([]ActivationRecord, error)
	CountOpenActivations(ctx context.Context, programID string, now time.Time) (int, error)
}

// RunnableProgram is a program row joined with its zone's state.
type RunnableProgram struct {
	Program
	ZoneState string
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed schedule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const programColumns = `id, zone_id, kind, method, start_time, end_time, enabled, created_at, updated_at`

// Create inserts a new program after validating the window and checking
// it against existing programs of the same kind on the same zone. The
// overlap check and the insert run in one transaction.
func (r *SQLiteRepository) Create(ctx context.Context, p *Program, now time.Time) error {
	if err := ValidateProgram(p, now, true); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var zoneExists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM zones WHERE id = ?", p.ZoneID).Scan(&zoneExists); err != nil {
		return fmt.Errorf("reading zone %s: %w", p.ZoneID, err)
	}
	if zoneExists == 0 {
		return ErrZoneNotFound
	}

	if err := checkOverlap(ctx, tx, p); err != nil {
		return err
	}

	const query = `INSERT INTO programs (id, zone_id, kind, method, start_time, end_time, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		p.ID, p.ZoneID, string(p.Kind), methodStr(p.Method),
		formatTime(p.StartTime), formatTime(p.EndTime), p.Enabled)
	if err != nil {
		return fmt.Errorf("inserting program %s: %w", p.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing program creation: %w", err)
	}
	return nil
}

// Get returns a single program by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	return scanProgram(row)
}

// List returns all programs ordered by start time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs ORDER BY start_time`
	return r.queryPrograms(ctx, query)
}

// ListByZone returns all programs for a zone ordered by start time.
func (r *SQLiteRepository) ListByZone(ctx context.Context, zoneID string) ([]Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE zone_id = ? ORDER BY start_time`
	return r.queryPrograms(ctx, query, zoneID)
}

// Update rewrites a program's window and method. Rejected with
// ErrProgramActive while the stored program is enabled and inside its
// window: a program cannot be mutated mid-activation.
func (r *SQLiteRepository) Update(ctx context.Context, p *Program, now time.Time) error {
	if err := ValidateProgram(p, now, false); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	existing, err := getProgramTx(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	if existing.Enabled && existing.InWindow(now) {
		return fmt.Errorf("%w: window closes at %s", ErrProgramActive,
			existing.EndTime.Format(time.RFC3339))
	}
	if err := checkOverlap(ctx, tx, p); err != nil {
		return err
	}

	const query = `UPDATE programs SET kind = ?, method = ?, start_time = ?, end_time = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query,
		string(p.Kind), methodStr(p.Method),
		formatTime(p.StartTime), formatTime(p.EndTime), p.ID); err != nil {
		return fmt.Errorf("updating program %s: %w", p.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing program update: %w", err)
	}
	return nil
}

// Delete removes a program and cascades its history. Rejected with
// ErrProgramActive while the program is enabled and inside its window.
func (r *SQLiteRepository) Delete(ctx context.Context, id string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	existing, err := getProgramTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if existing.Enabled && existing.InWindow(now) {
		return fmt.Errorf("%w: window closes at %s", ErrProgramActive,
			existing.EndTime.Format(time.RFC3339))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM programs WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting program %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing program deletion: %w", err)
	}
	return nil
}

// SetEnabled updates the manual enable flag. Returns the stored program
// and whether the flag actually changed, so the caller can act only on
// real edges.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, id string, enabled bool) (*Program, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	existing, err := getProgramTx(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if existing.Enabled == enabled {
		return existing, false, nil
	}

	const query = `UPDATE programs SET enabled = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, enabled, id); err != nil {
		return nil, false, fmt.Errorf("updating program %s enabled flag: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing enabled toggle: %w", err)
	}
	existing.Enabled = enabled
	return existing, true, nil
}

// ListRunnable returns all enabled programs joined with their zone's
// lifecycle state.
func (r *SQLiteRepository) ListRunnable(ctx context.Context) ([]RunnableProgram, error) {
	const query = `SELECT p.id, p.zone_id, p.kind, p.method, p.start_time, p.end_time,
		p.enabled, p.created_at, p.updated_at, z.state
		FROM programs p
		JOIN zones z ON z.id = p.zone_id
		WHERE p.enabled = 1
		ORDER BY p.start_time`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying runnable programs: %w", err)
	}
	defer rows.Close()

	var out []RunnableProgram
	for rows.Next() {
		var rp RunnableProgram
		var method sql.NullString
		var startTime, endTime, createdAt, updatedAt string
		if err := rows.Scan(&rp.ID, &rp.ZoneID, &rp.Kind, &method,
			&startTime, &endTime, &rp.Enabled, &createdAt, &updatedAt, &rp.ZoneState); err != nil {
			return nil, fmt.Errorf("scanning runnable program row: %w", err)
		}
		applyProgramTimes(&rp.Program, method, startTime, endTime, createdAt, updatedAt)
		out = append(out, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runnable program rows: %w", err)
	}
	return out, nil
}

// ListZoneIDs returns every zone ID.
func (r *SQLiteRepository) ListZoneIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM zones ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying zone ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning zone id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone ids: %w", err)
	}
	return ids, nil
}

// AppendHistory writes one activation history record.
func (r *SQLiteRepository) AppendHistory(ctx context.Context, rec *ActivationRecord) error {
	const query = `INSERT INTO activation_history
		(id, program_id, zone_id, kind, method, activated_at, duration_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ProgramID, rec.ZoneID, string(rec.Kind), methodStr(rec.Method),
		formatTime(rec.ActivatedAt), rec.DurationMinutes)
	if err != nil {
		return fmt.Errorf("inserting activation record for program %s: %w", rec.ProgramID, err)
	}
	return nil
}

// CountOpenActivations counts history rows for a program whose planned
// window still covers now. Used to enforce at most one open activation
// per program.
func (r *SQLiteRepository) CountOpenActivations(ctx context.Context, programID string, now time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM activation_history
		WHERE program_id = ?
		AND activated_at <= ?
		AND strftime('%Y-%m-%dT%H:%M:%SZ', activated_at, '+' || duration_minutes || ' minutes') > ?`
	var n int
	ts := formatTime(now)
	if err := r.db.QueryRowContext(ctx, query, programID, ts, ts).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting open activations for program %s: %w", programID, err)
	}
	return n, nil
}

// ListHistory returns recent activation records for one program kind,
// newest first.
func (r *SQLiteRepository) ListHistory(ctx context.Context, kind Kind, limit int) ([]ActivationRecord, error) {
	const query = `SELECT id, program_id, zone_id, kind, method, activated_at, duration_minutes, created_at
		FROM activation_history WHERE kind = ?
		ORDER BY activated_at DESC LIMIT ?`
	return r.queryHistory(ctx, query, string(kind), historyLimit(limit))
}

// ListHistoryByZone returns recent activation records for a zone, newest first.
func (r *SQLiteRepository) ListHistoryByZone(ctx context.Context, zoneID string, limit int) ([]ActivationRecord, error) {
	const query = `SELECT id, program_id, zone_id, kind, method, activated_at, duration_minutes, created_at
		FROM activation_history WHERE zone_id = ?
		ORDER BY activated_at DESC LIMIT ?`
	return r.queryHistory(ctx, query, zoneID, historyLimit(limit))
}

// ListHistoryByProgram returns recent activation records for a program, newest first.
func (r *SQLiteRepository) ListHistoryByProgram(ctx context.Context, programID string, limit int) ([]ActivationRecord, error) {
	const query = `SELECT id, program_id, zone_id, kind, method, activated_at, duration_minutes, created_at
		FROM activation_history WHERE program_id = ?
		ORDER BY activated_at DESC LIMIT ?`
	return r.queryHistory(ctx, query, programID, historyLimit(limit))
}

const defaultHistoryLimit = 100

func historyLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}

// checkOverlap rejects p when its half-open window intersects any other
// program of the same kind on the same zone. RFC3339 UTC strings compare
// lexicographically, so the check runs directly in SQL.
func checkOverlap(ctx context.Context, tx *sql.Tx, p *Program) error {
	const query = `SELECT COUNT(*) FROM programs
		WHERE zone_id = ? AND kind = ? AND id != ?
		AND start_time < ? AND ? < end_time`
	var n int
	err := tx.QueryRowContext(ctx, query,
		p.ZoneID, string(p.Kind), p.ID,
		formatTime(p.EndTime), formatTime(p.StartTime)).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking window overlap for zone %s: %w", p.ZoneID, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: zone %s already has a %s program in this window",
			ErrOverlappingProgram, p.ZoneID, p.Kind)
	}
	return nil
}

// getProgramTx reads a program inside a transaction so mutate-while-active
// checks see the same row the write will touch.
func getProgramTx(ctx context.Context, tx *sql.Tx, id string) (*Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE id = ?`
	return scanProgram(tx.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) queryPrograms(ctx context.Context, query string, args ...any) ([]Program, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying programs: %w", err)
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var p Program
		var method sql.NullString
		var startTime, endTime, createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.ZoneID, &p.Kind, &method,
			&startTime, &endTime, &p.Enabled, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning program row: %w", err)
		}
		applyProgramTimes(&p, method, startTime, endTime, createdAt, updatedAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating program rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) queryHistory(ctx context.Context, query string, args ...any) ([]ActivationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activation history: %w", err)
	}
	defer rows.Close()

	var out []ActivationRecord
	for rows.Next() {
		var rec ActivationRecord
		var method sql.NullString
		var activatedAt, createdAt string
		if err := rows.Scan(&rec.ID, &rec.ProgramID, &rec.ZoneID, &rec.Kind,
			&method, &activatedAt, &rec.DurationMinutes, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activation record: %w", err)
		}
		if method.Valid {
			m := Method(method.String)
			rec.Method = &m
		}
		rec.ActivatedAt = parseTime(activatedAt)
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activation records: %w", err)
	}
	return out, nil
}

// scanProgram scans a single row into a Program (for QueryRow).
func scanProgram(row *sql.Row) (*Program, error) {
	var p Program
	var method sql.NullString
	var startTime, endTime, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.ZoneID, &p.Kind, &method,
		&startTime, &endTime, &p.Enabled, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("scanning program: %w", err)
	}
	applyProgramTimes(&p, method, startTime, endTime, createdAt, updatedAt)
	return &p, nil
}

func applyProgramTimes(p *Program, method sql.NullString, startTime, endTime, createdAt, updatedAt string) {
	if method.Valid {
		m := Method(method.String)
		p.Method = &m
	}
	p.StartTime = parseTime(startTime)
	p.EndTime = parseTime(endTime)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
}

// methodStr converts a *Method to a sql.NullString for the nullable column.
func methodStr(m *Method) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*m), Valid: true}
}

// formatTime renders a timestamp as RFC3339 UTC, the storage format for
// every time column.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
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
