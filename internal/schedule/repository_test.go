package schedule

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the schedule tables
// and one active greenhouse with two zones.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE greenhouses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'active'
		);

		CREATE TABLE zones (
			id TEXT PRIMARY KEY,
			greenhouse_id TEXT NOT NULL REFERENCES greenhouses(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'inactive',
			lighting_state TEXT NOT NULL DEFAULT 'inactive'
		);

		CREATE TABLE programs (
			id TEXT PRIMARY KEY,
			zone_id TEXT NOT NULL REFERENCES zones(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			method TEXT,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE activation_history (
			id TEXT PRIMARY KEY,
			program_id TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
			zone_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			method TEXT,
			activated_at TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		INSERT INTO greenhouses (id, name, state) VALUES ('gh-north', 'North', 'active');
		INSERT INTO zones (id, greenhouse_id, name, state) VALUES
			('zone-a', 'gh-north', 'Zone A', 'active'),
			('zone-b', 'gh-north', 'Zone B', 'inactive');
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func drip() *Method {
	m := MethodDrip
	return &m
}

func sprinkler() *Method {
	m := MethodSprinkler
	return &m
}

// testProgram builds a valid irrigation program offset from base.
func testProgram(id string, base time.Time, startOffset, endOffset time.Duration) *Program {
	return &Program{
		ID:        id,
		ZoneID:    "zone-a",
		Kind:      KindIrrigation,
		Method:    drip(),
		StartTime: base.Add(startOffset),
		EndTime:   base.Add(endOffset),
		Enabled:   true,
	}
}

func TestCreateProgram(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	p := testProgram("prog-1", now, time.Hour, 2*time.Hour)
	if err := repo.Create(ctx, p, now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.Get(ctx, "prog-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Kind != KindIrrigation {
		t.Errorf("Kind = %q, want irrigation", got.Kind)
	}
	if got.Method == nil || *got.Method != MethodDrip {
		t.Errorf("Method = %v, want drip", got.Method)
	}
	if !got.Enabled {
		t.Error("Enabled = false, want true")
	}
}

func TestCreateProgram_Validation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name    string
		mutate  func(*Program)
		wantErr error
	}{
		{"start after end", func(p *Program) {
			p.StartTime = now.Add(2 * time.Hour)
			p.EndTime = now.Add(time.Hour)
		}, ErrInvalidWindow},
		{"start in past", func(p *Program) {
			p.StartTime = now.Add(-time.Hour)
			p.EndTime = now.Add(time.Hour)
		}, ErrInvalidWindow},
		{"bad kind", func(p *Program) { p.Kind = "misting" }, ErrInvalidKind},
		{"irrigation without method", func(p *Program) { p.Method = nil }, ErrInvalidMethod},
		{"lighting with method", func(p *Program) {
			p.Kind = KindLighting
		}, ErrInvalidMethod},
		{"unknown zone", func(p *Program) { p.ZoneID = "nonexistent" }, ErrZoneNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProgram("prog-x", now, time.Hour, 2*time.Hour)
			tt.mutate(p)
			err := repo.Create(ctx, p, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateProgram_OverlapRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := testProgram("prog-1", now, time.Hour, 3*time.Hour)
	if err := repo.Create(ctx, first, now); err != nil {
		t.Fatalf("Create first failed: %v", err)
	}

	tests := []struct {
		name        string
		startOffset time.Duration
		endOffset   time.Duration
		method      *Method
		wantOverlap bool
	}{
		{"inside", 90 * time.Minute, 2 * time.Hour, drip(), true},
		{"straddles start", 30 * time.Minute, 90 * time.Minute, drip(), true},
		{"straddles end", 150 * time.Minute, 4 * time.Hour, drip(), true},
		// Methods share the irrigation kind, so cross-method overlap is
		// rejected too.
		{"other method inside", 90 * time.Minute, 2 * time.Hour, sprinkler(), true},
		// Half-open windows: end-to-start adjacency is not an overlap.
		{"adjacent after", 3 * time.Hour, 4 * time.Hour, drip(), false},
		{"adjacent before", 30 * time.Minute, time.Hour, drip(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProgram("prog-"+tt.name, now, tt.startOffset, tt.endOffset)
			p.Method = tt.method
			err := repo.Create(ctx, p, now)
			if tt.wantOverlap {
				if !errors.Is(err, ErrOverlappingProgram) {
					t.Errorf("expected ErrOverlappingProgram, got %v", err)
				}
			} else if err != nil {
				t.Errorf("expected success, got %v", err)
			}
		})
	}
}

func TestCreateProgram_DifferentKindMayOverlap(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	irrigation := testProgram("prog-irr", now, time.Hour, 3*time.Hour)
	if err := repo.Create(ctx, irrigation, now); err != nil {
		t.Fatalf("Create irrigation failed: %v", err)
	}

	lightingProg := &Program{
		ID:        "prog-light",
		ZoneID:    "zone-a",
		Kind:      KindLighting,
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(3 * time.Hour),
		Enabled:   true,
	}
	if err := repo.Create(ctx, lightingProg, now); err != nil {
		t.Errorf("lighting program over the same window should be allowed: %v", err)
	}
}

func TestUpdateProgram_RejectedWhileActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	p := testProgram("prog-1", now, time.Hour, 3*time.Hour)
	if err := repo.Create(ctx, p, now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Move the clock inside the window.
	inWindow := now.Add(2 * time.Hour)
	p.EndTime = now.Add(4 * time.Hour)
	err := repo.Update(ctx, p, inWindow)
	if !errors.Is(err, ErrProgramActive) {
		t.Fatalf("expected ErrProgramActive, got %v", err)
	}

	// A disabled program can be mutated mid-window.
	if _, _, err := repo.SetEnabled(ctx, "prog-1", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if err := repo.Update(ctx, p, inWindow); err != nil {
		t.Errorf("Update of disabled program failed: %v", err)
	}
}

func TestDeleteProgram(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	p := testProgram("prog-1", now, time.Hour, 3*time.Hour)
	if err := repo.Create(ctx, p, now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	inWindow := now.Add(2 * time.Hour)
	if err := repo.Delete(ctx, "prog-1", inWindow); !errors.Is(err, ErrProgramActive) {
		t.Fatalf("expected ErrProgramActive, got %v", err)
	}

	afterWindow := now.Add(5 * time.Hour)
	if err := repo.Delete(ctx, "prog-1", afterWindow); err != nil {
		t.Fatalf("Delete after window failed: %v", err)
	}

	if _, err := repo.Get(ctx, "prog-1"); !errors.Is(err, ErrProgramNotFound) {
		t.Errorf("expected ErrProgramNotFound after deletion, got %v", err)
	}
}

func TestDeleteProgram_CascadesHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	p := testProgram("prog-1", now, time.Hour, 2*time.Hour)
	if err := repo.Create(ctx, p, now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rec := &ActivationRecord{
		ID: "hist-1", ProgramID: "prog-1", ZoneID: "zone-a",
		Kind: KindIrrigation, Method: drip(),
		ActivatedAt: now.Add(time.Hour), DurationMinutes: 60,
	}
	if err := repo.AppendHistory(ctx, rec); err != nil {
		t.Fatalf("AppendHistory failed: %v", err)
	}

	if err := repo.Delete(ctx, "prog-1", now.Add(3*time.Hour)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM activation_history").Scan(&n); err != nil {
		t.Fatalf("counting history: %v", err)
	}
	if n != 0 {
		t.Errorf("history rows = %d, want 0 after cascade", n)
	}
}

func TestSetEnabled_ReportsEdge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	p := testProgram("prog-1", now, time.Hour, 2*time.Hour)
	if err := repo.Create(ctx, p, now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Already enabled: no change.
	_, changed, err := repo.SetEnabled(ctx, "prog-1", true)
	if err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if changed {
		t.Error("changed = true for same value, want false")
	}

	got, changed, err := repo.SetEnabled(ctx, "prog-1", false)
	if err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if !changed {
		t.Error("changed = false for flip, want true")
	}
	if got.Enabled {
		t.Error("Enabled = true after disable")
	}
}

func TestListRunnable_JoinsZoneState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	pa := testProgram("prog-a", now, time.Hour, 2*time.Hour)
	if err := repo.Create(ctx, pa, now); err != nil {
		t.Fatalf("Create prog-a failed: %v", err)
	}
	pb := testProgram("prog-b", now, time.Hour, 2*time.Hour)
	pb.ZoneID = "zone-b"
	if err := repo.Create(ctx, pb, now); err != nil {
		t.Fatalf("Create prog-b failed: %v", err)
	}
	if _, _, err := repo.SetEnabled(ctx, "prog-a", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	runnable, err := repo.ListRunnable(ctx)
	if err != nil {
		t.Fatalf("ListRunnable failed: %v", err)
	}
	if len(runnable) != 1 {
		t.Fatalf("got %d runnable programs, want 1 (disabled excluded)", len(runnable))
	}
	if runnable[0].ID != "prog-b" {
		t.Errorf("runnable program = %q, want prog-b", runnable[0].ID)
	}
	if runnable[0].ZoneState != "inactive" {
		t.Errorf("ZoneState = %q, want inactive", runnable[0].ZoneState)
	}
}

func TestCountOpenActivations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	p := testProgram("prog-1", now, time.Hour, 2*time.Hour)
	if err := repo.Create(ctx, p, now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rec := &ActivationRecord{
		ID: "hist-1", ProgramID: "prog-1", ZoneID: "zone-a",
		Kind: KindIrrigation, Method: drip(),
		ActivatedAt: now, DurationMinutes: 30,
	}
	if err := repo.AppendHistory(ctx, rec); err != nil {
		t.Fatalf("AppendHistory failed: %v", err)
	}

	open, err := repo.CountOpenActivations(ctx, "prog-1", now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("CountOpenActivations failed: %v", err)
	}
	if open != 1 {
		t.Errorf("open = %d at +10m, want 1", open)
	}

	open, err = repo.CountOpenActivations(ctx, "prog-1", now.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("CountOpenActivations failed: %v", err)
	}
	if open != 0 {
		t.Errorf("open = %d at +45m, want 0", open)
	}
}

func TestListHistoryByZone(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	p := testProgram("prog-1", now, time.Hour, 2*time.Hour)
	if err := repo.Create(ctx, p, now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i, id := range []string{"hist-1", "hist-2"} {
		rec := &ActivationRecord{
			ID: id, ProgramID: "prog-1", ZoneID: "zone-a",
			Kind: KindIrrigation, Method: drip(),
			ActivatedAt:     now.Add(time.Duration(i) * time.Hour),
			DurationMinutes: 60,
		}
		if err := repo.AppendHistory(ctx, rec); err != nil {
			t.Fatalf("AppendHistory %s failed: %v", id, err)
		}
	}

	recs, err := repo.ListHistoryByZone(ctx, "zone-a", 0)
	if err != nil {
		t.Fatalf("ListHistoryByZone failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Newest first.
	if recs[0].ID != "hist-2" {
		t.Errorf("first record = %q, want hist-2", recs[0].ID)
	}
}
