package schedule

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable clock for deterministic evaluation.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// mockMQTT records published messages.
type mockMQTT struct {
	mu       sync.Mutex
	messages map[string][]byte
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{messages: make(map[string][]byte)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[topic] = payload
	return nil
}

// mockHub records broadcast events.
type mockHub struct {
	mu     sync.Mutex
	events []string
}

func (h *mockHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, channel)
}

func (h *mockHub) count(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == channel {
			n++
		}
	}
	return n
}

func historyCount(t *testing.T, repo *SQLiteRepository, programID string) int {
	t.Helper()
	recs, err := repo.ListHistoryByProgram(context.Background(), programID, 0)
	if err != nil {
		t.Fatalf("ListHistoryByProgram failed: %v", err)
	}
	return len(recs)
}

// A program whose window opens reports active with its method and writes
// exactly one history row.
func TestEvaluate_WindowEntry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	hub := &mockHub{}
	ev := NewEvaluator(repo, time.Second, WithClock(clock), WithHub(hub))

	p := testProgram("prog-1", base, time.Minute, 10*time.Minute)
	if err := repo.Create(ctx, p, base); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Before the window: inactive.
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if act := ev.ZoneActivation("zone-a"); act.Active {
		t.Error("zone active before window")
	}

	// Enter the window.
	clock.Set(base.Add(2 * time.Minute))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	act := ev.ZoneActivation("zone-a")
	if !act.Active {
		t.Fatal("zone inactive inside window")
	}
	if act.Method == nil || *act.Method != MethodDrip {
		t.Errorf("Method = %v, want drip", act.Method)
	}
	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Errorf("history rows = %d, want exactly 1", n)
	}
	if hub.count("irrigation.state_changed") != 1 {
		t.Errorf("broadcasts = %d, want 1", hub.count("irrigation.state_changed"))
	}
}

// Re-evaluating at the same instant changes nothing: same map, no new
// history rows.
func TestEvaluate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	ev := NewEvaluator(repo, time.Second, WithClock(clock))

	p := testProgram("prog-1", base, time.Minute, 10*time.Minute)
	if err := repo.Create(ctx, p, base); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Set(base.Add(2 * time.Minute))
	for i := 0; i < 3; i++ {
		if err := ev.Evaluate(ctx); err != nil {
			t.Fatalf("Evaluate %d failed: %v", i, err)
		}
	}

	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Errorf("history rows = %d after 3 evaluations, want 1", n)
	}
	if act := ev.ZoneActivation("zone-a"); !act.Active {
		t.Error("zone inactive after repeated evaluation")
	}
}

func TestEvaluate_WindowExit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	hub := &mockHub{}
	ev := NewEvaluator(repo, time.Second, WithClock(clock), WithHub(hub))

	p := testProgram("prog-1", base, time.Minute, 10*time.Minute)
	if err := repo.Create(ctx, p, base); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Set(base.Add(2 * time.Minute))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// The end bound is exclusive: at exactly end the program is done.
	clock.Set(base.Add(10 * time.Minute))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if act := ev.ZoneActivation("zone-a"); act.Active {
		t.Error("zone still active at window end")
	}
	// Exit produces an event but no additional history row.
	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Errorf("history rows = %d, want 1", n)
	}
	if hub.count("irrigation.state_changed") != 2 {
		t.Errorf("broadcasts = %d, want 2 (entry + exit)", hub.count("irrigation.state_changed"))
	}
}

// Programs on zones that are not active never activate, whatever their
// window says.
func TestEvaluate_InactiveZoneSkipped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	ev := NewEvaluator(repo, time.Second, WithClock(clock))

	p := testProgram("prog-1", base, time.Minute, 10*time.Minute)
	p.ZoneID = "zone-b" // inactive zone
	if err := repo.Create(ctx, p, base); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Set(base.Add(2 * time.Minute))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if ev.ZoneActivation("zone-b").Active {
		t.Error("program on inactive zone reported active")
	}
	if n := historyCount(t, repo, "prog-1"); n != 0 {
		t.Errorf("history rows = %d, want 0", n)
	}
}

// The activation maps list every zone explicitly, defaulting to false.
func TestEvaluate_MapsCoverAllZones(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	mqttc := newMockMQTT()
	ev := NewEvaluator(repo, time.Second, WithClock(clock), WithMQTT(mqttc))

	p := testProgram("prog-1", base, time.Minute, 10*time.Minute)
	if err := repo.Create(ctx, p, base); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Set(base.Add(2 * time.Minute))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	irr := ev.IrrigationMap()
	if len(irr) != 2 {
		t.Fatalf("irrigation map has %d zones, want 2", len(irr))
	}
	if irr["zone-a"] != "drip" {
		t.Errorf("zone-a = %v, want drip", irr["zone-a"])
	}
	if irr["zone-b"] != false {
		t.Errorf("zone-b = %v, want false", irr["zone-b"])
	}

	light := ev.LightingMap()
	if light["zone-a"] || light["zone-b"] {
		t.Error("lighting map reports active with no lighting programs")
	}

	mqttc.mu.Lock()
	defer mqttc.mu.Unlock()
	if _, ok := mqttc.messages[topicIrrigationMap]; !ok {
		t.Error("irrigation map not published")
	}
	if _, ok := mqttc.messages[topicLightingMap]; !ok {
		t.Error("lighting map not published")
	}
}

// Enabling a program writes one history row; the next tick observes the
// same activation without appending another.
func TestToggleEnabled_EnableWritesOneHistoryRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	ev := NewEvaluator(repo, time.Second, WithClock(clock))

	p := testProgram("prog-1", base, time.Minute, 10*time.Minute)
	p.Enabled = false
	if err := repo.Create(ctx, p, base); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Set(base.Add(2 * time.Minute))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if n := historyCount(t, repo, "prog-1"); n != 0 {
		t.Fatalf("history rows = %d before enable, want 0", n)
	}

	got, err := ev.ToggleEnabled(ctx, "prog-1", true)
	if err != nil {
		t.Fatalf("ToggleEnabled failed: %v", err)
	}
	if !got.Enabled {
		t.Error("Enabled = false after toggle")
	}
	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Errorf("history rows = %d after enable, want 1", n)
	}

	// Subsequent ticks see no edge.
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Errorf("history rows = %d after re-evaluation, want 1", n)
	}
	if !ev.ZoneActivation("zone-a").Active {
		t.Error("zone inactive after enable inside window")
	}
}

// Disabling emits no history row and deactivates on the same call.
func TestToggleEnabled_DisableWritesNoHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	ev := NewEvaluator(repo, time.Second, WithClock(clock))

	p := testProgram("prog-1", base, time.Minute, 10*time.Minute)
	if err := repo.Create(ctx, p, base); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Set(base.Add(2 * time.Minute))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Fatalf("history rows = %d after window entry, want 1", n)
	}

	if _, err := ev.ToggleEnabled(ctx, "prog-1", false); err != nil {
		t.Fatalf("ToggleEnabled failed: %v", err)
	}
	if ev.ZoneActivation("zone-a").Active {
		t.Error("zone still active after disable")
	}
	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Errorf("history rows = %d after disable, want 1 (no row on disable)", n)
	}

	// Re-enable inside the same planned window: the open activation row
	// still covers now, so no duplicate is appended.
	if _, err := ev.ToggleEnabled(ctx, "prog-1", true); err != nil {
		t.Fatalf("ToggleEnabled failed: %v", err)
	}
	if n := historyCount(t, repo, "prog-1"); n != 1 {
		t.Errorf("history rows = %d after re-enable inside open window, want 1", n)
	}
}

// Two irrigation methods sharing a window (possible with stale data, the
// overlap check normally prevents it) resolve to a single method.
func TestEvaluate_CrossMethodLastWriteWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	// Insert directly, bypassing the overlap check.
	insert := `INSERT INTO programs (id, zone_id, kind, method, start_time, end_time, enabled)
		VALUES (?, 'zone-a', 'irrigation', ?, ?, ?, 1)`
	start := base.Add(time.Minute).Format(time.RFC3339)
	end := base.Add(10 * time.Minute).Format(time.RFC3339)
	if _, err := db.Exec(insert, "prog-1", "drip", start, end); err != nil {
		t.Fatalf("insert prog-1: %v", err)
	}
	if _, err := db.Exec(insert, "prog-2", "sprinkler", start, end); err != nil {
		t.Fatalf("insert prog-2: %v", err)
	}

	clock := &fakeClock{now: base.Add(2 * time.Minute)}
	ev := NewEvaluator(repo, time.Second, WithClock(clock))
	if err := ev.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	act := ev.ZoneActivation("zone-a")
	if !act.Active || act.Method == nil {
		t.Fatal("zone not active with a resolved method")
	}
	if *act.Method != MethodDrip && *act.Method != MethodSprinkler {
		t.Errorf("Method = %q, want one of the two scheduled methods", *act.Method)
	}
}
