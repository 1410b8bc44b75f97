package notify

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the notification
// tables and registered tokens for one operator and one admin.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE notifications (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			zone_id TEXT,
			recipient_id TEXT,
			read INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE delivery_tokens (
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			token TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (user_id, token)
		);

		INSERT INTO delivery_tokens (user_id, role, token) VALUES
			('user-op', 'operator', 'tok-op-1'),
			('user-admin', 'admin', 'tok-admin-1');
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

// mockHub records broadcast channels.
type mockHub struct {
	mu     sync.Mutex
	events []string
}

func (h *mockHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, channel)
}

// mockPusher records audience pushes.
type mockPusher struct {
	mu     sync.Mutex
	pushes []string
	err    error
}

func (p *mockPusher) Push(audience string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, audience)
	return p.err
}

func notificationCount(t *testing.T, db *sql.DB, where string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM notifications "+where, args...).Scan(&n); err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	return n
}

func TestNotify_OperatorKind(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(NewSQLiteRepository(db))
	hub := &mockHub{}
	pusher := &mockPusher{}
	svc.SetHub(hub)
	svc.SetPusher(pusher)

	err := svc.Notify(context.Background(), "irrigation_start", "Activation started",
		"Irrigation (drip) started in zone zone-a", "zone-a")
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	// One row per operator recipient, none for the admin.
	if n := notificationCount(t, db, "WHERE recipient_id = 'user-op'"); n != 1 {
		t.Errorf("operator rows = %d, want 1", n)
	}
	if n := notificationCount(t, db, "WHERE recipient_id = 'user-admin'"); n != 0 {
		t.Errorf("admin rows = %d, want 0", n)
	}

	if len(hub.events) != 1 || hub.events[0] != "notification.created" {
		t.Errorf("hub events = %v, want [notification.created]", hub.events)
	}
	if len(pusher.pushes) != 1 || pusher.pushes[0] != "operator" {
		t.Errorf("pushes = %v, want [operator]", pusher.pushes)
	}
}

func TestNotify_UnknownKind(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(NewSQLiteRepository(db))

	err := svc.Notify(context.Background(), "carrier_pigeon", "t", "m", "")
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

// Push failures are swallowed: state fan-out never depends on delivery.
func TestNotify_PushFailureSwallowed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(NewSQLiteRepository(db))
	svc.SetPusher(&mockPusher{err: errors.New("FCM unreachable")})

	err := svc.Notify(context.Background(), "sensor_info", "t", "m", "zone-a")
	if err != nil {
		t.Fatalf("Notify failed on push error: %v", err)
	}
	if n := notificationCount(t, db, "WHERE kind = 'sensor_info'"); n != 1 {
		t.Errorf("rows = %d, want 1 despite push failure", n)
	}
}

// A second hardware alert for the same zone is rejected until the first
// is acknowledged; acknowledgment re-arms the zone.
func TestNotify_HardwareAlertLatch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(NewSQLiteRepository(db))
	ctx := context.Background()

	if err := svc.Notify(ctx, "hardware_alert", "Pump failure", "Pump offline in zone-a", "zone-a"); err != nil {
		t.Fatalf("first alert failed: %v", err)
	}

	err := svc.Notify(ctx, "hardware_alert", "Pump failure", "Pump offline in zone-a", "zone-a")
	if !errors.Is(err, ErrAlertAlreadyActive) {
		t.Fatalf("expected ErrAlertAlreadyActive, got %v", err)
	}
	if n := notificationCount(t, db, "WHERE kind = 'hardware_alert'"); n != 1 {
		t.Errorf("alert rows = %d, want 1", n)
	}

	// A different zone is unaffected.
	if err := svc.Notify(ctx, "hardware_alert", "Valve failure", "Valve stuck in zone-b", "zone-b"); err != nil {
		t.Fatalf("alert for other zone failed: %v", err)
	}

	// Acknowledge the zone-a alert; a third alert then succeeds.
	var id string
	if err := db.QueryRow(
		"SELECT id FROM notifications WHERE kind = 'hardware_alert' AND zone_id = 'zone-a'").Scan(&id); err != nil {
		t.Fatalf("reading alert id: %v", err)
	}
	if _, err := svc.MarkRead(ctx, "user-admin", id); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if svc.AlertActive("zone-a") {
		t.Error("latch still held after MarkRead")
	}

	if err := svc.Notify(ctx, "hardware_alert", "Pump failure", "Pump offline again in zone-a", "zone-a"); err != nil {
		t.Errorf("alert after acknowledgment failed: %v", err)
	}
}

func TestMarkAllRead_ReleasesAllLatches(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(NewSQLiteRepository(db))
	ctx := context.Background()

	for _, zone := range []string{"zone-a", "zone-b"} {
		if err := svc.Notify(ctx, "hardware_alert", "Failure", "Hardware failure in "+zone, zone); err != nil {
			t.Fatalf("alert for %s failed: %v", zone, err)
		}
	}

	updated, err := svc.MarkAllRead(ctx, "user-admin")
	if err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}
	if svc.AlertActive("zone-a") || svc.AlertActive("zone-b") {
		t.Error("latches still held after MarkAllRead")
	}
}

func TestMarkRead_ScopedToRecipient(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(NewSQLiteRepository(db))
	ctx := context.Background()

	if err := svc.Notify(ctx, "visit", "Visit request", "School visit on Friday", ""); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	var id string
	if err := db.QueryRow("SELECT id FROM notifications WHERE kind = 'visit'").Scan(&id); err != nil {
		t.Fatalf("reading notification id: %v", err)
	}

	// The operator does not own the admin's notification.
	if _, err := svc.MarkRead(ctx, "user-op", id); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}

	n, err := svc.MarkRead(ctx, "user-admin", id)
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !n.Read {
		t.Error("Read = false after MarkRead")
	}
}

func TestListByRecipient_UnreadFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Notify(ctx, "sensor_info", "Reading", "Sensor reading in range", "zone-a"); err != nil {
			t.Fatalf("Notify failed: %v", err)
		}
	}

	all, err := repo.ListByRecipient(ctx, "user-op", false, 0)
	if err != nil {
		t.Fatalf("ListByRecipient failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d notifications, want 3", len(all))
	}

	if _, err := svc.MarkRead(ctx, "user-op", all[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	unread, err := repo.ListByRecipient(ctx, "user-op", true, 0)
	if err != nil {
		t.Fatalf("ListByRecipient unread failed: %v", err)
	}
	if len(unread) != 2 {
		t.Errorf("unread = %d, want 2", len(unread))
	}

	count, err := repo.CountUnread(ctx, "user-op")
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountUnread = %d, want 2", count)
	}
}

func TestRegisterToken_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	tok := &DeliveryToken{UserID: "user-op", Role: AudienceOperator, Token: "tok-op-1"}
	if err := repo.RegisterToken(ctx, tok); err != nil {
		t.Fatalf("RegisterToken (existing) failed: %v", err)
	}

	recipients, err := repo.ListRecipientsByRole(ctx, AudienceOperator)
	if err != nil {
		t.Fatalf("ListRecipientsByRole failed: %v", err)
	}
	if len(recipients) != 1 {
		t.Errorf("recipients = %d, want 1 (upsert, not duplicate)", len(recipients))
	}
}
