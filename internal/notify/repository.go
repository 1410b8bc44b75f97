package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for notification and delivery token
// persistence.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string) (*Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)

	RegisterToken(ctx context.Context, tok *DeliveryToken) error
	DeleteToken(ctx context.Context, userID, token string) error
	ListRecipientsByRole(ctx context.Context, role Audience) ([]string, error)
	ListTokensByRole(ctx context.Context, role Audience) ([]DeliveryToken, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed notification repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts one notification row. ID and CreatedAt are generated
// when empty.
func (r *SQLiteRepository) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = GenerateID()
	}
	const query = `INSERT INTO notifications (id, kind, title, message, zone_id, recipient_id, read)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, string(n.Kind), n.Title, n.Message, nullStr(n.ZoneID), nullStr(n.RecipientID), n.Read)
	if err != nil {
		return fmt.Errorf("inserting notification %s: %w", n.ID, err)
	}
	return nil
}

const notificationColumns = `id, kind, title, message, zone_id, recipient_id, read, created_at`

// Get returns a single notification by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	return scanNotification(row)
}

// ListByRecipient returns a recipient's notifications, newest first.
func (r *SQLiteRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var zoneID, recipient sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Kind, &n.Title, &n.Message,
			&zoneID, &recipient, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		if zoneID.Valid {
			n.ZoneID = &zoneID.String
		}
		if recipient.Valid {
			n.RecipientID = &recipient.String
		}
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification rows: %w", err)
	}
	return out, nil
}

// CountUnread returns the recipient's unread notification count.
func (r *SQLiteRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0", recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead flags one of the recipient's notifications as read and
// returns it. The recipient scope is part of the predicate so one user
// cannot acknowledge another's notifications.
func (r *SQLiteRepository) MarkRead(ctx context.Context, recipientID, id string) (*Notification, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?", id, recipientID)
	if err != nil {
		return nil, fmt.Errorf("marking notification %s read: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return nil, ErrNotificationNotFound
	}
	return r.Get(ctx, id)
}

// MarkAllRead flags all of the recipient's notifications as read and
// returns the number updated.
func (r *SQLiteRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0", recipientID)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	return n, nil
}

// RegisterToken upserts a delivery token for a user.
func (r *SQLiteRepository) RegisterToken(ctx context.Context, tok *DeliveryToken) error {
	const query = `INSERT INTO delivery_tokens (user_id, role, token)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, token) DO UPDATE SET role = excluded.role`
	_, err := r.db.ExecContext(ctx, query, tok.UserID, string(tok.Role), tok.Token)
	if err != nil {
		return fmt.Errorf("registering delivery token for user %s: %w", tok.UserID, err)
	}
	return nil
}

// DeleteToken removes one of a user's delivery tokens.
func (r *SQLiteRepository) DeleteToken(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM delivery_tokens WHERE user_id = ? AND token = ?", userID, token)
	if err != nil {
		return fmt.Errorf("deleting delivery token for user %s: %w", userID, err)
	}
	return nil
}

// ListRecipientsByRole returns the distinct user IDs holding at least one
// registered delivery token for the role.
func (r *SQLiteRepository) ListRecipientsByRole(ctx context.Context, role Audience) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM delivery_tokens WHERE role = ? ORDER BY user_id", string(role))
	if err != nil {
		return nil, fmt.Errorf("querying recipients for role %s: %w", role, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning recipient id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recipient ids: %w", err)
	}
	return out, nil
}

// ListTokensByRole returns every delivery token registered for the role.
func (r *SQLiteRepository) ListTokensByRole(ctx context.Context, role Audience) ([]DeliveryToken, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, role, token, created_at FROM delivery_tokens WHERE role = ?", string(role))
	if err != nil {
		return nil, fmt.Errorf("querying tokens for role %s: %w", role, err)
	}
	defer rows.Close()

	var out []DeliveryToken
	for rows.Next() {
		var tok DeliveryToken
		var createdAt string
		if err := rows.Scan(&tok.UserID, &tok.Role, &tok.Token, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning delivery token: %w", err)
		}
		tok.CreatedAt = parseTime(createdAt)
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery tokens: %w", err)
	}
	return out, nil
}

// scanNotification scans a single row into a Notification.
func scanNotification(row *sql.Row) (*Notification, error) {
	var n Notification
	var zoneID, recipient sql.NullString
	var createdAt string
	err := row.Scan(&n.ID, &n.Kind, &n.Title, &n.Message,
		&zoneID, &recipient, &n.Read, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("scanning notification: %w", err)
	}
	if zoneID.Valid {
		n.ZoneID = &zoneID.String
	}
	if recipient.Valid {
		n.RecipientID = &recipient.String
	}
	n.CreatedAt = parseTime(createdAt)
	return &n, nil
}

// nullStr converts a *string to a sql.NullString for nullable columns.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
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
