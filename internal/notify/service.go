package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Service.
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

// WSHub is the interface for broadcasting realtime events to connected
// clients.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Pusher delivers a push message to an audience group through the
// external delivery collaborator.
type Pusher interface {
	Push(audience string, payload []byte) error
}

// Service is the notification fan-out. It classifies each kind into an
// audience, persists one row per addressed recipient with a registered
// delivery token, broadcasts one realtime event, and pushes to the
// audience group.
//
// Hardware alerts carry a per-zone de-duplication latch: a second alert
// for the same zone is rejected until the first is acknowledged. Marking
// all notifications read releases every latch.
//
// Delivery failures are logged and swallowed; they never propagate to
// the transition that triggered the notification.
type Service struct {
	repo   Repository
	hub    WSHub  // may be nil
	pusher Pusher // may be nil
	logger Logger

	latchMu sync.Mutex
	latches map[string]struct{} // zone IDs with an unacknowledged hardware alert
}

// NewService creates the notification fan-out service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:    repo,
		logger:  noopLogger{},
		latches: make(map[string]struct{}),
	}
}

// SetLogger sets the service logger.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetHub attaches the realtime broadcast hub.
func (s *Service) SetHub(hub WSHub) {
	s.hub = hub
}

// SetPusher attaches the external push collaborator.
func (s *Service) SetPusher(p Pusher) {
	s.pusher = p
}

// Notify classifies, persists and dispatches one notification.
//
// Pass an empty zoneID for notifications with no zone scope. Returns
// ErrUnknownKind for an unclassifiable kind and ErrAlertAlreadyActive
// when a hardware alert for the zone is still unacknowledged; storage
// errors are returned as-is, dispatch errors are swallowed after
// logging.
func (s *Service) Notify(ctx context.Context, kind, title, message, zoneID string) error {
	k := Kind(kind)
	audience, err := AudienceFor(k)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if k == KindHardwareAlert && zoneID != "" {
		if !s.tryLatch(zoneID) {
			return fmt.Errorf("%w: %s", ErrAlertAlreadyActive, zoneID)
		}
	}

	recipients, err := s.repo.ListRecipientsByRole(ctx, audience)
	if err != nil {
		if k == KindHardwareAlert && zoneID != "" {
			s.releaseLatch(zoneID)
		}
		return err
	}

	var zone *string
	if zoneID != "" {
		zone = &zoneID
	}
	for _, recipient := range recipients {
		r := recipient
		n := &Notification{
			Kind:        k,
			Title:       title,
			Message:     message,
			ZoneID:      zone,
			RecipientID: &r,
		}
		if err := s.repo.Create(ctx, n); err != nil {
			s.logger.Error("persisting notification failed",
				"kind", kind, "recipient", recipient, "error", err)
		}
	}

	s.logger.Info("notification dispatched",
		"kind", kind, "audience", audience, "recipients", len(recipients), "zone_id", zoneID)

	if s.hub != nil {
		s.hub.Broadcast("notification.created", map[string]any{
			"kind":     kind,
			"title":    title,
			"message":  message,
			"zone_id":  zoneID,
			"audience": string(audience),
		})
	}
	s.push(audience, kind, title, message, zoneID)
	return nil
}

// push sends one message to the audience group. Failures are logged and
// swallowed.
func (s *Service) push(audience Audience, kind, title, message, zoneID string) {
	if s.pusher == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"kind":    kind,
		"title":   title,
		"message": message,
		"zone_id": zoneID,
	})
	if err != nil {
		return
	}
	if err := s.pusher.Push(string(audience), payload); err != nil {
		s.logger.Warn("push delivery failed", "audience", audience, "kind", kind, "error", err)
	}
}

// MarkRead acknowledges one of the recipient's notifications. Reading a
// hardware alert releases its zone's de-duplication latch.
func (s *Service) MarkRead(ctx context.Context, recipientID, id string) (*Notification, error) {
	n, err := s.repo.MarkRead(ctx, recipientID, id)
	if err != nil {
		return nil, err
	}
	if n.Kind == KindHardwareAlert && n.ZoneID != nil {
		s.releaseLatch(*n.ZoneID)
	}
	return n, nil
}

// MarkAllRead acknowledges all of the recipient's notifications and
// releases every hardware alert latch.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	s.latchMu.Lock()
	s.latches = make(map[string]struct{})
	s.latchMu.Unlock()
	return n, nil
}

// AlertActive reports whether a hardware alert latch is held for a zone.
func (s *Service) AlertActive(zoneID string) bool {
	s.latchMu.Lock()
	defer s.latchMu.Unlock()
	_, ok := s.latches[zoneID]
	return ok
}

// tryLatch acquires the zone's alert latch, reporting false when already
// held.
func (s *Service) tryLatch(zoneID string) bool {
	s.latchMu.Lock()
	defer s.latchMu.Unlock()
	if _, held := s.latches[zoneID]; held {
		return false
	}
	s.latches[zoneID] = struct{}{}
	return true
}

func (s *Service) releaseLatch(zoneID string) {
	s.latchMu.Lock()
	delete(s.latches, zoneID)
	s.latchMu.Unlock()
}
