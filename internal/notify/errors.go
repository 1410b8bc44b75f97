package notify

import "errors"

var (
	// ErrNotificationNotFound is returned when a notification ID does not
	// exist or does not belong to the caller.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrUnknownKind is returned for a notification kind outside the
	// recognised set.
	ErrUnknownKind = errors.New("notify: unknown notification kind")

	// ErrAlertAlreadyActive is returned when a hardware alert for a zone
	// is raised again before the existing one has been acknowledged.
	ErrAlertAlreadyActive = errors.New("notify: hardware alert already active for zone")
)
