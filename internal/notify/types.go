package notify

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the notification types the system emits.
type Kind string

const (
	KindSensorAlert     Kind = "sensor_alert"
	KindSensorInfo      Kind = "sensor_info"
	KindIrrigationStart Kind = "irrigation_start"
	KindIrrigationEnd   Kind = "irrigation_end"
	KindLightingStart   Kind = "lighting_start"
	KindLightingEnd     Kind = "lighting_end"
	KindHardwareAlert   Kind = "hardware_alert"
	KindVisit           Kind = "visit"

	// Facility state transitions accepted by the coordinator.
	KindGreenhouseState Kind = "greenhouse_state"
	KindZoneState       Kind = "zone_state"
	KindCropFinalized   Kind = "crop_finalized"
)

// Audience is the role group a notification is routed to.
type Audience string

const (
	AudienceOperator Audience = "operator"
	AudienceAdmin    Audience = "admin"
)

// AudienceFor classifies a notification kind into its audience.
// Operational events go to operators; facility-level alerts and visit
// requests go to admins. Unknown kinds return ErrUnknownKind.
func AudienceFor(kind Kind) (Audience, error) {
	switch kind {
	case KindSensorAlert, KindSensorInfo,
		KindIrrigationStart, KindIrrigationEnd,
		KindLightingStart, KindLightingEnd,
		KindGreenhouseState, KindZoneState, KindCropFinalized:
		return AudienceOperator, nil
	case KindHardwareAlert, KindVisit:
		return AudienceAdmin, nil
	default:
		return "", ErrUnknownKind
	}
}

// Notification is one persisted notification row, addressed to a single
// recipient. Immutable once created except for the read flag.
type Notification struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	ZoneID      *string   `json:"zone_id,omitempty"`
	RecipientID *string   `json:"recipient_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeliveryToken is a registered push target for one user.
type DeliveryToken struct {
	UserID    string    `json:"user_id"`
	Role      Audience  `json:"role"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateID creates a new UUID for a notification.
func GenerateID() string {
	return uuid.New().String()
}
