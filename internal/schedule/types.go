package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which subsystem a program drives.
type Kind string

const (
	KindIrrigation Kind = "irrigation"
	KindLighting   Kind = "lighting"
)

// ValidKind reports whether k is a recognised program kind.
func ValidKind(k string) bool {
	return Kind(k) == KindIrrigation || Kind(k) == KindLighting
}

// Method is the irrigation delivery method. Lighting programs carry none.
type Method string

const (
	MethodDrip      Method = "drip"
	MethodSprinkler Method = "sprinkler"
)

// ValidMethod reports whether m is a recognised irrigation method.
func ValidMethod(m string) bool {
	return Method(m) == MethodDrip || Method(m) == MethodSprinkler
}

// Program is a scheduled activation window for a zone. The window is
// half-open: the program is active while start <= now < end.
type Program struct {
	ID        string    `json:"id"`
	ZoneID    string    `json:"zone_id"`
	Kind      Kind      `json:"kind"`
	Method    *Method   `json:"method,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration returns the planned window length.
func (p *Program) Duration() time.Duration {
	return p.EndTime.Sub(p.StartTime)
}

// InWindow reports whether now falls inside the program's half-open window.
func (p *Program) InWindow(now time.Time) bool {
	return !now.Before(p.StartTime) && now.Before(p.EndTime)
}

// ActivationRecord is one append-only activation history entry. Records
// are written once per activation edge and never mutated.
type ActivationRecord struct {
	ID              string    `json:"id"`
	ProgramID       string    `json:"program_id"`
	ZoneID          string    `json:"zone_id"`
	Kind            Kind      `json:"kind"`
	Method          *Method   `json:"method,omitempty"`
	ActivatedAt     time.Time `json:"activated_at"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// ZoneActivation is the live activation state for one zone and kind,
// as reported to external device controllers.
type ZoneActivation struct {
	Active bool    `json:"active"`
	Method *Method `json:"method,omitempty"`
}

// GenerateID creates a new UUID for a program or history record.
func GenerateID() string {
	return uuid.New().String()
}
