package facility

import "time"

// State is the lifecycle state shared by greenhouses and zones.
type State string

const (
	StateActive      State = "active"
	StateInactive    State = "inactive"
	StateMaintenance State = "maintenance"
)

// ValidState reports whether s is a recognised greenhouse/zone state.
func ValidState(s string) bool {
	switch State(s) {
	case StateActive, StateInactive, StateMaintenance:
		return true
	}
	return false
}

// LightingState is the zone lighting sub-state, independent of the
// zone's own lifecycle state.
type LightingState string

const (
	LightingActive   LightingState = "active"
	LightingInactive LightingState = "inactive"
)

// ValidLightingState reports whether s is a recognised lighting state.
func ValidLightingState(s string) bool {
	return LightingState(s) == LightingActive || LightingState(s) == LightingInactive
}

// CropState is the cultivation cycle state. The transition
// active -> finalized is one-way.
type CropState string

const (
	CropActive    CropState = "active"
	CropFinalized CropState = "finalized"
)

// HarvestUnit is the unit crops are harvested in.
type HarvestUnit string

const (
	UnitKilograms HarvestUnit = "kilograms"
	UnitUnits     HarvestUnit = "units"
)

// Greenhouse is a top-level facility unit containing zones.
// TotalZones and ActiveZones are derived counters, recomputed
// transactionally on every zone mutation.
type Greenhouse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	State       State     `json:"state"`
	TotalZones  int       `json:"total_zones"`
	ActiveZones int       `json:"active_zones"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Zone is a subdivision of a greenhouse, the unit of irrigation and
// lighting control and of crop assignment.
type Zone struct {
	ID            string        `json:"id"`
	GreenhouseID  string        `json:"greenhouse_id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	State         State         `json:"state"`
	LightingState LightingState `json:"lighting_state"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Crop is a cultivation cycle with environmental tolerance bands and
// harvest bookkeeping. ZoneID is nullable: crops may be created
// unassigned and attached to a zone later.
type Crop struct {
	ID          string      `json:"id"`
	ZoneID      *string     `json:"zone_id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	State       CropState   `json:"state"`
	TempMin     float64     `json:"temp_min"`
	TempMax     float64     `json:"temp_max"`
	HumidityMin float64     `json:"humidity_min"`
	HumidityMax float64     `json:"humidity_max"`
	Unit        HarvestUnit `json:"unit"`
	Harvested   int         `json:"harvested"`
	Reserved    int         `json:"reserved"`
	Available   int         `json:"available"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CurrentCrop links a zone to its single current crop. The zone ID is
// the primary key, so at most one link can exist per zone.
type CurrentCrop struct {
	ZoneID    string    `json:"zone_id"`
	CropID    string    `json:"crop_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
