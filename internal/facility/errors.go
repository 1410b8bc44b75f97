package facility

import "errors"

var (
	// ErrGreenhouseNotFound is returned when a greenhouse ID does not exist.
	ErrGreenhouseNotFound = errors.New("greenhouse not found")

	// ErrZoneNotFound is returned when a zone ID does not exist.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrCropNotFound is returned when a crop ID does not exist.
	ErrCropNotFound = errors.New("crop not found")

	// ErrNoCurrentCrop is returned when a zone has no current crop assigned.
	ErrNoCurrentCrop = errors.New("zone has no current crop")

	// ErrInvalidName is returned when an entity name is empty or too long.
	ErrInvalidName = errors.New("facility: invalid name")

	// ErrInvalidState is returned when a state value is not recognised.
	ErrInvalidState = errors.New("facility: invalid state")

	// ErrInvalidToleranceBand is returned when a crop's min exceeds its max.
	ErrInvalidToleranceBand = errors.New("facility: invalid tolerance band")

	// ErrReservedExceedsHarvested is returned when a harvest update would
	// reserve more than has been harvested.
	ErrReservedExceedsHarvested = errors.New("facility: reserved exceeds harvested")

	// ErrGreenhouseNotActive is returned when a zone operation requires the
	// owning greenhouse to be active and it is not.
	ErrGreenhouseNotActive = errors.New("greenhouse is not active")

	// ErrActiveZones is returned when a greenhouse transition or deletion
	// is blocked by zones still in the active state.
	ErrActiveZones = errors.New("greenhouse has active zones")

	// ErrGreenhouseNotInactive is returned when deleting a greenhouse that
	// has not been transitioned to inactive first.
	ErrGreenhouseNotInactive = errors.New("greenhouse must be inactive before deletion")

	// ErrCropFinalized is returned on any attempt to reactivate or mutate a
	// finalized crop's cycle state.
	ErrCropFinalized = errors.New("crop is finalized")
)
