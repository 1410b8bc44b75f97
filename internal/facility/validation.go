package facility

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxNameLength = 100

// ValidateName checks if an entity name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateGreenhouse validates a Greenhouse before persistence.
func ValidateGreenhouse(g *Greenhouse) error {
	if err := ValidateName(g.Name); err != nil {
		return err
	}
	if !ValidState(string(g.State)) {
		return fmt.Errorf("%w: %q", ErrInvalidState, g.State)
	}
	return nil
}

// ValidateZone validates a Zone before persistence.
func ValidateZone(z *Zone) error {
	if err := ValidateName(z.Name); err != nil {
		return err
	}
	if z.GreenhouseID == "" {
		return fmt.Errorf("%w: zone requires a greenhouse", ErrInvalidState)
	}
	if !ValidState(string(z.State)) {
		return fmt.Errorf("%w: %q", ErrInvalidState, z.State)
	}
	if z.LightingState != "" && !ValidLightingState(string(z.LightingState)) {
		return fmt.Errorf("%w: lighting %q", ErrInvalidState, z.LightingState)
	}
	return nil
}

// ValidateCrop validates a Crop before persistence, including the
// tolerance bands and harvest bookkeeping invariants.
func ValidateCrop(c *Crop) error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if c.State != CropActive && c.State != CropFinalized {
		return fmt.Errorf("%w: %q", ErrInvalidState, c.State)
	}
	if c.Unit != UnitKilograms && c.Unit != UnitUnits {
		return fmt.Errorf("%w: unit %q", ErrInvalidState, c.Unit)
	}
	if c.TempMin > c.TempMax {
		return fmt.Errorf("%w: temperature min %.1f > max %.1f", ErrInvalidToleranceBand, c.TempMin, c.TempMax)
	}
	if c.HumidityMin > c.HumidityMax {
		return fmt.Errorf("%w: humidity min %.1f > max %.1f", ErrInvalidToleranceBand, c.HumidityMin, c.HumidityMax)
	}
	return ValidateHarvest(c.Harvested, c.Reserved)
}

// GenerateID creates a new unique identifier.
func GenerateID() string {
	return uuid.New().String()
}

// ValidateHarvest checks the harvest bookkeeping bounds. The available
// quantity is always derived as harvested minus reserved, never stored
// independently.
func ValidateHarvest(harvested, reserved int) error {
	if harvested < 0 || reserved < 0 {
		return fmt.Errorf("%w: quantities cannot be negative", ErrReservedExceedsHarvested)
	}
	if reserved > harvested {
		return fmt.Errorf("%w: reserved %d > harvested %d", ErrReservedExceedsHarvested, reserved, harvested)
	}
	return nil
}
