package schedule

import "errors"

var (
	// ErrProgramNotFound is returned when a program ID does not exist.
	ErrProgramNotFound = errors.New("program not found")

	// ErrZoneNotFound is returned when a program references an unknown zone.
	ErrZoneNotFound = errors.New("schedule: zone not found")

	// ErrInvalidKind is returned when a program kind is not recognised.
	ErrInvalidKind = errors.New("schedule: invalid program kind")

	// ErrInvalidMethod is returned when an irrigation method is missing or
	// not recognised, or a method is given for a lighting program.
	ErrInvalidMethod = errors.New("schedule: invalid delivery method")

	// ErrInvalidWindow is returned when start >= end or the window starts
	// in the past at creation time.
	ErrInvalidWindow = errors.New("schedule: invalid time window")

	// ErrOverlappingProgram is returned when a window intersects another
	// program of the same kind on the same zone.
	ErrOverlappingProgram = errors.New("schedule: overlapping program window")

	// ErrProgramActive is returned when mutating or deleting a program
	// whose window currently contains now while it is enabled.
	ErrProgramActive = errors.New("schedule: program is currently active")
)
