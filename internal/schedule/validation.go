package schedule

import (
	"fmt"
	"time"
)

// ValidateProgram validates a program before persistence. The past-start
// check only applies at creation time; updates keep their original start
// even once the clock has moved past it.
func ValidateProgram(p *Program, now time.Time, creating bool) error {
	if p.ZoneID == "" {
		return fmt.Errorf("%w: program requires a zone", ErrInvalidWindow)
	}
	if !ValidKind(string(p.Kind)) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, p.Kind)
	}
	if err := validateMethod(p); err != nil {
		return err
	}
	if !p.StartTime.Before(p.EndTime) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow,
			p.StartTime.Format(time.RFC3339), p.EndTime.Format(time.RFC3339))
	}
	if creating && p.StartTime.Before(now) {
		return fmt.Errorf("%w: start %s is in the past", ErrInvalidWindow,
			p.StartTime.Format(time.RFC3339))
	}
	return nil
}

// validateMethod checks the kind/method pairing: irrigation requires a
// delivery method, lighting must not carry one.
func validateMethod(p *Program) error {
	switch p.Kind {
	case KindIrrigation:
		if p.Method == nil {
			return fmt.Errorf("%w: irrigation program requires a method", ErrInvalidMethod)
		}
		if !ValidMethod(string(*p.Method)) {
			return fmt.Errorf("%w: %q", ErrInvalidMethod, *p.Method)
		}
	case KindLighting:
		if p.Method != nil {
			return fmt.Errorf("%w: lighting program cannot have a method", ErrInvalidMethod)
		}
	}
	return nil
}

// Overlaps reports whether two half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
