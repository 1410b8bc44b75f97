package auth

import "errors"

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleOperator is day-to-day greenhouse staff: schedules, crops,
	// harvest updates, operational notifications.
	RoleOperator Role = "operator"

	// RoleAdmin additionally manages facility structure and receives
	// hardware alerts and visit requests.
	RoleAdmin Role = "admin"
)

// ValidRole returns true if the role is recognised.
func ValidRole(r Role) bool {
	return r == RoleOperator || r == RoleAdmin
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
