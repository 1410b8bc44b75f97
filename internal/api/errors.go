package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/verdantcl/greenhouse-core/internal/facility"
	"github.com/verdantcl/greenhouse-core/internal/notify"
	"github.com/verdantcl/greenhouse-core/internal/schedule"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// validationErrors are domain sentinels mapped to 400. Malformed input
// the caller could have checked locally.
var validationErrors = []error{
	facility.ErrInvalidName,
	facility.ErrInvalidState,
	facility.ErrInvalidToleranceBand,
	facility.ErrReservedExceedsHarvested,
	schedule.ErrInvalidKind,
	schedule.ErrInvalidMethod,
	schedule.ErrInvalidWindow,
	notify.ErrUnknownKind,
}

// notFoundErrors are domain sentinels mapped to 404.
var notFoundErrors = []error{
	facility.ErrGreenhouseNotFound,
	facility.ErrZoneNotFound,
	facility.ErrCropNotFound,
	facility.ErrNoCurrentCrop,
	schedule.ErrProgramNotFound,
	schedule.ErrZoneNotFound,
	notify.ErrNotificationNotFound,
}

// conflictErrors are domain sentinels mapped to 409. Structurally valid
// requests rejected because an invariant holds.
var conflictErrors = []error{
	facility.ErrActiveZones,
	facility.ErrGreenhouseNotActive,
	facility.ErrGreenhouseNotInactive,
	facility.ErrCropFinalized,
	schedule.ErrOverlappingProgram,
	schedule.ErrProgramActive,
	notify.ErrAlertAlreadyActive,
}

// writeDomainError maps a domain sentinel to its HTTP status. The error
// text names the violated invariant, so it is passed through to the
// client; unrecognised errors become an opaque 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
	}
	for _, sentinel := range notFoundErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
	}
	for _, sentinel := range conflictErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
	}
	s.logger.Error("unhandled domain error", "error", err)
	writeInternalError(w, "internal server error")
}
