package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdantcl/greenhouse-core/internal/auth"
	"github.com/verdantcl/greenhouse-core/internal/notify"
)

// registerTokenRequest is the request body for POST /notifications/tokens.
type registerTokenRequest struct {
	Token string `json:"token"`
}

// handleMyNotifications returns the caller's notifications, newest
// first, with optional unread filter.
func (s *Server) handleMyNotifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := s.notifyRepo.ListByRecipient(r.Context(), claims.Subject, unreadOnly, queryLimit(r))
	if err != nil {
		writeInternalError(w, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications, "count": len(notifications)})
}

// handleUnreadCount returns the caller's unread notification count.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	count, err := s.notifyRepo.CountUnread(r.Context(), claims.Subject)
	if err != nil {
		writeInternalError(w, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

// handleMarkRead acknowledges one of the caller's notifications. Goes
// through the service so hardware alert latches are released.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	n, err := s.notify.MarkRead(r.Context(), claims.Subject, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleMarkAllRead acknowledges all of the caller's notifications and
// releases every hardware alert latch.
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	updated, err := s.notify.MarkAllRead(r.Context(), claims.Subject)
	if err != nil {
		writeInternalError(w, "failed to mark notifications read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// handleRegisterToken registers a delivery token for the caller. The
// audience comes from the verified role, never from the body.
func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req registerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	tok := &notify.DeliveryToken{
		UserID: claims.Subject,
		Role:   audienceForRole(claims.Role),
		Token:  req.Token,
	}
	if err := s.notifyRepo.RegisterToken(r.Context(), tok); err != nil {
		writeInternalError(w, "failed to register token")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"registered": true})
}

// handleDeleteToken removes one of the caller's delivery tokens.
func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	if err := s.notifyRepo.DeleteToken(r.Context(), claims.Subject, chi.URLParam(r, "token")); err != nil {
		writeInternalError(w, "failed to delete token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// audienceForRole maps the auth role onto the notification audience.
func audienceForRole(role auth.Role) notify.Audience {
	if role == auth.RoleAdmin {
		return notify.AudienceAdmin
	}
	return notify.AudienceOperator
}
