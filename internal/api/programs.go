package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verdantcl/greenhouse-core/internal/schedule"
)

// createProgramRequest is the request body for POST /programs.
// Times are RFC3339; method is required for irrigation and forbidden
// for lighting.
type createProgramRequest struct {
	ZoneID    string    `json:"zone_id"`
	Kind      string    `json:"kind"`
	Method    *string   `json:"method"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Enabled   *bool     `json:"enabled"`
}

// updateProgramRequest is the request body for PATCH /programs/{id}.
// Kind and zone are fixed at creation; enabled has its own endpoint.
type updateProgramRequest struct {
	Method    *string    `json:"method"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// enabledRequest is the request body for PATCH /programs/{id}/enabled.
type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

// handleListPrograms returns all programs, with optional zone_id filter.
func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		programs []schedule.Program
		err      error
	)
	if zoneID := r.URL.Query().Get("zone_id"); zoneID != "" {
		programs, err = s.programs.ListByZone(ctx, zoneID)
	} else {
		programs, err = s.programs.List(ctx)
	}
	if err != nil {
		writeInternalError(w, "failed to list programs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": programs, "count": len(programs)})
}

// handleListZonePrograms returns the programs attached to a zone.
func (s *Server) handleListZonePrograms(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.facility.GetZone(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	programs, err := s.programs.ListByZone(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list programs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": programs, "count": len(programs)})
}

// handleCreateProgram creates a new activation program. Validation and
// the per-zone overlap check run in one transaction; an overlapping
// window for the same zone and kind is a conflict.
func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req createProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p := &schedule.Program{
		ID:        schedule.GenerateID(),
		ZoneID:    req.ZoneID,
		Kind:      schedule.Kind(req.Kind),
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Enabled:   true,
	}
	if req.Method != nil {
		m := schedule.Method(*req.Method)
		p.Method = &m
	}
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}

	if err := s.programs.Create(r.Context(), p, time.Now().UTC()); err != nil {
		s.writeDomainError(w, err)
		return
	}

	created, err := s.programs.Get(r.Context(), p.ID)
	if err != nil {
		writeInternalError(w, "failed to read created program")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetProgram returns a single program by ID.
func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	p, err := s.programs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdateProgram updates a program's window or method. Rejected
// while the program is enabled and inside its window.
func (s *Server) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.programs.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.StartTime != nil {
		p.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		p.EndTime = req.EndTime.UTC()
	}
	if req.Method != nil {
		m := schedule.Method(*req.Method)
		p.Method = &m
	}

	if err := s.programs.Update(r.Context(), p, time.Now().UTC()); err != nil {
		s.writeDomainError(w, err)
		return
	}

	updated, err := s.programs.Get(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to read updated program")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteProgram deletes a program. Rejected while the program is
// enabled and inside its window.
func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	if err := s.programs.Delete(r.Context(), chi.URLParam(r, "id"), time.Now().UTC()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleSetProgramEnabled toggles a program through the evaluator, which
// handles the mid-window history write and notification edges.
func (s *Server) handleSetProgramEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.evaluator.ToggleEnabled(r.Context(), id, req.Enabled)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleActiveMap returns both activation maps from the evaluator's last
// tick. Every zone appears: false when nothing is active, the method
// string for active irrigation, true for active lighting.
func (s *Server) handleActiveMap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"irrigation": s.evaluator.IrrigationMap(),
		"lighting":   s.evaluator.LightingMap(),
	})
}

// handleActivationHistory returns activation history for a program kind,
// newest first.
func (s *Server) handleActivationHistory(w http.ResponseWriter, r *http.Request) {
	kind := schedule.Kind(chi.URLParam(r, "kind"))
	if !schedule.ValidKind(string(kind)) {
		writeBadRequest(w, "kind must be irrigation or lighting")
		return
	}

	records, err := s.programs.ListHistory(r.Context(), kind, queryLimit(r))
	if err != nil {
		writeInternalError(w, "failed to list activation history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records, "count": len(records)})
}

// handleProgramHistory returns one program's activation history.
func (s *Server) handleProgramHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.programs.Get(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	records, err := s.programs.ListHistoryByProgram(r.Context(), id, queryLimit(r))
	if err != nil {
		writeInternalError(w, "failed to list activation history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records, "count": len(records)})
}
