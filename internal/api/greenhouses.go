package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdantcl/greenhouse-core/internal/facility"
)

// createGreenhouseRequest is the request body for POST /greenhouses.
type createGreenhouseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"state"`
}

// updateGreenhouseRequest is the request body for PATCH /greenhouses/{id}.
// State changes go through the state endpoint, not here.
type updateGreenhouseRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// stateRequest is the shared request body for state transition endpoints.
type stateRequest struct {
	State string `json:"state"`
}

// handleListGreenhouses returns all greenhouses, with optional
// active_only filter.
func (s *Server) handleListGreenhouses(w http.ResponseWriter, r *http.Request) {
	greenhouses, err := s.facility.ListGreenhouses(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list greenhouses")
		return
	}

	if r.URL.Query().Get("active_only") == "true" {
		filtered := greenhouses[:0]
		for _, g := range greenhouses {
			if g.State == facility.StateActive {
				filtered = append(filtered, g)
			}
		}
		greenhouses = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"greenhouses": greenhouses, "count": len(greenhouses)})
}

// handleCreateGreenhouse creates a new greenhouse. New greenhouses start
// active unless the body says otherwise.
func (s *Server) handleCreateGreenhouse(w http.ResponseWriter, r *http.Request) {
	var req createGreenhouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.State == "" {
		req.State = string(facility.StateActive)
	}

	g := &facility.Greenhouse{
		ID:          facility.GenerateID(),
		Name:        req.Name,
		Description: req.Description,
		State:       facility.State(req.State),
	}

	if err := s.facility.CreateGreenhouse(r.Context(), g); err != nil {
		s.writeDomainError(w, err)
		return
	}

	created, err := s.facility.GetGreenhouse(r.Context(), g.ID)
	if err != nil {
		writeInternalError(w, "failed to read created greenhouse")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetGreenhouse returns a single greenhouse by ID.
func (s *Server) handleGetGreenhouse(w http.ResponseWriter, r *http.Request) {
	g, err := s.facility.GetGreenhouse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleUpdateGreenhouse updates a greenhouse's name and description.
func (s *Server) handleUpdateGreenhouse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateGreenhouseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g, err := s.facility.GetGreenhouse(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.Name != nil {
		g.Name = *req.Name
	}
	if req.Description != nil {
		g.Description = *req.Description
	}

	if err := s.facility.UpdateGreenhouse(r.Context(), g); err != nil {
		s.writeDomainError(w, err)
		return
	}

	updated, err := s.facility.GetGreenhouse(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to read updated greenhouse")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteGreenhouse deletes an inactive greenhouse and everything
// under it.
func (s *Server) handleDeleteGreenhouse(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.DeleteGreenhouse(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleSetGreenhouseState runs a guarded greenhouse state transition.
func (s *Server) handleSetGreenhouseState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g, err := s.coordinator.SetGreenhouseState(r.Context(), id, facility.State(req.State))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleListGreenhouseZones returns the zones under a greenhouse.
func (s *Server) handleListGreenhouseZones(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.facility.GetGreenhouse(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	zones, err := s.facility.ListZonesByGreenhouse(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list zones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}
