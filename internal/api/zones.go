package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/verdantcl/greenhouse-core/internal/facility"
)

// createZoneRequest is the request body for POST /zones.
type createZoneRequest struct {
	GreenhouseID string `json:"greenhouse_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	State        string `json:"state"`
}

// updateZoneRequest is the request body for PATCH /zones/{id}.
type updateZoneRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// lightingRequest is the request body for PATCH /zones/{id}/lighting.
type lightingRequest struct {
	LightingState string `json:"lighting_state"`
}

// assignCropRequest is the request body for PUT /zones/{id}/current-crop.
type assignCropRequest struct {
	CropID string `json:"crop_id"`
}

// handleListZones returns all zones, with optional greenhouse_id and
// active_only filters.
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		zones []facility.Zone
		err   error
	)
	if greenhouseID := r.URL.Query().Get("greenhouse_id"); greenhouseID != "" {
		zones, err = s.facility.ListZonesByGreenhouse(ctx, greenhouseID)
	} else {
		zones, err = s.facility.ListZones(ctx)
	}
	if err != nil {
		writeInternalError(w, "failed to list zones")
		return
	}

	if r.URL.Query().Get("active_only") == "true" {
		filtered := zones[:0]
		for _, z := range zones {
			if z.State == facility.StateActive {
				filtered = append(filtered, z)
			}
		}
		zones = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}

// handleCreateZone creates a new zone. The parent greenhouse must be
// active.
func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req createZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.State == "" {
		req.State = string(facility.StateActive)
	}

	z := &facility.Zone{
		ID:           facility.GenerateID(),
		GreenhouseID: req.GreenhouseID,
		Name:         req.Name,
		Description:  req.Description,
		State:        facility.State(req.State),
	}

	if err := s.facility.CreateZone(r.Context(), z); err != nil {
		s.writeDomainError(w, err)
		return
	}

	created, err := s.facility.GetZone(r.Context(), z.ID)
	if err != nil {
		writeInternalError(w, "failed to read created zone")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetZone returns a single zone by ID.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	z, err := s.facility.GetZone(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// handleUpdateZone updates a zone's name and description.
func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.facility.GetZone(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.Name != nil {
		z.Name = *req.Name
	}
	if req.Description != nil {
		z.Description = *req.Description
	}

	if err := s.facility.UpdateZone(r.Context(), z); err != nil {
		s.writeDomainError(w, err)
		return
	}

	updated, err := s.facility.GetZone(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to read updated zone")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteZone deletes a zone and recomputes the parent's counters.
func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := s.facility.DeleteZone(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleSetZoneState runs a guarded zone state transition.
func (s *Server) handleSetZoneState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.coordinator.SetZoneState(r.Context(), id, facility.State(req.State))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// handleSetZoneLighting sets the zone's lighting sub-state, independent
// of its lifecycle state.
func (s *Server) handleSetZoneLighting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req lightingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !facility.ValidLightingState(req.LightingState) {
		writeBadRequest(w, "lighting_state must be active or inactive")
		return
	}

	if err := s.coordinator.SetZoneLightingState(r.Context(), id, facility.LightingState(req.LightingState)); err != nil {
		s.writeDomainError(w, err)
		return
	}

	z, err := s.facility.GetZone(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// handleZoneActivation returns the zone's live activation state from the
// evaluator's last tick.
func (s *Server) handleZoneActivation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.facility.GetZone(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	activation := s.evaluator.ZoneActivation(id)
	resp := map[string]any{"active": activation.Active}
	if activation.Method != nil {
		resp["method"] = string(*activation.Method)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetCurrentCrop returns the crop currently assigned to a zone.
func (s *Server) handleGetCurrentCrop(w http.ResponseWriter, r *http.Request) {
	crop, err := s.crops.GetCurrentCrop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, crop)
}

// handleAssignCurrentCrop assigns (or replaces) the zone's current crop.
func (s *Server) handleAssignCurrentCrop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req assignCropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CropID == "" {
		writeBadRequest(w, "crop_id is required")
		return
	}

	if err := s.coordinator.AssignCurrentCrop(r.Context(), id, req.CropID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	crop, err := s.crops.GetCurrentCrop(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to read assigned crop")
		return
	}
	writeJSON(w, http.StatusOK, crop)
}

// handleUnassignCurrentCrop removes the zone's current crop link.
func (s *Server) handleUnassignCurrentCrop(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.UnassignCurrentCrop(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unassigned": true})
}

// handleZoneHistory returns the zone's activation history, newest first.
func (s *Server) handleZoneHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.facility.GetZone(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	records, err := s.programs.ListHistoryByZone(r.Context(), id, queryLimit(r))
	if err != nil {
		writeInternalError(w, "failed to list activation history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records, "count": len(records)})
}

// queryLimit parses the optional limit query parameter. Zero lets the
// repository apply its default.
func queryLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
