package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdantcl/greenhouse-core/internal/facility"
)

// createCropRequest is the request body for POST /crops.
type createCropRequest struct {
	ZoneID      *string `json:"zone_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	HumidityMin float64 `json:"humidity_min"`
	HumidityMax float64 `json:"humidity_max"`
	Unit        string  `json:"unit"`
}

// updateCropRequest is the request body for PATCH /crops/{id}.
// Harvest quantities go through the harvest endpoint; state through
// finalize.
type updateCropRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	TempMin     *float64 `json:"temp_min"`
	TempMax     *float64 `json:"temp_max"`
	HumidityMin *float64 `json:"humidity_min"`
	HumidityMax *float64 `json:"humidity_max"`
}

// harvestRequest is the request body for PATCH /crops/{id}/harvest.
type harvestRequest struct {
	Harvested int `json:"harvested"`
	Reserved  int `json:"reserved"`
}

// handleListCrops returns all crops, with optional zone_id filter.
func (s *Server) handleListCrops(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		crops []facility.Crop
		err   error
	)
	if zoneID := r.URL.Query().Get("zone_id"); zoneID != "" {
		crops, err = s.crops.ListCropsByZone(ctx, zoneID)
	} else {
		crops, err = s.crops.ListCrops(ctx)
	}
	if err != nil {
		writeInternalError(w, "failed to list crops")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crops": crops, "count": len(crops)})
}

// handleCreateCrop starts a new cultivation cycle.
func (s *Server) handleCreateCrop(w http.ResponseWriter, r *http.Request) {
	var req createCropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	c := &facility.Crop{
		ID:          facility.GenerateID(),
		ZoneID:      req.ZoneID,
		Name:        req.Name,
		Description: req.Description,
		TempMin:     req.TempMin,
		TempMax:     req.TempMax,
		HumidityMin: req.HumidityMin,
		HumidityMax: req.HumidityMax,
		Unit:        facility.HarvestUnit(req.Unit),
	}

	if err := s.crops.CreateCrop(r.Context(), c); err != nil {
		s.writeDomainError(w, err)
		return
	}

	created, err := s.crops.GetCrop(r.Context(), c.ID)
	if err != nil {
		writeInternalError(w, "failed to read created crop")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetCrop returns a single crop by ID.
func (s *Server) handleGetCrop(w http.ResponseWriter, r *http.Request) {
	c, err := s.crops.GetCrop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUpdateCrop updates a crop's descriptive fields and tolerance
// bands.
func (s *Server) handleUpdateCrop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateCropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	c, err := s.crops.GetCrop(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.TempMin != nil {
		c.TempMin = *req.TempMin
	}
	if req.TempMax != nil {
		c.TempMax = *req.TempMax
	}
	if req.HumidityMin != nil {
		c.HumidityMin = *req.HumidityMin
	}
	if req.HumidityMax != nil {
		c.HumidityMax = *req.HumidityMax
	}

	if err := s.crops.UpdateCrop(r.Context(), c); err != nil {
		s.writeDomainError(w, err)
		return
	}

	updated, err := s.crops.GetCrop(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to read updated crop")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteCrop deletes a crop.
func (s *Server) handleDeleteCrop(w http.ResponseWriter, r *http.Request) {
	if err := s.crops.DeleteCrop(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handleUpdateHarvest updates the crop's harvest bookkeeping. Available
// is derived, never supplied.
func (s *Server) handleUpdateHarvest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req harvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	c, err := s.crops.UpdateHarvest(r.Context(), id, req.Harvested, req.Reserved)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleFinalizeCrop closes the cultivation cycle. One-way.
func (s *Server) handleFinalizeCrop(w http.ResponseWriter, r *http.Request) {
	c, err := s.coordinator.FinalizeCrop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
