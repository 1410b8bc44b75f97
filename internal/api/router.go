package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Program endpoints. The active map is served without auth: it is
		// consumed by external device controllers on the trusted network,
		// alongside the retained MQTT topics.
		r.Route("/programs", func(r chi.Router) {
			r.Get("/active-map", s.handleActiveMap)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Get("/", s.handleListPrograms)
				r.Post("/", s.handleCreateProgram)
				r.Get("/history/{kind}", s.handleActivationHistory)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProgram)
					r.Patch("/", s.handleUpdateProgram)
					r.Delete("/", s.handleDeleteProgram)
					r.Patch("/enabled", s.handleSetProgramEnabled)
					r.Get("/history", s.handleProgramHistory)
				})
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must hold a valid
			// token to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Greenhouse endpoints
			r.Route("/greenhouses", func(r chi.Router) {
				r.Get("/", s.handleListGreenhouses)
				r.With(s.requireAdmin).Post("/", s.handleCreateGreenhouse)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetGreenhouse)
					r.Patch("/", s.handleUpdateGreenhouse)
					r.With(s.requireAdmin).Delete("/", s.handleDeleteGreenhouse)
					r.Patch("/state", s.handleSetGreenhouseState)
					r.Get("/zones", s.handleListGreenhouseZones)
				})
			})

			// Zone endpoints
			r.Route("/zones", func(r chi.Router) {
				r.Get("/", s.handleListZones)
				r.With(s.requireAdmin).Post("/", s.handleCreateZone)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetZone)
					r.Patch("/", s.handleUpdateZone)
					r.With(s.requireAdmin).Delete("/", s.handleDeleteZone)
					r.Patch("/state", s.handleSetZoneState)
					r.Patch("/lighting", s.handleSetZoneLighting)
					r.Get("/activation", s.handleZoneActivation)
					r.Get("/current-crop", s.handleGetCurrentCrop)
					r.Put("/current-crop", s.handleAssignCurrentCrop)
					r.Delete("/current-crop", s.handleUnassignCurrentCrop)
					r.Get("/history", s.handleZoneHistory)
					r.Get("/programs", s.handleListZonePrograms)
				})
			})

			// Crop endpoints
			r.Route("/crops", func(r chi.Router) {
				r.Get("/", s.handleListCrops)
				r.Post("/", s.handleCreateCrop)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCrop)
					r.Patch("/", s.handleUpdateCrop)
					r.With(s.requireAdmin).Delete("/", s.handleDeleteCrop)
					r.Patch("/harvest", s.handleUpdateHarvest)
					r.Post("/finalize", s.handleFinalizeCrop)
				})
			})

			// Notification endpoints
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/mine", s.handleMyNotifications)
				r.Get("/unread-count", s.handleUnreadCount)
				r.Post("/read-all", s.handleMarkAllRead)
				r.Patch("/{id}/read", s.handleMarkRead)
				r.Post("/tokens", s.handleRegisterToken)
				r.Delete("/tokens/{token}", s.handleDeleteToken)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
