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

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Hub endpoints
			r.Route("/hubs", func(r chi.Router) {
				r.Get("/", s.handleListHubs)
				r.Post("/", s.handleAddHub)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetHub)
					r.Patch("/", s.handleUpdateHub)
					r.Delete("/", s.handleRemoveHub)
					r.Post("/refresh", s.handleRefreshHub)
				})
			})

			// Cross-hub refresh
			r.Post("/refresh", s.handleRefreshAll)

			// Device endpoints (unified view across hubs)
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Put("/properties", s.handleSetDeviceProperties)
					r.Get("/snapshot", s.handleSnapshot)
				})
			})

			// Settings endpoints
			r.Route("/settings", func(r chi.Router) {
				r.Get("/", s.handleGetSettings)
				r.Patch("/", s.handleUpdateSettings)
			})

			// WebSocket event stream
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
