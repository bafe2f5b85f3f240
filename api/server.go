/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend, origins from config

ROUTE GROUPS:
  /api/municipalities/*  Registry
  /api/facts/*           Base fact entry
  /api/availability      Data coverage
  /api/losses/*          Computation and results
  /api/plans/*           Plan maintenance
  /api/scenarios/*       Demo data and reset (dev only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/municipalities", func(r chi.Router) {
			r.Get("/", h.ListMunicipalities)
			r.Post("/", h.CreateMunicipality)
		})

		r.Route("/facts", func(r chi.Router) {
			r.Put("/energy", h.PutEnergyFact)
			r.Put("/billing", h.PutBillingFact)
		})

		r.Get("/availability", h.GetAvailability)

		r.Route("/losses", func(r chi.Router) {
			r.Get("/", h.GetLosses)
			r.Post("/compute", h.ComputeLosses)
			r.Get("/export", h.ExportLosses)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Put("/", h.SavePlan)
			r.Delete("/", h.DeletePlan)
			r.Post("/copy", h.CopyPlans)
			r.Post("/defaults", h.GenerateDefaultPlans)
			r.Post("/import", h.ImportPlans)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Distribution Loss Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Distribution Loss Engine API</h1>
<ul>
<li><a href="/api/municipalities">/api/municipalities</a> - Municipality registry</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
