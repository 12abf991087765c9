/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for frontend
  5. RequireAuth: JWT validation on everything except register/login
                  and /metrics

ROUTE GROUPS:
  /api/register, /api/login   Public auth
  /api/user(s)                Identity and admin user management
  /api/transactions/*         Submission, listing, stats, decisions
  /api/replenishments/*       Float injection requests
  /api/settings/*             Configuration
  /api/export/*               CSV export
  /uploads/*                  Receipt files (authenticated)
  /metrics                    Prometheus scrape endpoint

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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/floatworks/pettycash/ledger"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public auth routes
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		// Everything else requires a session
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Get("/user", h.GetCurrentUser)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.requireAction(ledger.ActionManageUsers, h.ListUsers))
				r.Patch("/{id}/role", h.requireAction(ledger.ActionManageUsers, h.UpdateUserRole))
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", h.CreateTransaction)
				r.Get("/", h.ListTransactions)
				r.Get("/stats", h.GetStats)
				r.Get("/{id}", h.GetTransaction)
				r.Patch("/{id}/status", h.DecideTransaction)
			})

			r.Route("/replenishments", func(r chi.Router) {
				r.Post("/", h.CreateReplenishment)
				r.Get("/", h.ListReplenishments)
				r.Patch("/{id}/status", h.DecideReplenishment)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/{key}", h.GetSetting)
				r.Put("/{key}", h.requireAction(ledger.ActionEditSettings, h.UpdateSetting))
			})

			r.Get("/export/transactions", h.ExportTransactions)
		})
	})

	// Receipt files, authenticated
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Handle("/uploads/*", http.StripPrefix("/uploads/",
			http.FileServer(http.Dir(h.UploadDir))))
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
