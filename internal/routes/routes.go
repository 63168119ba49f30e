package routes

import (
	"log/slog"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/middleware"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers the router mounts
type Handlers struct {
	Alerts *handlers.AlertHandler
	Events *handlers.EventHandler
	Health *handlers.HealthHandler
}

// Options carries the authentication and inspection dependencies of the routes
type Options struct {
	Verifier      *auth.TokenVerifier
	OperatorRoles []string
	IngestRoles   []string
	Inspector     middleware.PayloadInspector
	IPConfig      *pkghttp.IPConfig
	Metrics       *metrics.Registry
	Logger        *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	// Public routes - no authentication required
	router.Handle("/metrics", opts.Metrics.Handler())
	router.Get("/health", h.Health.Health)
	router.Get("/health/detailed", h.Health.Detailed)

	router.Route("/api/v1", func(r chi.Router) {
		// Operator routes. Their own requests are scanned for injection attempts.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(opts.Verifier, opts.OperatorRoles...))
			r.Use(middleware.ThreatDetection(opts.Inspector, opts.IPConfig, opts.Logger))

			r.Get("/alerts", h.Alerts.ListAlerts)
			r.Get("/alerts/counts", h.Alerts.GetCounts)
			r.Get("/alerts/{id}", h.Alerts.GetAlert)
			commandLimit := middleware.DefaultCommandRateLimit()
			commandLimit.IPConfig = opts.IPConfig
			r.With(middleware.RateLimitByIP(commandLimit)).
				Post("/alerts/{id}/resolve", h.Alerts.ResolveAlert)
		})

		// Ingest routes for the host application. Payload events carry attack
		// strings on purpose, so these bodies are not scanned here.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(opts.Verifier, opts.IngestRoles...))
			ingestLimit := middleware.DefaultIngestRateLimit()
			ingestLimit.IPConfig = opts.IPConfig
			r.Use(middleware.RateLimitBySubject(ingestLimit))

			r.Post("/events/login", h.Events.Login)
			r.Post("/events/upload", h.Events.Upload)
			r.Post("/events/payload", h.Events.Payload)
			r.Post("/events/security", h.Events.Security)
			r.Post("/events/sessions", h.Events.Sessions)
		})
	})
}
