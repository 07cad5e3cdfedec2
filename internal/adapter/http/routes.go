package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/bizops/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. A nil
// limiter disables rate limiting of the entitlement checks.
func MountRoutes(r chi.Router, h *Handlers, limiter *middleware.RateLimiter, triggerToken string) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Catalog and tier matrix
		r.Get("/catalog", h.GetCatalog)
		r.Put("/tiers/{tier}/capabilities/{key}", h.SetTierMapping)

		// Tenants
		r.Get("/tenants", h.ListTenants)
		r.Post("/tenants", h.CreateTenant)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Use(tenantFromPath)

			r.Get("/", h.GetTenant)
			r.Put("/tier", h.UpdateTenantTier)

			// Entitlement checks
			r.Group(func(r chi.Router) {
				if limiter != nil {
					r.Use(limiter.Handler)
				}
				r.Get("/entitlements/{key}", h.CheckEntitlement)
				r.Post("/entitlements/batch", h.CheckEntitlements)
			})

			// Overrides
			r.Get("/overrides", h.ListOverrides)
			r.Put("/overrides/{key}", h.SetOverride)
			r.Delete("/overrides/{key}", h.ClearOverride)

			// Scheduling
			r.Post("/definitions", h.CreateDefinition)
			r.Get("/work-items/{id}", h.GetWorkItem)
			r.Post("/work-items/{id}/status", h.TransitionWorkItem)
			r.Get("/digest", h.GetDigest)
		})

		// Scheduler trigger (shared secret)
		r.Route("/internal/scheduler", func(r chi.Router) {
			r.Use(middleware.SharedToken(triggerToken, middleware.HeaderSchedulerToken))
			r.Post("/run", h.RunScheduler)
			r.Get("/runs/last", h.LastRun)
		})
	})
}
