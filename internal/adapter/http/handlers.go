package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Strob0t/bizops/internal/domain/tenant"
	"github.com/Strob0t/bizops/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tenants      *service.TenantService
	Resolver     *service.EntitlementResolver
	Admin        *service.EntitlementAdminService
	WorkItems    *service.WorkItemService
	Scheduler    *service.SchedulerService
	Runner       *service.DailyRunner
	Notification *service.NotificationService
	Checks       []HealthCheck
}

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthStatus struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// Health handles GET /health. Any failing dependency turns the response
// into 503 so orchestrators stop routing to this replica.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	code := http.StatusOK
	for _, c := range h.Checks {
		if err := c.Check(ctx); err != nil {
			status.Checks[c.Name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[c.Name] = "ok"
	}
	if h.Notification != nil {
		if states := h.Notification.BreakerStates(); len(states) > 0 {
			status.Breakers = make(map[string]string, len(states))
			for name, s := range states {
				status.Breakers[name] = string(s)
			}
		}
	}
	writeJSON(w, code, status)
}

// ListTenants handles GET /api/v1/tenants
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Tenants.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

// CreateTenant handles POST /api/v1/tenants
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.CreateRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Tenants.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTenant handles GET /api/v1/tenants/{tenantID}
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tenants.Get(r.Context(), urlParam(r, "tenantID"))
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTenantTier handles PUT /api/v1/tenants/{tenantID}/tier
func (h *Handlers) UpdateTenantTier(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[tenant.UpdateTierRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Admin.UpdateTenantTier(r.Context(), urlParam(r, "tenantID"), req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
