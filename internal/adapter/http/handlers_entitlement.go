package http

import (
	"errors"
	"net/http"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
)

const maxBatchKeys = 100

type catalogResponse struct {
	Capabilities []entitlement.Capability                    `json:"capabilities"`
	Tiers        map[entitlement.Tier][]entitlement.TierMapping `json:"tiers"`
}

type batchRequest struct {
	Capabilities []entitlement.Key `json:"capabilities"`
}

type batchResponse struct {
	TenantID  string                                   `json:"tenant_id"`
	Decisions map[entitlement.Key]entitlement.Decision `json:"decisions"`
}

// tenantContext loads the caller's tenant. Unknown and disabled tenants
// resolve with an empty context, which the resolver denies.
func (h *Handlers) tenantContext(w http.ResponseWriter, r *http.Request) (entitlement.TenantContext, bool) {
	tc, err := h.Tenants.Context(r.Context(), urlParam(r, "tenantID"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return entitlement.TenantContext{}, true
		}
		writeInternalError(w, err)
		return tc, false
	}
	return tc, true
}

// GetCatalog handles GET /api/v1/catalog
func (h *Handlers) GetCatalog(w http.ResponseWriter, _ *http.Request) {
	cat := h.Resolver.Catalog()
	resp := catalogResponse{
		Capabilities: cat.Capabilities(),
		Tiers:        make(map[entitlement.Tier][]entitlement.TierMapping),
	}
	for _, tier := range cat.Tiers() {
		resp.Tiers[tier] = cat.TierMappings(tier)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckEntitlement handles GET /api/v1/tenants/{tenantID}/entitlements/{key}
func (h *Handlers) CheckEntitlement(w http.ResponseWriter, r *http.Request) {
	tc, ok := h.tenantContext(w, r)
	if !ok {
		return
	}
	d, err := h.Resolver.Resolve(r.Context(), entitlement.Key(urlParam(r, "key")), tc)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CheckEntitlements handles POST /api/v1/tenants/{tenantID}/entitlements/batch
func (h *Handlers) CheckEntitlements(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[batchRequest](w, r)
	if !ok {
		return
	}
	if len(req.Capabilities) == 0 {
		writeError(w, http.StatusBadRequest, "capabilities is required")
		return
	}
	if len(req.Capabilities) > maxBatchKeys {
		writeError(w, http.StatusBadRequest, "too many capabilities (max 100)")
		return
	}

	tc, ok := h.tenantContext(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{
		TenantID:  urlParam(r, "tenantID"),
		Decisions: h.Resolver.ResolveBatch(r.Context(), req.Capabilities, tc),
	})
}

// ListOverrides handles GET /api/v1/tenants/{tenantID}/overrides
func (h *Handlers) ListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.Admin.ListOverrides(r.Context(), urlParam(r, "tenantID"))
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	if overrides == nil {
		overrides = []entitlement.Override{}
	}
	writeJSON(w, http.StatusOK, overrides)
}

// SetOverride handles PUT /api/v1/tenants/{tenantID}/overrides/{key}
func (h *Handlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[entitlement.SetOverrideRequest](w, r)
	if !ok {
		return
	}
	o, err := h.Admin.SetOverride(r.Context(), urlParam(r, "tenantID"), entitlement.Key(urlParam(r, "key")), req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ClearOverride handles DELETE /api/v1/tenants/{tenantID}/overrides/{key}
func (h *Handlers) ClearOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.ClearOverride(r.Context(), urlParam(r, "tenantID"), entitlement.Key(urlParam(r, "key"))); err != nil {
		writeDomainError(w, err, "override not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetTierMapping handles PUT /api/v1/tiers/{tier}/capabilities/{key}
func (h *Handlers) SetTierMapping(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[entitlement.SetTierMappingRequest](w, r)
	if !ok {
		return
	}
	m, err := h.Admin.SetTierMapping(r.Context(), entitlement.Tier(urlParam(r, "tier")), entitlement.Key(urlParam(r, "key")), req)
	if err != nil {
		writeDomainError(w, err, "capability not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
