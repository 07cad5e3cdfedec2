package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/domain/tenant"
	"github.com/Strob0t/bizops/internal/port/database"
)

// Invalidator drops cached decisions after a write commits.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string, keys ...entitlement.Key) error
}

// EntitlementAdminService writes overrides, tier mappings and tenant tiers
// and keeps the resolution cache coherent with each write.
type EntitlementAdminService struct {
	store       database.Store
	catalog     *entitlement.Catalog
	invalidator Invalidator
	now         func() time.Time
}

// NewEntitlementAdminService creates a new EntitlementAdminService.
func NewEntitlementAdminService(store database.Store, catalog *entitlement.Catalog, inv Invalidator) *EntitlementAdminService {
	return &EntitlementAdminService{store: store, catalog: catalog, invalidator: inv, now: time.Now}
}

func (s *EntitlementAdminService) checkKey(key entitlement.Key) error {
	if !s.catalog.Known(key) {
		return domain.Invalid("unknown capability %q", key)
	}
	return nil
}

func (s *EntitlementAdminService) invalidate(ctx context.Context, tenantID string, keys ...entitlement.Key) {
	if err := s.invalidator.Invalidate(ctx, tenantID, keys...); err != nil {
		slog.Warn("entitlement invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

// ListOverrides returns every stored override of a tenant, expired ones included.
func (s *EntitlementAdminService) ListOverrides(ctx context.Context, tenantID string) ([]entitlement.Override, error) {
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.ListOverrides(ctx, tenantID)
}

// SetOverride creates or replaces the override of one capability for a tenant.
func (s *EntitlementAdminService) SetOverride(ctx context.Context, tenantID string, key entitlement.Key, req entitlement.SetOverrideRequest) (*entitlement.Override, error) {
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, domain.Invalid("expires_at must be in the future")
	}
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	o := entitlement.Override{
		TenantID:   tenantID,
		Capability: key,
		Enabled:    req.Enabled,
		ExpiresAt:  req.ExpiresAt,
	}
	if err := s.store.UpsertOverride(ctx, o); err != nil {
		return nil, fmt.Errorf("upsert override: %w", err)
	}
	s.invalidate(ctx, tenantID, key)
	slog.Info("override set", "tenant_id", tenantID, "capability", key, "enabled", req.Enabled)
	return &o, nil
}

// ClearOverride removes a tenant's override so the tier mapping applies again.
func (s *EntitlementAdminService) ClearOverride(ctx context.Context, tenantID string, key entitlement.Key) error {
	if err := s.checkKey(key); err != nil {
		return err
	}
	if err := s.store.DeleteOverride(ctx, tenantID, key); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID, key)
	slog.Info("override cleared", "tenant_id", tenantID, "capability", key)
	return nil
}

// SetTierMapping creates or replaces the mapping of one capability for a
// tier and invalidates that capability for every tenant on the tier.
func (s *EntitlementAdminService) SetTierMapping(ctx context.Context, tier entitlement.Tier, key entitlement.Key, req entitlement.SetTierMappingRequest) (*entitlement.TierMapping, error) {
	if !tier.Valid() {
		return nil, domain.Invalid("invalid tier %q", tier)
	}
	if err := s.checkKey(key); err != nil {
		return nil, err
	}

	m := entitlement.TierMapping{
		Tier:       tier,
		Capability: key,
		Enabled:    req.Enabled,
		Limits:     req.Limits.Clone(),
	}
	if err := s.store.UpsertTierMapping(ctx, m); err != nil {
		return nil, fmt.Errorf("upsert tier mapping: %w", err)
	}

	ids, err := s.store.ListTenantIDsByTier(ctx, tier)
	if err != nil {
		// Mapping is committed; cached decisions age out within one TTL.
		slog.Warn("list tenants for invalidation failed", "tier", tier, "error", err)
		return &m, nil
	}
	for _, id := range ids {
		s.invalidate(ctx, id, key)
	}
	slog.Info("tier mapping set", "tier", tier, "capability", key, "enabled", req.Enabled, "tenants", len(ids))
	return &m, nil
}

// UpdateTenantTier records the tier the billing collaborator reports for a
// tenant and drops all of its cached decisions.
func (s *EntitlementAdminService) UpdateTenantTier(ctx context.Context, tenantID string, req tenant.UpdateTierRequest) (*tenant.Tenant, error) {
	tier := entitlement.Tier(req.Tier)
	if !tier.Valid() {
		return nil, domain.Invalid("invalid tier %q", req.Tier)
	}
	if err := s.store.UpdateTenantTier(ctx, tenantID, tier); err != nil {
		return nil, err
	}
	s.invalidate(ctx, tenantID)
	return s.store.GetTenant(ctx, tenantID)
}

// SeedCatalog upserts the catalog's capabilities and tier matrix into the
// store. It is safe to run repeatedly.
func (s *EntitlementAdminService) SeedCatalog(ctx context.Context) error {
	for _, c := range s.catalog.Capabilities() {
		if err := s.store.UpsertCapability(ctx, c); err != nil {
			return fmt.Errorf("seed capability %s: %w", c.Key, err)
		}
	}
	mappings := 0
	for _, tier := range s.catalog.Tiers() {
		for _, m := range s.catalog.TierMappings(tier) {
			if err := s.store.UpsertTierMapping(ctx, m); err != nil {
				return fmt.Errorf("seed tier mapping %s/%s: %w", tier, m.Capability, err)
			}
			mappings++
		}
	}
	slog.Info("catalog seeded", "capabilities", len(s.catalog.Keys()), "tier_mappings", mappings)
	return nil
}
