package service

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/domain/tenant"
	"github.com/Strob0t/bizops/internal/port/database"
)

// TenantService manages tenant records.
type TenantService struct {
	store database.TenantStore
}

// NewTenantService creates a new TenantService.
func NewTenantService(store database.TenantStore) *TenantService {
	return &TenantService{store: store}
}

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Create validates and creates a new tenant.
func (s *TenantService) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !slugRegex.MatchString(req.Slug) {
		return nil, domain.Invalid("invalid slug %q: must be 3-64 lowercase alphanumeric characters or hyphens", req.Slug)
	}
	if !entitlement.Tier(req.Tier).Valid() {
		return nil, domain.Invalid("invalid tier %q", req.Tier)
	}
	if req.Timezone == "" {
		req.Timezone = tenant.DefaultTimezone
	}
	return s.store.CreateTenant(ctx, req)
}

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// List returns all tenants.
func (s *TenantService) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Context returns what the resolver needs for an enabled tenant.
func (s *TenantService) Context(ctx context.Context, id string) (entitlement.TenantContext, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return entitlement.TenantContext{}, err
	}
	if !t.Enabled {
		return entitlement.TenantContext{}, fmt.Errorf("tenant %s is disabled: %w", id, domain.ErrNotFound)
	}
	return entitlement.TenantContext{TenantID: t.ID, Tier: entitlement.Tier(t.Tier)}, nil
}
