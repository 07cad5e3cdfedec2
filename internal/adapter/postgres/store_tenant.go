package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/domain/tenant"
)

const tenantColumns = `id, name, slug, tier, timezone, enabled, created_at, updated_at`

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Tier, &t.Timezone, &t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// --- Tenants ---

func (s *Store) CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	tz := req.Timezone
	if tz == "" {
		tz = tenant.DefaultTimezone
	}
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, slug, tier, timezone) VALUES ($1, $2, $3, $4)
		 RETURNING `+tenantColumns,
		req.Name, req.Slug, req.Tier, tz))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create tenant %s: slug taken: %w", req.Slug, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) UpdateTenantTier(ctx context.Context, id string, tier entitlement.Tier) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET tier = $2, updated_at = now() WHERE id = $1`, id, string(tier))
	if err != nil && isInvalidID(err) {
		return fmt.Errorf("update tenant tier %s: %w", id, domain.ErrNotFound)
	}
	return execExpectOne(tag, err, "update tenant tier %s", id)
}

func (s *Store) ListTenantIDsByTier(ctx context.Context, tier entitlement.Tier) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM tenants WHERE tier = $1 ORDER BY id`, string(tier))
	if err != nil {
		return nil, fmt.Errorf("list tenants by tier %s: %w", tier, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
