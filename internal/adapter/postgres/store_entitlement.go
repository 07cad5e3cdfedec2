package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
)

// --- Capabilities ---

func (s *Store) UpsertCapability(ctx context.Context, c entitlement.Capability) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO capabilities (key, name, active) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = now()`,
		string(c.Key), c.Name, c.Active)
	if err != nil {
		return fmt.Errorf("upsert capability %s: %w", c.Key, err)
	}
	return nil
}

// --- Tier mappings ---

func (s *Store) GetTierMapping(ctx context.Context, tier entitlement.Tier, key entitlement.Key) (*entitlement.TierMapping, error) {
	m := entitlement.TierMapping{Tier: tier, Capability: key}
	var limitsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT enabled, limits FROM tier_mappings WHERE tier = $1 AND capability = $2`,
		string(tier), string(key),
	).Scan(&m.Enabled, &limitsJSON)
	if err != nil {
		return nil, notFoundWrap(err, "get tier mapping %s/%s", tier, key)
	}
	if err := decodeLimits(limitsJSON, &m.Limits); err != nil {
		return nil, fmt.Errorf("tier mapping %s/%s: %w", tier, key, err)
	}
	return &m, nil
}

func (s *Store) UpsertTierMapping(ctx context.Context, m entitlement.TierMapping) error {
	limits := m.Limits
	if limits == nil {
		limits = entitlement.Limits{}
	}
	limitsJSON, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("marshal limits: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tier_mappings (tier, capability, enabled, limits) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tier, capability) DO UPDATE
		 SET enabled = EXCLUDED.enabled, limits = EXCLUDED.limits, updated_at = now()`,
		string(m.Tier), string(m.Capability), m.Enabled, limitsJSON)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("upsert tier mapping %s/%s: unknown capability: %w", m.Tier, m.Capability, domain.ErrValidation)
		}
		return fmt.Errorf("upsert tier mapping %s/%s: %w", m.Tier, m.Capability, err)
	}
	return nil
}

func decodeLimits(data []byte, dst *entitlement.Limits) error {
	if len(data) == 0 {
		return nil
	}
	var ls entitlement.Limits
	if err := json.Unmarshal(data, &ls); err != nil {
		return fmt.Errorf("decode limits: %w", err)
	}
	if len(ls) > 0 {
		*dst = ls
	}
	return nil
}

// --- Overrides ---

const overrideColumns = `tenant_id, capability, enabled, expires_at`

func scanOverride(row scannable) (entitlement.Override, error) {
	var o entitlement.Override
	var key string
	err := row.Scan(&o.TenantID, &key, &o.Enabled, &o.ExpiresAt)
	o.Capability = entitlement.Key(key)
	return o, err
}

func (s *Store) GetOverride(ctx context.Context, tenantID string, key entitlement.Key) (*entitlement.Override, error) {
	o, err := scanOverride(s.pool.QueryRow(ctx,
		`SELECT `+overrideColumns+` FROM tenant_overrides WHERE tenant_id = $1 AND capability = $2`,
		tenantID, string(key)))
	if err != nil {
		return nil, notFoundWrap(err, "get override %s/%s", tenantID, key)
	}
	return &o, nil
}

func (s *Store) ListOverrides(ctx context.Context, tenantID string) ([]entitlement.Override, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+overrideColumns+` FROM tenant_overrides WHERE tenant_id = $1 ORDER BY capability`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list overrides %s: %w", tenantID, err)
	}
	defer rows.Close()

	overrides := []entitlement.Override{}
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *Store) UpsertOverride(ctx context.Context, o entitlement.Override) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_overrides (tenant_id, capability, enabled, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, capability) DO UPDATE
		 SET enabled = EXCLUDED.enabled, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		o.TenantID, string(o.Capability), o.Enabled, o.ExpiresAt)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidID(err) {
			return fmt.Errorf("upsert override %s/%s: %w", o.TenantID, o.Capability, domain.ErrNotFound)
		}
		return fmt.Errorf("upsert override %s/%s: %w", o.TenantID, o.Capability, err)
	}
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, tenantID string, key entitlement.Key) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tenant_overrides WHERE tenant_id = $1 AND capability = $2`, tenantID, string(key))
	if err != nil && isInvalidID(err) {
		return fmt.Errorf("delete override %s/%s: %w", tenantID, key, domain.ErrNotFound)
	}
	return execExpectOne(tag, err, "delete override %s/%s", tenantID, key)
}
