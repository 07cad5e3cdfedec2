// Package service implements business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/bizops/internal/adapter/otel"
	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/port/cache"
	"github.com/Strob0t/bizops/internal/port/database"
)

// DefaultResolutionTTL is the lifetime of a cached decision.
const DefaultResolutionTTL = 15 * time.Second

// batchConcurrency bounds the parallel lookups of one ResolveBatch call.
const batchConcurrency = 8

// cachedDecision is the cache value. The resolver checks ExpiresAt itself
// and never relies on the backend evicting on time. Tier records the tier
// the decision was resolved for; a caller presenting another tier misses.
type cachedDecision struct {
	Decision  entitlement.Decision `json:"decision"`
	Tier      entitlement.Tier     `json:"tier"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// EntitlementResolver answers "is capability X on for tenant T" using the
// precedence cache, tenant override, tier mapping, default deny.
type EntitlementResolver struct {
	catalog *entitlement.Catalog
	store   database.EntitlementStore
	cache   cache.Cache
	ttl     time.Duration
	metrics *cfotel.Metrics
	group   singleflight.Group
	now     func() time.Time
}

// NewEntitlementResolver creates a resolver. A zero ttl uses DefaultResolutionTTL.
func NewEntitlementResolver(catalog *entitlement.Catalog, store database.EntitlementStore, c cache.Cache, ttl time.Duration) *EntitlementResolver {
	if ttl <= 0 {
		ttl = DefaultResolutionTTL
	}
	return &EntitlementResolver{
		catalog: catalog,
		store:   store,
		cache:   c,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetMetrics enables metric recording.
func (r *EntitlementResolver) SetMetrics(m *cfotel.Metrics) { r.metrics = m }

// Catalog returns the catalog the resolver was built with.
func (r *EntitlementResolver) Catalog() *entitlement.Catalog { return r.catalog }

func cacheKey(tenantID string, key entitlement.Key) string {
	return "ent." + tenantID + "." + string(key)
}

// Resolve returns the decision for key and the tenant in tc. Unknown and
// inactive capabilities are denied, never reported as errors. Store
// failures are returned as errors and nothing is cached.
func (r *EntitlementResolver) Resolve(ctx context.Context, key entitlement.Key, tc entitlement.TenantContext) (entitlement.Decision, error) {
	ctx, span := cfotel.StartResolveSpan(ctx, tc.TenantID, string(key))
	defer span.End()

	capability, ok := r.catalog.Lookup(key)
	if !ok || !capability.Active || tc.TenantID == "" {
		d := entitlement.Deny(key, entitlement.ReasonNotFound)
		r.record(ctx, d, "none")
		return d, nil
	}

	ck := cacheKey(tc.TenantID, key)
	if d, ok := r.lookupCache(ctx, ck, tc.Tier); ok {
		r.record(ctx, d, "hit")
		return d, nil
	}

	v, err, _ := r.group.Do(ck+"@"+string(tc.Tier), func() (any, error) {
		d, expiresAt, err := r.resolveFromStore(ctx, key, tc)
		if err != nil {
			return entitlement.Decision{}, err
		}
		r.storeCache(ctx, ck, tc.Tier, d, expiresAt)
		return d, nil
	})
	if err != nil {
		span.RecordError(err)
		return entitlement.Decision{}, fmt.Errorf("resolve %s for tenant %s: %w", key, tc.TenantID, err)
	}
	d := v.(entitlement.Decision)
	r.record(ctx, d, "miss")
	return d, nil
}

// resolveFromStore applies the override and tier layers and returns the
// decision with the instant its cache entry must expire.
func (r *EntitlementResolver) resolveFromStore(ctx context.Context, key entitlement.Key, tc entitlement.TenantContext) (entitlement.Decision, time.Time, error) {
	now := r.now()
	expiresAt := now.Add(r.ttl)

	o, err := r.store.GetOverride(ctx, tc.TenantID, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return entitlement.Decision{}, time.Time{}, fmt.Errorf("get override: %w", err)
	}

	m, err := r.store.GetTierMapping(ctx, tc.Tier, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return entitlement.Decision{}, time.Time{}, fmt.Errorf("get tier mapping: %w", err)
	}

	if o != nil && o.ActiveAt(now) {
		d := entitlement.Decision{
			Capability: key,
			Enabled:    o.Enabled,
			Reason:     entitlement.ReasonOverride,
			Source:     entitlement.SourceOverride,
		}
		// An enabled override keeps the plan's limits when the plan has any.
		if o.Enabled && m != nil {
			d.Limits = m.Limits.Clone()
		}
		if o.ExpiresAt != nil && o.ExpiresAt.Before(expiresAt) {
			expiresAt = *o.ExpiresAt
		}
		return d, expiresAt, nil
	}

	if m == nil {
		return entitlement.Deny(key, entitlement.ReasonNotInPlan), expiresAt, nil
	}
	d := entitlement.Decision{
		Capability: key,
		Enabled:    m.Enabled,
		Reason:     entitlement.ReasonPlan,
		Source:     entitlement.SourceTier,
		Limits:     m.Limits.Clone(),
	}
	if !m.Enabled {
		d.Reason = entitlement.ReasonPlanDisabled
		d.Limits = nil
	}
	return d, expiresAt, nil
}

func (r *EntitlementResolver) lookupCache(ctx context.Context, ck string, tier entitlement.Tier) (entitlement.Decision, bool) {
	data, ok, err := r.cache.Get(ctx, ck)
	if err != nil {
		slog.Warn("entitlement cache get failed", "key", ck, "error", err)
		return entitlement.Decision{}, false
	}
	if !ok {
		return entitlement.Decision{}, false
	}
	var entry cachedDecision
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("entitlement cache entry corrupt", "key", ck, "error", err)
		return entitlement.Decision{}, false
	}
	if entry.Tier != tier || !r.now().Before(entry.ExpiresAt) {
		return entitlement.Decision{}, false
	}
	return entry.Decision, true
}

func (r *EntitlementResolver) storeCache(ctx context.Context, ck string, tier entitlement.Tier, d entitlement.Decision, expiresAt time.Time) {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(cachedDecision{Decision: d, Tier: tier, ExpiresAt: expiresAt})
	if err != nil {
		slog.Warn("entitlement cache encode failed", "key", ck, "error", err)
		return
	}
	if err := r.cache.Set(ctx, ck, data, ttl); err != nil {
		slog.Warn("entitlement cache set failed", "key", ck, "error", err)
	}
}

func (r *EntitlementResolver) record(ctx context.Context, d entitlement.Decision, cacheState string) {
	if r.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("capability", string(d.Capability)),
		attribute.Bool("enabled", d.Enabled),
		attribute.String("source", string(d.Source)),
	)
	r.metrics.EntitlementChecks.Add(ctx, 1, attrs)
	switch cacheState {
	case "hit":
		r.metrics.EntitlementCacheHit.Add(ctx, 1)
	case "miss":
		r.metrics.EntitlementMisses.Add(ctx, 1)
	}
}

// ResolveBatch resolves keys concurrently. A failed lookup denies that key
// with reason "lookup failed" and does not fail the batch.
func (r *EntitlementResolver) ResolveBatch(ctx context.Context, keys []entitlement.Key, tc entitlement.TenantContext) map[entitlement.Key]entitlement.Decision {
	results := make([]entitlement.Decision, len(keys))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			d, err := r.Resolve(ctx, key, tc)
			if err != nil {
				slog.Warn("entitlement lookup failed", "tenant_id", tc.TenantID, "capability", key, "error", err)
				d = entitlement.Deny(key, entitlement.ReasonLookupFailed)
			}
			results[i] = d
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[entitlement.Key]entitlement.Decision, len(keys))
	for i, key := range keys {
		out[key] = results[i]
	}
	return out
}

// Invalidate removes cached decisions for a tenant. With no keys every
// catalog capability of the tenant is removed. Writers of overrides and
// tier mappings call it after their write commits.
func (r *EntitlementResolver) Invalidate(ctx context.Context, tenantID string, keys ...entitlement.Key) error {
	if len(keys) == 0 {
		keys = r.catalog.Keys()
	}
	var errs []error
	for _, key := range keys {
		ck := cacheKey(tenantID, key)
		for _, tier := range r.catalog.Tiers() {
			r.group.Forget(ck + "@" + string(tier))
		}
		if err := r.cache.Delete(ctx, ck); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", ck, err))
		}
	}
	if r.metrics != nil {
		r.metrics.Invalidations.Add(ctx, int64(len(keys)), metric.WithAttributes(attribute.String("tenant_id", tenantID)))
	}
	return errors.Join(errs...)
}
