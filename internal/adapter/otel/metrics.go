package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "bizops"

// Metrics holds all bizops metric instruments.
type Metrics struct {
	EntitlementChecks   metric.Int64Counter
	EntitlementCacheHit metric.Int64Counter
	EntitlementMisses   metric.Int64Counter
	Invalidations       metric.Int64Counter
	ItemsSpawned        metric.Int64Counter
	ItemsAllocated      metric.Int64Counter
	ItemsCarried        metric.Int64Counter
	ItemsOverdue        metric.Int64Counter
	TenantPassFailures  metric.Int64Counter
	TenantPassDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.EntitlementChecks, err = meter.Int64Counter("bizops.entitlement.checks",
		metric.WithDescription("Number of entitlement resolutions"))
	if err != nil {
		return nil, err
	}

	m.EntitlementCacheHit, err = meter.Int64Counter("bizops.entitlement.cache_hits",
		metric.WithDescription("Entitlement resolutions served from cache"))
	if err != nil {
		return nil, err
	}

	m.EntitlementMisses, err = meter.Int64Counter("bizops.entitlement.cache_misses",
		metric.WithDescription("Entitlement resolutions computed from the store"))
	if err != nil {
		return nil, err
	}

	m.Invalidations, err = meter.Int64Counter("bizops.entitlement.invalidations",
		metric.WithDescription("Cache entries removed by invalidation"))
	if err != nil {
		return nil, err
	}

	m.ItemsSpawned, err = meter.Int64Counter("bizops.scheduler.items_spawned",
		metric.WithDescription("Work items created by recurrence expansion"))
	if err != nil {
		return nil, err
	}

	m.ItemsAllocated, err = meter.Int64Counter("bizops.scheduler.items_allocated",
		metric.WithDescription("Work items allocated to staff"))
	if err != nil {
		return nil, err
	}

	m.ItemsCarried, err = meter.Int64Counter("bizops.scheduler.items_carried",
		metric.WithDescription("Work items carried over to the next day"))
	if err != nil {
		return nil, err
	}

	m.ItemsOverdue, err = meter.Int64Counter("bizops.scheduler.items_overdue",
		metric.WithDescription("Work items marked overdue at carry-over"))
	if err != nil {
		return nil, err
	}

	m.TenantPassFailures, err = meter.Int64Counter("bizops.scheduler.tenant_failures",
		metric.WithDescription("Tenant daily passes that ended with an error"))
	if err != nil {
		return nil, err
	}

	m.TenantPassDuration, err = meter.Float64Histogram("bizops.scheduler.tenant_duration_seconds",
		metric.WithDescription("Duration of a tenant daily pass in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
