package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bizops"

// StartResolveSpan starts a span for one entitlement resolution.
func StartResolveSpan(ctx context.Context, tenantID, capability string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "entitlement.resolve",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("entitlement.capability", capability),
		),
	)
}

// StartTenantPassSpan starts a span for a tenant's daily scheduling pass.
func StartTenantPassSpan(ctx context.Context, tenantID string, day time.Time) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "scheduler.tenant_pass",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("scheduler.day", day.Format(time.DateOnly)),
		),
	)
}

// StartStageSpan starts a span for one stage (expand, allocate, carry_over, digest).
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "scheduler."+stage)
}
