// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/domain/staff"
	"github.com/Strob0t/bizops/internal/domain/tenant"
	"github.com/Strob0t/bizops/internal/domain/workitem"
)

// TenantStore gives access to tenant records.
type TenantStore interface {
	CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error)
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	UpdateTenantTier(ctx context.Context, id string, tier entitlement.Tier) error
	ListTenantIDsByTier(ctx context.Context, tier entitlement.Tier) ([]string, error)
}

// EntitlementStore gives access to capabilities, tier mappings and
// tenant overrides. Lookups return domain.ErrNotFound when absent.
type EntitlementStore interface {
	UpsertCapability(ctx context.Context, c entitlement.Capability) error

	GetTierMapping(ctx context.Context, tier entitlement.Tier, key entitlement.Key) (*entitlement.TierMapping, error)
	UpsertTierMapping(ctx context.Context, m entitlement.TierMapping) error

	GetOverride(ctx context.Context, tenantID string, key entitlement.Key) (*entitlement.Override, error)
	ListOverrides(ctx context.Context, tenantID string) ([]entitlement.Override, error)
	UpsertOverride(ctx context.Context, o entitlement.Override) error
	DeleteOverride(ctx context.Context, tenantID string, key entitlement.Key) error
}

// SchedulingStore gives access to definitions, work items and staff.
// Calendar days are midnight-UTC values (see workitem.Day).
type SchedulingStore interface {
	// Definitions
	CreateDefinition(ctx context.Context, tenantID string, req workitem.CreateDefinitionRequest) (*workitem.Definition, error)
	ListActiveDefinitions(ctx context.Context, tenantID string) ([]workitem.Definition, error)

	// SpawnWorkItem inserts item and records spawnedAt on def in one
	// transaction. It returns domain.ErrConflict when def.LastSpawnedAt no
	// longer matches the stored value (another pass spawned first).
	SpawnWorkItem(ctx context.Context, def *workitem.Definition, item workitem.WorkItem, spawnedAt time.Time) (*workitem.WorkItem, error)

	// Work items
	GetWorkItem(ctx context.Context, tenantID, id string) (*workitem.WorkItem, error)
	UpdateWorkItemStatus(ctx context.Context, tenantID, id string, from, to workitem.Status) error
	// ListPendingDueBy returns pending items due on or before day, except
	// those allocated to the day before day: carry-over owns those.
	ListPendingDueBy(ctx context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error)
	ListOpenAllocatedOn(ctx context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error)
	AssignWorkItem(ctx context.Context, tenantID, id, staffID string, day time.Time) error
	// CarryWorkItem moves an item still open on from to the day to with the
	// given status; domain.ErrNotFound means it was closed meanwhile.
	CarryWorkItem(ctx context.Context, tenantID, id string, from, to time.Time, status workitem.Status) error

	// Staff
	ListActiveStaff(ctx context.Context, tenantID string) ([]staff.Member, error)
	// CountLoads returns per-staff counts of pending and in-progress items
	// allocated to day.
	CountLoads(ctx context.Context, tenantID string, day time.Time) (map[string]int, error)

	// LockAllocation serializes allocation passes for a tenant across
	// processes. The returned release func must always be called.
	LockAllocation(ctx context.Context, tenantID string) (release func(), err error)
}

// DigestStore gives read-only counts over work items and the data sets
// owned by collaborators (attendance, leads, invoices).
type DigestStore interface {
	CountItemsDueOn(ctx context.Context, tenantID string, day time.Time) (int, error)
	CountItemsOverdue(ctx context.Context, tenantID string) (int, error)
	CountAttendance(ctx context.Context, tenantID string, day time.Time) (int, error)
	CountLeadsBetween(ctx context.Context, tenantID string, start, end time.Time) (int, error)
	SumUnpaidInvoicesDueBy(ctx context.Context, tenantID string, day time.Time) (count int, totalCents int64, err error)
}

// Store is the port interface for database operations.
type Store interface {
	TenantStore
	EntitlementStore
	SchedulingStore
	DigestStore
}
