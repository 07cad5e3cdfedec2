package http_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/domain/staff"
	"github.com/Strob0t/bizops/internal/domain/tenant"
	"github.com/Strob0t/bizops/internal/domain/workitem"
	"github.com/Strob0t/bizops/internal/port/database"
)

var _ database.Store = (*mockStore)(nil)

// mockStore is a small in-memory database.Store for handler tests.
type mockStore struct {
	mu        sync.Mutex
	seq       int
	tenants   map[string]*tenant.Tenant
	mappings  map[string]entitlement.TierMapping
	overrides map[string]entitlement.Override
	defs      []workitem.Definition
	items     map[string]*workitem.WorkItem
	staff     []staff.Member
	tenantErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:   make(map[string]*tenant.Tenant),
		mappings:  make(map[string]entitlement.TierMapping),
		overrides: make(map[string]entitlement.Override),
		items:     make(map[string]*workitem.WorkItem),
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *mockStore) addTenant(id, tier, tz string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[id] = &tenant.Tenant{ID: id, Name: id, Slug: id, Tier: tier, Timezone: tz, Enabled: enabled}
}

func (m *mockStore) addItem(it workitem.WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = &it
}

// --- tenants ---

func (m *mockStore) CreateTenant(_ context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Slug == req.Slug {
			return nil, fmt.Errorf("slug taken: %w", domain.ErrConflict)
		}
	}
	t := &tenant.Tenant{ID: m.nextID("tenant"), Name: req.Name, Slug: req.Slug, Tier: req.Tier, Timezone: req.Timezone, Enabled: true}
	m.tenants[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tenantErr != nil {
		return nil, m.tenantErr
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) UpdateTenantTier(_ context.Context, id string, tier entitlement.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Tier = string(tier)
	return nil
}

func (m *mockStore) ListTenantIDsByTier(_ context.Context, tier entitlement.Tier) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, t := range m.tenants {
		if t.Tier == string(tier) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// --- entitlements ---

func (m *mockStore) UpsertCapability(context.Context, entitlement.Capability) error { return nil }

func mappingKey(tier entitlement.Tier, key entitlement.Key) string {
	return string(tier) + "/" + string(key)
}

func (m *mockStore) GetTierMapping(_ context.Context, tier entitlement.Tier, key entitlement.Key) (*entitlement.TierMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.mappings[mappingKey(tier, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tm, nil
}

func (m *mockStore) UpsertTierMapping(_ context.Context, tm entitlement.TierMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[mappingKey(tm.Tier, tm.Capability)] = tm
	return nil
}

func overrideKey(tenantID string, key entitlement.Key) string { return tenantID + "/" + string(key) }

func (m *mockStore) GetOverride(_ context.Context, tenantID string, key entitlement.Key) (*entitlement.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides[overrideKey(tenantID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (m *mockStore) ListOverrides(_ context.Context, tenantID string) ([]entitlement.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entitlement.Override
	for _, o := range m.overrides {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out, nil
}

func (m *mockStore) UpsertOverride(_ context.Context, o entitlement.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[overrideKey(o.TenantID, o.Capability)] = o
	return nil
}

func (m *mockStore) DeleteOverride(_ context.Context, tenantID string, key entitlement.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := overrideKey(tenantID, key)
	if _, ok := m.overrides[k]; !ok {
		return domain.ErrNotFound
	}
	delete(m.overrides, k)
	return nil
}

// --- scheduling ---

func (m *mockStore) CreateDefinition(_ context.Context, tenantID string, req workitem.CreateDefinitionRequest) (*workitem.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := workitem.Definition{
		ID: m.nextID("def"), TenantID: tenantID, Title: req.Title, Description: req.Description,
		Priority: req.Priority, Recurrence: req.Recurrence, Active: true,
	}
	m.defs = append(m.defs, d)
	return &d, nil
}

func (m *mockStore) ListActiveDefinitions(_ context.Context, tenantID string) ([]workitem.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []workitem.Definition
	for _, d := range m.defs {
		if d.TenantID == tenantID && d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) SpawnWorkItem(_ context.Context, def *workitem.Definition, item workitem.WorkItem, spawnedAt time.Time) (*workitem.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.defs {
		if m.defs[i].ID == def.ID {
			at := spawnedAt
			m.defs[i].LastSpawnedAt = &at
		}
	}
	item.ID = m.nextID("item")
	m.items[item.ID] = &item
	cp := item
	return &cp, nil
}

func (m *mockStore) GetWorkItem(_ context.Context, tenantID, id string) (*workitem.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *mockStore) UpdateWorkItemStatus(_ context.Context, tenantID, id string, from, to workitem.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID {
		return domain.ErrNotFound
	}
	if it.Status != from {
		return domain.ErrConflict
	}
	it.Status = to
	return nil
}

func (m *mockStore) filter(fn func(*workitem.WorkItem) bool) []workitem.WorkItem {
	var out []workitem.WorkItem
	for _, it := range m.items {
		if fn(it) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockStore) ListPendingDueBy(_ context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(it *workitem.WorkItem) bool {
		return it.TenantID == tenantID && it.Status == workitem.StatusPending && !it.DueDate.After(day)
	}), nil
}

func (m *mockStore) ListOpenAllocatedOn(_ context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(it *workitem.WorkItem) bool {
		return it.TenantID == tenantID && it.AllocatedDate != nil && it.AllocatedDate.Equal(day) && !it.Status.IsTerminal()
	}), nil
}

func (m *mockStore) AssignWorkItem(_ context.Context, tenantID, id, staffID string, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID {
		return domain.ErrNotFound
	}
	d := day
	it.AssignedTo, it.AllocatedDate = staffID, &d
	return nil
}

func (m *mockStore) CarryWorkItem(_ context.Context, tenantID, id string, from, to time.Time, status workitem.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID || it.AllocatedDate == nil || !it.AllocatedDate.Equal(from) || it.Status.IsTerminal() {
		return domain.ErrNotFound
	}
	d := to
	it.AllocatedDate, it.Status = &d, status
	return nil
}

func (m *mockStore) ListActiveStaff(_ context.Context, tenantID string) ([]staff.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []staff.Member
	for _, s := range m.staff {
		if s.TenantID == tenantID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) CountLoads(_ context.Context, tenantID string, day time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loads := make(map[string]int)
	for _, it := range m.items {
		if it.TenantID == tenantID && it.AssignedTo != "" && it.AllocatedDate != nil &&
			it.AllocatedDate.Equal(day) && it.Status.CountsAsLoad() {
			loads[it.AssignedTo]++
		}
	}
	return loads, nil
}

func (m *mockStore) LockAllocation(context.Context, string) (func(), error) { return func() {}, nil }

// --- digest ---

func (m *mockStore) CountItemsDueOn(_ context.Context, tenantID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(func(it *workitem.WorkItem) bool {
		return it.TenantID == tenantID && it.DueDate.Equal(day) && it.Status != workitem.StatusCancelled
	})), nil
}

func (m *mockStore) CountItemsOverdue(_ context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(func(it *workitem.WorkItem) bool {
		return it.TenantID == tenantID && it.Status == workitem.StatusOverdue
	})), nil
}

func (m *mockStore) CountAttendance(context.Context, string, time.Time) (int, error) { return 0, nil }

func (m *mockStore) CountLeadsBetween(context.Context, string, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (m *mockStore) SumUnpaidInvoicesDueBy(context.Context, string, time.Time) (int, int64, error) {
	return 0, 0, nil
}
