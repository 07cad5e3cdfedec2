package service

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

var _ database.Store = (*fakeStore)(nil)

type fakeLead struct {
	tenantID  string
	createdAt time.Time
}

type fakeInvoice struct {
	tenantID   string
	totalCents int64
	paid       bool
	due        time.Time
}

// fakeStore is an in-memory database.Store for service tests.
type fakeStore struct {
	mu sync.Mutex

	tenants      map[string]*tenant.Tenant
	capabilities map[entitlement.Key]entitlement.Capability
	mappings     map[entitlement.Tier]map[entitlement.Key]entitlement.TierMapping
	overrides    map[string]map[entitlement.Key]entitlement.Override
	defs         map[string]*workitem.Definition
	items        map[string]*workitem.WorkItem
	staff        []staff.Member
	attendance   map[string]map[time.Time]int
	leads        []fakeLead
	invoices     []fakeInvoice
	seq          int

	// error hooks
	overrideErr error
	mappingErr  error
	failKey     entitlement.Key // limits mappingErr to one key when set
	defsErr     map[string]error
	assignErr   error
	leadsErr    error

	// call counters
	overrideCalls int
	mappingCalls  int
	lockCalls     int
	lockHeld      bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:      make(map[string]*tenant.Tenant),
		capabilities: make(map[entitlement.Key]entitlement.Capability),
		mappings:     make(map[entitlement.Tier]map[entitlement.Key]entitlement.TierMapping),
		overrides:    make(map[string]map[entitlement.Key]entitlement.Override),
		defs:         make(map[string]*workitem.Definition),
		items:        make(map[string]*workitem.WorkItem),
		attendance:   make(map[string]map[time.Time]int),
		defsErr:      make(map[string]error),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

// --- seeding helpers ---

func (s *fakeStore) addTenant(id, tier, tz string) *tenant.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tenant.Tenant{ID: id, Name: "Tenant " + id, Slug: id, Tier: tier, Timezone: tz, Enabled: true}
	s.tenants[id] = t
	return t
}

func (s *fakeStore) addStaff(tenantID, id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff = append(s.staff, staff.Member{ID: id, TenantID: tenantID, Name: id, Active: active})
}

func (s *fakeStore) addDefinition(d workitem.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := d
	s.defs[d.ID] = &cp
}

func (s *fakeStore) addItem(it workitem.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := it
	s.items[it.ID] = &cp
}

func (s *fakeStore) item(id string) workitem.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.items[id]
}

func (s *fakeStore) itemsOf(tenantID string) []workitem.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []workitem.WorkItem
	for _, it := range s.items {
		if it.TenantID == tenantID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- TenantStore ---

func (s *fakeStore) CreateTenant(_ context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tenant.Tenant{ID: s.nextID("tenant"), Name: req.Name, Slug: req.Slug, Tier: req.Tier, Timezone: req.Timezone, Enabled: true}
	s.tenants[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *fakeStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) UpdateTenantTier(_ context.Context, id string, tier entitlement.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}
	t.Tier = string(tier)
	return nil
}

func (s *fakeStore) ListTenantIDsByTier(_ context.Context, tier entitlement.Tier) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, t := range s.tenants {
		if t.Tier == string(tier) {
			out = append(out, t.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- EntitlementStore ---

func (s *fakeStore) UpsertCapability(_ context.Context, c entitlement.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities[c.Key] = c
	return nil
}

func (s *fakeStore) GetTierMapping(_ context.Context, tier entitlement.Tier, key entitlement.Key) (*entitlement.TierMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappingCalls++
	if s.mappingErr != nil && (s.failKey == "" || s.failKey == key) {
		return nil, s.mappingErr
	}
	m, ok := s.mappings[tier][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.Limits = m.Limits.Clone()
	return &m, nil
}

func (s *fakeStore) UpsertTierMapping(_ context.Context, m entitlement.TierMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mappings[m.Tier] == nil {
		s.mappings[m.Tier] = make(map[entitlement.Key]entitlement.TierMapping)
	}
	s.mappings[m.Tier][m.Capability] = m
	return nil
}

func (s *fakeStore) GetOverride(_ context.Context, tenantID string, key entitlement.Key) (*entitlement.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrideCalls++
	if s.overrideErr != nil {
		return nil, s.overrideErr
	}
	o, ok := s.overrides[tenantID][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (s *fakeStore) ListOverrides(_ context.Context, tenantID string) ([]entitlement.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entitlement.Override, 0, len(s.overrides[tenantID]))
	for _, o := range s.overrides[tenantID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out, nil
}

func (s *fakeStore) UpsertOverride(_ context.Context, o entitlement.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides[o.TenantID] == nil {
		s.overrides[o.TenantID] = make(map[entitlement.Key]entitlement.Override)
	}
	s.overrides[o.TenantID][o.Capability] = o
	return nil
}

func (s *fakeStore) DeleteOverride(_ context.Context, tenantID string, key entitlement.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[tenantID][key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.overrides[tenantID], key)
	return nil
}

// --- SchedulingStore ---

func (s *fakeStore) CreateDefinition(_ context.Context, tenantID string, req workitem.CreateDefinitionRequest) (*workitem.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &workitem.Definition{
		ID: s.nextID("def"), TenantID: tenantID, Title: req.Title, Description: req.Description,
		Priority: req.Priority, Recurrence: req.Recurrence, Active: true,
	}
	s.defs[d.ID] = d
	cp := *d
	return &cp, nil
}

func (s *fakeStore) ListActiveDefinitions(_ context.Context, tenantID string) ([]workitem.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.defsErr[tenantID]; err != nil {
		return nil, err
	}
	var out []workitem.Definition
	for _, d := range s.defs {
		if d.TenantID == tenantID && d.Active {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SpawnWorkItem(_ context.Context, def *workitem.Definition, item workitem.WorkItem, spawnedAt time.Time) (*workitem.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.defs[def.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	switch {
	case stored.LastSpawnedAt == nil && def.LastSpawnedAt == nil:
	case stored.LastSpawnedAt != nil && def.LastSpawnedAt != nil && stored.LastSpawnedAt.Equal(*def.LastSpawnedAt):
	default:
		return nil, domain.ErrConflict
	}
	item.ID = s.nextID("item")
	item.CreatedAt = spawnedAt
	item.UpdatedAt = spawnedAt
	s.items[item.ID] = &item
	at := spawnedAt
	stored.LastSpawnedAt = &at
	cp := item
	return &cp, nil
}

func (s *fakeStore) GetWorkItem(_ context.Context, tenantID, id string) (*workitem.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *fakeStore) UpdateWorkItemStatus(_ context.Context, tenantID, id string, from, to workitem.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.TenantID != tenantID {
		return domain.ErrNotFound
	}
	if it.Status != from {
		return domain.ErrConflict
	}
	it.Status = to
	return nil
}

func (s *fakeStore) ListPendingDueBy(_ context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := workitem.PrevDay(day)
	var out []workitem.WorkItem
	for _, it := range s.items {
		if it.TenantID != tenantID || it.Status != workitem.StatusPending || it.DueDate.After(day) {
			continue
		}
		if it.AllocatedDate != nil && it.AllocatedDate.Equal(prev) {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListOpenAllocatedOn(_ context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []workitem.WorkItem
	for _, it := range s.items {
		if it.TenantID != tenantID || it.AllocatedDate == nil || !it.AllocatedDate.Equal(day) {
			continue
		}
		switch it.Status {
		case workitem.StatusPending, workitem.StatusInProgress, workitem.StatusOverdue:
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) AssignWorkItem(_ context.Context, tenantID, id, staffID string, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return s.assignErr
	}
	it, ok := s.items[id]
	if !ok || it.TenantID != tenantID {
		return domain.ErrNotFound
	}
	d := day
	it.AssignedTo = staffID
	it.AllocatedDate = &d
	return nil
}

func (s *fakeStore) CarryWorkItem(_ context.Context, tenantID, id string, from, to time.Time, status workitem.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.TenantID != tenantID || it.Status.IsTerminal() || it.AllocatedDate == nil || !it.AllocatedDate.Equal(from) {
		return domain.ErrNotFound
	}
	d := to
	it.AllocatedDate = &d
	it.Status = status
	return nil
}

func (s *fakeStore) ListActiveStaff(_ context.Context, tenantID string) ([]staff.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []staff.Member
	for _, m := range s.staff {
		if m.TenantID == tenantID && m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) CountLoads(_ context.Context, tenantID string, day time.Time) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, it := range s.items {
		if it.TenantID == tenantID && it.AssignedTo != "" && it.AllocatedDate != nil &&
			it.AllocatedDate.Equal(day) && it.Status.CountsAsLoad() {
			out[it.AssignedTo]++
		}
	}
	return out, nil
}

func (s *fakeStore) LockAllocation(_ context.Context, _ string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockCalls++
	s.lockHeld = true
	return func() {
		s.mu.Lock()
		s.lockHeld = false
		s.mu.Unlock()
	}, nil
}

// --- DigestStore ---

func (s *fakeStore) CountItemsDueOn(_ context.Context, tenantID string, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.TenantID == tenantID && it.DueDate.Equal(day) && it.Status != workitem.StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountItemsOverdue(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.TenantID == tenantID && it.Status == workitem.StatusOverdue {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountAttendance(_ context.Context, tenantID string, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attendance[tenantID][day], nil
}

func (s *fakeStore) CountLeadsBetween(_ context.Context, tenantID string, start, end time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leadsErr != nil {
		return 0, s.leadsErr
	}
	n := 0
	for _, l := range s.leads {
		if l.tenantID == tenantID && !l.createdAt.Before(start) && l.createdAt.Before(end) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) SumUnpaidInvoicesDueBy(_ context.Context, tenantID string, day time.Time) (int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, total := 0, int64(0)
	for _, inv := range s.invoices {
		if inv.tenantID == tenantID && !inv.paid && !inv.due.After(day) {
			n++
			total += inv.totalCents
		}
	}
	return n, total, nil
}
