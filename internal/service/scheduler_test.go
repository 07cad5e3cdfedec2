package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/domain/workitem"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dayPtr(t time.Time) *time.Time { return &t }

func newScheduler(store *fakeStore) *SchedulerService {
	s := NewSchedulerService(store, 0)
	s.now = func() time.Time { return time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC) }
	return s
}

// --- ExpandDueToday ---

func TestExpandDueToday_DailySpawnsOncePerDay(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	yesterday := time.Date(2026, 3, 13, 7, 0, 0, 0, time.UTC)
	store.addDefinition(workitem.Definition{
		ID: "def-open", TenantID: "t1", Title: "Open studio", Priority: 2,
		Recurrence: workitem.RecurrenceDaily, Active: true, LastSpawnedAt: &yesterday,
	})
	s := newScheduler(store)
	ctx := context.Background()
	asOf := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

	n, err := s.ExpandDueToday(ctx, "t1", asOf)
	if err != nil {
		t.Fatalf("ExpandDueToday: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 spawned item, got %d", n)
	}
	items := store.itemsOf("t1")
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Status != workitem.StatusPending || !it.DueDate.Equal(day(2026, 3, 14)) || it.DefinitionID != "def-open" {
		t.Errorf("unexpected item %+v", it)
	}
	if it.Priority != 2 || it.Title != "Open studio" {
		t.Errorf("item must copy definition fields, got %+v", it)
	}

	n, err = s.ExpandDueToday(ctx, "t1", asOf.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("second ExpandDueToday: %v", err)
	}
	if n != 0 || len(store.itemsOf("t1")) != 1 {
		t.Fatalf("second run on the same day must not spawn, got %d new", n)
	}
}

func TestExpandDueToday_Eligibility(t *testing.T) {
	asOf := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		rule    workitem.Recurrence
		last    *time.Time
		active  bool
		want    int
		wantDue time.Time
	}{
		{"never spawned daily", workitem.RecurrenceDaily, nil, true, 1, day(2026, 3, 14)},
		{"daily spawned today", workitem.RecurrenceDaily, dayPtr(time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC)), true, 0, time.Time{}},
		{"weekly within period", workitem.RecurrenceWeekly, dayPtr(time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)), true, 0, time.Time{}},
		{"weekly elapsed", workitem.RecurrenceWeekly, dayPtr(time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC)), true, 1, day(2026, 3, 20)},
		{"monthly elapsed", workitem.RecurrenceMonthly, dayPtr(time.Date(2026, 2, 13, 9, 0, 0, 0, time.UTC)), true, 1, day(2026, 4, 13)},
		{"inactive", workitem.RecurrenceDaily, nil, false, 0, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.addTenant("t1", "studio", "")
			store.addDefinition(workitem.Definition{
				ID: "def-1", TenantID: "t1", Title: "Task", Recurrence: tt.rule, Active: tt.active, LastSpawnedAt: tt.last,
			})
			n, err := newScheduler(store).ExpandDueToday(context.Background(), "t1", asOf)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Fatalf("expected %d spawned, got %d", tt.want, n)
			}
			if tt.want == 1 {
				if due := store.itemsOf("t1")[0].DueDate; !due.Equal(tt.wantDue) {
					t.Errorf("expected due %s, got %s", tt.wantDue.Format(time.DateOnly), due.Format(time.DateOnly))
				}
			}
		})
	}
}

func TestExpandDueToday_UsesTenantZone(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "America/Los_Angeles")
	store.addDefinition(workitem.Definition{
		ID: "def-1", TenantID: "t1", Title: "Evening check", Recurrence: workitem.RecurrenceDaily, Active: true,
	})
	// 03:00 UTC on the 15th is still the 14th in Los Angeles.
	asOf := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
	if _, err := newScheduler(store).ExpandDueToday(context.Background(), "t1", asOf); err != nil {
		t.Fatal(err)
	}
	if due := store.itemsOf("t1")[0].DueDate; !due.Equal(day(2026, 3, 14)) {
		t.Fatalf("expected due date in tenant zone 2026-03-14, got %s", due.Format(time.DateOnly))
	}
}

func TestExpandDueToday_StoreError(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.defsErr["t1"] = errors.New("db down")
	if _, err := newScheduler(store).ExpandDueToday(context.Background(), "t1", time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

// --- AllocateDay ---

func pending(id, tenantID string, prio workitem.Priority, due time.Time) workitem.WorkItem {
	return workitem.WorkItem{
		ID: id, TenantID: tenantID, Title: id, Priority: prio, Status: workitem.StatusPending,
		DueDate: due, CreatedAt: due.Add(-24 * time.Hour),
	}
}

func assignments(res *schedule.AllocationResult) map[string]string {
	out := make(map[string]string, len(res.Assignments))
	for _, a := range res.Assignments {
		out[a.WorkItemID] = a.StaffID
	}
	return out
}

func TestAllocateDay_LeastLoadedWithTies(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "alice", true)
	store.addStaff("t1", "bob", true)
	today := day(2026, 3, 14)

	// bob already has three in-progress items today
	for _, id := range []string{"b1", "b2", "b3"} {
		it := pending(id, "t1", 1, today)
		it.Status = workitem.StatusInProgress
		it.AssignedTo = "bob"
		it.AllocatedDate = dayPtr(today)
		store.addItem(it)
	}
	store.addItem(pending("x", "t1", 3, today))
	store.addItem(pending("y", "t1", 2, today))
	store.addItem(pending("z", "t1", 1, today))

	res, err := newScheduler(store).AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatalf("AllocateDay: %v", err)
	}
	if res.Allocated != 3 {
		t.Fatalf("expected 3 allocations, got %d", res.Allocated)
	}
	for _, id := range []string{"x", "y", "z"} {
		it := store.item(id)
		if it.AssignedTo != "alice" {
			t.Errorf("%s: expected alice, got %q", id, it.AssignedTo)
		}
		if it.AllocatedDate == nil || !it.AllocatedDate.Equal(today) {
			t.Errorf("%s: expected allocated on %s", id, today.Format(time.DateOnly))
		}
	}
	if res.Loads["alice"] != 3 || res.Loads["bob"] != 3 {
		t.Errorf("unexpected loads %v", res.Loads)
	}
	if store.lockHeld {
		t.Error("allocation lock must be released")
	}
}

func TestAllocateDay_BalancesLoad(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "a", true)
	store.addStaff("t1", "b", true)
	store.addStaff("t1", "c", true)
	today := day(2026, 3, 14)
	for i := range 10 {
		store.addItem(pending(string(rune('a'+i))+"-item", "t1", workitem.Priority(i%3), today))
	}

	res, err := newScheduler(store).AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := 1<<30, 0
	for _, n := range res.Loads {
		lo = min(lo, n)
		hi = max(hi, n)
	}
	if hi-lo > 1 {
		t.Fatalf("loads must differ by at most one, got %v", res.Loads)
	}
}

func TestAllocateDay_Deterministic(t *testing.T) {
	build := func() *fakeStore {
		store := newFakeStore()
		store.addTenant("t1", "studio", "")
		store.addStaff("t1", "s1", true)
		store.addStaff("t1", "s2", true)
		today := day(2026, 3, 14)
		store.addItem(pending("i1", "t1", 1, today))
		store.addItem(pending("i2", "t1", 1, today.AddDate(0, 0, -1)))
		store.addItem(pending("i3", "t1", 5, today))
		store.addItem(pending("i4", "t1", 1, today))
		return store
	}

	first, err := newScheduler(build()).AllocateDay(context.Background(), "t1", day(2026, 3, 14))
	if err != nil {
		t.Fatal(err)
	}
	second, err := newScheduler(build()).AllocateDay(context.Background(), "t1", day(2026, 3, 14))
	if err != nil {
		t.Fatal(err)
	}
	a, b := assignments(first), assignments(second)
	for id, staffID := range a {
		if b[id] != staffID {
			t.Fatalf("non-deterministic allocation: %v vs %v", a, b)
		}
	}
	// urgency order: i3 (prio 5), then i2 (earlier due), then i1, i4 by creation/ID
	want := []string{"i3", "i2", "i1", "i4"}
	for i, as := range first.Assignments {
		if as.WorkItemID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], as.WorkItemID)
		}
	}
}

func TestAllocateDay_KeepsExistingAssignment(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "s1", true)
	store.addStaff("t1", "s2", true)
	store.addStaff("t1", "gone", false)
	today := day(2026, 3, 14)

	kept := pending("kept", "t1", 1, today)
	kept.AssignedTo = "s2"
	store.addItem(kept)
	orphan := pending("orphan", "t1", 1, today)
	orphan.AssignedTo = "gone"
	store.addItem(orphan)

	res, err := newScheduler(store).AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatal(err)
	}
	got := assignments(res)
	if got["kept"] != "s2" {
		t.Errorf("active assignee under ceiling must be kept, got %q", got["kept"])
	}
	if got["orphan"] == "gone" || got["orphan"] == "" {
		t.Errorf("inactive assignee must be replaced, got %q", got["orphan"])
	}
	for _, a := range res.Assignments {
		if a.WorkItemID == "kept" && !a.Kept {
			t.Error("expected kept flag on preserved assignment")
		}
	}
}

func TestAllocateDay_CeilingReassigns(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "busy", true)
	store.addStaff("t1", "free", true)
	today := day(2026, 3, 14)
	for _, id := range []string{"w1", "w2"} {
		it := pending(id, "t1", 0, today)
		it.Status = workitem.StatusInProgress
		it.AssignedTo = "busy"
		it.AllocatedDate = dayPtr(today)
		store.addItem(it)
	}
	it := pending("new", "t1", 1, today)
	it.AssignedTo = "busy"
	store.addItem(it)

	s := NewSchedulerService(store, 2)
	res, err := s.AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatal(err)
	}
	if got := assignments(res)["new"]; got != "free" {
		t.Fatalf("assignee at ceiling must be replaced, got %q", got)
	}
}

func TestAllocateDay_RerunDoesNotDoubleCount(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "s1", true)
	store.addStaff("t1", "s2", true)
	today := day(2026, 3, 14)
	for _, id := range []string{"a", "b", "c", "d"} {
		store.addItem(pending(id, "t1", 1, today))
	}
	s := newScheduler(store)

	first, err := s.AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatal(err)
	}
	if second.Loads["s1"] != first.Loads["s1"] || second.Loads["s2"] != first.Loads["s2"] {
		t.Fatalf("re-run changed loads: %v -> %v", first.Loads, second.Loads)
	}
	a, b := assignments(first), assignments(second)
	for id := range a {
		if a[id] != b[id] {
			t.Errorf("%s moved from %s to %s on re-run", id, a[id], b[id])
		}
	}
}

func TestAllocateDay_NoActiveStaff(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "away", false)
	today := day(2026, 3, 14)
	store.addItem(pending("i1", "t1", 1, today))

	res, err := newScheduler(store).AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allocated != 0 || res.Reason != schedule.ReasonNoActiveStaff {
		t.Fatalf("expected empty allocation with reason, got %+v", res)
	}
	if store.item("i1").AssignedTo != "" {
		t.Error("nothing may be assigned without staff")
	}
}

func TestAllocateDay_IgnoresFutureAndOtherTenants(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addTenant("t2", "studio", "")
	store.addStaff("t1", "s1", true)
	today := day(2026, 3, 14)
	store.addItem(pending("later", "t1", 9, today.AddDate(0, 0, 2)))
	store.addItem(pending("other", "t2", 9, today))
	store.addItem(pending("late", "t1", 0, today.AddDate(0, 0, -3)))

	res, err := newScheduler(store).AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatal(err)
	}
	got := assignments(res)
	if len(got) != 1 || got["late"] != "s1" {
		t.Fatalf("expected only the late item, got %v", got)
	}
}

func TestAllocateDay_AssignFailure(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "s1", true)
	store.addItem(pending("i1", "t1", 1, day(2026, 3, 14)))
	store.assignErr = errors.New("write failed")

	if _, err := newScheduler(store).AllocateDay(context.Background(), "t1", day(2026, 3, 14)); err == nil {
		t.Fatal("expected error")
	}
	if store.lockHeld {
		t.Error("lock must be released on failure")
	}
}

func TestAllocateDay_LeavesPreviousDayToCarryOver(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	store.addStaff("t1", "s1", true)
	today := day(2026, 3, 14)

	onYesterday := pending("yesterday", "t1", 1, day(2026, 3, 12))
	onYesterday.AllocatedDate = dayPtr(today.AddDate(0, 0, -1))
	store.addItem(onYesterday)
	missed := pending("missed", "t1", 1, day(2026, 3, 10))
	missed.AllocatedDate = dayPtr(day(2026, 3, 10))
	store.addItem(missed)
	store.addItem(pending("fresh", "t1", 1, today))

	res, err := newScheduler(store).AllocateDay(context.Background(), "t1", today)
	if err != nil {
		t.Fatalf("AllocateDay: %v", err)
	}
	if res.Allocated != 2 {
		t.Fatalf("expected 2 allocated, got %d", res.Allocated)
	}
	if got := store.item("yesterday").AllocatedDate; !got.Equal(today.AddDate(0, 0, -1)) {
		t.Errorf("item on the previous day moved to %s", got.Format(time.DateOnly))
	}
	for _, id := range []string{"missed", "fresh"} {
		if got := store.item(id).AllocatedDate; got == nil || !got.Equal(today) {
			t.Errorf("%s: expected allocation to today, got %v", id, got)
		}
	}
}

// --- CarryOver ---

func TestCarryOver(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	from := day(2026, 3, 13)

	add := func(id string, status workitem.Status, due time.Time) {
		it := pending(id, "t1", 1, due)
		it.Status = status
		it.AssignedTo = "s1"
		it.AllocatedDate = dayPtr(from)
		store.addItem(it)
	}
	add("late", workitem.StatusPending, from.AddDate(0, 0, -1))
	add("ontime", workitem.StatusPending, from)
	add("started", workitem.StatusInProgress, from.AddDate(0, 0, 1))
	add("lateprog", workitem.StatusInProgress, from.AddDate(0, 0, -2))
	add("already", workitem.StatusOverdue, from.AddDate(0, 0, -5))
	add("done", workitem.StatusCompleted, from.AddDate(0, 0, -1))
	add("dropped", workitem.StatusCancelled, from)

	res, err := newScheduler(store).CarryOver(context.Background(), "t1", from)
	if err != nil {
		t.Fatalf("CarryOver: %v", err)
	}
	if res.Carried != 5 {
		t.Fatalf("expected 5 carried, got %d", res.Carried)
	}
	if res.Overdue != 3 {
		t.Fatalf("expected 3 overdue, got %d", res.Overdue)
	}
	if !res.ToDate.Equal(day(2026, 3, 14)) {
		t.Errorf("expected carry to 2026-03-14, got %s", res.ToDate.Format(time.DateOnly))
	}

	wantStatus := map[string]workitem.Status{
		"late":     workitem.StatusOverdue,
		"ontime":   workitem.StatusPending,
		"started":  workitem.StatusInProgress,
		"lateprog": workitem.StatusOverdue,
		"already":  workitem.StatusOverdue,
		"done":     workitem.StatusCompleted,
		"dropped":  workitem.StatusCancelled,
	}
	for id, want := range wantStatus {
		it := store.item(id)
		if it.Status != want {
			t.Errorf("%s: expected %s, got %s", id, want, it.Status)
		}
		moved := it.AllocatedDate.Equal(res.ToDate)
		if want.IsTerminal() == moved {
			t.Errorf("%s: terminal items stay, open items move (moved=%v)", id, moved)
		}
	}

	again, err := newScheduler(store).CarryOver(context.Background(), "t1", from)
	if err != nil {
		t.Fatal(err)
	}
	if again.Carried != 0 {
		t.Fatalf("second carry-over of the same day must be empty, got %d", again.Carried)
	}
}

// --- BuildDigest ---

func TestBuildDigest(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "Europe/Berlin")
	store.addTenant("t2", "studio", "")
	today := day(2026, 3, 14)

	store.addItem(pending("due1", "t1", 1, today))
	store.addItem(pending("due2", "t1", 1, today))
	cancelled := pending("due3", "t1", 1, today)
	cancelled.Status = workitem.StatusCancelled
	store.addItem(cancelled)
	late := pending("late", "t1", 1, today.AddDate(0, 0, -2))
	late.Status = workitem.StatusOverdue
	store.addItem(late)
	store.addItem(pending("foreign", "t2", 1, today))

	store.attendance["t1"] = map[time.Time]int{today: 4}

	berlin, _ := time.LoadLocation("Europe/Berlin")
	store.leads = []fakeLead{
		{"t1", time.Date(2026, 3, 14, 0, 0, 0, 0, berlin)},   // start of day, included
		{"t1", time.Date(2026, 3, 14, 23, 59, 0, 0, berlin)}, // included
		{"t1", time.Date(2026, 3, 13, 23, 30, 0, 0, time.UTC)},
		{"t1", time.Date(2026, 3, 15, 0, 0, 0, 0, berlin)}, // next day
		{"t2", time.Date(2026, 3, 14, 12, 0, 0, 0, berlin)},
	}
	store.invoices = []fakeInvoice{
		{"t1", 12_500, false, today},
		{"t1", 7_550, false, today.AddDate(0, 0, -10)},
		{"t1", 9_999, true, today},
		{"t1", 1_000, false, today.AddDate(0, 0, 1)},
	}

	d, err := newScheduler(store).BuildDigest(context.Background(), "t1", today)
	if err != nil {
		t.Fatalf("BuildDigest: %v", err)
	}
	if d.ItemsDue != 2 {
		t.Errorf("ItemsDue: expected 2, got %d", d.ItemsDue)
	}
	if d.ItemsOverdue != 1 {
		t.Errorf("ItemsOverdue: expected 1, got %d", d.ItemsOverdue)
	}
	if d.StaffPresent != 4 {
		t.Errorf("StaffPresent: expected 4, got %d", d.StaffPresent)
	}
	// 23:30 UTC on the 13th is 00:30 on the 14th in Berlin.
	if d.NewLeads != 3 {
		t.Errorf("NewLeads: expected 3, got %d", d.NewLeads)
	}
	if d.PendingInvoices != 2 || d.PendingInvoiceTotalCents != 20_050 {
		t.Errorf("invoices: expected 2 / 20050, got %d / %d", d.PendingInvoices, d.PendingInvoiceTotalCents)
	}
	if d.GeneratedAt.IsZero() || !d.Date.Equal(today) {
		t.Errorf("unexpected header fields %+v", d)
	}
	if got := d.Summary(); got != "2026-03-14: 2 due, 1 overdue, 4 staff present, 3 new leads, 2 unpaid invoices (200.50)" {
		t.Errorf("unexpected summary %q", got)
	}
}

func TestBuildDigest_EmptyTenantAndErrors(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t1", "studio", "")
	s := newScheduler(store)

	d, err := s.BuildDigest(context.Background(), "t1", day(2026, 3, 14))
	if err != nil {
		t.Fatal(err)
	}
	if d.ItemsDue+d.ItemsOverdue+d.StaffPresent+d.NewLeads+d.PendingInvoices != 0 {
		t.Fatalf("expected all zero counts, got %+v", d)
	}

	store.leadsErr = errors.New("leads table locked")
	if _, err := s.BuildDigest(context.Background(), "t1", day(2026, 3, 14)); err == nil {
		t.Fatal("expected aggregate error")
	}
	if _, err := s.BuildDigest(context.Background(), "missing", day(2026, 3, 14)); err == nil {
		t.Fatal("expected unknown tenant error")
	}
}
