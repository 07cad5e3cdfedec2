package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/domain/staff"
	"github.com/Strob0t/bizops/internal/domain/workitem"
)

// AllocateDay assigns every pending item due on or before targetDate to a
// staff member for targetDate. Items are taken most urgent first; an item
// keeps its assignee while that person is active and under the load
// ceiling, otherwise it goes to the least loaded active staff member, ties
// broken by staff order. The whole read-assign-persist sequence runs under
// a per-tenant lock.
func (s *SchedulerService) AllocateDay(ctx context.Context, tenantID string, targetDate time.Time) (*schedule.AllocationResult, error) {
	day := workitem.Day(targetDate, time.UTC)

	l := s.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()

	release, err := s.store.LockAllocation(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("lock allocation: %w", err)
	}
	defer release()

	result := &schedule.AllocationResult{TenantID: tenantID, Date: day}

	members, err := s.store.ListActiveStaff(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	if len(members) == 0 {
		result.Reason = schedule.ReasonNoActiveStaff
		slog.InfoContext(ctx, "allocation skipped", "tenant_id", tenantID, "reason", result.Reason)
		return result, nil
	}

	items, err := s.store.ListPendingDueBy(ctx, tenantID, day)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	counted, err := s.store.CountLoads(ctx, tenantID, day)
	if err != nil {
		return nil, fmt.Errorf("count loads: %w", err)
	}

	loads := loadSnapshot(members, counted, items, day)
	workitem.SortByUrgency(items)

	result.Assignments = planAssignments(members, loads, items, s.loadCeiling)
	for _, a := range result.Assignments {
		if err := s.store.AssignWorkItem(ctx, tenantID, a.WorkItemID, a.StaffID, day); err != nil {
			return nil, fmt.Errorf("assign %s: %w", a.WorkItemID, err)
		}
		result.Allocated++
	}
	result.Loads = loads

	if s.metrics != nil {
		s.count(ctx, s.metrics.ItemsAllocated, tenantID, result.Allocated)
	}
	slog.InfoContext(ctx, "day allocated", "tenant_id", tenantID, "date", day.Format(time.DateOnly), "allocated", result.Allocated)
	return result, nil
}

// loadSnapshot returns the current load of every active staff member for
// day, excluding candidates that already sit on day so a re-run does not
// count them twice.
func loadSnapshot(members []staff.Member, counted map[string]int, candidates []workitem.WorkItem, day time.Time) map[string]int {
	loads := make(map[string]int, len(members))
	for _, m := range members {
		loads[m.ID] = counted[m.ID]
	}
	for i := range candidates {
		it := &candidates[i]
		if it.AssignedTo == "" || it.AllocatedDate == nil || !it.AllocatedDate.Equal(day) {
			continue
		}
		if n, ok := loads[it.AssignedTo]; ok && n > 0 {
			loads[it.AssignedTo] = n - 1
		}
	}
	return loads
}

// planAssignments applies the greedy balancing rule to items, which must
// already be in urgency order. loads is updated in place.
func planAssignments(members []staff.Member, loads map[string]int, items []workitem.WorkItem, ceiling int) []schedule.Assignment {
	out := make([]schedule.Assignment, 0, len(items))
	for i := range items {
		it := &items[i]

		if current, ok := loads[it.AssignedTo]; ok && it.AssignedTo != "" && current < ceiling {
			loads[it.AssignedTo]++
			out = append(out, schedule.Assignment{WorkItemID: it.ID, StaffID: it.AssignedTo, Kept: true})
			continue
		}

		best := members[0].ID
		for _, m := range members[1:] {
			if loads[m.ID] < loads[best] {
				best = m.ID
			}
		}
		loads[best]++
		out = append(out, schedule.Assignment{WorkItemID: it.ID, StaffID: best})
	}
	return out
}
