package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/domain/workitem"
)

// CarryOver moves every open item allocated to fromDate onto the next
// day. Items due strictly before fromDate become overdue; the others keep
// their status. Completed and cancelled items are never selected.
func (s *SchedulerService) CarryOver(ctx context.Context, tenantID string, fromDate time.Time) (*schedule.CarryOverResult, error) {
	from := workitem.Day(fromDate, time.UTC)
	to := workitem.NextDay(from)

	items, err := s.store.ListOpenAllocatedOn(ctx, tenantID, from)
	if err != nil {
		return nil, fmt.Errorf("list open items: %w", err)
	}

	result := &schedule.CarryOverResult{TenantID: tenantID, FromDate: from, ToDate: to}
	newlyOverdue := 0
	for i := range items {
		it := &items[i]
		if it.Status.IsTerminal() {
			continue
		}

		status := it.Status
		if it.DueDate.Before(from) && status != workitem.StatusOverdue {
			status = workitem.StatusOverdue
			newlyOverdue++
		}

		if err := s.store.CarryWorkItem(ctx, tenantID, it.ID, from, to, status); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				slog.InfoContext(ctx, "work item closed before carry-over", "tenant_id", tenantID, "work_item_id", it.ID)
				continue
			}
			return nil, fmt.Errorf("carry %s: %w", it.ID, err)
		}

		overdue := status == workitem.StatusOverdue
		result.Items = append(result.Items, schedule.CarriedItem{
			WorkItemID: it.ID,
			Title:      it.Title,
			AssignedTo: it.AssignedTo,
			DueDate:    it.DueDate,
			Overdue:    overdue,
		})
		result.Carried++
		if overdue {
			result.Overdue++
		}
	}

	if s.metrics != nil {
		s.count(ctx, s.metrics.ItemsCarried, tenantID, result.Carried)
		s.count(ctx, s.metrics.ItemsOverdue, tenantID, newlyOverdue)
	}
	slog.InfoContext(ctx, "carry-over done", "tenant_id", tenantID,
		"from", from.Format(time.DateOnly), "carried", result.Carried, "overdue", result.Overdue)
	return result, nil
}
