package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/domain/workitem"
)

// BuildDigest aggregates the tenant's work items, attendance, leads and
// unpaid invoices for date. Every count uses the same calendar-day window
// in the tenant's reporting zone. It never mutates anything.
func (s *SchedulerService) BuildDigest(ctx context.Context, tenantID string, date time.Time) (*schedule.DailyDigest, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	w := schedule.NewWindow(workitem.Day(date, time.UTC), t.Location())

	d := &schedule.DailyDigest{TenantID: tenantID, Date: w.Day}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountItemsDueOn(gctx, tenantID, w.Day)
		if err != nil {
			return fmt.Errorf("count items due: %w", err)
		}
		d.ItemsDue = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountItemsOverdue(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("count overdue items: %w", err)
		}
		d.ItemsOverdue = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountAttendance(gctx, tenantID, w.Day)
		if err != nil {
			return fmt.Errorf("count attendance: %w", err)
		}
		d.StaffPresent = n
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountLeadsBetween(gctx, tenantID, w.Start, w.End)
		if err != nil {
			return fmt.Errorf("count leads: %w", err)
		}
		d.NewLeads = n
		return nil
	})
	g.Go(func() error {
		n, total, err := s.store.SumUnpaidInvoicesDueBy(gctx, tenantID, w.Day)
		if err != nil {
			return fmt.Errorf("sum unpaid invoices: %w", err)
		}
		d.PendingInvoices = n
		d.PendingInvoiceTotalCents = total
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.GeneratedAt = s.now().UTC()
	return d, nil
}
