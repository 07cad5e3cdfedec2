package postgres

import (
	"context"
	"fmt"
	"time"
)

// --- Digest aggregates ---
// attendance, leads and invoices are written by other services.

func (s *Store) count(ctx context.Context, op, query string, args ...any) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Store) CountItemsDueOn(ctx context.Context, tenantID string, day time.Time) (int, error) {
	return s.count(ctx, "count items due",
		`SELECT count(*) FROM work_items
		 WHERE tenant_id = $1 AND due_date = $2 AND status <> 'cancelled'`,
		tenantID, asDate(day))
}

func (s *Store) CountItemsOverdue(ctx context.Context, tenantID string) (int, error) {
	return s.count(ctx, "count overdue items",
		`SELECT count(*) FROM work_items WHERE tenant_id = $1 AND status = 'overdue'`, tenantID)
}

func (s *Store) CountAttendance(ctx context.Context, tenantID string, day time.Time) (int, error) {
	return s.count(ctx, "count attendance",
		`SELECT count(DISTINCT staff_id) FROM attendance WHERE tenant_id = $1 AND day = $2`,
		tenantID, asDate(day))
}

func (s *Store) CountLeadsBetween(ctx context.Context, tenantID string, start, end time.Time) (int, error) {
	return s.count(ctx, "count leads",
		`SELECT count(*) FROM leads WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, start, end)
}

func (s *Store) SumUnpaidInvoicesDueBy(ctx context.Context, tenantID string, day time.Time) (int, int64, error) {
	var n int
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), COALESCE(sum(total_cents), 0)::bigint FROM invoices
		 WHERE tenant_id = $1 AND status = 'open' AND due_date <= $2`,
		tenantID, asDate(day),
	).Scan(&n, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("sum unpaid invoices: %w", err)
	}
	return n, total, nil
}
