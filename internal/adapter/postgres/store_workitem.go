package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/staff"
	"github.com/Strob0t/bizops/internal/domain/workitem"
)

// --- Definitions ---

const definitionColumns = `id, tenant_id, title, description, priority, recurrence, active, last_spawned_at, created_at`

func scanDefinition(row scannable) (workitem.Definition, error) {
	var d workitem.Definition
	var rec string
	err := row.Scan(&d.ID, &d.TenantID, &d.Title, &d.Description, &d.Priority, &rec, &d.Active, &d.LastSpawnedAt, &d.CreatedAt)
	d.Recurrence = workitem.Recurrence(rec)
	return d, err
}

func (s *Store) CreateDefinition(ctx context.Context, tenantID string, req workitem.CreateDefinitionRequest) (*workitem.Definition, error) {
	d, err := scanDefinition(s.pool.QueryRow(ctx,
		`INSERT INTO work_item_definitions (tenant_id, title, description, priority, recurrence)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+definitionColumns,
		tenantID, req.Title, req.Description, int(req.Priority), string(req.Recurrence)))
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidID(err) {
			return nil, fmt.Errorf("create definition: tenant %s: %w", tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("create definition: %w", err)
	}
	return &d, nil
}

func (s *Store) ListActiveDefinitions(ctx context.Context, tenantID string) ([]workitem.Definition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+definitionColumns+` FROM work_item_definitions
		 WHERE tenant_id = $1 AND active ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []workitem.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// SpawnWorkItem guards the insert with a compare-and-set on last_spawned_at
// so concurrent passes spawn each definition at most once.
func (s *Store) SpawnWorkItem(ctx context.Context, def *workitem.Definition, item workitem.WorkItem, spawnedAt time.Time) (*workitem.WorkItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE work_item_definitions SET last_spawned_at = $3
		 WHERE id = $1 AND tenant_id = $2 AND last_spawned_at IS NOT DISTINCT FROM $4`,
		def.ID, def.TenantID, spawnedAt, def.LastSpawnedAt)
	if err != nil {
		return nil, fmt.Errorf("mark definition %s spawned: %w", def.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("definition %s spawned concurrently: %w", def.ID, domain.ErrConflict)
	}

	created, err := scanWorkItem(tx.QueryRow(ctx,
		`INSERT INTO work_items (tenant_id, definition_id, title, description, priority, status, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING `+workItemColumns,
		item.TenantID, nullIfEmpty(item.DefinitionID), item.Title, item.Description,
		int(item.Priority), string(item.Status), asDate(item.DueDate), spawnedAt))
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit spawn: %w", err)
	}
	return &created, nil
}

// --- Work items ---

const workItemColumns = `id, tenant_id, definition_id, assigned_to, title, description, priority, status,
	due_date, allocated_date, created_at, updated_at`

func scanWorkItem(row scannable) (workitem.WorkItem, error) {
	var it workitem.WorkItem
	var defID, assignee *string
	var status string
	err := row.Scan(&it.ID, &it.TenantID, &defID, &assignee, &it.Title, &it.Description, &it.Priority, &status,
		&it.DueDate, &it.AllocatedDate, &it.CreatedAt, &it.UpdatedAt)
	it.DefinitionID = fromNull(defID)
	it.AssignedTo = fromNull(assignee)
	it.Status = workitem.Status(status)
	return it, err
}

func (s *Store) queryWorkItems(ctx context.Context, op, query string, args ...any) ([]workitem.WorkItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var items []workitem.WorkItem
	for rows.Next() {
		it, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) GetWorkItem(ctx context.Context, tenantID, id string) (*workitem.WorkItem, error) {
	it, err := scanWorkItem(s.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "get work item %s", id)
	}
	return &it, nil
}

// UpdateWorkItemStatus applies the change only while the item is still in
// status from; otherwise domain.ErrConflict.
func (s *Store) UpdateWorkItemStatus(ctx context.Context, tenantID, id string, from, to workitem.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE work_items SET status = $4, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND status = $3`,
		id, tenantID, string(from), string(to))
	if err != nil {
		return notFoundWrap(err, "update work item %s status", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM work_items WHERE id = $1 AND tenant_id = $2)`, id, tenantID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("update work item %s status: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("update work item %s status: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("update work item %s status: %w", id, domain.ErrConflict)
}

// ListPendingDueBy leaves items allocated to the previous day alone so
// carry-over, not allocation, decides whether they are overdue.
func (s *Store) ListPendingDueBy(ctx context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error) {
	return s.queryWorkItems(ctx, "list pending items",
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE tenant_id = $1 AND status = 'pending' AND due_date <= $2
		   AND allocated_date IS DISTINCT FROM $3
		 ORDER BY id`,
		tenantID, asDate(day), asDate(workitem.PrevDay(day)))
}

func (s *Store) ListOpenAllocatedOn(ctx context.Context, tenantID string, day time.Time) ([]workitem.WorkItem, error) {
	return s.queryWorkItems(ctx, "list open allocated items",
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE tenant_id = $1 AND allocated_date = $2 AND status IN ('pending', 'in_progress', 'overdue')
		 ORDER BY id`,
		tenantID, asDate(day))
}

func (s *Store) AssignWorkItem(ctx context.Context, tenantID, id, staffID string, day time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE work_items SET assigned_to = $3, allocated_date = $4, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, staffID, asDate(day))
	return execExpectOne(tag, err, "assign work item %s", id)
}

// CarryWorkItem only touches items still open and still allocated to from,
// so a completion that lands mid-pass wins.
func (s *Store) CarryWorkItem(ctx context.Context, tenantID, id string, from, to time.Time, status workitem.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE work_items SET allocated_date = $4, status = $5, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND allocated_date = $3
		   AND status IN ('pending', 'in_progress', 'overdue')`,
		id, tenantID, asDate(from), asDate(to), string(status))
	return execExpectOne(tag, err, "carry work item %s", id)
}

// --- Staff ---

func (s *Store) ListActiveStaff(ctx context.Context, tenantID string) ([]staff.Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, active, created_at FROM staff_members
		 WHERE tenant_id = $1 AND active ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var members []staff.Member
	for rows.Next() {
		var m staff.Member
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) CountLoads(ctx context.Context, tenantID string, day time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT assigned_to, count(*) FROM work_items
		 WHERE tenant_id = $1 AND allocated_date = $2 AND assigned_to IS NOT NULL
		   AND status IN ('pending', 'in_progress')
		 GROUP BY assigned_to`,
		tenantID, asDate(day))
	if err != nil {
		return nil, fmt.Errorf("count loads: %w", err)
	}
	defer rows.Close()

	loads := make(map[string]int)
	for rows.Next() {
		var staffID string
		var n int
		if err := rows.Scan(&staffID, &n); err != nil {
			return nil, fmt.Errorf("scan load: %w", err)
		}
		loads[staffID] = n
	}
	return loads, rows.Err()
}

// LockAllocation takes a session-level advisory lock on a dedicated
// connection. The release func unlocks and returns the connection.
func (s *Store) LockAllocation(ctx context.Context, tenantID string) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	lockKey := "allocation:" + tenantID
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, lockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", lockKey, err)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var released bool
		err := conn.QueryRow(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, lockKey).Scan(&released)
		if err != nil || !released {
			// A connection with a dangling session lock must not go back to the pool.
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}, nil
}
