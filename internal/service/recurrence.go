package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/workitem"
)

// ExpandDueToday spawns one pending instance for every active definition
// of the tenant that is eligible at asOf and returns how many were created.
// Running it twice for the same day creates nothing the second time.
func (s *SchedulerService) ExpandDueToday(ctx context.Context, tenantID string, asOf time.Time) (int, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("get tenant: %w", err)
	}
	loc := t.Location()
	day := workitem.Day(asOf, loc)

	defs, err := s.store.ListActiveDefinitions(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list definitions: %w", err)
	}

	created := 0
	for i := range defs {
		def := &defs[i]
		if !def.Active || !def.Recurrence.Eligible(def.LastSpawnedAt, asOf, loc) {
			continue
		}
		item, err := s.store.SpawnWorkItem(ctx, def, def.Spawn(day), asOf)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				slog.InfoContext(ctx, "definition already spawned concurrently", "tenant_id", tenantID, "definition_id", def.ID)
				continue
			}
			return created, fmt.Errorf("spawn %s: %w", def.ID, err)
		}
		created++
		slog.DebugContext(ctx, "work item spawned",
			"tenant_id", tenantID, "definition_id", def.ID, "work_item_id", item.ID,
			"due", item.DueDate.Format(time.DateOnly))
	}

	if s.metrics != nil {
		s.count(ctx, s.metrics.ItemsSpawned, tenantID, created)
	}
	return created, nil
}
