package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/bizops/internal/adapter/otel"
	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/port/database"
)

// SchedulerService implements the per-tenant scheduling operations:
// recurrence expansion, allocation, carry-over and the daily digest.
type SchedulerService struct {
	store       database.Store
	loadCeiling int
	metrics     *cfotel.Metrics
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSchedulerService creates a SchedulerService. A loadCeiling below 1
// uses schedule.DefaultLoadCeiling.
func NewSchedulerService(store database.Store, loadCeiling int) *SchedulerService {
	if loadCeiling < 1 {
		loadCeiling = schedule.DefaultLoadCeiling
	}
	return &SchedulerService{
		store:       store,
		loadCeiling: loadCeiling,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// SetMetrics enables metric recording.
func (s *SchedulerService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// tenantLock returns the in-process mutex serializing a tenant's allocation passes.
func (s *SchedulerService) tenantLock(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenantID] = l
	}
	return l
}

func (s *SchedulerService) count(ctx context.Context, c metric.Int64Counter, tenantID string, n int) {
	if s.metrics == nil || n == 0 {
		return
	}
	c.Add(ctx, int64(n), metric.WithAttributes(attribute.String("tenant_id", tenantID)))
}
