package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/workitem"
	"github.com/Strob0t/bizops/internal/port/database"
)

// WorkItemService handles definition creation and user-driven status changes.
type WorkItemService struct {
	store database.Store
}

// NewWorkItemService creates a new WorkItemService.
func NewWorkItemService(store database.Store) *WorkItemService {
	return &WorkItemService{store: store}
}

// CreateDefinition validates and stores a recurring definition. It spawns
// on the next daily pass.
func (s *WorkItemService) CreateDefinition(ctx context.Context, tenantID string, req workitem.CreateDefinitionRequest) (*workitem.Definition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.store.CreateDefinition(ctx, tenantID, req)
}

// Get returns a work item of the tenant.
func (s *WorkItemService) Get(ctx context.Context, tenantID, id string) (*workitem.WorkItem, error) {
	return s.store.GetWorkItem(ctx, tenantID, id)
}

// Transition moves a work item to status to. Only transitions allowed by
// the state machine are accepted; overdue is reserved for carry-over.
// A concurrent change between read and write yields domain.ErrConflict.
func (s *WorkItemService) Transition(ctx context.Context, tenantID, id string, to workitem.Status) (*workitem.WorkItem, error) {
	if !to.Valid() || to == workitem.StatusOverdue {
		return nil, domain.Invalid("status %q cannot be set directly", to)
	}

	it, err := s.store.GetWorkItem(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !it.Status.CanTransition(to) {
		return nil, domain.Invalid("cannot move %s from %s to %s", id, it.Status, to)
	}
	if err := s.store.UpdateWorkItemStatus(ctx, tenantID, id, it.Status, to); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "work item status changed", "tenant_id", tenantID, "work_item_id", id, "from", it.Status, "to", to)
	it.Status = to
	return it, nil
}
