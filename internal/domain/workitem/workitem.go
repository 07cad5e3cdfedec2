// Package workitem defines recurring work definitions, concrete work items
// and the status state machine the scheduler operates on.
package workitem

import (
	"time"

	"github.com/Strob0t/bizops/internal/domain"
)

// Status represents the current state of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusOverdue    Status = "overdue"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions lists the allowed next states. Terminal states have none.
// Lateness (-> overdue) is only ever applied by carry-over.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusOverdue, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusOverdue, StatusCompleted, StatusCancelled},
	StatusOverdue:    {StatusInProgress, StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusOverdue, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is set by user action and never touched by
// the scheduler again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CountsAsLoad reports whether an item in status s occupies a staff slot.
func (s Status) CountsAsLoad() bool {
	return s == StatusPending || s == StatusInProgress
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority orders work items; higher values are more urgent.
type Priority int

// Definition is a recurring template that spawns concrete work items.
type Definition struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      Priority   `json:"priority"`
	Recurrence    Recurrence `json:"recurrence"`
	Active        bool       `json:"active"`
	LastSpawnedAt *time.Time `json:"last_spawned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// WorkItem is a concrete schedulable instance.
// DueDate and AllocatedDate are calendar days (see Day).
type WorkItem struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	DefinitionID  string     `json:"definition_id,omitempty"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      Priority   `json:"priority"`
	Status        Status     `json:"status"`
	DueDate       time.Time  `json:"due_date"`
	AllocatedDate *time.Time `json:"allocated_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Spawn builds the pending instance a definition produces on asOf.
// day is asOf's calendar day in the tenant's zone.
func (d *Definition) Spawn(day time.Time) WorkItem {
	return WorkItem{
		TenantID:     d.TenantID,
		DefinitionID: d.ID,
		Title:        d.Title,
		Description:  d.Description,
		Priority:     d.Priority,
		Status:       StatusPending,
		DueDate:      d.Recurrence.DueDate(day),
	}
}

// CreateDefinitionRequest holds the fields needed to create a recurring definition.
type CreateDefinitionRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Recurrence  Recurrence `json:"recurrence"`
}

// Validate checks the request before it reaches the store.
func (r *CreateDefinitionRequest) Validate() error {
	if r.Title == "" {
		return domain.Invalid("title is required")
	}
	if len(r.Title) > 255 {
		return domain.Invalid("title exceeds 255 characters")
	}
	if !r.Recurrence.Valid() {
		return domain.Invalid("invalid recurrence %q (must be daily, weekly or monthly)", r.Recurrence)
	}
	return nil
}
