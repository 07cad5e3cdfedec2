// Package schedule defines the results produced by the daily scheduling
// pass: allocations, carry-overs and the operational digest.
package schedule

import (
	"fmt"
	"time"
)

// DefaultLoadCeiling is the per-staff load under which an existing
// assignment is kept during allocation.
const DefaultLoadCeiling = 10

// ReasonNoActiveStaff explains an allocation that could not assign anything.
const ReasonNoActiveStaff = "no active staff"

// Assignment records one work item placed on a staff member's day.
type Assignment struct {
	WorkItemID string `json:"work_item_id"`
	StaffID    string `json:"staff_id"`
	Kept       bool   `json:"kept"` // existing assignment preserved
}

// AllocationResult is returned by AllocateDay.
type AllocationResult struct {
	TenantID    string         `json:"tenant_id"`
	Date        time.Time      `json:"date"`
	Allocated   int            `json:"allocated"`
	Reason      string         `json:"reason,omitempty"`
	Assignments []Assignment   `json:"assignments,omitempty"`
	Loads       map[string]int `json:"loads,omitempty"`
}

// CarriedItem describes one work item moved to the next day.
type CarriedItem struct {
	WorkItemID string    `json:"work_item_id"`
	Title      string    `json:"title"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	DueDate    time.Time `json:"due_date"`
	Overdue    bool      `json:"overdue"`
}

// CarryOverResult is returned by CarryOver and handed to notifiers.
type CarryOverResult struct {
	TenantID string        `json:"tenant_id"`
	FromDate time.Time     `json:"from_date"`
	ToDate   time.Time     `json:"to_date"`
	Carried  int           `json:"carried"`
	Overdue  int           `json:"overdue"`
	Items    []CarriedItem `json:"items,omitempty"`
}

// DailyDigest is a derived, read-only aggregate for one tenant and day.
type DailyDigest struct {
	TenantID                 string    `json:"tenant_id"`
	Date                     time.Time `json:"date"`
	ItemsDue                 int       `json:"items_due"`
	ItemsOverdue             int       `json:"items_overdue"`
	StaffPresent             int       `json:"staff_present"`
	NewLeads                 int       `json:"new_leads"`
	PendingInvoices          int       `json:"pending_invoices"`
	PendingInvoiceTotalCents int64     `json:"pending_invoice_total_cents"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// Summary renders the digest as a short plain-text message.
func (d *DailyDigest) Summary() string {
	return fmt.Sprintf("%s: %d due, %d overdue, %d staff present, %d new leads, %d unpaid invoices (%s)",
		d.Date.Format(time.DateOnly), d.ItemsDue, d.ItemsOverdue, d.StaffPresent,
		d.NewLeads, d.PendingInvoices, formatCents(d.PendingInvoiceTotalCents))
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// Window is a calendar day in a tenant's reporting zone. Day is the date
// as midnight UTC; Start and End bound the day as instants.
type Window struct {
	Day   time.Time
	Start time.Time
	End   time.Time
}

// NewWindow builds the window of the calendar date day (midnight UTC) in loc.
func NewWindow(day time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return Window{
		Day:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}

// TenantRun is the outcome of one tenant's daily pass.
type TenantRun struct {
	TenantID  string            `json:"tenant_id"`
	Date      time.Time         `json:"date"`
	Spawned   int               `json:"spawned"`
	Allocated *AllocationResult `json:"allocation,omitempty"`
	CarryOver *CarryOverResult  `json:"carry_over,omitempty"`
	Digest    *DailyDigest      `json:"digest,omitempty"`
	Err       error             `json:"-"`
	Error     string            `json:"error,omitempty"`
}

// Failed reports whether the pass stopped with an error.
func (r TenantRun) Failed() bool { return r.Err != nil }
