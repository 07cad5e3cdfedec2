// Package staff defines the staff directory entry used for load balancing.
// Lifecycle of staff members belongs to the HR collaborator.
package staff

import "time"

// Member is a staff member of a tenant.
type Member struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
