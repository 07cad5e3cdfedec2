// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"time"

	"github.com/Strob0t/bizops/internal/domain"
)

// DefaultTimezone is used when a tenant has no reporting time zone set.
const DefaultTimezone = "UTC"

// Tenant represents an isolated business account in the system.
// Tier is written by the billing collaborator; the core trusts it as given.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Tier      string    `json:"tier"`
	Timezone  string    `json:"timezone"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location returns the tenant's reporting time zone. Unknown or empty
// zone names fall back to UTC so day windows are always computable.
func (t *Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CreateRequest holds the fields required to create a new tenant.
type CreateRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Tier     string `json:"tier"`
	Timezone string `json:"timezone,omitempty"`
}

// Validate checks the request before it reaches the store.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return domain.Invalid("tenant name is required")
	}
	if r.Tier == "" {
		return domain.Invalid("tier is required")
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return domain.Invalid("unknown timezone %q", r.Timezone)
		}
	}
	return nil
}

// UpdateTierRequest changes the subscription tier of a tenant.
type UpdateTierRequest struct {
	Tier string `json:"tier"`
}
