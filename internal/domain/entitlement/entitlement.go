// Package entitlement defines capabilities, tier mappings, tenant
// overrides and the resolved decision returned to callers.
package entitlement

import (
	"regexp"
	"time"
)

// Key is the stable identity of a capability (e.g. "staff_module").
type Key string

// Tier names a subscription level (e.g. "studio").
type Tier string

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Valid reports whether k is a well-formed capability key. Keys end up
// verbatim inside cache keys, which restrict the alphabet.
func (k Key) Valid() bool { return keyPattern.MatchString(string(k)) }

// Valid reports whether t is a well-formed tier name.
func (t Tier) Valid() bool { return keyPattern.MatchString(string(t)) }

// Capability is a named feature switch. Deactivation is a soft flag:
// historical overrides and mappings still reference the key.
type Capability struct {
	Key    Key    `json:"key" yaml:"key"`
	Name   string `json:"name" yaml:"name"`
	Active bool   `json:"active" yaml:"active"`
}

// TierMapping declares whether a capability is enabled for a tier and
// with which numeric limits.
type TierMapping struct {
	Tier       Tier   `json:"tier"`
	Capability Key    `json:"capability"`
	Enabled    bool   `json:"enabled"`
	Limits     Limits `json:"limits,omitempty"`
}

// Override is a tenant-specific exception that takes precedence over the
// tier mapping. Expiry is evaluated at read time, never purged eagerly.
type Override struct {
	TenantID   string     `json:"tenant_id"`
	Capability Key        `json:"capability"`
	Enabled    bool       `json:"enabled"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the override is still in force at now.
// An override with a past (or equal) expiry counts as absent.
func (o *Override) ActiveAt(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// TenantContext carries what the resolver needs to know about the caller.
type TenantContext struct {
	TenantID string `json:"tenant_id"`
	Tier     Tier   `json:"tier"`
}

// Source names the layer that produced a decision.
type Source string

const (
	SourceOverride Source = "override"
	SourceTier     Source = "tier"
	SourceDefault  Source = "default"
)

// Reasons attached to decisions. Unknown and disabled capabilities are
// both plain denies to the caller (fail closed).
const (
	ReasonOverride     = "tenant override"
	ReasonPlan         = "included in plan"
	ReasonPlanDisabled = "disabled in plan"
	ReasonNotInPlan    = "not in plan"
	ReasonNotFound     = "not found/inactive"
	ReasonLookupFailed = "lookup failed"
)

// Decision is the resolved answer for one (capability, tenant) pair.
type Decision struct {
	Capability Key    `json:"capability"`
	Enabled    bool   `json:"enabled"`
	Reason     string `json:"reason"`
	Source     Source `json:"source"`
	Limits     Limits `json:"limits,omitempty"`
}

// Deny builds a default-deny decision with the given reason.
func Deny(key Key, reason string) Decision {
	return Decision{Capability: key, Enabled: false, Reason: reason, Source: SourceDefault}
}

// SetOverrideRequest holds the fields for creating or replacing an override.
type SetOverrideRequest struct {
	Enabled   bool       `json:"enabled"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SetTierMappingRequest holds the fields for creating or replacing a tier mapping.
type SetTierMappingRequest struct {
	Enabled bool   `json:"enabled"`
	Limits  Limits `json:"limits,omitempty"`
}
