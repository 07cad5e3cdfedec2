package messagequeue

import "github.com/Strob0t/bizops/internal/domain/schedule"

// RunRequestPayload is the schema for scheduler.run messages.
// Empty fields mean "today" and "every enabled tenant".
type RunRequestPayload struct {
	Date     string `json:"date,omitempty"` // YYYY-MM-DD
	TenantID string `json:"tenant_id,omitempty"`
}

// CarryOverPayload is the schema for scheduler.carryover messages.
type CarryOverPayload struct {
	TenantName string                   `json:"tenant_name"`
	Result     schedule.CarryOverResult `json:"result"`
}

// DigestPayload is the schema for scheduler.digest messages.
type DigestPayload struct {
	TenantName string               `json:"tenant_name"`
	Digest     schedule.DailyDigest `json:"digest"`
	Summary    string               `json:"summary"`
}
