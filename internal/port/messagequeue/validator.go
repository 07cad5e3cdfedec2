package messagequeue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectSchedulerRun:
		var p RunRequestPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Date != "" {
			if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
				return fmt.Errorf("schema validation failed for %s: bad date %q", subject, p.Date)
			}
		}
	case SubjectSchedulerCarryOver:
		var p CarryOverPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Result.TenantID == "" {
			return fmt.Errorf("schema validation failed for %s: tenant_id is required", subject)
		}
	case SubjectSchedulerDigest:
		var p DigestPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Digest.TenantID == "" {
			return fmt.Errorf("schema validation failed for %s: tenant_id is required", subject)
		}
	}
	return nil
}
