// Package domain holds the sentinel errors shared by every bizops package.
// The HTTP layer maps them to status codes.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the tenant, capability, override or work item does not
	// exist, or belongs to another tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a compare-and-set lost, e.g. a definition spawned by a
	// concurrent pass or a work item whose status moved underneath.
	ErrConflict = errors.New("conflict: resource was modified by another request")

	// ErrValidation: input rejected before touching the store. Build these
	// with Invalid so the client-facing detail follows the sentinel.
	ErrValidation = errors.New("validation failed")
)

// Invalid returns an ErrValidation whose message ends in the formatted detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
