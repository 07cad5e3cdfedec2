// Package notifier defines the port through which scheduling results reach
// people: chat webhooks and email.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by factories and Send when required
// settings such as a webhook URL are missing.
var ErrNotConfigured = errors.New("notifier: not configured")

// Field is a labelled value rendered as a table row or list item.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Notification is the payload sent through a Notifier.
type Notification struct {
	TenantID string  `json:"tenant_id,omitempty"`
	Title    string  `json:"title"`
	Message  string  `json:"message"`
	Fields   []Field `json:"fields,omitempty"`
	Level    string  `json:"level"`  // "info", "success", "warning", "error"
	Source   string  `json:"source"` // e.g. "scheduler.digest", "scheduler.carryover"
}

// Capabilities declares what a provider can render.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	// MaxFields caps Fields per message; zero means no limit.
	MaxFields int `json:"max_fields"`
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name is the registry name, e.g. "slack".
	Name() string
	Capabilities() Capabilities
	Send(ctx context.Context, notification Notification) error
}
