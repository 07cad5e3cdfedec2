package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/logger"
	"github.com/Strob0t/bizops/internal/port/messagequeue"
	"github.com/Strob0t/bizops/internal/port/notifier"
	"github.com/Strob0t/bizops/internal/resilience"
)

// NotificationService hands scheduling results to the message queue and
// fans a readable summary out to all registered notifiers.
type NotificationService struct {
	queue         messagequeue.Publisher
	notifiers     []notifier.Notifier
	breakers      map[string]*resilience.Breaker
	enabledEvents map[string]bool
}

// NewNotificationService creates a NotificationService with the given notifiers
// and list of enabled event types (e.g., "scheduler.digest").
// If enabledEvents is nil or empty, all events are enabled.
func NewNotificationService(notifiers []notifier.Notifier, enabledEvents []string) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	return &NotificationService{
		notifiers:     notifiers,
		breakers:      make(map[string]*resilience.Breaker),
		enabledEvents: enabled,
	}
}

// SetQueue enables publishing results to the message queue.
func (s *NotificationService) SetQueue(q messagequeue.Publisher) { s.queue = q }

// SetBreaker guards every notifier with its own circuit breaker.
func (s *NotificationService) SetBreaker(maxFailures int, timeout time.Duration) {
	for _, n := range s.notifiers {
		s.breakers[n.Name()] = resilience.NewBreaker(n.Name(), maxFailures, timeout)
	}
}

// BreakerStates reports the circuit state of every guarded notifier.
func (s *NotificationService) BreakerStates() map[string]resilience.State {
	out := make(map[string]resilience.State, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State()
	}
	return out
}

// Notify sends a notification to all registered notifiers.
// Errors are logged but do not interrupt delivery to other notifiers.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	if len(s.enabledEvents) > 0 && !s.enabledEvents[n.Source] {
		return
	}

	for _, provider := range s.notifiers {
		msg := fitFields(n, provider.Capabilities().MaxFields)
		send := func(ctx context.Context) error { return provider.Send(ctx, msg) }
		var err error
		if b := s.breakers[provider.Name()]; b != nil {
			err = b.Execute(ctx, send)
		} else {
			err = send(ctx)
		}
		if err != nil {
			slog.WarnContext(ctx, "notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			continue
		}
		slog.DebugContext(ctx, "notification sent", "provider", provider.Name(), "title", n.Title)
	}
}

// fitFields trims n.Fields to limit, replacing the tail with a "More" count.
func fitFields(n notifier.Notification, limit int) notifier.Notification {
	if limit <= 0 || len(n.Fields) <= limit {
		return n
	}
	hidden := len(n.Fields) - (limit - 1)
	fields := make([]notifier.Field, 0, limit)
	fields = append(fields, n.Fields[:limit-1]...)
	n.Fields = append(fields, notifier.Field{Label: "More", Value: "+" + strconv.Itoa(hidden)})
	return n
}

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}

func (s *NotificationService) publish(ctx context.Context, subject string, payload any) error {
	if s.queue == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	return s.queue.Publish(ctx, subject, data)
}

// PublishCarryOver hands a carry-over result downstream. Results without
// carried items produce no message.
func (s *NotificationService) PublishCarryOver(ctx context.Context, tenantName string, res *schedule.CarryOverResult) error {
	if res == nil || res.Carried == 0 {
		return nil
	}
	ctx = logger.WithTenantID(ctx, res.TenantID)

	err := s.publish(ctx, messagequeue.SubjectSchedulerCarryOver, messagequeue.CarryOverPayload{
		TenantName: tenantName,
		Result:     *res,
	})

	level := "info"
	if res.Overdue > 0 {
		level = "warning"
	}
	fields := []notifier.Field{
		{Label: "Carried", Value: strconv.Itoa(res.Carried)},
		{Label: "Overdue", Value: strconv.Itoa(res.Overdue)},
	}
	for _, it := range res.Items {
		if it.Overdue {
			fields = append(fields, notifier.Field{Label: it.Title, Value: "due " + it.DueDate.Format(time.DateOnly)})
		}
	}
	s.Notify(ctx, notifier.Notification{
		TenantID: res.TenantID,
		Title:    fmt.Sprintf("Unfinished work carried over for %s", tenantName),
		Message:  fmt.Sprintf("%s to %s", res.FromDate.Format(time.DateOnly), res.ToDate.Format(time.DateOnly)),
		Fields:   fields,
		Level:    level,
		Source:   messagequeue.SubjectSchedulerCarryOver,
	})
	return err
}

// PublishDigest hands a daily digest downstream.
func (s *NotificationService) PublishDigest(ctx context.Context, tenantName string, d *schedule.DailyDigest) error {
	if d == nil {
		return nil
	}
	ctx = logger.WithTenantID(ctx, d.TenantID)

	summary := d.Summary()
	err := s.publish(ctx, messagequeue.SubjectSchedulerDigest, messagequeue.DigestPayload{
		TenantName: tenantName,
		Digest:     *d,
		Summary:    summary,
	})

	s.Notify(ctx, notifier.Notification{
		TenantID: d.TenantID,
		Title:    fmt.Sprintf("Daily digest for %s", tenantName),
		Message:  summary,
		Fields: []notifier.Field{
			{Label: "Items due", Value: strconv.Itoa(d.ItemsDue)},
			{Label: "Overdue", Value: strconv.Itoa(d.ItemsOverdue)},
			{Label: "Staff present", Value: strconv.Itoa(d.StaffPresent)},
			{Label: "New leads", Value: strconv.Itoa(d.NewLeads)},
			{Label: "Unpaid invoices", Value: strconv.Itoa(d.PendingInvoices)},
		},
		Level:  "info",
		Source: messagequeue.SubjectSchedulerDigest,
	})
	return err
}
