// Package email provides an SMTP-based notifier for the notification subsystem.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/Strob0t/bizops/internal/port/notifier"
)

const providerName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

// Notifier sends email notifications via SMTP.
type Notifier struct {
	cfg  SMTPConfig
	to   []string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier creates a new email notifier delivering to the given recipients.
func NewNotifier(cfg SMTPConfig, to []string) *Notifier {
	return &Notifier{cfg: cfg, to: to, send: smtp.SendMail}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{}
}

// Send sends the notification as a plain-text email to every recipient.
func (n *Notifier) Send(_ context.Context, notification notifier.Notification) error {
	if n.cfg.Host == "" || n.cfg.From == "" || len(n.to) == 0 {
		return notifier.ErrNotConfigured
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	msg := buildMessage(n.cfg.From, n.to, notification)

	var auth smtp.Auth
	if n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.Host)
	}

	if err := n.send(addr, auth, n.cfg.From, n.to, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, notification notifier.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(notification.Title))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	if notification.Message != "" {
		b.WriteString(notification.Message)
		b.WriteString("\r\n\r\n")
	}
	for _, f := range notification.Fields {
		fmt.Fprintf(&b, "%s: %s\r\n", f.Label, f.Value)
	}
	if notification.TenantID != "" {
		fmt.Fprintf(&b, "\r\nTenant: %s\r\n", notification.TenantID)
	}
	return []byte(b.String())
}

// sanitizeHeader strips line breaks so a title cannot inject headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
