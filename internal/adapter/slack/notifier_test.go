package slack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/bizops/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func TestNotifierName(t *testing.T) {
	n := NewNotifier("")
	if n.Name() != "slack" {
		t.Fatalf("expected 'slack', got %q", n.Name())
	}
}

func TestCapabilities(t *testing.T) {
	n := NewNotifier("")
	caps := n.Capabilities()
	if !caps.RichFormatting {
		t.Fatal("expected RichFormatting=true")
	}
	if caps.MaxFields != 40 {
		t.Errorf("expected MaxFields 40, got %d", caps.MaxFields)
	}
}

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("")
	err := n.Send(context.Background(), notifier.Notification{Title: "test"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendDigest(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Send(context.Background(), notifier.Notification{
		TenantID: "t1",
		Title:    "Daily digest for Acme",
		Message:  "2026-03-14",
		Fields: []notifier.Field{
			{Label: "Items due", Value: "4"},
			{Label: "Overdue", Value: "1"},
		},
		Level:  "info",
		Source: "scheduler.digest",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Blocks) != 4 {
		t.Fatalf("expected header, message, fields and context blocks, got %d", len(got.Blocks))
	}
	if got.Blocks[2].Fields[0].Text != "*Items due*\n4" {
		t.Errorf("unexpected field text %q", got.Blocks[2].Fields[0].Text)
	}
	if !strings.Contains(got.Blocks[3].Elements[0].Text, "t1") {
		t.Errorf("context block should mention tenant, got %q", got.Blocks[3].Elements[0].Text)
	}
}

func TestFieldsSplitAcrossSections(t *testing.T) {
	fields := make([]notifier.Field, 13)
	for i := range fields {
		fields[i] = notifier.Field{Label: "l", Value: "v"}
	}
	msg := buildMessage(notifier.Notification{Title: "carry-over", Fields: fields})

	// header + two field sections, no message and no context
	if len(msg.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(msg.Blocks))
	}
	if len(msg.Blocks[1].Fields) != 10 || len(msg.Blocks[2].Fields) != 3 {
		t.Errorf("unexpected split %d/%d", len(msg.Blocks[1].Fields), len(msg.Blocks[2].Fields))
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Test",
		Message: "Test message",
		Level:   "info",
	})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestRegisteredFactory(t *testing.T) {
	if _, err := notifier.New("slack", map[string]string{}); !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured without webhook, got %v", err)
	}
	n, err := notifier.New("slack", map[string]string{"webhook_url": "http://example.invalid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Name() != "slack" {
		t.Errorf("expected slack notifier, got %q", n.Name())
	}
}
