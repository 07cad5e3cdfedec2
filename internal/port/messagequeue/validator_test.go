package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateRunRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "empty object", data: `{}`},
		{name: "with date", data: `{"date":"2026-03-14"}`},
		{name: "with tenant", data: `{"tenant_id":"t1","date":"2026-03-14"}`},
		{name: "bad date", data: `{"date":"14.03.2026"}`, wantErr: "bad date"},
		{name: "wrong type", data: `{"date":5}`, wantErr: "schema validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(SubjectSchedulerRun, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateCarryOver(t *testing.T) {
	ok := []byte(`{"tenant_name":"Acme","result":{"tenant_id":"t1","from_date":"2026-03-13T00:00:00Z","to_date":"2026-03-14T00:00:00Z","carried":2,"overdue":1}}`)
	if err := Validate(SubjectSchedulerCarryOver, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := []byte(`{"tenant_name":"Acme","result":{"carried":2}}`)
	err := Validate(SubjectSchedulerCarryOver, missing)
	if err == nil || !strings.Contains(err.Error(), "tenant_id is required") {
		t.Fatalf("expected tenant_id error, got %v", err)
	}
}

func TestValidateDigest(t *testing.T) {
	ok := []byte(`{"tenant_name":"Acme","digest":{"tenant_id":"t1","items_due":3},"summary":"x"}`)
	if err := Validate(SubjectSchedulerDigest, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []byte(`{"digest":{"tenant_id":"t1","items_due":"three"}}`)
	if err := Validate(SubjectSchedulerDigest, bad); err == nil {
		t.Fatal("expected schema error for string count")
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	err := Validate(SubjectSchedulerDigest, []byte("not-json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestValidateUnknownSubjectPasses(t *testing.T) {
	if err := Validate("scheduler.custom", []byte(`{"anything":true}`)); err != nil {
		t.Fatalf("unknown subject should pass, got %v", err)
	}
}
