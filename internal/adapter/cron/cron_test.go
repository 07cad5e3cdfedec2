package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }
	tests := []struct {
		name    string
		spec    string
		tz      string
		wantErr bool
	}{
		{"standard spec", "5 0 * * *", "Europe/Berlin", false},
		{"descriptor", "@daily", "", false},
		{"bad spec", "every day please", "UTC", true},
		{"six fields", "0 5 0 * * *", "UTC", true},
		{"bad zone", "5 0 * * *", "Mars/Olympus", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec, tt.tz, 0, noop)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNext_UsesZone(t *testing.T) {
	tr, err := New("5 0 * * *", "America/New_York", 0, func(context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	tr.Start()
	defer func() { _ = tr.Stop(context.Background()) }()

	next := tr.Next()
	if next.IsZero() {
		t.Fatal("expected a scheduled activation")
	}
	ny, _ := time.LoadLocation("America/New_York")
	local := next.In(ny)
	if local.Hour() != 0 || local.Minute() != 5 {
		t.Fatalf("expected 00:05 New York time, got %s", local)
	}
}

func TestTick_RunsJobWithDeadline(t *testing.T) {
	got := make(chan bool, 1)
	tr, err := New("@daily", "UTC", time.Minute, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		got <- ok
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	tr.tick()
	if !<-got {
		t.Fatal("expected the tick context to carry the configured deadline")
	}
}

func TestTick_ErrorsAreContained(t *testing.T) {
	for _, jobErr := range []error{ErrSkip, errors.New("db down")} {
		tr, err := New("@daily", "UTC", 0, func(context.Context) error { return jobErr })
		if err != nil {
			t.Fatal(err)
		}
		tr.tick()
	}
}

func TestStop_CancelsRunningTick(t *testing.T) {
	started := make(chan struct{})
	tr, err := New("@daily", "UTC", 0, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		tr.tick()
		close(done)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("running tick was not cancelled")
	}
}
