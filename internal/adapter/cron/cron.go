// Package cron triggers the daily scheduling pass on a cron schedule
// evaluated in a configurable time zone.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/Strob0t/bizops/internal/logger"
)

// Job is the work a tick performs.
type Job func(ctx context.Context) error

// ErrSkip marks a tick that had nothing to do; it is logged at info level.
var ErrSkip = errors.New("cron: tick skipped")

// Trigger runs a Job on a schedule. Overlapping ticks are skipped.
type Trigger struct {
	c       *robfig.Cron
	entry   robfig.EntryID
	job     Job
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New parses spec (standard 5-field syntax or a descriptor such as
// "@daily") in the named zone. timeout bounds a single tick; zero means
// no deadline.
func New(spec, timezone string, timeout time.Duration, job Job) (*Trigger, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("cron timezone %q: %w", timezone, err)
	}

	log := slogLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Trigger{
		c: robfig.New(
			robfig.WithLocation(loc),
			robfig.WithLogger(log),
			robfig.WithChain(robfig.Recover(log), robfig.SkipIfStillRunning(log)),
		),
		job:     job,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}

	t.entry, err = t.c.AddFunc(spec, t.tick)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return t, nil
}

func (t *Trigger) tick() {
	ctx := logger.WithRequestID(t.ctx, "cron-"+time.Now().UTC().Format("20060102T150405"))
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	err := t.job(ctx)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "cron tick finished", "duration", time.Since(start).String())
	case errors.Is(err, ErrSkip):
		slog.InfoContext(ctx, "cron tick skipped", "reason", err.Error())
	default:
		slog.ErrorContext(ctx, "cron tick failed", "error", err)
	}
}

// Start begins scheduling in a background goroutine.
func (t *Trigger) Start() {
	t.c.Start()
	slog.Info("cron trigger started", "next", t.Next().Format(time.RFC3339))
}

// Next returns the next scheduled activation.
func (t *Trigger) Next() time.Time {
	return t.c.Entry(t.entry).Next
}

// Stop stops scheduling, cancels a running tick and waits for it to
// return or for ctx to expire.
func (t *Trigger) Stop(ctx context.Context) error {
	done := t.c.Stop()
	t.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron stop: %w", ctx.Err())
	}
}

// slogLogger adapts robfig's logger interface to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
