package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/bizops/internal/adapter/otel"
	"github.com/Strob0t/bizops/internal/config"
	"github.com/Strob0t/bizops/internal/domain"
	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/domain/tenant"
	"github.com/Strob0t/bizops/internal/domain/workitem"
	"github.com/Strob0t/bizops/internal/logger"
	"github.com/Strob0t/bizops/internal/port/database"
	"github.com/Strob0t/bizops/internal/port/messagequeue"
)

// ErrRunInProgress is returned when a daily run is triggered while another is active.
var ErrRunInProgress = fmt.Errorf("%w: daily run already in progress", domain.ErrConflict)

// ResultPublisher receives the results a tenant pass produces.
type ResultPublisher interface {
	PublishCarryOver(ctx context.Context, tenantName string, res *schedule.CarryOverResult) error
	PublishDigest(ctx context.Context, tenantName string, d *schedule.DailyDigest) error
}

// RunRequest selects what a daily run covers. A nil Date means today in
// each tenant's zone; an empty TenantID means every enabled tenant.
type RunRequest struct {
	Date     *time.Time
	TenantID string
}

// DailyRunner drives the scheduling operations once per tenant per day.
type DailyRunner struct {
	tenants       database.TenantStore
	sched         *SchedulerService
	publisher     ResultPublisher
	maxParallel   int
	tenantTimeout time.Duration
	metrics       *cfotel.Metrics
	now           func() time.Time
	running       atomic.Bool
	log           runLog
}

// NewDailyRunner creates a DailyRunner from the scheduler configuration.
func NewDailyRunner(tenants database.TenantStore, sched *SchedulerService, cfg config.Scheduler) *DailyRunner {
	maxParallel := cfg.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &DailyRunner{
		tenants:       tenants,
		sched:         sched,
		maxParallel:   maxParallel,
		tenantTimeout: cfg.TenantTimeout,
		now:           time.Now,
	}
}

// SetPublisher enables the notification hand-off.
func (r *DailyRunner) SetPublisher(p ResultPublisher) { r.publisher = p }

// SetMetrics enables metric recording.
func (r *DailyRunner) SetMetrics(m *cfotel.Metrics) { r.metrics = m }

// Run executes the daily pass for the selected tenants concurrently. A
// failing tenant never stops the others; its error is recorded in its
// TenantRun. Only failing to enumerate tenants is returned as an error.
func (r *DailyRunner) Run(ctx context.Context, req RunRequest) ([]schedule.TenantRun, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	targets, err := r.targets(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	runs := make([]schedule.TenantRun, len(targets))

	var g errgroup.Group
	g.SetLimit(r.maxParallel)
	for i := range targets {
		t := targets[i]
		g.Go(func() error {
			runs[i] = r.RunTenant(ctx, &t, r.asOf(&t, req.Date))
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i := range runs {
		if runs[i].Failed() {
			failed++
		}
	}
	r.log.Record(start, runs)
	slog.InfoContext(ctx, "daily run finished",
		"tenants", len(runs), "failed", failed, "duration", time.Since(start).String())
	return runs, nil
}

// LastRun returns the results of the most recent completed run.
func (r *DailyRunner) LastRun() (time.Time, []schedule.TenantRun) {
	return r.log.Last()
}

func (r *DailyRunner) targets(ctx context.Context, tenantID string) ([]tenant.Tenant, error) {
	if tenantID != "" {
		t, err := r.tenants.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("get tenant: %w", err)
		}
		return []tenant.Tenant{*t}, nil
	}

	all, err := r.tenants.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	enabled := all[:0]
	for i := range all {
		if all[i].Enabled {
			enabled = append(enabled, all[i])
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })
	return enabled, nil
}

// asOf returns the instant a pass evaluates at: now, or midday of the
// requested date in the tenant's zone. Dated runs always land on midday,
// so a weekly rule they spawned is next eligible eight days later.
func (r *DailyRunner) asOf(t *tenant.Tenant, date *time.Time) time.Time {
	if date == nil {
		return r.now()
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, t.Location())
}

// RunTenant performs one tenant's pass: expand today, allocate today,
// carry over yesterday, build today's digest. It stops at the first
// failing step and applies the configured per-tenant deadline.
func (r *DailyRunner) RunTenant(ctx context.Context, t *tenant.Tenant, asOf time.Time) schedule.TenantRun {
	today := workitem.Day(asOf, t.Location())
	run := schedule.TenantRun{TenantID: t.ID, Date: today}

	ctx = logger.WithTenantID(ctx, t.ID)
	if r.tenantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.tenantTimeout)
		defer cancel()
	}
	ctx, span := cfotel.StartTenantPassSpan(ctx, t.ID, today)
	defer span.End()
	start := time.Now()

	err := r.runStages(ctx, t, asOf, today, &run)
	if err != nil {
		run.Err = err
		run.Error = err.Error()
		span.RecordError(err)
		slog.ErrorContext(ctx, "tenant pass failed", "tenant_id", t.ID, "error", err)
	}

	if r.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("tenant_id", t.ID))
		r.metrics.TenantPassDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if err != nil {
			r.metrics.TenantPassFailures.Add(ctx, 1, attrs)
		}
	}

	if r.publisher != nil {
		r.publish(ctx, t, &run)
	}
	return run
}

func (r *DailyRunner) runStages(ctx context.Context, t *tenant.Tenant, asOf, today time.Time, run *schedule.TenantRun) error {
	stage := func(name string, fn func(context.Context) error) error {
		sctx, span := cfotel.StartStageSpan(ctx, name)
		defer span.End()
		if err := fn(sctx); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	if err := stage("expand", func(ctx context.Context) error {
		n, err := r.sched.ExpandDueToday(ctx, t.ID, asOf)
		run.Spawned = n
		return err
	}); err != nil {
		return err
	}
	if err := stage("allocate", func(ctx context.Context) error {
		res, err := r.sched.AllocateDay(ctx, t.ID, today)
		run.Allocated = res
		return err
	}); err != nil {
		return err
	}
	if err := stage("carry_over", func(ctx context.Context) error {
		res, err := r.sched.CarryOver(ctx, t.ID, workitem.PrevDay(today))
		run.CarryOver = res
		return err
	}); err != nil {
		return err
	}
	return stage("digest", func(ctx context.Context) error {
		d, err := r.sched.BuildDigest(ctx, t.ID, today)
		run.Digest = d
		return err
	})
}

// publish hands whatever the pass produced downstream. Delivery problems
// are logged and never fail the pass.
func (r *DailyRunner) publish(ctx context.Context, t *tenant.Tenant, run *schedule.TenantRun) {
	if run.CarryOver != nil {
		if err := r.publisher.PublishCarryOver(ctx, t.Name, run.CarryOver); err != nil {
			slog.WarnContext(ctx, "publish carry-over failed", "tenant_id", t.ID, "error", err)
		}
	}
	if run.Digest != nil {
		if err := r.publisher.PublishDigest(ctx, t.Name, run.Digest); err != nil {
			slog.WarnContext(ctx, "publish digest failed", "tenant_id", t.ID, "error", err)
		}
	}
}

// HandleRunRequest is a messagequeue.Handler for scheduler.run messages.
// A run already in progress is acknowledged and skipped.
func (r *DailyRunner) HandleRunRequest(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.RunRequestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode run request: %w", err)
	}
	req, err := ParseRunRequest(p.Date, p.TenantID)
	if err != nil {
		return err
	}
	if _, err := r.Run(ctx, req); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			slog.InfoContext(ctx, "run request skipped", "reason", err.Error())
			return nil
		}
		return err
	}
	return nil
}

// ParseRunRequest builds a RunRequest from an optional YYYY-MM-DD date.
func ParseRunRequest(date, tenantID string) (RunRequest, error) {
	req := RunRequest{TenantID: tenantID}
	if date != "" {
		d, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return req, domain.Invalid("date must be YYYY-MM-DD")
		}
		req.Date = &d
	}
	return req, nil
}

// runLog keeps the most recent run results for inspection over HTTP.
type runLog struct {
	mu   sync.RWMutex
	at   time.Time
	runs []schedule.TenantRun
}

// Record replaces the stored results.
func (l *runLog) Record(at time.Time, runs []schedule.TenantRun) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.at = at
	l.runs = runs
}

// Last returns the stored results and when they were recorded.
func (l *runLog) Last() (time.Time, []schedule.TenantRun) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]schedule.TenantRun, len(l.runs))
	copy(out, l.runs)
	return l.at, out
}
