package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/bizops/internal/adapter/cron"
	bizhttp "github.com/Strob0t/bizops/internal/adapter/http"
	bizNats "github.com/Strob0t/bizops/internal/adapter/nats"
	"github.com/Strob0t/bizops/internal/adapter/natskv"
	cfotel "github.com/Strob0t/bizops/internal/adapter/otel"
	"github.com/Strob0t/bizops/internal/adapter/postgres"
	"github.com/Strob0t/bizops/internal/adapter/ristretto"
	"github.com/Strob0t/bizops/internal/adapter/tiered"
	"github.com/Strob0t/bizops/internal/config"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/logger"
	"github.com/Strob0t/bizops/internal/middleware"
	"github.com/Strob0t/bizops/internal/port/cache"
	"github.com/Strob0t/bizops/internal/port/messagequeue"
	"github.com/Strob0t/bizops/internal/port/notifier"
	"github.com/Strob0t/bizops/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"file", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"scheduler_enabled", cfg.Scheduler.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	otelShutdown, err := cfotel.Init(ctx, cfg.OTEL, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := bizNats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Entitlement cache: ristretto L1, optionally backed by a NATS KV L2.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	var resolutionCache cache.Cache = l1
	if cfg.Cache.L2Enabled {
		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.ResolutionTTL)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		resolutionCache = tiered.New(l1, natskv.New(kv), cfg.Cache.ResolutionTTL)
		slog.Info("tiered entitlement cache enabled", "bucket", cfg.Cache.L2Bucket)
	}

	// --- Services ---

	catalog, err := loadCatalog(cfg.Entitlements)
	if err != nil {
		return err
	}

	store := postgres.NewStore(pool)
	resolver := service.NewEntitlementResolver(catalog, store, resolutionCache, cfg.Cache.ResolutionTTL)
	resolver.SetMetrics(metrics)
	admin := service.NewEntitlementAdminService(store, catalog, resolver)
	if cfg.Entitlements.SeedOnStart {
		if err := admin.SeedCatalog(ctx); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}

	notifySvc := service.NewNotificationService(buildNotifiers(cfg.Notify), nil)
	notifySvc.SetQueue(queue)
	notifySvc.SetBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	slog.Info("notifiers configured", "count", notifySvc.NotifierCount())

	sched := service.NewSchedulerService(store, cfg.Scheduler.LoadCeiling)
	sched.SetMetrics(metrics)
	runner := service.NewDailyRunner(store, sched, cfg.Scheduler)
	runner.SetMetrics(metrics)
	runner.SetPublisher(notifySvc)

	cancelRunSub, err := queue.Subscribe(ctx, messagequeue.SubjectSchedulerRun, runner.HandleRunRequest)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messagequeue.SubjectSchedulerRun, err)
	}
	defer cancelRunSub()

	var trigger *cron.Trigger
	if cfg.Scheduler.Enabled {
		trigger, err = cron.New(cfg.Scheduler.Cron, cfg.Scheduler.Timezone, 0, func(ctx context.Context) error {
			_, err := runner.Run(ctx, service.RunRequest{})
			if errors.Is(err, service.ErrRunInProgress) {
				return cron.ErrSkip
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		trigger.Start()
	}

	// --- HTTP ---

	handlers := &bizhttp.Handlers{
		Tenants:      service.NewTenantService(store),
		Resolver:     resolver,
		Admin:        admin,
		WorkItems:    service.NewWorkItemService(store),
		Scheduler:    sched,
		Runner:       runner,
		Notification: notifySvc,
		Checks:       healthChecks(store, queue),
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(time.Minute, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(bizhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(bizhttp.SecurityHeaders)
	r.Use(bizhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.TenantID)
	r.Use(chimw.Timeout(30 * time.Second))

	bizhttp.MountRoutes(r, handlers, limiter, cfg.Scheduler.TriggerToken)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Scheduler.TenantTimeout + time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			slog.Warn("scheduler stop", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	return nil
}

func loadCatalog(cfg config.Entitlements) (*entitlement.Catalog, error) {
	if cfg.CatalogFile == "" {
		return entitlement.DefaultCatalog()
	}
	cat, err := entitlement.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", cfg.CatalogFile, err)
	}
	return cat, nil
}

// buildNotifiers creates every registered notifier whose settings are
// present. Providers without configuration are skipped.
func buildNotifiers(cfg config.Notify) []notifier.Notifier {
	settings := map[string]map[string]string{
		"slack":   {"webhook_url": cfg.SlackWebhookURL},
		"discord": {"webhook_url": cfg.DiscordWebhookURL},
		"email": {
			"host":     cfg.SMTPHost,
			"port":     strconv.Itoa(cfg.SMTPPort),
			"from":     cfg.SMTPFrom,
			"password": cfg.SMTPPassword,
			"to":       strings.Join(cfg.EmailTo, ","),
		},
	}

	var out []notifier.Notifier
	for _, name := range notifier.Available() {
		n, err := notifier.New(name, settings[name])
		if err != nil {
			if !errors.Is(err, notifier.ErrNotConfigured) {
				slog.Warn("notifier unavailable", "provider", name, "error", err)
			}
			continue
		}
		out = append(out, n)
	}
	return out
}

func healthChecks(store *postgres.Store, queue *bizNats.Queue) []bizhttp.HealthCheck {
	return []bizhttp.HealthCheck{
		{Name: "postgres", Check: store.Ping},
		{Name: "nats", Check: func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
	}
}
