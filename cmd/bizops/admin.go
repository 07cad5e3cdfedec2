package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/term"

	"github.com/Strob0t/bizops/internal/adapter/postgres"
	"github.com/Strob0t/bizops/internal/adapter/ristretto"
	"github.com/Strob0t/bizops/internal/config"
	"github.com/Strob0t/bizops/internal/domain/entitlement"
	"github.com/Strob0t/bizops/internal/domain/schedule"
	"github.com/Strob0t/bizops/internal/domain/tenant"
	"github.com/Strob0t/bizops/internal/logger"
	"github.com/Strob0t/bizops/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "seed-catalog":
		return runAdminSeedCatalog(args[1:])
	case "list-tenants":
		return runAdminListTenants(args[1:])
	case "check":
		return runAdminCheck(args[1:])
	case "run-daily":
		return runAdminRunDaily(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: bizops admin <command> [options]

Commands:
  migrate        Apply, roll back or inspect schema migrations
  seed-catalog   Write the capability catalog and tier mappings to the database
  list-tenants   List all tenants
  check          Resolve one capability for one tenant
  run-daily      Run the daily scheduling pass now
  help           Show this help message

Examples:
  bizops admin migrate up
  bizops admin migrate down --steps 1
  bizops admin seed-catalog --catalog catalog.yaml
  bizops admin check --tenant 3f0c... --capability advanced_analytics
  bizops admin run-daily --date 2026-03-14 --tenant 3f0c...
`)
}

type adminDeps struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	store *postgres.Store
}

func loadAdminDeps(ctx context.Context) (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		closeLog.Close()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	cleanup := func() {
		pool.Close()
		closeLog.Close()
	}
	return &adminDeps{cfg: cfg, pool: pool, store: postgres.NewStore(pool)}, cleanup, nil
}

func runAdminMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate requires one of: up, down, status")
	}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	case "down":
		if *steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate action: %s", args[0])
	}

	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "schema version: %d\n", version)
	return nil
}

func runAdminSeedCatalog(args []string) error {
	fs := flag.NewFlagSet("seed-catalog", flag.ContinueOnError)
	path := fs.String("catalog", "", "catalog YAML file (default: configured or compiled-in catalog)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	entCfg := deps.cfg.Entitlements
	if *path != "" {
		entCfg.CatalogFile = *path
	}
	catalog, err := loadCatalog(entCfg)
	if err != nil {
		return err
	}

	admin := service.NewEntitlementAdminService(deps.store, catalog, nil)
	if err := admin.SeedCatalog(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Seeded %d capabilities\n", len(catalog.Keys()))
	return nil
}

func runAdminListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print JSON even on a terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tenants, err := service.NewTenantService(deps.store).List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		return writeJSONOut(os.Stdout, tenants)
	}
	return printTenants(os.Stdout, tenants)
}

func printTenants(out io.Writer, tenants []tenant.Tenant) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSLUG\tTIER\tTIMEZONE\tENABLED")
	for i := range tenants {
		t := &tenants[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Slug, t.Tier, t.Timezone, strconv.FormatBool(t.Enabled))
	}
	return w.Flush()
}

func runAdminCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant ID (required)")
	capability := fs.String("capability", "", "capability key (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" || *capability == "" {
		return fmt.Errorf("--tenant and --capability are required")
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	catalog, err := loadCatalog(deps.cfg.Entitlements)
	if err != nil {
		return err
	}
	c, err := ristretto.New(1 << 20)
	if err != nil {
		return err
	}
	defer c.Close()

	tc, err := service.NewTenantService(deps.store).Context(ctx, *tenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	resolver := service.NewEntitlementResolver(catalog, deps.store, c, deps.cfg.Cache.ResolutionTTL)
	decision, err := resolver.Resolve(ctx, entitlement.Key(*capability), tc)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	return writeJSONOut(os.Stdout, decision)
}

func runAdminRunDaily(args []string) error {
	fs := flag.NewFlagSet("run-daily", flag.ContinueOnError)
	date := fs.String("date", "", "day to run, YYYY-MM-DD (default: today in each tenant's zone)")
	tenantID := fs.String("tenant", "", "limit the run to one tenant")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := service.ParseRunRequest(*date, *tenantID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	deps, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := service.NewSchedulerService(deps.store, deps.cfg.Scheduler.LoadCeiling)
	runner := service.NewDailyRunner(deps.store, sched, deps.cfg.Scheduler)
	runs, err := runner.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if err := printRuns(os.Stdout, runs); err != nil {
		return err
	}
	for i := range runs {
		if runs[i].Failed() {
			return fmt.Errorf("%d of %d tenant passes failed", countFailed(runs), len(runs))
		}
	}
	return nil
}

func printRuns(out io.Writer, runs []schedule.TenantRun) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tDATE\tSPAWNED\tALLOCATED\tCARRIED\tERROR")
	for i := range runs {
		r := &runs[i]
		allocated, carried := 0, 0
		if r.Allocated != nil {
			allocated = r.Allocated.Allocated
		}
		if r.CarryOver != nil {
			carried = r.CarryOver.Carried
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.TenantID, r.Date.Format("2006-01-02"), r.Spawned, allocated, carried, r.Error)
	}
	return w.Flush()
}

func countFailed(runs []schedule.TenantRun) int {
	n := 0
	for i := range runs {
		if runs[i].Failed() {
			n++
		}
	}
	return n
}

func writeJSONOut(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
