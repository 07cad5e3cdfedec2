package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "bizops.yaml"

// Bounds of the entitlement resolution cache window.
const (
	minResolutionTTL = 10 * time.Second
	maxResolutionTTL = 30 * time.Second
)

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "BIZOPS_PORT")
	setString(&cfg.Server.CORSOrigin, "BIZOPS_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "BIZOPS_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "BIZOPS_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "BIZOPS_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "BIZOPS_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "BIZOPS_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "BIZOPS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BIZOPS_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "BIZOPS_LOG_ASYNC")

	// Cache
	setDuration(&cfg.Cache.ResolutionTTL, "BIZOPS_CACHE_TTL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "BIZOPS_CACHE_L1_SIZE_MB")
	setBool(&cfg.Cache.L2Enabled, "BIZOPS_CACHE_L2_ENABLED")
	setString(&cfg.Cache.L2Bucket, "BIZOPS_CACHE_L2_BUCKET")

	// Entitlements
	setString(&cfg.Entitlements.CatalogFile, "BIZOPS_CATALOG_FILE")
	setBool(&cfg.Entitlements.SeedOnStart, "BIZOPS_CATALOG_SEED")

	// Scheduler
	setBool(&cfg.Scheduler.Enabled, "BIZOPS_SCHEDULER_ENABLED")
	setString(&cfg.Scheduler.Cron, "BIZOPS_SCHEDULER_CRON")
	setString(&cfg.Scheduler.Timezone, "BIZOPS_SCHEDULER_TZ")
	setInt(&cfg.Scheduler.MaxParallel, "BIZOPS_SCHEDULER_MAX_PARALLEL")
	setDuration(&cfg.Scheduler.TenantTimeout, "BIZOPS_SCHEDULER_TENANT_TIMEOUT")
	setInt(&cfg.Scheduler.LoadCeiling, "BIZOPS_SCHEDULER_LOAD_CEILING")
	setString(&cfg.Scheduler.TriggerToken, "BIZOPS_SCHEDULER_TOKEN")

	// Notify
	setString(&cfg.Notify.SlackWebhookURL, "BIZOPS_SLACK_WEBHOOK_URL")
	setString(&cfg.Notify.DiscordWebhookURL, "BIZOPS_DISCORD_WEBHOOK_URL")
	setString(&cfg.Notify.SMTPHost, "BIZOPS_SMTP_HOST")
	setInt(&cfg.Notify.SMTPPort, "BIZOPS_SMTP_PORT")
	setString(&cfg.Notify.SMTPFrom, "BIZOPS_SMTP_FROM")
	setString(&cfg.Notify.SMTPPassword, "BIZOPS_SMTP_PASSWORD")
	setStringList(&cfg.Notify.EmailTo, "BIZOPS_EMAIL_TO")

	setInt(&cfg.Breaker.MaxFailures, "BIZOPS_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "BIZOPS_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "BIZOPS_RATE_RPS")
	setInt(&cfg.Rate.Burst, "BIZOPS_RATE_BURST")
	setDuration(&cfg.Rate.MaxIdleTime, "BIZOPS_RATE_MAX_IDLE_TIME")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "BIZOPS_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "BIZOPS_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Cache.ResolutionTTL < minResolutionTTL || cfg.Cache.ResolutionTTL > maxResolutionTTL {
		return fmt.Errorf("cache.resolution_ttl must be between %s and %s", minResolutionTTL, maxResolutionTTL)
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.Cache.L2Enabled && cfg.Cache.L2Bucket == "" {
		return errors.New("cache.l2_bucket is required when l2 is enabled")
	}
	if cfg.Scheduler.MaxParallel < 1 {
		return errors.New("scheduler.max_parallel must be >= 1")
	}
	if cfg.Scheduler.LoadCeiling < 1 {
		return errors.New("scheduler.load_ceiling must be >= 1")
	}
	if cfg.Scheduler.TenantTimeout <= 0 {
		return errors.New("scheduler.tenant_timeout must be > 0")
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setStringList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
