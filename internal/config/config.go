package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Events   EventsConfig   `yaml:"events"`
	Query    QueryConfig    `yaml:"query"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection string for postgres
}

type StorageConfig struct {
	Path string `yaml:"path"` // local directory for catalog exports
}

type EventsConfig struct {
	Log     bool          `yaml:"log"`
	Workers int           `yaml:"workers"`
	Buffer  int           `yaml:"buffer"`
	Webhook WebhookConfig `yaml:"webhook"`
}

type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Secret   string   `yaml:"secret"`
	Events   []string `yaml:"events"` // event names to deliver, all when empty
	Attempts int      `yaml:"attempts"`
	Timeout  string   `yaml:"timeout"` // e.g. "5s"
}

type QueryConfig struct {
	// HistoryLimit bounds item history walks in both directions; 0 is unlimited.
	HistoryLimit    int  `yaml:"history_limit"`
	RepositoryCache bool `yaml:"repository_cache"`
}

type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// WebhookTimeout parses Events.Webhook.Timeout, returning 0 when unset.
func (c *Config) WebhookTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Events.Webhook.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Events.Webhook.Timeout)
	if err != nil {
		return 0, fmt.Errorf("events.webhook.timeout: %w", err)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres (got %q)", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn must be configured (example: VCSCATALOG_DB_DSN=catalog.db)")
	}
	if c.Events.Workers < 0 || c.Events.Buffer < 0 {
		return fmt.Errorf("events.workers and events.buffer must not be negative")
	}
	if c.Query.HistoryLimit < 0 {
		return fmt.Errorf("query.history_limit must not be negative (current value: %d)", c.Query.HistoryLimit)
	}
	if _, err := c.WebhookTimeout(); err != nil {
		return err
	}
	return nil
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "vcscatalog.db",
		},
		Storage: StorageConfig{
			Path: "data/exports",
		},
		Events: EventsConfig{
			Log:     true,
			Workers: 4,
			Buffer:  256,
			Webhook: WebhookConfig{
				Attempts: 3,
				Timeout:  "5s",
			},
		},
		Query: QueryConfig{
			RepositoryCache: true,
		},
		Tracing: TracingConfig{
			ServiceName: "vcscatalog",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VCSCATALOG_DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("VCSCATALOG_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VCSCATALOG_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("VCSCATALOG_WEBHOOK_URL"); v != "" {
		cfg.Events.Webhook.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("VCSCATALOG_WEBHOOK_SECRET"); v != "" {
		cfg.Events.Webhook.Secret = v
	}
	if v := os.Getenv("VCSCATALOG_WEBHOOK_EVENTS"); v != "" {
		cfg.Events.Webhook.Events = parseCSV(v)
	}
	if v := os.Getenv("VCSCATALOG_EVENT_LOG"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Events.Log = enabled
		}
	}
	if v := os.Getenv("VCSCATALOG_EVENT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Events.Workers = n
		}
	}
	if v := os.Getenv("VCSCATALOG_EVENT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Events.Buffer = n
		}
	}
	if v := os.Getenv("VCSCATALOG_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Query.HistoryLimit = n
		}
	}
	if v := os.Getenv("VCSCATALOG_REPO_CACHE"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Query.RepositoryCache = enabled
		}
	}
	if v := os.Getenv("VCSCATALOG_OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = strings.TrimSpace(v)
	}
}

func parseCSV(v string) []string {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
