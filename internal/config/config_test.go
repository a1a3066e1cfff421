package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Database.DSN != "vcscatalog.db" {
		t.Fatalf("Database.DSN = %q, want %q", cfg.Database.DSN, "vcscatalog.db")
	}
	if cfg.Events.Workers != 4 || cfg.Events.Buffer != 256 {
		t.Fatalf("Events = %+v, want 4 workers and a 256 event buffer", cfg.Events)
	}
	if !cfg.Query.RepositoryCache {
		t.Fatal("Query.RepositoryCache = false, want default true")
	}
	if cfg.Query.HistoryLimit != 0 {
		t.Fatalf("Query.HistoryLimit = %d, want unlimited", cfg.Query.HistoryLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate(default) = %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("VCSCATALOG_DB_DRIVER", "Postgres")
	t.Setenv("VCSCATALOG_DB_DSN", "postgres://example")
	t.Setenv("VCSCATALOG_STORAGE_PATH", "/tmp/exports")
	t.Setenv("VCSCATALOG_WEBHOOK_URL", " https://hooks.example.com/catalog ")
	t.Setenv("VCSCATALOG_WEBHOOK_SECRET", "s3cret")
	t.Setenv("VCSCATALOG_EVENT_WORKERS", "8")
	t.Setenv("VCSCATALOG_EVENT_BUFFER", "1024")
	t.Setenv("VCSCATALOG_HISTORY_LIMIT", "50")
	t.Setenv("VCSCATALOG_REPO_CACHE", "false")
	t.Setenv("VCSCATALOG_OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Fatalf("Database.Driver = %q, want %q", cfg.Database.Driver, "postgres")
	}
	if cfg.Database.DSN != "postgres://example" {
		t.Fatalf("Database.DSN = %q, want %q", cfg.Database.DSN, "postgres://example")
	}
	if cfg.Storage.Path != "/tmp/exports" {
		t.Fatalf("Storage.Path = %q, want %q", cfg.Storage.Path, "/tmp/exports")
	}
	if cfg.Events.Webhook.URL != "https://hooks.example.com/catalog" {
		t.Fatalf("Events.Webhook.URL = %q", cfg.Events.Webhook.URL)
	}
	if cfg.Events.Webhook.Secret != "s3cret" {
		t.Fatalf("Events.Webhook.Secret = %q, want override", cfg.Events.Webhook.Secret)
	}
	if cfg.Events.Workers != 8 || cfg.Events.Buffer != 1024 {
		t.Fatalf("Events = %+v, want 8 workers and a 1024 event buffer", cfg.Events)
	}
	if cfg.Query.HistoryLimit != 50 {
		t.Fatalf("Query.HistoryLimit = %d, want 50", cfg.Query.HistoryLimit)
	}
	if cfg.Query.RepositoryCache {
		t.Fatal("Query.RepositoryCache = true, want false")
	}
	if cfg.Tracing.OTLPEndpoint != "localhost:4318" {
		t.Fatalf("Tracing.OTLPEndpoint = %q, want %q", cfg.Tracing.OTLPEndpoint, "localhost:4318")
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
database:
  driver: sqlite
  dsn: test.db
storage:
  path: data/archive
events:
  log: false
  workers: 2
  webhook:
    url: https://hooks.example.com
    events:
      - operation.insert
      - repository.delete
    attempts: 5
    timeout: 750ms
query:
  history_limit: 10
  repository_cache: false
tracing:
  service_name: catalog-test
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(path): %v", err)
	}

	if cfg.Database.DSN != "test.db" {
		t.Fatalf("Database.DSN = %q, want %q", cfg.Database.DSN, "test.db")
	}
	if cfg.Storage.Path != "data/archive" {
		t.Fatalf("Storage.Path = %q, want %q", cfg.Storage.Path, "data/archive")
	}
	if cfg.Events.Log {
		t.Fatal("Events.Log = true, want false")
	}
	if cfg.Events.Workers != 2 {
		t.Fatalf("Events.Workers = %d, want 2", cfg.Events.Workers)
	}
	if cfg.Events.Buffer != 256 {
		t.Fatalf("Events.Buffer = %d, want default 256", cfg.Events.Buffer)
	}
	if len(cfg.Events.Webhook.Events) != 2 || cfg.Events.Webhook.Events[1] != "repository.delete" {
		t.Fatalf("Events.Webhook.Events = %#v", cfg.Events.Webhook.Events)
	}
	if cfg.Events.Webhook.Attempts != 5 {
		t.Fatalf("Events.Webhook.Attempts = %d, want 5", cfg.Events.Webhook.Attempts)
	}
	if timeout, err := cfg.WebhookTimeout(); err != nil || timeout != 750*time.Millisecond {
		t.Fatalf("WebhookTimeout() = %v, %v", timeout, err)
	}
	if cfg.Query.HistoryLimit != 10 || cfg.Query.RepositoryCache {
		t.Fatalf("Query = %+v", cfg.Query)
	}
	if cfg.Tracing.ServiceName != "catalog-test" {
		t.Fatalf("Tracing.ServiceName = %q, want %q", cfg.Tracing.ServiceName, "catalog-test")
	}
}
