package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marvil07/versioncontrol/internal/config"
	"github.com/marvil07/versioncontrol/internal/database"
	"github.com/marvil07/versioncontrol/internal/events"
	"github.com/marvil07/versioncontrol/internal/service"
)

var rootCmd = &cobra.Command{
	Use:           "vcscatalog",
	Short:         "Version control metadata catalog",
	Long:          "vcscatalog inspects and maintains the operation, item and label catalog recorded for version control repositories.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		return setupLogging(level)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// app holds what a command needs to talk to the catalog.
type app struct {
	cfg        *config.Config
	db         *database.DB
	catalog    *service.Catalog
	dispatcher *events.AsyncDispatcher
	shutdown   func(context.Context) error
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	traceShutdown, err := initTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		traceShutdown(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{cfg: cfg, db: db, shutdown: traceShutdown}
	sink, err := buildSink(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if sink != nil {
		a.dispatcher = events.NewAsyncDispatcher(sink, events.DispatcherOptions{
			Workers: cfg.Events.Workers,
			Buffer:  cfg.Events.Buffer,
		})
		if err := a.dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
			a.Close()
			return nil, err
		}
	}

	opts := service.Options{CacheRepositories: cfg.Query.RepositoryCache}
	if a.dispatcher != nil {
		opts.Events = a.dispatcher
	}
	a.catalog = service.New(db, opts)
	return a, nil
}

func buildSink(cfg *config.Config) (events.Sink, error) {
	var sinks events.Multi
	if cfg.Events.Log {
		sinks = append(sinks, events.LogSink{})
	}
	if cfg.Events.Webhook.URL != "" {
		timeout, err := cfg.WebhookTimeout()
		if err != nil {
			return nil, err
		}
		hook := events.NewWebhookSink(events.WebhookOptions{
			URL:         cfg.Events.Webhook.URL,
			Secret:      cfg.Events.Webhook.Secret,
			MaxAttempts: cfg.Events.Webhook.Attempts,
			Timeout:     timeout,
		})
		sinks = append(sinks, events.Filter(hook, cfg.Events.Webhook.Events...))
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.dispatcher != nil {
		if err := a.dispatcher.Stop(ctx); err != nil {
			slog.Error("stop event dispatcher", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			slog.Error("shutdown tracing", "error", err)
		}
	}
}
