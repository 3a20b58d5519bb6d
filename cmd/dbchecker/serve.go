package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okzk/sdnotify"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gus-bms/db-checker/internal/alert"
	"github.com/gus-bms/db-checker/internal/collector"
	"github.com/gus-bms/db-checker/internal/config"
	"github.com/gus-bms/db-checker/internal/database"
	"github.com/gus-bms/db-checker/internal/gateway"
	"github.com/gus-bms/db-checker/internal/lease"
	"github.com/gus-bms/db-checker/internal/metrics"
	"github.com/gus-bms/db-checker/internal/notify"
	"github.com/gus-bms/db-checker/internal/server"
	"github.com/gus-bms/db-checker/internal/source"
	"github.com/gus-bms/db-checker/internal/source/mysql"
	"github.com/gus-bms/db-checker/internal/store"
	"github.com/gus-bms/db-checker/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector, cache API and live gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err := newLogger(cfg.Log, os.Stdout)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting dbchecker",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
	)

	m := metrics.New()

	// Redis is required: cache, history, pub/sub and cooldown all live there.
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rdb, err := database.ConnectRedis(connectCtx, cfg.Redis)
	cancel()
	if err != nil {
		return err
	}
	defer rdb.Close()
	logger.Info("redis connected", "addr", cfg.Redis.Addr)

	st := store.New(rdb, store.Config{
		KeyPrefix:    cfg.Redis.KeyPrefix,
		LatestTTL:    cfg.Collector.LatestTTL,
		SeriesWindow: cfg.Collector.SeriesWindow,
		DefaultRange: cfg.Gateway.PushWindow,
	}, logger.With("component", "store"))

	checks := []server.HealthCheck{{Name: "redis", Check: st.Ping}}

	leases, leaseCheck, closeLeases, err := newLeaseManager(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closeLeases()
	if leaseCheck != nil {
		checks = append(checks, *leaseCheck)
	}

	src, err := mysql.Open(cfg.Source.MySQL, logger.With("component", "source"))
	if err != nil {
		return err
	}
	defer src.Close()
	checks = append(checks, server.HealthCheck{Name: "mysql", Check: src.Ping})

	hub := gateway.NewHub(gateway.Config{
		PushWindow:     cfg.Gateway.PushWindow,
		OutboxSize:     cfg.Gateway.OutboxSize,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
		PingInterval:   cfg.Gateway.PingInterval,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, st, m, logger.With("component", "gateway"))

	// With the relay, the leader publishes to Redis and every instance's
	// relay feeds its own hub. Without it, the leader feeds its hub directly.
	var publisher collector.Publisher = hub
	var relay *gateway.Relay
	if cfg.Gateway.RelayEnabled() {
		publisher = st
		relay = gateway.NewRelay(st, hub, logger.With("component", "relay"))
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
	}

	thresholds := thresholdOverrides(cfg.Alerts.Thresholds).Apply(alert.DefaultThresholds())
	var notifier alert.Notifier
	if cfg.Alerts.Slack.WebhookURL != "" {
		notifier = notify.NewSlack(cfg.Alerts.Slack.WebhookURL,
			notify.WithLogger(logger.With("component", "notify")),
			notify.WithTimeout(cfg.Alerts.Slack.Timeout),
			notify.WithRetries(cfg.Alerts.Slack.MaxRetries, 500*time.Millisecond),
		)
	} else {
		logger.Info("slack webhook not configured, alerts disabled")
	}
	alerts := alert.New(alert.Config{
		Thresholds: thresholds,
		Cooldown:   cfg.Alerts.Cooldown,
	}, notifier, alert.NewRedisCooldown(rdb, ""), m, logger.With("component", "alert"))

	processOpts := source.ProcessListOptions{
		Limit:             cfg.Source.ProcessList.Limit,
		IncludeIdle:       cfg.Source.ProcessList.IncludeIdle,
		MinElapsedSeconds: cfg.Source.ProcessList.MinElapsedSeconds,
		MaxTextLength:     cfg.Source.ProcessList.MaxTextLength,
	}.Normalize()

	coll := collector.New(collector.Config{
		Interval:      cfg.Collector.Interval,
		FetchTimeout:  cfg.Collector.FetchTimeout,
		LeaseKey:      cfg.Lock.Key,
		LeaseDuration: cfg.Lock.LeaseDuration,
		OwnerID:       cfg.Instance.ID,
		ProcessList:   processOpts,
	}, collector.Deps{
		Lease:     leases,
		Source:    src,
		Store:     st,
		Publisher: publisher,
		Alerts:    alerts,
		Metrics:   m,
	}, logger.With("component", "collector"))

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		GatewayPath:    cfg.Gateway.Path,
		MetricsPath:    cfg.Metrics.Path,
		RequestTimeout: cfg.Collector.FetchTimeout,
		ProcessList:    source.ProcessListOptions{MaxTextLength: processOpts.MaxTextLength},
	}, server.Deps{
		Cache:      st,
		Source:     src,
		Resources:  src,
		Gateway:    hub,
		Metrics:    m,
		Thresholds: thresholds,
		Checks:     checks,
		IsLeader:   coll.IsLeader,
	}, logger.With("component", "http"))

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := coll.Start(ctx); err != nil {
		return fmt.Errorf("start collector: %w", err)
	}

	notifySystemd(logger, sdnotify.Ready)
	logger.Info("dbchecker running",
		"addr", cfg.Server.Addr,
		"lock_backend", cfg.Lock.Backend,
		"relay", cfg.Gateway.RelayEnabled(),
		"alerts", alerts.Enabled(),
	)

	<-ctx.Done()
	logger.Info("shutting down...")
	notifySystemd(logger, sdnotify.Stopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := coll.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop collector: %w", err))
	}
	if relay != nil {
		if err := relay.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop relay: %w", err))
		}
	}
	hub.Close()
	if err := srv.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop http server: %w", err))
	}
	if err := alerts.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("flush alerts: %w", err))
	}

	logger.Info("dbchecker stopped")
	return errors.Join(errs...)
}

// newLeaseManager builds the configured lease backend, an extra health check
// when it lives outside Redis, and its cleanup.
func newLeaseManager(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (lease.Manager, *server.HealthCheck, func(), error) {
	switch cfg.Lock.Backend {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := database.Connect(connectCtx, cfg.Lock.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect lease database: %w", err)
		}
		m := lease.NewPostgresManager(pool)
		if err := m.EnsureSchema(connectCtx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("lease schema: %w", err)
		}
		logger.Info("lease backend ready", "backend", "postgres", "host", cfg.Lock.Postgres.Host)
		return m, &server.HealthCheck{Name: "postgres", Check: pool.Ping}, pool.Close, nil
	default:
		logger.Info("lease backend ready", "backend", "redis")
		return lease.NewRedisManager(rdb), nil, func() {}, nil
	}
}

// thresholdOverrides maps the config section onto alert overrides.
func thresholdOverrides(t config.ThresholdsConfig) alert.Overrides {
	pair := func(p config.ThresholdPair) alert.Override {
		return alert.Override{Warn: p.Warn, Critical: p.Critical}
	}
	return alert.Overrides{
		ConnUsagePct:        pair(t.ConnUsagePct),
		ThreadsRunning:      pair(t.ThreadsRunning),
		RowLockCurrentWaits: pair(t.RowLockCurrentWaits),
		SlowQueries:         pair(t.SlowQueries),
	}
}

// notifySystemd reports lifecycle state when running under systemd.
func notifySystemd(logger *slog.Logger, fn func() error) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}
	if err := fn(); err != nil {
		logger.Debug("systemd notify failed", "error", err)
	}
}
