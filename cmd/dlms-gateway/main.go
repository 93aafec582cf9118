// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command dlms-gateway is the entry point for the DLMS reader gateway.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to Redis (optional).
//  4. Connect to PostgreSQL and run migrations (optional).
//  5. Load (and watch) the route table, build the library API client.
//  6. Wire the workspace registry and HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/dlms/internal/api"
	"github.com/taibuivan/dlms/internal/apiclient"
	"github.com/taibuivan/dlms/internal/navigation"
	"github.com/taibuivan/dlms/internal/platform/config"
	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/migration"
	pgstore "github.com/taibuivan/dlms/internal/platform/postgres"
	redisstore "github.com/taibuivan/dlms/internal/platform/redis"
	"github.com/taibuivan/dlms/internal/platform/sec"
	"github.com/taibuivan/dlms/internal/reader"
	"github.com/taibuivan/dlms/internal/workspace"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	log := newLogger(slog.LevelInfo)
	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("reader_backend", cfg.ReaderStateBackend),
	)

	// Fail fast on unreachable stores instead of hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. Redis ──────────────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.HasRedis() {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing_redis_client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis_close_error", slog.Any("error", cerr))
			}
		}()
	}

	// ── 4. PostgreSQL ─────────────────────────────────────────────────────
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing_postgres_pool")
			pool.Close()
		}()

		must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")
	}

	// ── 5. Route Table & Library API ──────────────────────────────────────
	// Background jobs (route table watcher, sweeps, purges) stop with rootCtx.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	table := navigation.DefaultTable()
	if cfg.RouteTablePath != "" {
		table, err = navigation.LoadTable(cfg.RouteTablePath)
		must(log, err, "load route table")
		must(log, navigation.Watch(rootCtx, cfg.RouteTablePath, table, log), "watch route table")
	}

	client, err := apiclient.New(apiclient.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
		Logger:  log,
	})
	must(log, err, "build library api client")

	// ── 6. Workspaces & Background Jobs ───────────────────────────────────
	registry := workspace.NewRegistry(workspace.Options{
		Client:        client,
		Table:         table,
		Redis:         rdb,
		Postgres:      pool,
		ReaderBackend: cfg.ReaderStateBackend,
		StateTTL:      cfg.SessionStateTTL,
		IdleTTL:       cfg.WorkspaceIdleTTL,
		Inspector:     sec.NewTokenInspector(constants.TokenClockSkew),
		Logger:        log,
	})
	go registry.Run(rootCtx)

	if pool != nil {
		go purgeReaderStates(rootCtx, pool, log)
	}

	// ── 7. Health handlers (only configured stores are checked) ──────────
	var health api.HealthDependencies
	if pool != nil {
		health.CheckDatabase = func(ctx context.Context) error { return pgstore.Ping(ctx, pool) }
	}
	if rdb != nil {
		health.CheckCache = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	}
	liveness, readiness := api.NewHealthHandlers(health, log)

	// ── 8. HTTP Server ────────────────────────────────────────────────────
	handlers := api.NewHandlers(table, liveness, readiness)
	server := api.NewServer(rootCtx, cfg, log, registry, handlers)

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting_down_server", slog.Duration("timeout", shutdownTimeout))

	rootCancel()
	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

// newLogger builds the JSON logger and installs it as the default.
func newLogger(level slog.Level) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With(slog.String("app", "dlms-gateway"))
	slog.SetDefault(log)
	return log
}

// purgeReaderStates deletes expired postgres snapshots until ctx is cancelled.
func purgeReaderStates(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) {
	ticker := time.NewTicker(constants.ReaderStatePurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := reader.PurgeExpiredStates(ctx, pool)
			if err != nil {
				log.Error("reader_state_purge_failed", slog.Any("error", err))
				continue
			}
			if purged > 0 {
				log.Info("reader_states_purged", slog.Int64("count", purged))
			}
		}
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned
// and handled explicitly.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("step", step),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
