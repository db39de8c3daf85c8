// Package main is the entrypoint for the CrossCast API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/crosscast-io/crosscast/internal/api"
	"github.com/crosscast-io/crosscast/internal/api/handler"
	mw "github.com/crosscast-io/crosscast/internal/api/middleware"
	"github.com/crosscast-io/crosscast/internal/cache"
	"github.com/crosscast-io/crosscast/internal/config"
	"github.com/crosscast-io/crosscast/internal/creds"
	"github.com/crosscast-io/crosscast/internal/notify"
	"github.com/crosscast-io/crosscast/internal/platform"
	"github.com/crosscast-io/crosscast/internal/platform/facebook"
	"github.com/crosscast-io/crosscast/internal/platform/instagram"
	"github.com/crosscast-io/crosscast/internal/platform/linkedin"
	"github.com/crosscast-io/crosscast/internal/platform/tiktok"
	"github.com/crosscast-io/crosscast/internal/platform/twitter"
	"github.com/crosscast-io/crosscast/internal/platform/youtube"
	"github.com/crosscast-io/crosscast/internal/publish"
	"github.com/crosscast-io/crosscast/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "max_attempts", cfg.Publisher.MaxAttempts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and credential source
	pgStore := store.NewPostgresStore(pool)
	credSource := creds.NewStoreSource(pgStore)

	// 6. Build the platform registry
	registry, err := platform.NewRegistry(
		facebook.NewClient(cfg.Platforms.Facebook, cfg.Platforms.Timeout),
		twitter.NewClient(cfg.Platforms.Twitter, cfg.Platforms.Timeout),
		instagram.NewClient(cfg.Platforms.Instagram, cfg.Platforms.Timeout),
		tiktok.NewClient(cfg.Platforms.TikTok, cfg.Platforms.Timeout),
		linkedin.NewClient(cfg.Platforms.LinkedIn, cfg.Platforms.Timeout),
		youtube.NewClient(cfg.Platforms.YouTube, cfg.Platforms.Timeout),
	)
	if err != nil {
		return fmt.Errorf("build platform registry: %w", err)
	}
	slog.Info("platform registry built", "platforms", len(registry.Platforms()))

	// 7. Start the notification hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := notify.NewHub()
	go hub.Run(hubCtx)

	// 8. Start the publishing scheduler
	scheduler := publish.NewScheduler(pgStore, registry, credSource, redisCache, hub, cfg.Publisher)
	scheduler.Start()

	// 9. Create the orchestrator
	orchestrator := publish.NewOrchestrator(pgStore, credSource, scheduler, redisCache,
		cfg.Publisher.MaxAttempts, cfg.Publisher.StatusCacheTTL)

	// 10. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		PublishHandler:    handler.NewPublishHandler(orchestrator),
		StatusHandler:     handler.NewStatusHandler(orchestrator),
		RetryHandler:      handler.NewRetryHandler(orchestrator),
		ListJobsHandler:   handler.NewListJobsHandler(orchestrator),
		ActiveJobsHandler: handler.NewActiveJobsHandler(orchestrator),
		WSHandler:         handler.NewWSHandler(hub, orchestrator),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 11. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout: stop accepting HTTP first, then let
	// in-flight publish attempts finish, then drop websocket subscribers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	stopHub()

	slog.Info("server stopped gracefully")
	return nil
}
