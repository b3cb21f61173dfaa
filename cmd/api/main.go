package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"registro/internal/backend"
	"registro/internal/cache"
	"registro/internal/cli"
	apphttp "registro/internal/http"
	"registro/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentHTTP)
	defer logger.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	caches := cache.NewManager()
	if res.Upcoming != nil {
		caches.Register(res.Upcoming)
	}

	opts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
		apphttp.WithLocation(cfg.Location()),
	}
	if res.Pinger != nil {
		opts = append(opts, apphttp.WithReadinessCheck("storage", res.Pinger))
	}
	srv := apphttp.NewServer(":"+cfg.Port, res.Recurring, res.Ledger, opts...)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		caches.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})
	caches.StartCleanup(ctx, time.Minute)

	logger.Info("Starting server",
		"addr", srv.Addr,
		"backend", cfg.DataBackend,
		"timezone", cfg.Location().String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
