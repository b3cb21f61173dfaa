package main

import (
	"context"
	"os"
	"time"

	"registro/internal/backend"
	"registro/internal/cli"
	"registro/internal/log"
	"registro/internal/scheduler"
	"registro/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentScheduler)
	defer logger.Close()

	logger.Info("Starting recurring-worker")

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	// The worker never serves upcoming lists.
	backendCfg.UpcomingCacheSize = 0

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

	processor := services.NewRecurringProcessor(res.Store, res.Ledger, cfg.RecurringConcurrency)
	sched, err := scheduler.New(processor, cfg.RecurringSchedule, cfg.Location())
	if err != nil {
		logger.Error("Invalid recurring schedule", "error", err, "schedule", cfg.RecurringSchedule)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		sched.Stop()
	})

	logger.Info("Recurring processor configured",
		"schedule", cfg.RecurringSchedule,
		"timezone", cfg.Location().String(),
		"concurrency", cfg.RecurringConcurrency,
		"backend", cfg.DataBackend)

	if cfg.RecurringRunOnStartup {
		logger.Info("Running initial recurring processing")
		sched.RunOnce(ctx)
	}

	if err := sched.Start(ctx); err != nil {
		logger.Error("Scheduler failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
