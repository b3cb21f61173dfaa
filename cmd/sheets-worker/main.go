package main

import (
	"context"
	"errors"
	"os"
	"time"

	"registro/internal/amqp"
	"registro/internal/cli"
	"registro/internal/config"
	"registro/internal/log"
	gsheet "registro/internal/sheets/google"
	"registro/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentSheets)
	defer logger.Close()

	logger.Info("Starting sheets-worker")

	if err := cfg.ValidateSheets(); err != nil {
		logger.Error("Sheets configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	sheetsClient, err := gsheet.New(context.Background(), sheetsConfig(cfg))
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, sheetsClient, cfg.SyncBatchSize)
	processorCfg := worker.DefaultSyncProcessorConfig()
	processorCfg.PollInterval = cfg.SyncInterval
	processor := worker.NewSyncProcessor(syncWorker, repo, processorCfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Warn("Sync processor stop failed", "error", err)
		}
	})

	// Pick up transactions whose messages were lost while the worker was down.
	logger.Info("Performing startup sync check")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", "error", err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeTransactionSync(ctx, syncWorker.HandleMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}

func sheetsConfig(cfg *config.Config) gsheet.Config {
	serviceAccountFile := cfg.GoogleServiceAccountFile
	if serviceAccountFile == "" {
		serviceAccountFile = cfg.GoogleApplicationCredentials
	}
	return gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
		OAuthClientFile:    cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: serviceAccountFile,
	}
}
