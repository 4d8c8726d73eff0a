package main

import (
	"context"
	"os"
	"time"

	"kontor/internal/amqp"
	"kontor/internal/cli"
	applog "kontor/internal/log"
	"kontor/internal/mirror"
	gmirror "kontor/internal/mirror/google"
	memmirror "kontor/internal/mirror/memory"
	"kontor/internal/services"
	"kontor/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)

	logger.Info("Starting tax-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPTriggerQueue, cfg.AMQPMirrorQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var entryMirror mirror.EntryWriter
	switch cfg.MirrorBackend {
	case "sheets":
		client, err := gmirror.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets mirror", "error", err)
			os.Exit(1)
		}
		entryMirror = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case "memory":
		entryMirror = memmirror.New()
		logger.Info("In-memory mirror initialized")
	default:
		logger.Info("Ledger mirror disabled")
	}

	ledger := services.NewLedgerService(repo, nil)
	generator := services.NewTaxGenerator(repo, repo)
	genWorker := worker.NewGenerationWorker(ledger, generator, repo, entryMirror)

	// Catch up on anything enabled while the worker was down.
	if err := genWorker.RunScheduledGeneration(ctx); err != nil {
		logger.Error("Startup generation pass failed", "error", err)
		// Don't exit - continue with normal operation
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 5*time.Second, func(context.Context) {
		cancel()
	})

	logger.Info("Worker running",
		"trigger_queue", cfg.AMQPTriggerQueue,
		"mirror_queue", cfg.AMQPMirrorQueue,
		"generation_interval", cfg.GenerationInterval)

	if err := genWorker.Run(ctx, amqpClient, cfg.GenerationInterval); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped gracefully")
}
