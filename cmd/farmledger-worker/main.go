package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"farmledger/internal/amqp"
	"farmledger/internal/backend"
	"farmledger/internal/config"
	"farmledger/internal/log"
	"farmledger/internal/sheets"
	gsheet "farmledger/internal/sheets/google"
	memsheet "farmledger/internal/sheets/memory"
	"farmledger/internal/worker"
)

func main() {
	// Load .env for local development; missing file is fine in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load configuration", log.FieldError, err)
		os.Exit(1)
	}
	level, levelErr := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{Level: level, Component: log.ComponentWorker})
	log.SetDefault(logger)
	if levelErr != nil {
		logger.Warn("Unknown LOG_LEVEL, using info", log.FieldError, levelErr)
	}

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting farmledger-worker")

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer be.Cleanup()
	repo := be.Repository

	var mirror sheets.LedgerMirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:          cfg.GoogleSpreadsheetID,
			RevenueSheet:           cfg.GoogleRevenueSheet,
			ExpenseSheet:           cfg.GoogleExpenseSheet,
			CredentialsJSON:        cfg.GoogleServiceAccountJSON,
			CredentialsFile:        cfg.GoogleServiceAccountFile,
			ApplicationCredentials: cfg.GoogleApplicationCredentials,
		}, logger)
		if err != nil {
			return err
		}
		mirror = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memsheet.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory only")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	syncWorker := worker.NewSyncWorker(repo, mirror, cfg.SyncBatchSize, logger)
	purge := func(ctx context.Context) (int64, error) {
		n, err := repo.DeleteExpiredSessions(ctx, time.Now().UTC())
		if err == nil && n > 0 {
			logger.InfoContext(ctx, "Purged stale sessions", "count", n)
		}
		return n, err
	}
	sweeper := worker.NewSweeper(syncWorker, purge, worker.SweeperConfig{PollInterval: cfg.SyncInterval}, logger)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sweeper.Stop(stopCtx); err != nil {
			logger.Warn("Sweeper did not stop cleanly", log.FieldError, err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Consume(gctx, syncWorker.HandleMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
