package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"farmledger/internal/amqp"
	"farmledger/internal/auth"
	"farmledger/internal/backend"
	"farmledger/internal/cache"
	"farmledger/internal/config"
	apphttp "farmledger/internal/http"
	"farmledger/internal/log"
	"farmledger/internal/services"
)

const (
	dashboardCacheSize = 256
	shutdownTimeout    = 30 * time.Second
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
	logger := log.New(log.Config{Level: level})
	log.SetDefault(logger)
	if levelErr != nil {
		logger.Warn("Unknown LOG_LEVEL, using info", log.FieldError, levelErr)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// Publishing is best effort: the sweep picks up rows written while the broker was away.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, ledger sync publishing disabled", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	} else {
		logger.Info("AMQP_URL not set, ledger sync publishing disabled")
	}

	var (
		dashCache  cache.Cache[services.Dashboard]
		cacheStats func() cache.Stats
	)
	if cfg.DashboardCacheTTL > 0 {
		lru := cache.NewLRUCache[services.Dashboard](dashboardCacheSize, cfg.DashboardCacheTTL)
		manager := cache.NewManager(logger)
		manager.Register(lru)
		manager.StartCleanup(time.Minute)
		defer manager.Stop()
		dashCache, cacheStats = lru, lru.Stats
	}

	dashboard := services.NewDashboardService(repo, dashCache, logger)
	herds := services.NewHerdService(repo, logger)
	ledger := services.NewLedgerService(repo, publisher, dashboard, logger)
	subsidies := services.NewSubsidyService(repo, dashboard, logger)

	authSvc := auth.NewService(repo, auth.NewIssuer(cfg.AuthSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL), logger)
	svc := apphttp.Services{
		Auth:      authSvc,
		Farms:     services.NewFarmService(repo, cfg.DefaultFarmName, logger),
		Herds:     herds,
		Ledger:    ledger,
		Subsidies: subsidies,
		Dashboard: dashboard,
		Export:    services.NewExportService(repo, logger),
		Seed:      services.NewSeedService(herds, ledger, subsidies, logger),
	}
	srv, err := apphttp.NewServer(svc, apphttp.Options{
		Addr:               ":" + cfg.Port,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SeedEnabled:        cfg.SeedEnabled,
		Ready:              repo.Ping,
		CacheStats:         cacheStats,
	}, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting farmledger server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"sync_publishing", publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Each refresh adds a session row; deployments without the worker still need them purged.
	g.Go(func() error {
		authSvc.PurgeEvery(gctx, cfg.SessionPurgeInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
