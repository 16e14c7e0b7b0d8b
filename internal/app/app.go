package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/creator-payouts/internal/api"
	"github.com/ayo6706/creator-payouts/internal/api/middleware"
	"github.com/ayo6706/creator-payouts/internal/config"
	"github.com/ayo6706/creator-payouts/internal/db"
	"github.com/ayo6706/creator-payouts/internal/idempotency"
	"github.com/ayo6706/creator-payouts/internal/observability"
	"github.com/ayo6706/creator-payouts/internal/provider"
	"github.com/ayo6706/creator-payouts/internal/queue"
	"github.com/ayo6706/creator-payouts/internal/repository"
	"github.com/ayo6706/creator-payouts/internal/service"
	"github.com/ayo6706/creator-payouts/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	store := repository.NewStore(pool)

	routeRules, err := service.ParseRoutingTable(cfg.PayoutRoutes)
	if err != nil {
		return fmt.Errorf("parse PAYOUT_ROUTES: %w", err)
	}
	minimums, err := service.ParseCurrencyMinimums(cfg.PayoutMinimums)
	if err != nil {
		return fmt.Errorf("parse PAYOUT_MINIMUMS: %w", err)
	}

	providers := provider.NewRegistry(provider.NewMockAdapter("transferzen", cfg.WebhookHMACKey))
	router := service.NewRouter(routeRules)

	ledgerSvc := service.NewLedgerService(store)
	bankSvc := service.NewBankAccountService(store)
	eligSvc := service.NewEligibilityService(store, service.EligibilityConfig{
		MinimumsMicros: minimums,
		MaxConcurrent:  cfg.PayoutMaxInflight,
	})
	payoutSvc := service.NewPayoutService(store, eligSvc, router, providers, cfg.ProviderTimeout)
	reconcilerSvc := service.NewReconcilerService(store)
	sweepSvc := service.NewSweepService(store, providers, reconcilerSvc, cfg.SweepStuckAfter)
	integritySvc := service.NewIntegrityService(store)

	dispatcher := queue.NewDispatcher(cfg.WebhookQueueBuffer)

	sweepWorker := worker.NewSweepWorker(sweepSvc).WithInterval(cfg.SweepInterval)
	stopSweep := sweepWorker.Run(ctx)
	logger.Info("sweep worker started", zap.Duration("interval", cfg.SweepInterval), zap.Duration("stuck_after", cfg.SweepStuckAfter))

	integrityWorker := worker.NewIntegrityWorker(integritySvc).WithInterval(cfg.IntegrityInterval)
	stopIntegrity := integrityWorker.Run(ctx)
	logger.Info("integrity worker started", zap.Duration("interval", cfg.IntegrityInterval))

	apiRouter := api.NewRouter(api.Deps{
		Logger:               logger,
		DB:                   pool,
		Redis:                redisClient,
		IdemStore:            idemStore,
		Queries:              store.Queries(),
		Ledger:               ledgerSvc,
		Bank:                 bankSvc,
		Elig:                 eligSvc,
		Payouts:              payoutSvc,
		Reconciler:           reconcilerSvc,
		Providers:            providers,
		Dispatcher:           dispatcher,
		BaseCtx:              ctx,
		PublicRateLimitRPS:   cfg.PublicRateLimitRPS,
		AuthRateLimitRPS:     cfg.AuthRateLimitRPS,
		WebhookSkipSignature: cfg.WebhookSkipSignature,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      apiRouter.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping background workers")
	stopSweep()
	stopIntegrity()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	// Drain queued webhook events before releasing the database pool.
	dispatcher.Close()

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
