package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finsight/internal/api"
	"finsight/internal/api/handlers"
	"finsight/internal/llm"
	"finsight/internal/repository"
	"finsight/internal/scheduler"
	"finsight/internal/service"
	"finsight/pkg/auth"
	"finsight/pkg/config"
	"finsight/pkg/logger"
	"finsight/pkg/plaid"
	"finsight/pkg/postgres"
	"finsight/pkg/telemetry"

	"go.uber.org/zap"
)

// @title Finsight API
// @version 1.0
// @description Personal finance backend: Plaid account linking, transaction sync, spending analytics and LLM insights.

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Environment); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting finsight service")

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, &cfg.Telemetry, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			appLogger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}()

	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, appLogger); err != nil {
		appLogger.Fatal("Failed to apply schema", zap.Error(err))
	}

	store := repository.NewStore(db, appLogger)
	userRepo := repository.NewUserRepository(store.DB(), appLogger)
	itemRepo := repository.NewItemRepository(store.DB(), appLogger)
	txRepo := repository.NewTransactionRepository(store.DB(), appLogger)
	insightRepo := repository.NewInsightRepository(store.DB(), appLogger)
	runRepo := repository.NewSyncRunRepository(store.DB(), appLogger)

	// runs left active by a previous process will never finish
	if n, err := runRepo.FailStale(ctx, "interrupted by restart", time.Now().UTC()); err != nil {
		appLogger.Error("Failed to close stale sync runs", zap.Error(err))
	} else if n > 0 {
		appLogger.Warn("Closed stale sync runs", zap.Int64("count", n))
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	plaidClient, err := plaid.NewClient(&cfg.Plaid)
	if err != nil {
		appLogger.Fatal("Failed to initialize Plaid client", zap.Error(err))
	}

	provider, err := llm.NewProvider(ctx, &cfg.LLM, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize LLM provider", zap.Error(err))
	}
	defer provider.Close()

	pool := scheduler.NewWorkerPool(cfg.Sync.Workers, cfg.Sync.QueueSize, cfg.Sync.JobTimeout, logger.Component("scheduler"))
	pool.Start()

	syncService := service.NewSyncService(plaidClient, service.NewSyncStore(store, appLogger), &cfg.Sync, logger.Component("sync"))
	dispatcher := service.NewSyncDispatcher(syncService, runRepo, itemRepo, pool, logger.Component("sync"))

	authService := service.NewAuthService(userRepo, jwtManager, appLogger)
	plaidService := service.NewPlaidService(plaidClient, service.NewLinkStore(store, appLogger), dispatcher, appLogger)
	analyticsService := service.NewAnalyticsService(txRepo, appLogger)
	insightService := service.NewInsightService(txRepo, insightRepo, provider, logger.Component("llm"))
	categorizationService := service.NewCategorizationService(txRepo, provider, logger.Component("llm"))

	app := api.SetupRouter(api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, appLogger),
		Plaid:     handlers.NewPlaidHandler(plaidService, appLogger),
		Analytics: handlers.NewAnalyticsHandler(analyticsService, appLogger),
		AI:        handlers.NewAIHandler(insightService, categorizationService, appLogger),
	}, jwtManager, &cfg.Server, appLogger)

	var cron *scheduler.Cron
	if cfg.Sync.CronSpec != "" {
		cron, err = scheduler.NewCron(cfg.Sync.CronSpec, dispatcher.EnqueueAll, logger.Component("scheduler"))
		if err != nil {
			appLogger.Fatal("Failed to schedule periodic sync", zap.Error(err))
		}
		cron.Start()
		appLogger.Info("Periodic sync scheduled", zap.String("schedule", cfg.Sync.CronSpec))
	}

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if cron != nil {
		cron.Stop()
	}
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
	pool.ShutdownWithTimeout(shutdownTimeout)
	categorizationService.Wait()
	appLogger.Info("Server stopped")
}
