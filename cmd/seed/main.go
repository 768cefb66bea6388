// Command seed links a Plaid sandbox institution to a demo user and pulls its
// transaction history synchronously, so a fresh database has data to analyze.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"finsight/internal/dto"
	"finsight/internal/models"
	"finsight/internal/repository"
	"finsight/internal/service"
	"finsight/pkg/auth"
	"finsight/pkg/config"
	"finsight/pkg/logger"
	"finsight/pkg/plaid"
	"finsight/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// syncNow runs a sync inline instead of queueing it on the worker pool.
type syncNow struct {
	syncer *service.SyncService
	logger *zap.Logger
}

func (s *syncNow) Enqueue(ctx context.Context, req service.SyncRequest) (*models.SyncRun, bool, error) {
	result, err := s.syncer.Sync(ctx, req)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("Sandbox transactions synced",
		zap.String("item_id", result.ItemID),
		zap.Int("fetched", result.Fetched),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
	)
	return &models.SyncRun{
		ID:       uuid.New(),
		UserID:   req.UserID,
		ItemID:   req.ItemID,
		Status:   models.SyncSucceeded,
		Fetched:  result.Fetched,
		Inserted: result.Inserted,
	}, true, nil
}

func (s *syncNow) GetRun(context.Context, uuid.UUID, uuid.UUID) (*dto.SyncRunResponse, error) {
	return nil, service.ErrNotFound
}

func main() {
	email := flag.String("email", "demo@example.com", "demo user email")
	username := flag.String("username", "demo", "demo user name")
	password := flag.String("password", "demo-password", "demo user password")
	institution := flag.String("institution", "ins_109508", "Plaid sandbox institution id")
	flag.Parse()

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

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
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)

	appLogger.Info("Starting sandbox seeding...")

	userID, err := ensureUser(ctx, authService, userRepo, &dto.RegisterRequest{
		Email:    *email,
		Username: *username,
		Password: *password,
	})
	if err != nil {
		appLogger.Fatal("Failed to prepare demo user", zap.Error(err))
	}

	plaidClient, err := plaid.NewClient(&cfg.Plaid)
	if err != nil {
		appLogger.Fatal("Failed to initialize Plaid client", zap.Error(err))
	}

	publicToken, err := plaidClient.CreateSandboxPublicToken(ctx, *institution)
	if err != nil {
		appLogger.Fatal("Failed to create sandbox public token", zap.Error(err))
	}

	syncService := service.NewSyncService(plaidClient, service.NewSyncStore(store, appLogger), &cfg.Sync, appLogger)
	plaidService := service.NewPlaidService(plaidClient, service.NewLinkStore(store, appLogger), &syncNow{syncer: syncService, logger: appLogger}, appLogger)

	resp, err := plaidService.ExchangePublicToken(ctx, userID, &dto.ExchangeTokenRequest{PublicToken: publicToken})
	if err != nil {
		appLogger.Fatal("Failed to link sandbox item", zap.Error(err))
	}

	appLogger.Info("Seeding completed",
		zap.String("user", *username),
		zap.String("item_id", resp.ItemID),
		zap.Int("accounts", resp.AccountsSynced),
	)
}

// ensureUser registers the demo user, or reuses it when it already exists.
func ensureUser(ctx context.Context, authService *service.AuthService, users *repository.UserRepository, req *dto.RegisterRequest) (uuid.UUID, error) {
	resp, err := authService.Register(ctx, req)
	if err == nil {
		return uuid.Parse(resp.User.ID)
	}
	if !errors.Is(err, service.ErrConflict) {
		return uuid.Nil, err
	}

	user, err := users.GetByEmail(ctx, req.Email)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}
