package service

import (
	"context"
	"time"

	"finsight/internal/models"
	"finsight/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type pgSyncStore struct {
	store  *repository.Store
	items  *repository.ItemRepository
	logger *zap.Logger
}

// NewSyncStore backs the sync pipeline with Postgres.
func NewSyncStore(store *repository.Store, logger *zap.Logger) SyncStore {
	return &pgSyncStore{
		store:  store,
		items:  repository.NewItemRepository(store.DB(), logger),
		logger: logger,
	}
}

func (s *pgSyncStore) GetItem(ctx context.Context, userID uuid.UUID, itemID string) (*models.PlaidItem, error) {
	return s.items.GetForUser(ctx, userID, itemID)
}

func (s *pgSyncStore) InTx(ctx context.Context, fn func(tx SyncTx) error) error {
	return s.store.InTx(ctx, func(q repository.DBTX) error {
		return fn(&pgSyncTx{
			accounts:     repository.NewAccountRepository(q, s.logger),
			transactions: repository.NewTransactionRepository(q, s.logger),
		})
	})
}

type pgSyncTx struct {
	accounts     *repository.AccountRepository
	transactions *repository.TransactionRepository
}

func (t *pgSyncTx) AccountIDsByPlaidID(ctx context.Context, userID uuid.UUID) (map[string]uuid.UUID, error) {
	return t.accounts.MapByPlaidID(ctx, userID)
}

func (t *pgSyncTx) TransactionExists(ctx context.Context, externalID string) (bool, error) {
	return t.transactions.ExistsByExternalID(ctx, externalID)
}

func (t *pgSyncTx) InsertTransaction(ctx context.Context, tx *models.Transaction) (bool, error) {
	return t.transactions.Create(ctx, tx)
}

func (t *pgSyncTx) TouchAccounts(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	return t.accounts.TouchByUser(ctx, userID, at)
}
