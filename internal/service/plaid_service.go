package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finsight/internal/dto"
	"finsight/internal/models"
	"finsight/internal/repository"
	"finsight/pkg/plaid"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkClient is the part of the Plaid client used to link items.
type LinkClient interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.ItemPublicTokenExchangeResponse, error)
	GetAccounts(ctx context.Context, accessToken string) (*plaid.AccountsGetResponse, error)
	GetInstitution(ctx context.Context, institutionID string) (*plaid.InstitutionsGetByIDResponse, error)
}

type LinkStore interface {
	// SaveLink stores the item and its accounts atomically.
	SaveLink(ctx context.Context, item *models.PlaidItem, accounts []*models.Account) error
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
}

type SyncEnqueuer interface {
	Enqueue(ctx context.Context, req SyncRequest) (run *models.SyncRun, queued bool, err error)
	GetRun(ctx context.Context, userID, id uuid.UUID) (*dto.SyncRunResponse, error)
}

type PlaidService struct {
	client LinkClient
	store  LinkStore
	syncs  SyncEnqueuer
	logger *zap.Logger
}

func NewPlaidService(client LinkClient, store LinkStore, syncs SyncEnqueuer, logger *zap.Logger) *PlaidService {
	return &PlaidService{
		client: client,
		store:  store,
		syncs:  syncs,
		logger: logger,
	}
}

func (s *PlaidService) CreateLinkToken(ctx context.Context, userID uuid.UUID) (*dto.LinkTokenResponse, error) {
	token, err := s.client.CreateLinkToken(ctx, userID.String())
	if err != nil {
		return nil, upstream(err, "Failed to create link token")
	}
	return &dto.LinkTokenResponse{LinkToken: token}, nil
}

// ExchangePublicToken links a new item, stores its accounts and queues the
// initial full-window sync.
func (s *PlaidService) ExchangePublicToken(ctx context.Context, userID uuid.UUID, req *dto.ExchangeTokenRequest) (*dto.ExchangeTokenResponse, error) {
	if req.PublicToken == "" {
		return nil, invalid("public_token is required")
	}

	exchanged, err := s.client.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		return nil, upstream(err, "Failed to exchange public token")
	}

	accountsResp, err := s.client.GetAccounts(ctx, exchanged.AccessToken)
	if err != nil {
		return nil, upstream(err, "Failed to fetch accounts")
	}

	institutionID := accountsResp.Item.InstitutionID
	institutionName := s.institutionName(ctx, institutionID)

	now := time.Now()
	item := &models.PlaidItem{
		ID:            uuid.New(),
		UserID:        userID,
		AccessToken:   exchanged.AccessToken,
		ItemID:        exchanged.ItemID,
		InstitutionID: strPtr(institutionID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	accounts := make([]*models.Account, 0, len(accountsResp.Accounts))
	for _, a := range accountsResp.Accounts {
		accounts = append(accounts, &models.Account{
			ID:              uuid.New(),
			UserID:          userID,
			PlaidAccountID:  a.AccountID,
			AccountName:     a.Name,
			AccountType:     strPtr(a.Type),
			InstitutionName: institutionName,
			LastFour:        strPtr(a.Mask),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.store.SaveLink(ctx, item, accounts); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, conflict("Item is already linked to another user")
		}
		return nil, fmt.Errorf("failed to save linked item: %w", err)
	}

	s.logger.Info("Plaid item linked",
		zap.String("user_id", userID.String()),
		zap.String("item_id", item.ItemID),
		zap.Int("accounts", len(accounts)),
	)

	resp := &dto.ExchangeTokenResponse{
		Success:        true,
		ItemID:         item.ItemID,
		AccountsSynced: len(accounts),
	}

	// The link is stored either way; a failed enqueue is retried by the next periodic sync.
	run, _, err := s.syncs.Enqueue(ctx, SyncRequest{UserID: userID, ItemID: item.ItemID})
	if err != nil {
		s.logger.Warn("Failed to queue initial sync", zap.String("item_id", item.ItemID), zap.Error(err))
		return resp, nil
	}
	resp.SyncID = run.ID.String()
	return resp, nil
}

// institutionName falls back to the institution id when the lookup fails.
func (s *PlaidService) institutionName(ctx context.Context, institutionID string) *string {
	if institutionID == "" {
		return nil
	}
	inst, err := s.client.GetInstitution(ctx, institutionID)
	if err != nil || inst.Institution.Name == "" {
		s.logger.Warn("Failed to resolve institution name", zap.String("institution_id", institutionID), zap.Error(err))
		return &institutionID
	}
	return &inst.Institution.Name
}

func (s *PlaidService) SyncTransactions(ctx context.Context, userID uuid.UUID, req *dto.SyncTransactionsRequest) (*dto.SyncTransactionsResponse, error) {
	if req.ItemID == "" {
		return nil, invalid("item_id is required")
	}
	start, end, err := ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	run, queued, err := s.syncs.Enqueue(ctx, SyncRequest{
		UserID:    userID,
		ItemID:    req.ItemID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return nil, err
	}

	message := "Transaction sync started in background"
	if !queued {
		message = "Transaction sync already in progress"
	}
	return &dto.SyncTransactionsResponse{
		Success:            true,
		TransactionsSynced: 0,
		Message:            message,
		SyncID:             run.ID.String(),
	}, nil
}

func (s *PlaidService) GetSyncRun(ctx context.Context, userID, runID uuid.UUID) (*dto.SyncRunResponse, error) {
	return s.syncs.GetRun(ctx, userID, runID)
}

func (s *PlaidService) ListAccounts(ctx context.Context, userID uuid.UUID) ([]dto.AccountResponse, error) {
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	result := make([]dto.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, dto.AccountResponse{
			ID:              a.ID.String(),
			AccountName:     a.AccountName,
			AccountType:     a.AccountType,
			InstitutionName: a.InstitutionName,
			LastFour:        a.LastFour,
			LastSync:        formatTimePtr(a.LastSyncTimestamp),
		})
	}
	return result, nil
}

type pgLinkStore struct {
	store  *repository.Store
	logger *zap.Logger
}

// NewLinkStore backs item linking with Postgres.
func NewLinkStore(store *repository.Store, logger *zap.Logger) LinkStore {
	return &pgLinkStore{store: store, logger: logger}
}

func (s *pgLinkStore) SaveLink(ctx context.Context, item *models.PlaidItem, accounts []*models.Account) error {
	return s.store.InTx(ctx, func(q repository.DBTX) error {
		itemID, err := repository.NewItemRepository(q, s.logger).Upsert(ctx, item)
		if err != nil {
			return err
		}
		item.ID = itemID

		accountRepo := repository.NewAccountRepository(q, s.logger)
		for _, acc := range accounts {
			acc.ItemID = &itemID
			if err := accountRepo.Upsert(ctx, acc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *pgLinkStore) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	return repository.NewAccountRepository(s.store.DB(), s.logger).ListByUser(ctx, userID)
}
