package service

import (
	"context"
	"errors"
	"testing"

	"finsight/internal/dto"
	"finsight/internal/models"
	"finsight/internal/repository"
	"finsight/pkg/plaid"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockLinkClient struct {
	exchangeErr    error
	institutionErr error
	accounts       []plaid.Account
}

func (m *mockLinkClient) CreateLinkToken(_ context.Context, userID string) (string, error) {
	return "link-" + userID, nil
}

func (m *mockLinkClient) ExchangePublicToken(_ context.Context, publicToken string) (*plaid.ItemPublicTokenExchangeResponse, error) {
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return &plaid.ItemPublicTokenExchangeResponse{AccessToken: "access-" + publicToken, ItemID: "item-1"}, nil
}

func (m *mockLinkClient) GetAccounts(context.Context, string) (*plaid.AccountsGetResponse, error) {
	return &plaid.AccountsGetResponse{
		Accounts: m.accounts,
		Item:     plaid.Item{ItemID: "item-1", InstitutionID: "ins_109508"},
	}, nil
}

func (m *mockLinkClient) GetInstitution(_ context.Context, id string) (*plaid.InstitutionsGetByIDResponse, error) {
	if m.institutionErr != nil {
		return nil, m.institutionErr
	}
	return &plaid.InstitutionsGetByIDResponse{Institution: plaid.Institution{InstitutionID: id, Name: "First Platypus Bank"}}, nil
}

type mockLinkStore struct {
	item     *models.PlaidItem
	accounts []*models.Account
	saveErr  error
}

func (m *mockLinkStore) SaveLink(_ context.Context, item *models.PlaidItem, accounts []*models.Account) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.item, m.accounts = item, accounts
	return nil
}

func (m *mockLinkStore) ListAccounts(context.Context, uuid.UUID) ([]*models.Account, error) {
	return m.accounts, nil
}

type mockEnqueuer struct {
	requests []SyncRequest
	run      *models.SyncRun
	existing bool
	err      error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, req SyncRequest) (*models.SyncRun, bool, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, false, m.err
	}
	return m.run, !m.existing, nil
}

func (m *mockEnqueuer) GetRun(context.Context, uuid.UUID, uuid.UUID) (*dto.SyncRunResponse, error) {
	return nil, notFound("Sync run not found")
}

func newPlaidFixture() (*PlaidService, *mockLinkClient, *mockLinkStore, *mockEnqueuer) {
	client := &mockLinkClient{accounts: []plaid.Account{
		{AccountID: "acc-1", Name: "Plaid Checking", Type: "depository", Mask: "0000"},
		{AccountID: "acc-2", Name: "Plaid Credit Card", Type: "credit", Mask: "3333"},
	}}
	store := &mockLinkStore{}
	syncs := &mockEnqueuer{run: &models.SyncRun{ID: uuid.New(), Status: models.SyncPending}}
	return NewPlaidService(client, store, syncs, zap.NewNop()), client, store, syncs
}

func TestExchangePublicToken(t *testing.T) {
	svc, _, store, syncs := newPlaidFixture()
	userID := uuid.New()

	resp, err := svc.ExchangePublicToken(context.Background(), userID, &dto.ExchangeTokenRequest{PublicToken: "public-1"})
	if err != nil {
		t.Fatalf("ExchangePublicToken() error = %v", err)
	}
	if !resp.Success || resp.ItemID != "item-1" || resp.AccountsSynced != 2 || resp.SyncID == "" {
		t.Errorf("response = %+v", resp)
	}

	if store.item.AccessToken != "access-public-1" || store.item.UserID != userID {
		t.Errorf("item = %+v", store.item)
	}
	acc := store.accounts[1]
	if *acc.AccountType != "credit" || *acc.LastFour != "3333" || *acc.InstitutionName != "First Platypus Bank" {
		t.Errorf("account = %+v", acc)
	}

	if len(syncs.requests) != 1 || syncs.requests[0].StartDate != nil || syncs.requests[0].ItemID != "item-1" {
		t.Errorf("sync requests = %+v, want one default-window sync", syncs.requests)
	}
}

func TestExchangePublicToken_InstitutionFallback(t *testing.T) {
	svc, client, store, _ := newPlaidFixture()
	client.institutionErr = errors.New("not found")

	if _, err := svc.ExchangePublicToken(context.Background(), uuid.New(), &dto.ExchangeTokenRequest{PublicToken: "p"}); err != nil {
		t.Fatalf("ExchangePublicToken() error = %v", err)
	}
	if got := *store.accounts[0].InstitutionName; got != "ins_109508" {
		t.Errorf("institution name = %q, want institution id", got)
	}
}

func TestExchangePublicToken_EnqueueFailureStillLinks(t *testing.T) {
	svc, _, store, syncs := newPlaidFixture()
	syncs.err = newError(ErrUnavailable, "Sync could not be queued: queue full")

	resp, err := svc.ExchangePublicToken(context.Background(), uuid.New(), &dto.ExchangeTokenRequest{PublicToken: "p"})
	if err != nil {
		t.Fatalf("ExchangePublicToken() error = %v", err)
	}
	if resp.SyncID != "" || store.item == nil {
		t.Errorf("response = %+v, item = %v", resp, store.item)
	}
}

func TestExchangePublicToken_Errors(t *testing.T) {
	tests := []struct {
		name  string
		token string
		setup func(*mockLinkClient, *mockLinkStore)
		want  error
	}{
		{name: "missing token", want: ErrValidation},
		{
			name:  "exchange fails",
			token: "p",
			setup: func(c *mockLinkClient, _ *mockLinkStore) { c.exchangeErr = plaid.ErrInvalidToken },
			want:  ErrUpstream,
		},
		{
			name:  "item owned by another user",
			token: "p",
			setup: func(_ *mockLinkClient, s *mockLinkStore) { s.saveErr = repository.ErrNotFound },
			want:  ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, client, store, syncs := newPlaidFixture()
			if tt.setup != nil {
				tt.setup(client, store)
			}
			_, err := svc.ExchangePublicToken(context.Background(), uuid.New(), &dto.ExchangeTokenRequest{PublicToken: tt.token})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if len(syncs.requests) != 0 {
				t.Errorf("sync queued after failure")
			}
		})
	}
}

func TestSyncTransactions(t *testing.T) {
	svc, _, _, syncs := newPlaidFixture()

	resp, err := svc.SyncTransactions(context.Background(), uuid.New(), &dto.SyncTransactionsRequest{
		ItemID:    "item-1",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("SyncTransactions() error = %v", err)
	}
	if !resp.Success || resp.TransactionsSynced != 0 || resp.SyncID != syncs.run.ID.String() {
		t.Errorf("response = %+v", resp)
	}
	if resp.Message != "Transaction sync started in background" {
		t.Errorf("Message = %q", resp.Message)
	}
	req := syncs.requests[0]
	if formatDate(*req.StartDate) != "2024-01-01" || formatDate(*req.EndDate) != "2024-01-31" {
		t.Errorf("window = %v..%v", req.StartDate, req.EndDate)
	}
}

func TestSyncTransactions_ReportsActiveRun(t *testing.T) {
	for _, status := range []models.SyncStatus{models.SyncPending, models.SyncRunning} {
		t.Run(string(status), func(t *testing.T) {
			svc, _, _, syncs := newPlaidFixture()
			syncs.run.Status = status
			syncs.existing = true

			resp, err := svc.SyncTransactions(context.Background(), uuid.New(), &dto.SyncTransactionsRequest{ItemID: "item-1"})
			if err != nil {
				t.Fatalf("SyncTransactions() error = %v", err)
			}
			if resp.Message != "Transaction sync already in progress" || resp.SyncID != syncs.run.ID.String() {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestSyncTransactions_InvalidInput(t *testing.T) {
	svc, _, _, syncs := newPlaidFixture()

	for _, req := range []dto.SyncTransactionsRequest{
		{},
		{ItemID: "item-1", StartDate: "01/02/2024"},
		{ItemID: "item-1", StartDate: "2024-02-01", EndDate: "2024-01-01"},
	} {
		if _, err := svc.SyncTransactions(context.Background(), uuid.New(), &req); !errors.Is(err, ErrValidation) {
			t.Errorf("SyncTransactions(%+v) error = %v, want ErrValidation", req, err)
		}
	}
	if len(syncs.requests) != 0 {
		t.Errorf("queued %d syncs, want 0", len(syncs.requests))
	}
}
