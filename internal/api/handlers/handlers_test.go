package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finsight/internal/dto"
	"finsight/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var testUserID = uuid.New()

// withUser stands in for the auth middleware.
func withUser(c *fiber.Ctx) error {
	c.Locals("userID", testUserID.String())
	return c.Next()
}

type fakePlaidService struct {
	syncReq *dto.SyncTransactionsRequest
	err     error
}

func (f *fakePlaidService) CreateLinkToken(context.Context, uuid.UUID) (*dto.LinkTokenResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dto.LinkTokenResponse{LinkToken: "link-sandbox-1"}, nil
}

func (f *fakePlaidService) ExchangePublicToken(context.Context, uuid.UUID, *dto.ExchangeTokenRequest) (*dto.ExchangeTokenResponse, error) {
	return &dto.ExchangeTokenResponse{Success: true, ItemID: "item-1", AccountsSynced: 2}, f.err
}

func (f *fakePlaidService) SyncTransactions(_ context.Context, _ uuid.UUID, req *dto.SyncTransactionsRequest) (*dto.SyncTransactionsResponse, error) {
	f.syncReq = req
	if f.err != nil {
		return nil, f.err
	}
	if _, _, err := service.ParseDateRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	return &dto.SyncTransactionsResponse{Success: true, Message: "Transaction sync started in background", SyncID: "run-1"}, nil
}

func (f *fakePlaidService) GetSyncRun(context.Context, uuid.UUID, uuid.UUID) (*dto.SyncRunResponse, error) {
	return &dto.SyncRunResponse{Status: "running"}, f.err
}

func (f *fakePlaidService) ListAccounts(context.Context, uuid.UUID) ([]dto.AccountResponse, error) {
	return []dto.AccountResponse{{ID: "a1", AccountName: "Plaid Checking"}}, f.err
}

type fakeAnalyticsService struct {
	query       service.AnalyticsQuery
	granularity service.Granularity
	useAI       bool
}

func (f *fakeAnalyticsService) SpendingByCard(_ context.Context, q service.AnalyticsQuery) ([]dto.SpendingByCard, error) {
	f.query = q
	return []dto.SpendingByCard{}, nil
}

func (f *fakeAnalyticsService) SpendingOverTime(_ context.Context, q service.AnalyticsQuery, g service.Granularity) ([]dto.SpendingOverTime, error) {
	f.query, f.granularity = q, g
	return []dto.SpendingOverTime{{Date: "2024-01-08", Amount: 16.35, TransactionCount: 3}}, nil
}

func (f *fakeAnalyticsService) Categories(_ context.Context, q service.AnalyticsQuery, useAI bool) ([]dto.CategorySpending, error) {
	f.query, f.useAI = q, useAI
	return []dto.CategorySpending{}, nil
}

func (f *fakeAnalyticsService) Reimbursements(_ context.Context, q service.AnalyticsQuery) ([]dto.ReimbursementItem, error) {
	f.query = q
	return []dto.ReimbursementItem{}, nil
}

func (f *fakeAnalyticsService) Summary(_ context.Context, q service.AnalyticsQuery) (*dto.SpendingSummary, error) {
	f.query = q
	return &dto.SpendingSummary{}, nil
}

func newTestApp(plaidSvc PlaidService, analyticsSvc AnalyticsService) *fiber.App {
	app := fiber.New()
	api := app.Group("/api", withUser)

	ph := NewPlaidHandler(plaidSvc, zap.NewNop())
	api.Post("/plaid/create-link-token", ph.CreateLinkToken)
	api.Post("/plaid/sync-transactions", ph.SyncTransactions)
	api.Get("/plaid/sync-runs/:id", ph.GetSyncRun)
	api.Get("/plaid/accounts", ph.ListAccounts)

	ah := NewAnalyticsHandler(analyticsSvc, zap.NewNop())
	api.Get("/analytics/spending-over-time", ah.SpendingOverTime)
	api.Get("/analytics/categories", ah.Categories)
	api.Get("/analytics/summary", ah.Summary)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded
}

func TestSyncTransactions(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		wantCode  int
		wantError string
	}{
		{
			name:     "accepted",
			body:     `{"item_id":"item-1","start_date":"2024-01-01"}`,
			wantCode: http.StatusAccepted,
		},
		{
			name:      "bad date",
			body:      `{"item_id":"item-1","start_date":"01/01/2024"}`,
			wantCode:  http.StatusBadRequest,
			wantError: `Invalid date "01/01/2024": expected YYYY-MM-DD`,
		},
		{
			name:     "malformed body",
			body:     `{"item_id":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown item",
			body:     `{"item_id":"item-x"}`,
			err:      notFoundErr(),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "queue full",
			body:     `{"item_id":"item-1"}`,
			err:      unavailableErr(),
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakePlaidService{err: tt.err}, &fakeAnalyticsService{})

			code, body := doRequest(t, app, http.MethodPost, "/api/plaid/sync-transactions", tt.body)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %v)", code, tt.wantCode, body)
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
			if code == http.StatusAccepted && (body["sync_id"] != "run-1" || body["transactions_synced"] != float64(0)) {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func notFoundErr() error {
	return &wrappedErr{kind: service.ErrNotFound, msg: "Item not found"}
}

func unavailableErr() error {
	return &wrappedErr{kind: service.ErrUnavailable, msg: "Sync could not be queued: queue full"}
}

// wrappedErr classifies like a service error but carries no client message.
type wrappedErr struct {
	kind error
	msg  string
}

func (e *wrappedErr) Error() string { return e.msg }
func (e *wrappedErr) Unwrap() error { return e.kind }

func TestHandleError_HidesInternalErrors(t *testing.T) {
	app := newTestApp(&fakePlaidService{err: errors.New("connection reset by peer")}, &fakeAnalyticsService{})

	code, body := doRequest(t, app, http.MethodGet, "/api/plaid/accounts", "")
	if code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", code)
	}
	if body["error"] != "Failed to list accounts" {
		t.Errorf("error = %v, want generic message", body["error"])
	}
}

func TestHandleError_Upstream(t *testing.T) {
	app := newTestApp(&fakePlaidService{err: &wrappedErr{kind: service.ErrUpstream, msg: "plaid down"}}, &fakeAnalyticsService{})

	code, _ := doRequest(t, app, http.MethodPost, "/api/plaid/create-link-token", "")
	if code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", code)
	}
}

func TestGetSyncRun_InvalidID(t *testing.T) {
	app := newTestApp(&fakePlaidService{}, &fakeAnalyticsService{})

	code, _ := doRequest(t, app, http.MethodGet, "/api/plaid/sync-runs/not-a-uuid", "")
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestSpendingOverTime_Query(t *testing.T) {
	accountID := uuid.New()
	analytics := &fakeAnalyticsService{}
	app := newTestApp(&fakePlaidService{}, analytics)

	code, _ := doRequest(t, app, http.MethodGet,
		"/api/analytics/spending-over-time?granularity=weekly&start_date=2024-01-01T10:00:00&end_date=2024-01-31&account_ids="+accountID.String(), "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	q := analytics.query
	if q.UserID != testUserID || analytics.granularity != service.GranularityWeekly {
		t.Errorf("query = %+v granularity = %s", q, analytics.granularity)
	}
	if q.StartDate == nil || q.StartDate.Format(service.DateLayout) != "2024-01-01" || q.EndDate.Format(service.DateLayout) != "2024-01-31" {
		t.Errorf("window = %v..%v", q.StartDate, q.EndDate)
	}
	if len(q.AccountIDs) != 1 || q.AccountIDs[0] != accountID {
		t.Errorf("account ids = %v", q.AccountIDs)
	}
}

func TestAnalytics_InvalidInput(t *testing.T) {
	app := newTestApp(&fakePlaidService{}, &fakeAnalyticsService{})

	for _, target := range []string{
		"/api/analytics/summary?start_date=yesterday",
		"/api/analytics/summary?start_date=2024-02-01&end_date=2024-01-01",
		"/api/analytics/spending-over-time?granularity=hourly",
		"/api/analytics/spending-over-time?account_ids=abc",
	} {
		if code, body := doRequest(t, app, http.MethodGet, target, ""); code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d (body %v), want 400", target, code, body)
		}
	}
}

func TestCategories_UseAICategory(t *testing.T) {
	analytics := &fakeAnalyticsService{}
	app := newTestApp(&fakePlaidService{}, analytics)

	if code, _ := doRequest(t, app, http.MethodGet, "/api/analytics/categories?use_ai_category=true", ""); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !analytics.useAI {
		t.Error("use_ai_category not forwarded")
	}
}

func TestProtectedRoute_WithoutUser(t *testing.T) {
	app := fiber.New()
	ph := NewPlaidHandler(&fakePlaidService{}, zap.NewNop())
	app.Get("/accounts", ph.ListAccounts)

	code, _ := doRequest(t, app, http.MethodGet, "/accounts", "")
	if code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}
