package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"finsight/internal/dto"
	"finsight/internal/llm"
	"finsight/internal/models"
	"finsight/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockProvider struct {
	mu          sync.Mutex
	prompts     []string
	records     []llm.Record
	category    string
	categoryErr map[string]error
	reimburse   bool
	insightErr  error
}

func (m *mockProvider) GenerateInsight(_ context.Context, prompt string, records []llm.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.records = records
	if m.insightErr != nil {
		return "", m.insightErr
	}
	return "You spent most on dining.", nil
}

func (m *mockProvider) CategorizeTransaction(_ context.Context, r llm.Record) (string, error) {
	if err := m.categoryErr[r.MerchantName]; err != nil {
		return "", err
	}
	return m.category, nil
}

func (m *mockProvider) DetectReimbursement(_ context.Context, _ llm.Record) (bool, float64, error) {
	if m.reimburse {
		return true, 0.9, nil
	}
	return false, 0.3, nil
}

func (m *mockProvider) Model() string { return "llama3.2" }
func (m *mockProvider) Close() error  { return nil }

type mockInsightStore struct {
	created   []*models.Insight
	listType  string
	listLimit uint64
}

func (m *mockInsightStore) Create(_ context.Context, in *models.Insight) error {
	m.created = append(m.created, in)
	return nil
}

func (m *mockInsightStore) ListByUser(_ context.Context, _ uuid.UUID, insightType string, limit uint64) ([]*models.Insight, error) {
	m.listType, m.listLimit = insightType, limit
	return m.created, nil
}

type mockLister struct {
	transactions []*models.Transaction
	filter       repository.TransactionFilter
}

func (m *mockLister) List(_ context.Context, f repository.TransactionFilter, _ uint64) ([]*models.Transaction, error) {
	m.filter = f
	return m.transactions, nil
}

func TestAnalyze(t *testing.T) {
	merchant := "Starbucks"
	tx := record("2024-03-04", "4.50")
	tx.MerchantName = &merchant
	lister := &mockLister{transactions: []*models.Transaction{tx}}
	store := &mockInsightStore{}
	provider := &mockProvider{}
	svc := NewInsightService(lister, store, provider, zap.NewNop())
	userID := uuid.New()
	accountID := uuid.New()

	resp, err := svc.Analyze(context.Background(), userID, &dto.AnalyzeRequest{
		DateRangeStart: "2024-03-01",
		AccountIDs:     []string{accountID.String()},
		InsightType:    "category_breakdown",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if resp.Insight != "You spent most on dining." || resp.ModelUsed != "llama3.2" {
		t.Errorf("response = %+v", resp)
	}
	if len(store.created) != 1 || resp.InsightID != store.created[0].ID.String() {
		t.Fatalf("stored insights = %+v", store.created)
	}
	saved := store.created[0]
	if saved.InsightType != models.InsightCategoryBreakdown || formatDate(*saved.DateRangeStart) != "2024-03-01" || saved.DateRangeEnd != nil {
		t.Errorf("saved insight = %+v", saved)
	}
	if !strings.HasPrefix(provider.prompts[0], "Categorize and summarize spending by category") {
		t.Errorf("prompt = %q", provider.prompts[0])
	}
	if provider.records[0].MerchantName != "Starbucks" || provider.records[0].Date != "2024-03-04" {
		t.Errorf("record = %+v", provider.records[0])
	}
	if lister.filter.UserID != userID || len(lister.filter.AccountIDs) != 1 || lister.filter.AccountIDs[0] != accountID {
		t.Errorf("filter = %+v", lister.filter)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name         string
		req          dto.AnalyzeRequest
		transactions []*models.Transaction
		insightErr   error
		want         error
	}{
		{name: "unknown type", req: dto.AnalyzeRequest{InsightType: "budget"}, want: ErrValidation},
		{name: "bad date", req: dto.AnalyzeRequest{DateRangeStart: "March"}, want: ErrValidation},
		{name: "bad account id", req: dto.AnalyzeRequest{AccountIDs: []string{"acc-1"}}, want: ErrValidation},
		{name: "no transactions", req: dto.AnalyzeRequest{InsightType: "other"}, want: ErrNotFound},
		{
			name:         "backend failure",
			req:          dto.AnalyzeRequest{},
			transactions: []*models.Transaction{record("2024-01-01", "1")},
			insightErr:   errors.New("connection refused"),
			want:         ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockInsightStore{}
			svc := NewInsightService(&mockLister{transactions: tt.transactions}, store, &mockProvider{insightErr: tt.insightErr}, zap.NewNop())

			_, err := svc.Analyze(context.Background(), uuid.New(), &tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.want)
			}
			if len(store.created) != 0 {
				t.Errorf("insight stored after failure")
			}
		})
	}
}

func TestAnalyze_DefaultsToSpendingAnalysis(t *testing.T) {
	provider := &mockProvider{}
	store := &mockInsightStore{}
	svc := NewInsightService(&mockLister{transactions: []*models.Transaction{record("2024-01-01", "1")}}, store, provider, zap.NewNop())

	if _, err := svc.Analyze(context.Background(), uuid.New(), &dto.AnalyzeRequest{}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if store.created[0].InsightType != models.InsightSpendingAnalysis || !strings.Contains(provider.prompts[0], "Top 3 spending categories") {
		t.Errorf("type = %s, prompt = %q", store.created[0].InsightType, provider.prompts[0])
	}
}

func TestListInsights_Limits(t *testing.T) {
	tests := []struct {
		limit int
		want  uint64
	}{
		{limit: 0, want: 10},
		{limit: 25, want: 25},
		{limit: 5000, want: 100},
	}
	for _, tt := range tests {
		store := &mockInsightStore{}
		svc := NewInsightService(&mockLister{}, store, &mockProvider{}, zap.NewNop())

		if _, err := svc.List(context.Background(), uuid.New(), tt.limit, "other"); err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if store.listLimit != tt.want || store.listType != "other" {
			t.Errorf("List(limit=%d) queried limit=%d type=%q, want %d", tt.limit, store.listLimit, store.listType, tt.want)
		}
	}

	svc := NewInsightService(&mockLister{}, &mockInsightStore{}, &mockProvider{}, zap.NewNop())
	if _, err := svc.List(context.Background(), uuid.New(), 10, "budget"); !errors.Is(err, ErrValidation) {
		t.Errorf("List(budget) error = %v, want ErrValidation", err)
	}
}
