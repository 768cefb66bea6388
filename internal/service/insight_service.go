package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finsight/internal/dto"
	"finsight/internal/llm"
	"finsight/internal/models"
	"finsight/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultInsightLimit = 10
	maxInsightLimit     = 100
)

var insightPrompts = map[models.InsightType]string{
	models.InsightSpendingAnalysis: `Analyze these transactions and provide:
1. Top 3 spending categories with amounts
2. Any unusual spending patterns or anomalies
3. One actionable recommendation to reduce spending`,
	models.InsightCategoryBreakdown:     "Categorize and summarize spending by category. Provide a clear breakdown with percentages.",
	models.InsightReimbursementAnalysis: "Identify any transactions that might be reimbursements or refunds. List them with confidence scores.",
	models.InsightOther:                 "Provide a comprehensive spending analysis.",
}

type TransactionLister interface {
	List(ctx context.Context, f repository.TransactionFilter, limit uint64) ([]*models.Transaction, error)
}

type InsightStore interface {
	Create(ctx context.Context, in *models.Insight) error
	ListByUser(ctx context.Context, userID uuid.UUID, insightType string, limit uint64) ([]*models.Insight, error)
}

type InsightService struct {
	transactions TransactionLister
	insights     InsightStore
	provider     llm.Provider
	logger       *zap.Logger
}

func NewInsightService(transactions TransactionLister, insights InsightStore, provider llm.Provider, logger *zap.Logger) *InsightService {
	return &InsightService{
		transactions: transactions,
		insights:     insights,
		provider:     provider,
		logger:       logger,
	}
}

// Analyze generates an insight over the user's records in the requested
// window and stores it.
func (s *InsightService) Analyze(ctx context.Context, userID uuid.UUID, req *dto.AnalyzeRequest) (*dto.AnalyzeResponse, error) {
	insightType, err := parseInsightType(req.InsightType)
	if err != nil {
		return nil, err
	}
	start, end, err := ParseDateRange(req.DateRangeStart, req.DateRangeEnd)
	if err != nil {
		return nil, err
	}
	accountIDs, err := parseUUIDs(req.AccountIDs)
	if err != nil {
		return nil, err
	}

	transactions, err := s.transactions.List(ctx, repository.TransactionFilter{
		UserID:     userID,
		StartDate:  start,
		EndDate:    end,
		AccountIDs: accountIDs,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(transactions) == 0 {
		return nil, notFound("No transactions found for the specified criteria")
	}

	records := make([]llm.Record, 0, len(transactions))
	for _, tx := range transactions {
		records = append(records, toRecord(tx))
	}

	text, err := s.provider.GenerateInsight(ctx, insightPrompts[insightType], records)
	if err != nil {
		return nil, upstream(err, "Failed to generate insight")
	}

	insight := &models.Insight{
		ID:             uuid.New(),
		UserID:         userID,
		InsightType:    insightType,
		DateRangeStart: start,
		DateRangeEnd:   end,
		Content:        text,
		ModelUsed:      s.provider.Model(),
		CreatedAt:      time.Now(),
	}
	if err := s.insights.Create(ctx, insight); err != nil {
		return nil, fmt.Errorf("failed to save insight: %w", err)
	}

	s.logger.Info("Insight generated",
		zap.String("user_id", userID.String()),
		zap.String("insight_type", string(insightType)),
		zap.Int("transactions", len(records)),
		zap.String("model", insight.ModelUsed),
	)

	return &dto.AnalyzeResponse{
		Insight:   text,
		InsightID: insight.ID.String(),
		ModelUsed: insight.ModelUsed,
	}, nil
}

// List returns the user's newest insights. A non-positive limit selects the
// default; larger values are capped.
func (s *InsightService) List(ctx context.Context, userID uuid.UUID, limit int, insightType string) ([]dto.InsightResponse, error) {
	if insightType != "" {
		if _, err := parseInsightType(insightType); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = defaultInsightLimit
	}
	limit = min(limit, maxInsightLimit)

	insights, err := s.insights.ListByUser(ctx, userID, insightType, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}

	result := make([]dto.InsightResponse, 0, len(insights))
	for _, in := range insights {
		result = append(result, dto.InsightResponse{
			ID:             in.ID.String(),
			InsightType:    string(in.InsightType),
			Content:        in.Content,
			DateRangeStart: formatDatePtr(in.DateRangeStart),
			DateRangeEnd:   formatDatePtr(in.DateRangeEnd),
			ModelUsed:      in.ModelUsed,
			CreatedAt:      in.CreatedAt.Format(time.RFC3339),
		})
	}
	return result, nil
}

// parseInsightType defaults to spending_analysis when s is empty.
func parseInsightType(s string) (models.InsightType, error) {
	t := models.InsightType(strings.TrimSpace(s))
	if t == "" {
		return models.InsightSpendingAnalysis, nil
	}
	if !t.Valid() {
		return "", invalid("Invalid insight_type %q: expected spending_analysis, category_breakdown, reimbursement_analysis or other", s)
	}
	return t, nil
}

func toRecord(tx *models.Transaction) llm.Record {
	r := llm.Record{
		Date:         formatDate(tx.Date),
		MerchantName: tx.Merchant(),
		Amount:       tx.Amount,
		Description:  tx.DescriptionText(),
	}
	if tx.Category != nil {
		r.Category = *tx.Category
	}
	return r
}
