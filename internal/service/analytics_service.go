package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"finsight/internal/dto"
	"finsight/internal/models"
	"finsight/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// ParseGranularity defaults to monthly when s is empty.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GranularityMonthly, nil
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return g, nil
	}
	return "", invalid("Invalid granularity %q: expected daily, weekly or monthly", s)
}

type AnalyticsStore interface {
	SpendingByAccount(ctx context.Context, f repository.TransactionFilter) ([]repository.AccountSpending, error)
	List(ctx context.Context, f repository.TransactionFilter, limit uint64) ([]*models.Transaction, error)
	CategoryTotals(ctx context.Context, f repository.TransactionFilter, useAICategory bool) ([]repository.CategoryTotal, error)
	ListReimbursements(ctx context.Context, f repository.TransactionFilter) ([]*models.Transaction, error)
	Summary(ctx context.Context, f repository.TransactionFilter) (*repository.SummaryStats, error)
}

// AnalyticsQuery is the common input of every aggregate. All aggregates are
// restricted to records whose account belongs to UserID.
type AnalyticsQuery struct {
	UserID     uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
	AccountIDs []uuid.UUID
}

func (q AnalyticsQuery) filter() repository.TransactionFilter {
	return repository.TransactionFilter{
		UserID:     q.UserID,
		StartDate:  q.StartDate,
		EndDate:    q.EndDate,
		AccountIDs: q.AccountIDs,
	}
}

type AnalyticsService struct {
	store  AnalyticsStore
	logger *zap.Logger
}

func NewAnalyticsService(store AnalyticsStore, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:  store,
		logger: logger,
	}
}

var hundred = decimal.NewFromInt(100)

func (s *AnalyticsService) SpendingByCard(ctx context.Context, q AnalyticsQuery) ([]dto.SpendingByCard, error) {
	rows, err := s.store.SpendingByAccount(ctx, q.filter())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spending by account: %w", err)
	}

	result := make([]dto.SpendingByCard, 0, len(rows))
	for _, r := range rows {
		result = append(result, dto.SpendingByCard{
			AccountID:        r.AccountID.String(),
			AccountName:      r.AccountName,
			InstitutionName:  r.InstitutionName,
			TotalSpent:       toFloat(r.Total),
			TransactionCount: r.Count,
		})
	}
	return result, nil
}

// SpendingOverTime buckets records by day, by the Monday starting their week,
// or by month. Buckets are returned in ascending key order.
func (s *AnalyticsService) SpendingOverTime(ctx context.Context, q AnalyticsQuery, g Granularity) ([]dto.SpendingOverTime, error) {
	transactions, err := s.store.List(ctx, q.filter(), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	type bucket struct {
		amount decimal.Decimal
		count  int
	}
	buckets := make(map[string]*bucket)
	for _, tx := range transactions {
		key := bucketKey(tx.Date, g)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.amount = b.amount.Add(tx.Amount)
		b.count++
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]dto.SpendingOverTime, 0, len(keys))
	for _, k := range keys {
		result = append(result, dto.SpendingOverTime{
			Date:             k,
			Amount:           toFloat(buckets[k].amount),
			TransactionCount: buckets[k].count,
		})
	}
	return result, nil
}

func bucketKey(date time.Time, g Granularity) string {
	switch g {
	case GranularityDaily:
		return formatDate(date)
	case GranularityWeekly:
		return formatDate(weekStart(date))
	default:
		return date.Format("2006-01")
	}
}

// weekStart returns the Monday of the week containing t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

// Categories reports per-category totals, largest first. Percentages are of
// the sum over all returned categories and are 0 when that sum is 0.
func (s *AnalyticsService) Categories(ctx context.Context, q AnalyticsQuery, useAICategory bool) ([]dto.CategorySpending, error) {
	rows, err := s.store.CategoryTotals(ctx, q.filter(), useAICategory)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Amount.GreaterThan(rows[j].Amount)
	})

	result := make([]dto.CategorySpending, 0, len(rows))
	for _, r := range rows {
		category := r.Category
		if category == "" {
			category = "Uncategorized"
		}
		result = append(result, dto.CategorySpending{
			Category:         category,
			Amount:           toFloat(r.Amount),
			Percentage:       percentage(r.Amount, total),
			TransactionCount: r.Count,
		})
	}
	return result, nil
}

func percentage(amount, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return amount.Div(total).Mul(hundred).Round(2).InexactFloat64()
}

func (s *AnalyticsService) Reimbursements(ctx context.Context, q AnalyticsQuery) ([]dto.ReimbursementItem, error) {
	transactions, err := s.store.ListReimbursements(ctx, q.filter())
	if err != nil {
		return nil, fmt.Errorf("failed to load reimbursements: %w", err)
	}

	result := make([]dto.ReimbursementItem, 0, len(transactions))
	for _, tx := range transactions {
		merchant := tx.Merchant()
		if merchant == "" {
			merchant = "Unknown"
		}
		result = append(result, dto.ReimbursementItem{
			TransactionID: tx.ID.String(),
			Date:          formatDate(tx.Date),
			MerchantName:  merchant,
			Amount:        toFloat(tx.Amount),
			Description:   tx.Description,
		})
	}
	return result, nil
}

func (s *AnalyticsService) Summary(ctx context.Context, q AnalyticsQuery) (*dto.SpendingSummary, error) {
	stats, err := s.store.Summary(ctx, q.filter())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize transactions: %w", err)
	}

	summary := &dto.SpendingSummary{
		TotalSpent:          toFloat(stats.Total),
		TransactionCount:    stats.Count,
		ReimbursementsTotal: toFloat(stats.ReimbursementTotal),
		UniqueMerchants:     stats.UniqueMerchants,
	}
	if stats.Count == 0 {
		return summary, nil
	}

	summary.AverageTransaction = toFloat(stats.Total.Div(decimal.NewFromInt(int64(stats.Count))))
	if stats.FirstDate != nil && stats.LastDate != nil {
		summary.DateRange = &dto.DateRange{
			Start: formatDate(*stats.FirstDate),
			End:   formatDate(*stats.LastDate),
		}
	}
	return summary, nil
}

// toFloat rounds to cents for the JSON representation.
func toFloat(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// ParseAccountIDs reads a comma separated list of account ids.
func ParseAccountIDs(raw string) ([]uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseUUIDs(strings.Split(raw, ","))
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, invalid("Invalid account id %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
