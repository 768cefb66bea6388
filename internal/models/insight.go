package models

import (
	"time"

	"github.com/google/uuid"
)

type InsightType string

const (
	InsightSpendingAnalysis      InsightType = "spending_analysis"
	InsightCategoryBreakdown     InsightType = "category_breakdown"
	InsightReimbursementAnalysis InsightType = "reimbursement_analysis"
	InsightOther                 InsightType = "other"
)

func (t InsightType) Valid() bool {
	switch t {
	case InsightSpendingAnalysis, InsightCategoryBreakdown, InsightReimbursementAnalysis, InsightOther:
		return true
	}
	return false
}

// Insight is generated text persisted per user. Rows are never updated.
type Insight struct {
	ID             uuid.UUID   `db:"id"`
	UserID         uuid.UUID   `db:"user_id"`
	InsightType    InsightType `db:"insight_type"`
	DateRangeStart *time.Time  `db:"date_range_start"`
	DateRangeEnd   *time.Time  `db:"date_range_end"`
	Content        string      `db:"content"`
	ModelUsed      string      `db:"model_used"`
	CreatedAt      time.Time   `db:"created_at"`
}
