package repository

import (
	"context"

	"finsight/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var insightColumns = []string{"id", "user_id", "insight_type", "date_range_start", "date_range_end", "content", "model_used", "created_at"}

type InsightRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewInsightRepository(db DBTX, logger *zap.Logger) *InsightRepository {
	return &InsightRepository{
		db:     db,
		logger: logger,
	}
}

func (r *InsightRepository) Create(ctx context.Context, in *models.Insight) error {
	query := squirrel.Insert("ai_insights").
		Columns(insightColumns...).
		Values(in.ID, in.UserID, in.InsightType, in.DateRangeStart, in.DateRangeEnd, in.Content, in.ModelUsed, in.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// ListByUser returns the newest insights first, optionally of a single type.
func (r *InsightRepository) ListByUser(ctx context.Context, userID uuid.UUID, insightType string, limit uint64) ([]*models.Insight, error) {
	query := squirrel.Select(insightColumns...).
		From("ai_insights").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(limit).
		PlaceholderFormat(squirrel.Dollar)
	if insightType != "" {
		query = query.Where(squirrel.Eq{"insight_type": insightType})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []*models.Insight
	for rows.Next() {
		var in models.Insight
		if err := rows.Scan(
			&in.ID, &in.UserID, &in.InsightType, &in.DateRangeStart, &in.DateRangeEnd, &in.Content, &in.ModelUsed, &in.CreatedAt,
		); err != nil {
			return nil, err
		}
		insights = append(insights, &in)
	}
	return insights, rows.Err()
}
