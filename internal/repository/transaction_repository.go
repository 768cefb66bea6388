package repository

import (
	"context"
	"time"

	"finsight/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var transactionColumns = []string{
	"t.id", "t.external_id", "t.account_id", "t.amount", "t.date", "t.merchant_name", "t.description",
	"t.category", "t.ai_category", "t.is_reimbursement", "t.source", "t.created_at", "t.updated_at",
}

// TransactionFilter narrows queries to one user's records. Records only
// belong to a user through an account the user owns.
type TransactionFilter struct {
	UserID     uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
	AccountIDs []uuid.UUID
}

type AccountSpending struct {
	AccountID       uuid.UUID
	AccountName     string
	InstitutionName *string
	Total           decimal.Decimal
	Count           int
}

type CategoryTotal struct {
	Category string
	Amount   decimal.Decimal
	Count    int
}

type SummaryStats struct {
	Total              decimal.Decimal
	Count              int
	ReimbursementTotal decimal.Decimal
	UniqueMerchants    int
	FirstDate          *time.Time
	LastDate           *time.Time
}

type TransactionRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewTransactionRepository(db DBTX, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TransactionRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	query := squirrel.Select("1").
		Prefix("SELECT EXISTS(").
		From("transactions").
		Where(squirrel.Eq{"external_id": externalID}).
		Suffix(")").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a record and reports whether a row was written. A record
// whose external id is already stored is silently skipped.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) (bool, error) {
	query := squirrel.Insert("transactions").
		Columns("id", "external_id", "account_id", "amount", "date", "merchant_name", "description",
			"category", "ai_category", "is_reimbursement", "source", "created_at", "updated_at").
		Values(tx.ID, tx.ExternalID, tx.AccountID, tx.Amount, tx.Date, tx.MerchantName, tx.Description,
			tx.Category, tx.AICategory, tx.IsReimbursement, tx.Source, tx.CreatedAt, tx.UpdatedAt).
		Suffix("ON CONFLICT (external_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	query := squirrel.Select(transactionColumns...).
		From("transactions t").
		Join("accounts a ON a.id = t.account_id").
		Where(squirrel.Eq{"t.id": id, "a.user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := scanTransaction(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return tx, nil
}

// List returns the filtered records oldest first. A zero limit means no limit.
func (r *TransactionRepository) List(ctx context.Context, f TransactionFilter, limit uint64) ([]*models.Transaction, error) {
	query := applyFilter(squirrel.Select(transactionColumns...).From("transactions t"), f).
		OrderBy("t.date ASC", "t.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.query(ctx, query)
}

func (r *TransactionRepository) ListUncategorized(ctx context.Context, userID uuid.UUID, limit uint64) ([]*models.Transaction, error) {
	query := applyFilter(squirrel.Select(transactionColumns...).From("transactions t"), TransactionFilter{UserID: userID}).
		Where(squirrel.Eq{"t.ai_category": nil}).
		OrderBy("t.date DESC").
		Limit(limit)
	return r.query(ctx, query)
}

// ListReimbursements returns flagged records newest first.
func (r *TransactionRepository) ListReimbursements(ctx context.Context, f TransactionFilter) ([]*models.Transaction, error) {
	query := applyFilter(squirrel.Select(transactionColumns...).From("transactions t"), f).
		Where(squirrel.Eq{"t.is_reimbursement": true}).
		OrderBy("t.date DESC")
	return r.query(ctx, query)
}

func (r *TransactionRepository) SetAICategory(ctx context.Context, id uuid.UUID, category string) error {
	return r.update(ctx, id, "ai_category", category)
}

func (r *TransactionRepository) SetReimbursement(ctx context.Context, id uuid.UUID, flag bool) error {
	return r.update(ctx, id, "is_reimbursement", flag)
}

func (r *TransactionRepository) SpendingByAccount(ctx context.Context, f TransactionFilter) ([]AccountSpending, error) {
	query := applyFilter(
		squirrel.Select("a.id", "a.account_name", "a.institution_name", "COALESCE(SUM(t.amount), 0)", "COUNT(t.id)").
			From("transactions t"), f).
		GroupBy("a.id", "a.account_name", "a.institution_name").
		OrderBy("a.account_name")

	sql, args, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AccountSpending
	for rows.Next() {
		var s AccountSpending
		if err := rows.Scan(&s.AccountID, &s.AccountName, &s.InstitutionName, &s.Total, &s.Count); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// CategoryTotals groups by the Plaid category, or by the generated category
// when useAICategory is set. Records without a category are excluded.
func (r *TransactionRepository) CategoryTotals(ctx context.Context, f TransactionFilter, useAICategory bool) ([]CategoryTotal, error) {
	column := "t.category"
	if useAICategory {
		column = "t.ai_category"
	}

	query := applyFilter(
		squirrel.Select(column, "COALESCE(SUM(t.amount), 0)", "COUNT(t.id)").From("transactions t"), f).
		Where(squirrel.NotEq{column: nil}).
		GroupBy(column)

	sql, args, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CategoryTotal
	for rows.Next() {
		var c CategoryTotal
		if err := rows.Scan(&c.Category, &c.Amount, &c.Count); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *TransactionRepository) Summary(ctx context.Context, f TransactionFilter) (*SummaryStats, error) {
	query := applyFilter(
		squirrel.Select(
			"COALESCE(SUM(t.amount), 0)",
			"COUNT(t.id)",
			"COALESCE(SUM(t.amount) FILTER (WHERE t.is_reimbursement), 0)",
			"COUNT(DISTINCT t.merchant_name)",
			"MIN(t.date)",
			"MAX(t.date)",
		).From("transactions t"), f)

	sql, args, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	var s SummaryStats
	if err := r.db.QueryRow(ctx, sql, args...).Scan(
		&s.Total, &s.Count, &s.ReimbursementTotal, &s.UniqueMerchants, &s.FirstDate, &s.LastDate,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *TransactionRepository) update(ctx context.Context, id uuid.UUID, column string, value any) error {
	query := squirrel.Update("transactions").
		Set(column, value).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TransactionRepository) query(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Transaction, error) {
	sql, args, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func applyFilter(query squirrel.SelectBuilder, f TransactionFilter) squirrel.SelectBuilder {
	query = query.
		Join("accounts a ON a.id = t.account_id").
		Where(squirrel.Eq{"a.user_id": f.UserID})
	if f.StartDate != nil {
		query = query.Where(squirrel.GtOrEq{"t.date": *f.StartDate})
	}
	if f.EndDate != nil {
		query = query.Where(squirrel.LtOrEq{"t.date": *f.EndDate})
	}
	if len(f.AccountIDs) > 0 {
		query = query.Where(squirrel.Eq{"t.account_id": f.AccountIDs})
	}
	return query
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var tx models.Transaction
	if err := row.Scan(
		&tx.ID, &tx.ExternalID, &tx.AccountID, &tx.Amount, &tx.Date, &tx.MerchantName, &tx.Description,
		&tx.Category, &tx.AICategory, &tx.IsReimbursement, &tx.Source, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &tx, nil
}
