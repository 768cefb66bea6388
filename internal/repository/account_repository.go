package repository

import (
	"context"
	"time"

	"finsight/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var accountColumns = []string{
	"id", "user_id", "item_id", "plaid_account_id", "account_name", "account_type",
	"institution_name", "last_four", "last_sync_timestamp", "created_at", "updated_at",
}

type AccountRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewAccountRepository(db DBTX, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts an account or refreshes the descriptive fields of an
// existing one with the same Plaid account id owned by the same user.
func (r *AccountRepository) Upsert(ctx context.Context, acc *models.Account) error {
	query := squirrel.Insert("accounts").
		Columns(accountColumns...).
		Values(acc.ID, acc.UserID, acc.ItemID, acc.PlaidAccountID, acc.AccountName, acc.AccountType,
			acc.InstitutionName, acc.LastFour, acc.LastSyncTimestamp, acc.CreatedAt, acc.UpdatedAt).
		Suffix(`ON CONFLICT (plaid_account_id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			account_name = EXCLUDED.account_name,
			account_type = EXCLUDED.account_type,
			institution_name = EXCLUDED.institution_name,
			last_four = EXCLUDED.last_four,
			updated_at = EXCLUDED.updated_at
			WHERE accounts.user_id = EXCLUDED.user_id`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return mapError(err)
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	query := squirrel.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var acc models.Account
		if err := rows.Scan(
			&acc.ID, &acc.UserID, &acc.ItemID, &acc.PlaidAccountID, &acc.AccountName, &acc.AccountType,
			&acc.InstitutionName, &acc.LastFour, &acc.LastSyncTimestamp, &acc.CreatedAt, &acc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

// MapByPlaidID returns plaid_account_id -> accounts.id for the user's accounts.
func (r *AccountRepository) MapByPlaidID(ctx context.Context, userID uuid.UUID) (map[string]uuid.UUID, error) {
	query := squirrel.Select("plaid_account_id", "id").
		From("accounts").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]uuid.UUID)
	for rows.Next() {
		var plaidID string
		var id uuid.UUID
		if err := rows.Scan(&plaidID, &id); err != nil {
			return nil, err
		}
		result[plaidID] = id
	}
	return result, rows.Err()
}

// TouchByUser sets last_sync_timestamp on every account the user owns.
func (r *AccountRepository) TouchByUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := squirrel.Update("accounts").
		Set("last_sync_timestamp", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
