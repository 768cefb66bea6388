package repository

import (
	"context"

	"finsight/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var itemColumns = []string{"id", "user_id", "access_token", "item_id", "institution_id", "created_at", "updated_at"}

type ItemRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewItemRepository(db DBTX, logger *zap.Logger) *ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a linked item. Re-linking the same item refreshes its access
// token and returns the existing row id. An item owned by another user is
// left untouched and reported as ErrNotFound.
func (r *ItemRepository) Upsert(ctx context.Context, item *models.PlaidItem) (uuid.UUID, error) {
	query := squirrel.Insert("plaid_items").
		Columns(itemColumns...).
		Values(item.ID, item.UserID, item.AccessToken, item.ItemID, item.InstitutionID, item.CreatedAt, item.UpdatedAt).
		Suffix(`ON CONFLICT (item_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			institution_id = EXCLUDED.institution_id,
			updated_at = EXCLUDED.updated_at
			WHERE plaid_items.user_id = EXCLUDED.user_id
			RETURNING id`).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return uuid.Nil, mapError(err)
	}
	return id, nil
}

// GetForUser looks an item up by its external id, scoped to the owning user.
func (r *ItemRepository) GetForUser(ctx context.Context, userID uuid.UUID, itemID string) (*models.PlaidItem, error) {
	query := squirrel.Select(itemColumns...).
		From("plaid_items").
		Where(squirrel.Eq{"user_id": userID, "item_id": itemID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var item models.PlaidItem
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&item.ID, &item.UserID, &item.AccessToken, &item.ItemID, &item.InstitutionID, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &item, nil
}

func (r *ItemRepository) ListAll(ctx context.Context) ([]*models.PlaidItem, error) {
	query := squirrel.Select(itemColumns...).
		From("plaid_items").
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

	var items []*models.PlaidItem
	for rows.Next() {
		var item models.PlaidItem
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.AccessToken, &item.ItemID, &item.InstitutionID, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}
