package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID                uuid.UUID  `db:"id"`
	UserID            uuid.UUID  `db:"user_id"`
	ItemID            *uuid.UUID `db:"item_id"`
	PlaidAccountID    string     `db:"plaid_account_id"`
	AccountName       string     `db:"account_name"`
	AccountType       *string    `db:"account_type"`
	InstitutionName   *string    `db:"institution_name"`
	LastFour          *string    `db:"last_four"`
	LastSyncTimestamp *time.Time `db:"last_sync_timestamp"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}
