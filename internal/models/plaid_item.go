package models

import (
	"time"

	"github.com/google/uuid"
)

// PlaidItem is a user's link to one institution. AccessToken is a credential
// and must never leave the server.
type PlaidItem struct {
	ID            uuid.UUID `db:"id"`
	UserID        uuid.UUID `db:"user_id"`
	AccessToken   string    `db:"access_token"`
	ItemID        string    `db:"item_id"`
	InstitutionID *string   `db:"institution_id"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
