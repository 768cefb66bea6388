package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionSource string

const (
	SourcePlaid  TransactionSource = "plaid"
	SourceVenmo  TransactionSource = "venmo"
	SourceManual TransactionSource = "manual"
)

// Transaction is a stored transaction record. ExternalID is unique across the
// table and is the only deduplication key.
type Transaction struct {
	ID              uuid.UUID         `db:"id"`
	ExternalID      string            `db:"external_id"`
	AccountID       *uuid.UUID        `db:"account_id"`
	Amount          decimal.Decimal   `db:"amount"`
	Date            time.Time         `db:"date"`
	MerchantName    *string           `db:"merchant_name"`
	Description     *string           `db:"description"`
	Category        *string           `db:"category"`
	AICategory      *string           `db:"ai_category"`
	IsReimbursement bool              `db:"is_reimbursement"`
	Source          TransactionSource `db:"source"`
	CreatedAt       time.Time         `db:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at"`
}

func (t *Transaction) Merchant() string {
	if t.MerchantName == nil {
		return ""
	}
	return *t.MerchantName
}

func (t *Transaction) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}
