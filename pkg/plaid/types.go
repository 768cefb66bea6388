package plaid

import "time"

// Request/response payloads for the Plaid endpoints this service calls.

type AccountsGetResponse struct {
	Accounts  []Account `json:"accounts"`
	Item      Item      `json:"item"`
	RequestID string    `json:"request_id"`
}

type Account struct {
	AccountID    string   `json:"account_id"`
	Balances     Balances `json:"balances"`
	Mask         string   `json:"mask"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Type         string   `json:"type"`    // depository, credit, loan, investment, other
	Subtype      string   `json:"subtype"` // checking, savings, credit card, ...
}

type Balances struct {
	Available       *float64 `json:"available"`
	Current         *float64 `json:"current"`
	Limit           *float64 `json:"limit"`
	IsoCurrencyCode string   `json:"iso_currency_code"`
}

type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

type TransactionsGetOptions struct {
	AccountIDs []string `json:"account_ids,omitempty"`
	Count      int      `json:"count,omitempty"`
	Offset     int      `json:"offset,omitempty"`
}

type TransactionsGetResponse struct {
	Accounts          []Account     `json:"accounts"`
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	Item              Item          `json:"item"`
	RequestID         string        `json:"request_id"`
}

type Transaction struct {
	TransactionID   string   `json:"transaction_id"`
	AccountID       string   `json:"account_id"`
	Amount          float64  `json:"amount"`
	IsoCurrencyCode string   `json:"iso_currency_code"`
	Date            string   `json:"date"` // YYYY-MM-DD
	Name            string   `json:"name"`
	MerchantName    string   `json:"merchant_name"`
	Pending         bool     `json:"pending"`
	Category        []string `json:"category"`
}

type LinkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type LinkTokenCreateResponse struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id"`
}

type ItemPublicTokenExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

type InstitutionsGetByIDResponse struct {
	Institution Institution `json:"institution"`
	RequestID   string      `json:"request_id"`
}

type Institution struct {
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
}

type SandboxPublicTokenCreateResponse struct {
	PublicToken string `json:"public_token"`
	RequestID   string `json:"request_id"`
}

type ErrorResponse struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

const ProductTransactions = "transactions"

const dateLayout = "2006-01-02"

// ParseDate parses a Plaid date string (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// FormatDate formats a time as a Plaid date string (YYYY-MM-DD).
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
