package dto

type LinkTokenResponse struct {
	LinkToken string `json:"link_token"`
}

type ExchangeTokenRequest struct {
	PublicToken string `json:"public_token"`
}

type ExchangeTokenResponse struct {
	Success        bool   `json:"success"`
	ItemID         string `json:"item_id"`
	AccountsSynced int    `json:"accounts_synced"`
	SyncID         string `json:"sync_id,omitempty"`
}

type SyncTransactionsRequest struct {
	ItemID    string `json:"item_id"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// SyncTransactionsResponse acknowledges a queued sync. TransactionsSynced is
// always 0; progress is reported through the sync run.
type SyncTransactionsResponse struct {
	Success            bool   `json:"success"`
	TransactionsSynced int    `json:"transactions_synced"`
	Message            string `json:"message"`
	SyncID             string `json:"sync_id"`
}

type SyncRunResponse struct {
	ID          string  `json:"id"`
	ItemID      string  `json:"item_id"`
	Status      string  `json:"status"`
	WindowStart *string `json:"window_start"`
	WindowEnd   *string `json:"window_end"`
	Fetched     int     `json:"fetched"`
	Inserted    int     `json:"inserted"`
	Error       *string `json:"error"`
	CreatedAt   string  `json:"created_at"`
	StartedAt   *string `json:"started_at"`
	FinishedAt  *string `json:"finished_at"`
}

type AccountResponse struct {
	ID              string  `json:"id"`
	AccountName     string  `json:"account_name"`
	AccountType     *string `json:"account_type"`
	InstitutionName *string `json:"institution_name"`
	LastFour        *string `json:"last_four"`
	LastSync        *string `json:"last_sync"`
}
