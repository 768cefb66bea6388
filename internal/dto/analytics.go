package dto

type SpendingByCard struct {
	AccountID        string  `json:"account_id"`
	AccountName      string  `json:"account_name"`
	InstitutionName  *string `json:"institution_name"`
	TotalSpent       float64 `json:"total_spent"`
	TransactionCount int     `json:"transaction_count"`
}

type SpendingOverTime struct {
	Date             string  `json:"date"`
	Amount           float64 `json:"amount"`
	TransactionCount int     `json:"transaction_count"`
}

type CategorySpending struct {
	Category         string  `json:"category"`
	Amount           float64 `json:"amount"`
	Percentage       float64 `json:"percentage"`
	TransactionCount int     `json:"transaction_count"`
}

type ReimbursementItem struct {
	TransactionID string   `json:"transaction_id"`
	Date          string   `json:"date"`
	MerchantName  string   `json:"merchant_name"`
	Amount        float64  `json:"amount"`
	Description   *string  `json:"description"`
	Confidence    *float64 `json:"confidence"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SpendingSummary omits DateRange when there are no records.
type SpendingSummary struct {
	TotalSpent          float64    `json:"total_spent"`
	TransactionCount    int        `json:"transaction_count"`
	AverageTransaction  float64    `json:"average_transaction"`
	ReimbursementsTotal float64    `json:"reimbursements_total"`
	UniqueMerchants     int        `json:"unique_merchants"`
	DateRange           *DateRange `json:"date_range,omitempty"`
}
