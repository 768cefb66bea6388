package dto

type AnalyzeRequest struct {
	DateRangeStart string   `json:"date_range_start,omitempty"`
	DateRangeEnd   string   `json:"date_range_end,omitempty"`
	AccountIDs     []string `json:"account_ids,omitempty"`
	InsightType    string   `json:"insight_type"`
}

type AnalyzeResponse struct {
	Insight   string `json:"insight"`
	InsightID string `json:"insight_id"`
	ModelUsed string `json:"model_used"`
}

type InsightResponse struct {
	ID             string  `json:"id"`
	InsightType    string  `json:"insight_type"`
	Content        string  `json:"content"`
	DateRangeStart *string `json:"date_range_start"`
	DateRangeEnd   *string `json:"date_range_end"`
	ModelUsed      string  `json:"model_used"`
	CreatedAt      string  `json:"created_at"`
}

type CategorizeResponse struct {
	TransactionID string `json:"transaction_id"`
	AICategory    string `json:"ai_category"`
}

type BulkCategorizeResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type ReimbursementDetectionResponse struct {
	TransactionID   string  `json:"transaction_id"`
	IsReimbursement bool    `json:"is_reimbursement"`
	Confidence      float64 `json:"confidence"`
}
