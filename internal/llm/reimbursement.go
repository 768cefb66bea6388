package llm

import (
	"encoding/json"
	"strings"
)

var reimbursementKeywords = []string{
	"reimburse",
	"paid back",
	"split",
	"venmo",
	"zelle",
	"repay",
	"refund",
}

const (
	keywordHitConfidence  = 0.7
	keywordMissConfidence = 0.3
	defaultConfidence     = 0.5
)

// KeywordReimbursement scans description and merchant, case-insensitively,
// for reimbursement keywords.
func KeywordReimbursement(r Record) (bool, float64) {
	text := strings.ToLower(r.Description + " " + r.MerchantName)
	for _, keyword := range reimbursementKeywords {
		if strings.Contains(text, keyword) {
			return true, keywordHitConfidence
		}
	}
	return false, keywordMissConfidence
}

type reimbursementAnswer struct {
	IsReimbursement bool     `json:"is_reimbursement"`
	Confidence      *float64 `json:"confidence"`
}

// parseReimbursement reads the JSON object out of a backend answer, which may
// be wrapped in prose or a markdown fence.
func parseReimbursement(content string) (bool, float64, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return false, 0, false
	}

	var answer reimbursementAnswer
	if err := json.Unmarshal([]byte(content[start:end+1]), &answer); err != nil {
		return false, 0, false
	}

	confidence := defaultConfidence
	if answer.Confidence != nil {
		confidence = min(max(*answer.Confidence, 0), 1)
	}
	return answer.IsReimbursement, confidence, true
}
