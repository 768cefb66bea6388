package llm

import (
	"fmt"
	"strings"
)

const analystSystemPrompt = "You are a financial analyst AI assistant. Provide clear, actionable insights."

var categories = []string{
	"Groceries", "Dining Out", "Transportation", "Entertainment", "Shopping",
	"Bills & Utilities", "Healthcare", "Travel", "Personal Care", "Other",
}

func insightPrompt(prompt string, records []Record) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nTransactions:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "- %s: %s ($%s)\n", r.Date, orUnknown(r.MerchantName), r.Amount.StringFixed(2))
	}
	b.WriteString("\nProvide a concise analysis in 3-4 sentences.")
	return b.String()
}

func categorizePrompt(r Record) string {
	description := r.Description
	if description == "" {
		description = "N/A"
	}
	return fmt.Sprintf(`Categorize this transaction into ONE of these categories:
%s

Transaction: %s - $%s
Description: %s

Respond with ONLY the category name, nothing else.`,
		strings.Join(categories, ", "), orUnknown(r.MerchantName), r.Amount.StringFixed(2), description)
}

func reimbursementPrompt(r Record) string {
	return fmt.Sprintf(`Analyze if this transaction is a reimbursement or payment received from someone.

Transaction: %s
Description: %s
Amount: $%s

Look for keywords like: %s

Respond in JSON format:
{"is_reimbursement": true/false, "confidence": 0.0-1.0, "reasoning": "brief explanation"}`,
		r.MerchantName, r.Description, r.Amount.StringFixed(2), strings.Join(reimbursementKeywords, ", "))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
