// Package plaid is a small JSON-over-HTTP client for the Plaid endpoints used
// to link items and pull transaction history.
package plaid

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured     = errors.New("plaid: provider not configured")
	ErrInvalidToken      = errors.New("plaid: invalid or expired access token")
	ErrRateLimited       = errors.New("plaid: rate limit exceeded")
	ErrItemLoginRequired = errors.New("plaid: item requires user re-authentication")
)

// APIError is a non-200 answer from Plaid.
type APIError struct {
	StatusCode   int
	ErrorType    string
	ErrorCode    string
	ErrorMessage string
	RequestID    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaid API error: %s (status=%d, type=%s, code=%s, request_id=%s)",
		e.ErrorMessage, e.StatusCode, e.ErrorType, e.ErrorCode, e.RequestID)
}

// Unwrap lets errors.Is match the sentinel that corresponds to the Plaid error type.
func (e *APIError) Unwrap() error {
	switch {
	case e.ErrorType == "INVALID_ACCESS_TOKEN" || e.ErrorCode == "INVALID_ACCESS_TOKEN":
		return ErrInvalidToken
	case e.ErrorType == "RATE_LIMIT_EXCEEDED" || e.StatusCode == 429:
		return ErrRateLimited
	case e.ErrorType == "ITEM_ERROR" && e.ErrorCode == "ITEM_LOGIN_REQUIRED":
		return ErrItemLoginRequired
	}
	return nil
}

func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
