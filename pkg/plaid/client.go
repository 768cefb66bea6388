package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finsight/pkg/config"
)

const (
	sandboxBaseURL     = "https://sandbox.plaid.com"
	developmentBaseURL = "https://development.plaid.com"
	productionBaseURL  = "https://production.plaid.com"

	apiVersion     = "2020-09-14"
	defaultTimeout = 60 * time.Second
)

type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	secret       string // never logged
	clientName   string
	countryCodes []string
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different host, e.g. an httptest server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func NewClient(cfg *config.PlaidConfig, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" || cfg.Secret == "" {
		return nil, ErrNotConfigured
	}

	var baseURL string
	switch strings.ToLower(cfg.Env) {
	case "production":
		baseURL = productionBaseURL
	case "development":
		baseURL = developmentBaseURL
	default:
		baseURL = sandboxBaseURL
	}

	countryCodes := cfg.CountryCodes
	if len(countryCodes) == 0 {
		countryCodes = []string{"US"}
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		baseURL:      baseURL,
		clientID:     cfg.ClientID,
		secret:       cfg.Secret,
		clientName:   cfg.ClientName,
		countryCodes: countryCodes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateLinkToken creates a Link token for initializing Plaid Link.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	body := map[string]interface{}{
		"client_name":   c.clientName,
		"language":      "en",
		"country_codes": c.countryCodes,
		"user":          LinkTokenUser{ClientUserID: userID},
		"products":      []string{ProductTransactions},
	}
	resp, err := doPost[LinkTokenCreateResponse](ctx, c, "/link/token/create", body)
	if err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

// ExchangePublicToken trades a one-time public token for an access token and item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ItemPublicTokenExchangeResponse, error) {
	body := map[string]interface{}{
		"public_token": publicToken,
	}
	return doPost[ItemPublicTokenExchangeResponse](ctx, c, "/item/public_token/exchange", body)
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsGetResponse, error) {
	body := map[string]interface{}{
		"access_token": accessToken,
	}
	return doPost[AccountsGetResponse](ctx, c, "/accounts/get", body)
}

// GetTransactions fetches one page of /transactions/get. Dates are inclusive calendar days.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time, opts *TransactionsGetOptions) (*TransactionsGetResponse, error) {
	body := map[string]interface{}{
		"access_token": accessToken,
		"start_date":   FormatDate(startDate),
		"end_date":     FormatDate(endDate),
	}
	if opts != nil {
		options := map[string]interface{}{}
		if len(opts.AccountIDs) > 0 {
			options["account_ids"] = opts.AccountIDs
		}
		if opts.Count > 0 {
			options["count"] = opts.Count
		}
		if opts.Offset > 0 {
			options["offset"] = opts.Offset
		}
		if len(options) > 0 {
			body["options"] = options
		}
	}
	return doPost[TransactionsGetResponse](ctx, c, "/transactions/get", body)
}

func (c *Client) GetInstitution(ctx context.Context, institutionID string) (*InstitutionsGetByIDResponse, error) {
	body := map[string]interface{}{
		"institution_id": institutionID,
		"country_codes":  c.countryCodes,
	}
	return doPost[InstitutionsGetByIDResponse](ctx, c, "/institutions/get_by_id", body)
}

// CreateSandboxPublicToken only works against the sandbox environment.
func (c *Client) CreateSandboxPublicToken(ctx context.Context, institutionID string) (string, error) {
	body := map[string]interface{}{
		"institution_id":   institutionID,
		"initial_products": []string{ProductTransactions},
	}
	resp, err := doPost[SandboxPublicTokenCreateResponse](ctx, c, "/sandbox/public_token/create", body)
	if err != nil {
		return "", err
	}
	return resp.PublicToken, nil
}

func doPost[Resp any](ctx context.Context, c *Client, path string, reqBody map[string]interface{}) (*Resp, error) {
	reqBody["client_id"] = c.clientID
	reqBody["secret"] = c.secret

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Plaid-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plaid %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var result Resp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return &result, nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.ErrorType != "" {
		apiErr.ErrorType = errResp.ErrorType
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.ErrorMessage = errResp.ErrorMessage
		apiErr.RequestID = errResp.RequestID
	} else {
		apiErr.ErrorMessage = strings.TrimSpace(string(body))
	}
	return apiErr
}
