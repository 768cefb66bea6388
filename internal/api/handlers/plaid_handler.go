package handlers

import (
	"context"

	"finsight/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaidService is implemented by *service.PlaidService.
type PlaidService interface {
	CreateLinkToken(ctx context.Context, userID uuid.UUID) (*dto.LinkTokenResponse, error)
	ExchangePublicToken(ctx context.Context, userID uuid.UUID, req *dto.ExchangeTokenRequest) (*dto.ExchangeTokenResponse, error)
	SyncTransactions(ctx context.Context, userID uuid.UUID, req *dto.SyncTransactionsRequest) (*dto.SyncTransactionsResponse, error)
	GetSyncRun(ctx context.Context, userID, runID uuid.UUID) (*dto.SyncRunResponse, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]dto.AccountResponse, error)
}

type PlaidHandler struct {
	plaidService PlaidService
	logger       *zap.Logger
}

func NewPlaidHandler(plaidService PlaidService, logger *zap.Logger) *PlaidHandler {
	return &PlaidHandler{
		plaidService: plaidService,
		logger:       logger,
	}
}

// CreateLinkToken godoc
// @Summary Create a Plaid Link token
// @Tags plaid
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.LinkTokenResponse
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/plaid/create-link-token [post]
func (h *PlaidHandler) CreateLinkToken(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.plaidService.CreateLinkToken(c.UserContext(), userID)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to create link token")
	}

	return c.JSON(resp)
}

// ExchangePublicToken godoc
// @Summary Exchange a public token
// @Description Links the item, stores its accounts and starts the initial 24-month sync in the background
// @Tags plaid
// @Accept json
// @Produce json
// @Param request body dto.ExchangeTokenRequest true "Public token from Plaid Link"
// @Security Bearer
// @Success 200 {object} dto.ExchangeTokenResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/plaid/exchange-public-token [post]
func (h *PlaidHandler) ExchangePublicToken(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ExchangeTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.plaidService.ExchangePublicToken(c.UserContext(), userID, &req)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to exchange public token")
	}

	return c.JSON(resp)
}

// SyncTransactions godoc
// @Summary Sync transactions
// @Description Queues a sync for one linked item. Poll the returned sync_id for the outcome.
// @Tags plaid
// @Accept json
// @Produce json
// @Param request body dto.SyncTransactionsRequest true "Item and optional window (YYYY-MM-DD)"
// @Security Bearer
// @Success 202 {object} dto.SyncTransactionsResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/plaid/sync-transactions [post]
func (h *PlaidHandler) SyncTransactions(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.SyncTransactionsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.plaidService.SyncTransactions(c.UserContext(), userID, &req)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to start sync")
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// GetSyncRun godoc
// @Summary Sync run status
// @Tags plaid
// @Produce json
// @Param id path string true "Sync run ID"
// @Security Bearer
// @Success 200 {object} dto.SyncRunResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/plaid/sync-runs/{id} [get]
func (h *PlaidHandler) GetSyncRun(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	runID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid sync run ID")
	}

	resp, err := h.plaidService.GetSyncRun(c.UserContext(), userID, runID)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to load sync run")
	}

	return c.JSON(resp)
}

// ListAccounts godoc
// @Summary Connected accounts
// @Tags plaid
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.AccountResponse
// @Failure 401 {object} map[string]string
// @Router /api/plaid/accounts [get]
func (h *PlaidHandler) ListAccounts(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.plaidService.ListAccounts(c.UserContext(), userID)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to list accounts")
	}

	return c.JSON(resp)
}
