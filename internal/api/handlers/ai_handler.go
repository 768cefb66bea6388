package handlers

import (
	"context"

	"finsight/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InsightService is implemented by *service.InsightService.
type InsightService interface {
	Analyze(ctx context.Context, userID uuid.UUID, req *dto.AnalyzeRequest) (*dto.AnalyzeResponse, error)
	List(ctx context.Context, userID uuid.UUID, limit int, insightType string) ([]dto.InsightResponse, error)
}

// CategorizationService is implemented by *service.CategorizationService.
type CategorizationService interface {
	Categorize(ctx context.Context, userID, txID uuid.UUID) (*dto.CategorizeResponse, error)
	BulkCategorize(ctx context.Context, userID uuid.UUID, limit int) (*dto.BulkCategorizeResponse, error)
	DetectReimbursement(ctx context.Context, userID, txID uuid.UUID) (*dto.ReimbursementDetectionResponse, error)
}

type AIHandler struct {
	insightService        InsightService
	categorizationService CategorizationService
	logger                *zap.Logger
}

func NewAIHandler(insightService InsightService, categorizationService CategorizationService, logger *zap.Logger) *AIHandler {
	return &AIHandler{
		insightService:        insightService,
		categorizationService: categorizationService,
		logger:                logger,
	}
}

// Analyze godoc
// @Summary Generate a spending insight
// @Description Runs the configured LLM over the selected transactions and stores the result
// @Tags ai
// @Accept json
// @Produce json
// @Param request body dto.AnalyzeRequest true "Window, accounts and insight type"
// @Security Bearer
// @Success 200 {object} dto.AnalyzeResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/ai/analyze [post]
func (h *AIHandler) Analyze(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.insightService.Analyze(c.UserContext(), userID, &req)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to generate insight")
	}

	return c.JSON(resp)
}

// ListInsights godoc
// @Summary Stored insights
// @Tags ai
// @Produce json
// @Param limit query int false "Max results" default(10)
// @Param insight_type query string false "Filter by insight type"
// @Security Bearer
// @Success 200 {array} dto.InsightResponse
// @Failure 400 {object} map[string]string
// @Router /api/ai/insights [get]
func (h *AIHandler) ListInsights(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.insightService.List(c.UserContext(), userID, c.QueryInt("limit", 10), c.Query("insight_type"))
	if err != nil {
		return handleError(c, h.logger, err, "Failed to list insights")
	}

	return c.JSON(resp)
}

// CategorizeTransaction godoc
// @Summary Categorize one transaction
// @Tags ai
// @Produce json
// @Param id path string true "Transaction ID"
// @Security Bearer
// @Success 200 {object} dto.CategorizeResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/ai/categorize-transaction/{id} [post]
func (h *AIHandler) CategorizeTransaction(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid transaction ID")
	}

	resp, err := h.categorizationService.Categorize(c.UserContext(), userID, txID)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to categorize transaction")
	}

	return c.JSON(resp)
}

// BulkCategorize godoc
// @Summary Categorize uncategorized transactions
// @Description Starts background categorization of up to limit transactions
// @Tags ai
// @Produce json
// @Param limit query int false "Max transactions" default(100)
// @Security Bearer
// @Success 200 {object} dto.BulkCategorizeResponse
// @Router /api/ai/bulk-categorize [post]
func (h *AIHandler) BulkCategorize(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	resp, err := h.categorizationService.BulkCategorize(c.UserContext(), userID, c.QueryInt("limit", 100))
	if err != nil {
		return handleError(c, h.logger, err, "Failed to start bulk categorization")
	}

	return c.JSON(resp)
}

// DetectReimbursement godoc
// @Summary Detect a reimbursement
// @Tags ai
// @Produce json
// @Param id path string true "Transaction ID"
// @Security Bearer
// @Success 200 {object} dto.ReimbursementDetectionResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/ai/detect-reimbursement/{id} [post]
func (h *AIHandler) DetectReimbursement(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid transaction ID")
	}

	resp, err := h.categorizationService.DetectReimbursement(c.UserContext(), userID, txID)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to detect reimbursement")
	}

	return c.JSON(resp)
}
