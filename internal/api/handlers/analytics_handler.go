package handlers

import (
	"context"
	"errors"

	"finsight/internal/dto"
	"finsight/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AnalyticsService is implemented by *service.AnalyticsService.
type AnalyticsService interface {
	SpendingByCard(ctx context.Context, q service.AnalyticsQuery) ([]dto.SpendingByCard, error)
	SpendingOverTime(ctx context.Context, q service.AnalyticsQuery, g service.Granularity) ([]dto.SpendingOverTime, error)
	Categories(ctx context.Context, q service.AnalyticsQuery, useAICategory bool) ([]dto.CategorySpending, error)
	Reimbursements(ctx context.Context, q service.AnalyticsQuery) ([]dto.ReimbursementItem, error)
	Summary(ctx context.Context, q service.AnalyticsQuery) (*dto.SpendingSummary, error)
}

type AnalyticsHandler struct {
	analyticsService AnalyticsService
	logger           *zap.Logger
}

func NewAnalyticsHandler(analyticsService AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

// query reads the caller and the optional start_date/end_date window.
func (h *AnalyticsHandler) query(c *fiber.Ctx) (service.AnalyticsQuery, error) {
	userID, err := getUserID(c)
	if err != nil {
		return service.AnalyticsQuery{}, fiber.ErrUnauthorized
	}
	start, end, err := service.ParseDateRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return service.AnalyticsQuery{}, err
	}
	return service.AnalyticsQuery{UserID: userID, StartDate: start, EndDate: end}, nil
}

func (h *AnalyticsHandler) queryError(c *fiber.Ctx, err error) error {
	if errors.Is(err, fiber.ErrUnauthorized) {
		return unauthorized(c)
	}
	return handleError(c, h.logger, err, "Invalid query")
}

// SpendingByCard godoc
// @Summary Spending by card
// @Description Spending aggregated per account
// @Tags analytics
// @Produce json
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Security Bearer
// @Success 200 {array} dto.SpendingByCard
// @Failure 400 {object} map[string]string
// @Router /api/analytics/spending-by-card [get]
func (h *AnalyticsHandler) SpendingByCard(c *fiber.Ctx) error {
	q, err := h.query(c)
	if err != nil {
		return h.queryError(c, err)
	}

	resp, err := h.analyticsService.SpendingByCard(c.UserContext(), q)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to get spending by card")
	}

	return c.JSON(resp)
}

// SpendingOverTime godoc
// @Summary Spending over time
// @Description Spending bucketed by day, week (starting Monday) or month
// @Tags analytics
// @Produce json
// @Param granularity query string false "daily, weekly or monthly" default(monthly)
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Param account_ids query string false "Comma-separated account IDs"
// @Security Bearer
// @Success 200 {array} dto.SpendingOverTime
// @Failure 400 {object} map[string]string
// @Router /api/analytics/spending-over-time [get]
func (h *AnalyticsHandler) SpendingOverTime(c *fiber.Ctx) error {
	q, err := h.query(c)
	if err != nil {
		return h.queryError(c, err)
	}

	granularity, err := service.ParseGranularity(c.Query("granularity"))
	if err != nil {
		return handleError(c, h.logger, err, "Invalid granularity")
	}
	q.AccountIDs, err = service.ParseAccountIDs(c.Query("account_ids"))
	if err != nil {
		return handleError(c, h.logger, err, "Invalid account_ids")
	}

	resp, err := h.analyticsService.SpendingOverTime(c.UserContext(), q, granularity)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to get spending over time")
	}

	return c.JSON(resp)
}

// Categories godoc
// @Summary Category breakdown
// @Description Spending per category with percentages. Uses Plaid categories unless use_ai_category is set.
// @Tags analytics
// @Produce json
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Param use_ai_category query bool false "Group by AI category"
// @Security Bearer
// @Success 200 {array} dto.CategorySpending
// @Failure 400 {object} map[string]string
// @Router /api/analytics/categories [get]
func (h *AnalyticsHandler) Categories(c *fiber.Ctx) error {
	q, err := h.query(c)
	if err != nil {
		return h.queryError(c, err)
	}

	resp, err := h.analyticsService.Categories(c.UserContext(), q, c.QueryBool("use_ai_category", false))
	if err != nil {
		return handleError(c, h.logger, err, "Failed to get category breakdown")
	}

	return c.JSON(resp)
}

// Reimbursements godoc
// @Summary Reimbursements
// @Description Transactions flagged as reimbursements, newest first
// @Tags analytics
// @Produce json
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Security Bearer
// @Success 200 {array} dto.ReimbursementItem
// @Failure 400 {object} map[string]string
// @Router /api/analytics/reimbursements [get]
func (h *AnalyticsHandler) Reimbursements(c *fiber.Ctx) error {
	q, err := h.query(c)
	if err != nil {
		return h.queryError(c, err)
	}

	resp, err := h.analyticsService.Reimbursements(c.UserContext(), q)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to get reimbursements")
	}

	return c.JSON(resp)
}

// Summary godoc
// @Summary Spending summary
// @Tags analytics
// @Produce json
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Security Bearer
// @Success 200 {object} dto.SpendingSummary
// @Failure 400 {object} map[string]string
// @Router /api/analytics/summary [get]
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	q, err := h.query(c)
	if err != nil {
		return h.queryError(c, err)
	}

	resp, err := h.analyticsService.Summary(c.UserContext(), q)
	if err != nil {
		return handleError(c, h.logger, err, "Failed to get spending summary")
	}

	return c.JSON(resp)
}
