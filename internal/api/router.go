package api

import (
	"errors"
	"strings"

	"finsight/docs"
	"finsight/internal/api/handlers"
	"finsight/pkg/config"
	"finsight/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Plaid     *handlers.PlaidHandler
	Analytics *handlers.AnalyticsHandler
	AI        *handlers.AIHandler
}

// SetupRouter mounts public auth routes and the bearer-protected /api groups.
func SetupRouter(
	h Handlers,
	tokens middleware.TokenValidator,
	cfg *config.ServerConfig,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code == fiber.StatusInternalServerError {
				appLogger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
				return c.Status(code).JSON(fiber.Map{"error": "Internal server error"})
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	origins := allowOrigins(cfg)

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
		// fiber refuses credentials together with a wildcard origin
		AllowCredentials: origins != "*",
	}))
	app.Use(logger.New())
	app.Use(middleware.Telemetry())

	// importing docs registers the swagger spec through its init()
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.RefreshToken)

	protected := middleware.AuthMiddleware(tokens, appLogger)

	auth.Get("/me", protected, h.Auth.Me)

	plaid := api.Group("/plaid", protected)
	plaid.Post("/create-link-token", h.Plaid.CreateLinkToken)
	plaid.Post("/exchange-public-token", h.Plaid.ExchangePublicToken)
	plaid.Post("/sync-transactions", h.Plaid.SyncTransactions)
	plaid.Get("/sync-runs/:id", h.Plaid.GetSyncRun)
	plaid.Get("/accounts", h.Plaid.ListAccounts)

	analytics := api.Group("/analytics", protected)
	analytics.Get("/spending-by-card", h.Analytics.SpendingByCard)
	analytics.Get("/spending-over-time", h.Analytics.SpendingOverTime)
	analytics.Get("/categories", h.Analytics.Categories)
	analytics.Get("/reimbursements", h.Analytics.Reimbursements)
	analytics.Get("/summary", h.Analytics.Summary)

	ai := api.Group("/ai", protected)
	ai.Post("/analyze", h.AI.Analyze)
	ai.Get("/insights", h.AI.ListInsights)
	ai.Post("/categorize-transaction/:id", h.AI.CategorizeTransaction)
	ai.Post("/bulk-categorize", h.AI.BulkCategorize)
	ai.Post("/detect-reimbursement/:id", h.AI.DetectReimbursement)

	return app
}

// allowOrigins joins the configured origins into the list fiber's cors
// expects. No origins means any origin.
func allowOrigins(cfg *config.ServerConfig) string {
	origins := cfg.CORSOriginList()
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}
