package handlers

import (
	"errors"

	"finsight/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDStr, ok := c.Locals("userID").(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, err
	}

	return userID, nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}

// handleError writes the response for a service error. Unclassified errors
// are logged and answered with fallback.
func handleError(c *fiber.Ctx, logger *zap.Logger, err error, fallback string) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, service.ErrUpstream):
		status = fiber.StatusBadGateway
	case errors.Is(err, service.ErrUnavailable):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Incorrect username or password",
		})
	case errors.Is(err, service.ErrInactiveUser):
		return badRequest(c, "Inactive user")
	}

	message := fallback
	var svcErr *service.Error
	if status != fiber.StatusInternalServerError && errors.As(err, &svcErr) {
		message = svcErr.Message()
	}

	switch status {
	case fiber.StatusInternalServerError:
		logger.Error(fallback, zap.String("path", c.Path()), zap.Error(err))
	case fiber.StatusBadGateway, fiber.StatusServiceUnavailable:
		logger.Warn(fallback, zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
