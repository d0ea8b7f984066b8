package web

import (
	"errors"

	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// NewErrorHandler maps handler errors onto status codes and generic bodies.
// The full error, cause included, only goes to the log.
func NewErrorHandler(log logger.Logger) fiber.ErrorHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent("http")

	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		status := apperrors.StatusCode(err)
		entry := log.WithContext(c.UserContext()).WithFields(map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"status": status,
		})
		if status >= fiber.StatusInternalServerError {
			entry.Errorf("request failed: %v", err)
		} else {
			entry.Debugf("request rejected: %v", err)
		}

		return c.Status(status).JSON(fiber.Map{"error": apperrors.PublicMessage(err)})
	}
}

// Fail writes a generic error body with the given status.
func Fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
