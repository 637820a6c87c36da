package handlers

import (
	"errors"
	"log"

	"lapak/internal/apperrors"

	"github.com/gofiber/fiber/v2"
)

// respondError translates a service error into the matching HTTP status and a
// structured body. Unexpected errors are logged server-side and reported to
// the client with a generic message only.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case apperrors.IsConflict(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": err.Error(),
		})
	case errors.Is(err, apperrors.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": err.Error(),
		})
	case errors.Is(err, apperrors.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": err.Error(),
		})
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "invalid credentials",
		})
	default:
		log.Printf("Internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Internal server error",
		})
	}
}
