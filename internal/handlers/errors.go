package handlers

import (
	"errors"

	domerrors "profiles/internal/domain/errors"
	"profiles/internal/storage"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domerrors.ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, domerrors.ErrUserExists):
		return fiber.StatusConflict
	case errors.Is(err, domerrors.ErrInvalidCredentials), errors.Is(err, domerrors.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, domerrors.ErrUserNotFound), errors.Is(err, storage.ErrObjectNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, message string, err error) error {
	status := statusFor(err)
	body := fiber.Map{"message": message}
	if status != fiber.StatusInternalServerError {
		body["error"] = err.Error()
	}
	return c.Status(status).JSON(body)
}
