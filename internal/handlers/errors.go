package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case apperrors.CodeNotFound:
		return fiber.StatusNotFound
	case apperrors.CodeAlreadyExists:
		return fiber.StatusConflict
	case apperrors.CodePermissionDenied:
		return fiber.StatusForbidden
	case apperrors.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case apperrors.CodeFailedPrecondition:
		return fiber.StatusPreconditionFailed
	case apperrors.CodeUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// mapAppError writes the user-facing message of err. Errors without an
// application code are reported as a generic failure.
func mapAppError(c *fiber.Ctx, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	}

	code := apperrors.CodeOf(err)
	status := statusFor(code)
	if status == fiber.StatusInternalServerError {
		return c.Status(status).JSON(fiber.Map{"error": "Failed to process request"})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": apperrors.MessageOf(err, "Failed to process request"),
		"code":  code,
	})
}
