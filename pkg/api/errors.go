package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/models"
)

var (
	errBadID   = fmt.Errorf("invalid id: %w", models.ErrMalformedInput)
	errBadBody = fmt.Errorf("invalid request body: %w", models.ErrMalformedInput)
)

var validate = validator.New()

// Error codes let clients tell apart failures that share an HTTP status.
const (
	CodeNotFound            = "not_found"
	CodeInvalidState        = "invalid_state"
	CodeConcurrencyConflict = "concurrency_conflict"
	CodeIllegalTransition   = "illegal_transition"
	CodeMalformedInput      = "malformed_input"
	CodeUnauthorized        = "unauthorized"
	CodeInternal            = "internal"
)

func classify(err error) (int, string) {
	var verr validator.ValidationErrors

	switch {
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrInvalidState):
		return fiber.StatusConflict, CodeInvalidState
	case errors.Is(err, models.ErrConcurrencyConflict):
		return fiber.StatusConflict, CodeConcurrencyConflict
	case errors.Is(err, models.ErrIllegalTransition):
		return fiber.StatusBadRequest, CodeIllegalTransition
	case errors.Is(err, models.ErrMalformedInput), errors.As(err, &verr):
		return fiber.StatusBadRequest, CodeMalformedInput
	default:
		return fiber.StatusInternalServerError, CodeInternal
	}
}

func writeError(c fiber.Ctx, err error) error {
	status, code := classify(err)

	if status == fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"component": "api",
			"method":    c.Method(),
			"path":      c.Path(),
		}).WithError(err).Error("Request failed")

		return c.Status(status).JSON(ErrorResponse{Error: "internal error", Code: code})
	}

	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Code: code})
}
