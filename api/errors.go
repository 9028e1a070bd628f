package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/simstore/pkg/retrieval"
	"github.com/papercomputeco/simstore/pkg/vector"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a driver or session error to an HTTP status.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, vector.ErrBackendClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, vector.ErrDimensionMismatch),
		errors.Is(err, vector.ErrInvalidConfiguration),
		errors.Is(err, retrieval.ErrNotInitialized),
		errors.Is(err, retrieval.ErrAlreadyInitialized),
		errors.Is(err, retrieval.ErrEmptyCorpus),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, retrieval.ErrThresholdOutOfRange),
		errors.Is(err, retrieval.ErrIndexOutOfRange):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders handler errors as ErrorResponse JSON.
func errorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(ErrorResponse{Error: err.Error()})
}

// badRequest wraps msg as a 400 fiber error.
func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}
