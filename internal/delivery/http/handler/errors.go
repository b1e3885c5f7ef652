package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"rentpulse/internal/delivery/http/middleware"
	"rentpulse/internal/index"
	"rentpulse/internal/ratelimit"
	"rentpulse/internal/repository"
	"rentpulse/internal/usecase"
)

// mapError translates pipeline sentinels into the HTTP taxonomy:
// limiter exhaustion rejects the call with 429, validation is 400,
// missing entities are 404, robots refusal is 403. Everything else is
// an internal error.
func mapError(err error, fallbackMsg string) *middleware.AppError {
	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return middleware.NewAppError(fiber.StatusTooManyRequests, "rate limit exceeded", nil, err)
	case errors.Is(err, usecase.ErrInvalidInput):
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	case errors.Is(err, index.ErrBuildInFlight):
		return middleware.NewAppError(fiber.StatusConflict, "index build already running", nil, err)
	case errors.Is(err, usecase.ErrNotAllowed):
		return middleware.NewAppError(fiber.StatusForbidden, "not allowed", nil, err)
	case errors.Is(err, repository.ErrListingNotFound),
		errors.Is(err, repository.ErrRunNotFound),
		errors.Is(err, repository.ErrSourceNotFound):
		return middleware.NewAppError(fiber.StatusNotFound, "not found", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, fallbackMsg, nil, err)
	}
}

func parseQueryInt(c fiber.Ctx, key string, defaultVal int) int {
	s := c.Query(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
