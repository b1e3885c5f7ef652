package handler

import (
	"github.com/gofiber/fiber/v3"

	"rentpulse/internal/pkg/response"
	"rentpulse/internal/usecase"
)

type StatusHandler struct {
	status usecase.StatusUsecase
}

func NewStatusHandler(status usecase.StatusUsecase) *StatusHandler {
	return &StatusHandler{status: status}
}

func (h *StatusHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/status", h.GetStatus)
}

func (h *StatusHandler) GetStatus(c fiber.Ctx) error {
	status, err := h.status.GetStatus(c.Context())
	if err != nil {
		return mapError(err, "failed to collect pipeline status")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, status)
}
