package handler

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"rentpulse/internal/delivery/http/middleware"
	"rentpulse/internal/pkg/response"
	"rentpulse/internal/usecase"
)

type AuditHandler struct {
	audit usecase.AuditUsecase
}

func NewAuditHandler(audit usecase.AuditUsecase) *AuditHandler {
	return &AuditHandler{audit: audit}
}

func (h *AuditHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/:id", h.GetRun)
}

func (h *AuditHandler) ListRuns(c fiber.Ctx) error {
	limit := parseQueryInt(c, "limit", 50)
	offset := parseQueryInt(c, "offset", 0)

	runs, err := h.audit.ListRuns(c.Context(), limit, offset)
	if err != nil {
		return mapError(err, "failed to list job runs")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, runs)
}

func (h *AuditHandler) GetRun(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid run id", nil, err)
	}

	detail, err := h.audit.GetRun(c.Context(), id)
	if err != nil {
		return mapError(err, "failed to get job run")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, detail)
}
