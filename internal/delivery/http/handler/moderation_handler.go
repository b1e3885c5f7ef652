package handler

import (
	"github.com/gofiber/fiber/v3"

	"rentpulse/internal/pkg/response"
	"rentpulse/internal/usecase"
)

type ModerationHandler struct {
	moderation usecase.ModerationUsecase
}

func NewModerationHandler(moderation usecase.ModerationUsecase) *ModerationHandler {
	return &ModerationHandler{moderation: moderation}
}

func (h *ModerationHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/reviews/flagged", h.ListFlagged)
}

func (h *ModerationHandler) ListFlagged(c fiber.Ctx) error {
	limit := parseQueryInt(c, "limit", 50)
	offset := parseQueryInt(c, "offset", 0)

	flagged, err := h.moderation.ListFlagged(c.Context(), limit, offset)
	if err != nil {
		return mapError(err, "failed to list flagged reviews")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, flagged)
}
