package handler

import (
	"github.com/gofiber/fiber/v3"

	"rentpulse/internal/pkg/response"
	"rentpulse/internal/usecase"
)

type StatsHandler struct {
	heatmap usecase.HeatmapUsecase
}

func NewStatsHandler(heatmap usecase.HeatmapUsecase) *StatsHandler {
	return &StatsHandler{heatmap: heatmap}
}

func (h *StatsHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/stats/heatmap", h.Heatmap)
}

func (h *StatsHandler) Heatmap(c fiber.Ctx) error {
	res, err := h.heatmap.Heatmap(c.Context())
	if err != nil {
		return mapError(err, "failed to build heatmap")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, res)
}
