package handler

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"rentpulse/internal/delivery/http/middleware"
	"rentpulse/internal/domain/listing"
	"rentpulse/internal/pkg/response"
	"rentpulse/internal/usecase"
)

type QueueHandler struct {
	discovery usecase.DiscoveryUsecase
}

func NewQueueHandler(discovery usecase.DiscoveryUsecase) *QueueHandler {
	return &QueueHandler{discovery: discovery}
}

func (h *QueueHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/queue", h.Enqueue)
	r.Get("/queue", h.List)
}

type enqueueRequest struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

func (h *QueueHandler) Enqueue(c fiber.Ctx) error {
	var req enqueueRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	}

	id, err := h.discovery.Enqueue(c.Context(), c.IP(), req.Source, req.URL)
	if err != nil {
		return mapError(err, "failed to enqueue url")
	}

	return response.Success(c, fiber.StatusCreated, response.MessageOK, fiber.Map{"queue_id": id})
}

func (h *QueueHandler) List(c fiber.Ctx) error {
	status := listing.QueueStatus(strings.TrimSpace(c.Query("status", string(listing.QueuePending))))
	limit := parseQueryInt(c, "limit", 50)
	offset := parseQueryInt(c, "offset", 0)

	entries, err := h.discovery.ListQueue(c.Context(), status, limit, offset)
	if err != nil {
		return mapError(err, "failed to list queue")
	}

	items := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		item := fiber.Map{
			"id":         e.ID,
			"source_id":  e.SourceID,
			"url":        e.URL,
			"status":     e.Status,
			"created_at": e.CreatedAt,
			"updated_at": e.UpdatedAt,
		}
		if e.ErrorMessage != nil {
			item["last_error"] = *e.ErrorMessage
		}
		items = append(items, item)
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{
		"status": status,
		"items":  items,
	})
}
