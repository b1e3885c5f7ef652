package handler

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"rentpulse/internal/delivery/http/middleware"
	"rentpulse/internal/pkg/response"
	"rentpulse/internal/usecase"
)

type ListingHandler struct {
	listings usecase.ListingUsecase
}

func NewListingHandler(listings usecase.ListingUsecase) *ListingHandler {
	return &ListingHandler{listings: listings}
}

// RegisterRoutes mounts the public snapshot history endpoint.
func (h *ListingHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/listings/:id/snapshots", h.SnapshotHistory)
}

// RegisterAdminRoutes mounts the destructive purge endpoint separately
// so it only lands under the admin group.
func (h *ListingHandler) RegisterAdminRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Delete("/listings/:id", h.Purge)
}

func (h *ListingHandler) SnapshotHistory(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid listing id", nil, err)
	}

	limit := parseQueryInt(c, "limit", 100)
	offset := parseQueryInt(c, "offset", 0)

	snapshots, err := h.listings.SnapshotHistory(c.Context(), id, limit, offset)
	if err != nil {
		return mapError(err, "failed to list snapshots")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{
		"listing_id": id,
		"snapshots":  snapshots,
	})
}

func (h *ListingHandler) Purge(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "invalid listing id", nil, err)
	}

	if err := h.listings.Purge(c.Context(), id); err != nil {
		return mapError(err, "failed to purge listing")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{"listing_id": id})
}
