package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"rentpulse/internal/delivery/http/middleware"
	"rentpulse/internal/domain/listing"
	"rentpulse/internal/ingest"
	"rentpulse/internal/pkg/response"
	"rentpulse/internal/repository"
)

type IngestRequest struct {
	Source       string   `json:"source"`
	CanonicalURL string   `json:"canonical_url"`
	ScrapedAt    string   `json:"scraped_at"`
	PriceMonthly *int64   `json:"price_monthly"`
	PropertyType string   `json:"property_type"`
	Bedrooms     *int     `json:"bedrooms"`
	Bathrooms    *int     `json:"bathrooms"`
	SizeSqm      *float64 `json:"size_sqm"`
	City         *string  `json:"city"`
	District     *string  `json:"district"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	RawTitle     *string  `json:"raw_title"`
	Description  *string  `json:"description"`
}

type IngestHandler struct {
	ingestor *ingest.Ingestor
	sources  repository.SourceRepository
}

func NewIngestHandler(ingestor *ingest.Ingestor, sources repository.SourceRepository) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, sources: sources}
}

func (h *IngestHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/ingest", h.Ingest)
}

func (h *IngestHandler) Ingest(c fiber.Ctx) error {
	var req IngestRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	}

	req.Source = strings.TrimSpace(req.Source)
	req.CanonicalURL = strings.TrimSpace(req.CanonicalURL)
	if req.Source == "" || req.CanonicalURL == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "source and canonical_url are required", nil, nil)
	}

	scrapedAt := time.Now().UTC()
	if strings.TrimSpace(req.ScrapedAt) != "" {
		t, err := time.Parse(time.RFC3339, req.ScrapedAt)
		if err != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "scraped_at must be RFC3339", nil, err)
		}
		scrapedAt = t.UTC()
	}

	var ptype *string
	if strings.TrimSpace(req.PropertyType) != "" {
		pt, ok := listing.ParsePropertyType(req.PropertyType)
		if !ok {
			return middleware.NewAppError(fiber.StatusBadRequest, "unknown property_type", nil, nil)
		}
		s := string(pt)
		ptype = &s
	}

	sourceID, err := h.sources.Ensure(c.Context(), req.Source, "")
	if err != nil {
		return mapError(err, "failed to resolve source")
	}

	res, err := h.ingestor.Ingest(c.Context(), ingest.Observation{
		SourceID:     sourceID,
		CanonicalURL: req.CanonicalURL,
		ScrapedAt:    scrapedAt,
		Fields: repository.ObservedFields{
			PriceMonthly: req.PriceMonthly,
			PropertyType: ptype,
			Bedrooms:     req.Bedrooms,
			Bathrooms:    req.Bathrooms,
			SizeSqm:      req.SizeSqm,
			City:         req.City,
			District:     req.District,
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			RawTitle:     req.RawTitle,
			Description:  req.Description,
		},
	})
	if err != nil {
		return mapError(err, "failed to ingest observation")
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{
		"listing_id":  res.ListingID,
		"snapshot_id": res.SnapshotID,
	})
}
