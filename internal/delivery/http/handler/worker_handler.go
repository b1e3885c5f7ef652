package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"rentpulse/internal/delivery/http/middleware"
	"rentpulse/internal/index"
	"rentpulse/internal/pkg/response"
	"rentpulse/internal/repository"
	"rentpulse/internal/worker"
)

// WorkerHandler exposes the batch-worker triggers. Every trigger is
// safe to retry; per-item faults come back as partial counters, not
// errors.
type WorkerHandler struct {
	review     *worker.ReviewWorker
	rewrite    *worker.RewriteWorker
	geotitle   *worker.GeotitleWorker
	deactivate *worker.DeactivateWorker
	builder    *index.Builder
	sources    repository.SourceRepository
}

func NewWorkerHandler(
	review *worker.ReviewWorker,
	rewrite *worker.RewriteWorker,
	geotitle *worker.GeotitleWorker,
	deactivate *worker.DeactivateWorker,
	builder *index.Builder,
	sources repository.SourceRepository,
) *WorkerHandler {
	return &WorkerHandler{
		review:     review,
		rewrite:    rewrite,
		geotitle:   geotitle,
		deactivate: deactivate,
		builder:    builder,
		sources:    sources,
	}
}

func (h *WorkerHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/workers/ai-review", h.RunAiReview)
	r.Post("/workers/ai-rewrite", h.RunAiRewrite)
	r.Post("/workers/geotitle", h.RunGeotitle)
	r.Post("/workers/deactivate-stale", h.RunDeactivateStale)
	r.Post("/index/build", h.BuildIndex)
}

type reviewRequest struct {
	Limit          int    `json:"limit"`
	Source         string `json:"source"`
	UnreviewedOnly *bool  `json:"unreviewed_only"`
}

func (h *WorkerHandler) RunAiReview(c fiber.Ctx) error {
	var req reviewRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	}

	sourceID, err := h.resolveSource(c, req.Source)
	if err != nil {
		return err
	}

	unreviewedOnly := true
	if req.UnreviewedOnly != nil {
		unreviewedOnly = *req.UnreviewedOnly
	}

	res, err := h.review.Run(c.Context(), worker.ReviewParams{
		Limit:          req.Limit,
		SourceID:       sourceID,
		UnreviewedOnly: unreviewedOnly,
	})
	if err != nil {
		return mapError(err, "ai review failed")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, res)
}

type rewriteRequest struct {
	Limit  int    `json:"limit"`
	Source string `json:"source"`
	Force  bool   `json:"force"`
}

func (h *WorkerHandler) RunAiRewrite(c fiber.Ctx) error {
	var req rewriteRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	}

	sourceID, err := h.resolveSource(c, req.Source)
	if err != nil {
		return err
	}

	res, err := h.rewrite.Run(c.Context(), worker.RewriteParams{
		Limit:    req.Limit,
		SourceID: sourceID,
		Force:    req.Force,
	})
	if err != nil {
		return mapError(err, "ai rewrite failed")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, res)
}

type geotitleRequest struct {
	Limit   int  `json:"limit"`
	Force   bool `json:"force"`
	GeoOnly bool `json:"geo_only"`
}

func (h *WorkerHandler) RunGeotitle(c fiber.Ctx) error {
	var req geotitleRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	}

	res, err := h.geotitle.Run(c.Context(), worker.GeotitleParams{
		Limit:   req.Limit,
		Force:   req.Force,
		GeoOnly: req.GeoOnly,
	})
	if err != nil {
		return mapError(err, "geotitle failed")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, res)
}

type deactivateRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

func (h *WorkerHandler) RunDeactivateStale(c fiber.Ctx) error {
	var req deactivateRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	}

	res, err := h.deactivate.Run(c.Context(), worker.DeactivateParams{OlderThanDays: req.OlderThanDays})
	if err != nil {
		return mapError(err, "deactivate sweep failed")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, res)
}

type buildIndexRequest struct {
	Date   string `json:"date"`
	Recent bool   `json:"recent"`
}

func (h *WorkerHandler) BuildIndex(c fiber.Ctx) error {
	var req buildIndexRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "bad request", nil, err)
	}

	if req.Recent {
		results, err := h.builder.BuildRecent(c.Context())
		if err != nil {
			return mapError(err, "index build failed")
		}
		return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{"builds": results})
	}

	var date *time.Time
	if strings.TrimSpace(req.Date) != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "date must be YYYY-MM-DD", nil, err)
		}
		date = &d
	}

	res, err := h.builder.Build(c.Context(), date)
	if err != nil {
		return mapError(err, "index build failed")
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, res)
}

func (h *WorkerHandler) resolveSource(c fiber.Ctx, name string) (*uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	id, err := h.sources.IDByName(c.Context(), name)
	if err != nil {
		return nil, mapError(err, "failed to resolve source")
	}
	return &id, nil
}
