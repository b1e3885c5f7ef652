package v1

import (
	"github.com/gofiber/fiber/v3"

	"rentpulse/internal/database"
	"rentpulse/internal/delivery/http/handler"
	"rentpulse/internal/index"
	"rentpulse/internal/infrastructure/cache"
	"rentpulse/internal/ingest"
	"rentpulse/internal/ratelimit"
	"rentpulse/internal/repository"
	"rentpulse/internal/robots"
	"rentpulse/internal/usecase"
	"rentpulse/internal/worker"
)

// Deps carries the wired pipeline components into the route tree. The
// usecases themselves are constructed here, next to the routes they
// serve.
type Deps struct {
	DB    database.DB
	Cache *cache.Redis

	Sources   repository.SourceRepository
	Listings  repository.ListingRepository
	Snapshots repository.SnapshotRepository
	Queue     repository.QueueRepository
	Reviews   repository.ReviewRepository
	Index     repository.IndexRepository
	Runs      repository.JobRunRepository
	Status    repository.StatusRepository

	Gate             *robots.Gate
	DiscoveryLimiter *ratelimit.Limiter

	Ingestor   *ingest.Ingestor
	Review     *worker.ReviewWorker
	Rewrite    *worker.RewriteWorker
	Geotitle   *worker.GeotitleWorker
	Deactivate *worker.DeactivateWorker
	Builder    *index.Builder
}

func Register(r fiber.Router, d Deps) {
	if r == nil {
		return
	}

	discoveryUC := usecase.NewDiscoveryUsecase(d.Queue, d.Sources, d.Gate, d.DiscoveryLimiter)
	auditUC := usecase.NewAuditUsecase(d.Runs)
	moderationUC := usecase.NewModerationUsecase(d.Reviews)
	listingUC := usecase.NewListingUsecase(d.Listings, d.Snapshots)
	heatmapUC := usecase.NewHeatmapUsecase(d.Index, d.Listings, d.Cache)
	statusUC := usecase.NewStatusUsecase(d.Status, d.DB, d.Cache)

	ingestHandler := handler.NewIngestHandler(d.Ingestor, d.Sources)
	workerHandler := handler.NewWorkerHandler(d.Review, d.Rewrite, d.Geotitle, d.Deactivate, d.Builder, d.Sources)
	queueHandler := handler.NewQueueHandler(discoveryUC)
	auditHandler := handler.NewAuditHandler(auditUC)
	moderationHandler := handler.NewModerationHandler(moderationUC)
	listingHandler := handler.NewListingHandler(listingUC)
	statsHandler := handler.NewStatsHandler(heatmapUC)
	statusHandler := handler.NewStatusHandler(statusUC)

	admin := r.Group("/admin")
	ingestHandler.RegisterRoutes(admin)
	workerHandler.RegisterRoutes(admin)
	queueHandler.RegisterRoutes(admin)
	auditHandler.RegisterRoutes(admin)
	moderationHandler.RegisterRoutes(admin)
	statusHandler.RegisterRoutes(admin)
	listingHandler.RegisterAdminRoutes(admin)

	listingHandler.RegisterRoutes(r)
	statsHandler.RegisterRoutes(r)
}
