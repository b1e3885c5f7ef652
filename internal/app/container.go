package app

import (
	"context"
	"log"
	"time"

	"rentpulse/internal/config"
	"rentpulse/internal/database"
	dbpostgres "rentpulse/internal/database/postgres"
	"rentpulse/internal/index"
	"rentpulse/internal/infrastructure/ai"
	"rentpulse/internal/infrastructure/cache"
	"rentpulse/internal/infrastructure/geocode"
	"rentpulse/internal/ingest"
	"rentpulse/internal/ratelimit"
	"rentpulse/internal/repository"
	"rentpulse/internal/robots"
	"rentpulse/internal/worker"
)

const (
	discoveryQuota  = 50
	discoveryWindow = 24 * time.Hour
	geocodeQuota    = 1
	geocodeWindow   = time.Second
)

// Container wires the whole pipeline once and hands the pieces to the
// HTTP layer and the command binaries. Redis being down is not fatal;
// the cache, limiters, and index lock all degrade.
type Container struct {
	Config config.Config
	Logger *log.Logger
	DB     database.DB
	Cache  *cache.Redis

	Sources   repository.SourceRepository
	Listings  repository.ListingRepository
	Snapshots repository.SnapshotRepository
	Queue     repository.QueueRepository
	Reviews   repository.ReviewRepository
	Index     repository.IndexRepository
	Runs      repository.JobRunRepository
	Status    repository.StatusRepository

	AIClient ai.Client
	Geocoder geocode.Client
	Gate     *robots.Gate

	DiscoveryLimiter *ratelimit.Limiter
	GeocodeLimiter   *ratelimit.Limiter

	Tracker    *worker.Tracker
	Ingestor   *ingest.Ingestor
	Review     *worker.ReviewWorker
	Rewrite    *worker.RewriteWorker
	Geotitle   *worker.GeotitleWorker
	Deactivate *worker.DeactivateWorker
	Builder    *index.Builder
}

func NewContainer(cfg config.Config) (*Container, error) {
	logger := log.Default()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger, DB: db}
	c.Cache = cache.NewRedis(cfg.Redis, logger)

	c.Sources = repository.NewPostgresSourceRepository(db)
	c.Listings = repository.NewPostgresListingRepository(db)
	c.Snapshots = repository.NewPostgresSnapshotRepository(db)
	c.Queue = repository.NewPostgresQueueRepository(db)
	c.Reviews = repository.NewPostgresReviewRepository(db)
	c.Index = repository.NewPostgresIndexRepository(db)
	c.Runs = repository.NewPostgresJobRunRepository(db)
	c.Status = repository.NewPostgresStatusRepository(db)

	c.AIClient = ai.NewClient(cfg.AI)
	c.Geocoder = geocode.NewClient(cfg.Geocoder)
	c.Gate = robots.NewGate(cfg.Robots.UserAgent, cfg.Robots.FetchTimeout, cfg.Robots.CacheTTL, logger)

	store := ratelimit.NewRedisStore(c.Cache.Client())
	c.DiscoveryLimiter = ratelimit.New("discovery", discoveryQuota, discoveryWindow, store, logger)
	c.GeocodeLimiter = ratelimit.New("geocode", geocodeQuota, geocodeWindow, store, logger)

	c.Tracker = worker.NewTracker(c.Runs, logger)
	c.Ingestor = ingest.NewIngestor(c.Listings, c.Snapshots, c.Queue, logger)
	c.Review = worker.NewReviewWorker(c.Listings, c.Reviews, c.AIClient, c.Tracker)
	c.Rewrite = worker.NewRewriteWorker(c.Listings, c.AIClient, c.Tracker)
	c.Geotitle = worker.NewGeotitleWorker(c.Listings, c.Geocoder, c.GeocodeLimiter, c.Tracker)
	c.Deactivate = worker.NewDeactivateWorker(c.Listings, c.Tracker)
	c.Builder = index.NewBuilder(c.Listings, c.Index, c.Cache, c.Tracker)

	return c, nil
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
