package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"rentpulse/internal/app"
	"rentpulse/internal/config"
	"rentpulse/internal/database/migration"
	"rentpulse/internal/worker"
)

// One-shot worker trigger for cron-less deployments and manual backfills.
func main() {
	job := flag.String("job", "", "one of: ai-review, ai-rewrite, geotitle, deactivate-stale, index-build")
	limit := flag.Int("limit", 0, "batch size cap (0 means worker default)")
	source := flag.String("source", "", "restrict to one source by name")
	force := flag.Bool("force", false, "reprocess already-handled listings")
	geoOnly := flag.Bool("geo-only", false, "geotitle: only listings with coordinates")
	allListings := flag.Bool("all", false, "ai-review: include already-reviewed listings")
	olderThanDays := flag.Int("older-than-days", 0, "deactivate-stale: staleness cutoff (0 means default)")
	date := flag.String("date", "", "index-build: target date YYYY-MM-DD (empty means yesterday)")
	recent := flag.Bool("recent", false, "index-build: build yesterday and today")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall run timeout")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	c, err := app.NewContainer(cfg)
	if err != nil {
		log.Fatalf("failed to init container: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	migCtx, migCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	r := migration.Runner{Dir: "migrations"}
	err = r.Run(migCtx, c.DB.SQLDB())
	migCancel()
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var sourceID *uuid.UUID
	if s := strings.TrimSpace(*source); s != "" {
		id, err := c.Sources.IDByName(ctx, s)
		if err != nil {
			log.Fatalf("unknown source %q: %v", s, err)
		}
		sourceID = &id
	}

	switch strings.TrimSpace(*job) {
	case "ai-review":
		res, err := c.Review.Run(ctx, worker.ReviewParams{
			Limit:          *limit,
			SourceID:       sourceID,
			UnreviewedOnly: !*allListings,
		})
		if err != nil {
			log.Fatalf("ai-review failed: %v", err)
		}
		log.Printf("ai-review done reviewed=%d flagged=%d skipped=%d", res.Reviewed, res.Flagged, res.Skipped)

	case "ai-rewrite":
		res, err := c.Rewrite.Run(ctx, worker.RewriteParams{
			Limit:    *limit,
			SourceID: sourceID,
			Force:    *force,
		})
		if err != nil {
			log.Fatalf("ai-rewrite failed: %v", err)
		}
		log.Printf("ai-rewrite done rewritten=%d skipped=%d", res.Rewritten, res.Skipped)

	case "geotitle":
		res, err := c.Geotitle.Run(ctx, worker.GeotitleParams{
			Limit:   *limit,
			Force:   *force,
			GeoOnly: *geoOnly,
		})
		if err != nil {
			log.Fatalf("geotitle failed: %v", err)
		}
		log.Printf("geotitle done titled=%d geocoded=%d fallback=%d", res.Titled, res.Geocoded, res.Fallback)

	case "deactivate-stale":
		res, err := c.Deactivate.Run(ctx, worker.DeactivateParams{OlderThanDays: *olderThanDays})
		if err != nil {
			log.Fatalf("deactivate-stale failed: %v", err)
		}
		log.Printf("deactivate-stale done deactivated=%d", res.Deactivated)

	case "index-build":
		n, err := runIndexBuild(ctx, c, *date, *recent)
		if err != nil {
			log.Fatalf("index-build failed: %v", err)
		}
		log.Printf("index-build done rows=%d", n)

	default:
		flag.Usage()
		log.Fatalf("unknown or missing -job %q", *job)
	}
}

func runIndexBuild(ctx context.Context, c *app.Container, date string, recent bool) (int, error) {
	if recent {
		results, err := c.Builder.BuildRecent(ctx)
		total := 0
		for _, r := range results {
			total += r.Rows
		}
		return total, err
	}
	var day *time.Time
	if strings.TrimSpace(date) != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return 0, err
		}
		day = &d
	}
	res, err := c.Builder.Build(ctx, day)
	return res.Rows, err
}
