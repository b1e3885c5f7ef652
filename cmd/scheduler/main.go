package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"rentpulse/internal/app"
	"rentpulse/internal/config"
	"rentpulse/internal/database/migration"
	"rentpulse/internal/worker"
)

// Long-running scheduler for the periodic pipeline jobs. All schedules
// are interpreted in UTC; the index build deliberately runs after
// midnight so yesterday's scrape day is closed.
func main() {
	indexSpec := flag.String("index-spec", "30 0 * * *", "cron spec for the daily index build")
	reviewSpec := flag.String("review-spec", "0 * * * *", "cron spec for the ai review batch")
	rewriteSpec := flag.String("rewrite-spec", "15 * * * *", "cron spec for the ai rewrite batch")
	geotitleSpec := flag.String("geotitle-spec", "30 * * * *", "cron spec for the geotitle batch")
	staleSpec := flag.String("stale-spec", "0 2 * * *", "cron spec for the stale-listing sweep")
	jobTimeout := flag.Duration("job-timeout", 30*time.Minute, "per-job run timeout")
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

	sched := cron.New(cron.WithLocation(time.UTC))

	schedule(sched, *indexSpec, "index-build", *jobTimeout, func(ctx context.Context) error {
		_, err := c.Builder.BuildRecent(ctx)
		return err
	})
	schedule(sched, *reviewSpec, "ai-review", *jobTimeout, func(ctx context.Context) error {
		_, err := c.Review.Run(ctx, worker.ReviewParams{UnreviewedOnly: true})
		return err
	})
	schedule(sched, *rewriteSpec, "ai-rewrite", *jobTimeout, func(ctx context.Context) error {
		_, err := c.Rewrite.Run(ctx, worker.RewriteParams{})
		return err
	})
	schedule(sched, *geotitleSpec, "geotitle", *jobTimeout, func(ctx context.Context) error {
		_, err := c.Geotitle.Run(ctx, worker.GeotitleParams{})
		return err
	})
	schedule(sched, *staleSpec, "deactivate-stale", *jobTimeout, func(ctx context.Context) error {
		_, err := c.Deactivate.Run(ctx, worker.DeactivateParams{})
		return err
	})

	sched.Start()
	log.Printf("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopCtx := sched.Stop()
	<-stopCtx.Done()
	log.Printf("scheduler stopped")
}

func schedule(sched *cron.Cron, spec, name string, timeout time.Duration, run func(context.Context) error) {
	_, err := sched.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := run(ctx); err != nil {
			log.Printf("[Scheduler] job=%s failed: %v", name, err)
			return
		}
		log.Printf("[Scheduler] job=%s done", name)
	})
	if err != nil {
		log.Fatalf("invalid cron spec %q for %s: %v", spec, name, err)
	}
}
