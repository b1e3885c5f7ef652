package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/repository"
)

const defaultStaleDays = 7

type DeactivateParams struct {
	// OlderThanDays marks listings withdrawn when their last successful
	// scrape is older than this many days.
	OlderThanDays int
}

type DeactivateResult struct {
	RunID       uuid.UUID `json:"run_id"`
	Deactivated int64     `json:"deactivated"`
	Logs        []string  `json:"logs"`
}

// DeactivateWorker is the explicit staleness sweep: ingestion itself
// never deactivates listings that stop appearing in fresh scrapes.
type DeactivateWorker struct {
	listings repository.ListingRepository
	tracker  *Tracker
	now      func() time.Time
}

func NewDeactivateWorker(listings repository.ListingRepository, tracker *Tracker) *DeactivateWorker {
	return &DeactivateWorker{listings: listings, tracker: tracker, now: time.Now}
}

func (w *DeactivateWorker) Run(ctx context.Context, p DeactivateParams) (DeactivateResult, error) {
	run, err := w.tracker.Start(ctx, jobrun.TypeDeactivateStale)
	if err != nil {
		return DeactivateResult{}, err
	}

	res, err := w.run(ctx, run, p)
	run.Finish(ctx, err)
	res.RunID = run.ID
	res.Logs = run.Lines()
	return res, err
}

func (w *DeactivateWorker) run(ctx context.Context, run *Run, p DeactivateParams) (DeactivateResult, error) {
	days := p.OlderThanDays
	if days <= 0 {
		days = defaultStaleDays
	}

	cutoff := w.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := w.listings.DeactivateStale(ctx, cutoff)
	if err != nil {
		return DeactivateResult{}, fmt.Errorf("deactivate stale listings: %w", err)
	}

	run.Logf(ctx, "deactivated %d listings last seen before %s", n, cutoff.Format(time.RFC3339))
	return DeactivateResult{Deactivated: n}, nil
}
