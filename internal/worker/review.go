package worker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/domain/listing"
	"rentpulse/internal/infrastructure/ai"
	"rentpulse/internal/repository"
)

// Interactive triggers cap batches so one invocation fits a bounded
// execution window; larger backlogs are drained by repeated runs.
const maxReviewBatch = 50

type ReviewParams struct {
	Limit          int
	SourceID       *uuid.UUID
	UnreviewedOnly bool
}

type ReviewResult struct {
	RunID    uuid.UUID `json:"run_id"`
	Reviewed int       `json:"reviewed"`
	Flagged  int       `json:"flagged"`
	Skipped  int       `json:"skipped"`
	Logs     []string  `json:"logs"`
}

type ReviewWorker struct {
	listings repository.ListingRepository
	reviews  repository.ReviewRepository
	client   ai.Client
	tracker  *Tracker
	now      func() time.Time
}

func NewReviewWorker(listings repository.ListingRepository, reviews repository.ReviewRepository, client ai.Client, tracker *Tracker) *ReviewWorker {
	return &ReviewWorker{listings: listings, reviews: reviews, client: client, tracker: tracker, now: time.Now}
}

// Run classifies a bounded batch of listings. One listing failing (bad
// AI output, network error) is logged and skipped; the batch continues.
func (w *ReviewWorker) Run(ctx context.Context, p ReviewParams) (ReviewResult, error) {
	run, err := w.tracker.Start(ctx, jobrun.TypeAiReview)
	if err != nil {
		return ReviewResult{}, err
	}

	res, err := w.run(ctx, run, p)
	run.Finish(ctx, err)
	res.RunID = run.ID
	res.Logs = run.Lines()
	return res, err
}

func (w *ReviewWorker) run(ctx context.Context, run *Run, p ReviewParams) (ReviewResult, error) {
	if w.client == nil {
		return ReviewResult{}, ai.ErrNotConfigured
	}

	limit := p.Limit
	if limit <= 0 || limit > maxReviewBatch {
		limit = maxReviewBatch
	}

	batch, err := w.listings.FindForReview(ctx, limit, p.SourceID, p.UnreviewedOnly)
	if err != nil {
		return ReviewResult{}, err
	}
	run.Logf(ctx, "selected %d listings (unreviewedOnly=%t)", len(batch), p.UnreviewedOnly)

	var res ReviewResult
	for _, l := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		cls, err := w.client.Classify(ctx, listingText(l))
		if err != nil {
			res.Skipped++
			run.Logf(ctx, "skip listing=%s: %v", l.ID, err)
			continue
		}

		if _, err := w.reviews.Insert(ctx, l.ID, cls.Flagged, cls.Confidence, cls.Reason, w.now().UTC()); err != nil {
			res.Skipped++
			run.Logf(ctx, "skip listing=%s: persist review: %v", l.ID, err)
			continue
		}

		res.Reviewed++
		if cls.Flagged {
			res.Flagged++
			run.Logf(ctx, "flagged listing=%s confidence=%.2f reason=%s", l.ID, cls.Confidence, cls.Reason)
		}
	}

	run.Logf(ctx, "done reviewed=%d flagged=%d skipped=%d", res.Reviewed, res.Flagged, res.Skipped)
	return res, nil
}

func listingText(l listing.Listing) string {
	var b strings.Builder
	if l.RawTitle != nil {
		b.WriteString(*l.RawTitle)
		b.WriteString("\n")
	} else if l.Title != nil {
		b.WriteString(*l.Title)
		b.WriteString("\n")
	}
	if l.Description != nil {
		b.WriteString(*l.Description)
	}
	return strings.TrimSpace(b.String())
}
