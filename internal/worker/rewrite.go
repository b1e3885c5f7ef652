package worker

import (
	"context"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/infrastructure/ai"
	"rentpulse/internal/repository"
)

// Rewriting costs more per item than classification, so the interactive
// cap is tighter.
const maxRewriteBatch = 25

type RewriteParams struct {
	Limit    int
	SourceID *uuid.UUID
	// Force re-rewrites listings that already carry a rewritten title;
	// the default selects only never-rewritten ones.
	Force bool
}

type RewriteResult struct {
	RunID     uuid.UUID `json:"run_id"`
	Rewritten int       `json:"rewritten"`
	Skipped   int       `json:"skipped"`
	Logs      []string  `json:"logs"`
}

type RewriteWorker struct {
	listings repository.ListingRepository
	client   ai.Client
	tracker  *Tracker
}

func NewRewriteWorker(listings repository.ListingRepository, client ai.Client, tracker *Tracker) *RewriteWorker {
	return &RewriteWorker{listings: listings, client: client, tracker: tracker}
}

func (w *RewriteWorker) Run(ctx context.Context, p RewriteParams) (RewriteResult, error) {
	run, err := w.tracker.Start(ctx, jobrun.TypeAiRewrite)
	if err != nil {
		return RewriteResult{}, err
	}

	res, err := w.run(ctx, run, p)
	run.Finish(ctx, err)
	res.RunID = run.ID
	res.Logs = run.Lines()
	return res, err
}

func (w *RewriteWorker) run(ctx context.Context, run *Run, p RewriteParams) (RewriteResult, error) {
	if w.client == nil {
		return RewriteResult{}, ai.ErrNotConfigured
	}

	limit := p.Limit
	if limit <= 0 || limit > maxRewriteBatch {
		limit = maxRewriteBatch
	}

	batch, err := w.listings.FindForRewrite(ctx, limit, p.SourceID, p.Force)
	if err != nil {
		return RewriteResult{}, err
	}
	run.Logf(ctx, "selected %d listings (force=%t)", len(batch), p.Force)

	var res RewriteResult
	for _, l := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		title := ""
		if l.RawTitle != nil {
			title = *l.RawTitle
		}
		desc := ""
		if l.Description != nil {
			desc = *l.Description
		}

		rw, err := w.client.Rewrite(ctx, title, desc)
		if err != nil {
			res.Skipped++
			run.Logf(ctx, "skip listing=%s: %v", l.ID, err)
			continue
		}

		if err := w.listings.SetRewritten(ctx, l.ID, rw.Title, rw.Description); err != nil {
			res.Skipped++
			run.Logf(ctx, "skip listing=%s: persist rewrite: %v", l.ID, err)
			continue
		}

		res.Rewritten++
		run.Logf(ctx, "rewrote listing=%s", l.ID)
	}

	run.Logf(ctx, "done rewritten=%d skipped=%d", res.Rewritten, res.Skipped)
	return res, nil
}
