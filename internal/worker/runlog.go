package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/repository"
)

// Tracker records the lifecycle of every worker invocation. A worker
// that dies mid-batch leaves its run in "running" forever; the audit
// listing surfaces that as an anomaly rather than papering over it.
type Tracker struct {
	runs   repository.JobRunRepository
	logger *log.Logger
	now    func() time.Time
}

func NewTracker(runs repository.JobRunRepository, logger *log.Logger) *Tracker {
	return &Tracker{runs: runs, logger: logger, now: time.Now}
}

type Run struct {
	ID      uuid.UUID
	jobType jobrun.JobType
	tracker *Tracker
	lines   []string
}

func (t *Tracker) Start(ctx context.Context, jobType jobrun.JobType) (*Run, error) {
	id, err := t.runs.Create(ctx, jobType, t.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("start job run: %w", err)
	}
	return &Run{ID: id, jobType: jobType, tracker: t}, nil
}

// Logf appends one line to the run's ordered log and mirrors it to the
// process logger. Persistence errors are swallowed: losing a log line
// must not fail the work it describes.
func (r *Run) Logf(ctx context.Context, format string, args ...any) {
	if r == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	r.lines = append(r.lines, line)
	if err := r.tracker.runs.AppendLog(ctx, r.ID, line); err != nil && r.tracker.logger != nil {
		r.tracker.logger.Printf("[Worker:%s] append log failed run=%s: %v", r.jobType, r.ID, err)
	}
	if r.tracker.logger != nil {
		r.tracker.logger.Printf("[Worker:%s] run=%s %s", r.jobType, r.ID, line)
	}
}

// Lines returns every line logged so far, in order. Trigger responses
// echo these so a caller sees per-item skips without a second request.
func (r *Run) Lines() []string {
	if r == nil {
		return nil
	}
	return r.lines
}

// Finish finalizes the run: succeeded when err is nil, failed otherwise.
func (r *Run) Finish(ctx context.Context, err error) {
	if r == nil {
		return
	}
	status := jobrun.StatusSucceeded
	if err != nil {
		status = jobrun.StatusFailed
		r.Logf(ctx, "run failed: %v", err)
	}
	if ferr := r.tracker.runs.Finish(ctx, r.ID, status, r.tracker.now().UTC()); ferr != nil && r.tracker.logger != nil {
		r.tracker.logger.Printf("[Worker:%s] finish run failed run=%s: %v", r.jobType, r.ID, ferr)
	}
}
