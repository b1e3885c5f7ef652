package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/repository"
)

type AuditUsecase interface {
	ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*RunDetail, error)
}

type RunSummary struct {
	ID         uuid.UUID  `json:"id"`
	JobType    string     `json:"job_type"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

type RunDetail struct {
	RunSummary
	Logs []string `json:"logs"`
}

type Audit struct {
	runs repository.JobRunRepository
}

func NewAuditUsecase(runs repository.JobRunRepository) *Audit {
	return &Audit{runs: runs}
}

func (u *Audit) ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidInput
	}
	runs, err := u.runs.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, summarize(r))
	}
	return out, nil
}

func (u *Audit) GetRun(ctx context.Context, runID uuid.UUID) (*RunDetail, error) {
	if runID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	run, logs, err := u.runs.GetWithLogs(ctx, runID)
	if err != nil {
		return nil, err
	}

	detail := &RunDetail{RunSummary: summarize(*run), Logs: make([]string, 0, len(logs))}
	for _, l := range logs {
		detail.Logs = append(detail.Logs, l.Message)
	}
	return detail, nil
}

func summarize(r jobrun.Run) RunSummary {
	return RunSummary{
		ID:         r.ID,
		JobType:    string(r.JobType),
		Status:     string(r.Status),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}
