package jobrun

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type JobType string

const (
	TypeAiReview        JobType = "ai_review"
	TypeAiRewrite       JobType = "ai_rewrite"
	TypeGeotitle        JobType = "geotitle"
	TypeIndexBuild      JobType = "index_build"
	TypeDeactivateStale JobType = "deactivate_stale"
)

type Run struct {
	ID         uuid.UUID
	JobType    JobType
	Status     Status
	StartedAt  time.Time
	FinishedAt *time.Time
}

type LogLine struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	Seq       int
	Message   string
	CreatedAt time.Time
}
