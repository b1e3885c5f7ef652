package usecase

import (
	"context"
	"time"

	"rentpulse/internal/repository"
)

type StatusUsecase interface {
	GetStatus(ctx context.Context) (*PipelineStatus, error)
}

type PipelineStatus struct {
	TotalListings   int                     `json:"total_listings"`
	ActiveListings  int                     `json:"active_listings"`
	SnapshotsToday  int                     `json:"snapshots_today"`
	FlaggedReviews  int                     `json:"flagged_reviews"`
	Sources         []repository.SourceStat `json:"sources"`
	DatabaseHealthy bool                    `json:"database_healthy"`
	RedisHealthy    bool                    `json:"redis_healthy"`
	ServerTime      time.Time               `json:"server_time"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Status struct {
	repo  repository.StatusRepository
	db    pinger
	redis pinger
	now   func() time.Time
}

func NewStatusUsecase(repo repository.StatusRepository, db, redis pinger) *Status {
	return &Status{repo: repo, db: db, redis: redis, now: time.Now}
}

func (u *Status) GetStatus(ctx context.Context) (*PipelineStatus, error) {
	total, err := u.repo.TotalListings(ctx)
	if err != nil {
		return nil, err
	}
	active, err := u.repo.ActiveListings(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := u.repo.SnapshotsToday(ctx)
	if err != nil {
		return nil, err
	}
	flagged, err := u.repo.FlaggedReviews(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := u.repo.SourceStats(ctx)
	if err != nil {
		return nil, err
	}

	return &PipelineStatus{
		TotalListings:   total,
		ActiveListings:  active,
		SnapshotsToday:  snapshots,
		FlaggedReviews:  flagged,
		Sources:         sources,
		DatabaseHealthy: u.healthy(ctx, u.db),
		RedisHealthy:    u.healthy(ctx, u.redis),
		ServerTime:      u.now().UTC(),
	}, nil
}

func (u *Status) healthy(ctx context.Context, p pinger) bool {
	if p == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(pingCtx) == nil
}
