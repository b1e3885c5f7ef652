package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rentpulse/internal/domain/listing"
	"rentpulse/internal/ratelimit"
	"rentpulse/internal/repository"
	"rentpulse/internal/robots"
)

type DiscoveryUsecase interface {
	Enqueue(ctx context.Context, actorID, sourceName, url string) (uuid.UUID, error)
	ListQueue(ctx context.Context, status listing.QueueStatus, limit, offset int) ([]listing.QueueEntry, error)
}

// Discovery admits new URLs into the scrape queue. Admission is gated
// twice: the discovery rate limiter rejects the whole call when the
// actor's daily budget is spent, and the robots gate silently refuses
// URLs the host forbids.
type Discovery struct {
	queue   repository.QueueRepository
	sources repository.SourceRepository
	gate    *robots.Gate
	limiter *ratelimit.Limiter
}

func NewDiscoveryUsecase(queue repository.QueueRepository, sources repository.SourceRepository, gate *robots.Gate, limiter *ratelimit.Limiter) *Discovery {
	return &Discovery{queue: queue, sources: sources, gate: gate, limiter: limiter}
}

func (u *Discovery) Enqueue(ctx context.Context, actorID, sourceName, url string) (uuid.UUID, error) {
	sourceName = strings.TrimSpace(sourceName)
	url = strings.TrimSpace(url)
	if sourceName == "" || url == "" {
		return uuid.Nil, ErrInvalidInput
	}

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, actorID)
		if err != nil {
			return uuid.Nil, err
		}
		if !ok {
			return uuid.Nil, ratelimit.ErrLimitExceeded
		}
	}

	if u.gate != nil && !u.gate.IsAllowed(ctx, url) {
		return uuid.Nil, fmt.Errorf("%w: robots.txt disallows %s", ErrNotAllowed, url)
	}

	sourceID, err := u.sources.Ensure(ctx, sourceName, "")
	if err != nil {
		return uuid.Nil, err
	}
	return u.queue.Enqueue(ctx, sourceID, url)
}

func (u *Discovery) ListQueue(ctx context.Context, status listing.QueueStatus, limit, offset int) ([]listing.QueueEntry, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidInput
	}
	switch status {
	case "", listing.QueuePending, listing.QueueDone, listing.QueueError:
	default:
		return nil, ErrInvalidInput
	}
	return u.queue.List(ctx, status, limit, offset)
}
