package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLimitExceeded rejects a whole invocation, not a single item.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Store admits events into a sliding window shared across pipeline
// instances. Acquire records the event only when it fits under max, so
// denied attempts never consume window capacity.
type Store interface {
	Acquire(ctx context.Context, key string, max int64, window time.Duration, at time.Time) (bool, error)
}

// Limiter is a named sliding-window limiter: at most Max events per
// Window per actor. A nil or failing store degrades to always-allow;
// stalling the pipeline on limiter infrastructure is worse than
// briefly over-admitting.
type Limiter struct {
	name   string
	max    int64
	window time.Duration
	store  Store
	logger *log.Logger
	now    func() time.Time

	warnedDegraded atomic.Bool
}

func New(name string, max int64, window time.Duration, store Store, logger *log.Logger) *Limiter {
	return &Limiter{
		name:   strings.TrimSpace(name),
		max:    max,
		window: window,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (l *Limiter) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Allow reports whether one more event for actorID fits the window.
// Only an allowed event is recorded against the actor's quota.
func (l *Limiter) Allow(ctx context.Context, actorID string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if l.store == nil {
		l.warnDegradedOnce(nil)
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", l.name, strings.TrimSpace(actorID))
	ok, err := l.store.Acquire(ctx, key, l.max, l.window, l.now().UTC())
	if err != nil {
		l.warnDegradedOnce(err)
		return true, nil
	}
	return ok, nil
}

func (l *Limiter) warnDegradedOnce(err error) {
	if l.logger == nil {
		return
	}
	if l.warnedDegraded.CompareAndSwap(false, true) {
		if err != nil {
			l.logger.Printf("[RateLimit] limiter=%s counter store unavailable, allowing all: %v", l.name, err)
			return
		}
		l.logger.Printf("[RateLimit] limiter=%s counter store not configured, allowing all", l.name)
	}
}

// RedisStore implements Store on a redis sorted set per key. Members
// are scored by event time; stale members are trimmed before counting
// so the window slides. Check and record are separate round trips, so
// concurrent callers can briefly over-admit.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, max int64, window time.Duration, at time.Time) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("nil redis client")
	}

	cutoff := at.Add(-window).UnixNano()

	check := s.client.TxPipeline()
	check.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff))
	card := check.ZCard(ctx, key)
	if _, err := check.Exec(ctx); err != nil {
		return false, err
	}
	if card.Val() >= max {
		return false, nil
	}

	member := fmt.Sprintf("%d-%s", at.UnixNano(), uuid.NewString())
	record := s.client.TxPipeline()
	record.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: member})
	record.Expire(ctx, key, window+time.Minute)
	if _, err := record.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}
