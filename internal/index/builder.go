package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/domain/stats"
	"rentpulse/internal/repository"
	"rentpulse/internal/worker"
)

// Locker is the per-date single-flight lock; two concurrent builds for
// the same date must not interleave their delete/insert. The lock is
// released when the build returns; the TTL only covers a crashed holder.
type Locker interface {
	SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

const buildLockTTL = 5 * time.Minute

var ErrBuildInFlight = fmt.Errorf("index build already in flight for date")

// BuildResult reports one date's build: which run recorded it, how many
// rows were written, and the run's log lines.
type BuildResult struct {
	RunID uuid.UUID `json:"run_id"`
	Date  string    `json:"date"`
	Rows  int       `json:"rows"`
	Logs  []string  `json:"logs"`
}

type Builder struct {
	listings repository.ListingRepository
	index    repository.IndexRepository
	locker   Locker
	tracker  *worker.Tracker
	now      func() time.Time
}

func NewBuilder(listings repository.ListingRepository, index repository.IndexRepository, locker Locker, tracker *worker.Tracker) *Builder {
	return &Builder{listings: listings, index: index, locker: locker, tracker: tracker, now: time.Now}
}

// Build aggregates active listings into index rows for date and replaces
// that date's row set. A nil date means yesterday UTC: a day's scraping
// is only known complete in retrospect, so same-day builds are an
// explicit caller choice.
func (b *Builder) Build(ctx context.Context, date *time.Time) (BuildResult, error) {
	day := b.resolveDate(date)

	run, err := b.tracker.Start(ctx, jobrun.TypeIndexBuild)
	if err != nil {
		return BuildResult{}, err
	}

	n, err := b.build(ctx, run, day)
	run.Finish(ctx, err)
	return BuildResult{
		RunID: run.ID,
		Date:  day.Format("2006-01-02"),
		Rows:  n,
		Logs:  run.Lines(),
	}, err
}

// BuildRecent is the dual-day convenience trigger: yesterday, then today.
func (b *Builder) BuildRecent(ctx context.Context) ([]BuildResult, error) {
	yesterday := b.resolveDate(nil)
	today := yesterday.Add(24 * time.Hour)

	results := make([]BuildResult, 0, 2)
	for _, day := range []time.Time{yesterday, today} {
		d := day
		res, err := b.Build(ctx, &d)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (b *Builder) build(ctx context.Context, run *worker.Run, day time.Time) (int, error) {
	if b.locker != nil {
		key := "lock:index_build:" + day.Format("2006-01-02")
		ok, err := b.locker.SetIfNotExists(ctx, key, run.ID.String(), buildLockTTL)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrBuildInFlight
		}
		defer func() { _ = b.locker.Delete(ctx, key) }()
	}

	segments, err := b.listings.ActiveSegments(ctx)
	if err != nil {
		return 0, err
	}
	run.Logf(ctx, "aggregating %d active listings for %s", len(segments), day.Format("2006-01-02"))

	rows := Aggregate(segments, day)
	if err := b.index.ReplaceForDate(ctx, day, rows); err != nil {
		return 0, err
	}

	run.Logf(ctx, "wrote %d index rows for %s", len(rows), day.Format("2006-01-02"))
	return len(rows), nil
}

func (b *Builder) resolveDate(date *time.Time) time.Time {
	if date != nil {
		return date.UTC().Truncate(24 * time.Hour)
	}
	return b.now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
}

// Aggregate groups listings by (district, propertyType, bedrooms) and
// computes nearest-rank price statistics per group. Deterministic: rows
// come out sorted by the group key.
func Aggregate(segments []repository.SegmentListing, day time.Time) []stats.IndexRow {
	type groupKey struct {
		district string
		ptype    string
		bedrooms int
	}

	counts := map[groupKey]int{}
	prices := map[groupKey][]int64{}
	for _, s := range segments {
		k := groupKey{district: s.District, ptype: s.PropertyType, bedrooms: s.Bedrooms}
		counts[k]++
		if s.PriceMonthly != nil {
			prices[k] = append(prices[k], *s.PriceMonthly)
		}
	}

	rows := make([]stats.IndexRow, 0, len(counts))
	for k, count := range counts {
		row := stats.IndexRow{
			IndexDate:    day,
			District:     k.district,
			PropertyType: k.ptype,
			Bedrooms:     k.bedrooms,
			ListingCount: count,
		}
		row.MedianPrice, row.P25Price, row.P75Price = priceStats(prices[k])
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.District != b.District {
			return a.District < b.District
		}
		if a.PropertyType != b.PropertyType {
			return a.PropertyType < b.PropertyType
		}
		return a.Bedrooms < b.Bedrooms
	})
	return rows
}

// priceStats computes nearest-rank percentiles over the group's priced
// members: no interpolation, quartiles suppressed below four samples
// where they would mislead more than inform.
func priceStats(prices []int64) (median, p25, p75 *int64) {
	n := len(prices)
	if n == 0 {
		return nil, nil, nil
	}

	sorted := make([]int64, n)
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	m := sorted[n/2]
	median = &m
	if n >= 4 {
		lo := sorted[n/4]
		hi := sorted[(n*3)/4]
		p25 = &lo
		p75 = &hi
	}
	return median, p25, p75
}
