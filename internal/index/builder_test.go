package index

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/domain/listing"
	"rentpulse/internal/domain/stats"
	"rentpulse/internal/repository"
	"rentpulse/internal/worker"
)

type memListings struct {
	segments []repository.SegmentListing
}

func (m *memListings) ActiveSegments(context.Context) ([]repository.SegmentListing, error) {
	return m.segments, nil
}
func (m *memListings) UpsertObserved(context.Context, uuid.UUID, string, repository.ObservedFields, time.Time) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (m *memListings) GetByID(context.Context, uuid.UUID) (*listing.Listing, error) {
	return nil, repository.ErrListingNotFound
}
func (m *memListings) FindForReview(context.Context, int, *uuid.UUID, bool) ([]listing.Listing, error) {
	return nil, nil
}
func (m *memListings) FindForRewrite(context.Context, int, *uuid.UUID, bool) ([]listing.Listing, error) {
	return nil, nil
}
func (m *memListings) FindForGeotitle(context.Context, int, bool, bool) ([]listing.Listing, error) {
	return nil, nil
}
func (m *memListings) SetRewritten(context.Context, uuid.UUID, string, string) error { return nil }
func (m *memListings) SetTitle(context.Context, uuid.UUID, string) error             { return nil }
func (m *memListings) DeactivateStale(context.Context, time.Time) (int64, error)     { return 0, nil }
func (m *memListings) Purge(context.Context, uuid.UUID) error                        { return nil }

type memIndex struct {
	byDate map[string][]stats.IndexRow
}

func newMemIndex() *memIndex { return &memIndex{byDate: map[string][]stats.IndexRow{}} }

func (m *memIndex) ReplaceForDate(ctx context.Context, date time.Time, rows []stats.IndexRow) error {
	m.byDate[date.UTC().Format("2006-01-02")] = rows
	return nil
}
func (m *memIndex) LatestDate(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (m *memIndex) ListForDate(ctx context.Context, date time.Time) ([]stats.IndexRow, error) {
	return m.byDate[date.UTC().Format("2006-01-02")], nil
}

type memRuns struct{}

func (memRuns) Create(context.Context, jobrun.JobType, time.Time) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (memRuns) AppendLog(context.Context, uuid.UUID, string) error { return nil }
func (memRuns) Finish(context.Context, uuid.UUID, jobrun.Status, time.Time) error {
	return nil
}
func (memRuns) List(context.Context, int, int) ([]jobrun.Run, error) { return nil, nil }
func (memRuns) GetWithLogs(context.Context, uuid.UUID) (*jobrun.Run, []jobrun.LogLine, error) {
	return nil, nil, nil
}

type memLocker struct {
	held map[string]bool
}

func (m *memLocker) SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.held == nil {
		m.held = map[string]bool{}
	}
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *memLocker) Delete(ctx context.Context, key string) error {
	delete(m.held, key)
	return nil
}

func price(v int64) *int64 { return &v }

func seg(district, ptype string, bedrooms int, p *int64) repository.SegmentListing {
	return repository.SegmentListing{District: district, PropertyType: ptype, Bedrooms: bedrooms, PriceMonthly: p}
}

func TestAggregate_SmallGroupSuppressesQuartiles(t *testing.T) {
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	rows := Aggregate([]repository.SegmentListing{
		seg("Thonglor", "condo", 1, price(500)),
		seg("Thonglor", "condo", 1, price(700)),
		seg("Thonglor", "condo", 1, price(600)),
	}, day)

	if len(rows) != 1 {
		t.Fatalf("expected 1 group, got %d", len(rows))
	}
	r := rows[0]
	if r.ListingCount != 3 {
		t.Fatalf("expected count 3, got %d", r.ListingCount)
	}
	if r.MedianPrice == nil || *r.MedianPrice != 600 {
		t.Fatalf("expected median 600, got %v", r.MedianPrice)
	}
	if r.P25Price != nil || r.P75Price != nil {
		t.Fatalf("quartiles must be nil below 4 samples")
	}
}

func TestAggregate_QuartileOrdering(t *testing.T) {
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	rows := Aggregate([]repository.SegmentListing{
		seg("Asoke", "apartment", 2, price(900)),
		seg("Asoke", "apartment", 2, price(400)),
		seg("Asoke", "apartment", 2, price(650)),
		seg("Asoke", "apartment", 2, price(800)),
		seg("Asoke", "apartment", 2, price(500)),
	}, day)

	r := rows[0]
	if r.P25Price == nil || r.P75Price == nil || r.MedianPrice == nil {
		t.Fatalf("expected full stats for 5 samples: %+v", r)
	}
	// sorted: 400 500 650 800 900 → p25=sorted[1]=500, median=sorted[2]=650, p75=sorted[3]=800
	if *r.P25Price != 500 || *r.MedianPrice != 650 || *r.P75Price != 800 {
		t.Fatalf("nearest-rank mismatch: p25=%d median=%d p75=%d", *r.P25Price, *r.MedianPrice, *r.P75Price)
	}
	if !(*r.P25Price <= *r.MedianPrice && *r.MedianPrice <= *r.P75Price) {
		t.Fatalf("quartile ordering violated")
	}
}

func TestAggregate_UnpricedGroupCountedWithoutStats(t *testing.T) {
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	rows := Aggregate([]repository.SegmentListing{
		seg("Sathorn", "villa", 3, nil),
		seg("Sathorn", "villa", 3, nil),
	}, day)

	r := rows[0]
	if r.ListingCount != 2 {
		t.Fatalf("unpriced listings still count, got %d", r.ListingCount)
	}
	if r.MedianPrice != nil || r.P25Price != nil || r.P75Price != nil {
		t.Fatalf("expected all price stats nil, got %+v", r)
	}
}

func TestAggregate_MixedPricedAndUnpriced(t *testing.T) {
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	rows := Aggregate([]repository.SegmentListing{
		seg("Ari", "house", 2, price(1200)),
		seg("Ari", "house", 2, nil),
	}, day)

	r := rows[0]
	if r.ListingCount != 2 {
		t.Fatalf("expected count 2, got %d", r.ListingCount)
	}
	if r.MedianPrice == nil || *r.MedianPrice != 1200 {
		t.Fatalf("median computed over priced members only, got %v", r.MedianPrice)
	}
}

func newTestBuilder(listings *memListings, idx *memIndex) *Builder {
	return NewBuilder(listings, idx, &memLocker{}, worker.NewTracker(memRuns{}, nil))
}

func TestBuild_Idempotent(t *testing.T) {
	listings := &memListings{segments: []repository.SegmentListing{
		seg("Thonglor", "condo", 1, price(500)),
		seg("Thonglor", "condo", 1, price(700)),
		seg("Asoke", "apartment", 2, price(900)),
	}}
	idx := newMemIndex()
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	b := newTestBuilder(listings, idx)
	if _, err := b.Build(context.Background(), &day); err != nil {
		t.Fatalf("first build: %v", err)
	}
	first, _ := idx.ListForDate(context.Background(), day)

	if _, err := b.Build(context.Background(), &day); err != nil {
		t.Fatalf("second build: %v", err)
	}
	second, _ := idx.ListForDate(context.Background(), day)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuild must be idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestBuild_AddedListingChangesOnlyItsGroup(t *testing.T) {
	listings := &memListings{segments: []repository.SegmentListing{
		seg("Thonglor", "condo", 1, price(500)),
		seg("Asoke", "apartment", 2, price(900)),
	}}
	idx := newMemIndex()
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	if _, err := newTestBuilder(listings, idx).Build(context.Background(), &day); err != nil {
		t.Fatalf("first build: %v", err)
	}
	first, _ := idx.ListForDate(context.Background(), day)

	listings.segments = append(listings.segments, seg("Thonglor", "condo", 1, price(600)))
	if _, err := newTestBuilder(listings, idx).Build(context.Background(), &day); err != nil {
		t.Fatalf("second build: %v", err)
	}
	second, _ := idx.ListForDate(context.Background(), day)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 groups in both builds")
	}
	// Asoke group untouched (rows are sorted, Asoke first).
	if *second[0].MedianPrice != *first[0].MedianPrice || second[0].ListingCount != first[0].ListingCount {
		t.Fatalf("unaffected group changed: %+v vs %+v", first[0], second[0])
	}
	if second[1].ListingCount != 2 || *second[1].MedianPrice != 600 {
		t.Fatalf("affected group not updated: %+v", second[1])
	}
}

func TestBuild_SingleFlightPerDate(t *testing.T) {
	listings := &memListings{}
	idx := newMemIndex()
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	locker := &memLocker{}
	b := NewBuilder(listings, idx, locker, worker.NewTracker(memRuns{}, nil))

	// Another instance holds the date's lock mid-build.
	if _, err := locker.SetIfNotExists(context.Background(), "lock:index_build:2026-02-28", "other", time.Minute); err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	if _, err := b.Build(context.Background(), &day); err != ErrBuildInFlight {
		t.Fatalf("expected ErrBuildInFlight, got %v", err)
	}

	// Once the holder releases, the same date builds normally.
	if err := locker.Delete(context.Background(), "lock:index_build:2026-02-28"); err != nil {
		t.Fatalf("release lock: %v", err)
	}
	if _, err := b.Build(context.Background(), &day); err != nil {
		t.Fatalf("build after release: %v", err)
	}
}

func TestBuild_ReleasesLockAfterBuild(t *testing.T) {
	listings := &memListings{segments: []repository.SegmentListing{seg("Ari", "house", 2, price(100))}}
	idx := newMemIndex()
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	b := NewBuilder(listings, idx, &memLocker{}, worker.NewTracker(memRuns{}, nil))

	if _, err := b.Build(context.Background(), &day); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(context.Background(), &day); err != nil {
		t.Fatalf("second sequential rebuild must succeed, got: %v", err)
	}
}

func TestBuild_ReportsRunAndLogs(t *testing.T) {
	listings := &memListings{segments: []repository.SegmentListing{seg("Ari", "house", 2, price(100))}}
	idx := newMemIndex()
	day := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	res, err := newTestBuilder(listings, idx).Build(context.Background(), &day)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.RunID == uuid.Nil {
		t.Fatalf("result must carry the run id")
	}
	if res.Rows != 1 || res.Date != "2026-02-28" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Logs) == 0 {
		t.Fatalf("result must carry the run's log lines")
	}
}

func TestBuild_DefaultsToYesterday(t *testing.T) {
	listings := &memListings{segments: []repository.SegmentListing{seg("Ari", "house", 2, price(100))}}
	idx := newMemIndex()
	b := newTestBuilder(listings, idx)
	b.now = func() time.Time { return time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC) }

	if _, err := b.Build(context.Background(), nil); err != nil {
		t.Fatalf("build: %v", err)
	}
	yesterday := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows, _ := idx.ListForDate(context.Background(), yesterday)
	if len(rows) != 1 {
		t.Fatalf("expected rows written for yesterday UTC")
	}
}
