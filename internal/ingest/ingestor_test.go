package ingest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/listing"
	"rentpulse/internal/repository"
)

// memListings mirrors the conditional-upsert semantics of the postgres
// repository: current fields advance only when the incoming observation
// is not older than the stored one.
type memListings struct {
	byKey map[string]*listing.Listing
	err   error
}

func newMemListings() *memListings {
	return &memListings{byKey: map[string]*listing.Listing{}}
}

func key(sourceID uuid.UUID, url string) string { return sourceID.String() + "|" + url }

func (m *memListings) UpsertObserved(ctx context.Context, sourceID uuid.UUID, canonicalURL string, f repository.ObservedFields, scrapedAt time.Time) (uuid.UUID, error) {
	if m.err != nil {
		return uuid.Nil, m.err
	}
	k := key(sourceID, canonicalURL)
	cur, ok := m.byKey[k]
	if !ok {
		l := &listing.Listing{
			ID: uuid.New(), SourceID: sourceID, CanonicalURL: canonicalURL,
			PriceMonthly: f.PriceMonthly, District: f.District,
			IsActive: true, LastScrapedAt: scrapedAt,
		}
		m.byKey[k] = l
		return l.ID, nil
	}
	if !scrapedAt.Before(cur.LastScrapedAt) {
		cur.PriceMonthly = f.PriceMonthly
		cur.District = f.District
		cur.IsActive = true
		cur.LastScrapedAt = scrapedAt
	}
	return cur.ID, nil
}

func (m *memListings) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	for _, l := range m.byKey {
		if l.ID == id {
			return l, nil
		}
	}
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
func (m *memListings) ActiveSegments(context.Context) ([]repository.SegmentListing, error) {
	return nil, nil
}
func (m *memListings) DeactivateStale(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memListings) Purge(context.Context, uuid.UUID) error                    { return nil }

type memSnapshots struct {
	rows []listing.Snapshot
	err  error
}

func (m *memSnapshots) Append(ctx context.Context, listingID uuid.UUID, f repository.ObservedFields, scrapedAt time.Time) (uuid.UUID, error) {
	if m.err != nil {
		return uuid.Nil, m.err
	}
	s := listing.Snapshot{ID: uuid.New(), ListingID: listingID, PriceMonthly: f.PriceMonthly, ScrapedAt: scrapedAt}
	m.rows = append(m.rows, s)
	return s.ID, nil
}

func (m *memSnapshots) ListByListing(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]listing.Snapshot, error) {
	out := make([]listing.Snapshot, 0)
	for _, s := range m.rows {
		if s.ListingID == listingID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScrapedAt.After(out[j].ScrapedAt) })
	return out, nil
}

type memQueue struct {
	done    []string
	errored map[string]string
	err     error
}

func newMemQueue() *memQueue { return &memQueue{errored: map[string]string{}} }

func (m *memQueue) Enqueue(ctx context.Context, sourceID uuid.UUID, url string) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (m *memQueue) MarkDone(ctx context.Context, sourceID uuid.UUID, url string) error {
	if m.err != nil {
		return m.err
	}
	m.done = append(m.done, url)
	return nil
}
func (m *memQueue) MarkError(ctx context.Context, sourceID uuid.UUID, url, message string) error {
	m.errored[url] = message
	return nil
}
func (m *memQueue) List(context.Context, listing.QueueStatus, int, int) ([]listing.QueueEntry, error) {
	return nil, nil
}

func price(v int64) *int64 { return &v }

func TestIngest_OutOfOrderObservations(t *testing.T) {
	listings := newMemListings()
	snapshots := &memSnapshots{}
	queue := newMemQueue()
	ing := NewIngestor(listings, snapshots, queue, nil)

	sourceID := uuid.New()
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	// The later observation (price 550) lands first.
	res2, err := ing.Ingest(context.Background(), Observation{
		SourceID: sourceID, CanonicalURL: "https://example.com/u",
		Fields: repository.ObservedFields{PriceMonthly: price(550)}, ScrapedAt: t2,
	})
	if err != nil {
		t.Fatalf("ingest t2: %v", err)
	}
	_, err = ing.Ingest(context.Background(), Observation{
		SourceID: sourceID, CanonicalURL: "https://example.com/u",
		Fields: repository.ObservedFields{PriceMonthly: price(500)}, ScrapedAt: t1,
	})
	if err != nil {
		t.Fatalf("ingest t1: %v", err)
	}

	cur, err := listings.GetByID(context.Background(), res2.ListingID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if cur.PriceMonthly == nil || *cur.PriceMonthly != 550 {
		t.Fatalf("current price must reflect latest event time, got %v", cur.PriceMonthly)
	}

	history, _ := snapshots.ListByListing(context.Background(), res2.ListingID, 10, 0)
	if len(history) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(history))
	}
	if *history[0].PriceMonthly != 550 || *history[1].PriceMonthly != 500 {
		t.Fatalf("snapshots must order by scrape time: %v then %v", *history[0].PriceMonthly, *history[1].PriceMonthly)
	}
}

func TestIngest_MarksQueueDone(t *testing.T) {
	queue := newMemQueue()
	ing := NewIngestor(newMemListings(), &memSnapshots{}, queue, nil)

	_, err := ing.Ingest(context.Background(), Observation{
		SourceID: uuid.New(), CanonicalURL: "https://example.com/a",
		Fields: repository.ObservedFields{}, ScrapedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(queue.done) != 1 || queue.done[0] != "https://example.com/a" {
		t.Fatalf("queue entry not marked done: %v", queue.done)
	}
}

func TestIngest_SnapshotFailureMarksQueueError(t *testing.T) {
	queue := newMemQueue()
	ing := NewIngestor(newMemListings(), &memSnapshots{err: errors.New("disk full")}, queue, nil)

	_, err := ing.Ingest(context.Background(), Observation{
		SourceID: uuid.New(), CanonicalURL: "https://example.com/b",
		Fields: repository.ObservedFields{}, ScrapedAt: time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected snapshot failure to surface")
	}
	if _, ok := queue.errored["https://example.com/b"]; !ok {
		t.Fatalf("queue entry should be marked error")
	}
}

func TestIngest_QueueFailureDoesNotFailIngest(t *testing.T) {
	listings := newMemListings()
	snapshots := &memSnapshots{}
	queue := newMemQueue()
	queue.err = errors.New("queue table locked")
	ing := NewIngestor(listings, snapshots, queue, nil)

	_, err := ing.Ingest(context.Background(), Observation{
		SourceID: uuid.New(), CanonicalURL: "https://example.com/c",
		Fields: repository.ObservedFields{PriceMonthly: price(700)}, ScrapedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("queue bookkeeping failure must not fail ingest: %v", err)
	}
	if len(snapshots.rows) != 1 {
		t.Fatalf("snapshot must survive queue failure")
	}
}

func TestIngest_ValidatesInput(t *testing.T) {
	ing := NewIngestor(newMemListings(), &memSnapshots{}, newMemQueue(), nil)

	if _, err := ing.Ingest(context.Background(), Observation{CanonicalURL: "https://x"}); err == nil {
		t.Fatalf("expected error for nil source id")
	}
	if _, err := ing.Ingest(context.Background(), Observation{SourceID: uuid.New()}); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
