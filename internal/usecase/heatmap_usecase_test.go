package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/listing"
	"rentpulse/internal/domain/stats"
	"rentpulse/internal/repository"
)

type mockIndexRepo struct {
	date  time.Time
	found bool
	rows  []stats.IndexRow
	lists int
}

func (m *mockIndexRepo) ReplaceForDate(context.Context, time.Time, []stats.IndexRow) error {
	return nil
}
func (m *mockIndexRepo) LatestDate(context.Context) (time.Time, bool, error) {
	return m.date, m.found, nil
}
func (m *mockIndexRepo) ListForDate(context.Context, time.Time) ([]stats.IndexRow, error) {
	m.lists++
	return m.rows, nil
}

type mockListingRepo struct {
	segments []repository.SegmentListing
}

func (m *mockListingRepo) UpsertObserved(context.Context, uuid.UUID, string, repository.ObservedFields, time.Time) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (m *mockListingRepo) GetByID(context.Context, uuid.UUID) (*listing.Listing, error) {
	return nil, repository.ErrListingNotFound
}
func (m *mockListingRepo) FindForReview(context.Context, int, *uuid.UUID, bool) ([]listing.Listing, error) {
	return nil, nil
}
func (m *mockListingRepo) FindForRewrite(context.Context, int, *uuid.UUID, bool) ([]listing.Listing, error) {
	return nil, nil
}
func (m *mockListingRepo) FindForGeotitle(context.Context, int, bool, bool) ([]listing.Listing, error) {
	return nil, nil
}
func (m *mockListingRepo) SetRewritten(context.Context, uuid.UUID, string, string) error { return nil }
func (m *mockListingRepo) SetTitle(context.Context, uuid.UUID, string) error             { return nil }
func (m *mockListingRepo) ActiveSegments(context.Context) ([]repository.SegmentListing, error) {
	return m.segments, nil
}
func (m *mockListingRepo) DeactivateStale(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *mockListingRepo) Purge(context.Context, uuid.UUID) error                    { return nil }

type mockResponseCache struct {
	store map[string][]byte
	sets  int
}

func (m *mockResponseCache) GetJSON(_ context.Context, key string, out any) (bool, error) {
	b, ok := m.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}
func (m *mockResponseCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.store == nil {
		m.store = map[string][]byte{}
	}
	m.store[key] = b
	m.sets++
	return nil
}

func TestHeatmap_ServesPersistedIndex(t *testing.T) {
	price := int64(700)
	idx := &mockIndexRepo{
		date:  time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		found: true,
		rows: []stats.IndexRow{
			{District: "Kemang", PropertyType: "apartment", Bedrooms: 2, ListingCount: 3, MedianPrice: &price},
		},
	}
	uc := NewHeatmapUsecase(idx, &mockListingRepo{}, nil)

	res, err := uc.Heatmap(context.Background())
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if res.Live {
		t.Fatalf("expected persisted rows, got live fallback")
	}
	if res.Date == nil || *res.Date != "2026-08-30" {
		t.Fatalf("unexpected date: %v", res.Date)
	}
	if len(res.Cells) != 1 || res.Cells[0].District != "Kemang" {
		t.Fatalf("unexpected cells: %+v", res.Cells)
	}
}

func TestHeatmap_LiveFallbackBeforeFirstBuild(t *testing.T) {
	price := int64(500)
	listings := &mockListingRepo{segments: []repository.SegmentListing{
		{District: "Senopati", PropertyType: "house", Bedrooms: 3, PriceMonthly: &price},
	}}
	uc := NewHeatmapUsecase(&mockIndexRepo{found: false}, listings, nil)

	res, err := uc.Heatmap(context.Background())
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if !res.Live || res.Date != nil {
		t.Fatalf("expected live fallback, got live=%v date=%v", res.Live, res.Date)
	}
	if len(res.Cells) != 1 || res.Cells[0].ListingCount != 1 {
		t.Fatalf("unexpected cells: %+v", res.Cells)
	}
}

func TestHeatmap_SecondCallHitsCache(t *testing.T) {
	idx := &mockIndexRepo{
		date:  time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		found: true,
	}
	cache := &mockResponseCache{}
	uc := NewHeatmapUsecase(idx, &mockListingRepo{}, cache)

	if _, err := uc.Heatmap(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := uc.Heatmap(context.Background()); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if idx.lists != 1 {
		t.Fatalf("expected one repository read, got %d", idx.lists)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
}
