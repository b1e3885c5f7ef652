package usecase

import (
	"context"
	"time"

	"rentpulse/internal/domain/stats"
	"rentpulse/internal/index"
	"rentpulse/internal/repository"
)

type HeatmapUsecase interface {
	Heatmap(ctx context.Context) (*HeatmapResponse, error)
}

// ResponseCache is the slice of the redis wrapper the read paths use.
// A nil cache disables caching without changing behavior.
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

const (
	heatmapCacheKey = "stats:heatmap"
	heatmapCacheTTL = 5 * time.Minute
)

type HeatmapCell struct {
	District     string `json:"district"`
	PropertyType string `json:"property_type"`
	Bedrooms     int    `json:"bedrooms"`
	ListingCount int    `json:"listing_count"`
	MedianPrice  *int64 `json:"median_price"`
	P25Price     *int64 `json:"p25_price"`
	P75Price     *int64 `json:"p75_price"`
}

type HeatmapResponse struct {
	Date  *string       `json:"date"`
	Live  bool          `json:"live"`
	Cells []HeatmapCell `json:"cells"`
}

// Heatmap serves persisted index rows for the latest built date. Before
// any index exists it falls back to a live aggregation over active
// listings with the exact same percentile algorithm, so the two shapes
// never disagree.
type Heatmap struct {
	index    repository.IndexRepository
	listings repository.ListingRepository
	cache    ResponseCache
	now      func() time.Time
}

func NewHeatmapUsecase(idx repository.IndexRepository, listings repository.ListingRepository, cache ResponseCache) *Heatmap {
	return &Heatmap{index: idx, listings: listings, cache: cache, now: time.Now}
}

func (u *Heatmap) Heatmap(ctx context.Context) (*HeatmapResponse, error) {
	if u.cache != nil {
		var cached HeatmapResponse
		if hit, err := u.cache.GetJSON(ctx, heatmapCacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	res, err := u.heatmap(ctx)
	if err != nil {
		return nil, err
	}

	if u.cache != nil {
		_ = u.cache.SetJSON(ctx, heatmapCacheKey, res, heatmapCacheTTL)
	}
	return res, nil
}

func (u *Heatmap) heatmap(ctx context.Context) (*HeatmapResponse, error) {
	date, ok, err := u.index.LatestDate(ctx)
	if err != nil {
		return nil, err
	}

	if ok {
		rows, err := u.index.ListForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		d := date.Format("2006-01-02")
		return &HeatmapResponse{Date: &d, Live: false, Cells: toCells(rows)}, nil
	}

	segments, err := u.listings.ActiveSegments(ctx)
	if err != nil {
		return nil, err
	}
	day := u.now().UTC().Truncate(24 * time.Hour)
	return &HeatmapResponse{Date: nil, Live: true, Cells: toCells(index.Aggregate(segments, day))}, nil
}

func toCells(rows []stats.IndexRow) []HeatmapCell {
	out := make([]HeatmapCell, 0, len(rows))
	for _, r := range rows {
		out = append(out, HeatmapCell{
			District:     r.District,
			PropertyType: r.PropertyType,
			Bedrooms:     r.Bedrooms,
			ListingCount: r.ListingCount,
			MedianPrice:  r.MedianPrice,
			P25Price:     r.P25Price,
			P75Price:     r.P75Price,
		})
	}
	return out
}
