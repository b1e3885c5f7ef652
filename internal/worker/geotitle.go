package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/domain/listing"
	"rentpulse/internal/infrastructure/geocode"
	"rentpulse/internal/ratelimit"
	"rentpulse/internal/repository"
)

// Most items take the instant templated path, so the geotitle batch cap
// is far looser than the AI workers'.
const maxGeotitleBatch = 200

// geocodeWait bounds how long one item waits for a limiter slot before
// falling back to the templated title.
const geocodeWait = 5 * time.Second

type GeotitleParams struct {
	Limit int
	// Force re-derives titles for listings that already have one.
	Force bool
	// GeoOnly restricts the batch to listings with coordinates.
	GeoOnly bool
}

type GeotitleResult struct {
	RunID    uuid.UUID `json:"run_id"`
	Titled   int       `json:"titled"`
	Geocoded int       `json:"geocoded"`
	Fallback int       `json:"fallback"`
	Logs     []string  `json:"logs"`
}

type GeotitleWorker struct {
	listings repository.ListingRepository
	geocoder geocode.Client
	limiter  *ratelimit.Limiter
	tracker  *Tracker
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewGeotitleWorker(listings repository.ListingRepository, geocoder geocode.Client, limiter *ratelimit.Limiter, tracker *Tracker) *GeotitleWorker {
	return &GeotitleWorker{
		listings: listings,
		geocoder: geocoder,
		limiter:  limiter,
		tracker:  tracker,
		sleep:    sleepCtx,
	}
}

// Run titles a bounded batch of listings. Listings with coordinates go
// through the rate-limited reverse geocoder; everything else (and every
// provider failure) takes the templated path.
func (w *GeotitleWorker) Run(ctx context.Context, p GeotitleParams) (GeotitleResult, error) {
	run, err := w.tracker.Start(ctx, jobrun.TypeGeotitle)
	if err != nil {
		return GeotitleResult{}, err
	}

	res, err := w.run(ctx, run, p)
	run.Finish(ctx, err)
	res.RunID = run.ID
	res.Logs = run.Lines()
	return res, err
}

func (w *GeotitleWorker) run(ctx context.Context, run *Run, p GeotitleParams) (GeotitleResult, error) {
	limit := p.Limit
	if limit <= 0 || limit > maxGeotitleBatch {
		limit = maxGeotitleBatch
	}

	batch, err := w.listings.FindForGeotitle(ctx, limit, p.Force, p.GeoOnly)
	if err != nil {
		return GeotitleResult{}, err
	}
	run.Logf(ctx, "selected %d listings (force=%t geoOnly=%t)", len(batch), p.Force, p.GeoOnly)

	var res GeotitleResult
	for _, l := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		title, geocoded := w.titleFor(ctx, run, l)
		if title == "" {
			run.Logf(ctx, "skip listing=%s: no data for title", l.ID)
			continue
		}

		if err := w.listings.SetTitle(ctx, l.ID, title); err != nil {
			run.Logf(ctx, "skip listing=%s: persist title: %v", l.ID, err)
			continue
		}

		res.Titled++
		if geocoded {
			res.Geocoded++
		} else {
			res.Fallback++
		}
	}

	run.Logf(ctx, "done titled=%d geocoded=%d fallback=%d", res.Titled, res.Geocoded, res.Fallback)
	return res, nil
}

func (w *GeotitleWorker) titleFor(ctx context.Context, run *Run, l listing.Listing) (string, bool) {
	if l.Latitude != nil && l.Longitude != nil && w.geocoder != nil {
		if w.acquireSlot(ctx) {
			place, err := w.geocoder.ReverseGeocode(ctx, *l.Latitude, *l.Longitude)
			if err == nil {
				if area := place.DisplayArea(); area != "" {
					return composeTitle(area, cityOf(l, place.City), l), true
				}
			} else {
				run.Logf(ctx, "geocode failed listing=%s, using fallback: %v", l.ID, err)
			}
		} else {
			run.Logf(ctx, "geocode slot unavailable listing=%s, using fallback", l.ID)
		}
	}
	return fallbackTitle(l), false
}

// acquireSlot waits for a geocoder rate-limit slot, giving up after
// geocodeWait so one slow window cannot stall the batch.
func (w *GeotitleWorker) acquireSlot(ctx context.Context) bool {
	if w.limiter == nil {
		return true
	}
	deadline := time.Now().Add(geocodeWait)
	for {
		ok, err := w.limiter.Allow(ctx, "geocoder")
		if err == nil && ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if err := w.sleep(ctx, 250*time.Millisecond); err != nil {
			return false
		}
	}
}

// fallbackTitle synthesizes a title from stored fields, no network.
// A listing with failing geocoding converges to the same title as one
// that never had coordinates.
func fallbackTitle(l listing.Listing) string {
	area := ""
	if l.District != nil {
		area = strings.TrimSpace(*l.District)
	}
	city := ""
	if l.City != nil {
		city = strings.TrimSpace(*l.City)
	}
	if area == "" && city == "" {
		return ""
	}
	return composeTitle(area, city, l)
}

func composeTitle(area, city string, l listing.Listing) string {
	ptype := "rental"
	if l.PropertyType != nil && strings.TrimSpace(*l.PropertyType) != "" {
		ptype = strings.TrimSpace(*l.PropertyType)
	}

	var b strings.Builder
	if l.Bedrooms != nil && *l.Bedrooms > 0 {
		fmt.Fprintf(&b, "%d-bedroom ", *l.Bedrooms)
	}
	b.WriteString(ptype)
	b.WriteString(" for rent")
	if area != "" {
		b.WriteString(" in ")
		b.WriteString(area)
		if city != "" && !strings.EqualFold(area, city) {
			b.WriteString(", ")
			b.WriteString(city)
		}
	} else if city != "" {
		b.WriteString(" in ")
		b.WriteString(city)
	}
	return b.String()
}

func cityOf(l listing.Listing, geocoded string) string {
	if strings.TrimSpace(geocoded) != "" {
		return strings.TrimSpace(geocoded)
	}
	if l.City != nil {
		return strings.TrimSpace(*l.City)
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
