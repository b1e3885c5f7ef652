package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/domain/jobrun"
	"rentpulse/internal/domain/listing"
	"rentpulse/internal/infrastructure/ai"
	"rentpulse/internal/infrastructure/geocode"
	"rentpulse/internal/ratelimit"
	"rentpulse/internal/repository"
)

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*jobrun.Run
	logs map[uuid.UUID][]string
}

func newMemRuns() *memRuns {
	return &memRuns{runs: map[uuid.UUID]*jobrun.Run{}, logs: map[uuid.UUID][]string{}}
}

func (m *memRuns) Create(ctx context.Context, jobType jobrun.JobType, startedAt time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.runs[id] = &jobrun.Run{ID: id, JobType: jobType, Status: jobrun.StatusRunning, StartedAt: startedAt}
	return id, nil
}

func (m *memRuns) AppendLog(ctx context.Context, runID uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[runID] = append(m.logs[runID], message)
	return nil
}

func (m *memRuns) Finish(ctx context.Context, runID uuid.UUID, status jobrun.Status, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return repository.ErrRunNotFound
	}
	run.Status = status
	run.FinishedAt = &finishedAt
	return nil
}

func (m *memRuns) List(context.Context, int, int) ([]jobrun.Run, error) { return nil, nil }
func (m *memRuns) GetWithLogs(context.Context, uuid.UUID) (*jobrun.Run, []jobrun.LogLine, error) {
	return nil, nil, nil
}

func (m *memRuns) single(t *testing.T) (*jobrun.Run, []string) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) != 1 {
		t.Fatalf("expected exactly 1 run, got %d", len(m.runs))
	}
	for id, r := range m.runs {
		return r, m.logs[id]
	}
	return nil, nil
}

type memListings struct {
	batch     []listing.Listing
	rewritten map[uuid.UUID][2]string
	titles    map[uuid.UUID]string
}

func newMemListings(batch []listing.Listing) *memListings {
	return &memListings{batch: batch, rewritten: map[uuid.UUID][2]string{}, titles: map[uuid.UUID]string{}}
}

func (m *memListings) UpsertObserved(context.Context, uuid.UUID, string, repository.ObservedFields, time.Time) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (m *memListings) GetByID(context.Context, uuid.UUID) (*listing.Listing, error) {
	return nil, repository.ErrListingNotFound
}
func (m *memListings) FindForReview(ctx context.Context, limit int, sourceID *uuid.UUID, unreviewedOnly bool) ([]listing.Listing, error) {
	return m.take(limit), nil
}
func (m *memListings) FindForRewrite(ctx context.Context, limit int, sourceID *uuid.UUID, force bool) ([]listing.Listing, error) {
	return m.take(limit), nil
}
func (m *memListings) FindForGeotitle(ctx context.Context, limit int, force, geoOnly bool) ([]listing.Listing, error) {
	return m.take(limit), nil
}
func (m *memListings) take(limit int) []listing.Listing {
	if limit < len(m.batch) {
		return m.batch[:limit]
	}
	return m.batch
}
func (m *memListings) SetRewritten(ctx context.Context, id uuid.UUID, title, description string) error {
	m.rewritten[id] = [2]string{title, description}
	return nil
}
func (m *memListings) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	m.titles[id] = title
	return nil
}
func (m *memListings) ActiveSegments(context.Context) ([]repository.SegmentListing, error) {
	return nil, nil
}
func (m *memListings) DeactivateStale(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memListings) Purge(context.Context, uuid.UUID) error                    { return nil }

type memReviews struct {
	rows []struct {
		listingID uuid.UUID
		flagged   bool
	}
	err error
}

func (m *memReviews) Insert(ctx context.Context, listingID uuid.UUID, flagged bool, confidence float64, reason string, reviewedAt time.Time) (uuid.UUID, error) {
	if m.err != nil {
		return uuid.Nil, m.err
	}
	m.rows = append(m.rows, struct {
		listingID uuid.UUID
		flagged   bool
	}{listingID, flagged})
	return uuid.New(), nil
}
func (m *memReviews) ListFlagged(context.Context, int, int) ([]repository.FlaggedReview, error) {
	return nil, nil
}

// fakeAI classifies/rewrites deterministically and can fail on chosen
// call indices (1-based).
type fakeAI struct {
	calls   int
	failOn  map[int]bool
	flagged bool
}

func (f *fakeAI) Classify(ctx context.Context, text string) (ai.Classification, error) {
	f.calls++
	if f.failOn[f.calls] {
		return ai.Classification{}, errors.New("malformed model output")
	}
	return ai.Classification{Flagged: f.flagged, Confidence: 0.9, Reason: "test"}, nil
}

func (f *fakeAI) Rewrite(ctx context.Context, title, description string) (ai.Rewritten, error) {
	f.calls++
	if f.failOn[f.calls] {
		return ai.Rewritten{}, errors.New("malformed model output")
	}
	return ai.Rewritten{Title: "clean " + title, Description: "clean " + description}, nil
}

func strPtr(s string) *string     { return &s }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func makeBatch(n int) []listing.Listing {
	out := make([]listing.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, listing.Listing{
			ID:          uuid.New(),
			RawTitle:    strPtr(fmt.Sprintf("listing %d", i)),
			Description: strPtr("desc"),
			IsActive:    true,
		})
	}
	return out
}

func TestReviewWorker_FaultIsolation(t *testing.T) {
	runs := newMemRuns()
	listings := newMemListings(makeBatch(10))
	reviews := &memReviews{}
	client := &fakeAI{failOn: map[int]bool{3: true}}

	w := NewReviewWorker(listings, reviews, client, NewTracker(runs, nil))
	res, err := w.Run(context.Background(), ReviewParams{Limit: 10, UnreviewedOnly: true})
	if err != nil {
		t.Fatalf("one bad item must not fail the batch: %v", err)
	}
	if res.Reviewed != 9 || res.Skipped != 1 {
		t.Fatalf("expected 9 reviewed / 1 skipped, got %+v", res)
	}
	if len(reviews.rows) != 9 {
		t.Fatalf("expected 9 persisted reviews, got %d", len(reviews.rows))
	}

	run, logs := runs.single(t)
	if run.Status != jobrun.StatusSucceeded {
		t.Fatalf("expected run succeeded, got %s", run.Status)
	}
	found := false
	for _, l := range logs {
		if strings.Contains(l, "skip") && strings.Contains(l, "malformed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected skip logged, logs: %v", logs)
	}

	if res.RunID != run.ID {
		t.Fatalf("result must carry the run id, got %s want %s", res.RunID, run.ID)
	}
	skipEchoed := false
	for _, l := range res.Logs {
		if strings.Contains(l, "skip") && strings.Contains(l, "malformed") {
			skipEchoed = true
		}
	}
	if !skipEchoed {
		t.Fatalf("trigger result must echo the skip line, logs: %v", res.Logs)
	}
}

func TestReviewWorker_CountsFlagged(t *testing.T) {
	runs := newMemRuns()
	listings := newMemListings(makeBatch(4))
	reviews := &memReviews{}
	client := &fakeAI{flagged: true}

	w := NewReviewWorker(listings, reviews, client, NewTracker(runs, nil))
	res, err := w.Run(context.Background(), ReviewParams{Limit: 4})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Flagged != 4 {
		t.Fatalf("expected 4 flagged, got %+v", res)
	}
}

func TestReviewWorker_CapsBatch(t *testing.T) {
	runs := newMemRuns()
	listings := newMemListings(makeBatch(80))
	w := NewReviewWorker(listings, &memReviews{}, &fakeAI{}, NewTracker(runs, nil))

	res, err := w.Run(context.Background(), ReviewParams{Limit: 500})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Reviewed != maxReviewBatch {
		t.Fatalf("limit must clamp to %d, got %d", maxReviewBatch, res.Reviewed)
	}
}

func TestReviewWorker_UnconfiguredClientFailsRun(t *testing.T) {
	runs := newMemRuns()
	w := NewReviewWorker(newMemListings(nil), &memReviews{}, nil, NewTracker(runs, nil))

	if _, err := w.Run(context.Background(), ReviewParams{}); !errors.Is(err, ai.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	run, _ := runs.single(t)
	if run.Status != jobrun.StatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
}

func TestRewriteWorker_FaultIsolation(t *testing.T) {
	runs := newMemRuns()
	listings := newMemListings(makeBatch(5))
	client := &fakeAI{failOn: map[int]bool{2: true}}

	w := NewRewriteWorker(listings, client, NewTracker(runs, nil))
	res, err := w.Run(context.Background(), RewriteParams{Limit: 5})
	if err != nil {
		t.Fatalf("one bad item must not fail the batch: %v", err)
	}
	if res.Rewritten != 4 || res.Skipped != 1 {
		t.Fatalf("expected 4 rewritten / 1 skipped, got %+v", res)
	}
	if len(listings.rewritten) != 4 {
		t.Fatalf("expected 4 listings updated, got %d", len(listings.rewritten))
	}
}

type fakeGeocoder struct {
	place geocode.Place
	err   error
	calls int
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (geocode.Place, error) {
	f.calls++
	if f.err != nil {
		return geocode.Place{}, f.err
	}
	return f.place, nil
}

func geoListing(withCoords bool) listing.Listing {
	l := listing.Listing{
		ID:           uuid.New(),
		District:     strPtr("Thonglor"),
		City:         strPtr("Bangkok"),
		PropertyType: strPtr("condo"),
		Bedrooms:     intPtr(2),
		IsActive:     true,
	}
	if withCoords {
		l.Latitude = floatPtr(13.73)
		l.Longitude = floatPtr(100.58)
	}
	return l
}

func newGeoWorker(listings *memListings, gc geocode.Client, runs *memRuns) *GeotitleWorker {
	w := NewGeotitleWorker(listings, gc, nil, NewTracker(runs, nil))
	w.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return w
}

func TestGeotitleWorker_GeocodedTitle(t *testing.T) {
	l := geoListing(true)
	listings := newMemListings([]listing.Listing{l})
	gc := &fakeGeocoder{place: geocode.Place{Neighbourhood: "Khlong Tan Nuea", City: "Bangkok"}}

	w := newGeoWorker(listings, gc, newMemRuns())
	res, err := w.Run(context.Background(), GeotitleParams{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Titled != 1 || res.Geocoded != 1 || res.Fallback != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	got := listings.titles[l.ID]
	if !strings.Contains(got, "Khlong Tan Nuea") {
		t.Fatalf("expected geocoded locality in title, got %q", got)
	}
}

func TestGeotitleWorker_FallbackConvergence(t *testing.T) {
	// A listing with coordinates and a failing provider must get the
	// same title as one with no coordinates and identical fields.
	withCoords := geoListing(true)
	withoutCoords := geoListing(false)

	failing := &fakeGeocoder{err: errors.New("provider down")}
	listingsA := newMemListings([]listing.Listing{withCoords})
	wA := newGeoWorker(listingsA, failing, newMemRuns())
	if _, err := wA.Run(context.Background(), GeotitleParams{Limit: 10}); err != nil {
		t.Fatalf("run A: %v", err)
	}

	listingsB := newMemListings([]listing.Listing{withoutCoords})
	wB := newGeoWorker(listingsB, &fakeGeocoder{}, newMemRuns())
	if _, err := wB.Run(context.Background(), GeotitleParams{Limit: 10}); err != nil {
		t.Fatalf("run B: %v", err)
	}

	titleA := listingsA.titles[withCoords.ID]
	titleB := listingsB.titles[withoutCoords.ID]
	if titleA == "" || titleA != titleB {
		t.Fatalf("fallback must converge: %q vs %q", titleA, titleB)
	}
}

func TestGeotitleWorker_CountsPaths(t *testing.T) {
	batch := []listing.Listing{geoListing(true), geoListing(false), geoListing(false)}
	listings := newMemListings(batch)
	gc := &fakeGeocoder{place: geocode.Place{Suburb: "Watthana"}}

	w := newGeoWorker(listings, gc, newMemRuns())
	res, err := w.Run(context.Background(), GeotitleParams{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Titled != 3 || res.Geocoded != 1 || res.Fallback != 2 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if gc.calls != 1 {
		t.Fatalf("template path must not call the geocoder, got %d calls", gc.calls)
	}
}

// windowStore is an in-memory sliding window that only records events
// it admits.
type windowStore struct {
	mu     sync.Mutex
	events []time.Time
}

func (s *windowStore) Acquire(ctx context.Context, key string, max int64, window time.Duration, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := at.Add(-window)
	kept := s.events[:0]
	for _, t := range s.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.events = kept
	if int64(len(kept)) >= max {
		return false, nil
	}
	s.events = append(s.events, at)
	return true, nil
}

func TestGeotitleWorker_LimiterPacesBatch(t *testing.T) {
	batch := []listing.Listing{geoListing(true), geoListing(true)}
	listings := newMemListings(batch)
	gc := &fakeGeocoder{place: geocode.Place{Suburb: "Watthana"}}

	limiter := ratelimit.New("geocode", 1, 40*time.Millisecond, &windowStore{}, nil)
	w := NewGeotitleWorker(listings, gc, limiter, NewTracker(newMemRuns(), nil))
	w.sleep = func(ctx context.Context, d time.Duration) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	res, err := w.Run(context.Background(), GeotitleParams{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// Every coordinate listing gets a slot once the previous event ages
	// out; none take the fallback path.
	if res.Geocoded != 2 || res.Fallback != 0 {
		t.Fatalf("expected both listings geocoded, got %+v", res)
	}
	if gc.calls != 2 {
		t.Fatalf("expected 2 geocoder calls, got %d", gc.calls)
	}
}

func TestDeactivateWorker_SweepsStale(t *testing.T) {
	runs := newMemRuns()
	listings := newMemListings(nil)
	w := NewDeactivateWorker(listings, NewTracker(runs, nil))

	res, err := w.Run(context.Background(), DeactivateParams{OlderThanDays: 14})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Deactivated != 0 {
		t.Fatalf("expected 0 deactivated from empty store, got %d", res.Deactivated)
	}
	run, _ := runs.single(t)
	if run.Status != jobrun.StatusSucceeded {
		t.Fatalf("expected succeeded run")
	}
}

func TestTracker_LogOrderPreserved(t *testing.T) {
	runs := newMemRuns()
	tracker := NewTracker(runs, nil)

	run, err := tracker.Start(context.Background(), jobrun.TypeAiReview)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		run.Logf(context.Background(), "line %d", i)
	}
	run.Finish(context.Background(), nil)

	_, logs := runs.single(t)
	for i := 0; i < 5; i++ {
		if logs[i] != fmt.Sprintf("line %d", i) {
			t.Fatalf("log order broken at %d: %v", i, logs)
		}
	}
}
