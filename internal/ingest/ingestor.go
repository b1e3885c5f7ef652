package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/repository"
)

// Observation is one scraped view of a listing page.
type Observation struct {
	SourceID     uuid.UUID
	CanonicalURL string
	Fields       repository.ObservedFields
	ScrapedAt    time.Time
}

type Result struct {
	ListingID  uuid.UUID
	SnapshotID uuid.UUID
}

// Ingestor turns observations into durable listing + snapshot state.
type Ingestor struct {
	listings  repository.ListingRepository
	snapshots repository.SnapshotRepository
	queue     repository.QueueRepository
	logger    *log.Logger
}

func NewIngestor(listings repository.ListingRepository, snapshots repository.SnapshotRepository, queue repository.QueueRepository, logger *log.Logger) *Ingestor {
	return &Ingestor{listings: listings, snapshots: snapshots, queue: queue, logger: logger}
}

// Ingest upserts the canonical listing, appends the snapshot, then marks
// the queue entry done. The snapshot append is never rolled back by a
// queue bookkeeping failure: captured data beats consistent bookkeeping.
// Listing current-state moves by event time, so observations may arrive
// out of order.
func (i *Ingestor) Ingest(ctx context.Context, obs Observation) (Result, error) {
	if obs.SourceID == uuid.Nil {
		return Result{}, fmt.Errorf("nil source id")
	}
	if strings.TrimSpace(obs.CanonicalURL) == "" {
		return Result{}, fmt.Errorf("empty canonical url")
	}
	if obs.ScrapedAt.IsZero() {
		obs.ScrapedAt = time.Now().UTC()
	}

	listingID, err := i.listings.UpsertObserved(ctx, obs.SourceID, obs.CanonicalURL, obs.Fields, obs.ScrapedAt)
	if err != nil {
		i.markQueue(ctx, obs, fmt.Sprintf("upsert listing: %v", err))
		return Result{}, err
	}

	snapshotID, err := i.snapshots.Append(ctx, listingID, obs.Fields, obs.ScrapedAt)
	if err != nil {
		i.markQueue(ctx, obs, fmt.Sprintf("append snapshot: %v", err))
		return Result{ListingID: listingID}, err
	}

	i.markQueue(ctx, obs, "")
	return Result{ListingID: listingID, SnapshotID: snapshotID}, nil
}

func (i *Ingestor) markQueue(ctx context.Context, obs Observation, errMsg string) {
	if i.queue == nil {
		return
	}
	var err error
	if errMsg == "" {
		err = i.queue.MarkDone(ctx, obs.SourceID, obs.CanonicalURL)
	} else {
		err = i.queue.MarkError(ctx, obs.SourceID, obs.CanonicalURL, errMsg)
	}
	if err != nil && i.logger != nil {
		i.logger.Printf("[Ingest] queue bookkeeping failed url=%s: %v", obs.CanonicalURL, err)
	}
}
