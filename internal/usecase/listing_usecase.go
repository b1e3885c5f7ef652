package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/repository"
)

type ListingUsecase interface {
	SnapshotHistory(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]SnapshotView, error)
	Purge(ctx context.Context, listingID uuid.UUID) error
}

type SnapshotView struct {
	ID           uuid.UUID `json:"id"`
	PriceMonthly *int64    `json:"price_monthly"`
	PropertyType *string   `json:"property_type"`
	District     *string   `json:"district"`
	Bedrooms     *int      `json:"bedrooms"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

type Listings struct {
	listings  repository.ListingRepository
	snapshots repository.SnapshotRepository
}

func NewListingUsecase(listings repository.ListingRepository, snapshots repository.SnapshotRepository) *Listings {
	return &Listings{listings: listings, snapshots: snapshots}
}

func (u *Listings) SnapshotHistory(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]SnapshotView, error) {
	if listingID == uuid.Nil || limit < 0 || offset < 0 {
		return nil, ErrInvalidInput
	}
	if _, err := u.listings.GetByID(ctx, listingID); err != nil {
		return nil, err
	}

	rows, err := u.snapshots.ListByListing(ctx, listingID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]SnapshotView, 0, len(rows))
	for _, s := range rows {
		out = append(out, SnapshotView{
			ID:           s.ID,
			PriceMonthly: s.PriceMonthly,
			PropertyType: s.PropertyType,
			District:     s.District,
			Bedrooms:     s.Bedrooms,
			ScrapedAt:    s.ScrapedAt,
		})
	}
	return out, nil
}

func (u *Listings) Purge(ctx context.Context, listingID uuid.UUID) error {
	if listingID == uuid.Nil {
		return ErrInvalidInput
	}
	return u.listings.Purge(ctx, listingID)
}
