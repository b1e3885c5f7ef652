package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/repository"
)

type ModerationUsecase interface {
	ListFlagged(ctx context.Context, limit, offset int) ([]FlaggedView, error)
}

type FlaggedView struct {
	ReviewID   uuid.UUID `json:"review_id"`
	ListingID  uuid.UUID `json:"listing_id"`
	ListingURL string    `json:"listing_url"`
	Title      *string   `json:"title"`
	Confidence float64   `json:"confidence"`
	Reason     *string   `json:"reason"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

type Moderation struct {
	reviews repository.ReviewRepository
}

func NewModerationUsecase(reviews repository.ReviewRepository) *Moderation {
	return &Moderation{reviews: reviews}
}

func (u *Moderation) ListFlagged(ctx context.Context, limit, offset int) ([]FlaggedView, error) {
	if limit < 0 || offset < 0 {
		return nil, ErrInvalidInput
	}
	rows, err := u.reviews.ListFlagged(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]FlaggedView, 0, len(rows))
	for _, f := range rows {
		out = append(out, FlaggedView{
			ReviewID:   f.Review.ID,
			ListingID:  f.Review.ListingID,
			ListingURL: f.ListingURL,
			Title:      f.ListingTitle,
			Confidence: f.Review.Confidence,
			Reason:     f.Review.Reason,
			ReviewedAt: f.Review.ReviewedAt,
		})
	}
	return out, nil
}
