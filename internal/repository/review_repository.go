package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/database"
	"rentpulse/internal/domain/review"
)

type ReviewRepository interface {
	Insert(ctx context.Context, listingID uuid.UUID, flagged bool, confidence float64, reason string, reviewedAt time.Time) (uuid.UUID, error)
	ListFlagged(ctx context.Context, limit, offset int) ([]FlaggedReview, error)
}

// FlaggedReview joins the review with enough listing context for the
// moderation dashboard.
type FlaggedReview struct {
	Review       review.AiReview
	ListingURL   string
	ListingTitle *string
}

type PostgresReviewRepository struct {
	db database.DB
}

func NewPostgresReviewRepository(db database.DB) *PostgresReviewRepository {
	return &PostgresReviewRepository{db: db}
}

func (r *PostgresReviewRepository) Insert(ctx context.Context, listingID uuid.UUID, flagged bool, confidence float64, reason string, reviewedAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_reviews (id, listing_id, flagged, confidence, reason, reviewed_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		id, listingID, flagged, confidence, nullableText(reason), reviewedAt.UTC(),
	)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *PostgresReviewRepository) ListFlagged(ctx context.Context, limit, offset int) ([]FlaggedReview, error) {
	limit = clampLimit(limit, 100)
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT ar.id, ar.listing_id, ar.flagged, ar.confidence, ar.reason, ar.reviewed_at,
		        l.canonical_url, l.title
		 FROM ai_reviews ar
		 JOIN listings l ON l.id = ar.listing_id
		 WHERE ar.flagged
		 ORDER BY ar.reviewed_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]FlaggedReview, 0)
	for rows.Next() {
		var f FlaggedReview
		if err := rows.Scan(
			&f.Review.ID, &f.Review.ListingID, &f.Review.Flagged, &f.Review.Confidence,
			&f.Review.Reason, &f.Review.ReviewedAt, &f.ListingURL, &f.ListingTitle,
		); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
