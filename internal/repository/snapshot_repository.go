package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/database"
	"rentpulse/internal/domain/listing"
)

type SnapshotRepository interface {
	// Append writes one immutable observation row. Snapshots are never
	// updated or reordered after insert.
	Append(ctx context.Context, listingID uuid.UUID, f ObservedFields, scrapedAt time.Time) (uuid.UUID, error)
	ListByListing(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]listing.Snapshot, error)
}

type PostgresSnapshotRepository struct {
	db database.DB
}

func NewPostgresSnapshotRepository(db database.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

func (r *PostgresSnapshotRepository) Append(ctx context.Context, listingID uuid.UUID, f ObservedFields, scrapedAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO snapshots (id, listing_id, price_monthly, property_type, district, bedrooms, scraped_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, listingID, f.PriceMonthly, f.PropertyType, f.District, f.Bedrooms, scrapedAt.UTC(),
	)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *PostgresSnapshotRepository) ListByListing(ctx context.Context, listingID uuid.UUID, limit, offset int) ([]listing.Snapshot, error) {
	limit = clampLimit(limit, 100)
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, listing_id, price_monthly, property_type, district, bedrooms, scraped_at, created_at
		 FROM snapshots
		 WHERE listing_id = $1
		 ORDER BY scraped_at DESC
		 LIMIT $2 OFFSET $3`,
		listingID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]listing.Snapshot, 0)
	for rows.Next() {
		var s listing.Snapshot
		if err := rows.Scan(&s.ID, &s.ListingID, &s.PriceMonthly, &s.PropertyType, &s.District, &s.Bedrooms, &s.ScrapedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
