package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"rentpulse/internal/database"
	"rentpulse/internal/domain/listing"
)

var ErrListingNotFound = errors.New("listing not found")

// ObservedFields is the mutable portion of a listing as seen in one
// scrape observation.
type ObservedFields struct {
	PriceMonthly *int64
	PropertyType *string
	Bedrooms     *int
	Bathrooms    *int
	SizeSqm      *float64
	City         *string
	District     *string
	Latitude     *float64
	Longitude    *float64
	RawTitle     *string
	Description  *string
}

type ListingRepository interface {
	// UpsertObserved writes an observation's fields into the canonical
	// listing. The current fields only move forward in event time: an
	// observation older than the stored last_scraped_at leaves them
	// untouched. Returns the listing id either way.
	UpsertObserved(ctx context.Context, sourceID uuid.UUID, canonicalURL string, f ObservedFields, scrapedAt time.Time) (uuid.UUID, error)

	GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error)

	FindForReview(ctx context.Context, limit int, sourceID *uuid.UUID, unreviewedOnly bool) ([]listing.Listing, error)
	FindForRewrite(ctx context.Context, limit int, sourceID *uuid.UUID, force bool) ([]listing.Listing, error)
	FindForGeotitle(ctx context.Context, limit int, force, geoOnly bool) ([]listing.Listing, error)

	SetRewritten(ctx context.Context, id uuid.UUID, title, description string) error
	SetTitle(ctx context.Context, id uuid.UUID, title string) error

	ActiveSegments(ctx context.Context) ([]SegmentListing, error)
	DeactivateStale(ctx context.Context, olderThan time.Time) (int64, error)

	// Purge removes a listing and its owned rows in one transaction.
	// The cascade is explicit so the guarantee does not depend on
	// database-level foreign-key behavior.
	Purge(ctx context.Context, id uuid.UUID) error
}

// SegmentListing is the projection the daily index aggregates over.
type SegmentListing struct {
	District     string
	PropertyType string
	Bedrooms     int
	PriceMonthly *int64
}

type PostgresListingRepository struct {
	db database.DB
}

func NewPostgresListingRepository(db database.DB) *PostgresListingRepository {
	return &PostgresListingRepository{db: db}
}

const listingColumns = `id, source_id, canonical_url, price_monthly, property_type, bedrooms, bathrooms,
	size_sqm, city, district, latitude, longitude, title, raw_title, description,
	is_active, title_rewritten, last_scraped_at, created_at, updated_at`

func (r *PostgresListingRepository) UpsertObserved(ctx context.Context, sourceID uuid.UUID, canonicalURL string, f ObservedFields, scrapedAt time.Time) (uuid.UUID, error) {
	canonicalURL = strings.TrimSpace(canonicalURL)
	if canonicalURL == "" {
		return uuid.Nil, fmt.Errorf("empty canonical url")
	}
	if sourceID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("nil source id")
	}

	var id uuid.UUID
	row := r.db.QueryRow(ctx,
		`INSERT INTO listings (
			id, source_id, canonical_url, price_monthly, property_type, bedrooms, bathrooms,
			size_sqm, city, district, latitude, longitude, raw_title, description,
			is_active, last_scraped_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,TRUE,$15,now())
		ON CONFLICT (source_id, canonical_url) DO UPDATE SET
			price_monthly = EXCLUDED.price_monthly,
			property_type = EXCLUDED.property_type,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			size_sqm = EXCLUDED.size_sqm,
			city = EXCLUDED.city,
			district = EXCLUDED.district,
			latitude = COALESCE(EXCLUDED.latitude, listings.latitude),
			longitude = COALESCE(EXCLUDED.longitude, listings.longitude),
			raw_title = EXCLUDED.raw_title,
			description = EXCLUDED.description,
			is_active = TRUE,
			last_scraped_at = EXCLUDED.last_scraped_at,
			updated_at = now()
		WHERE listings.last_scraped_at <= EXCLUDED.last_scraped_at
		RETURNING id`,
		uuid.New(), sourceID, canonicalURL,
		f.PriceMonthly, f.PropertyType, f.Bedrooms, f.Bathrooms,
		f.SizeSqm, f.City, f.District, f.Latitude, f.Longitude,
		f.RawTitle, f.Description,
		scrapedAt.UTC(),
	)
	if err := row.Scan(&id); err == nil {
		return id, nil
	}

	// The conditional update matched an existing row with a newer
	// observation; the row exists, RETURNING just produced nothing.
	row = r.db.QueryRow(ctx,
		`SELECT id FROM listings WHERE source_id = $1 AND canonical_url = $2`,
		sourceID, canonicalURL,
	)
	if err := row.Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("upsert listing url=%s: %w", canonicalURL, err)
	}
	return id, nil
}

func (r *PostgresListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	row := r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing id=%s: %w", id, err)
	}
	return l, nil
}

func (r *PostgresListingRepository) FindForReview(ctx context.Context, limit int, sourceID *uuid.UUID, unreviewedOnly bool) ([]listing.Listing, error) {
	limit = clampLimit(limit, 50)

	q := `SELECT ` + prefixColumns("l", listingColumns) + ` FROM listings l WHERE l.is_active`
	args := []any{}
	if sourceID != nil {
		args = append(args, *sourceID)
		q += fmt.Sprintf(` AND l.source_id = $%d`, len(args))
	}
	if unreviewedOnly {
		q += ` AND NOT EXISTS (SELECT 1 FROM ai_reviews ar WHERE ar.listing_id = l.id)`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY l.last_scraped_at DESC LIMIT $%d`, len(args))

	return r.queryListings(ctx, q, args...)
}

func (r *PostgresListingRepository) FindForRewrite(ctx context.Context, limit int, sourceID *uuid.UUID, force bool) ([]listing.Listing, error) {
	limit = clampLimit(limit, 25)

	q := `SELECT ` + listingColumns + ` FROM listings WHERE is_active`
	args := []any{}
	if sourceID != nil {
		args = append(args, *sourceID)
		q += fmt.Sprintf(` AND source_id = $%d`, len(args))
	}
	if !force {
		q += ` AND NOT title_rewritten`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY last_scraped_at DESC LIMIT $%d`, len(args))

	return r.queryListings(ctx, q, args...)
}

func (r *PostgresListingRepository) FindForGeotitle(ctx context.Context, limit int, force, geoOnly bool) ([]listing.Listing, error) {
	limit = clampLimit(limit, 200)

	q := `SELECT ` + listingColumns + ` FROM listings WHERE is_active`
	if !force {
		q += ` AND (title IS NULL OR title = '')`
	}
	if geoOnly {
		q += ` AND latitude IS NOT NULL AND longitude IS NOT NULL`
	}
	q += ` ORDER BY last_scraped_at DESC LIMIT $1`

	return r.queryListings(ctx, q, limit)
}

func (r *PostgresListingRepository) SetRewritten(ctx context.Context, id uuid.UUID, title, description string) error {
	n, err := r.db.Exec(ctx,
		`UPDATE listings SET title = $2, description = $3, title_rewritten = TRUE, updated_at = now() WHERE id = $1`,
		id, title, description,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *PostgresListingRepository) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	n, err := r.db.Exec(ctx,
		`UPDATE listings SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *PostgresListingRepository) ActiveSegments(ctx context.Context) ([]SegmentListing, error) {
	rows, err := r.db.Query(ctx,
		`SELECT COALESCE(district, ''), COALESCE(property_type, ''), COALESCE(bedrooms, 0), price_monthly
		 FROM listings WHERE is_active`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SegmentListing, 0)
	for rows.Next() {
		var s SegmentListing
		if err := rows.Scan(&s.District, &s.PropertyType, &s.Bedrooms, &s.PriceMonthly); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresListingRepository) DeactivateStale(ctx context.Context, olderThan time.Time) (int64, error) {
	return r.db.Exec(ctx,
		`UPDATE listings SET is_active = FALSE, updated_at = now() WHERE is_active AND last_scraped_at < $1`,
		olderThan.UTC(),
	)
}

func (r *PostgresListingRepository) Purge(ctx context.Context, id uuid.UUID) error {
	return database.WithTx(ctx, r.db, func(tx database.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM snapshots WHERE listing_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM ai_reviews WHERE listing_id = $1`, id); err != nil {
			return err
		}
		n, err := tx.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrListingNotFound
		}
		return nil
	})
}

func (r *PostgresListingRepository) queryListings(ctx context.Context, q string, args ...any) ([]listing.Listing, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]listing.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(s scanner) (*listing.Listing, error) {
	var l listing.Listing
	err := s.Scan(
		&l.ID, &l.SourceID, &l.CanonicalURL, &l.PriceMonthly, &l.PropertyType,
		&l.Bedrooms, &l.Bathrooms, &l.SizeSqm, &l.City, &l.District,
		&l.Latitude, &l.Longitude, &l.Title, &l.RawTitle, &l.Description,
		&l.IsActive, &l.TitleRewritten, &l.LastScrapedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
