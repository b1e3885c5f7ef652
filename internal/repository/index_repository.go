package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rentpulse/internal/database"
	"rentpulse/internal/domain/stats"
)

type IndexRepository interface {
	// ReplaceForDate swaps the full row set for one date inside a single
	// transaction. Re-running a build can never accumulate duplicates or
	// leave rows for segments that disappeared.
	ReplaceForDate(ctx context.Context, date time.Time, rows []stats.IndexRow) error
	LatestDate(ctx context.Context) (time.Time, bool, error)
	ListForDate(ctx context.Context, date time.Time) ([]stats.IndexRow, error)
}

type PostgresIndexRepository struct {
	db database.DB
}

func NewPostgresIndexRepository(db database.DB) *PostgresIndexRepository {
	return &PostgresIndexRepository{db: db}
}

func (r *PostgresIndexRepository) ReplaceForDate(ctx context.Context, date time.Time, rows []stats.IndexRow) error {
	day := date.UTC().Truncate(24 * time.Hour)

	return database.WithTx(ctx, r.db, func(tx database.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM index_daily WHERE index_date = $1`, day); err != nil {
			return err
		}

		for _, row := range rows {
			_, err := tx.Exec(ctx,
				`INSERT INTO index_daily (id, index_date, district, property_type, bedrooms, listing_count, median_price, p25_price, p75_price)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				uuid.New(), day, row.District, row.PropertyType, row.Bedrooms,
				row.ListingCount, row.MedianPrice, row.P25Price, row.P75Price,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresIndexRepository) LatestDate(ctx context.Context) (time.Time, bool, error) {
	var d *time.Time
	row := r.db.QueryRow(ctx, `SELECT MAX(index_date) FROM index_daily`)
	if err := row.Scan(&d); err != nil {
		return time.Time{}, false, err
	}
	if d == nil {
		return time.Time{}, false, nil
	}
	return d.UTC(), true, nil
}

func (r *PostgresIndexRepository) ListForDate(ctx context.Context, date time.Time) ([]stats.IndexRow, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, index_date, district, property_type, bedrooms, listing_count, median_price, p25_price, p75_price
		 FROM index_daily
		 WHERE index_date = $1
		 ORDER BY district, property_type, bedrooms`,
		date.UTC().Truncate(24*time.Hour),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]stats.IndexRow, 0)
	for rows.Next() {
		var x stats.IndexRow
		if err := rows.Scan(&x.ID, &x.IndexDate, &x.District, &x.PropertyType, &x.Bedrooms, &x.ListingCount, &x.MedianPrice, &x.P25Price, &x.P75Price); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
