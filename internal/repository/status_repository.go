package repository

import (
	"context"
	"time"

	"rentpulse/internal/database"
)

type SourceStat struct {
	Source        string     `json:"source"`
	TotalListings int        `json:"total_listings"`
	ActiveCount   int        `json:"active_count"`
	LastScrapedAt *time.Time `json:"last_scraped_at"`
}

type StatusRepository interface {
	TotalListings(ctx context.Context) (int, error)
	ActiveListings(ctx context.Context) (int, error)
	SnapshotsToday(ctx context.Context) (int, error)
	FlaggedReviews(ctx context.Context) (int, error)
	SourceStats(ctx context.Context) ([]SourceStat, error)
}

type PostgresStatusRepository struct {
	db database.DB
}

func NewPostgresStatusRepository(db database.DB) *PostgresStatusRepository {
	return &PostgresStatusRepository{db: db}
}

func (r *PostgresStatusRepository) TotalListings(ctx context.Context) (int, error) {
	return r.countOne(ctx, `SELECT COUNT(*) FROM listings`)
}

func (r *PostgresStatusRepository) ActiveListings(ctx context.Context) (int, error) {
	return r.countOne(ctx, `SELECT COUNT(*) FROM listings WHERE is_active`)
}

func (r *PostgresStatusRepository) SnapshotsToday(ctx context.Context) (int, error) {
	return r.countOne(ctx, `SELECT COUNT(*) FROM snapshots WHERE scraped_at >= date_trunc('day', now() AT TIME ZONE 'utc')`)
}

func (r *PostgresStatusRepository) FlaggedReviews(ctx context.Context) (int, error) {
	return r.countOne(ctx, `SELECT COUNT(*) FROM ai_reviews WHERE flagged`)
}

func (r *PostgresStatusRepository) SourceStats(ctx context.Context) ([]SourceStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.name, COUNT(l.id), COUNT(l.id) FILTER (WHERE l.is_active), MAX(l.last_scraped_at)
		 FROM sources s
		 LEFT JOIN listings l ON l.source_id = s.id
		 GROUP BY s.name
		 ORDER BY s.name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SourceStat, 0)
	for rows.Next() {
		var st SourceStat
		if err := rows.Scan(&st.Source, &st.TotalListings, &st.ActiveCount, &st.LastScrapedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresStatusRepository) countOne(ctx context.Context, q string) (int, error) {
	var n int
	row := r.db.QueryRow(ctx, q)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
