package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rentpulse/internal/database"
	"rentpulse/internal/domain/listing"
)

type QueueRepository interface {
	Enqueue(ctx context.Context, sourceID uuid.UUID, url string) (uuid.UUID, error)
	MarkDone(ctx context.Context, sourceID uuid.UUID, url string) error
	MarkError(ctx context.Context, sourceID uuid.UUID, url, message string) error
	List(ctx context.Context, status listing.QueueStatus, limit, offset int) ([]listing.QueueEntry, error)
}

type PostgresQueueRepository struct {
	db database.DB
}

func NewPostgresQueueRepository(db database.DB) *PostgresQueueRepository {
	return &PostgresQueueRepository{db: db}
}

func (r *PostgresQueueRepository) Enqueue(ctx context.Context, sourceID uuid.UUID, url string) (uuid.UUID, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return uuid.Nil, fmt.Errorf("empty url")
	}

	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO scrape_queue (id, source_id, url, status)
		 VALUES ($1,$2,$3,'pending')
		 ON CONFLICT (source_id, url) DO UPDATE SET status = 'pending', error_message = NULL, updated_at = now()`,
		id, sourceID, url,
	)
	if err != nil {
		return uuid.Nil, err
	}

	row := r.db.QueryRow(ctx, `SELECT id FROM scrape_queue WHERE source_id = $1 AND url = $2`, sourceID, url)
	if err := row.Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *PostgresQueueRepository) MarkDone(ctx context.Context, sourceID uuid.UUID, url string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE scrape_queue SET status = 'done', error_message = NULL, updated_at = now()
		 WHERE source_id = $1 AND url = $2`,
		sourceID, strings.TrimSpace(url),
	)
	return err
}

func (r *PostgresQueueRepository) MarkError(ctx context.Context, sourceID uuid.UUID, url, message string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE scrape_queue SET status = 'error', error_message = $3, updated_at = now()
		 WHERE source_id = $1 AND url = $2`,
		sourceID, strings.TrimSpace(url), strings.TrimSpace(message),
	)
	return err
}

func (r *PostgresQueueRepository) List(ctx context.Context, status listing.QueueStatus, limit, offset int) ([]listing.QueueEntry, error) {
	limit = clampLimit(limit, 100)
	if offset < 0 {
		offset = 0
	}

	q := `SELECT id, source_id, url, status, error_message, created_at, updated_at FROM scrape_queue`
	args := []any{}
	if status != "" {
		args = append(args, string(status))
		q += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	args = append(args, limit, offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]listing.QueueEntry, 0)
	for rows.Next() {
		var e listing.QueueEntry
		var status string
		if err := rows.Scan(&e.ID, &e.SourceID, &e.URL, &status, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Status = listing.QueueStatus(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
