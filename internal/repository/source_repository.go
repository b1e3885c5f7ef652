package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"rentpulse/internal/database"
)

var ErrSourceNotFound = errors.New("source not found")

type SourceRepository interface {
	Ensure(ctx context.Context, name, baseURL string) (uuid.UUID, error)
	IDByName(ctx context.Context, name string) (uuid.UUID, error)
}

type PostgresSourceRepository struct {
	db database.DB
}

func NewPostgresSourceRepository(db database.DB) *PostgresSourceRepository {
	return &PostgresSourceRepository{db: db}
}

func (r *PostgresSourceRepository) Ensure(ctx context.Context, name, baseURL string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, fmt.Errorf("empty source name")
	}

	_, _ = r.db.Exec(ctx,
		`INSERT INTO sources (id, name, base_url) VALUES (gen_random_uuid(), $1, $2) ON CONFLICT (name) DO NOTHING`,
		name, nullableText(baseURL),
	)

	return r.IDByName(ctx, name)
}

func (r *PostgresSourceRepository) IDByName(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	row := r.db.QueryRow(ctx, `SELECT id FROM sources WHERE name = $1 LIMIT 1`, strings.TrimSpace(name))
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrSourceNotFound
		}
		return uuid.Nil, fmt.Errorf("source by name=%s: %w", name, err)
	}
	return id, nil
}

func nullableText(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
