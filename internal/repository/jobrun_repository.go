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
	"rentpulse/internal/domain/jobrun"
)

var ErrRunNotFound = errors.New("job run not found")

type JobRunRepository interface {
	Create(ctx context.Context, jobType jobrun.JobType, startedAt time.Time) (uuid.UUID, error)
	// AppendLog assigns the next sequence number for the run; ordering
	// of lines within a run is total and append-only.
	AppendLog(ctx context.Context, runID uuid.UUID, message string) error
	Finish(ctx context.Context, runID uuid.UUID, status jobrun.Status, finishedAt time.Time) error

	List(ctx context.Context, limit, offset int) ([]jobrun.Run, error)
	GetWithLogs(ctx context.Context, runID uuid.UUID) (*jobrun.Run, []jobrun.LogLine, error)
}

type PostgresJobRunRepository struct {
	db database.DB
}

func NewPostgresJobRunRepository(db database.DB) *PostgresJobRunRepository {
	return &PostgresJobRunRepository{db: db}
}

func (r *PostgresJobRunRepository) Create(ctx context.Context, jobType jobrun.JobType, startedAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO job_runs (id, job_type, status, started_at) VALUES ($1,$2,'running',$3)`,
		id, string(jobType), startedAt.UTC(),
	)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *PostgresJobRunRepository) AppendLog(ctx context.Context, runID uuid.UUID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO job_run_logs (id, job_run_id, seq, message)
		 SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3 FROM job_run_logs WHERE job_run_id = $2`,
		uuid.New(), runID, message,
	)
	return err
}

func (r *PostgresJobRunRepository) Finish(ctx context.Context, runID uuid.UUID, status jobrun.Status, finishedAt time.Time) error {
	n, err := r.db.Exec(ctx,
		`UPDATE job_runs SET status = $2, finished_at = $3 WHERE id = $1`,
		runID, string(status), finishedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *PostgresJobRunRepository) List(ctx context.Context, limit, offset int) ([]jobrun.Run, error) {
	limit = clampLimit(limit, 100)
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, job_type, status, started_at, finished_at
		 FROM job_runs
		 ORDER BY started_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]jobrun.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresJobRunRepository) GetWithLogs(ctx context.Context, runID uuid.UUID) (*jobrun.Run, []jobrun.LogLine, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, job_type, status, started_at, finished_at FROM job_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get job run id=%s: %w", runID, err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, job_run_id, seq, message, created_at
		 FROM job_run_logs
		 WHERE job_run_id = $1
		 ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	logs := make([]jobrun.LogLine, 0)
	for rows.Next() {
		var l jobrun.LogLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.Seq, &l.Message, &l.CreatedAt); err != nil {
			return nil, nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return run, logs, nil
}

func scanRun(s scanner) (*jobrun.Run, error) {
	var run jobrun.Run
	var jobType, status string
	if err := s.Scan(&run.ID, &jobType, &status, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	run.JobType = jobrun.JobType(jobType)
	run.Status = jobrun.Status(status)
	return &run, nil
}
