package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/jobs"
)

var _ jobs.Repository = (*Store)(nil)

// Create inserts rec. A taken job_id fails AlreadyExists.
func (s *Store) Create(ctx context.Context, rec jobs.Record) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs
		(job_id, dag_name, status, queued_at, started_at, finished_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING
	`,
		rec.JobID,
		rec.DAGName,
		string(rec.Status),
		rec.QueuedAt.String(),
		nullTimestamp(rec.StartedAt),
		nullTimestamp(rec.FinishedAt),
		nullFloat(rec.DurationMS),
		nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", rec.JobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create job %s: %w", rec.JobID, err)
	}
	if n == 0 {
		return jobs.AlreadyExists(rec.JobID)
	}
	return nil
}

// Save upserts the whole record.
func (s *Store) Save(ctx context.Context, rec jobs.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs
		(job_id, dag_name, status, queued_at, started_at, finished_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			dag_name = excluded.dag_name,
			status = excluded.status,
			queued_at = excluded.queued_at,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms,
			error = excluded.error
	`,
		rec.JobID,
		rec.DAGName,
		string(rec.Status),
		rec.QueuedAt.String(),
		nullTimestamp(rec.StartedAt),
		nullTimestamp(rec.FinishedAt),
		nullFloat(rec.DurationMS),
		nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.JobID, err)
	}
	return nil
}

// Load reads one job. A missing id fails NotFound.
func (s *Store) Load(ctx context.Context, jobID string) (jobs.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, dag_name, status, queued_at, started_at, finished_at, duration_ms, error
		FROM jobs
		WHERE job_id = ?
	`, jobID)

	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Record{}, fault.Newf(fault.NotFound, "jobs.load", "job not found: %s", jobID).
			With("job_id", jobID)
	}
	if err != nil {
		return jobs.Record{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return rec, nil
}

// List returns jobs ordered by job_id DESC COLLATE BINARY.
func (s *Store) List(ctx context.Context, dagName string, limit int) ([]jobs.Record, error) {
	query := `
		SELECT job_id, dag_name, status, queued_at, started_at, finished_at, duration_ms, error
		FROM jobs`
	var args []any
	if dagName != "" {
		query += ` WHERE dag_name = ?`
		args = append(args, dagName)
	}
	query += ` ORDER BY job_id DESC COLLATE BINARY`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []jobs.Record{}
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (jobs.Record, error) {
	var (
		rec                 jobs.Record
		status, queuedAt    string
		startedAt, finished sql.NullString
		duration            sql.NullFloat64
		errMsg              sql.NullString
	)
	if err := sc.Scan(&rec.JobID, &rec.DAGName, &status, &queuedAt, &startedAt, &finished, &duration, &errMsg); err != nil {
		return jobs.Record{}, err
	}

	rec.Status = jobs.Status(status)
	q, err := clock.Parse(queuedAt)
	if err != nil {
		return jobs.Record{}, err
	}
	rec.QueuedAt = q
	if rec.StartedAt, err = parseNullTimestamp(startedAt); err != nil {
		return jobs.Record{}, err
	}
	if rec.FinishedAt, err = parseNullTimestamp(finished); err != nil {
		return jobs.Record{}, err
	}
	if duration.Valid {
		d := duration.Float64
		rec.DurationMS = &d
	}
	if errMsg.Valid {
		m := errMsg.String
		rec.Error = &m
	}
	return rec, nil
}

func parseNullTimestamp(ns sql.NullString) (*clock.Timestamp, error) {
	if !ns.Valid {
		return nil, nil
	}
	ts, err := clock.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func nullTimestamp(ts *clock.Timestamp) sql.NullString {
	if ts == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: ts.String(), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
