// Package jobs persists the lifecycle of DAG runs.
//
// A job moves queued -> running -> success|failed exactly once. Creation is
// exclusive on the job id. Every later mutation is a whole-record
// read-modify-write through a Repository; two writers to the same job id race
// and the last write wins.
package jobs

import (
	"context"
	"fmt"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/fault"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Record is the persisted job document. Unset optional fields encode as null.
type Record struct {
	JobID      string           `json:"job_id"`
	DAGName    string           `json:"dag_name"`
	Status     Status           `json:"status"`
	QueuedAt   clock.Timestamp  `json:"queued_at"`
	StartedAt  *clock.Timestamp `json:"started_at"`
	FinishedAt *clock.Timestamp `json:"finished_at"`
	DurationMS *float64         `json:"duration_ms"`
	Error      *string          `json:"error"`
}

// Repository stores job records by id.
type Repository interface {
	// Create stores a new record; an existing rec.JobID fails AlreadyExists
	// and leaves the stored record untouched.
	Create(ctx context.Context, rec Record) error

	// Save replaces the record for rec.JobID.
	Save(ctx context.Context, rec Record) error

	// Load returns the record; a missing id fails NotFound.
	Load(ctx context.Context, jobID string) (Record, error)

	// List returns up to limit records, most recent id first. A non-empty
	// dagName keeps only that DAG's jobs. A limit <= 0 returns every record.
	List(ctx context.Context, dagName string, limit int) ([]Record, error)
}

// Store applies lifecycle rules on top of a Repository.
type Store struct {
	repo  Repository
	clock clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for ids and timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// NewStore creates a Store over repo.
func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{repo: repo, clock: clock.System{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewJobID derives the sortable id for a job queued at t.
func NewJobID(dagName string, t clock.Timestamp) string {
	return dagName + "-" + clock.Stamp(t.Time)
}

// CreateJob writes a new queued record for dagName. Two jobs of one DAG
// queued within the same microsecond collide on id; the second fails
// AlreadyExists instead of overwriting the first.
func (s *Store) CreateJob(ctx context.Context, dagName string) (Record, error) {
	now := clock.NewTimestamp(s.clock.Now())
	rec := Record{
		JobID:    NewJobID(dagName, now),
		DAGName:  dagName,
		Status:   StatusQueued,
		QueuedAt: now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("create job: %w", err)
	}
	return rec, nil
}

// MarkRunning moves a queued job to running and stamps StartedAt.
func (s *Store) MarkRunning(ctx context.Context, jobID string) (Record, error) {
	const op = "jobs.mark_running"

	rec, err := s.repo.Load(ctx, jobID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusQueued {
		return Record{}, transitionError(op, rec, StatusRunning)
	}

	now := clock.NewTimestamp(s.clock.Now())
	rec.Status = StatusRunning
	rec.StartedAt = &now
	if err := s.repo.Save(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// MarkFinished moves a running job to status, stamps FinishedAt and records
// the duration since StartedAt. errMsg is stored only when non-empty.
func (s *Store) MarkFinished(ctx context.Context, jobID string, status Status, errMsg string) (Record, error) {
	const op = "jobs.mark_finished"

	if !status.Terminal() {
		return Record{}, fault.Newf(fault.InvalidArgument, op, "finish status must be %s or %s, got %q",
			StatusSuccess, StatusFailed, status)
	}

	rec, err := s.repo.Load(ctx, jobID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusRunning || rec.StartedAt == nil {
		return Record{}, transitionError(op, rec, status)
	}

	now := clock.NewTimestamp(s.clock.Now())
	duration := float64(now.Sub(rec.StartedAt.Time).Microseconds()) / 1000
	rec.Status = status
	rec.FinishedAt = &now
	rec.DurationMS = &duration
	if errMsg != "" {
		rec.Error = &errMsg
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// GetJob returns the record for jobID.
func (s *Store) GetJob(ctx context.Context, jobID string) (Record, error) {
	return s.repo.Load(ctx, jobID)
}

// ListJobs returns up to limit records, most recent first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Record, error) {
	return s.repo.List(ctx, "", limit)
}

// ListDAGJobs is ListJobs restricted to one DAG.
func (s *Store) ListDAGJobs(ctx context.Context, dagName string, limit int) ([]Record, error) {
	return s.repo.List(ctx, dagName, limit)
}

func transitionError(op string, rec Record, to Status) error {
	return fault.Newf(fault.InvalidTransition, op, "cannot move job from %s to %s", rec.Status, to).
		With("job_id", rec.JobID)
}

func notFound(op, jobID string) error {
	return fault.Newf(fault.NotFound, op, "job not found: %s", jobID).With("job_id", jobID)
}

// AlreadyExists is the error a Repository returns from Create for a taken id.
func AlreadyExists(jobID string) error {
	return fault.Newf(fault.AlreadyExists, "jobs.create", "job already exists: %s", jobID).With("job_id", jobID)
}
