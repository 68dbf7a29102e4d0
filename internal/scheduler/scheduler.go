// Package scheduler binds named DAGs to durable job records.
//
// Run is synchronous: it creates the job, executes the DAG on the calling
// goroutine and persists the outcome before returning. There is no queue and
// no background worker.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/roach88/modelops/internal/config"
	"github.com/roach88/modelops/internal/dag"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/jobs"
)

// Seed is what every run starts from.
type Seed struct {
	JobID  string
	Config *config.Config
}

// Pipeline is a runnable named DAG.
type Pipeline interface {
	Name() string
	TaskNames() []string
	Run(ctx context.Context, seed Seed) error
}

type bound[S any] struct {
	d        *dag.DAG[S]
	newState func(Seed) S
}

// Bind adapts a typed DAG to Pipeline. newState builds a fresh state for
// each run from its seed.
func Bind[S any](d *dag.DAG[S], newState func(Seed) S) Pipeline {
	return &bound[S]{d: d, newState: newState}
}

func (b *bound[S]) Name() string        { return b.d.Name() }
func (b *bound[S]) TaskNames() []string { return b.d.TaskNames() }

func (b *bound[S]) Run(ctx context.Context, seed Seed) error {
	return b.d.Execute(ctx, b.newState(seed))
}

// Scheduler runs registered pipelines under job tracking.
type Scheduler struct {
	store     *jobs.Store
	cfg       *config.Config
	pipelines map[string]Pipeline
	logger    *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New registers pipelines by name. Two pipelines with one name fail
// ConfigError.
func New(store *jobs.Store, cfg *config.Config, pipelines []Pipeline, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		store:     store,
		cfg:       cfg,
		pipelines: make(map[string]Pipeline, len(pipelines)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, p := range pipelines {
		if _, dup := s.pipelines[p.Name()]; dup {
			return nil, fault.Newf(fault.ConfigError, "scheduler.new", "duplicate DAG name %s", p.Name())
		}
		s.pipelines[p.Name()] = p
	}
	return s, nil
}

// Names returns registered DAG names in sorted order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.pipelines))
	for n := range s.pipelines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListDAGs maps each DAG name to its task names in execution order.
func (s *Scheduler) ListDAGs() map[string][]string {
	out := make(map[string][]string, len(s.pipelines))
	for n, p := range s.pipelines {
		out[n] = p.TaskNames()
	}
	return out
}

// Run executes the named DAG as a new job and returns the job id.
//
// An unknown name fails NotFound before any job is created. Otherwise the
// job moves queued -> running -> success|failed. On failure the record keeps
// the failing task's own error message and Run returns the job id together
// with the execution error.
func (s *Scheduler) Run(ctx context.Context, name string) (string, error) {
	p, ok := s.pipelines[name]
	if !ok {
		return "", fault.Newf(fault.NotFound, "scheduler.run", "unknown DAG: %s", name).With("dag", name)
	}

	rec, err := s.store.CreateJob(ctx, name)
	if err != nil {
		return "", err
	}
	if _, err := s.store.MarkRunning(ctx, rec.JobID); err != nil {
		return rec.JobID, err
	}
	s.logger.Info("job started", "job_id", rec.JobID, "dag", name)

	runErr := p.Run(ctx, Seed{JobID: rec.JobID, Config: s.cfg})
	if runErr != nil {
		if _, err := s.store.MarkFinished(ctx, rec.JobID, jobs.StatusFailed, failureMessage(runErr)); err != nil {
			return rec.JobID, errors.Join(runErr, err)
		}
		s.logger.Error("job failed", "job_id", rec.JobID, "dag", name, "error", runErr)
		return rec.JobID, runErr
	}

	if _, err := s.store.MarkFinished(ctx, rec.JobID, jobs.StatusSuccess, ""); err != nil {
		return rec.JobID, err
	}
	s.logger.Info("job succeeded", "job_id", rec.JobID, "dag", name)
	return rec.JobID, nil
}

// failureMessage is the failing task's own error text when the failure came
// from a task, else the whole error text.
func failureMessage(err error) string {
	var te *dag.TaskError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}
