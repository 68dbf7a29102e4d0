// Package pipelines defines the maintenance DAGs the scheduler can run.
//
//	nightly:     load_model -> collect_recent_requests -> compute_drift
//	daily_batch: prepare_batch_output -> run_daily_batch
package pipelines

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/modelops/internal/batch"
	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/dag"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/monitoring"
	"github.com/roach88/modelops/internal/predictor"
	"github.com/roach88/modelops/internal/registry"
	"github.com/roach88/modelops/internal/scheduler"
)

// DAG names.
const (
	Nightly    = "nightly"
	DailyBatch = "daily_batch"
)

// SampleRequestsFile in the data directory backs both DAGs when no live
// traffic has been logged.
const SampleRequestsFile = "sample_requests.jsonl"

// Deps are the collaborators shared by every run.
type Deps struct {
	Registry *registry.Registry
	Clock    clock.Clock
	Logger   *slog.Logger

	// BatchOptions are passed to the batch runner used by daily_batch.
	BatchOptions []batch.Option
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Registered builds every pipeline.
func Registered(deps Deps) ([]scheduler.Pipeline, error) {
	deps = deps.withDefaults()

	nightly, err := NewNightly(deps)
	if err != nil {
		return nil, err
	}
	daily, err := NewDailyBatch(deps)
	if err != nil {
		return nil, err
	}
	return []scheduler.Pipeline{nightly, daily}, nil
}

// NightlyState is threaded through the nightly tasks.
type NightlyState struct {
	Seed      scheduler.Seed
	Version   string
	Predictor predictor.Predictor
	Requests  []predictor.Record
	Report    *monitoring.Report
}

// NewNightly builds the drift-check pipeline.
func NewNightly(deps Deps) (scheduler.Pipeline, error) {
	deps = deps.withDefaults()
	tasks := []dag.Task[*NightlyState]{
		{
			Name: "load_model",
			Run: func(_ context.Context, s *NightlyState) error {
				alias, err := deps.Registry.PreferredServingAlias()
				if err != nil {
					return err
				}
				version, err := deps.Registry.ResolveReference(alias)
				if err != nil {
					return err
				}
				dir, err := deps.Registry.ResolvePath(version)
				if err != nil {
					return err
				}
				p, err := predictor.Load(dir)
				if err != nil {
					return err
				}
				s.Version, s.Predictor = version, p
				return nil
			},
		},
		{
			Name: "collect_recent_requests",
			Deps: []string{"load_model"},
			Run: func(_ context.Context, s *NightlyState) error {
				cfg := s.Seed.Config
				recs, err := monitoring.RecentRequests(cfg.LogsFile, cfg.RecentRequestWindow)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					if recs, err = batch.ReadRecords(filepath.Join(cfg.DataDir, SampleRequestsFile)); err != nil {
						return err
					}
				}
				s.Requests = recs
				return nil
			},
		},
		{
			Name: "compute_drift",
			Deps: []string{"collect_recent_requests"},
			Run: func(_ context.Context, s *NightlyState) error {
				if len(s.Requests) == 0 {
					return fault.New(fault.InvalidArgument, "nightly.compute_drift", "no recent requests available for drift computation")
				}
				monitor := monitoring.NewDriftMonitor(s.Predictor.Manifest().BaselineStats, s.Seed.Config.DriftReport, deps.Clock)
				report, err := monitor.Evaluate(s.Requests)
				if err != nil {
					return err
				}
				s.Report = &report
				deps.Logger.Info("drift computed",
					"job_id", s.Seed.JobID, "model_version", s.Version,
					"price_psi", report.PricePSI, "alerts", len(report.Alerts))
				return nil
			},
		},
	}

	d, err := dag.New(Nightly, tasks, dag.WithClock(deps.Clock), dag.WithLogger(deps.Logger))
	if err != nil {
		return nil, err
	}
	return scheduler.Bind(d, func(seed scheduler.Seed) *NightlyState {
		return &NightlyState{Seed: seed}
	}), nil
}

// DailyBatchState is threaded through the daily_batch tasks.
type DailyBatchState struct {
	Seed    scheduler.Seed
	Output  string
	Summary *batch.Summary
}

// NewDailyBatch builds the pipeline that scores the sample requests into a
// dated output directory.
func NewDailyBatch(deps Deps) (scheduler.Pipeline, error) {
	deps = deps.withDefaults()
	tasks := []dag.Task[*DailyBatchState]{
		{
			Name: "prepare_batch_output",
			Run: func(_ context.Context, s *DailyBatchState) error {
				dir := filepath.Join(s.Seed.Config.BatchOutputsDir, deps.Clock.Now().UTC().Format("20060102"))
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("prepare batch output: %w", err)
				}
				s.Output = filepath.Join(dir, "preds.jsonl")
				return nil
			},
		},
		{
			Name: "run_daily_batch",
			Deps: []string{"prepare_batch_output"},
			Run: func(ctx context.Context, s *DailyBatchState) error {
				cfg := s.Seed.Config
				opts := append([]batch.Option{batch.WithClock(deps.Clock), batch.WithLogger(deps.Logger)}, deps.BatchOptions...)
				runner := batch.NewRunner(cfg, deps.Registry, opts...)
				sum, err := runner.Run(ctx, batch.Options{
					Input:     filepath.Join(cfg.DataDir, SampleRequestsFile),
					Output:    s.Output,
					Reference: registry.LatestRef,
				})
				if err != nil {
					return err
				}
				s.Summary = &sum
				return nil
			},
		},
	}

	d, err := dag.New(DailyBatch, tasks, dag.WithClock(deps.Clock), dag.WithLogger(deps.Logger))
	if err != nil {
		return nil, err
	}
	return scheduler.Bind(d, func(seed scheduler.Seed) *DailyBatchState {
		return &DailyBatchState{Seed: seed}
	}), nil
}
