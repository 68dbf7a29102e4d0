package cli

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/config"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/jobs"
	"github.com/roach88/modelops/internal/pipelines"
	"github.com/roach88/modelops/internal/registry"
	"github.com/roach88/modelops/internal/scheduler"
	"github.com/roach88/modelops/internal/store"
)

// app is the per-invocation object graph: one resolved config and the
// components built from it.
type app struct {
	cfg    *config.Config
	clock  clock.Clock
	logger *slog.Logger
	reg    *registry.Registry

	closers []func() error
}

// open resolves configuration and builds the registry.
func (o *RootOptions) open(cmd *cobra.Command) (*app, error) {
	lookup := o.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg, err := config.LoadWith(o.ConfigPath, lookup)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigError, "cli.config", "invalid configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(fault.ConfigError, "cli.config", "invalid configuration", err)
	}

	clk := o.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, o.Verbose)
	logger.Debug("config resolved", "base_dir", cfg.BaseDir, "registry_dir", cfg.RegistryDir, "job_backend", cfg.JobBackend)

	return &app{
		cfg:    cfg,
		clock:  clk,
		logger: logger,
		reg:    registry.New(cfg.RegistryDir, registry.WithClock(clk), registry.WithLogger(logger)),
	}, nil
}

// jobStore opens the job store on the configured backend.
func (a *app) jobStore() (*jobs.Store, error) {
	var repo jobs.Repository
	switch a.cfg.JobBackend {
	case config.BackendSQLite:
		if err := os.MkdirAll(a.cfg.OutputsDir, 0o755); err != nil {
			return nil, err
		}
		st, err := store.Open(a.cfg.JobsDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		repo = st
	default:
		repo = jobs.NewFileRepository(a.cfg.JobsDir)
	}
	return jobs.NewStore(repo, jobs.WithClock(a.clock)), nil
}

// scheduler builds the scheduler with every registered pipeline.
func (a *app) scheduler(o *RootOptions) (*scheduler.Scheduler, error) {
	js, err := a.jobStore()
	if err != nil {
		return nil, err
	}
	ps, err := pipelines.Registered(pipelines.Deps{
		Registry:     a.reg,
		Clock:        a.clock,
		Logger:       a.logger,
		BatchOptions: o.RunnerOptions,
	})
	if err != nil {
		return nil, err
	}
	return scheduler.New(js, a.cfg, ps, scheduler.WithLogger(a.logger))
}

// Close releases resources opened during the invocation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
