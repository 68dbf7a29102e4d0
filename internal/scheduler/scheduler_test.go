package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modelops/internal/config"
	"github.com/roach88/modelops/internal/dag"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/jobs"
	"github.com/roach88/modelops/internal/testutil"
)

type state struct {
	seed  Seed
	trail []string
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pipeline(t *testing.T, name string, tasks ...dag.Task[*state]) Pipeline {
	t.Helper()
	d, err := dag.New(name, tasks, dag.WithLogger(quiet()))
	require.NoError(t, err)
	return Bind(d, func(s Seed) *state { return &state{seed: s} })
}

func step(name string) dag.Task[*state] {
	return dag.Task[*state]{Name: name, Run: func(_ context.Context, s *state) error {
		s.trail = append(s.trail, name)
		return nil
	}}
}

type harness struct {
	sched   *Scheduler
	jobs    *jobs.Store
	jobsDir string
	cfg     *config.Config
}

func newHarness(t *testing.T, pipelines ...Pipeline) *harness {
	t.Helper()
	cfg := config.Default(t.TempDir())
	clk := testutil.NewDeterministicClock(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), time.Second)
	js := jobs.NewStore(jobs.NewFileRepository(cfg.JobsDir), jobs.WithClock(clk))
	s, err := New(js, cfg, pipelines, WithLogger(quiet()))
	require.NoError(t, err)
	return &harness{sched: s, jobs: js, jobsDir: cfg.JobsDir, cfg: cfg}
}

func TestListDAGs(t *testing.T) {
	h := newHarness(t,
		pipeline(t, "nightly", step("load_model"),
			dag.Task[*state]{Name: "compute_drift", Deps: []string{"collect"}, Run: step("compute_drift").Run},
			dag.Task[*state]{Name: "collect", Deps: []string{"load_model"}, Run: step("collect").Run}),
		pipeline(t, "daily_batch", step("prepare"), step("run")),
	)

	assert.Equal(t, []string{"daily_batch", "nightly"}, h.sched.Names())
	assert.Equal(t, map[string][]string{
		"nightly":     {"load_model", "collect", "compute_drift"},
		"daily_batch": {"prepare", "run"},
	}, h.sched.ListDAGs())
}

func TestNew_DuplicateNames(t *testing.T) {
	cfg := config.Default(t.TempDir())
	js := jobs.NewStore(jobs.NewFileRepository(cfg.JobsDir))
	_, err := New(js, cfg, []Pipeline{pipeline(t, "a", step("x")), pipeline(t, "a", step("y"))})
	assert.True(t, fault.Is(err, fault.ConfigError))
}

func TestRun_UnknownDAGCreatesNoJob(t *testing.T) {
	h := newHarness(t, pipeline(t, "nightly", step("a")))

	id, err := h.sched.Run(context.Background(), "does_not_exist")
	assert.Empty(t, id)
	assert.True(t, fault.Is(err, fault.NotFound), "got %v", err)

	_, statErr := os.Stat(h.jobsDir)
	assert.True(t, os.IsNotExist(statErr), "no job files may be written")
}

func TestRun_Success(t *testing.T) {
	var seen *state
	d, err := dag.New("nightly", []dag.Task[*state]{
		step("a"),
		{Name: "b", Deps: []string{"a"}, Run: func(_ context.Context, s *state) error {
			seen = s
			s.trail = append(s.trail, "b")
			return nil
		}},
	}, dag.WithLogger(quiet()))
	require.NoError(t, err)
	h := newHarness(t, Bind(d, func(s Seed) *state { return &state{seed: s} }))

	id, err := h.sched.Run(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, "nightly-20261019080000000000", id)

	require.NotNil(t, seen)
	assert.Equal(t, []string{"a", "b"}, seen.trail)
	assert.Equal(t, id, seen.seed.JobID)
	assert.Same(t, h.cfg, seen.seed.Config)

	rec, err := h.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSuccess, rec.Status)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.FinishedAt)
	require.NotNil(t, rec.DurationMS)
	assert.InDelta(t, 1000.0, *rec.DurationMS, 0.001)
	assert.Nil(t, rec.Error)
}

func TestRun_FailurePersistsRootCause(t *testing.T) {
	calls := 0
	h := newHarness(t, pipeline(t, "always_fail", dag.Task[*state]{
		Name:    "explode",
		Retries: 2,
		Run: func(context.Context, *state) error {
			calls++
			return errors.New("boom")
		},
	}))

	id, err := h.sched.Run(context.Background(), "always_fail")
	require.Error(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, calls)
	assert.True(t, fault.Is(err, fault.TaskFailure))

	var te *dag.TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "explode", te.Task)

	rec, getErr := h.jobs.GetJob(context.Background(), id)
	require.NoError(t, getErr)
	assert.Equal(t, jobs.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "boom", *rec.Error)
	assert.NotNil(t, rec.FinishedAt)
}

func TestRun_OneJobPerCall(t *testing.T) {
	h := newHarness(t, pipeline(t, "nightly", step("a")))

	for i := 0; i < 3; i++ {
		_, err := h.sched.Run(context.Background(), "nightly")
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(h.jobsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	list, err := h.jobs.ListJobs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, filepath.Base(entries[2].Name()), list[0].JobID+".json")
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "plain", failureMessage(errors.New("plain")))
	assert.Equal(t, "inner", failureMessage(&dag.TaskError{Task: "t", Err: errors.New("inner")}))
}
