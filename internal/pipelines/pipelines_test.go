package pipelines

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modelops/internal/batch"
	"github.com/roach88/modelops/internal/config"
	"github.com/roach88/modelops/internal/dag"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/fsutil"
	"github.com/roach88/modelops/internal/jobs"
	"github.com/roach88/modelops/internal/monitoring"
	"github.com/roach88/modelops/internal/registry"
	"github.com/roach88/modelops/internal/scheduler"
	"github.com/roach88/modelops/internal/testutil"
)

var epoch = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

const samples = `{"title": "oak sofa", "price": 900}
{"title": "bread knife", "price": 20}
{"title": "lamp", "price": 120}
`

type env struct {
	cfg   *config.Config
	reg   *registry.Registry
	jobs  *jobs.Store
	sched *scheduler.Scheduler
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, extra ...batch.Option) *env {
	t.Helper()
	cfg := config.Default(t.TempDir())
	clk := testutil.NewDeterministicClock(epoch, time.Second)
	reg := registry.New(cfg.RegistryDir, registry.WithClock(clk), registry.WithLogger(quiet()))

	ps, err := Registered(Deps{Registry: reg, Clock: clk, Logger: quiet(), BatchOptions: extra})
	require.NoError(t, err)

	js := jobs.NewStore(jobs.NewFileRepository(cfg.JobsDir), jobs.WithClock(clk))
	s, err := scheduler.New(js, cfg, ps, scheduler.WithLogger(quiet()))
	require.NoError(t, err)
	return &env{cfg: cfg, reg: reg, jobs: js, sched: s}
}

func (e *env) register(t *testing.T) string {
	t.Helper()
	v, err := e.reg.Register(testutil.WriteRuleModel(t, filepath.Join(t.TempDir(), "src"), "rules-v1"))
	require.NoError(t, err)
	return v
}

func (e *env) writeSamples(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.cfg.DataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.DataDir, SampleRequestsFile), []byte(content), 0o644))
}

func (e *env) job(t *testing.T, id string) jobs.Record {
	t.Helper()
	rec, err := e.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func taskCause(t *testing.T, err error) *dag.TaskError {
	t.Helper()
	var te *dag.TaskError
	require.ErrorAs(t, err, &te)
	return te
}

func TestRegistered_TaskOrder(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, map[string][]string{
		Nightly:    {"load_model", "collect_recent_requests", "compute_drift"},
		DailyBatch: {"prepare_batch_output", "run_daily_batch"},
	}, e.sched.ListDAGs())
}

func TestNightly_FallsBackToSampleRequests(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.writeSamples(t, samples)

	id, err := e.sched.Run(context.Background(), Nightly)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSuccess, e.job(t, id).Status)

	var report monitoring.Report
	require.NoError(t, fsutil.ReadJSON(e.cfg.DriftReport, &report))
	assert.NotNil(t, report.Alerts)
}

func TestNightly_PrefersLoggedTraffic(t *testing.T) {
	e := newEnv(t)
	e.register(t)

	log, err := monitoring.OpenEventLog(e.cfg.LogsFile)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		log.Logger().Info(monitoring.EventPredict, "request_id", "r", "input", map[string]any{
			"title": "mahogany dining table with six chairs and a matching sideboard in walnut finish",
			"price": 1500,
		})
	}
	require.NoError(t, log.Close())

	// No sample file: the run only succeeds if it used the log.
	id, err := e.sched.Run(context.Background(), Nightly)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSuccess, e.job(t, id).Status)

	var report monitoring.Report
	require.NoError(t, fsutil.ReadJSON(e.cfg.DriftReport, &report))
	assert.Greater(t, report.PricePSI, 0.2)
	require.Len(t, report.Alerts, 2)
	assert.True(t, strings.HasPrefix(report.Alerts[0], "price_psi_high:"))
	assert.True(t, strings.HasPrefix(report.Alerts[1], "text_length_drift:"))
}

func TestNightly_NoRequestsFailsJob(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.writeSamples(t, "\n")

	id, err := e.sched.Run(context.Background(), Nightly)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.TaskFailure))

	rec := e.job(t, id)
	assert.Equal(t, jobs.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "no recent requests available for drift computation")
	assert.NoFileExists(t, e.cfg.DriftReport)
}

func TestNightly_EmptyRegistryFailsAtLoadModel(t *testing.T) {
	e := newEnv(t)

	id, err := e.sched.Run(context.Background(), Nightly)
	require.Error(t, err)
	assert.Equal(t, "load_model", taskCause(t, err).Task)
	assert.True(t, fault.Is(taskCause(t, err).Err, fault.NotFound), "got %v", err)
	assert.Equal(t, jobs.StatusFailed, e.job(t, id).Status)
}

func TestDailyBatch_WritesDatedOutput(t *testing.T) {
	e := newEnv(t, batch.WithIDGenerator(testutil.NewFixedIDGenerator("r1", "r2", "r3")))
	v := e.register(t)
	e.writeSamples(t, samples)

	id, err := e.sched.Run(context.Background(), DailyBatch)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSuccess, e.job(t, id).Status)

	out := filepath.Join(e.cfg.BatchOutputsDir, "20261019", "preds.jsonl")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"request_id":"r1"`)
	assert.Contains(t, lines[0], `"model_version":"`+v+`"`)
	assert.FileExists(t, e.cfg.DriftReport)
}

func TestDailyBatch_FeedsNightly(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.writeSamples(t, samples)

	_, err := e.sched.Run(context.Background(), DailyBatch)
	require.NoError(t, err)

	recent, err := monitoring.RecentRequests(e.cfg.LogsFile, e.cfg.RecentRequestWindow)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	require.NoError(t, os.Remove(filepath.Join(e.cfg.DataDir, SampleRequestsFile)))
	id, err := e.sched.Run(context.Background(), Nightly)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSuccess, e.job(t, id).Status)

	list, err := e.jobs.ListJobs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDailyBatch_MissingInputFailsJob(t *testing.T) {
	e := newEnv(t)
	e.register(t)

	id, err := e.sched.Run(context.Background(), DailyBatch)
	require.Error(t, err)
	assert.Equal(t, "run_daily_batch", taskCause(t, err).Task)
	assert.True(t, fault.Is(taskCause(t, err).Err, fault.NotFound), "got %v", err)

	rec := e.job(t, id)
	assert.Equal(t, jobs.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "batch input not found")
}
