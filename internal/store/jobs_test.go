package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/jobs"
	"github.com/roach88/modelops/internal/testutil"
)

func openJobStore(t *testing.T) (*jobs.Store, *Store) {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clk := testutil.NewDeterministicClock(time.Date(2026, 10, 19, 8, 0, 0, 250_000_000, time.UTC), 1500*time.Millisecond)
	return jobs.NewStore(s, jobs.WithClock(clk)), s
}

func TestJobs_LifecycleRoundTrip(t *testing.T) {
	js, _ := openJobStore(t)
	ctx := context.Background()

	rec, err := js.CreateJob(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "nightly-20261019080000250000", rec.JobID)

	got, err := js.GetJob(ctx, rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Error)

	_, err = js.MarkRunning(ctx, rec.JobID)
	require.NoError(t, err)
	done, err := js.MarkFinished(ctx, rec.JobID, jobs.StatusFailed, "boom")
	require.NoError(t, err)

	got, err = js.GetJob(ctx, rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, done, got)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	require.NotNil(t, got.DurationMS)
	assert.InDelta(t, 1500.0, *got.DurationMS, 0.001)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)
	assert.Equal(t, "2026-10-19T08:00:01.750000", got.StartedAt.String())
}

func TestJobs_CreateRefusesTakenID(t *testing.T) {
	_, s := openJobStore(t)
	ctx := context.Background()

	rec := jobs.Record{
		JobID:    "nightly-1",
		DAGName:  "nightly",
		Status:   jobs.StatusQueued,
		QueuedAt: mustTimestamp(t, "2026-10-19T08:00:00"),
	}
	require.NoError(t, s.Create(ctx, rec))

	dup := rec
	dup.Status = jobs.StatusRunning
	err := s.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.AlreadyExists))

	got, err := s.Load(ctx, "nightly-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, got.Status)
}

func TestJobs_SaveIsUpsert(t *testing.T) {
	_, s := openJobStore(t)
	ctx := context.Background()

	rec := jobs.Record{
		JobID:    "nightly-1",
		DAGName:  "nightly",
		Status:   jobs.StatusQueued,
		QueuedAt: mustTimestamp(t, "2026-10-19T08:00:00"),
	}
	require.NoError(t, s.Save(ctx, rec))
	rec.Status = jobs.StatusRunning
	require.NoError(t, s.Save(ctx, rec))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&count))
	assert.Equal(t, 1, count)

	got, err := s.Load(ctx, "nightly-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, got.Status)
}

func TestJobs_LoadMissing(t *testing.T) {
	js, _ := openJobStore(t)

	_, err := js.GetJob(context.Background(), "ghost")
	assert.True(t, fault.Is(err, fault.NotFound), "got %v", err)
}

func TestJobs_ListOrderAndFilter(t *testing.T) {
	js, _ := openJobStore(t)
	ctx := context.Background()

	var nightly []string
	for _, dag := range []string{"nightly", "daily_batch", "nightly"} {
		rec, err := js.CreateJob(ctx, dag)
		require.NoError(t, err)
		if dag == "nightly" {
			nightly = append(nightly, rec.JobID)
		}
	}

	all, err := js.ListJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, nightly[1], all[0].JobID)
	assert.Equal(t, nightly[0], all[1].JobID)
	assert.Equal(t, "daily_batch", all[2].DAGName)

	limited, err := js.ListJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, nightly[1], limited[0].JobID)

	filtered, err := js.ListDAGJobs(ctx, "nightly", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, nightly[1], filtered[0].JobID)
	assert.Equal(t, nightly[0], filtered[1].JobID)
}

func TestJobs_ListEmpty(t *testing.T) {
	js, _ := openJobStore(t)

	got, err := js.ListJobs(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func mustTimestamp(t *testing.T, s string) clock.Timestamp {
	t.Helper()
	ts, err := clock.Parse(s)
	require.NoError(t, err)
	return ts
}
