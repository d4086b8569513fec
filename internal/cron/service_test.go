package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/internal/catalog"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
	"github.com/angelmondragon/soundmint-backend/pkg/redis"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
	ctx  context.Context
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.ctx = ctx
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   NewRegistry(success, failure),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
	assert.Equal(t, 1, lock.releases)
	_, hasDeadline := success.ctx.Deadline()
	assert.True(t, hasDeadline)

	failures, err := testutil.GatherAndCount(reg, "soundmint_job_failure_total")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	successes, err := testutil.GatherAndCount(reg, "soundmint_job_success_total")
	require.NoError(t, err)
	assert.Equal(t, 1, successes)
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "x"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
}

type signalJob chan struct{}

func (signalJob) Name() string { return "signal" }

func (s signalJob) Run(context.Context) error {
	s <- struct{}{}
	return nil
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := make(signalJob, 1)
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &ProcessLock{}, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()
	<-job
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestProcessLockIsExclusive(t *testing.T) {
	var lock ProcessLock
	ok, _ := lock.Acquire(context.Background())
	require.True(t, ok)
	ok, _ = lock.Acquire(context.Background())
	assert.False(t, ok)
	require.NoError(t, lock.Release(context.Background()))
	ok, _ = lock.Acquire(context.Background())
	assert.True(t, ok)
}

type memLockStore struct {
	values map[string]string
}

func (m *memLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockReleasesOnlyOwnLock(t *testing.T) {
	store := &memLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "sm:lock:cron", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "sm:lock:cron", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "sm:lock:cron")
	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "sm:lock:cron")
}

type stubRefresher struct {
	snap catalog.Snapshot
	err  error
}

func (s stubRefresher) Refresh(context.Context) (catalog.Snapshot, error) { return s.snap, s.err }

type stubSweeper struct {
	stale    int64
	sessions int
	err      error
}

func (s *stubSweeper) SweepStale(context.Context) (int64, error) { return s.stale, s.err }
func (s *stubSweeper) Sweep(context.Context) int                 { return s.sessions }

func TestJobs(t *testing.T) {
	ctx := context.Background()

	refresh, err := NewCatalogRefreshJob(CatalogRefreshJobParams{Logger: logger.Nop(), Catalog: stubRefresher{snap: catalog.Snapshot{TakenAt: time.Now()}}})
	require.NoError(t, err)
	assert.Equal(t, "catalog_refresh", refresh.Name())
	require.NoError(t, refresh.Run(ctx))

	failing, err := NewCatalogRefreshJob(CatalogRefreshJobParams{Logger: logger.Nop(), Catalog: stubRefresher{err: errors.New("gateway down")}})
	require.NoError(t, err)
	require.ErrorContains(t, failing.Run(ctx), "gateway down")

	sweeper := &stubSweeper{stale: 2, sessions: 1}
	deploymentSweep, err := NewDeploymentSweepJob(logger.Nop(), sweeper)
	require.NoError(t, err)
	require.NoError(t, deploymentSweep.Run(ctx))
	sweeper.err = errors.New("db down")
	require.Error(t, deploymentSweep.Run(ctx))

	sessionSweep, err := NewSessionSweepJob(logger.Nop(), sweeper)
	require.NoError(t, err)
	require.NoError(t, sessionSweep.Run(ctx))

	_, err = NewCatalogRefreshJob(CatalogRefreshJobParams{Logger: logger.Nop()})
	require.Error(t, err)
	_, err = NewDeploymentSweepJob(nil, sweeper)
	require.Error(t, err)
	_, err = NewSessionSweepJob(logger.Nop(), nil)
	require.Error(t, err)
}

func TestCatalogRefreshJobLogsSnapshotCounts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(logger.Options{ServiceName: "test", Output: buf})
	snap := catalog.Snapshot{
		TakenAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tracks:   3,
		Editions: []catalog.Edition{{TrackID: 0}, {TrackID: 2}},
	}
	job, err := NewCatalogRefreshJob(CatalogRefreshJobParams{Logger: log, Catalog: stubRefresher{snap: snap}})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Contains(t, buf.String(), `"tracks":3`)
	assert.Contains(t, buf.String(), `"editions":2`)
}
