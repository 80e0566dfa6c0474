package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockscanner/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	calls    int32
	failures int32 // fail this many times before succeeding
	err      error
	retries  *int
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if j.err != nil {
		return j.err
	}
	if n <= j.failures {
		return fmt.Errorf("attempt %d failed", n)
	}
	return nil
}

type retryingJob struct {
	*countingJob
}

func (j retryingJob) MaxRetries() int { return *j.retries }

func newTestScheduler() *Scheduler {
	return New(time.UTC, logger.Nop()).WithRetry(2, time.Millisecond)
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "0 0 * * * *"}))
	assert.Error(t, s.AddJob(&countingJob{name: "a", schedule: "0 0 * * * *"}), "duplicate name")
	assert.Error(t, s.AddJob(&countingJob{name: "b", schedule: "not a cron"}), "invalid schedule")

	assert.Equal(t, []string{"a"}, s.GetAllJobs())
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "0 0 * * * *"}))

	require.NoError(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
	assert.Empty(t, s.cron.Entries())
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJobSyncRetries(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "flaky", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("flaky")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&job.calls))
}

func TestRunJobSyncExhaustsRetries(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "broken", schedule: "@daily", err: errors.New("boom")}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("broken")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&job.calls))

	history, err := s.GetJobHistory("broken")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)
}

func TestJobRetryOverride(t *testing.T) {
	s := newTestScheduler()
	zero := 0
	job := retryingJob{&countingJob{name: "once", schedule: "@daily", err: errors.New("boom"), retries: &zero}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("once")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestSkippedJobIsNotRetried(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "busy", schedule: "@daily", err: fmt.Errorf("%w: busy", ErrSkipped)}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("busy")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestRunJobUnknown(t *testing.T) {
	s := newTestScheduler()
	assert.Error(t, s.RunJob("missing"))
	_, err := s.RunJobSync("missing")
	assert.Error(t, err)
}

func TestRunJobAsync(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "async", schedule: "@daily"}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("async"))
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestGetJobStats(t *testing.T) {
	s := newTestScheduler()
	ok := &countingJob{name: "ok", schedule: "@daily"}
	bad := &countingJob{name: "bad", schedule: "@hourly", err: errors.New("boom")}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	_, _ = s.RunJobSync("ok")
	_, _ = s.RunJobSync("ok")
	_, _ = s.RunJobSync("bad")

	stats := s.GetJobStats()
	require.Len(t, stats, 2)

	assert.Equal(t, 2, stats["ok"].TotalRuns)
	assert.Equal(t, 2, stats["ok"].SuccessCount)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)
	assert.NotNil(t, stats["ok"].LastSuccess)

	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.Equal(t, "@hourly", stats["bad"].Schedule)
	assert.NotNil(t, stats["bad"].LastFailure)
	assert.Nil(t, stats["bad"].LastSuccess)
}

func TestNextRunUsesLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	s := New(seoul, logger.Nop())
	require.NoError(t, s.AddJob(&countingJob{name: "scan", schedule: "0 20 15 * * *"}))

	s.Start()
	defer s.Stop()

	next, err := s.NextRun("scan")
	require.NoError(t, err)

	local := next.In(seoul)
	assert.Equal(t, 15, local.Hour())
	assert.Equal(t, 20, local.Minute())

	_, err = s.NextRun("missing")
	assert.Error(t, err)
}
