package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
)

type stubCleaner struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.removed, s.err
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	registry := prometheus.NewRegistry()
	stub := &stubCleaner{removed: 12}
	job := NewIdempotencyCleanupJob(stub, 48*time.Hour, discardLogger(), jobmetrics.NewMetrics(registry))

	task := NewIdempotencyCleanupTask()
	require.Equal(t, TaskIdempotencyCleanup, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, stub.olderThan)

	count, err := testutil.GatherAndCount(registry, "stockledger_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestIdempotencyCleanupPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewIdempotencyCleanupJob(&stubCleaner{err: boom}, time.Hour, discardLogger(), nil)
	require.ErrorIs(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()), boom)
}

func TestIdempotencyCleanupRequiresRetention(t *testing.T) {
	job := NewIdempotencyCleanupJob(&stubCleaner{}, 0, discardLogger(), nil)
	require.ErrorIs(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()), asynq.SkipRetry)

	var unset *IdempotencyCleanupJob
	require.Error(t, unset.Handle(context.Background(), NewIdempotencyCleanupTask()))
}
