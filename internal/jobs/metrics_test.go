package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("ledger:reconcile").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:reconcile").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:reconcile", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:reconcile", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:reconcile")))
}

func TestAddReconciledLabelsCompany(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddReconciled(7, 3, 1)
	m.AddReconciled(0, 2, 0)

	require.Equal(t, 3.0, testutil.ToFloat64(m.checked.WithLabelValues("7")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.mismatches.WithLabelValues("7")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.checked.WithLabelValues("0")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddReconciled(1, 1, 1)
	require.NoError(t, m.Track("noop").End(nil))
}
