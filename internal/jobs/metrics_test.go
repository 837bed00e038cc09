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

	require.NoError(t, m.Track("ledger:flush").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:flush").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:flush", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:flush", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:flush")))
}

func TestAddExportedIgnoresEmptyBatches(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddExported("sales", 0)
	m.AddExported("sales", 3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.exported.WithLabelValues("sales")))

	var nilMetrics *Metrics
	nilMetrics.AddExported("sales", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
