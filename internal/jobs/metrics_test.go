package jobmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("session:refresh").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("session:refresh").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("session:refresh", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("session:refresh", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("session:refresh")))
}

func TestTrackerStampsLastSuccess(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	metrics.now = func() time.Time { return at }

	require.NoError(t, metrics.Track("menu_access:purge").End(nil))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("menu_access:purge")))

	at = at.Add(time.Hour)
	_ = metrics.Track("menu_access:purge").End(errors.New("redis down"))
	assert.Equal(t, float64(at.Add(-time.Hour).Unix()), testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("menu_access:purge")))
}

func TestAddPurgedIgnoresEmptyRuns(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.AddPurged(0)
	metrics.AddPurged(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.purged))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("x").End(boom), boom)
	metrics.AddPurged(1)
}
