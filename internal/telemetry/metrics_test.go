package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStep("sec_filing", "insert", 120, 30*time.Millisecond)
	m.ObserveStep("sec_filing", "insert", 5, time.Millisecond)
	m.TaskFinished("update-feeds", "completed")
	m.ItemsProcessed("update-feeds", 2, true)
	m.ItemsProcessed("update-feeds", 1, false)
	m.Lookup("edgar", nil)
	m.Lookup("edgar", errors.New("boom"))
	m.Retry("insert-new-filers", 3)
	m.Retry("insert-new-filers", 0)

	assert.Equal(t, 125.0, testutil.ToFloat64(m.rowsTotal.WithLabelValues("sec_filing", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("update-feeds", "completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsTotal.WithLabelValues("update-feeds", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsTotal.WithLabelValues("update-feeds", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupsTotal.WithLabelValues("edgar", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues("insert-new-filers")))

	n, err := testutil.GatherAndCount(reg, "filingindex_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStep("t", "a", 1, time.Second)
		m.TaskFinished("t", "completed")
		m.ItemsProcessed("t", 1, true)
		m.Lookup("s", nil)
		m.Retry("t", 1)
	})
}
