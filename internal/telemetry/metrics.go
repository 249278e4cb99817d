// Package telemetry records what the sync engine did: Prometheus
// collectors for live scraping and processing_log rows for the per-run
// history kept in the store.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every collector.
const Namespace = "filingindex"

// Metrics holds the engine collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	rowsTotal    *prometheus.CounterVec
	stepSeconds  *prometheus.HistogramVec
	tasksTotal   *prometheus.CounterVec
	itemsTotal   *prometheus.CounterVec
	lookupsTotal *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Registration
// panics on duplicate names, so each registry takes one Metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_total",
			Help:      "Rows written by merge steps.",
		}, []string{"table", "action"}),
		stepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of merge steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "action"}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_total",
			Help:      "Tracked tasks by outcome.",
		}, []string{"task", "outcome"}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "task_items_total",
			Help:      "Items processed under a task by status.",
		}, []string{"task", "status"}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lookups_total",
			Help:      "External lookups by source and status.",
		}, []string{"source", "status"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "retries_total",
			Help:      "Items scheduled for another attempt.",
		}, []string{"task"}),
	}
	reg.MustRegister(m.rowsTotal, m.stepSeconds, m.tasksTotal, m.itemsTotal, m.lookupsTotal, m.retriesTotal)
	return m
}

// ObserveStep records one merge step.
func (m *Metrics) ObserveStep(table, action string, rows int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rowsTotal.WithLabelValues(table, action).Add(float64(rows))
	m.stepSeconds.WithLabelValues(table, action).Observe(elapsed.Seconds())
}

// TaskFinished counts a closed tracker. outcome is completed, interrupted
// or rejected.
func (m *Metrics) TaskFinished(task, outcome string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(task, outcome).Inc()
}

// ItemsProcessed counts one tracker advance of n items.
func (m *Metrics) ItemsProcessed(task string, n int, ok bool) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsTotal.WithLabelValues(task, status(ok)).Add(float64(n))
}

// Lookup counts one external call.
func (m *Metrics) Lookup(source string, err error) {
	if m == nil {
		return
	}
	m.lookupsTotal.WithLabelValues(source, status(err == nil)).Inc()
}

// Retry counts n items queued for another attempt.
func (m *Metrics) Retry(task string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retriesTotal.WithLabelValues(task).Add(float64(n))
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}
