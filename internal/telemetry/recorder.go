package telemetry

import (
	"context"
	"time"

	"github.com/roach88/filingindex/internal/store"
)

// CommitTable and CommitAction label the row recorded for a commit.
const (
	CommitTable  = "*"
	CommitAction = "commit"
)

// Recorder accumulates processing_log rows for one run. Rows are kept
// whether or not the surrounding transaction commits; MarkCommitted flips
// the committed flag of the rows of the unit's current attempt.
type Recorder struct {
	runID   string
	now     func() time.Time
	metrics *Metrics
	rows    []store.ProcessingStat
	// attempt holds the index of the first row of each unit's open attempt.
	attempt map[string]int
}

// NewRecorder returns a recorder for runID. now stamps rows; nil uses
// time.Now.
func NewRecorder(runID string, now func() time.Time, m *Metrics) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{runID: runID, now: now, metrics: m, attempt: map[string]int{}}
}

// RunID returns the run the rows belong to.
func (r *Recorder) RunID() string { return r.runID }

// Step times fn and records its row count. The row is recorded even when
// fn fails.
func (r *Recorder) Step(unit, table, action string, fn func() (int64, error)) error {
	if _, ok := r.attempt[unit]; !ok {
		r.attempt[unit] = len(r.rows)
	}
	start := time.Now()
	n, err := fn()
	elapsed := time.Since(start)
	r.rows = append(r.rows, store.ProcessingStat{
		RunID:    r.runID,
		At:       r.now(),
		Unit:     unit,
		Table:    table,
		Action:   action,
		RowCount: n,
		Elapsed:  elapsed,
	})
	r.metrics.ObserveStep(table, action, n, elapsed)
	return err
}

// Commit times a commit step and marks the attempt's rows committed on
// success. Either way the attempt ends.
func (r *Recorder) Commit(unit string, fn func() error) error {
	err := r.Step(unit, CommitTable, CommitAction, func() (int64, error) {
		return 0, fn()
	})
	if err == nil {
		r.MarkCommitted(unit)
		return nil
	}
	r.Rollback(unit)
	return err
}

// MarkCommitted flags the rows of unit recorded since its last commit or
// rollback as committed and ends the attempt.
func (r *Recorder) MarkCommitted(unit string) {
	start, ok := r.attempt[unit]
	if !ok {
		return
	}
	for i := start; i < len(r.rows); i++ {
		if r.rows[i].Unit == unit {
			r.rows[i].Committed = true
		}
	}
	delete(r.attempt, unit)
}

// Rollback ends the unit's attempt; its rows stay uncommitted.
func (r *Recorder) Rollback(unit string) {
	delete(r.attempt, unit)
}

// Rows returns the rows recorded so far.
func (r *Recorder) Rows() []store.ProcessingStat {
	return append([]store.ProcessingStat(nil), r.rows...)
}

// Flush writes pending rows to the store and clears them.
func (r *Recorder) Flush(ctx context.Context, st *store.Store) error {
	if len(r.rows) == 0 {
		return nil
	}
	if err := st.WriteProcessingStats(ctx, r.rows); err != nil {
		return err
	}
	r.rows = r.rows[:0]
	for unit := range r.attempt {
		r.attempt[unit] = 0
	}
	return nil
}
