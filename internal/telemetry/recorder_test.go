package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/testutil"
)

func TestRecorder_KeepsFailedSteps(t *testing.T) {
	clock := testutil.NewDeterministicClock(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	r := NewRecorder("run-1", clock.Now, nil)

	require.NoError(t, r.Step("202201", "sec_feed", "insert", func() (int64, error) { return 1, nil }))
	boom := errors.New("boom")
	err := r.Step("202201", "sec_filing", "insert", func() (int64, error) { return 40, boom })
	assert.ErrorIs(t, err, boom)

	rows := r.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(40), rows[1].RowCount)
	assert.False(t, rows[1].Committed)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 1, 0, time.UTC), rows[1].At)
}

func TestRecorder_CommitAndFlush(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	r := NewRecorder("run-2", nil, nil)
	require.NoError(t, r.Step("a", "sec_filing", "insert", func() (int64, error) { return 3, nil }))
	require.NoError(t, r.Step("b", "sec_filing", "insert", func() (int64, error) { return 2, nil }))
	require.NoError(t, r.Commit("a", func() error { return nil }))

	require.NoError(t, r.Flush(ctx, st))
	assert.Empty(t, r.Rows())

	stored, err := st.ProcessingStats(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.True(t, stored[0].Committed)
	assert.False(t, stored[1].Committed)
	assert.Equal(t, CommitAction, stored[2].Action)
	assert.True(t, stored[2].Committed)

	require.NoError(t, r.Flush(ctx, st))
}

func TestRecorder_CommitSkipsEarlierFailedAttempt(t *testing.T) {
	r := NewRecorder("run-3", nil, nil)
	boom := errors.New("boom")

	require.NoError(t, r.Step("202201", "sec_feed", "insert", func() (int64, error) { return 1, nil }))
	require.ErrorIs(t, r.Step("202201", "sec_filing", "insert", func() (int64, error) { return 0, boom }), boom)
	r.Rollback("202201")

	require.NoError(t, r.Step("202201", "sec_feed", "insert", func() (int64, error) { return 1, nil }))
	require.NoError(t, r.Step("202201", "sec_filing", "insert", func() (int64, error) { return 7, nil }))
	require.NoError(t, r.Commit("202201", func() error { return nil }))

	var committed []bool
	for _, row := range r.Rows() {
		committed = append(committed, row.Committed)
	}
	assert.Equal(t, []bool{false, false, true, true, true}, committed)
}

func TestRecorder_FailedCommitEndsAttempt(t *testing.T) {
	r := NewRecorder("run-4", nil, nil)
	boom := errors.New("boom")

	require.NoError(t, r.Step("a", "sec_filing", "insert", func() (int64, error) { return 3, nil }))
	require.ErrorIs(t, r.Commit("a", func() error { return boom }), boom)

	require.NoError(t, r.Step("a", "sec_filing", "insert", func() (int64, error) { return 3, nil }))
	r.MarkCommitted("a")

	var committed []bool
	for _, row := range r.Rows() {
		committed = append(committed, row.Committed)
	}
	assert.Equal(t, []bool{false, false, true}, committed)
}
