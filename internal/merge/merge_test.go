package merge

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/telemetry"
	"github.com/roach88/filingindex/internal/testutil"
)

const (
	feed1URI  = "https://example.test/xbrlrss-2022-01.xml"
	feed2URI  = "https://example.test/xbrlrss-2022-02.xml"
	latestURI = "https://example.test/usgaap.rss.xml"
)

type fixture struct {
	st       *store.Store
	loader   *testutil.MemLoader
	recorder *telemetry.Recorder
	merger   *Merger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	loader := testutil.NewMemLoader()
	rec := telemetry.NewRecorder("run-0001", nil, nil)
	return &fixture{st: st, loader: loader, recorder: rec, merger: New(st, loader, rec, nil)}
}

func at(day, hour int) time.Time {
	return time.Date(2022, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestMerge_NewFeed(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	// Document order differs from publication order.
	fx.loader.Set(feed1URI, testutil.RSSFeed(at(31, 22),
		testutil.FeedItem{Accession: "B-22-2", CIK: "0000000002", Pub: at(5, 9), Files: 2},
		testutil.FeedItem{Accession: "A-22-1", CIK: "0000000001", Pub: at(3, 9)},
	))

	res, err := fx.merger.Merge(ctx, Source{
		URI: feed1URI, FeedID: 202201,
		FeedDate: time.Date(2022, 1, 31, 0, 0, 0, 0, time.UTC), LastModified: at(31, 23),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(202201100001), res.FirstFilingID)
	assert.Equal(t, 2, res.NewOrChanged)
	assert.Equal(t, int64(2), res.FilingsInserted)
	assert.Equal(t, int64(3), res.FilesInserted)

	a, err := fx.st.FilingsByAccession(ctx, "A-22-1")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, int64(202201100001), a[0].FilingID)
	b, err := fx.st.FilingsByAccession(ctx, "B-22-2")
	require.NoError(t, err)
	assert.Equal(t, int64(202201100002), b[0].FilingID)

	var fileIDs []int64
	rows, err := fx.st.DB().QueryContext(ctx, `SELECT file_id FROM sec_file ORDER BY file_id`)
	require.NoError(t, err)
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		fileIDs = append(fileIDs, id)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []int64{202201100001001, 202201100002001, 202201100002002}, fileIDs)

	states, err := fx.st.FeedStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, at(31, 23), states[202201])

	require.NoError(t, fx.recorder.Flush(ctx, fx.st))
	stats, err := fx.st.ProcessingStats(ctx, "run-0001")
	require.NoError(t, err)
	require.Len(t, stats, 4)
	assert.Equal(t, "sec_feed", stats[0].Table)
	assert.Equal(t, "insert", stats[0].Action)
	assert.Equal(t, int64(2), stats[1].RowCount)
	assert.Equal(t, telemetry.CommitAction, stats[3].Action)
	for _, s := range stats {
		assert.True(t, s.Committed)
		assert.Equal(t, "202201", s.Unit)
	}
}

func TestMerge_ModifiedFeedInsertsOnlyChanges(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	first := testutil.FeedItem{Accession: "A-22-1", CIK: "0000000001", Pub: at(3, 9)}
	fx.loader.Set(feed1URI, testutil.RSSFeed(at(10, 0), first))
	_, err := fx.merger.Merge(ctx, Source{URI: feed1URI, FeedID: 202201, LastModified: at(10, 0)})
	require.NoError(t, err)

	// Month end: one new item, one resubmission of A with a later acceptance.
	resubmitted := first
	resubmitted.Accepted = at(3, 12)
	fx.loader.Set(feed1URI, testutil.RSSFeed(at(31, 0),
		first,
		testutil.FeedItem{Accession: "C-22-3", CIK: "0000000003", Pub: at(20, 9)},
		resubmitted,
	))
	res, err := fx.merger.Merge(ctx, Source{URI: feed1URI, FeedID: 202201, Modified: true, LastModified: at(31, 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(202201100002), res.FirstFilingID)
	// Both A rows share the accession of a changed tuple.
	assert.Equal(t, 3, res.NewOrChanged)

	a, err := fx.st.FilingsByAccession(ctx, "A-22-1")
	require.NoError(t, err)
	assert.Len(t, a, 3)
	c, err := fx.st.FilingsByAccession(ctx, "C-22-3")
	require.NoError(t, err)
	assert.Equal(t, int64(202201100004), c[0].FilingID)

	// A rerun with nothing new inserts nothing.
	res, err = fx.merger.Merge(ctx, Source{URI: feed1URI, FeedID: 202201, Modified: true, LastModified: at(31, 2)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewOrChanged)
}

func TestMerge_LatestComparesAgainstMostRecentFeed(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.merger.Merge(ctx, Source{URI: latestURI, Latest: true})
	require.Error(t, err)
	fx.loader.Set(latestURI, testutil.RSSFeed(at(31, 0)))
	_, err = fx.merger.Merge(ctx, Source{URI: latestURI, Latest: true})
	assert.True(t, model.IsCode(err, model.ErrCodeMissingData))

	fx.loader.Set(feed1URI, testutil.RSSFeed(at(20, 0), testutil.FeedItem{Accession: "A-22-1", CIK: "0000000001", Pub: at(3, 9)}))
	_, err = fx.merger.Merge(ctx, Source{URI: feed1URI, FeedID: 202201, LastModified: at(20, 0)})
	require.NoError(t, err)

	fx.loader.Set(latestURI, testutil.RSSFeed(at(31, 0),
		testutil.FeedItem{Accession: "A-22-1", CIK: "0000000001", Pub: at(3, 9)},
		testutil.FeedItem{Accession: "D-22-4", CIK: "0000000004", Pub: at(30, 9)},
	))
	res, err := fx.merger.Merge(ctx, Source{URI: latestURI, Latest: true, Reload: true})
	require.NoError(t, err)
	assert.True(t, res.Latest)
	assert.Equal(t, int64(202201), res.FeedID)
	assert.Equal(t, 1, res.NewOrChanged)

	d, err := fx.st.FilingsByAccession(ctx, "D-22-4")
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, int64(202201100002), d[0].FilingID)

	n, err := fx.st.CountRows(ctx, "sec_feed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "latest pseudo-feed is never stored as a feed")
}

func TestMerge_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.loader.Set(feed1URI, testutil.RSSFeed(at(20, 0), testutil.FeedItem{Accession: "A-22-1", CIK: "0000000001", Pub: at(3, 9)}))
	_, err := fx.merger.Merge(ctx, Source{URI: feed1URI, FeedID: 202201, LastModified: at(20, 0)})
	require.NoError(t, err)

	// Treating the stored feed as new collides on the first surrogate id.
	fx.loader.Set(feed1URI, testutil.RSSFeed(at(31, 0),
		testutil.FeedItem{Accession: "Z-22-9", CIK: "0000000009", Pub: at(1, 9)},
	))
	_, err = fx.merger.Merge(ctx, Source{URI: feed1URI, FeedID: 202201, LastModified: at(31, 0)})
	require.Error(t, err)

	states, err := fx.st.FeedStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, at(20, 0), states[202201], "feed upsert rolled back")
	z, err := fx.st.FilingsByAccession(ctx, "Z-22-9")
	require.NoError(t, err)
	assert.Empty(t, z)

	rows := fx.recorder.Rows()
	last := rows[len(rows)-1]
	assert.Equal(t, "sec_filing", last.Table)
	assert.False(t, last.Committed)
	firstCommit := slices.IndexFunc(rows, func(r store.ProcessingStat) bool { return r.Action == telemetry.CommitAction })
	require.GreaterOrEqual(t, firstCommit, 0)
	failed := len(rows)

	// A later successful attempt of the same feed commits only its own rows.
	_, err = fx.merger.Merge(ctx, Source{URI: feed1URI, FeedID: 202201, LastModified: at(31, 0), Modified: true, Reload: true})
	require.NoError(t, err)
	rows = fx.recorder.Rows()
	require.Greater(t, len(rows), failed)
	for i, r := range rows {
		want := i <= firstCommit || i >= failed
		assert.Equal(t, want, r.Committed, "row %d %s/%s", i, r.Table, r.Action)
	}
}

func TestMerge_CancelledContext(t *testing.T) {
	fx := newFixture(t)
	fx.loader.Set(feed2URI, testutil.RSSFeed(at(20, 0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.merger.Merge(ctx, Source{URI: feed2URI, FeedID: 202202})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOrChanged(t *testing.T) {
	a := model.Filing{AccessionNumber: "A", CIK: "1", PubDate: at(2, 0)}
	b := model.Filing{AccessionNumber: "B", CIK: "2", PubDate: at(1, 0)}
	a2 := a
	a2.AcceptanceDatetime = at(2, 5)

	stored := map[model.FilingKey]struct{}{a.Key(): {}, b.Key(): {}}
	assert.Empty(t, NewOrChanged([]model.Filing{a, b}, stored))

	got := NewOrChanged([]model.Filing{a, b, a2}, stored)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].AccessionNumber)
	assert.Equal(t, "A", got[1].AccessionNumber)

	got = NewOrChanged([]model.Filing{a, b}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].AccessionNumber, "sorted by publication date")
}

func TestAssignIDs(t *testing.T) {
	items := []model.Filing{
		{AccessionNumber: "late", PubDate: at(9, 0), Files: []model.File{{Sequence: 1}, {Sequence: 7}}},
		{AccessionNumber: "early", PubDate: at(1, 0)},
	}
	got := AssignIDs(items, 202201, InitialFilingID(202201))
	assert.Equal(t, int64(202201100001), got[0].FilingID)
	assert.Equal(t, "early", got[0].AccessionNumber)
	assert.Equal(t, int64(202201100002007), got[1].Files[1].FileID)
	assert.Equal(t, int64(202201), got[1].Files[0].FeedID)
	assert.Zero(t, items[0].FilingID, "input is not modified")
	assert.Zero(t, items[0].Files[0].FileID)
}

func TestFeedIDOf(t *testing.T) {
	assert.Equal(t, int64(202212), FeedIDOf(time.Date(2022, 12, 31, 23, 0, 0, 0, time.UTC)))
}
