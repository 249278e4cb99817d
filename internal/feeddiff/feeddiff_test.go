package feeddiff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/fetch"
	"github.com/roach88/filingindex/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func listing() []fetch.Entry {
	return []fetch.Entry{
		{FeedID: 202201, FeedDate: day(2022, 1, 31), LastModified: day(2022, 2, 1)},
		{FeedID: 202202, FeedDate: day(2022, 2, 28), LastModified: day(2022, 3, 1)},
		{FeedID: 202203, FeedDate: day(2022, 3, 31), LastModified: day(2022, 4, 1)},
		{FeedID: 202204, FeedDate: day(2022, 4, 12), LastModified: day(2022, 4, 12), IsLastMonth: true},
	}
}

func TestClassify(t *testing.T) {
	entries := listing()
	// Listing order must not matter.
	entries[0], entries[3] = entries[3], entries[0]

	stored := map[int64]time.Time{
		202201: day(2022, 2, 1),
		202202: day(2022, 2, 20),
		202204: day(2022, 4, 12),
	}
	got := Classify(entries, stored)
	require.Len(t, got, 4)

	statuses := map[int64]Status{}
	var ids []int64
	for _, c := range got {
		statuses[c.FeedID] = c.Status
		ids = append(ids, c.FeedID)
	}
	assert.Equal(t, []int64{202201, 202202, 202203, 202204}, ids)
	assert.Equal(t, Unchanged, statuses[202201])
	assert.Equal(t, Modified, statuses[202202])
	assert.Equal(t, New, statuses[202203])
	assert.Equal(t, Unchanged, statuses[202204], "equal stamps are not modified")

	changed := Changed(got)
	require.Len(t, changed, 2)
	assert.Equal(t, int64(202202), changed[0].FeedID)
	assert.Equal(t, "new", changed[1].Status.String())
}

func TestFilterByDate_Open(t *testing.T) {
	got, err := FilterByDate(listing(), time.Time{}, time.Time{}, true)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestFilterByDate_ExpandsToMonthEnd(t *testing.T) {
	got, err := FilterByDate(listing(), day(2022, 2, 1), day(2022, 3, 1), false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(202202), got[0].FeedID)
	assert.Equal(t, int64(202203), got[1].FeedID)
}

func TestFilterByDate_KeepLast(t *testing.T) {
	got, err := FilterByDate(listing(), day(2022, 1, 1), day(2022, 1, 15), true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(202201), got[0].FeedID)
	assert.Equal(t, int64(202204), got[1].FeedID)
	assert.True(t, got[1].IsLastMonth)

	// The last entry is not added twice when it is already in range.
	got, err = FilterByDate(listing(), day(2022, 4, 1), time.Time{}, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFilterByDate_BadRange(t *testing.T) {
	_, err := FilterByDate(listing(), day(2022, 5, 1), day(2022, 3, 1), true)
	require.Error(t, err)
	assert.True(t, model.IsCode(err, model.ErrCodeBadDateRange))

	// from in the same month as to is valid once to is widened.
	_, err = FilterByDate(listing(), day(2022, 3, 20), day(2022, 3, 1), true)
	assert.NoError(t, err)
}
