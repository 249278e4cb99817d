package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monthlyPage = `<html><body><table>
<tr><th>Name</th><th>Size</th><th>Last Modified</th></tr>
<tr><td><a href="../">Parent Directory</a></td><td></td><td></td></tr>
<tr><td><a href="xbrlrss-2024-02.xml">xbrlrss-2024-02.xml</a></td><td>1 MB</td><td>02/10/2024 06:01:02 AM</td></tr>
<tr><td><a href="xbrlrss-2023-12.xml">xbrlrss-2023-12.xml</a></td><td>9 MB</td><td>2024-01-01 05:00:00</td></tr>
<tr><td><a href="xbrlrss-2024-01.xml">xbrlrss-2024-01.xml</a></td><td>9 MB</td><td>2024-02-01 05:00:00</td></tr>
<tr><td><a href="index.json">index.json</a></td><td>1 KB</td><td>2024-02-01 05:00:00</td></tr>
</table></body></html>`

func TestList_HTMLListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(monthlyPage))
	}))
	defer srv.Close()

	entries, err := newClient(t, false).List(context.Background(), srv.URL+"/Archives/edgar/monthly/")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, int64(202312), entries[0].FeedID)
	assert.Equal(t, int64(202401), entries[1].FeedID)
	assert.Equal(t, int64(202402), entries[2].FeedID)
	assert.False(t, entries[1].IsLastMonth)
	assert.True(t, entries[2].IsLastMonth)

	assert.Equal(t, srv.URL+"/Archives/edgar/monthly/xbrlrss-2024-01.xml", entries[1].URI)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), entries[1].FeedDate)
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), entries[2].FeedDate, "future month end is capped at today")
	assert.Equal(t, time.Date(2024, 2, 10, 6, 1, 2, 0, time.UTC), entries[2].LastModified)
}

func TestList_FileDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"xbrlrss-2022-01.xml", "xbrlrss-2022-02_1.xml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("<rss/>"), 0o644))
	}

	entries, err := newClient(t, false).List(context.Background(), "file://"+dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(202201), entries[0].FeedID)
	assert.Equal(t, int64(202202), entries[1].FeedID)
	assert.True(t, entries[1].IsLastMonth)
}

func TestFeedDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), FeedDate(2024, time.February, now.AddDate(0, 2, 0)))
	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), FeedDate(2024, time.February, now))
}
