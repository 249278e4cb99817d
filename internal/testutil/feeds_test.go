package testutil

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSSFeed(t *testing.T) {
	pub := time.Date(2022, 1, 3, 10, 0, 0, 0, time.UTC)
	doc := string(RSSFeed(pub, FeedItem{Accession: "0001-22-000001", CIK: "0000000001", Pub: pub, Files: 2}))
	assert.Contains(t, doc, "<edgar:accessionNumber>0001-22-000001</edgar:accessionNumber>")
	assert.Contains(t, doc, "<edgar:acceptanceDatetime>20220103100000</edgar:acceptanceDatetime>")
	assert.Equal(t, 2, strings.Count(doc, "<edgar:xbrlFile "))
}

func TestMemLoader(t *testing.T) {
	ctx := context.Background()
	l := NewMemLoader()
	l.Set("a", []byte("x"))

	data, err := l.FetchFile(ctx, "a", false)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	boom := errors.New("boom")
	l.Fail("a", boom)
	_, err = l.Fetch(ctx, "a")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, l.Loads("a"))

	_, err = l.Fetch(ctx, "missing")
	assert.Error(t, err)
}
