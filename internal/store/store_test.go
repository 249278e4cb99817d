package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/model"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_MustExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := OpenWithOptions(path, Options{MustExist: true})
	require.Error(t, err)
	assert.True(t, model.IsCode(err, model.ErrCodeDatabaseNotFound))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	tables := []string{"sec_feed", "sec_filing", "sec_file", "esef_filing", "task_tracker"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}

	// Reference rows are seeded once.
	n, err := s.CountRows(context.Background(), "location")
	require.NoError(t, err)
	ref, err := loadReference()
	require.NoError(t, err)
	assert.Equal(t, int64(len(ref.Locations)), n)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "2"))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := mustTime(t, "2022-01-10T12:00:00Z")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertFeed(ctx, model.Feed{FeedID: 202201, FeedMonth: pub, LastModified: pub}); err != nil {
			return err
		}
		if _, err := tx.InsertFilings(ctx, []model.Filing{testFiling(202201100001, 202201, "A-1", "1", pub)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	for _, table := range []string{"sec_feed", "sec_filing"} {
		n, err := s.CountRows(ctx, table)
		require.NoError(t, err)
		assert.Zero(t, n, "table %s should be empty after rollback", table)
	}
}

func TestInsertFilings_Chunks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := mustTime(t, "2022-01-10T12:00:00Z")

	var filings []model.Filing
	for i := int64(1); i <= 250; i++ {
		filings = append(filings, testFiling(202201100000+i, 202201, fmt.Sprintf("A-%d", i), "1", pub))
	}
	seedFeed(t, s, 202201, filings...)

	n, err := s.CountRows(ctx, "sec_filing")
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	files, err := s.CountRows(ctx, "sec_file")
	require.NoError(t, err)
	assert.Equal(t, int64(250), files)
}

func TestFeedStatesAndKeys(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := mustTime(t, "2022-01-10T12:00:00Z")

	seedFeed(t, s, 202201, testFiling(202201100001, 202201, "A-1", "1", pub))

	states, err := s.FeedStates(ctx)
	require.NoError(t, err)
	require.Contains(t, states, int64(202201))
	assert.True(t, states[202201].Equal(mustTime(t, "2022-01-01T00:00:00Z")))

	maxFeed, ok, err := s.MaxFeedID(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(202201), maxFeed)

	maxFiling, ok, err := s.MaxFilingID(ctx, 202201)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(202201100001), maxFiling)

	_, ok, err = s.MaxFilingID(ctx, 202202)
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.StoredFilingKeys(ctx, 202201)
	require.NoError(t, err)
	assert.Contains(t, keys, testFiling(0, 0, "A-1", "1", pub).Key())
}

func TestDuplicateCandidatesAndMark(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := mustTime(t, "2022-01-10T12:00:00Z")

	seedFeed(t, s, 202201, testFiling(202201100001, 202201, "A-1", "1", pub))
	seedFeed(t, s, 202202, testFiling(202202100001, 202202, "A-1", "1", pub.AddDate(0, 1, 0)))

	candidates, err := s.DuplicateCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, int64(202201100001), candidates[0].MinFilingID)
	assert.Equal(t, int64(202202100001), candidates[0].MaxFilingID)

	var n int64
	err = s.WithTx(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.MarkDuplicates(ctx, []int64{202201100001})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	candidates, err = s.DuplicateCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	var fileDup int
	require.NoError(t, s.db.QueryRow(`SELECT duplicate FROM sec_file WHERE filing_id = ?`, 202201100001).Scan(&fileDup))
	assert.Equal(t, 1, fileDup)
}

func TestFilers_InsertDedupsFormerNames(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	changed := mustTime(t, "2019-05-01T00:00:00Z")

	err := s.InsertFiler(ctx, model.Filer{
		CIK:           "0000000001",
		ConformedName: "ACME HOLDINGS",
		FormerNames: []model.FormerName{
			{Name: "ACME CORP", DateChanged: changed},
			{Name: "ACME CORP", DateChanged: changed},
		},
	})
	require.NoError(t, err)

	names, err := s.FormerNames(ctx, "0000000001")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "ACME CORP", names[0].Name)
	assert.True(t, names[0].DateChanged.Equal(changed))

	added, err := s.UpdateFilerName(ctx, "0000000001", "ACME GLOBAL", []model.FormerName{
		{Name: "ACME CORP", DateChanged: changed},
		{Name: "ACME HOLDINGS", DateChanged: mustTime(t, "2022-02-01T00:00:00Z")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)

	f, ok, err := s.Filer(ctx, "0000000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ACME GLOBAL", f.ConformedName)
	assert.Len(t, f.FormerNames, 2)
}

func TestFilers_UpdateMissing(t *testing.T) {
	s := createTestStore(t)

	_, err := s.UpdateFilerName(context.Background(), "404", "NOPE", nil)
	assert.True(t, model.IsCode(err, model.ErrCodeMissingData))
}

func TestNewFilerCIKsAndEvidence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	pub := mustTime(t, "2022-01-10T12:00:00Z")

	seedFeed(t, s, 202201,
		testFiling(202201100001, 202201, "A-1", "1", pub),
		testFiling(202201100002, 202201, "A-2", "2", pub),
	)
	require.NoError(t, s.InsertFiler(ctx, model.Filer{CIK: "1", ConformedName: "Acme Corp"}))

	ciks, err := s.NewFilerCIKs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ciks)

	evidence, err := s.FilerNameEvidence(ctx)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "Acme Corp", evidence[0].ConformedName)
	assert.Equal(t, "ACME CORP", evidence[0].LatestName)
	assert.False(t, evidence[0].HasNameHistory)
}

func TestLocationCode_ForAlpha2(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	code, err := s.LocationCodeForAlpha2(ctx, "us")
	require.NoError(t, err)
	assert.Equal(t, "X1", code)

	code, err = s.LocationCodeForAlpha2(ctx, "IL")
	require.NoError(t, err)
	assert.Equal(t, "L5", code)

	code, err = s.LocationCodeForAlpha2(ctx, "QQ")
	require.NoError(t, err)
	assert.Equal(t, UnknownLocation, code)

	loc, ok, err := s.Location(ctx, "L5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ISRAEL", loc.Country)
}

func TestIndustries(t *testing.T) {
	s := createTestStore(t)

	industries, err := s.Industries(context.Background(), "SEC")
	require.NoError(t, err)
	require.NotEmpty(t, industries)
	assert.Equal(t, 1, industries[0].Depth)
	assert.Zero(t, industries[0].ParentID)
}

func TestReplaceTickerMappings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	n, err := s.ReplaceTickerMappings(ctx, []model.TickerMapping{
		{CIK: "0000320193", TickerSymbol: "AAPL", CompanyName: "Apple Inc.", Exchange: "Nasdaq"},
		{CIK: "0000320193", TickerSymbol: "AAPL", CompanyName: "Apple Inc.", Exchange: "Nasdaq"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.ReplaceTickerMappings(ctx, []model.TickerMapping{
		{CIK: "0000789019", TickerSymbol: "MSFT"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.CountRows(ctx, "sec_cik_ticker_mapping")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCountRows_UnknownTable(t *testing.T) {
	s := createTestStore(t)

	_, err := s.CountRows(context.Background(), "sqlite_master; DROP TABLE sec_feed")
	assert.Error(t, err)
}
