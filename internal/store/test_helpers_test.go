package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/model"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

// seedFeed writes a feed and its filings in one transaction.
func seedFeed(t *testing.T, s *Store, feedID int64, filings ...model.Filing) {
	t.Helper()
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.UpsertFeed(ctx, model.Feed{
			FeedID:       feedID,
			FeedMonth:    time.Date(int(feedID/100), time.Month(feedID%100), 1, 0, 0, 0, 0, time.UTC),
			LastModified: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			return err
		}
		if _, err := tx.InsertFilings(ctx, filings); err != nil {
			return err
		}
		var files []model.File
		for _, f := range filings {
			files = append(files, f.Files...)
		}
		_, err := tx.InsertFiles(ctx, files)
		return err
	})
	require.NoError(t, err)
}

func testFiling(id, feedID int64, accession, cik string, pub time.Time) model.Filing {
	return model.Filing{
		FilingID:           id,
		FeedID:             feedID,
		AccessionNumber:    accession,
		CIK:                cik,
		CompanyName:        "ACME CORP",
		FormType:           "10-K",
		PubDate:            pub,
		AcceptanceDatetime: pub,
		EnclosureURL:       "https://example.test/" + accession + ".zip",
		Files: []model.File{{
			FileID:          id*1000 + 1,
			FilingID:        id,
			FeedID:          feedID,
			AccessionNumber: accession,
			Sequence:        1,
			File:            "doc.htm",
			TypeTag:         "INS",
		}},
	}
}
