package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/filingindex/internal/model"
)

// filingInsertChunk bounds the number of rows per multi-row INSERT.
const filingInsertChunk = 100

// FeedStates returns the stored last-modified stamp of every feed.
func (s *Store) FeedStates(ctx context.Context) (map[int64]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feed_id, last_modified_date FROM sec_feed ORDER BY feed_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query feed states: %w", err)
	}
	defer rows.Close()

	states := make(map[int64]time.Time)
	for rows.Next() {
		var id int64
		var lastMod time.Time
		if err := rows.Scan(&id, &lastMod); err != nil {
			return nil, fmt.Errorf("scan feed state: %w", err)
		}
		states[id] = lastMod.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed states: %w", err)
	}
	return states, nil
}

// MaxFeedID returns the most recent stored feed id.
func (s *Store) MaxFeedID(ctx context.Context) (int64, bool, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(feed_id) FROM sec_feed`).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("max feed id: %w", err)
	}
	return id.Int64, id.Valid, nil
}

// MaxFilingID returns the highest filing id stored for a feed.
func (s *Store) MaxFilingID(ctx context.Context, feedID int64) (int64, bool, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(filing_id) FROM sec_filing WHERE feed_id = ?`, feedID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("max filing id: %w", err)
	}
	return id.Int64, id.Valid, nil
}

// StoredFilingKeys returns the comparison tuples of every filing stored
// under a feed.
func (s *Store) StoredFilingKeys(ctx context.Context, feedID int64) (map[model.FilingKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT accession_number, enclosure_url, acceptance_datetime, pub_date, cik_number
		FROM sec_filing
		WHERE feed_id = ?
		ORDER BY filing_id ASC
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("query filing keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[model.FilingKey]struct{})
	for rows.Next() {
		var f model.Filing
		var enclosure sql.NullString
		var accepted, pub sql.NullTime
		if err := rows.Scan(&f.AccessionNumber, &enclosure, &accepted, &pub, &f.CIK); err != nil {
			return nil, fmt.Errorf("scan filing key: %w", err)
		}
		f.EnclosureURL = enclosure.String
		f.AcceptanceDatetime = timeOf(accepted)
		f.PubDate = timeOf(pub)
		keys[f.Key()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filing keys: %w", err)
	}
	return keys, nil
}

// FilingsByAccession returns every stored filing with the given natural
// key ordered by filing id.
func (s *Store) FilingsByAccession(ctx context.Context, accession string) ([]model.Filing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filing_id, feed_id, cik_number, accession_number, company_name, form_type,
		       pub_date, acceptance_datetime, duplicate
		FROM sec_filing
		WHERE accession_number = ?
		ORDER BY filing_id ASC
	`, accession)
	if err != nil {
		return nil, fmt.Errorf("query filings: %w", err)
	}
	defer rows.Close()

	filings := []model.Filing{}
	for rows.Next() {
		var f model.Filing
		var name, form sql.NullString
		var pub, accepted sql.NullTime
		if err := rows.Scan(&f.FilingID, &f.FeedID, &f.CIK, &f.AccessionNumber, &name, &form,
			&pub, &accepted, &f.Duplicate); err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		f.CompanyName = name.String
		f.FormType = form.String
		f.PubDate = timeOf(pub)
		f.AcceptanceDatetime = timeOf(accepted)
		filings = append(filings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filings: %w", err)
	}
	return filings, nil
}

// UpsertFeed inserts a feed row or replaces the stored one.
func (tx *Tx) UpsertFeed(ctx context.Context, f model.Feed) (int64, error) {
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO sec_feed
		(feed_id, feed_month, title, link, feed_link, description, language, pub_date,
		 last_build_date, included_filings_count, included_files_count, last_modified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id) DO UPDATE SET
			feed_month = excluded.feed_month,
			title = excluded.title,
			link = excluded.link,
			feed_link = excluded.feed_link,
			description = excluded.description,
			language = excluded.language,
			pub_date = excluded.pub_date,
			last_build_date = excluded.last_build_date,
			included_filings_count = excluded.included_filings_count,
			included_files_count = excluded.included_files_count,
			last_modified_date = excluded.last_modified_date
	`,
		f.FeedID, dbDate(f.FeedMonth), dbText(f.Title), dbText(f.Link), dbText(f.FeedLink),
		dbText(f.Description), dbText(f.Language), dbTime(f.PubDate), dbTime(f.LastBuildDate),
		f.IncludedFilingsCount, f.IncludedFilesCount, dbTime(f.LastModified),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert feed %d: %w", f.FeedID, err)
	}
	return res.RowsAffected()
}

const filingColumns = 22

// InsertFilings bulk-inserts filings in chunks and returns the row count.
func (tx *Tx) InsertFilings(ctx context.Context, filings []model.Filing) (int64, error) {
	var total int64
	for start := 0; start < len(filings); start += filingInsertChunk {
		end := min(start+filingInsertChunk, len(filings))
		chunk := filings[start:end]

		args := make([]any, 0, len(chunk)*filingColumns)
		for _, f := range chunk {
			args = append(args,
				f.FilingID, f.FeedID, dbText(f.FilingLink), dbText(f.Title), dbText(f.Description),
				dbText(f.EntryPoint), dbText(f.EnclosureURL), f.EnclosureSize, dbTime(f.PubDate),
				dbText(f.CompanyName), dbText(f.FormType), boolInt(f.InlineXBRL), dbDate(f.FilingDate),
				f.CIK, f.AccessionNumber, dbText(f.FileNumber), dbTime(f.AcceptanceDatetime),
				dbDate(f.Period), f.AssignedSIC, dbText(f.AssistantDirector), dbText(f.FiscalYearEnd),
				boolInt(f.Duplicate),
			)
		}

		res, err := tx.tx.ExecContext(ctx, `
			INSERT INTO sec_filing
			(filing_id, feed_id, filing_link, title, description, entry_point, enclosure_url,
			 enclosure_size, pub_date, company_name, form_type, inline_xbrl, filing_date,
			 cik_number, accession_number, file_number, acceptance_datetime, period,
			 assigned_sic, assistant_director, fiscal_year_end, duplicate)
			VALUES `+placeholders(len(chunk), filingColumns), args...)
		if err != nil {
			return total, fmt.Errorf("insert filings: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("insert filings: rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

const fileColumns = 13

// InsertFiles bulk-inserts file rows in chunks and returns the row count.
func (tx *Tx) InsertFiles(ctx context.Context, files []model.File) (int64, error) {
	var total int64
	for start := 0; start < len(files); start += filingInsertChunk {
		end := min(start+filingInsertChunk, len(files))
		chunk := files[start:end]

		args := make([]any, 0, len(chunk)*fileColumns)
		for _, f := range chunk {
			args = append(args,
				f.FileID, f.FilingID, f.FeedID, f.AccessionNumber, f.Sequence, dbText(f.File),
				dbText(f.Type), f.Size, dbText(f.Description), boolInt(f.InlineXBRL), dbText(f.URL),
				dbText(f.TypeTag), boolInt(f.Duplicate),
			)
		}

		res, err := tx.tx.ExecContext(ctx, `
			INSERT INTO sec_file
			(file_id, filing_id, feed_id, accession_number, sequence, file, type, size,
			 description, inline_xbrl, url, type_tag, duplicate)
			VALUES `+placeholders(len(chunk), fileColumns), args...)
		if err != nil {
			return total, fmt.Errorf("insert files: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("insert files: rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// placeholders renders "(?, ?), (?, ?)" for rows x cols parameters.
func placeholders(rows, cols int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = row
	}
	return strings.Join(parts, ", ")
}
