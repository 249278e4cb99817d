package store

import (
	"context"
	"fmt"
)

// DuplicateCandidate is one untagged filing whose natural key is shared by
// another untagged filing.
type DuplicateCandidate struct {
	FilingID        int64
	AccessionNumber string
	MinFilingID     int64
	MaxFilingID     int64
}

// DuplicateCandidates lists the rows of v_duplicate_filing.
func (s *Store) DuplicateCandidates(ctx context.Context) ([]DuplicateCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filing_id, accession_number, min_filing_id, max_filing_id
		FROM v_duplicate_filing
		ORDER BY accession_number COLLATE BINARY ASC, filing_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query duplicate candidates: %w", err)
	}
	defer rows.Close()

	candidates := []DuplicateCandidate{}
	for rows.Next() {
		var c DuplicateCandidate
		if err := rows.Scan(&c.FilingID, &c.AccessionNumber, &c.MinFilingID, &c.MaxFilingID); err != nil {
			return nil, fmt.Errorf("scan duplicate candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate candidates: %w", err)
	}
	return candidates, nil
}

// MarkDuplicates sets duplicate = 1 on the given filings and their files.
// Returns the number of filing rows changed.
func (tx *Tx) MarkDuplicates(ctx context.Context, filingIDs []int64) (int64, error) {
	if len(filingIDs) == 0 {
		return 0, nil
	}
	var total int64
	for start := 0; start < len(filingIDs); start += filingInsertChunk {
		end := min(start+filingInsertChunk, len(filingIDs))
		chunk := filingIDs[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		in := placeholders(1, len(chunk))

		res, err := tx.tx.ExecContext(ctx, `
			UPDATE sec_filing SET duplicate = 1 WHERE duplicate = 0 AND filing_id IN `+in, args...)
		if err != nil {
			return total, fmt.Errorf("mark duplicate filings: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("mark duplicate filings: rows affected: %w", err)
		}
		total += n

		if _, err := tx.tx.ExecContext(ctx, `
			UPDATE sec_file SET duplicate = 1 WHERE filing_id IN `+in, args...); err != nil {
			return total, fmt.Errorf("mark duplicate files: %w", err)
		}
	}
	return total, nil
}
