package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/filingindex/internal/model"
)

// NewFilerCIKs returns the CIKs that appear on filings but have no filer row.
func (s *Store) NewFilerCIKs(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "new filer ciks", `
		SELECT DISTINCT g.cik_number
		FROM sec_filing g
		LEFT JOIN sec_filer f ON f.cik_number = g.cik_number
		WHERE f.cik_number IS NULL
		ORDER BY g.cik_number COLLATE BINARY ASC
	`)
}

// NameEvidence pairs a stored filer with the freshest filing reported for it.
type NameEvidence struct {
	CIK            string
	ConformedName  string
	LatestName     string
	LatestPubDate  time.Time
	LastNameChange time.Time
	HasNameHistory bool
}

// FilerNameEvidence returns, for every stored filer, the company name and
// publication date of its most recent filing (highest filing id) and its
// latest recorded name change.
func (s *Store) FilerNameEvidence(ctx context.Context) ([]NameEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH latest AS (
			SELECT cik_number, MAX(filing_id) AS filing_id
			FROM sec_filing
			GROUP BY cik_number
		)
		SELECT f.cik_number, f.conformed_name, g.company_name, g.pub_date
		FROM sec_filer f
		JOIN latest l ON l.cik_number = f.cik_number
		JOIN sec_filing g ON g.filing_id = l.filing_id
		ORDER BY f.cik_number COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query name evidence: %w", err)
	}
	defer rows.Close()

	evidence := []NameEvidence{}
	for rows.Next() {
		var e NameEvidence
		var conformed, latest sql.NullString
		var pub sql.NullTime
		if err := rows.Scan(&e.CIK, &conformed, &latest, &pub); err != nil {
			return nil, fmt.Errorf("scan name evidence: %w", err)
		}
		e.ConformedName = conformed.String
		e.LatestName = latest.String
		e.LatestPubDate = timeOf(pub)
		evidence = append(evidence, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate name evidence: %w", err)
	}
	rows.Close()

	changes, err := s.lastNameChanges(ctx)
	if err != nil {
		return nil, err
	}
	for i := range evidence {
		if t, ok := changes[evidence[i].CIK]; ok {
			evidence[i].LastNameChange = t
			evidence[i].HasNameHistory = true
		}
	}
	return evidence, nil
}

func (s *Store) lastNameChanges(ctx context.Context) (map[string]time.Time, error) {
	// date_changed keeps its DATE declared type only when selected directly.
	rows, err := s.db.QueryContext(ctx, `
		SELECT cik_number, date_changed FROM sec_former_names
		ORDER BY cik_number COLLATE BINARY ASC, date_changed ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query name changes: %w", err)
	}
	defer rows.Close()

	changes := make(map[string]time.Time)
	for rows.Next() {
		var cik string
		var changed time.Time
		if err := rows.Scan(&cik, &changed); err != nil {
			return nil, fmt.Errorf("scan name change: %w", err)
		}
		changes[cik] = changed.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate name changes: %w", err)
	}
	return changes, nil
}

// Filer returns a stored filer with its former names.
func (s *Store) Filer(ctx context.Context, cik string) (model.Filer, bool, error) {
	var f model.Filer
	var name, indDesc, inc, ms, mc, mz, bs, bc, bz, loc, country sql.NullString
	var ind sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT cik_number, conformed_name, industry_code, industry_description,
		       state_of_incorporation, mailing_state, mailing_city, mailing_zip,
		       business_state, business_city, business_zip, location_code, country
		FROM sec_filer WHERE cik_number = ?
	`, cik).Scan(&f.CIK, &name, &ind, &indDesc, &inc, &ms, &mc, &mz, &bs, &bc, &bz, &loc, &country)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Filer{}, false, nil
	}
	if err != nil {
		return model.Filer{}, false, fmt.Errorf("read filer %s: %w", cik, err)
	}
	f.ConformedName = name.String
	f.IndustryCode = int(ind.Int64)
	f.IndustryDescription = indDesc.String
	f.StateOfIncorporation = inc.String
	f.MailingState, f.MailingCity, f.MailingZip = ms.String, mc.String, mz.String
	f.BusinessState, f.BusinessCity, f.BusinessZip = bs.String, bc.String, bz.String
	f.LocationCode = loc.String
	f.Country = country.String

	names, err := s.FormerNames(ctx, cik)
	if err != nil {
		return model.Filer{}, false, err
	}
	f.FormerNames = names
	return f, true, nil
}

// FormerNames returns a filer's name history ordered by change date.
func (s *Store) FormerNames(ctx context.Context, cik string) ([]model.FormerName, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cik_number, name, date_changed
		FROM sec_former_names
		WHERE cik_number = ?
		ORDER BY date_changed ASC, name COLLATE BINARY ASC
	`, cik)
	if err != nil {
		return nil, fmt.Errorf("query former names: %w", err)
	}
	defer rows.Close()

	names := []model.FormerName{}
	for rows.Next() {
		var n model.FormerName
		if err := rows.Scan(&n.CIK, &n.Name, &n.DateChanged); err != nil {
			return nil, fmt.Errorf("scan former name: %w", err)
		}
		n.DateChanged = n.DateChanged.UTC()
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate former names: %w", err)
	}
	return names, nil
}

// InsertFiler inserts a filer and its former names in one transaction.
// Former names repeating a stored (date, name) pair are skipped.
func (s *Store) InsertFiler(ctx context.Context, f model.Filer) error {
	if f.CIK == "" {
		return model.Errorf(model.ErrCodeMissingData, "filer has no cik")
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO sec_filer
			(cik_number, conformed_name, industry_code, industry_description,
			 state_of_incorporation, mailing_state, mailing_city, mailing_zip,
			 business_state, business_city, business_zip, location_code, country)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.CIK, dbText(f.ConformedName), f.IndustryCode, dbText(f.IndustryDescription),
			dbText(f.StateOfIncorporation), dbText(f.MailingState), dbText(f.MailingCity),
			dbText(f.MailingZip), dbText(f.BusinessState), dbText(f.BusinessCity),
			dbText(f.BusinessZip), dbText(f.LocationCode), dbText(f.Country))
		if err != nil {
			return fmt.Errorf("insert filer %s: %w", f.CIK, err)
		}
		_, err = tx.insertFormerNames(ctx, f.CIK, f.FormerNames)
		return err
	})
}

// UpdateFilerName overwrites a filer's canonical name and appends the
// former names not already recorded. Returns the number of names added.
func (s *Store) UpdateFilerName(ctx context.Context, cik, name string, former []model.FormerName) (int64, error) {
	var added int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `
			UPDATE sec_filer SET conformed_name = ? WHERE cik_number = ?
		`, name, cik)
		if err != nil {
			return fmt.Errorf("update filer %s: %w", cik, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.Errorf(model.ErrCodeMissingData, "filer %s not found", cik)
		}
		added, err = tx.insertFormerNames(ctx, cik, former)
		return err
	})
	return added, err
}

func (tx *Tx) insertFormerNames(ctx context.Context, cik string, names []model.FormerName) (int64, error) {
	var added int64
	for _, n := range names {
		res, err := tx.tx.ExecContext(ctx, `
			INSERT INTO sec_former_names (cik_number, date_changed, name)
			VALUES (?, ?, ?)
			ON CONFLICT(cik_number, date_changed, name) DO NOTHING
		`, cik, dbDate(n.DateChanged), n.Name)
		if err != nil {
			return added, fmt.Errorf("insert former name %s: %w", cik, err)
		}
		k, _ := res.RowsAffected()
		added += k
	}
	return added, nil
}

// ReplaceTickerMappings swaps the whole CIK ticker mapping table.
func (s *Store) ReplaceTickerMappings(ctx context.Context, mappings []model.TickerMapping) (int64, error) {
	var inserted int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM sec_cik_ticker_mapping`); err != nil {
			return fmt.Errorf("clear ticker mappings: %w", err)
		}
		for _, m := range mappings {
			res, err := tx.tx.ExecContext(ctx, `
				INSERT INTO sec_cik_ticker_mapping (cik_number, ticker_symbol, company_name, exchange)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(cik_number, ticker_symbol) DO NOTHING
			`, m.CIK, m.TickerSymbol, dbText(m.CompanyName), dbText(m.Exchange))
			if err != nil {
				return fmt.Errorf("insert ticker mapping %s: %w", m.TickerSymbol, err)
			}
			n, _ := res.RowsAffected()
			inserted += n
		}
		return nil
	})
	return inserted, err
}

func (s *Store) queryStrings(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}
