package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/filingindex/internal/model"
)

// CatalogKeys returns every stored catalog filing key.
func (s *Store) CatalogKeys(ctx context.Context) (map[string]struct{}, error) {
	keys, err := s.queryStrings(ctx, "catalog keys", `
		SELECT filing_key FROM esef_filing ORDER BY filing_key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, err
	}
	return toSet(keys), nil
}

// EntityLEIs returns every stored entity LEI.
func (s *Store) EntityLEIs(ctx context.Context) (map[string]struct{}, error) {
	leis, err := s.queryStrings(ctx, "entity leis", `
		SELECT entity_lei FROM esef_entity ORDER BY entity_lei COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, err
	}
	return toSet(leis), nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// InsertCatalogFiling writes a catalog filing with its errors, declared
// languages and inferred languages as one atomic unit.
func (s *Store) InsertCatalogFiling(ctx context.Context, f model.CatalogFiling) (int64, error) {
	if f.FilingKey == "" {
		return 0, model.Errorf(model.ErrCodeMissingData, "catalog filing has no key")
	}
	filingType := f.FilingType
	if filingType == "" {
		filingType = "AFR"
	}

	var id int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `
			INSERT INTO esef_filing
			(filing_key, filing_root, filing_number, entity_lei, country, filing_system,
			 filing_type, date_added, report_date, xbrl_json_instance, report_package,
			 report_document, viewer_document, is_loadable, load_error, is_amended_hint,
			 other_langs_hint)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.FilingKey, f.FilingRoot, f.FilingNumber, dbText(f.EntityLEI), dbText(f.Country),
			dbText(f.FilingSystem), filingType, dbDate(f.DateAdded), dbDate(f.ReportDate),
			dbText(f.XBRLJSONInstance), dbText(f.ReportPackage), dbText(f.ReportDocument),
			dbText(f.ViewerDocument), boolInt(f.IsLoadable), dbText(f.LoadError),
			boolInt(f.IsAmendedHint), boolInt(f.OtherLangsHint))
		if err != nil {
			return fmt.Errorf("insert catalog filing %s: %w", f.FilingKey, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert catalog filing %s: last insert id: %w", f.FilingKey, err)
		}

		for _, e := range f.Errors {
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO esef_filing_error (filing_id, severity, code, message) VALUES (?, ?, ?, ?)
			`, id, e.Severity, dbText(e.Code), dbText(e.Message)); err != nil {
				return fmt.Errorf("insert catalog error %s: %w", f.FilingKey, err)
			}
		}
		for _, l := range f.Languages {
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO esef_filing_lang (filing_id, lang, lang_name) VALUES (?, ?, ?)
				ON CONFLICT(filing_id, lang) DO NOTHING
			`, id, l.Lang, dbText(l.LangName)); err != nil {
				return fmt.Errorf("insert catalog language %s: %w", f.FilingKey, err)
			}
		}
		for _, l := range f.InferredLanguages {
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO esef_inferred_filing_language
				(filing_id, lang, lang_name, facts_in_lang, facts_in_report)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(filing_id, lang) DO NOTHING
			`, id, l.Lang, dbText(l.LangName), l.FactsInLang, l.FactsInReport); err != nil {
				return fmt.Errorf("insert inferred language %s: %w", f.FilingKey, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CatalogFiling reads one catalog filing by key, without its child rows.
func (s *Store) CatalogFiling(ctx context.Context, key string) (model.CatalogFiling, bool, error) {
	var f model.CatalogFiling
	var lei, country, system, xj, pkg, report, viewer, loadErr sql.NullString
	var added, reported sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT filing_id, filing_key, filing_root, filing_number, entity_lei, country,
		       filing_system, filing_type, date_added, report_date, xbrl_json_instance,
		       report_package, report_document, viewer_document, is_loadable, load_error,
		       is_amended_hint, other_langs_hint
		FROM esef_filing WHERE filing_key = ?
	`, key).Scan(&f.FilingID, &f.FilingKey, &f.FilingRoot, &f.FilingNumber, &lei, &country,
		&system, &f.FilingType, &added, &reported, &xj, &pkg, &report, &viewer, &f.IsLoadable,
		&loadErr, &f.IsAmendedHint, &f.OtherLangsHint)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CatalogFiling{}, false, nil
	}
	if err != nil {
		return model.CatalogFiling{}, false, fmt.Errorf("read catalog filing %s: %w", key, err)
	}
	f.EntityLEI, f.Country, f.FilingSystem = lei.String, country.String, system.String
	f.DateAdded, f.ReportDate = timeOf(added), timeOf(reported)
	f.XBRLJSONInstance, f.ReportPackage = xj.String, pkg.String
	f.ReportDocument, f.ViewerDocument = report.String, viewer.String
	f.LoadError = loadErr.String
	return f, true, nil
}

// InsertEntity writes an entity and its other names as one atomic unit.
func (s *Store) InsertEntity(ctx context.Context, e model.Entity) error {
	if e.LEI == "" {
		return model.Errorf(model.ErrCodeMissingData, "entity has no lei")
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO esef_entity
			(entity_lei, location_code, lei_legal_name, lei_legal_address_lines,
			 lei_legal_address_city, lei_legal_address_country, lei_legal_address_postal_code,
			 lei_hq_address_lines, lei_hq_address_city, lei_hq_address_country,
			 lei_hq_address_postal_code, lei_category, lei_isin)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.LEI, dbText(e.LocationCode), dbText(e.LegalName), dbText(e.LegalAddressLines),
			dbText(e.LegalAddressCity), dbText(e.LegalAddressCountry), dbText(e.LegalAddressPostal),
			dbText(e.HQAddressLines), dbText(e.HQAddressCity), dbText(e.HQAddressCountry),
			dbText(e.HQAddressPostal), dbText(e.Category), dbText(e.ISIN))
		if err != nil {
			return fmt.Errorf("insert entity %s: %w", e.LEI, err)
		}
		for _, n := range e.OtherNames {
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO esef_entity_other_name (entity_lei, other_name, other_name_type)
				VALUES (?, ?, ?)
				ON CONFLICT(entity_lei, other_name, other_name_type) DO NOTHING
			`, e.LEI, n.Name, n.Type); err != nil {
				return fmt.Errorf("insert entity other name %s: %w", e.LEI, err)
			}
		}
		return nil
	})
}

// HintRow is one catalog filing with its dominant inferred language.
type HintRow struct {
	FilingID       int64
	FilingRoot     string
	FilingNumber   int
	ReportPackage  string
	Lang           string
	IsLoadable     bool
	IsAmendedHint  bool
	OtherLangsHint bool
}

// HintRows returns every catalog filing joined to its dominant inferred
// language: the language with most facts, ties broken by language code.
// Lang is empty for filings without inferred languages.
func (s *Store) HintRows(ctx context.Context) ([]HintRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT filing_id, lang,
			       ROW_NUMBER() OVER (
			           PARTITION BY filing_id
			           ORDER BY facts_in_lang DESC, lang COLLATE BINARY ASC
			       ) AS rnk
			FROM esef_inferred_filing_language
		)
		SELECT f.filing_id, f.filing_root, f.filing_number, f.report_package, r.lang,
		       f.is_loadable, f.is_amended_hint, f.other_langs_hint
		FROM esef_filing f
		LEFT JOIN ranked r ON r.filing_id = f.filing_id AND r.rnk = 1
		ORDER BY f.filing_root COLLATE BINARY ASC, f.filing_number ASC, f.filing_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query hint rows: %w", err)
	}
	defer rows.Close()

	out := []HintRow{}
	for rows.Next() {
		var h HintRow
		var pkg, lang sql.NullString
		if err := rows.Scan(&h.FilingID, &h.FilingRoot, &h.FilingNumber, &pkg, &lang,
			&h.IsLoadable, &h.IsAmendedHint, &h.OtherLangsHint); err != nil {
			return nil, fmt.Errorf("scan hint row: %w", err)
		}
		h.ReportPackage = pkg.String
		h.Lang = lang.String
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hint rows: %w", err)
	}
	return out, nil
}

// SetAmendedHints flags the given filings as amended.
func (s *Store) SetAmendedHints(ctx context.Context, ids []int64) (int64, error) {
	return s.setFlag(ctx, "is_amended_hint", ids)
}

// SetOtherLangsHints flags the given filings as issued in several languages.
func (s *Store) SetOtherLangsHints(ctx context.Context, ids []int64) (int64, error) {
	return s.setFlag(ctx, "other_langs_hint", ids)
}

func (s *Store) setFlag(ctx context.Context, column string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		for start := 0; start < len(ids); start += filingInsertChunk {
			end := min(start+filingInsertChunk, len(ids))
			args := make([]any, 0, end-start)
			for _, id := range ids[start:end] {
				args = append(args, id)
			}
			res, err := tx.tx.ExecContext(ctx,
				"UPDATE esef_filing SET "+column+" = 1 WHERE "+column+" = 0 AND filing_id IN "+
					placeholders(1, len(args)), args...)
			if err != nil {
				return fmt.Errorf("set %s: %w", column, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}
