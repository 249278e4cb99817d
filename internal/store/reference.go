package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/filingindex/internal/model"
)

//go:embed reference.yaml
var referenceYAML []byte

// UnknownLocation is the location code used when no state or country
// resolves.
const UnknownLocation = "XX"

// alpha2Overrides pins countries whose alpha-2 code is shared by several
// state/province rows to their country-level location code.
var alpha2Overrides = map[string]string{
	"US": "X1",
	"CA": "Z4",
}

type reference struct {
	Locations  []model.Location `yaml:"locations"`
	Industries []model.Industry `yaml:"industries"`
}

func loadReference() (reference, error) {
	var ref reference
	if err := yaml.Unmarshal(referenceYAML, &ref); err != nil {
		return reference{}, fmt.Errorf("parse reference data: %w", err)
	}
	return ref, nil
}

func seedReference(db *sql.DB, ref reference) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed reference: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, loc := range ref.Locations {
		_, err := tx.Exec(`
			INSERT INTO location (code, country, state_province, alpha_2, alpha_3, numeric_code, lat, lon)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(code) DO NOTHING
		`, loc.Code, loc.Country, dbText(loc.StateProvince), loc.Alpha2, loc.Alpha3, loc.Numeric, loc.Lat, loc.Lon)
		if err != nil {
			return fmt.Errorf("seed location %s: %w", loc.Code, err)
		}
	}

	for _, ind := range ref.Industries {
		var parent any
		if ind.ParentID != 0 {
			parent = ind.ParentID
		}
		_, err := tx.Exec(`
			INSERT INTO sec_industry (industry_id, industry_classification, industry_code, industry_description, depth, parent_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(industry_id) DO NOTHING
		`, ind.ID, ind.Classification, ind.Code, ind.Description, ind.Depth, parent)
		if err != nil {
			return fmt.Errorf("seed industry %d: %w", ind.ID, err)
		}
	}

	return tx.Commit()
}

// Location returns the location row for a code.
func (s *Store) Location(ctx context.Context, code string) (model.Location, bool, error) {
	var loc model.Location
	var state sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT code, country, state_province, alpha_2, alpha_3, numeric_code, lat, lon
		FROM location WHERE code = ?
	`, code).Scan(&loc.Code, &loc.Country, &state, &loc.Alpha2, &loc.Alpha3, &loc.Numeric, &loc.Lat, &loc.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Location{}, false, nil
	}
	if err != nil {
		return model.Location{}, false, fmt.Errorf("read location: %w", err)
	}
	loc.StateProvince = state.String
	return loc, true, nil
}

// LocationCodeForAlpha2 resolves an ISO alpha-2 country code to a location
// code, falling back to UnknownLocation.
func (s *Store) LocationCodeForAlpha2(ctx context.Context, alpha2 string) (string, error) {
	alpha2 = strings.ToUpper(strings.TrimSpace(alpha2))
	if alpha2 == "" {
		return UnknownLocation, nil
	}
	if code, ok := alpha2Overrides[alpha2]; ok {
		return code, nil
	}
	var code string
	err := s.db.QueryRowContext(ctx, `
		SELECT code FROM location WHERE alpha_2 = ? ORDER BY code COLLATE BINARY LIMIT 1
	`, alpha2).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return UnknownLocation, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve alpha-2 %s: %w", alpha2, err)
	}
	return code, nil
}

// Industries returns every industry node of a classification ordered by id.
func (s *Store) Industries(ctx context.Context, classification string) ([]model.Industry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT industry_id, industry_classification, industry_code, industry_description, depth, parent_id
		FROM sec_industry
		WHERE industry_classification = ?
		ORDER BY industry_id ASC
	`, strings.ToUpper(classification))
	if err != nil {
		return nil, fmt.Errorf("query industries: %w", err)
	}
	defer rows.Close()

	industries := []model.Industry{}
	for rows.Next() {
		var ind model.Industry
		var desc sql.NullString
		var parent sql.NullInt64
		if err := rows.Scan(&ind.ID, &ind.Classification, &ind.Code, &desc, &ind.Depth, &parent); err != nil {
			return nil, fmt.Errorf("scan industry: %w", err)
		}
		ind.Description = desc.String
		ind.ParentID = parent.Int64
		industries = append(industries, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate industries: %w", err)
	}
	return industries, nil
}
