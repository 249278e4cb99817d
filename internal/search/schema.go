package search

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/filingindex/internal/model"
)

// schema routes criteria to the columns of one filing system. A blank
// column means the criterion does not apply to the schema.
type schema struct {
	system model.FilingSystem
	from   string
	joins  []join

	// columns selected, aliased to the Record field names.
	columns []string
	orderBy string

	filingNumber    string
	filerIdentifier string
	lowerIdentifier bool
	filerName       string
	publicationDate string
	reportDate      string
	formType        string
	ticker          string
	industryCode    string
	industryName    string
	countryAlpha2   string
	countryName     string
	duplicate       string
}

type join struct {
	clause string
	args   []any
}

var secSchema = schema{
	system: model.SEC,
	from:   "sec_filing f",
	joins: []join{
		{clause: "sec_cik_ticker_mapping t ON t.cik_number = f.cik_number"},
		{clause: "sec_industry i ON i.industry_classification = ? AND i.industry_code = f.assigned_sic", args: []any{"SEC"}},
	},
	columns: []string{
		"f.filing_id AS filing_id",
		"f.accession_number AS filing_number",
		"f.cik_number AS filer_identifier",
		"f.company_name AS filer_name",
		"f.form_type AS form_type",
		"f.pub_date AS publication_date",
		"f.period AS report_date",
		"f.filing_link AS link",
		"f.duplicate AS duplicate",
	},
	orderBy:         "f.filing_id ASC",
	filingNumber:    "f.accession_number",
	filerIdentifier: "f.cik_number",
	filerName:       "f.company_name",
	publicationDate: "f.pub_date",
	reportDate:      "f.period",
	formType:        "f.form_type",
	ticker:          "t.ticker_symbol",
	industryCode:    "f.assigned_sic",
	industryName:    "i.industry_description",
	duplicate:       "f.duplicate",
}

var esefSchema = schema{
	system: model.ESEF,
	from:   "esef_filing f",
	joins: []join{
		{clause: "esef_entity e ON e.entity_lei = f.entity_lei"},
		{clause: "location l ON l.alpha_2 = f.country"},
	},
	columns: []string{
		"f.filing_id AS filing_id",
		"f.filing_key AS filing_number",
		"f.entity_lei AS filer_identifier",
		"e.lei_legal_name AS filer_name",
		"f.filing_type AS form_type",
		"f.date_added AS publication_date",
		"f.report_date AS report_date",
		"f.viewer_document AS link",
		"0 AS duplicate",
	},
	orderBy:         "f.filing_id ASC",
	filingNumber:    "f.filing_key",
	filerIdentifier: "f.entity_lei",
	lowerIdentifier: true,
	filerName:       "e.lei_legal_name",
	publicationDate: "f.date_added",
	reportDate:      "f.report_date",
	countryAlpha2:   "f.country",
	countryName:     "l.country",
}

func schemaFor(fs model.FilingSystem) (schema, error) {
	switch fs {
	case model.SEC:
		return secSchema, nil
	case model.ESEF:
		return esefSchema, nil
	}
	return schema{}, model.Errorf(model.ErrCodeBadSearchParameter, "filing_system must be one of `esef` or `sec`")
}

// base is the distinct, ordered select over the schema's tables.
func (s schema) base() sq.SelectBuilder {
	b := sq.Select(s.columns...).Distinct().From(s.from)
	for _, j := range s.joins {
		b = b.LeftJoin(j.clause, j.args...)
	}
	return b
}
