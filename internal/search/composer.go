package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/store"
)

// Query is a composed search ready to run.
type Query struct {
	System   model.FilingSystem
	SQL      string
	Args     []any
	Warnings []string
}

// Record is one search result. FilingNumber is the accession number or
// catalog key and FilerIdentifier the CIK or LEI, by filing system.
type Record struct {
	FilingSystem    string    `json:"filing_system"`
	FilingID        int64     `json:"filing_id"`
	FilingNumber    string    `json:"filing_number"`
	FilerIdentifier string    `json:"filer_identifier"`
	FilerName       string    `json:"filer_name,omitempty"`
	FormType        string    `json:"form_type,omitempty"`
	PublicationDate time.Time `json:"publication_date,omitzero"`
	ReportDate      time.Time `json:"report_date,omitzero"`
	Link            string    `json:"link,omitempty"`
	Duplicate       bool      `json:"duplicate,omitempty"`
}

type row struct {
	FilingID        int64          `db:"filing_id"`
	FilingNumber    string         `db:"filing_number"`
	FilerIdentifier sql.NullString `db:"filer_identifier"`
	FilerName       sql.NullString `db:"filer_name"`
	FormType        sql.NullString `db:"form_type"`
	PublicationDate sql.NullTime   `db:"publication_date"`
	ReportDate      sql.NullTime   `db:"report_date"`
	Link            sql.NullString `db:"link"`
	Duplicate       bool           `db:"duplicate"`
}

// Composer builds and runs searches.
type Composer struct {
	db      *sqlx.DB
	st      *store.Store
	dialect Dialect
	logger  *slog.Logger
	tree    *IndustryTree
}

// NewComposer creates a Composer over st. Queries are rendered for
// dialect; Run executes them against st, so only SQLite output is run.
func NewComposer(st *store.Store, dialect Dialect, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		db:      sqlx.NewDb(st.DB(), "sqlite3"),
		st:      st,
		dialect: dialect,
		logger:  logger,
	}
}

// Run composes and executes a search.
func (c *Composer) Run(ctx context.Context, crit Criteria) ([]Record, []string, error) {
	q, err := c.Build(ctx, crit)
	if err != nil {
		return nil, nil, err
	}
	if c.dialect != SQLite {
		return nil, q.Warnings, model.Errorf(model.ErrCodeBadConnectionParameters,
			"%s queries cannot run against the local store", c.dialect)
	}

	var rows []row
	if err := c.db.SelectContext(ctx, &rows, q.SQL, q.Args...); err != nil {
		return nil, q.Warnings, fmt.Errorf("run search: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{
			FilingSystem:    q.System.String(),
			FilingID:        r.FilingID,
			FilingNumber:    r.FilingNumber,
			FilerIdentifier: r.FilerIdentifier.String,
			FilerName:       r.FilerName.String,
			FormType:        r.FormType.String,
			PublicationDate: timeOf(r.PublicationDate),
			ReportDate:      timeOf(r.ReportDate),
			Link:            r.Link.String,
			Duplicate:       r.Duplicate,
		})
	}
	return out, q.Warnings, nil
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// Build composes the query for crit without running it.
func (c *Composer) Build(ctx context.Context, crit Criteria) (Query, error) {
	system, err := model.ParseFilingSystem(crit.FilingSystem)
	if err != nil {
		return Query{}, err
	}
	s, err := schemaFor(system)
	if err != nil {
		return Query{}, err
	}

	q := Query{System: system}
	warn := func(msg string) {
		q.Warnings = append(q.Warnings, msg)
		c.logger.Warn(msg, "filing_system", system.String())
	}

	var where []sq.Sqlizer
	dates := []struct {
		name, value, column string
		upper               bool
	}{
		{"publication_date_from", crit.PublicationDateFrom, s.publicationDate, false},
		{"publication_date_to", crit.PublicationDateTo, s.publicationDate, true},
		{"report_date_from", crit.ReportDateFrom, s.reportDate, false},
		{"report_date_to", crit.ReportDateTo, s.reportDate, true},
	}
	for _, d := range dates {
		if strings.TrimSpace(d.value) == "" {
			continue
		}
		t, err := dateBound(d.name, d.value, d.upper)
		if err != nil {
			return Query{}, err
		}
		if d.upper {
			where = append(where, sq.Lt{d.column: t})
		} else {
			where = append(where, sq.GtOrEq{d.column: t})
		}
	}

	if vals := splitList(crit.FilingNumber); len(vals) > 0 {
		where = append(where, sq.Eq{s.filingNumber: vals})
	}
	if vals := splitList(crit.FilerIdentifier); len(vals) > 0 {
		if s.lowerIdentifier {
			where = append(where, sq.Eq{"LOWER(" + s.filerIdentifier + ")": lowerAll(vals)})
		} else {
			where = append(where, sq.Eq{s.filerIdentifier: vals})
		}
	}

	industry, err := c.industryFilter(ctx, s, crit, warn)
	if err != nil {
		return Query{}, err
	}
	if industry != nil {
		where = append(where, industry)
	}

	switch {
	case crit.CountryAlpha2 != "" && s.countryAlpha2 == "":
		warn("Search parameter `esef_country_alpha2` is ignored for SEC searches.")
	case crit.CountryAlpha2 != "":
		vals := splitList(strings.ToUpper(crit.CountryAlpha2))
		where = append(where, sq.Eq{s.countryAlpha2: vals})
	}
	switch {
	case crit.CountryName == "":
	case s.countryName == "" || crit.CountryAlpha2 != "":
		warn("Search parameter `esef_country_name` is ignored for SEC searches or when `esef_country_alpha2` has value.")
	default:
		where = append(where, like(s.countryName, crit.CountryName))
	}

	switch {
	case crit.FormType == "":
	case s.formType == "":
		warn("Search parameter `form_type` is ignored for ESEF searches, only Annual Financial Reports are indexed.")
	default:
		where = append(where, like(s.formType, crit.FormType))
	}
	if crit.FilerName != "" {
		where = append(where, like(s.filerName, crit.FilerName))
	}
	switch {
	case crit.TickerSymbol == "":
	case s.ticker == "":
		warn("Search parameter `filer_ticker_symbol` is ignored for ESEF searches.")
	default:
		where = append(where, like(s.ticker, crit.TickerSymbol))
	}

	if s.duplicate != "" && !crit.IncludeDuplicates {
		where = append(where, sq.Eq{s.duplicate: 0})
	}

	b := s.base()
	for _, w := range where {
		b = b.Where(w)
	}

	limit := crit.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	random := crit.Random
	if random && c.dialect.random() == "" {
		warn(fmt.Sprintf("Random selection does not work for %s, ignoring random option.", c.dialect))
		random = false
	}

	if random {
		if limit < 0 {
			limit = DefaultLimit
		}
		b = c.dialect.sample(b)
	} else {
		b = b.OrderBy(s.orderBy)
	}
	if limit > 0 {
		b = c.dialect.limit(b, uint64(limit))
	}

	q.SQL, q.Args, err = b.PlaceholderFormat(c.dialect.placeholders()).ToSql()
	if err != nil {
		return Query{}, fmt.Errorf("build search: %w", err)
	}
	return q, nil
}

// industryFilter applies the most specific industry criterion: an
// explicit code list, then a code tree, then a description match.
func (c *Composer) industryFilter(ctx context.Context, s schema, crit Criteria, warn func(string)) (sq.Sqlizer, error) {
	code, tree, name := crit.IndustryCode != "", crit.IndustryCodeTree != "", crit.IndustryName != ""
	if !code && !tree && !name {
		return nil, nil
	}
	if s.industryCode == "" {
		warn("Search parameters `industry_code`, `industry_code_tree` and `industry_name` are ignored for ESEF searches.")
		return nil, nil
	}

	switch {
	case code:
		if tree {
			warn("Search parameter `industry_code_tree` is ignored when `industry_code` has value.")
		}
		if name {
			warn("Search parameter `industry_name` is ignored when `industry_code` has value.")
		}
		codes, err := splitInts("industry_code", crit.IndustryCode)
		if err != nil {
			return nil, err
		}
		return sq.Eq{s.industryCode: codes}, nil

	case tree:
		if name {
			warn("Search parameter `industry_name` is ignored when `industry_code_tree` has value.")
		}
		roots, err := splitInts("industry_code_tree", crit.IndustryCodeTree)
		if err != nil {
			return nil, err
		}
		t, err := c.industryTree(ctx)
		if err != nil {
			return nil, err
		}
		return sq.Eq{s.industryCode: t.Codes(roots)}, nil
	}
	return like(s.industryName, crit.IndustryName), nil
}

func (c *Composer) industryTree(ctx context.Context) (*IndustryTree, error) {
	if c.tree != nil {
		return c.tree, nil
	}
	t, err := LoadIndustryTree(ctx, c.st, "SEC")
	if err != nil {
		return nil, err
	}
	c.tree = t
	return t, nil
}

// like ORs a case-insensitive substring match of column against every
// value of a comma list.
// Wildcards in the values match literally.
func like(column, list string) sq.Sqlizer {
	or := sq.Or{}
	for _, v := range splitList(list) {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
		or = append(or, sq.Expr("LOWER("+column+") LIKE ? ESCAPE '\\'", pattern))
	}
	return or
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
