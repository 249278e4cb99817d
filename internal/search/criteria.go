package search

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/filingindex/internal/model"
)

// DefaultLimit is applied when no limit is given, and forced on random
// samples without one.
const DefaultLimit = 20

// Criteria is a sparse search request. Empty fields are not filtered on.
// Multi-value fields take a comma separated list.
type Criteria struct {
	// FilingSystem is required: "sec" or "esef".
	FilingSystem string `json:"filing_system"`

	PublicationDateFrom string `json:"publication_date_from,omitempty"`
	PublicationDateTo   string `json:"publication_date_to,omitempty"`
	ReportDateFrom      string `json:"report_date_from,omitempty"`
	ReportDateTo        string `json:"report_date_to,omitempty"`

	// FilingNumber matches accession numbers or catalog keys exactly.
	FilingNumber string `json:"filing_number,omitempty"`
	// FilerIdentifier matches CIKs or LEIs exactly.
	FilerIdentifier string `json:"filer_identifier,omitempty"`

	IndustryCode     string `json:"industry_code,omitempty"`
	IndustryCodeTree string `json:"industry_code_tree,omitempty"`
	IndustryName     string `json:"industry_name,omitempty"`

	FormType      string `json:"form_type,omitempty"`
	FilerName     string `json:"filer_name,omitempty"`
	TickerSymbol  string `json:"filer_ticker_symbol,omitempty"`
	CountryAlpha2 string `json:"esef_country_alpha2,omitempty"`
	CountryName   string `json:"esef_country_name,omitempty"`

	Random bool `json:"random,omitempty"`

	// Limit bounds the result count. Zero applies DefaultLimit; a negative
	// value removes the bound unless Random is set.
	Limit int `json:"limit,omitempty"`

	// IncludeDuplicates keeps SEC filings tagged as resubmissions.
	IncludeDuplicates bool `json:"include_duplicates,omitempty"`
}

// splitList splits a comma list, trimming blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitInts(name, s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, model.WrapError(model.ErrCodeBadSearchParameter,
				name+" should be a comma separated list of industry codes", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// dateBound parses a date criterion. Upper bounds are moved to the next
// day so the interval is half-open.
func dateBound(name, value string, upper bool) (time.Time, error) {
	t, err := model.ParseDate(value)
	if err != nil {
		return time.Time{}, &model.IndexError{
			Code:    model.ErrCodeBadDateFormat,
			Message: "param " + name + " must be a valid date in format 2022-10-21",
			Err:     err,
		}
	}
	y, m, d := t.Date()
	t = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
