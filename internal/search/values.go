package search

import (
	"net/url"
	"strconv"

	"github.com/roach88/filingindex/internal/model"
)

// CriteriaFromValues reads criteria from query parameters named after the
// Criteria JSON keys. Unknown parameters are ignored. Unlike the CLI, a
// request cannot lift the result bound: negative limits are rejected.
func CriteriaFromValues(v url.Values) (Criteria, error) {
	c := Criteria{
		FilingSystem:        v.Get("filing_system"),
		PublicationDateFrom: v.Get("publication_date_from"),
		PublicationDateTo:   v.Get("publication_date_to"),
		ReportDateFrom:      v.Get("report_date_from"),
		ReportDateTo:        v.Get("report_date_to"),
		FilingNumber:        v.Get("filing_number"),
		FilerIdentifier:     v.Get("filer_identifier"),
		IndustryCode:        v.Get("industry_code"),
		IndustryCodeTree:    v.Get("industry_code_tree"),
		IndustryName:        v.Get("industry_name"),
		FormType:            v.Get("form_type"),
		FilerName:           v.Get("filer_name"),
		TickerSymbol:        v.Get("filer_ticker_symbol"),
		CountryAlpha2:       v.Get("esef_country_alpha2"),
		CountryName:         v.Get("esef_country_name"),
	}
	var err error
	if c.Random, err = boolParam(v, "random"); err != nil {
		return Criteria{}, err
	}
	if c.IncludeDuplicates, err = boolParam(v, "include_duplicates"); err != nil {
		return Criteria{}, err
	}
	if s := v.Get("limit"); s != "" {
		if c.Limit, err = strconv.Atoi(s); err != nil {
			return Criteria{}, model.WrapError(model.ErrCodeBadSearchParameter, "limit must be an integer", err)
		}
		if c.Limit < 0 {
			return Criteria{}, model.Errorf(model.ErrCodeBadSearchParameter, "limit must not be negative, got %d", c.Limit)
		}
	}
	return c, nil
}

func boolParam(v url.Values, name string) (bool, error) {
	s := v.Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, model.WrapError(model.ErrCodeBadSearchParameter, name+" must be true or false", err)
	}
	return b, nil
}
