package parse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/roach88/filingindex/internal/model"
)

// CatalogRecord is one filing entry of the ESEF filings index as
// published, before loadability is classified.
type CatalogRecord struct {
	Key           string
	LEI           string
	Country       string
	System        string
	Added         string // raw; see ParseCatalogTime
	Date          string
	XBRLJSON      string
	ReportPackage string
	Viewer        string
	Report        string
	Errors        []model.CatalogError
	Langs         []string
}

// Catalog is the parsed filings index: every entity id and every filing
// record, both sorted by key.
type Catalog struct {
	LEIs    []string
	Filings []CatalogRecord
}

type catalogEntity struct {
	Filings map[string]catalogFiling `json:"filings"`
}

type catalogFiling struct {
	LEI           string `json:"lei"`
	Country       string `json:"country"`
	System        string `json:"system"`
	Added         string `json:"added"`
	Date          string `json:"date"`
	XBRLJSON      string `json:"xbrl-json"`
	ReportPackage string `json:"report-package"`
	Viewer        string `json:"viewer"`
	Report        string `json:"report"`
	Errors        []struct {
		Sev  string `json:"sev"`
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"errors"`
	Langs []string `json:"langs"`
}

// ParseCatalog decodes the cumulative filings index.
func ParseCatalog(data []byte) (Catalog, error) {
	var raw map[string]catalogEntity
	if err := json.Unmarshal(data, &raw); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}

	out := Catalog{LEIs: make([]string, 0, len(raw))}
	for lei, entity := range raw {
		out.LEIs = append(out.LEIs, lei)
		for key, f := range entity.Filings {
			rec := CatalogRecord{
				Key:           key,
				LEI:           f.LEI,
				Country:       f.Country,
				System:        f.System,
				Added:         f.Added,
				Date:          f.Date,
				XBRLJSON:      f.XBRLJSON,
				ReportPackage: f.ReportPackage,
				Viewer:        f.Viewer,
				Report:        f.Report,
				Langs:         f.Langs,
			}
			if rec.LEI == "" {
				rec.LEI = lei
			}
			for _, e := range f.Errors {
				rec.Errors = append(rec.Errors, model.CatalogError{Severity: e.Sev, Code: e.Code, Message: e.Msg})
			}
			out.Filings = append(out.Filings, rec)
		}
	}
	sort.Strings(out.LEIs)
	sort.Slice(out.Filings, func(i, j int) bool { return out.Filings[i].Key < out.Filings[j].Key })
	return out, nil
}

// SplitKey splits a filing key into its root path and trailing filing
// number: "lei/2021-12-31/ESEF/FR/0" gives ("lei/2021-12-31/ESEF/FR", 0).
func SplitKey(key string) (root string, number int, err error) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", 0, model.Errorf(model.ErrCodeBadType, "filing key %q has no root", key)
	}
	number, err = strconv.Atoi(key[i+1:])
	if err != nil {
		return "", 0, model.WrapError(model.ErrCodeBadType, fmt.Sprintf("filing key %q has no trailing number", key), err)
	}
	return key[:i], number, nil
}

var catalogLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05.999999",
	"2006-01-02",
}

// ParseCatalogTime accepts the date and timestamp forms used by the
// filings index. Empty input returns the zero time.
func ParseCatalogTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range catalogLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, model.Errorf(model.ErrCodeBadDateFormat, "unrecognized date %q", s)
}
