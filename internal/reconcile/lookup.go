package reconcile

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/parse"
	"github.com/roach88/filingindex/internal/telemetry"
)

// DefaultCompanyURL is the EDGAR company browse endpoint; %s is the CIK.
const DefaultCompanyURL = "https://www.sec.gov/cgi-bin/browse-edgar?CIK=%s&action=getcompany&output=atom"

// Fetcher loads a document without caching.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Lookup resolves a CIK to the filer record published for it.
type Lookup interface {
	LookupFiler(ctx context.Context, cik string) (model.Filer, error)
}

// EDGAR reads filers from the company-info block of the EDGAR company
// atom document.
type EDGAR struct {
	// URLTemplate holds one %s for the CIK. Default: DefaultCompanyURL.
	URLTemplate string
	Fetcher     Fetcher
	Metrics     *telemetry.Metrics
}

// URL returns the company document address of cik.
func (e *EDGAR) URL(cik string) string {
	tmpl := e.URLTemplate
	if tmpl == "" {
		tmpl = DefaultCompanyURL
	}
	if !strings.Contains(tmpl, "%s") {
		return strings.TrimRight(tmpl, "/") + "/" + url.PathEscape(cik)
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(cik))
}

// LookupFiler implements Lookup. The returned filer carries the CIK it
// was asked for.
func (e *EDGAR) LookupFiler(ctx context.Context, cik string) (model.Filer, error) {
	data, err := e.Fetcher.Fetch(ctx, e.URL(cik))
	e.Metrics.Lookup("edgar", err)
	if err != nil {
		return model.Filer{}, model.WrapError(model.ErrCodeDocumentNotFound, "load company info "+cik, err)
	}
	f, err := parse.ParseCompanyInfo(data)
	if err != nil {
		return model.Filer{}, err
	}
	f.CIK = cik
	return f, nil
}
