package reconcile

import (
	"context"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/parse"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/tracker"
)

// DefaultTickersURL is the SEC CIK to ticker mapping.
const DefaultTickersURL = "https://www.sec.gov/files/company_tickers_exchange.json"

// RefreshTickers replaces the CIK ticker mapping with the published one
// under the refresh-tables task. Returns the number of mappings stored.
func RefreshTickers(ctx context.Context, st *store.Store, f Fetcher, uri string, opts tracker.Options) (int64, error) {
	if uri == "" {
		uri = DefaultTickersURL
	}
	var stored int64
	err := tracker.Run(ctx, st, tracker.RefreshTables, tracker.FormatParams("table", "sec_cik_ticker_mapping"), opts,
		func(ctx context.Context, t *tracker.Tracker) error {
			data, err := f.Fetch(ctx, uri)
			opts.Metrics.Lookup("tickers", err)
			if err != nil {
				return model.WrapError(model.ErrCodeDocumentNotFound, "load ticker mapping", err)
			}
			mappings, err := parse.ParseTickers(data)
			if err != nil {
				return err
			}
			if err := t.SetTotal(ctx, len(mappings)); err != nil {
				return err
			}
			if stored, err = st.ReplaceTickerMappings(ctx, mappings); err != nil {
				return err
			}
			return t.Advance(ctx, len(mappings), true, "")
		})
	return stored, err
}
