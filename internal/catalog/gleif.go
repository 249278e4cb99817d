package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/filingindex/internal/fetch"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/parse"
	"github.com/roach88/filingindex/internal/telemetry"
)

// MaxLEIBatch is the largest number of ids the GLEIF API accepts per page.
const MaxLEIBatch = 100

// DefaultGLEIFURL is the GLEIF API root.
const DefaultGLEIFURL = "https://api.gleif.org/api/v1"

// Fetcher loads a document without caching.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// EntityLookup resolves entity ids to issuer records. Ids the source does
// not know are absent from the result.
type EntityLookup interface {
	LookupEntities(ctx context.Context, leis []string) ([]model.Entity, error)
}

// GLEIF looks entities up in the GLEIF lei-records API.
type GLEIF struct {
	BaseURL string
	Pause   time.Duration
	Fetcher Fetcher
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// LookupEntities fetches at most MaxLEIBatch records, then each record's
// ISINs. A failed ISIN lookup leaves the ISIN empty.
func (g *GLEIF) LookupEntities(ctx context.Context, leis []string) ([]model.Entity, error) {
	if len(leis) == 0 {
		return nil, nil
	}
	if len(leis) > MaxLEIBatch {
		return nil, model.Errorf(model.ErrCodeBadType, "%d ids exceed the batch limit of %d", len(leis), MaxLEIBatch)
	}
	base := g.baseURL()

	data, err := g.Fetcher.Fetch(ctx, RecordsURL(base, leis))
	g.Metrics.Lookup("gleif", err)
	if err != nil {
		return nil, fmt.Errorf("lookup %d entities: %w", len(leis), err)
	}
	entities, err := parse.ParseLEIRecords(data)
	if err != nil {
		return nil, err
	}

	for i := range entities {
		if err := fetch.Pause(ctx, g.Pause); err != nil {
			return nil, err
		}
		data, err := g.Fetcher.Fetch(ctx, ISINsURL(base, entities[i].LEI))
		g.Metrics.Lookup("gleif-isin", err)
		if err != nil {
			g.logger().Warn("ISIN lookup failed", "lei", entities[i].LEI, "error", err)
			continue
		}
		isin, err := parse.ParseISINs(data)
		if err != nil {
			g.logger().Warn("ISIN lookup failed", "lei", entities[i].LEI, "error", err)
			continue
		}
		entities[i].ISIN = isin
	}
	return entities, nil
}

// RecordsURL is the lei-records page filtered to leis.
func RecordsURL(base string, leis []string) string {
	q := url.Values{}
	q.Set("page[size]", fmt.Sprint(MaxLEIBatch))
	q.Set("filter[lei]", strings.Join(leis, ","))
	return strings.TrimRight(base, "/") + "/lei-records?" + q.Encode()
}

// ISINsURL is the ISIN listing of one lei.
func ISINsURL(base, lei string) string {
	return strings.TrimRight(base, "/") + "/lei-records/" + url.PathEscape(lei) + "/isins"
}

func (g *GLEIF) baseURL() string {
	if g.BaseURL == "" {
		return DefaultGLEIFURL
	}
	return g.BaseURL
}

func (g *GLEIF) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
