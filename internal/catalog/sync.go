package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/filingindex/internal/fetch"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/parse"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/tracker"
)

// Defaults for Config.
const (
	DefaultIndexURL = "https://filings.xbrl.org/index.json"
	DefaultBaseURL  = "https://filings.xbrl.org/"
	DefaultPause    = 200 * time.Millisecond
	DefaultRetries  = 3
)

// Loader loads the filings index and its companion documents.
type Loader interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
	FetchFile(ctx context.Context, uri string, reload bool) ([]byte, error)
}

// Config configures a Syncer.
type Config struct {
	// IndexURL is the filings index document.
	IndexURL string

	// BaseURL resolves the relative document paths of the index.
	BaseURL string

	// Pause is the wait between two calls to the same publisher.
	Pause time.Duration

	// Retries bounds how many times the whole update is repeated while
	// any filing or entity failed. Zero uses DefaultRetries; a negative
	// value disables retries.
	Retries int

	// SkipInferredLanguages disables the xbrl-json language tally.
	SkipInferredLanguages bool
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.IndexURL == "" {
		c.IndexURL = DefaultIndexURL
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Pause == 0 {
		c.Pause = DefaultPause
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	return c
}

// Result summarizes a catalog update across all attempts.
type Result struct {
	Attempts         int
	FilingsInserted  int
	FilingsFailed    int
	EntitiesInserted int
	EntitiesFailed   int
	EntitiesMissing  int
	AmendedFlagged   int64
	MultiLangFlagged int64
}

// Syncer merges the ESEF filings index into the store.
type Syncer struct {
	st     *store.Store
	loader Loader
	lookup EntityLookup
	cfg    Config
	opts   tracker.Options
	logger *slog.Logger
}

// New creates a Syncer. Tracker options carry the logger, sink and
// metrics shared with the rest of the run.
func New(st *store.Store, loader Loader, lookup EntityLookup, cfg Config, opts tracker.Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{st: st, loader: loader, lookup: lookup, cfg: cfg.WithDefaults(), opts: opts, logger: logger}
}

// Sync adds filings and entities missing from the store, repeating the
// update while items fail and the retry budget lasts, then recomputes the
// amended and multi-language hints. Only the first attempt reloads the
// cached index.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	var res Result
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		res.Attempts++
		filingsFailed, entitiesFailed, err := s.syncOnce(ctx, attempt == 0, &res)
		if err != nil {
			return res, err
		}
		res.FilingsFailed, res.EntitiesFailed = filingsFailed, entitiesFailed
		failed := filingsFailed + entitiesFailed
		if failed == 0 {
			break
		}
		if attempt < s.cfg.Retries {
			s.opts.Metrics.Retry(tracker.UpdateESEFFilings, failed)
			s.logger.Warn("Retrying catalog update", "failed", failed, "attempt", attempt+1, "retries", s.cfg.Retries)
		}
	}

	amended, multi, err := s.Hints(ctx)
	if err != nil {
		return res, err
	}
	res.AmendedFlagged, res.MultiLangFlagged = amended, multi
	return res, nil
}

func (s *Syncer) syncOnce(ctx context.Context, reload bool, res *Result) (filingsFailed, entitiesFailed int, err error) {
	data, err := s.loader.FetchFile(ctx, s.cfg.IndexURL, reload)
	if err != nil {
		return 0, 0, model.WrapError(model.ErrCodeDocumentNotFound, "load filings index", err)
	}
	cat, err := parse.ParseCatalog(data)
	if err != nil {
		return 0, 0, err
	}

	keys, err := s.st.CatalogKeys(ctx)
	if err != nil {
		return 0, 0, err
	}
	var newFilings []parse.CatalogRecord
	for _, rec := range cat.Filings {
		if _, ok := keys[rec.Key]; !ok {
			newFilings = append(newFilings, rec)
		}
	}

	leis, err := s.st.EntityLEIs(ctx)
	if err != nil {
		return 0, 0, err
	}
	var newLEIs []string
	for _, lei := range cat.LEIs {
		if _, ok := leis[lei]; !ok {
			newLEIs = append(newLEIs, lei)
		}
	}
	s.logger.Info("Catalog diff", "filings", len(cat.Filings), "new_filings", len(newFilings),
		"entities", len(cat.LEIs), "new_entities", len(newLEIs))

	if len(newFilings) > 0 {
		err = tracker.Run(ctx, s.st, tracker.UpdateESEFFilings, tracker.FormatParams("new", len(newFilings)), s.opts,
			func(ctx context.Context, t *tracker.Tracker) error {
				inserted, failed, err := s.insertFilings(ctx, t, newFilings)
				res.FilingsInserted += inserted
				filingsFailed = failed
				return err
			})
		if err != nil {
			return filingsFailed, 0, err
		}
	}

	if len(newLEIs) > 0 {
		err = tracker.Run(ctx, s.st, tracker.UpdateESEFEntities, tracker.FormatParams("new", len(newLEIs)), s.opts,
			func(ctx context.Context, t *tracker.Tracker) error {
				inserted, failed, missing, err := s.insertEntities(ctx, t, newLEIs)
				res.EntitiesInserted += inserted
				res.EntitiesMissing += missing
				entitiesFailed = failed
				return err
			})
		if err != nil {
			return filingsFailed, entitiesFailed, err
		}
	}
	return filingsFailed, entitiesFailed, nil
}

func (s *Syncer) insertFilings(ctx context.Context, t *tracker.Tracker, recs []parse.CatalogRecord) (inserted, failed int, err error) {
	if err := t.SetTotal(ctx, len(recs)); err != nil {
		return 0, 0, err
	}
	for _, rec := range recs {
		f, err := s.buildFiling(ctx, rec)
		if err == nil {
			_, err = s.st.InsertCatalogFiling(ctx, f)
		}
		if ctx.Err() != nil {
			return inserted, failed, ctx.Err()
		}
		if err != nil {
			failed++
			s.logger.Warn("Catalog filing failed", "key", rec.Key, "error", err)
			if aerr := t.Advance(ctx, 1, false, rec.Key); aerr != nil {
				return inserted, failed, aerr
			}
			continue
		}
		inserted++
		if err := t.Advance(ctx, 1, true, ""); err != nil {
			return inserted, failed, err
		}
	}
	s.logger.Info(fmt.Sprintf("Inserted %d of %d catalog filings with %d failed", inserted, len(recs), failed))
	return inserted, failed, nil
}

// buildFiling classifies rec and, unless disabled, tallies the languages
// of its xbrl-json companion.
func (s *Syncer) buildFiling(ctx context.Context, rec parse.CatalogRecord) (model.CatalogFiling, error) {
	f, err := BuildFiling(rec)
	if err != nil {
		return f, err
	}
	if s.cfg.SkipInferredLanguages || rec.XBRLJSON == "" {
		return f, nil
	}
	data, err := s.loader.Fetch(ctx, fetch.Resolve(s.cfg.BaseURL, rec.XBRLJSON))
	s.opts.Metrics.Lookup("xbrl-json", err)
	if perr := fetch.Pause(ctx, s.cfg.Pause); perr != nil {
		return f, perr
	}
	if err != nil {
		return f, model.WrapError(model.ErrCodeDocumentNotFound, "load xbrl-json "+rec.Key, err)
	}
	f.InferredLanguages, err = parse.ParseFactLanguages(data)
	return f, err
}

func (s *Syncer) insertEntities(ctx context.Context, t *tracker.Tracker, leis []string) (inserted, failed, missing int, err error) {
	if err := t.SetTotal(ctx, len(leis)); err != nil {
		return 0, 0, 0, err
	}
	for start := 0; start < len(leis); start += MaxLEIBatch {
		chunk := leis[start:min(start+MaxLEIBatch, len(leis))]
		if start > 0 {
			if err := fetch.Pause(ctx, s.cfg.Pause); err != nil {
				return inserted, failed, missing, err
			}
		}

		entities, err := s.lookup.LookupEntities(ctx, chunk)
		if ctx.Err() != nil {
			return inserted, failed, missing, ctx.Err()
		}
		if err != nil {
			failed += len(chunk)
			s.logger.Warn("Entity lookup failed", "count", len(chunk), "error", err)
			if aerr := t.Advance(ctx, len(chunk), false, "lookup "+chunk[0]); aerr != nil {
				return inserted, failed, missing, aerr
			}
			continue
		}

		found := map[string]bool{}
		for _, e := range entities {
			found[e.LEI] = true
			if e.LocationCode, err = s.st.LocationCodeForAlpha2(ctx, e.LegalAddressCountry); err == nil {
				err = s.st.InsertEntity(ctx, e)
			}
			if err != nil {
				failed++
				s.logger.Warn("Entity insert failed", "lei", e.LEI, "error", err)
				if aerr := t.Advance(ctx, 1, false, e.LEI); aerr != nil {
					return inserted, failed, missing, aerr
				}
				continue
			}
			inserted++
			if err := t.Advance(ctx, 1, true, ""); err != nil {
				return inserted, failed, missing, err
			}
		}

		var absent []string
		for _, lei := range chunk {
			if !found[lei] {
				absent = append(absent, lei)
			}
		}
		if len(absent) > 0 {
			missing += len(absent)
			s.logger.Warn("Entities unknown to lookup", "leis", absent)
			if err := t.Advance(ctx, len(absent), true, ""); err != nil {
				return inserted, failed, missing, err
			}
		}
	}
	s.logger.Info(fmt.Sprintf("Inserted %d of %d entities with %d failed", inserted, len(leis), failed))
	return inserted, failed, missing, nil
}

// Hints recomputes the amended and multi-language flags over every stored
// catalog filing. Flags are only ever set, never cleared.
func (s *Syncer) Hints(ctx context.Context) (amended, multiLang int64, err error) {
	rows, err := s.st.HintRows(ctx)
	if err != nil {
		return 0, 0, err
	}
	amendedIDs, multiIDs := DetectHints(rows)
	if amended, err = s.st.SetAmendedHints(ctx, amendedIDs); err != nil {
		return 0, 0, err
	}
	if multiLang, err = s.st.SetOtherLangsHints(ctx, multiIDs); err != nil {
		return amended, 0, err
	}
	s.logger.Info("Catalog hints", "amended", amended, "multi_language", multiLang)
	return amended, multiLang, nil
}
