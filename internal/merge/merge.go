// Package merge loads one XBRL RSS feed and writes its new or changed
// filings to the store in a single transaction.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/parse"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/telemetry"
)

// FilingIDBase is the per-feed id space: filing ids of feed YYYYMM lie in
// [YYYYMM*FilingIDBase, (YYYYMM+1)*FilingIDBase).
const FilingIDBase = 1_000_000

// firstFilingOffset leaves the low ids of a feed unused; the first filing
// of feed 202201 is 202201100001.
const firstFilingOffset = 100_001

// FileIDBase multiplies a filing id to form its file ids.
const FileIDBase = 1000

// Loader returns the bytes of a document, from cache unless reload is set.
type Loader interface {
	FetchFile(ctx context.Context, uri string, reload bool) ([]byte, error)
}

// Source describes one feed to merge.
type Source struct {
	URI string

	// FeedID is the listing's period id. Zero takes it from the
	// document's last build date.
	FeedID int64

	// FeedDate and LastModified come from the listing entry.
	FeedDate     time.Time
	LastModified time.Time

	// Modified is set when the feed is already stored.
	Modified bool

	// Latest marks the cumulative latest-filings pseudo-feed. It is
	// compared against the most recent stored feed and never stored as a
	// feed of its own.
	Latest bool

	Reload bool
}

// Result summarizes one merged feed.
type Result struct {
	FeedID          int64
	Latest          bool
	Discovered      int
	NewOrChanged    int
	FirstFilingID   int64
	FilingsInserted int64
	FilesInserted   int64
}

// Merger writes feeds to the store.
type Merger struct {
	store    *store.Store
	loader   Loader
	recorder *telemetry.Recorder
	logger   *slog.Logger
}

// New returns a Merger. recorder collects per-step telemetry and the
// caller owns flushing it; nil starts a recorder under a fresh run id.
func New(st *store.Store, loader Loader, recorder *telemetry.Recorder, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = telemetry.NewRecorder(uuid.NewString(), nil, nil)
	}
	return &Merger{store: st, loader: loader, recorder: recorder, logger: logger}
}

// InitialFilingID returns the first surrogate id of a brand new feed.
func InitialFilingID(feedID int64) int64 {
	return feedID*FilingIDBase + firstFilingOffset
}

// FeedIDOf derives the YYYYMM period id of a timestamp.
func FeedIDOf(t time.Time) int64 {
	t = t.UTC()
	return int64(t.Year())*100 + int64(t.Month())
}

// Merge loads src and persists its new or changed filings. Nothing is
// written when the transaction fails.
func (m *Merger) Merge(ctx context.Context, src Source) (Result, error) {
	data, err := m.loader.FetchFile(ctx, src.URI, src.Reload)
	if err != nil {
		return Result{}, fmt.Errorf("load feed %s: %w", src.URI, err)
	}
	doc, err := parse.ParseFeed(data)
	if err != nil {
		return Result{}, fmt.Errorf("load feed %s: %w", src.URI, err)
	}

	feedID := src.FeedID
	if feedID == 0 {
		feedID = FeedIDOf(doc.Header.LastBuildDate)
	}
	compareID := feedID
	if src.Latest {
		maxID, ok, err := m.store.MaxFeedID(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, model.Errorf(model.ErrCodeMissingData, "no stored feed to compare the latest filings against")
		}
		compareID = maxID
	}
	res := Result{FeedID: compareID, Latest: src.Latest, Discovered: len(doc.Items)}

	start := InitialFilingID(compareID)
	items := doc.Items
	if src.Modified || src.Latest {
		maxFiling, ok, err := m.store.MaxFilingID(ctx, compareID)
		if err != nil {
			return Result{}, err
		}
		if ok {
			start = maxFiling + 1
		}
		stored, err := m.store.StoredFilingKeys(ctx, compareID)
		if err != nil {
			return Result{}, err
		}
		items = NewOrChanged(items, stored)
	}
	items = AssignIDs(items, compareID, start)
	res.NewOrChanged = len(items)
	res.FirstFilingID = start

	m.logger.Info("found new or modified filings",
		"feed_id", compareID,
		"latest", src.Latest,
		"count", humanize.Comma(int64(len(items))),
		"of", humanize.Comma(int64(len(doc.Items))))

	feed := doc.Header
	feed.FeedID = feedID
	feed.FeedMonth = src.FeedDate
	feed.LastModified = src.LastModified
	if err := m.write(ctx, src, feed, items, &res); err != nil {
		return res, err
	}

	name := "feed " + strconv.FormatInt(feedID, 10)
	if src.Latest {
		name = "latest filings feed"
	}
	m.logger.Info("finished insert of "+name,
		"filings", humanize.Comma(res.FilingsInserted),
		"files", humanize.Comma(res.FilesInserted))
	return res, nil
}

func (m *Merger) write(ctx context.Context, src Source, feed model.Feed, items []model.Filing, res *Result) (err error) {
	unit := strconv.FormatInt(res.FeedID, 10)
	if src.Latest {
		unit = "latest"
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			m.recorder.Rollback(unit)
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if !src.Latest {
		action := "insert"
		if src.Modified {
			action = "update"
		}
		if err = m.recorder.Step(unit, "sec_feed", action, func() (int64, error) {
			return tx.UpsertFeed(ctx, feed)
		}); err != nil {
			return err
		}
	}

	if len(items) > 0 {
		if err = m.recorder.Step(unit, "sec_filing", "insert", func() (int64, error) {
			n, err := tx.InsertFilings(ctx, items)
			res.FilingsInserted = n
			return n, err
		}); err != nil {
			return err
		}

		var files []model.File
		for _, f := range items {
			files = append(files, f.Files...)
		}
		if len(files) > 0 {
			if err = m.recorder.Step(unit, "sec_file", "insert", func() (int64, error) {
				n, err := tx.InsertFiles(ctx, files)
				res.FilesInserted = n
				return n, err
			}); err != nil {
				return err
			}
		}
	}

	return m.recorder.Commit(unit, tx.Commit)
}

// NewOrChanged returns the items to insert for a feed whose filings are
// already partly stored. An item qualifies when its accession number
// appears in any discovered tuple that is not stored. The result is sorted
// by publication date.
func NewOrChanged(items []model.Filing, stored map[model.FilingKey]struct{}) []model.Filing {
	changed := map[string]bool{}
	for _, it := range items {
		if _, ok := stored[it.Key()]; !ok {
			changed[it.AccessionNumber] = true
		}
	}
	out := make([]model.Filing, 0, len(changed))
	for _, it := range items {
		if changed[it.AccessionNumber] {
			out = append(out, it)
		}
	}
	sortByPubDate(out)
	return out
}

// AssignIDs sorts items by publication date and numbers them from start.
// File ids are filing_id*1000 + sequence.
func AssignIDs(items []model.Filing, feedID, start int64) []model.Filing {
	out := make([]model.Filing, len(items))
	copy(out, items)
	sortByPubDate(out)
	for i := range out {
		id := start + int64(i)
		out[i].FilingID = id
		out[i].FeedID = feedID
		files := make([]model.File, len(out[i].Files))
		for j, f := range out[i].Files {
			f.FilingID = id
			f.FeedID = feedID
			f.FileID = id*FileIDBase + int64(f.Sequence)
			files[j] = f
		}
		out[i].Files = files
	}
	return out
}

func sortByPubDate(items []model.Filing) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PubDate.Before(items[j].PubDate)
	})
}
