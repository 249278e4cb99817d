package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roach88/filingindex/internal/dedup"
	"github.com/roach88/filingindex/internal/feeddiff"
	"github.com/roach88/filingindex/internal/merge"
	"github.com/roach88/filingindex/internal/reconcile"
	"github.com/roach88/filingindex/internal/telemetry"
	"github.com/roach88/filingindex/internal/tracker"
)

// FeedOptions narrows a feed sync.
type FeedOptions struct {
	// From and To bound the feed dates; zero is open.
	From, To time.Time

	// KeepLast keeps the newest listed month even when it falls outside
	// the date window.
	KeepLast bool

	// Reload refreshes cached copies of every loaded feed. Modified feeds
	// are always reloaded.
	Reload bool

	// SkipLatest leaves out the latest-filings feed.
	SkipLatest bool
}

// FeedResult reports one feed sync.
type FeedResult struct {
	RunID  string
	Merged []merge.Result

	// Failed lists the URIs of feeds that could not be merged.
	Failed []string
}

// FilingsInserted sums the filings written by every merged feed.
func (r FeedResult) FilingsInserted() int64 {
	var n int64
	for _, m := range r.Merged {
		n += m.FilingsInserted
	}
	return n
}

// SyncFeeds merges the new and modified monthly feeds, oldest first, then
// the latest-filings feed, under the update-feeds task.
func (e *Engine) SyncFeeds(ctx context.Context, o FeedOptions) (FeedResult, error) {
	res := FeedResult{RunID: e.opts.RunIDs.Generate()}
	rec := telemetry.NewRecorder(res.RunID, e.opts.Tracker.Now, e.opts.Tracker.Metrics)
	defer func() {
		if err := rec.Flush(context.WithoutCancel(ctx), e.st); err != nil {
			e.logger.Error("Failed to write processing log", "run_id", res.RunID, "error", err)
		}
	}()

	params := tracker.FormatParams("from", dateParam(o.From), "to", dateParam(o.To),
		"keep_last", o.KeepLast, "reload", o.Reload)
	err := tracker.Run(ctx, e.st, tracker.UpdateFeeds, params, e.opts.Tracker,
		func(ctx context.Context, t *tracker.Tracker) error {
			entries, err := e.src.Lister.List(ctx, e.cfg.ListingURL)
			if err != nil {
				return fmt.Errorf("list feeds: %w", err)
			}
			entries, err = feeddiff.FilterByDate(entries, o.From, o.To, o.KeepLast)
			if err != nil {
				return err
			}
			stored, err := e.st.FeedStates(ctx)
			if err != nil {
				return err
			}
			cands := feeddiff.Changed(feeddiff.Classify(entries, stored))

			latest := e.cfg.LatestURL != "" && !o.SkipLatest
			total := len(cands)
			if latest {
				total++
			}
			if err := t.SetTotal(ctx, total); err != nil {
				return err
			}
			e.logger.Info(fmt.Sprintf("Found %d new or modified feeds of %d listed", len(cands), len(entries)))

			m := merge.New(e.st, e.src.Loader, rec, e.logger)
			for _, c := range cands {
				src := merge.Source{
					URI:          c.URI,
					FeedID:       c.FeedID,
					FeedDate:     c.FeedDate,
					LastModified: c.LastModified,
					Modified:     c.Status == feeddiff.Modified,
					Reload:       o.Reload || c.Status == feeddiff.Modified,
				}
				if err := e.mergeFeed(ctx, t, m, src, &res); err != nil {
					return err
				}
			}
			if latest {
				src := merge.Source{URI: e.cfg.LatestURL, Latest: true, Reload: true}
				if err := e.mergeFeed(ctx, t, m, src, &res); err != nil {
					return err
				}
			}

			e.logger.Info("Finished feed update",
				"feeds", len(res.Merged),
				"failed", len(res.Failed),
				"filings", humanize.Comma(res.FilingsInserted()))
			return nil
		})
	return res, err
}

// mergeFeed merges one feed and advances the tracker. A failed feed is
// recorded and skipped; only cancellation stops the task.
func (e *Engine) mergeFeed(ctx context.Context, t *tracker.Tracker, m *merge.Merger, src merge.Source, res *FeedResult) error {
	r, err := m.Merge(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("Failed to merge feed", "uri", src.URI, "error", err)
		res.Failed = append(res.Failed, src.URI)
		return t.Advance(ctx, 1, false, fmt.Sprintf("%s:%v", feedLabel(src), err))
	}
	res.Merged = append(res.Merged, r)
	return t.Advance(ctx, 1, true, "")
}

func feedLabel(src merge.Source) string {
	if src.Latest {
		return "latest"
	}
	return fmt.Sprintf("feed %d", src.FeedID)
}

func dateParam(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// SECOptions configures SyncSEC.
type SECOptions struct {
	FeedOptions

	// SkipReconcile leaves the filer table untouched.
	SkipReconcile bool

	// OnlyNewFilers skips renamed-filer detection.
	OnlyNewFilers bool
}

// SECResult reports the three stages of SyncSEC.
type SECResult struct {
	Feeds      FeedResult
	Duplicates dedup.Result
	Filers     reconcile.Result
}

// SyncSEC syncs the feeds, tags duplicates and reconciles filers. A stage
// that fails stops the chain.
func (e *Engine) SyncSEC(ctx context.Context, o SECOptions) (SECResult, error) {
	var res SECResult
	var err error
	if res.Feeds, err = e.SyncFeeds(ctx, o.FeedOptions); err != nil {
		return res, err
	}
	if res.Duplicates, err = e.TagDuplicates(ctx); err != nil {
		return res, err
	}
	if o.SkipReconcile {
		return res, nil
	}
	res.Filers, err = e.ReconcileFilers(ctx, ReconcileOptions{OnlyNew: o.OnlyNewFilers})
	return res, err
}
