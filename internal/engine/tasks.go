package engine

import (
	"context"
	"slices"

	"github.com/roach88/filingindex/internal/catalog"
	"github.com/roach88/filingindex/internal/dedup"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/reconcile"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/tracker"
)

// TagDuplicates flags resubmitted filings under the process-duplicates
// task.
func (e *Engine) TagDuplicates(ctx context.Context) (dedup.Result, error) {
	var res dedup.Result
	err := tracker.Run(ctx, e.st, tracker.ProcessDuplicates,
		tracker.FormatParams("policy", e.cfg.Duplicates), e.opts.Tracker,
		func(ctx context.Context, t *tracker.Tracker) error {
			var err error
			if res, err = dedup.Tag(ctx, e.st, e.cfg.Duplicates, e.logger); err != nil {
				return err
			}
			if err := t.SetTotal(ctx, int(res.Tagged)); err != nil {
				return err
			}
			if res.Tagged == 0 {
				return nil
			}
			return t.Advance(ctx, int(res.Tagged), true, "")
		})
	return res, err
}

// ReconcileOptions narrows a filer reconciliation.
type ReconcileOptions struct {
	// CIKs, when set, are looked up instead of the detected ones.
	CIKs []string

	// OnlyNew skips renamed-filer detection.
	OnlyNew bool
}

// ReconcileFilers inserts new filers and refreshes renamed ones.
func (e *Engine) ReconcileFilers(ctx context.Context, o ReconcileOptions) (reconcile.Result, error) {
	cfg := e.cfg.Reconcile
	cfg.OnlyNew = cfg.OnlyNew || o.OnlyNew
	r := reconcile.New(e.st, e.src.Filers, cfg, e.opts.Tracker)
	if len(o.CIKs) > 0 {
		return r.ReconcileCIKs(ctx, o.CIKs)
	}
	return r.Reconcile(ctx)
}

// CatalogOptions narrows a catalog sync.
type CatalogOptions struct {
	SkipInferredLanguages bool
}

// SyncCatalog adds the ESEF filings and entities missing from the store.
func (e *Engine) SyncCatalog(ctx context.Context, o CatalogOptions) (catalog.Result, error) {
	cfg := e.cfg.Catalog
	cfg.SkipInferredLanguages = cfg.SkipInferredLanguages || o.SkipInferredLanguages
	return catalog.New(e.st, e.src.Loader, e.src.Entities, cfg, e.opts.Tracker).Sync(ctx)
}

// RefreshTables reloads the CIK ticker mapping.
func (e *Engine) RefreshTables(ctx context.Context) (int64, error) {
	return reconcile.RefreshTickers(ctx, e.st, e.src.Loader, e.cfg.TickersURL, e.opts.Tracker)
}

// Tasks returns the newest trackers and the last update of every task.
func (e *Engine) Tasks(ctx context.Context, limit int) ([]store.TrackerRow, []store.LastUpdate, error) {
	rows, err := e.st.Trackers(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	updates, err := e.st.LastUpdates(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rows, updates, nil
}

// CloseTask force-closes the open tracker of task. It reports whether a
// tracker was open.
func (e *Engine) CloseTask(ctx context.Context, task string) (bool, error) {
	if !slices.Contains(tracker.Tasks, task) {
		return false, model.Errorf(model.ErrCodeUnknownAction, "unknown task %q", task)
	}
	return tracker.ForceClose(ctx, e.st, task, e.opts.Tracker)
}
