// Package reconcile keeps the SEC filer table in step with the filings:
// CIKs seen on filings but never stored are inserted, and filers whose
// latest filing reports a new name are refreshed from EDGAR.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/filingindex/internal/fetch"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/tracker"
)

// Defaults for Config.
const (
	DefaultPause   = 200 * time.Millisecond
	DefaultRetries = 3
)

// Config configures a Reconciler.
type Config struct {
	// Pause is the wait before every lookup.
	Pause time.Duration

	// Retries bounds how many more passes failed CIKs get. Zero uses
	// DefaultRetries; a negative value disables retries.
	Retries int

	// OnlyNew skips the changed-name detection.
	OnlyNew bool
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
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

// Result summarizes one reconciliation.
type Result struct {
	NewCIKs     int
	ChangedCIKs int
	Inserted    int
	Updated     int

	// Failed lists the CIKs still failing after the last retry.
	Failed []string
}

// Reconciler inserts and refreshes filers.
type Reconciler struct {
	st     *store.Store
	lookup Lookup
	cfg    Config
	opts   tracker.Options
	logger *slog.Logger
}

// New creates a Reconciler.
func New(st *store.Store, lookup Lookup, cfg Config, opts tracker.Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{st: st, lookup: lookup, cfg: cfg.WithDefaults(), opts: opts, logger: logger}
}

// Reconcile detects new and changed CIKs and processes both sets.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	newCIKs, err := r.st.NewFilerCIKs(ctx)
	if err != nil {
		return Result{}, err
	}
	var changed []string
	if !r.cfg.OnlyNew {
		evidence, err := r.st.FilerNameEvidence(ctx)
		if err != nil {
			return Result{}, err
		}
		changed = ChangedCIKs(evidence)
	}
	msg := fmt.Sprintf("Found %d new ciks", len(newCIKs))
	if !r.cfg.OnlyNew {
		msg += fmt.Sprintf(", and %d modified ciks", len(changed))
	}
	r.logger.Info(msg)
	return r.process(ctx, newCIKs, changed)
}

// ReconcileCIKs processes an explicit CIK list: stored filers are
// refreshed and the rest are inserted.
func (r *Reconciler) ReconcileCIKs(ctx context.Context, ciks []string) (Result, error) {
	if len(ciks) == 0 {
		return Result{}, model.Errorf(model.ErrCodeMissingData, "no ciks were given to process")
	}
	var newCIKs, existing []string
	seen := map[string]bool{}
	for _, cik := range ciks {
		cik = strings.TrimSpace(cik)
		if cik == "" || seen[cik] {
			continue
		}
		seen[cik] = true
		_, ok, err := r.st.Filer(ctx, cik)
		if err != nil {
			return Result{}, err
		}
		if ok {
			existing = append(existing, cik)
		} else {
			newCIKs = append(newCIKs, cik)
		}
	}
	return r.process(ctx, newCIKs, existing)
}

func (r *Reconciler) process(ctx context.Context, newCIKs, changed []string) (Result, error) {
	res := Result{NewCIKs: len(newCIKs), ChangedCIKs: len(changed)}
	if len(newCIKs) > 0 {
		err := tracker.Run(ctx, r.st, tracker.InsertNewFilers, tracker.FormatParams("ciks", len(newCIKs)), r.opts,
			func(ctx context.Context, t *tracker.Tracker) error {
				ok, failed, err := r.loop(ctx, t, newCIKs, false)
				res.Inserted = ok
				res.Failed = append(res.Failed, failed...)
				return err
			})
		if err != nil {
			return res, err
		}
	}
	if len(changed) > 0 {
		err := tracker.Run(ctx, r.st, tracker.UpdateExistingFilers, tracker.FormatParams("ciks", len(changed)), r.opts,
			func(ctx context.Context, t *tracker.Tracker) error {
				ok, failed, err := r.loop(ctx, t, changed, true)
				res.Updated = ok
				res.Failed = append(res.Failed, failed...)
				return err
			})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// loop applies every CIK once, then retries the failed ones while the
// budget lasts. The tracker total grows by each retried batch.
func (r *Reconciler) loop(ctx context.Context, t *tracker.Tracker, ciks []string, existing bool) (int, []string, error) {
	if err := t.SetTotal(ctx, len(ciks)); err != nil {
		return 0, nil, err
	}
	action := "inserting"
	if existing {
		action = "updating"
	}

	var succeeded int
	pending := ciks
	for attempt := 0; ; attempt++ {
		var failed []string
		for _, cik := range pending {
			if err := fetch.Pause(ctx, r.cfg.Pause); err != nil {
				return succeeded, pending, err
			}
			err := r.apply(ctx, cik, existing)
			if ctx.Err() != nil {
				return succeeded, pending, ctx.Err()
			}
			if err != nil {
				failed = append(failed, cik)
				r.logger.Warn("Could not get information for cik", "cik", cik, "error", err)
				if aerr := t.Advance(ctx, 1, false, "cik:"+cik+"|"+err.Error()); aerr != nil {
					return succeeded, failed, aerr
				}
				continue
			}
			succeeded++
			if err := t.Advance(ctx, 1, true, ""); err != nil {
				return succeeded, failed, err
			}
		}

		total, completed, _, failedItems := t.Counts()
		r.logger.Info(fmt.Sprintf("Finished %s %d of %d filers with %d failed",
			action, succeeded, completed, failedItems), "total", total, "attempt", attempt)

		if len(failed) == 0 || attempt >= r.cfg.Retries {
			return succeeded, failed, nil
		}
		if err := t.AddTotal(ctx, len(failed)); err != nil {
			return succeeded, failed, err
		}
		r.opts.Metrics.Retry(t.Task(), len(failed))
		pending = failed
	}
}

func (r *Reconciler) apply(ctx context.Context, cik string, existing bool) error {
	f, err := r.lookup.LookupFiler(ctx, cik)
	if err != nil {
		return err
	}
	former := FormerNames(cik, f.FormerNames)
	if existing {
		_, err := r.st.UpdateFilerName(ctx, cik, f.ConformedName, former)
		return err
	}

	f.CIK = cik
	f.FormerNames = former
	if f.LocationCode, f.Country, err = r.location(ctx, f); err != nil {
		return err
	}
	return r.st.InsertFiler(ctx, f)
}

// location resolves the filer's location code from its business state,
// then its mailing state, and the country from the location table.
func (r *Reconciler) location(ctx context.Context, f model.Filer) (code, country string, err error) {
	code = store.UnknownLocation
	switch {
	case strings.TrimSpace(f.BusinessState) != "":
		code = strings.ToUpper(strings.TrimSpace(f.BusinessState))
	case strings.TrimSpace(f.MailingState) != "":
		code = strings.ToUpper(strings.TrimSpace(f.MailingState))
	}
	loc, ok, err := r.st.Location(ctx, code)
	if err != nil {
		return "", "", err
	}
	if !ok {
		if loc, _, err = r.st.Location(ctx, store.UnknownLocation); err != nil {
			return "", "", err
		}
	}
	return code, loc.Country, nil
}

// FormerNames drops entries missing a date or a name and repeated
// (date, name) pairs, keeping the first occurrence.
func FormerNames(cik string, names []model.FormerName) []model.FormerName {
	type key struct {
		date time.Time
		name string
	}
	seen := map[key]bool{}
	out := make([]model.FormerName, 0, len(names))
	for _, n := range names {
		if n.DateChanged.IsZero() || strings.TrimSpace(n.Name) == "" {
			continue
		}
		k := key{date: day(n.DateChanged), name: n.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, model.FormerName{CIK: cik, Name: n.Name, DateChanged: k.date})
	}
	return out
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
