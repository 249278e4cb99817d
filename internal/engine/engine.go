package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/filingindex/internal/catalog"
	"github.com/roach88/filingindex/internal/dedup"
	"github.com/roach88/filingindex/internal/fetch"
	"github.com/roach88/filingindex/internal/reconcile"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/tracker"
)

// Lister reads the monthly feed listing.
type Lister interface {
	List(ctx context.Context, locator string) ([]fetch.Entry, error)
}

// Loader loads feeds and catalog documents.
type Loader interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
	FetchFile(ctx context.Context, uri string, reload bool) ([]byte, error)
}

// Sources are the upstream collaborators of an Engine.
type Sources struct {
	Lister   Lister
	Loader   Loader
	Filers   reconcile.Lookup
	Entities catalog.EntityLookup
}

// Config configures an Engine.
type Config struct {
	// ListingURL is the monthly XBRL RSS archive listing.
	ListingURL string

	// LatestURL is the cumulative latest-filings feed. Empty skips it.
	LatestURL string

	// TickersURL is the CIK ticker mapping document.
	TickersURL string

	Duplicates dedup.Policy
	Reconcile  reconcile.Config
	Catalog    catalog.Config
}

// Options carries the run-scoped collaborators.
type Options struct {
	Tracker tracker.Options

	// RunIDs names runs. Defaults to UUIDv7Generator.
	RunIDs RunIDGenerator
}

// Engine runs the synchronization tasks against one store.
type Engine struct {
	st     *store.Store
	src    Sources
	cfg    Config
	opts   Options
	logger *slog.Logger
}

// New creates an Engine.
func New(st *store.Store, src Sources, cfg Config, opts Options) *Engine {
	if opts.RunIDs == nil {
		opts.RunIDs = UUIDv7Generator{}
	}
	if opts.Tracker.Now == nil {
		opts.Tracker.Now = time.Now
	}
	if opts.Tracker.Logger == nil {
		opts.Tracker.Logger = slog.Default()
	}
	return &Engine{st: st, src: src, cfg: cfg, opts: opts, logger: opts.Tracker.Logger}
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store { return e.st }
