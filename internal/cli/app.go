package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/filingindex/internal/catalog"
	"github.com/roach88/filingindex/internal/config"
	"github.com/roach88/filingindex/internal/dedup"
	"github.com/roach88/filingindex/internal/engine"
	"github.com/roach88/filingindex/internal/fetch"
	"github.com/roach88/filingindex/internal/logsink"
	"github.com/roach88/filingindex/internal/reconcile"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/telemetry"
	"github.com/roach88/filingindex/internal/tracker"
)

// app holds the collaborators of one command invocation.
type app struct {
	cfg      config.Config
	st       *store.Store
	engine   *engine.Engine
	registry *prometheus.Registry
	logger   *slog.Logger
	out      *OutputFormatter
}

// openApp loads the configuration, configures logging and opens the
// store. mustExist rejects a missing database instead of creating it.
func openApp(cmd *cobra.Command, opts *RootOptions, mustExist bool) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})
	sink := logsink.New(handler, logLevel)
	logger := slog.New(sink)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.Config, opts.EnvFile)
	if err != nil {
		return nil, out.Fail("failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	policy, err := dedup.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return nil, out.Fail("failed to load configuration", err)
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.OpenWithOptions(cfg.Database, store.Options{MustExist: mustExist})
	if err != nil {
		return nil, out.Fail("failed to open database", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(registry)

	client := fetch.New(fetch.Config{
		UserAgent:  cfg.UserAgent,
		CacheDir:   cfg.CacheDir,
		LoadBudget: cfg.LoadBudget,
		Logger:     logger,
	})
	eng := engine.New(st,
		engine.Sources{
			Lister: client,
			Loader: client,
			Filers: &reconcile.EDGAR{URLTemplate: cfg.CompanyURL, Fetcher: client, Metrics: metrics},
			Entities: &catalog.GLEIF{
				BaseURL: cfg.GLEIFURL,
				Pause:   cfg.Pause,
				Fetcher: client,
				Metrics: metrics,
				Logger:  logger,
			},
		},
		engine.Config{
			ListingURL: cfg.ListingURL,
			LatestURL:  cfg.LatestURL,
			TickersURL: cfg.TickersURL,
			Duplicates: policy,
			Reconcile:  reconcile.Config{Pause: cfg.Pause, Retries: cfg.Retries},
			Catalog: catalog.Config{
				IndexURL: cfg.CatalogURL,
				BaseURL:  cfg.CatalogBaseURL,
				Pause:    cfg.Pause,
				Retries:  cfg.Retries,
			},
		},
		engine.Options{
			Tracker: tracker.Options{Logger: logger, Sink: sink, Metrics: metrics},
		})

	return &app{cfg: cfg, st: st, engine: eng, registry: registry, logger: logger, out: out}, nil
}

func (a *app) close() {
	if err := a.st.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// signalContext cancels on SIGINT or SIGTERM so the running feed rolls
// back and its tracker closes as interrupted.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
