package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/filingindex/internal/catalog"
	"github.com/roach88/filingindex/internal/dedup"
	"github.com/roach88/filingindex/internal/engine"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/reconcile"
)

// SyncSECOptions holds flags for the sync-sec command.
type SyncSECOptions struct {
	*RootOptions
	From          string
	To            string
	NoKeepLast    bool
	Reload        bool
	SkipLatest    bool
	SkipReconcile bool
	OnlyNew       bool
}

// NewSyncSECCommand creates the sync-sec command.
func NewSyncSECCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncSECOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync-sec",
		Short: "Load new and modified SEC XBRL RSS feeds",
		Long: `Load the monthly SEC XBRL RSS feeds that are new or changed since the last
run, then the latest-filings feed, tag resubmitted filings as duplicates and
reconcile the filer table.

Example:
  filingindex sync-sec --db ./index.db
  filingindex sync-sec --from 2022-01-01 --to 2022-03-31 --skip-reconcile`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncSEC(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "first feed date to load (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last feed date to load; widened to the month end")
	cmd.Flags().BoolVar(&opts.NoKeepLast, "no-keep-last", false, "do not re-check the newest month outside the date window")
	cmd.Flags().BoolVar(&opts.Reload, "reload", false, "refresh cached copies of every loaded feed")
	cmd.Flags().BoolVar(&opts.SkipLatest, "skip-latest", false, "do not load the latest-filings feed")
	cmd.Flags().BoolVar(&opts.SkipReconcile, "skip-reconcile", false, "do not reconcile filers")
	cmd.Flags().BoolVar(&opts.OnlyNew, "only-new-filers", false, "insert new filers without renamed-filer detection")

	return cmd
}

func runSyncSEC(cmd *cobra.Command, opts *SyncSECOptions) error {
	a, err := openApp(cmd, opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer a.close()

	feedOpts := engine.FeedOptions{
		KeepLast:   !opts.NoKeepLast,
		Reload:     opts.Reload,
		SkipLatest: opts.SkipLatest,
	}
	if opts.From != "" {
		if feedOpts.From, err = model.ParseDate(opts.From); err != nil {
			return a.out.Fail("invalid --from", model.WrapError(model.ErrCodeBadDateFormat, "--from", err))
		}
	}
	if opts.To != "" {
		if feedOpts.To, err = model.ParseDate(opts.To); err != nil {
			return a.out.Fail("invalid --to", model.WrapError(model.ErrCodeBadDateFormat, "--to", err))
		}
	}

	ctx, cancel := signalContext(cmd, a.logger)
	defer cancel()
	res, err := a.engine.SyncSEC(ctx, engine.SECOptions{
		FeedOptions:   feedOpts,
		SkipReconcile: opts.SkipReconcile,
		OnlyNewFilers: opts.OnlyNew,
	})
	if err != nil {
		return a.out.Fail("sec sync failed", err)
	}
	return a.out.Respond(CLIResponse{Status: "ok", RunID: res.Feeds.RunID, Data: secSummary{res}})
}

type secSummary struct {
	engine.SECResult
}

func (s secSummary) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Run %s\n", s.Feeds.RunID)
	for _, m := range s.Feeds.Merged {
		name := fmt.Sprintf("feed %d", m.FeedID)
		if m.Latest {
			name = "latest filings"
		}
		fmt.Fprintf(w, "  %-16s %s filings, %s files\n", name,
			humanize.Comma(m.FilingsInserted), humanize.Comma(m.FilesInserted))
	}
	for _, uri := range s.Feeds.Failed {
		fmt.Fprintf(w, "  failed           %s\n", uri)
	}
	fmt.Fprintf(w, "Duplicates tagged: %s\n", humanize.Comma(s.Duplicates.Tagged))
	writeFilers(w, s.Filers)
	return nil
}

func writeFilers(w io.Writer, r reconcile.Result) {
	fmt.Fprintf(w, "Filers: %d new, %d changed, %d inserted, %d updated\n",
		r.NewCIKs, r.ChangedCIKs, r.Inserted, r.Updated)
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "Filers failed: %s\n", strings.Join(r.Failed, ", "))
	}
}

// NewSyncESEFCommand creates the sync-esef command.
func NewSyncESEFCommand(rootOpts *RootOptions) *cobra.Command {
	var skipLanguages bool
	cmd := &cobra.Command{
		Use:   "sync-esef",
		Short: "Add new ESEF filings and entities from the filings catalog",
		Long: `Add the ESEF filings and entities of the filings.xbrl.org catalog that are
not stored yet, then recompute the amended and multi-language hints.

Example:
  filingindex sync-esef --db ./index.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext(cmd, a.logger)
			defer cancel()

			res, err := a.engine.SyncCatalog(ctx, engine.CatalogOptions{SkipInferredLanguages: skipLanguages})
			if err != nil {
				return a.out.Fail("esef sync failed", err)
			}
			return a.out.Success(catalogSummary{res})
		},
	}
	cmd.Flags().BoolVar(&skipLanguages, "skip-inferred-languages", false, "do not tally fact languages from xbrl-json documents")
	return cmd
}

type catalogSummary struct {
	catalog.Result
}

func (s catalogSummary) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Attempts: %d\n", s.Attempts)
	fmt.Fprintf(w, "Filings: %s inserted, %d failed\n", humanize.Comma(int64(s.FilingsInserted)), s.FilingsFailed)
	fmt.Fprintf(w, "Entities: %s inserted, %d failed, %d unknown\n",
		humanize.Comma(int64(s.EntitiesInserted)), s.EntitiesFailed, s.EntitiesMissing)
	fmt.Fprintf(w, "Hints: %d amended, %d multi-language\n", s.AmendedFlagged, s.MultiLangFlagged)
	return nil
}

// NewReconcileCommand creates the reconcile-filers command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var onlyNew bool
	cmd := &cobra.Command{
		Use:   "reconcile-filers [cik...]",
		Short: "Insert new filers and refresh renamed ones from EDGAR",
		Long: `Look up filers in EDGAR. Without arguments the CIKs are detected: filing
CIKs missing from the filer table, and filers whose latest filing reports a
new name. With arguments only the given CIKs are looked up.

Example:
  filingindex reconcile-filers
  filingindex reconcile-filers 0000320193 0000789019`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext(cmd, a.logger)
			defer cancel()

			res, err := a.engine.ReconcileFilers(ctx, engine.ReconcileOptions{CIKs: args, OnlyNew: onlyNew})
			if err != nil {
				return a.out.Fail("filer reconciliation failed", err)
			}
			return a.out.Success(filerSummary{res})
		},
	}
	cmd.Flags().BoolVar(&onlyNew, "only-new", false, "skip renamed-filer detection")
	return cmd
}

type filerSummary struct {
	reconcile.Result
}

func (s filerSummary) WriteText(w io.Writer) error {
	writeFilers(w, s.Result)
	return nil
}

// NewTagDuplicatesCommand creates the tag-duplicates command.
func NewTagDuplicatesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "tag-duplicates",
		Short:         "Flag filings resubmitted under the same accession number",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.TagDuplicates(cmd.Context())
			if err != nil {
				return a.out.Fail("duplicate tagging failed", err)
			}
			return a.out.Success(duplicateSummary{res})
		},
	}
}

type duplicateSummary struct {
	dedup.Result
}

func (s duplicateSummary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Tagged %s filings in %d groups\n", humanize.Comma(s.Tagged), s.Groups)
	return err
}

// NewRefreshTablesCommand creates the refresh-tables command.
func NewRefreshTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "refresh-tables",
		Short:         "Reload the CIK ticker mapping",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.engine.RefreshTables(cmd.Context())
			if err != nil {
				return a.out.Fail("table refresh failed", err)
			}
			return a.out.Success(map[string]int64{"sec_cik_ticker_mapping": n})
		},
	}
}
