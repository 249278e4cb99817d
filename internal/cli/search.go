package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/filingindex/internal/search"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	search.Criteria
	Dialect string
	ShowSQL bool
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search SEC or ESEF filings",
		Long: `Search the filing index. Criteria on different fields are combined with AND;
comma separated values within one field are combined with OR. Criteria that do
not apply to the filing system are reported as warnings and ignored.

Example:
  filingindex search --system sec --filer-name apple --form-type 10-K,10-Q
  filingindex search --system sec --industry-tree 28 --random --limit 5
  filingindex search --system esef --country FR --show-sql --dialect postgres`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.FilingSystem, "system", "", "filing system to search (sec|esef)")
	f.StringVar(&opts.PublicationDateFrom, "published-from", "", "first publication date (YYYY-MM-DD)")
	f.StringVar(&opts.PublicationDateTo, "published-to", "", "last publication date (YYYY-MM-DD)")
	f.StringVar(&opts.ReportDateFrom, "report-from", "", "first report period date (YYYY-MM-DD)")
	f.StringVar(&opts.ReportDateTo, "report-to", "", "last report period date (YYYY-MM-DD)")
	f.StringVar(&opts.FilingNumber, "filing-number", "", "accession numbers or catalog keys")
	f.StringVar(&opts.FilerIdentifier, "filer-id", "", "CIKs or LEIs")
	f.StringVar(&opts.IndustryCode, "industry-code", "", "SIC codes")
	f.StringVar(&opts.IndustryCodeTree, "industry-tree", "", "SIC codes including their descendants")
	f.StringVar(&opts.IndustryName, "industry-name", "", "industry description substrings")
	f.StringVar(&opts.FormType, "form-type", "", "SEC form types")
	f.StringVar(&opts.FilerName, "filer-name", "", "filer name substrings")
	f.StringVar(&opts.TickerSymbol, "ticker", "", "ticker symbols")
	f.StringVar(&opts.CountryAlpha2, "country", "", "ESEF ISO alpha-2 country codes")
	f.StringVar(&opts.CountryName, "country-name", "", "ESEF country name substrings")
	f.BoolVar(&opts.Random, "random", false, "return a random sample")
	f.IntVar(&opts.Limit, "limit", 0, fmt.Sprintf("maximum results; 0 means %d, negative means unbounded", search.DefaultLimit))
	f.BoolVar(&opts.IncludeDuplicates, "include-duplicates", false, "include filings tagged as resubmissions")
	f.StringVar(&opts.Dialect, "dialect", "sqlite", "SQL dialect for --show-sql (sqlite|postgres|mssql)")
	f.BoolVar(&opts.ShowSQL, "show-sql", false, "print the query instead of running it")

	return cmd
}

func runSearch(cmd *cobra.Command, opts *SearchOptions) error {
	a, err := openApp(cmd, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer a.close()

	dialect := search.SQLite
	if opts.ShowSQL {
		if dialect, err = search.ParseDialect(opts.Dialect); err != nil {
			return a.out.Fail("invalid --dialect", err)
		}
	}
	composer := search.NewComposer(a.st, dialect, a.logger)

	if opts.ShowSQL {
		q, err := composer.Build(cmd.Context(), opts.Criteria)
		if err != nil {
			return a.out.Fail("search failed", err)
		}
		return a.out.Respond(CLIResponse{Status: "ok", Data: queryText{q}, Warnings: q.Warnings})
	}

	records, warnings, err := composer.Run(cmd.Context(), opts.Criteria)
	if err != nil {
		return a.out.Fail("search failed", err)
	}
	return a.out.Respond(CLIResponse{Status: "ok", Data: recordTable(records), Warnings: warnings})
}

type queryText struct {
	search.Query
}

func (q queryText) WriteText(w io.Writer) error {
	fmt.Fprintln(w, q.SQL)
	for i, arg := range q.Args {
		fmt.Fprintf(w, "  $%d = %v\n", i+1, arg)
	}
	return nil
}

type recordTable []search.Record

func (r recordTable) WriteText(w io.Writer) error {
	if len(r) == 0 {
		_, err := fmt.Fprintln(w, "No filings found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tFILER\tNAME\tFORM\tPUBLISHED\tPERIOD")
	for _, rec := range r {
		number := rec.FilingNumber
		if rec.Duplicate {
			number += " (dup)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", rec.FilingID, number, rec.FilerIdentifier,
			rec.FilerName, rec.FormType, dateText(rec.PublicationDate), dateText(rec.ReportDate))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d filings\n", len(r))
	return err
}

func dateText(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
