package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/filingindex/internal/store"
)

// NewTasksCommand creates the tasks command group.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List recent task trackers",
		Long: `List recent task trackers and the last successful update of each task.

Example:
  filingindex tasks --limit 5
  filingindex tasks close update-feeds
  filingindex tasks stats run-0001`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.close()

			rows, updates, err := a.engine.Tasks(cmd.Context(), limit)
			if err != nil {
				return a.out.Fail("failed to list tasks", err)
			}
			return a.out.Success(newTaskReport(rows, updates))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of trackers to show")

	cmd.AddCommand(newTasksCloseCommand(rootOpts))
	cmd.AddCommand(newTasksStatsCommand(rootOpts))
	return cmd
}

func newTasksCloseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "close <task>",
		Short:         "Close a task left open by a killed process",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.close()

			closed, err := a.engine.CloseTask(cmd.Context(), args[0])
			if err != nil {
				return a.out.Fail("failed to close task", err)
			}
			if !closed {
				return a.out.Success(fmt.Sprintf("No open tracker for %s", args[0]))
			}
			return a.out.Success(fmt.Sprintf("Closed %s as interrupted", args[0]))
		},
	}
}

func newTasksStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats <run-id>",
		Short:         "Show the merge statistics of a run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.st.ProcessingStats(cmd.Context(), args[0])
			if err != nil {
				return a.out.Fail("failed to read run statistics", err)
			}
			view := make(statTable, len(stats))
			for i, s := range stats {
				view[i] = statView{
					Unit: s.Unit, Table: s.Table, Action: s.Action,
					Rows: s.RowCount, Elapsed: s.Elapsed.Seconds(), Committed: s.Committed,
				}
			}
			return a.out.Respond(CLIResponse{Status: "ok", RunID: args[0], Data: view})
		},
	}
}

type taskView struct {
	TaskID      int64     `json:"task_id"`
	Task        string    `json:"task"`
	ProcessID   int       `json:"process_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitzero"`
	Closed      bool      `json:"closed"`
	Completed   bool      `json:"completed"`
	Interrupted bool      `json:"interrupted"`
	Total       int       `json:"total"`
	Done        int       `json:"done"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	Notes       string    `json:"notes,omitempty"`
}

type taskReport struct {
	Trackers    []taskView           `json:"trackers"`
	LastUpdates map[string]time.Time `json:"last_updates"`
	order       []string
}

func newTaskReport(rows []store.TrackerRow, updates []store.LastUpdate) taskReport {
	r := taskReport{
		Trackers:    make([]taskView, len(rows)),
		LastUpdates: make(map[string]time.Time, len(updates)),
	}
	for i, row := range rows {
		r.Trackers[i] = taskView{
			TaskID:      row.TaskID,
			Task:        row.TaskName,
			ProcessID:   row.ProcessID,
			StartedAt:   row.StartedAt,
			EndedAt:     row.EndedAt,
			Closed:      row.IsClosed,
			Completed:   row.IsCompleted,
			Interrupted: row.IsInterrupted,
			Total:       row.TotalItems,
			Done:        row.CompletedItems,
			Successful:  row.SuccessfulItems,
			Failed:      row.FailedItems,
			Notes:       row.TaskNotes,
		}
	}
	for _, u := range updates {
		r.LastUpdates[u.TaskName] = u.LastUpdated
		r.order = append(r.order, u.TaskName)
	}
	return r
}

func (r taskReport) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tSTATE\tSTARTED\tITEMS\tNOTES")
	for _, t := range r.Trackers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d/%d ok, %d failed\t%s\n", t.TaskID, t.Task, t.state(),
			humanize.Time(t.StartedAt), t.Successful, t.Total, t.Failed, t.Notes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(r.order) > 0 {
		fmt.Fprintln(w, "Last updates:")
		for _, name := range r.order {
			fmt.Fprintf(w, "  %-24s %s\n", name, r.LastUpdates[name].Format(time.RFC3339))
		}
	}
	return nil
}

func (t taskView) state() string {
	switch {
	case !t.Closed:
		return "running"
	case t.Interrupted:
		return "interrupted"
	case t.Completed:
		return "completed"
	}
	return "failed"
}

type statView struct {
	Unit      string  `json:"unit"`
	Table     string  `json:"table"`
	Action    string  `json:"action"`
	Rows      int64   `json:"rows"`
	Elapsed   float64 `json:"elapsed_seconds"`
	Committed bool    `json:"committed"`
}

type statTable []statView

func (s statTable) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tTABLE\tACTION\tROWS\tSECONDS\tCOMMITTED")
	for _, v := range s {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\t%t\n", v.Unit, v.Table, v.Action, humanize.Comma(v.Rows), v.Elapsed, v.Committed)
	}
	return tw.Flush()
}
