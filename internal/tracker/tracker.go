// Package tracker guards named tasks against concurrent runs and records
// their progress.
//
// Every top-level operation runs through Run, which opens a tracker row,
// hands the task a *Tracker for progress updates and closes the row on
// every exit path. At most one open tracker exists per task name across
// all processes sharing a database.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/roach88/filingindex/internal/logsink"
	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/store"
	"github.com/roach88/filingindex/internal/telemetry"
)

// Task names.
const (
	UpdateFeeds          = "update-feeds"
	InsertNewFilers      = "insert-new-filers"
	UpdateExistingFilers = "update-existing-filers"
	ProcessDuplicates    = "process-duplicates"
	UpdateESEFFilings    = "update-esef-filings"
	UpdateESEFEntities   = "update-esef-entities"
	RefreshTables        = "refresh-tables"
)

// Tasks lists every known task name.
var Tasks = []string{
	UpdateFeeds, InsertNewFilers, UpdateExistingFilers, ProcessDuplicates,
	UpdateESEFFilings, UpdateESEFEntities, RefreshTables,
}

// NoteLimit is the maximum length of a single persisted note.
const NoteLimit = 50

// Options configures trackers.
type Options struct {
	// ProcessID is recorded on the tracker row. Defaults to os.Getpid().
	ProcessID int

	// Now returns the wall-clock time. Defaults to time.Now.
	Now func() time.Time

	// Logger receives lifecycle messages. Defaults to slog.Default().
	Logger *slog.Logger

	// Sink, when set, is drained into action_log when the tracker closes.
	Sink *logsink.Sink

	// Metrics counts task outcomes and processed items. May be nil.
	Metrics *telemetry.Metrics
}

func (o Options) withDefaults() Options {
	if o.ProcessID == 0 {
		o.ProcessID = os.Getpid()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Tracker is the handle of one task invocation.
type Tracker struct {
	st     *store.Store
	opts   Options
	row    store.TrackerRow
	notes  []string
	closed bool
}

// Begin opens a tracker for task. When another tracker with the same name
// is open, Begin records this invocation as already closed and
// interrupted, and returns ok=false; the caller must not proceed.
func Begin(ctx context.Context, st *store.Store, task, params string, opts Options) (*Tracker, bool, error) {
	opts = opts.withDefaults()
	t := &Tracker{
		st:   st,
		opts: opts,
		row: store.TrackerRow{
			ProcessID:      opts.ProcessID,
			TaskName:       task,
			TaskParameters: params,
			StartedAt:      opts.Now().UTC(),
		},
	}

	id, existing, ok, err := st.OpenTracker(ctx, t.row)
	if err != nil {
		return nil, false, fmt.Errorf("begin %s: %w", task, err)
	}
	if ok {
		t.row.TaskID = id
		opts.Logger.Info("Starting task", "task", task, "task_id", id)
		return t, true, nil
	}

	msg := fmt.Sprintf("Aborted: %s is already running with process id %d and task_id %d, closing this task.",
		task, existing.ProcessID, existing.TaskID)
	t.row.IsClosed = true
	t.row.IsInterrupted = true
	t.row.EndedAt = t.row.StartedAt
	t.row.TaskNotes = msg
	t.notes = []string{msg}
	t.closed = true
	if t.row.TaskID, err = st.InsertTracker(ctx, t.row); err != nil {
		return nil, false, fmt.Errorf("begin %s: record rejected run: %w", task, err)
	}
	opts.Logger.Warn(msg)
	opts.Metrics.TaskFinished(task, "rejected")
	return t, false, nil
}

// Run executes fn under a tracker for task. A rejected Begin returns an
// existing-task-in-progress error without calling fn. Any error from fn
// closes the tracker as interrupted before it is returned; a panic in fn
// closes it the same way and is re-raised.
func Run(ctx context.Context, st *store.Store, task, params string, opts Options, fn func(context.Context, *Tracker) error) error {
	t, ok, err := Begin(ctx, st, task, params, opts)
	if err != nil {
		return err
	}
	if !ok {
		return &model.IndexError{Code: model.ErrCodeTaskInProgress, Task: task, Message: t.Notes()}
	}

	// Close must succeed after cancellation so the task is not left open.
	closeCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			note := fmt.Sprintf("panic: %v", r)
			t.opts.Logger.Error("Task panicked", "task", task, "panic", r)
			if cerr := t.Close(closeCtx, false, true, note); cerr != nil {
				t.opts.Logger.Error("Closing tracker after panic failed", "task", task, "error", cerr)
			}
			panic(r)
		}
	}()
	if err := fn(ctx, t); err != nil {
		t.opts.Logger.Error("Task failed", "task", task, "error", err)
		if cerr := t.Close(closeCtx, false, true, err.Error()); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	return t.Close(closeCtx, true, false, "")
}

// ID returns the tracker's row id.
func (t *Tracker) ID() int64 { return t.row.TaskID }

// Task returns the task name.
func (t *Tracker) Task() string { return t.row.TaskName }

// Notes returns the accumulated notes joined with "|".
func (t *Tracker) Notes() string { return strings.Join(t.notes, "|") }

// Counts returns total, completed, successful and failed item counts.
func (t *Tracker) Counts() (total, completed, successful, failed int) {
	return t.row.TotalItems, t.row.CompletedItems, t.row.SuccessfulItems, t.row.FailedItems
}

// Closed reports whether the tracker has been closed.
func (t *Tracker) Closed() bool { return t.closed }

// Advance records count completed items, all successful or all failed,
// and appends note when non-empty. The update is committed immediately.
func (t *Tracker) Advance(ctx context.Context, count int, success bool, note string) error {
	if t.closed {
		return model.Errorf(model.ErrCodeNoTaskTracker, "tracker %d is closed", t.row.TaskID)
	}
	ok, failed := count, 0
	if !success {
		ok, failed = 0, count
	}
	t.addNote(note)
	if err := t.st.AdvanceTracker(ctx, t.row.TaskID, count, ok, failed, t.Notes()); err != nil {
		return err
	}
	t.row.CompletedItems += count
	t.row.SuccessfulItems += ok
	t.row.FailedItems += failed
	t.opts.Metrics.ItemsProcessed(t.row.TaskName, count, success)
	return nil
}

// SetTotal sets the number of items the task expects to process.
func (t *Tracker) SetTotal(ctx context.Context, n int) error {
	if t.closed {
		return model.Errorf(model.ErrCodeNoTaskTracker, "tracker %d is closed", t.row.TaskID)
	}
	if err := t.st.SetTrackerTotal(ctx, t.row.TaskID, n); err != nil {
		return err
	}
	t.row.TotalItems = n
	return nil
}

// AddTotal grows the expected item count, used when failed items are
// queued for retry.
func (t *Tracker) AddTotal(ctx context.Context, n int) error {
	if t.closed {
		return model.Errorf(model.ErrCodeNoTaskTracker, "tracker %d is closed", t.row.TaskID)
	}
	if err := t.st.AddTrackerTotal(ctx, t.row.TaskID, n); err != nil {
		return err
	}
	t.row.TotalItems += n
	return nil
}

// Close stamps the end time and flags, writes the task's last update and
// drains the log sink into action_log. Closing twice is a no-op.
func (t *Tracker) Close(ctx context.Context, completed, interrupted bool, note string) error {
	if t.closed {
		return nil
	}
	t.addNote(note)
	ended := t.opts.Now().UTC()
	t.row.IsClosed = true
	t.row.IsCompleted = completed
	t.row.IsInterrupted = interrupted
	t.row.EndedAt = ended
	t.row.TimeTaken = math.Round(ended.Sub(t.row.StartedAt).Seconds()*1000) / 1000
	t.row.TaskNotes = t.Notes()

	if _, err := t.st.CloseTracker(ctx, t.row); err != nil {
		return fmt.Errorf("close %s: %w", t.row.TaskName, err)
	}
	t.closed = true
	outcome := "completed"
	if interrupted || !completed {
		outcome = "interrupted"
	}
	t.opts.Metrics.TaskFinished(t.row.TaskName, outcome)
	t.opts.Logger.Info("Closed task", "task", t.row.TaskName, "task_id", t.row.TaskID,
		"completed", completed, "interrupted", interrupted, "time_taken", t.row.TimeTaken)
	return t.flushLogs(ctx)
}

func (t *Tracker) flushLogs(ctx context.Context) error {
	if t.opts.Sink == nil {
		return nil
	}
	records := t.opts.Sink.Drain()
	logs := make([]store.ActionLog, 0, len(records))
	for _, r := range records {
		logs = append(logs, store.ActionLog{
			TaskID:  t.row.TaskID,
			At:      r.Time,
			Level:   r.Level.String(),
			Message: r.Message,
			Attrs:   r.Attrs,
		})
	}
	return t.st.WriteActionLogs(ctx, logs)
}

func (t *Tracker) addNote(note string) {
	if note == "" {
		return
	}
	t.notes = append(t.notes, Truncate(note))
}

// Truncate cuts s to NoteLimit runes.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= NoteLimit {
		return s
	}
	return string(r[:NoteLimit])
}

// FormatParams renders key/value pairs as "k=v, k=v" for the tracker row.
func FormatParams(kv ...any) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
	}
	return strings.Join(parts, ", ")
}

// ForceClose closes the open tracker of task, if any, as interrupted.
// Used to release a task left open by a killed process. Returns whether a
// tracker was closed.
func ForceClose(ctx context.Context, st *store.Store, task string, opts Options) (bool, error) {
	opts = opts.withDefaults()
	row, found, err := st.OpenTrackerFor(ctx, task)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	t := &Tracker{st: st, opts: opts, row: row}
	if row.TaskNotes != "" {
		t.notes = strings.Split(row.TaskNotes, "|")
	}
	note := fmt.Sprintf("Force closed by process id %d", opts.ProcessID)
	if err := t.Close(ctx, false, true, note); err != nil {
		return false, err
	}
	opts.Logger.Warn("Force closed task", "task", task, "task_id", row.TaskID, "process_id", row.ProcessID)
	return true, nil
}
