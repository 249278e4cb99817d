package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// TrackerRow is one task_tracker record.
type TrackerRow struct {
	TaskID          int64
	ProcessID       int
	TaskName        string
	IsClosed        bool
	IsCompleted     bool
	IsInterrupted   bool
	TaskParameters  string
	StartedAt       time.Time
	EndedAt         time.Time
	TimeTaken       float64
	TotalItems      int
	CompletedItems  int
	SuccessfulItems int
	FailedItems     int
	TaskNotes       string
}

// LastUpdate is one last_update stamp.
type LastUpdate struct {
	TaskName    string
	LastUpdated time.Time
}

// OpenTracker inserts an open tracker unless one is already open for the
// same task name. When one is, it returns that row and ok=false and
// inserts nothing.
//
// The check and the insert run in one transaction; the partial unique
// index on open trackers settles races between processes.
func (s *Store) OpenTracker(ctx context.Context, row TrackerRow) (id int64, existing TrackerRow, ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, TrackerRow{}, false, fmt.Errorf("open tracker: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, found, err := findOpenTracker(ctx, tx, row.TaskName)
	if err != nil {
		return 0, TrackerRow{}, false, err
	}
	if found {
		return 0, existing, false, nil
	}

	id, err = insertTracker(ctx, tx, row)
	if err != nil {
		if isUniqueViolation(err) {
			// Another process won the race between our check and insert.
			existing, _, ferr := findOpenTracker(ctx, tx, row.TaskName)
			if ferr != nil {
				return 0, TrackerRow{}, false, ferr
			}
			return 0, existing, false, nil
		}
		return 0, TrackerRow{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, TrackerRow{}, false, fmt.Errorf("open tracker: commit: %w", err)
	}
	return id, TrackerRow{}, true, nil
}

// InsertTracker inserts a tracker row as given, used for rejected
// invocations that are recorded already closed.
func (s *Store) InsertTracker(ctx context.Context, row TrackerRow) (int64, error) {
	return insertTracker(ctx, s.db, row)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertTracker(ctx context.Context, q execQuerier, row TrackerRow) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO task_tracker
		(process_id, task_name, is_closed, is_completed, is_interrupted, task_parameters,
		 started_at, ended_at, time_taken, total_items, completed_items, successful_items,
		 failed_items, task_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ProcessID, row.TaskName, boolInt(row.IsClosed), boolInt(row.IsCompleted),
		boolInt(row.IsInterrupted), dbText(row.TaskParameters), dbTime(row.StartedAt),
		dbTime(row.EndedAt), row.TimeTaken, row.TotalItems, row.CompletedItems,
		row.SuccessfulItems, row.FailedItems, dbText(row.TaskNotes),
	)
	if err != nil {
		return 0, fmt.Errorf("insert tracker: %w", err)
	}
	return res.LastInsertId()
}

const trackerColumns = `task_id, process_id, task_name, is_closed, is_completed, is_interrupted,
	task_parameters, started_at, ended_at, time_taken, total_items, completed_items,
	successful_items, failed_items, task_notes`

func findOpenTracker(ctx context.Context, q execQuerier, taskName string) (TrackerRow, bool, error) {
	row, err := scanTracker(q.QueryRowContext(ctx, `
		SELECT `+trackerColumns+`
		FROM task_tracker
		WHERE task_name = ? AND is_closed = 0
		ORDER BY task_id ASC
		LIMIT 1
	`, taskName))
	if errors.Is(err, sql.ErrNoRows) {
		return TrackerRow{}, false, nil
	}
	if err != nil {
		return TrackerRow{}, false, fmt.Errorf("find open tracker: %w", err)
	}
	return row, true, nil
}

// OpenTrackerFor returns the open tracker for a task name, if any.
func (s *Store) OpenTrackerFor(ctx context.Context, taskName string) (TrackerRow, bool, error) {
	return findOpenTracker(ctx, s.db, taskName)
}

// Tracker returns one tracker by id.
func (s *Store) Tracker(ctx context.Context, id int64) (TrackerRow, error) {
	row, err := scanTracker(s.db.QueryRowContext(ctx, `
		SELECT `+trackerColumns+` FROM task_tracker WHERE task_id = ?
	`, id))
	if err != nil {
		return TrackerRow{}, fmt.Errorf("read tracker %d: %w", id, err)
	}
	return row, nil
}

// Trackers returns the most recent trackers, newest first.
func (s *Store) Trackers(ctx context.Context, limit int) ([]TrackerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+trackerColumns+`
		FROM task_tracker
		ORDER BY task_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trackers: %w", err)
	}
	defer rows.Close()

	trackers := []TrackerRow{}
	for rows.Next() {
		row, err := scanTracker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracker: %w", err)
		}
		trackers = append(trackers, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trackers: %w", err)
	}
	return trackers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTracker(r rowScanner) (TrackerRow, error) {
	var row TrackerRow
	var params, notes sql.NullString
	var ended sql.NullTime
	var taken sql.NullFloat64
	err := r.Scan(&row.TaskID, &row.ProcessID, &row.TaskName, &row.IsClosed, &row.IsCompleted,
		&row.IsInterrupted, &params, &row.StartedAt, &ended, &taken, &row.TotalItems,
		&row.CompletedItems, &row.SuccessfulItems, &row.FailedItems, &notes)
	if err != nil {
		return TrackerRow{}, err
	}
	row.TaskParameters = params.String
	row.TaskNotes = notes.String
	row.StartedAt = row.StartedAt.UTC()
	row.EndedAt = timeOf(ended)
	row.TimeTaken = taken.Float64
	return row, nil
}

// AdvanceTracker adds to the progress counters and replaces the notes.
// Commits immediately.
func (s *Store) AdvanceTracker(ctx context.Context, id int64, completed, successful, failed int, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_tracker
		SET completed_items = completed_items + ?,
		    successful_items = successful_items + ?,
		    failed_items = failed_items + ?,
		    task_notes = ?
		WHERE task_id = ?
	`, completed, successful, failed, dbText(notes), id)
	if err != nil {
		return fmt.Errorf("advance tracker %d: %w", id, err)
	}
	return nil
}

// AddTrackerTotal adds n to the total item count.
func (s *Store) AddTrackerTotal(ctx context.Context, id int64, n int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_tracker SET total_items = total_items + ? WHERE task_id = ?
	`, n, id)
	if err != nil {
		return fmt.Errorf("add tracker total %d: %w", id, err)
	}
	return nil
}

// SetTrackerTotal sets the total item count.
func (s *Store) SetTrackerTotal(ctx context.Context, id int64, n int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_tracker SET total_items = ? WHERE task_id = ?
	`, n, id)
	if err != nil {
		return fmt.Errorf("set tracker total %d: %w", id, err)
	}
	return nil
}

// CloseTracker closes a tracker and writes the task's LastUpdate stamp in
// the same transaction. Closing an already closed tracker is a no-op.
func (s *Store) CloseTracker(ctx context.Context, row TrackerRow) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("close tracker: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE task_tracker
		SET is_closed = 1, is_completed = ?, is_interrupted = ?, ended_at = ?,
		    time_taken = ?, task_notes = ?
		WHERE task_id = ? AND is_closed = 0
	`, boolInt(row.IsCompleted), boolInt(row.IsInterrupted), dbTime(row.EndedAt),
		row.TimeTaken, dbText(row.TaskNotes), row.TaskID)
	if err != nil {
		return false, fmt.Errorf("close tracker %d: %w", row.TaskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close tracker %d: rows affected: %w", row.TaskID, err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO last_update (task_name, last_updated) VALUES (?, ?)
	`, row.TaskName, dbTime(row.EndedAt)); err != nil {
		return false, fmt.Errorf("write last update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("close tracker: commit: %w", err)
	}
	return true, nil
}

// LastUpdates returns the most recent stamp per task name.
func (s *Store) LastUpdates(ctx context.Context) ([]LastUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_name, MAX(update_id) FROM last_update
		GROUP BY task_name
		ORDER BY task_name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query last updates: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan last update: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last updates: %w", err)
	}

	updates := []LastUpdate{}
	for _, id := range ids {
		var u LastUpdate
		err := s.db.QueryRowContext(ctx, `
			SELECT task_name, last_updated FROM last_update WHERE update_id = ?
		`, id).Scan(&u.TaskName, &u.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("read last update %d: %w", id, err)
		}
		u.LastUpdated = u.LastUpdated.UTC()
		updates = append(updates, u)
	}
	return updates, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
