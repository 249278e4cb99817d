package store

import (
	"context"
	"fmt"
	"time"
)

// ProcessingStat is one telemetry row of a merge step.
type ProcessingStat struct {
	RunID     string
	At        time.Time
	Unit      string // feed id or catalog key
	Table     string
	Action    string
	RowCount  int64
	Elapsed   time.Duration
	Committed bool
}

// ActionLog is one drained log record attributed to a task.
type ActionLog struct {
	TaskID  int64
	At      time.Time
	Level   string
	Message string
	Attrs   string
}

// WriteProcessingStats appends merge telemetry rows.
func (s *Store) WriteProcessingStats(ctx context.Context, stats []ProcessingStat) error {
	if len(stats) == 0 {
		return nil
	}
	args := make([]any, 0, len(stats)*8)
	for _, st := range stats {
		args = append(args, st.RunID, dbTime(st.At), st.Unit, st.Table, st.Action,
			st.RowCount, st.Elapsed.Seconds(), boolInt(st.Committed))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_log (run_id, ts, unit, table_name, action, row_count, elapsed, committed)
		VALUES `+placeholders(len(stats), 8), args...)
	if err != nil {
		return fmt.Errorf("write processing stats: %w", err)
	}
	return nil
}

// ProcessingStats returns the telemetry rows of one run in insert order.
func (s *Store) ProcessingStats(ctx context.Context, runID string) ([]ProcessingStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, ts, unit, table_name, action, row_count, elapsed, committed
		FROM processing_log
		WHERE run_id = ?
		ORDER BY log_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query processing stats: %w", err)
	}
	defer rows.Close()

	stats := []ProcessingStat{}
	for rows.Next() {
		var st ProcessingStat
		var elapsed float64
		if err := rows.Scan(&st.RunID, &st.At, &st.Unit, &st.Table, &st.Action, &st.RowCount,
			&elapsed, &st.Committed); err != nil {
			return nil, fmt.Errorf("scan processing stat: %w", err)
		}
		st.Elapsed = time.Duration(elapsed * float64(time.Second))
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing stats: %w", err)
	}
	return stats, nil
}

// WriteActionLogs appends drained log records.
func (s *Store) WriteActionLogs(ctx context.Context, logs []ActionLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, l := range logs {
			var taskID any
			if l.TaskID != 0 {
				taskID = l.TaskID
			}
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO action_log (task_id, ts, level, message, attrs) VALUES (?, ?, ?, ?, ?)
			`, taskID, dbTime(l.At), l.Level, l.Message, dbText(l.Attrs)); err != nil {
				return fmt.Errorf("write action log: %w", err)
			}
		}
		return nil
	})
}

// countableTables lists the tables CountRows accepts.
var countableTables = map[string]bool{
	"sec_feed": true, "sec_filing": true, "sec_file": true, "sec_filer": true,
	"sec_former_names": true, "sec_cik_ticker_mapping": true, "sec_industry": true,
	"location": true, "esef_filing": true, "esef_filing_error": true,
	"esef_filing_lang": true, "esef_inferred_filing_language": true, "esef_entity": true,
	"esef_entity_other_name": true, "task_tracker": true, "last_update": true,
	"processing_log": true, "action_log": true,
}

// CountRows returns the number of rows in a known table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if !countableTables[table] {
		return 0, fmt.Errorf("count rows: unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows %s: %w", table, err)
	}
	return n, nil
}
