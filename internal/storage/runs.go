package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is one recorded engine operation.
type Run struct {
	ID           int64
	Op           string
	WindowID     int
	State        string
	Moved        int
	Groups       int
	SettleRounds int
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// RecordRun appends a run to the history.
func RecordRun(db *sql.DB, r Run) (int64, error) {
	var errVal interface{}
	if r.Error != "" {
		errVal = r.Error
	}
	res, err := db.Exec(
		`INSERT INTO runs (op, window_id, state, moved, group_count, settle_rounds, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Op, r.WindowID, r.State, r.Moved, r.Groups, r.SettleRounds, errVal, r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs first. A limit of 0 returns all.
func ListRuns(db *sql.DB, limit int) ([]Run, error) {
	query := `SELECT id, op, window_id, state, moved, group_count, settle_rounds, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		var r Run
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Op, &r.WindowID, &r.State, &r.Moved, &r.Groups, &r.SettleRounds, &errText, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Error = errText.String
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}
