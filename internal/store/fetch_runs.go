package store

import (
	"context"
	"database/sql"
	"time"
)

// FetchRun is the journal entry of one remote call.
type FetchRun struct {
	ID                int64
	RequestID         string
	Operation         string // "list_locations", "fetch_forecast", ...
	Method            string
	URL               string // API keys redacted
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	Status            string // "ok", "404", "network_error", ...
	Success           bool
	ErrorMessage      sql.NullString
}

// InsertFetchRun stores a completed run and returns its id.
func (s *Store) InsertFetchRun(ctx context.Context, run FetchRun) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_runs (request_id, operation, method, url, started_at, finished_at,
			http_status, response_size_bytes, status, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RequestID, run.Operation, run.Method, run.URL, run.StartedAt.UTC(), run.FinishedAt,
		run.HTTPStatus, run.ResponseSizeBytes, run.Status, run.Success, run.ErrorMessage)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const fetchRunColumns = `id, request_id, operation, method, url, started_at, finished_at,
	http_status, response_size_bytes, status, success, error_message`

func scanFetchRuns(rows *sql.Rows) ([]FetchRun, error) {
	defer rows.Close()
	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Operation, &r.Method, &r.URL, &r.StartedAt,
			&r.FinishedAt, &r.HTTPStatus, &r.ResponseSizeBytes, &r.Status, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RecentFetchRuns returns the latest runs, newest first.
func (s *Store) RecentFetchRuns(ctx context.Context, limit int) ([]FetchRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fetchRunColumns+`
		FROM fetch_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanFetchRuns(rows)
}

// RecentFetchErrors returns the latest failed runs, newest first.
func (s *Store) RecentFetchErrors(ctx context.Context, limit int) ([]FetchRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fetchRunColumns+`
		FROM fetch_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanFetchRuns(rows)
}

// FetchHealthSummary is a daily per-operation summary.
type FetchHealthSummary struct {
	Date        string
	Operation   string
	TotalRuns   int
	SuccessRuns int
	FailedRuns  int
	TotalBytes  int64
}

// GetFetchHealth returns daily summaries for the last N days.
func (s *Store) GetFetchHealth(ctx context.Context, days int) ([]FetchHealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			operation,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(response_size_bytes), 0) as total_bytes
		FROM fetch_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, operation
		ORDER BY date DESC, operation
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Operation, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns, &h.TotalBytes); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}
