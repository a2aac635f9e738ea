package store

import (
	"database/sql"
	"time"
)

// IngestRun represents a single dataset import for auditing.
type IngestRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	Source        string // "dir", "http", "ftp", "synthetic"
	Location      string // path or URL the dataset came from
	Files         sql.NullInt64
	Bytes         sql.NullInt64
	RowsParsed    sql.NullInt64
	RowsDropped   sql.NullInt64
	RowsFlagged   sql.NullInt64
	RecordsStored sql.NullInt64
	Success       bool
	ErrorMessage  sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(source, location string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Location:  location,
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, source, location, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Location)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			files = ?,
			bytes = ?,
			rows_parsed = ?,
			rows_dropped = ?,
			rows_flagged = ?,
			records_stored = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Files, run.Bytes, run.RowsParsed, run.RowsDropped,
		run.RowsFlagged, run.RecordsStored, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentIngestRuns returns the newest ingest runs first.
func (s *Store) RecentIngestRuns(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, location, files, bytes,
			   rows_parsed, rows_dropped, rows_flagged, records_stored,
			   success, error_message
		FROM ingest_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Location,
			&r.Files, &r.Bytes, &r.RowsParsed, &r.RowsDropped, &r.RowsFlagged,
			&r.RecordsStored, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
