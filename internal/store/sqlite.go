package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/neurasky/neurasky/internal/models"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertFlightRecords stores records in one transaction, skipping rows that
// already exist. It returns the number of rows actually inserted.
func (s *Store) InsertFlightRecords(records []models.FlightRecord) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO flight_records (flight_date, airline, flight_number, origin, dest, crs_dep_time, distance, delay_minutes, delayed, source, quality_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(flight_date, airline, origin, dest, crs_dep_time, flight_number) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		var flags sql.NullString
		if r.QualityFlags != "" {
			flags = sql.NullString{String: r.QualityFlags, Valid: true}
		}
		res, err := stmt.Exec(r.FlightDate.Format(dateLayout), r.Airline, r.FlightNumber, r.Origin, r.Dest,
			r.CRSDepTime, r.Distance, r.DelayMinutes, r.Delayed, r.Source, flags)
		if err != nil {
			return 0, fmt.Errorf("insert flight record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (s *Store) CountFlightRecords() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM flight_records`).Scan(&n)
	return n, err
}

// FlightRecords returns records with a flight date on or after since, oldest
// first. A zero since returns everything.
func (s *Store) FlightRecords(since time.Time) ([]models.FlightRecord, error) {
	from := ""
	if !since.IsZero() {
		from = since.Format(dateLayout)
	}
	rows, err := s.db.Query(`
		SELECT id, flight_date, airline, flight_number, origin, dest, crs_dep_time, distance, delay_minutes, delayed, source, quality_flags, created_at
		FROM flight_records
		WHERE flight_date >= ?
		ORDER BY flight_date ASC, crs_dep_time ASC, id ASC
	`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.FlightRecord
	for rows.Next() {
		var r models.FlightRecord
		var date string
		var source, flags sql.NullString
		if err := rows.Scan(&r.ID, &date, &r.Airline, &r.FlightNumber, &r.Origin, &r.Dest, &r.CRSDepTime,
			&r.Distance, &r.DelayMinutes, &r.Delayed, &source, &flags, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.FlightDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse flight date %q: %w", date, err)
		}
		r.Source = source.String
		r.QualityFlags = flags.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordCountsByRoute returns the number of stored records per origin/dest pair.
func (s *Store) RecordCountsByRoute() (map[[2]string]int, error) {
	rows, err := s.db.Query(`SELECT origin, dest, COUNT(*) FROM flight_records GROUP BY origin, dest`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[[2]string]int)
	for rows.Next() {
		var origin, dest string
		var n int
		if err := rows.Scan(&origin, &dest, &n); err != nil {
			return nil, err
		}
		counts[[2]string{origin, dest}] = n
	}
	return counts, rows.Err()
}
