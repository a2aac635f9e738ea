package ingest

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/neurasky/neurasky/internal/features"
	"github.com/neurasky/neurasky/internal/models"
)

// Dataset column names, following the BTS on-time performance layout.
const (
	ColFlightDate   = "FlightDate"
	ColAirline      = "Operating_Airline"
	ColFlightNumber = "Flight_Number_Operating_Airline"
	ColOrigin       = "Origin"
	ColDest         = "Dest"
	ColCRSDepTime   = "CRSDepTime"
	ColDistance     = "Distance"
	ColDelayMinutes = "DepDelayMinutes"
	ColDepDel15     = "DepDel15"
)

var requiredColumns = []string{ColFlightDate, ColAirline, ColOrigin, ColDest, ColCRSDepTime, ColDepDel15}

// WriteColumns is the header WriteCSV emits.
var WriteColumns = []string{
	ColFlightDate, ColAirline, ColFlightNumber, ColOrigin, ColDest,
	ColCRSDepTime, ColDistance, ColDelayMinutes, ColDepDel15,
}

// ParseStats counts what ParseCSV kept and skipped.
type ParseStats struct {
	Rows    int
	Dropped int
}

// ParseCSV reads a header-driven dataset file. Extra columns are ignored.
// Rows with a missing or unparseable required value are dropped and
// counted; a missing required column fails the whole file.
func ParseCSV(r io.Reader, source string) ([]models.FlightRecord, ParseStats, error) {
	var stats ParseStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, stats, errors.New("empty dataset file")
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, stats, fmt.Errorf("missing required column %q", c)
		}
	}

	var out []models.FlightRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++

		rec, ok := parseRow(row, idx)
		if !ok {
			stats.Dropped++
			continue
		}
		rec.Source = source
		out = append(out, rec)
	}
	return out, stats, nil
}

func parseRow(row []string, idx map[string]int) (models.FlightRecord, bool) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec models.FlightRecord
	date, err := time.Parse("2006-01-02", get(ColFlightDate))
	if err != nil {
		return rec, false
	}
	rec.FlightDate = date

	rec.Airline = features.NormalizeCode(get(ColAirline))
	rec.Origin = features.NormalizeCode(get(ColOrigin))
	rec.Dest = features.NormalizeCode(get(ColDest))
	if rec.Airline == "" || rec.Origin == "" || rec.Dest == "" {
		return rec, false
	}

	dep, ok := parseNumber(get(ColCRSDepTime))
	if !ok || dep < 0 || dep != math.Trunc(dep) {
		return rec, false
	}
	rec.CRSDepTime = int(dep)
	if rec.CRSDepTime/100 > 23 || rec.CRSDepTime%100 > 59 {
		return rec, false
	}

	flag, ok := parseNumber(get(ColDepDel15))
	if !ok || (flag != 0 && flag != 1) {
		return rec, false
	}
	rec.Delayed = flag == 1

	if d, ok := parseNumber(get(ColDistance)); ok {
		rec.Distance = sql.NullFloat64{Float64: d, Valid: true}
	}
	if d, ok := parseNumber(get(ColDelayMinutes)); ok {
		rec.DelayMinutes = sql.NullFloat64{Float64: d, Valid: true}
	}
	rec.FlightNumber = get(ColFlightNumber)
	return rec, true
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// WriteCSV writes records in the WriteColumns layout.
func WriteCSV(w io.Writer, records []models.FlightRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(WriteColumns); err != nil {
		return err
	}
	for _, r := range records {
		flag := "0"
		if r.Delayed {
			flag = "1"
		}
		if err := cw.Write([]string{
			r.FlightDate.Format("2006-01-02"),
			r.Airline,
			r.FlightNumber,
			r.Origin,
			r.Dest,
			strconv.Itoa(r.CRSDepTime),
			nullFloat(r.Distance),
			nullFloat(r.DelayMinutes),
			flag,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func nullFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}
