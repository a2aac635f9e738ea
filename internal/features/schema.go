package features

import (
	"fmt"
	"slices"

	"github.com/neurasky/neurasky/internal/encoder"
)

// SchemaVersion tags the column layout produced by Derive. Bump it whenever a
// column is added, removed, renamed or its value domain changes.
const SchemaVersion = "v2"

const (
	ColMonth           = "Month"
	ColDayOfWeek       = "DayOfWeek"
	ColCRSDepTime      = "CRSDepTime"
	ColAirline         = "Operating_Airline"
	ColOrigin          = "Origin"
	ColDest            = "Dest"
	ColDistance        = "Distance"
	ColHour            = "Hour"
	ColIsInternational = "IsInternational"
	ColIsPeakHour      = "IsPeakHour"
	ColIsWeekend       = "IsWeekend"
	ColTimeOfDay       = "TimeOfDay"
)

var columns = []string{
	ColMonth,
	ColDayOfWeek,
	ColCRSDepTime,
	ColAirline,
	ColOrigin,
	ColDest,
	ColDistance,
	ColHour,
	ColIsInternational,
	ColIsPeakHour,
	ColIsWeekend,
	ColTimeOfDay,
}

var categoricalColumns = []string{ColAirline, ColOrigin, ColDest, ColTimeOfDay}

// NeutralValue fills schema columns the deriver does not produce.
const NeutralValue = 0.0

// Schema is the ordered list of model input columns.
type Schema struct {
	Version string   `yaml:"version" json:"version"`
	Columns []string `yaml:"columns" json:"columns"`
}

// Current is the schema Derive produces.
func Current() Schema {
	return Schema{Version: SchemaVersion, Columns: slices.Clone(columns)}
}

// CategoricalColumns lists the columns that go through the encoder.
func CategoricalColumns() []string {
	return slices.Clone(categoricalColumns)
}

func IsCategorical(column string) bool {
	return slices.Contains(categoricalColumns, column)
}

func (s Schema) Len() int { return len(s.Columns) }

func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %q has no columns", s.Version)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c == "" {
			return fmt.Errorf("schema %q has an empty column name", s.Version)
		}
		if seen[c] {
			return fmt.Errorf("schema %q repeats column %q", s.Version, c)
		}
		seen[c] = true
	}
	return nil
}

// Drift describes how a schema differs from what Derive produces.
type Drift struct {
	// Missing columns are expected by the schema but not produced by Derive.
	Missing []string `json:"missing,omitempty"`
	// Extra columns are produced by Derive but unknown to the schema.
	Extra []string `json:"extra,omitempty"`
}

func (d Drift) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0
}

// Check compares the schema against the deriver's output columns.
func (s Schema) Check() Drift {
	var d Drift
	for _, c := range s.Columns {
		if !slices.Contains(columns, c) {
			d.Missing = append(d.Missing, c)
		}
	}
	for _, c := range columns {
		if !slices.Contains(s.Columns, c) {
			d.Extra = append(d.Extra, c)
		}
	}
	return d
}

// RowInfo reports what happened while laying out a single row.
type RowInfo struct {
	Missing []string // filled with NeutralValue
	Unknown []string // categorical columns that encoded to encoder.Unknown
}

// Row lays v out in schema column order, encoding categorical columns with
// enc. Training and serving both build model input through this function.
func (s Schema) Row(v Vector, enc *encoder.Encoder) ([]float64, RowInfo, error) {
	numeric := v.Numeric()
	categorical := v.Categorical()

	var info RowInfo
	row := make([]float64, len(s.Columns))
	for i, col := range s.Columns {
		if raw, ok := categorical[col]; ok {
			code, err := enc.Code(col, raw)
			if err != nil {
				return nil, info, err
			}
			if code == encoder.Unknown {
				info.Unknown = append(info.Unknown, col)
			}
			row[i] = float64(code)
			continue
		}
		if x, ok := numeric[col]; ok {
			row[i] = x
			continue
		}
		row[i] = NeutralValue
		info.Missing = append(info.Missing, col)
	}
	return row, info, nil
}
