// Package encoder maps categorical feature values to stable integer codes.
//
// An Encoder is fitted once on training data and is read-only afterwards, so
// the same instance can be shared by the training batch transform and the
// single-row serving transform.
package encoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Unknown is the code returned for values that were not seen during Fit.
const Unknown = -1

var ErrUnknownColumn = errors.New("encoder: column not fitted")

type Encoder struct {
	columns    []string
	categories map[string][]string
	index      map[string]map[string]int
}

// Fit assigns codes per column in sorted value order. Every row must carry a
// value for every column.
func Fit(columns []string, rows []map[string]string) (*Encoder, error) {
	if len(columns) == 0 {
		return nil, errors.New("encoder: no columns")
	}
	seen := make(map[string]map[string]bool, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			return nil, fmt.Errorf("encoder: duplicate column %q", col)
		}
		seen[col] = make(map[string]bool)
	}

	for i, row := range rows {
		for _, col := range columns {
			v, ok := row[col]
			if !ok {
				return nil, fmt.Errorf("encoder: row %d missing column %q", i, col)
			}
			seen[col][v] = true
		}
	}

	categories := make(map[string][]string, len(columns))
	for _, col := range columns {
		values := make([]string, 0, len(seen[col]))
		for v := range seen[col] {
			values = append(values, v)
		}
		slices.Sort(values)
		categories[col] = values
	}
	return newEncoder(slices.Clone(columns), categories)
}

func newEncoder(columns []string, categories map[string][]string) (*Encoder, error) {
	index := make(map[string]map[string]int, len(columns))
	for _, col := range columns {
		values, ok := categories[col]
		if !ok {
			return nil, fmt.Errorf("encoder: no categories for column %q", col)
		}
		m := make(map[string]int, len(values))
		for code, v := range values {
			if _, dup := m[v]; dup {
				return nil, fmt.Errorf("encoder: duplicate category %q in column %q", v, col)
			}
			m[v] = code
		}
		index[col] = m
	}
	return &Encoder{columns: columns, categories: categories, index: index}, nil
}

// Code returns the code for value in column, or Unknown if the value was not
// seen during Fit. Asking for a column the encoder was not fitted on is a
// contract violation and returns ErrUnknownColumn.
func (e *Encoder) Code(column, value string) (int, error) {
	m, ok := e.index[column]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	code, ok := m[value]
	if !ok {
		return Unknown, nil
	}
	return code, nil
}

// Transform encodes rows column by column, in Columns() order.
func (e *Encoder) Transform(rows []map[string]string) ([][]int, error) {
	out := make([][]int, len(rows))
	for i, row := range rows {
		codes := make([]int, len(e.columns))
		for j, col := range e.columns {
			v, ok := row[col]
			if !ok {
				return nil, fmt.Errorf("encoder: row %d missing column %q", i, col)
			}
			code, err := e.Code(col, v)
			if err != nil {
				return nil, err
			}
			codes[j] = code
		}
		out[i] = codes
	}
	return out, nil
}

func (e *Encoder) Columns() []string {
	return slices.Clone(e.columns)
}

// Categories returns the fitted vocabulary of a column in code order.
func (e *Encoder) Categories(column string) []string {
	return slices.Clone(e.categories[column])
}

func (e *Encoder) HasColumn(column string) bool {
	_, ok := e.index[column]
	return ok
}

type encoderJSON struct {
	Columns    []string            `json:"columns"`
	Categories map[string][]string `json:"categories"`
}

func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderJSON{Columns: e.columns, Categories: e.categories})
}

func (e *Encoder) UnmarshalJSON(data []byte) error {
	var raw encoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Columns) == 0 {
		return errors.New("encoder: no columns")
	}
	decoded, err := newEncoder(raw.Columns, raw.Categories)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}
