// Package features decodes and validates feature matrices submitted for prediction.
package features

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPayload is the sentinel wrapped by every validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

// ValidationError describes why a payload is not a feature matrix.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPayload, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Matrix is a rectangular rows x columns block of numeric features.
type Matrix [][]float64

// Rows returns the number of rows.
func (m Matrix) Rows() int { return len(m) }

// Cols returns the row width, or 0 for an empty matrix.
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Clone returns a deep copy that shares no memory with m.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Validator checks decoded matrices against size limits.
type Validator struct {
	// MaxRows rejects matrices with more rows. Zero means unlimited.
	MaxRows int
}

// Parse decodes raw JSON into a Matrix. The value must be an array of arrays
// of JSON numbers with equal row lengths. An empty outer array is valid.
func (v Validator) Parse(raw json.RawMessage) (Matrix, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalid("features is required")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, invalid("features is not valid JSON")
	}

	outer, ok := decoded.([]any)
	if !ok {
		return nil, invalid("features must be an array of rows")
	}

	m := make(Matrix, 0, len(outer))
	for i, r := range outer {
		cells, ok := r.([]any)
		if !ok {
			return nil, invalid("row %d is not an array", i)
		}
		row := make([]float64, len(cells))
		for j, c := range cells {
			n, ok := c.(json.Number)
			if !ok {
				return nil, invalid("row %d column %d is not a number", i, j)
			}
			f, err := n.Float64()
			if err != nil || math.IsInf(f, 0) {
				return nil, invalid("row %d column %d is out of range", i, j)
			}
			row[j] = f
		}
		m = append(m, row)
	}

	if err := v.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that m is rectangular and within the row limit.
func (v Validator) Validate(m Matrix) error {
	if v.MaxRows > 0 && len(m) > v.MaxRows {
		return invalid("features has %d rows, limit is %d", len(m), v.MaxRows)
	}
	for i, row := range m {
		if len(row) != len(m[0]) {
			return invalid("row %d has %d columns, expected %d", i, len(row), len(m[0]))
		}
		for j, f := range row {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return invalid("row %d column %d is not finite", i, j)
			}
		}
	}
	return nil
}
