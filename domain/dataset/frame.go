package dataset

import (
	"fmt"
	"math"

	"batteryflow/domain/core"
)

// Frame is a column-oriented table of float64 values. NaN marks a null cell.
// A Frame is never mutated after construction; every operation returns a new Frame.
type Frame struct {
	columns []string
	index   map[string]int
	values  [][]float64 // column-major
	rowIDs  []int       // position of each row in the originally loaded table
}

// NewFrame builds a frame from column names and column-major values
func NewFrame(columns []string, values [][]float64) (*Frame, error) {
	if len(columns) != len(values) {
		return nil, core.NewDataFormatError("frame", fmt.Sprintf("%d column names for %d columns", len(columns), len(values)))
	}

	index := make(map[string]int, len(columns))
	rows := -1
	for i, name := range columns {
		if name == "" {
			return nil, core.NewDataFormatError("frame", fmt.Sprintf("column %d has an empty name", i))
		}
		if _, dup := index[name]; dup {
			return nil, core.NewDataFormatError("frame", fmt.Sprintf("duplicate column %q", name))
		}
		index[name] = i
		if rows == -1 {
			rows = len(values[i])
		} else if len(values[i]) != rows {
			return nil, core.NewDataFormatError("frame", fmt.Sprintf("column %q has %d rows, expected %d", name, len(values[i]), rows))
		}
	}
	if rows < 0 {
		rows = 0
	}

	rowIDs := make([]int, rows)
	for i := range rowIDs {
		rowIDs[i] = i
	}

	return &Frame{
		columns: append([]string(nil), columns...),
		index:   index,
		values:  values,
		rowIDs:  rowIDs,
	}, nil
}

// NumRows returns the number of records
func (f *Frame) NumRows() int {
	return len(f.rowIDs)
}

// NumCols returns the number of columns
func (f *Frame) NumCols() int {
	return len(f.columns)
}

// Columns returns a copy of the column names in order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// HasColumn reports whether the named column exists
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the values of a column. The returned slice is shared and must not be modified.
func (f *Frame) Column(name string) ([]float64, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, core.NewMissingColumnError(name)
	}
	return f.values[i], nil
}

// Ints returns a column as integers; every value must be finite and integral
func (f *Frame) Ints(name string) ([]int, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(col))
	for i, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return nil, core.NewDataFormatError(name, fmt.Sprintf("row %d: %v is not integer-castable", f.rowIDs[i], v))
		}
		out[i] = int(v)
	}
	return out, nil
}

// RowIDs returns the original row positions. The returned slice must not be modified.
func (f *Frame) RowIDs() []int {
	return f.rowIDs
}

// Row returns the values of row i in column order
func (f *Frame) Row(i int) []float64 {
	row := make([]float64, len(f.columns))
	for j := range f.columns {
		row[j] = f.values[j][i]
	}
	return row
}

// Matrix returns the named columns as a row-major matrix
func (f *Frame) Matrix(columns []string) ([][]float64, error) {
	cols := make([][]float64, len(columns))
	for j, name := range columns {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}
	out := make([][]float64, f.NumRows())
	for i := range out {
		row := make([]float64, len(cols))
		for j, col := range cols {
			row[j] = col[i]
		}
		out[i] = row
	}
	return out, nil
}

// Take returns the rows at the given positions, in the given order
func (f *Frame) Take(positions []int) (*Frame, error) {
	n := f.NumRows()
	values := make([][]float64, len(f.columns))
	for j := range values {
		values[j] = make([]float64, len(positions))
	}
	rowIDs := make([]int, len(positions))
	for k, p := range positions {
		if p < 0 || p >= n {
			return nil, core.NewInvalidArgumentError("positions", fmt.Sprintf("row %d out of range [0,%d)", p, n))
		}
		for j := range f.columns {
			values[j][k] = f.values[j][p]
		}
		rowIDs[k] = f.rowIDs[p]
	}
	return f.derive(f.columns, values, rowIDs), nil
}

// Filter keeps the rows where keep is true, preserving order
func (f *Frame) Filter(keep []bool) (*Frame, error) {
	if len(keep) != f.NumRows() {
		return nil, core.NewInvalidArgumentError("keep", fmt.Sprintf("mask has %d entries for %d rows", len(keep), f.NumRows()))
	}
	positions := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			positions = append(positions, i)
		}
	}
	return f.Take(positions)
}

// Drop returns the frame without the named columns; every name must exist
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if !f.HasColumn(name) {
			return nil, core.NewMissingColumnError(name)
		}
		drop[name] = true
	}
	columns := make([]string, 0, len(f.columns))
	values := make([][]float64, 0, len(f.columns))
	for j, name := range f.columns {
		if drop[name] {
			continue
		}
		columns = append(columns, name)
		values = append(values, f.values[j])
	}
	return f.derive(columns, values, f.rowIDs), nil
}

// WithColumn returns a frame with the column added, or replaced if it exists
func (f *Frame) WithColumn(name string, vals []float64) (*Frame, error) {
	if len(vals) != f.NumRows() {
		return nil, core.NewInvalidArgumentError(name, fmt.Sprintf("%d values for %d rows", len(vals), f.NumRows()))
	}
	columns := append([]string(nil), f.columns...)
	values := append([][]float64(nil), f.values...)
	if j, ok := f.index[name]; ok {
		values[j] = vals
	} else {
		columns = append(columns, name)
		values = append(values, vals)
	}
	return f.derive(columns, values, f.rowIDs), nil
}

// NullCount returns the total number of null cells across all columns
func (f *Frame) NullCount() int {
	count := 0
	for _, col := range f.values {
		for _, v := range col {
			if math.IsNaN(v) {
				count++
			}
		}
	}
	return count
}

func (f *Frame) derive(columns []string, values [][]float64, rowIDs []int) *Frame {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
	}
	return &Frame{
		columns: columns,
		index:   index,
		values:  values,
		rowIDs:  rowIDs,
	}
}
