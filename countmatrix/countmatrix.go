// Package countmatrix implements an immutable sparse matrix of non-negative
// integer counts with string labels on both axes. Storage is compressed
// sparse column: cells are columns, which makes column concatenation and
// column subsetting cheap. Every transform returns a new *Matrix; index and
// value slices may be shared between matrices because none is ever written
// after construction.
package countmatrix

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrDuplicateLabel = errors.New("duplicate label")

// ErrCountOverflow is returned when repeated coordinates sum past the
// largest storable count.
var ErrCountOverflow = errors.New("count overflow")

// Entry is one non-zero value in coordinate form, 0-based.
type Entry struct {
	Row   int
	Col   int
	Value uint32
}

type Matrix struct {
	rows []string
	cols []string

	// colPtr[j]:colPtr[j+1] spans the entries of column j in rowIdx/vals.
	// Within a column, rowIdx is strictly increasing.
	colPtr []int
	rowIdx []int
	vals   []uint32
}

// New builds a matrix from coordinate entries. Zero values are dropped and
// repeated coordinates are summed; a sum that does not fit a uint32 fails
// with ErrCountOverflow. Labels are not required to be unique;
// use CheckUnique where that matters.
func New(rows, cols []string, entries []Entry) (*Matrix, error) {
	for _, e := range entries {
		if e.Row < 0 || e.Row >= len(rows) || e.Col < 0 || e.Col >= len(cols) {
			return nil, fmt.Errorf("entry (%d, %d) is outside a %d x %d matrix", e.Row, e.Col, len(rows), len(cols))
		}
	}

	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Value != 0 {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Col != sorted[j].Col {
			return sorted[i].Col < sorted[j].Col
		}
		return sorted[i].Row < sorted[j].Row
	})

	m := &Matrix{
		rows:   append([]string(nil), rows...),
		cols:   append([]string(nil), cols...),
		colPtr: make([]int, len(cols)+1),
		rowIdx: make([]int, 0, len(sorted)),
		vals:   make([]uint32, 0, len(sorted)),
	}

	for k, e := range sorted {
		if k > 0 && sorted[k-1].Row == e.Row && sorted[k-1].Col == e.Col {
			last := &m.vals[len(m.vals)-1]
			if *last+e.Value < *last {
				return nil, fmt.Errorf("%w: entry (%d, %d) sums past %d", ErrCountOverflow, e.Row, e.Col, uint32(math.MaxUint32))
			}
			*last += e.Value
			continue
		}
		m.rowIdx = append(m.rowIdx, e.Row)
		m.vals = append(m.vals, e.Value)
		m.colPtr[e.Col+1]++
	}

	for j := 0; j < len(cols); j++ {
		m.colPtr[j+1] += m.colPtr[j]
	}

	return m, nil
}

// FromDense builds a matrix from a row-major dense table. Intended for small
// inputs such as tests.
func FromDense(rows, cols []string, data [][]uint32) (*Matrix, error) {
	if len(data) != len(rows) {
		return nil, fmt.Errorf("dense data has %d rows, expected %d", len(data), len(rows))
	}

	entries := make([]Entry, 0)
	for i, row := range data {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("dense row %d has %d values, expected %d", i, len(row), len(cols))
		}
		for j, v := range row {
			if v != 0 {
				entries = append(entries, Entry{Row: i, Col: j, Value: v})
			}
		}
	}

	return New(rows, cols, entries)
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (int, int) {
	return len(m.rows), len(m.cols)
}

// NNZ is the number of stored non-zero values.
func (m *Matrix) NNZ() int {
	return len(m.vals)
}

// RowLabels returns a copy of the row labels.
func (m *Matrix) RowLabels() []string {
	return append([]string(nil), m.rows...)
}

// ColLabels returns a copy of the column labels.
func (m *Matrix) ColLabels() []string {
	return append([]string(nil), m.cols...)
}

func (m *Matrix) RowLabel(i int) string {
	return m.rows[i]
}

func (m *Matrix) ColLabel(j int) string {
	return m.cols[j]
}

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) uint32 {
	start, end := m.colPtr[j], m.colPtr[j+1]
	k := start + sort.SearchInts(m.rowIdx[start:end], i)
	if k < end && m.rowIdx[k] == i {
		return m.vals[k]
	}

	return 0
}

// Get looks a value up by labels. The boolean is false if either label is
// absent; with duplicate labels the first match is used.
func (m *Matrix) Get(row, col string) (uint32, bool) {
	i, j := indexOf(m.rows, row), indexOf(m.cols, col)
	if i < 0 || j < 0 {
		return 0, false
	}

	return m.At(i, j), true
}

// Column calls fn for every non-zero value of column j in increasing row
// order.
func (m *Matrix) Column(j int, fn func(row int, value uint32)) {
	for k := m.colPtr[j]; k < m.colPtr[j+1]; k++ {
		fn(m.rowIdx[k], m.vals[k])
	}
}

// Entries returns all non-zero values in column-major order.
func (m *Matrix) Entries() []Entry {
	out := make([]Entry, 0, len(m.vals))
	for j := range m.cols {
		m.Column(j, func(row int, value uint32) {
			out = append(out, Entry{Row: row, Col: j, Value: value})
		})
	}

	return out
}

// Dense returns a row-major dense copy. Intended for small matrices.
func (m *Matrix) Dense() [][]uint32 {
	out := make([][]uint32, len(m.rows))
	for i := range out {
		out[i] = make([]uint32, len(m.cols))
	}
	for j := range m.cols {
		m.Column(j, func(row int, value uint32) {
			out[row][j] = value
		})
	}

	return out
}

func indexOf(labels []string, label string) int {
	for k, v := range labels {
		if v == label {
			return k
		}
	}

	return -1
}

// CheckUnique returns an error wrapping ErrDuplicateLabel naming the first
// label that occurs twice.
func CheckUnique(labels []string) error {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, exists := seen[label]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
		}
		seen[label] = struct{}{}
	}

	return nil
}
