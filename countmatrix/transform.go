package countmatrix

import (
	"fmt"
	"sort"
)

// WithRowLabels returns the same data under new row labels.
func (m *Matrix) WithRowLabels(labels []string) (*Matrix, error) {
	if len(labels) != len(m.rows) {
		return nil, fmt.Errorf("got %d row labels for a matrix with %d rows", len(labels), len(m.rows))
	}

	out := *m
	out.rows = append([]string(nil), labels...)
	return &out, nil
}

// WithColLabels returns the same data under new column labels.
func (m *Matrix) WithColLabels(labels []string) (*Matrix, error) {
	if len(labels) != len(m.cols) {
		return nil, fmt.Errorf("got %d column labels for a matrix with %d columns", len(labels), len(m.cols))
	}

	out := *m
	out.cols = append([]string(nil), labels...)
	return &out, nil
}

// PrefixCols returns the matrix with prefix prepended to every column label.
func (m *Matrix) PrefixCols(prefix string) *Matrix {
	labels := make([]string, len(m.cols))
	for k, v := range m.cols {
		labels[k] = prefix + v
	}

	out := *m
	out.cols = labels
	return &out
}

// AppendZeroRows adds all-zero rows with the given labels after the existing
// rows. Because the new rows hold no values, the stored entries are shared
// with m unchanged.
func (m *Matrix) AppendZeroRows(labels []string) *Matrix {
	out := *m
	out.rows = make([]string, 0, len(m.rows)+len(labels))
	out.rows = append(out.rows, m.rows...)
	out.rows = append(out.rows, labels...)
	return &out
}

// PermuteRows returns a matrix whose row i is row order[i] of m. order must
// be a permutation of 0..rows-1.
func (m *Matrix) PermuteRows(order []int) (*Matrix, error) {
	if len(order) != len(m.rows) {
		return nil, fmt.Errorf("permutation has %d entries for %d rows", len(order), len(m.rows))
	}

	// newPos[old] = new
	newPos := make([]int, len(order))
	for k := range newPos {
		newPos[k] = -1
	}
	for newIdx, oldIdx := range order {
		if oldIdx < 0 || oldIdx >= len(order) || newPos[oldIdx] != -1 {
			return nil, fmt.Errorf("row order is not a permutation (at position %d: %d)", newIdx, oldIdx)
		}
		newPos[oldIdx] = newIdx
	}

	out := &Matrix{
		rows:   make([]string, len(order)),
		cols:   m.cols,
		colPtr: m.colPtr,
		rowIdx: make([]int, len(m.rowIdx)),
		vals:   make([]uint32, len(m.vals)),
	}
	for newIdx, oldIdx := range order {
		out.rows[newIdx] = m.rows[oldIdx]
	}

	type pair struct {
		row int
		val uint32
	}
	buf := make([]pair, 0)
	for j := range m.cols {
		start, end := m.colPtr[j], m.colPtr[j+1]
		buf = buf[:0]
		for k := start; k < end; k++ {
			buf = append(buf, pair{row: newPos[m.rowIdx[k]], val: m.vals[k]})
		}
		sort.Slice(buf, func(a, b int) bool { return buf[a].row < buf[b].row })
		for k, p := range buf {
			out.rowIdx[start+k] = p.row
			out.vals[start+k] = p.val
		}
	}

	return out, nil
}

// SortRows orders rows by label with LabelLess. The sort is stable, so an
// already sorted matrix comes back with the same row order.
func (m *Matrix) SortRows() *Matrix {
	order := make([]int, len(m.rows))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		return LabelLess(m.rows[order[a]], m.rows[order[b]])
	})

	out, _ := m.PermuteRows(order)
	return out
}

// LabelLess is the total order used for row labels: plain byte-wise
// lexicographic comparison, independent of locale.
func LabelLess(a, b string) bool {
	return a < b
}

// SelectCols returns the columns at the given indices, in that order.
func (m *Matrix) SelectCols(idx []int) (*Matrix, error) {
	out := &Matrix{
		rows:   m.rows,
		cols:   make([]string, len(idx)),
		colPtr: make([]int, len(idx)+1),
	}

	for n, j := range idx {
		if j < 0 || j >= len(m.cols) {
			return nil, fmt.Errorf("column %d out of range (%d columns)", j, len(m.cols))
		}
		out.cols[n] = m.cols[j]
		out.colPtr[n+1] = out.colPtr[n] + (m.colPtr[j+1] - m.colPtr[j])
	}

	out.rowIdx = make([]int, 0, out.colPtr[len(idx)])
	out.vals = make([]uint32, 0, out.colPtr[len(idx)])
	for _, j := range idx {
		out.rowIdx = append(out.rowIdx, m.rowIdx[m.colPtr[j]:m.colPtr[j+1]]...)
		out.vals = append(out.vals, m.vals[m.colPtr[j]:m.colPtr[j+1]]...)
	}

	return out, nil
}

// SelectRows returns the rows at the given indices, which must be strictly
// increasing.
func (m *Matrix) SelectRows(idx []int) (*Matrix, error) {
	newPos := make(map[int]int, len(idx))
	rows := make([]string, len(idx))
	for n, i := range idx {
		if i < 0 || i >= len(m.rows) {
			return nil, fmt.Errorf("row %d out of range (%d rows)", i, len(m.rows))
		}
		if n > 0 && idx[n-1] >= i {
			return nil, fmt.Errorf("row indices must be strictly increasing")
		}
		newPos[i] = n
		rows[n] = m.rows[i]
	}

	out := &Matrix{
		rows:   rows,
		cols:   m.cols,
		colPtr: make([]int, len(m.cols)+1),
		rowIdx: make([]int, 0),
		vals:   make([]uint32, 0),
	}
	for j := range m.cols {
		for k := m.colPtr[j]; k < m.colPtr[j+1]; k++ {
			if n, keep := newPos[m.rowIdx[k]]; keep {
				out.rowIdx = append(out.rowIdx, n)
				out.vals = append(out.vals, m.vals[k])
			}
		}
		out.colPtr[j+1] = len(out.rowIdx)
	}

	return out, nil
}

// RowMismatchError is returned by HCat when two inputs do not share the same
// row label sequence.
type RowMismatchError struct {
	Matrix int
	Row    int
	Want   string
	Got    string
}

func (e *RowMismatchError) Error() string {
	return fmt.Sprintf("matrix %d differs from matrix 0 at row %d (%q vs %q)", e.Matrix, e.Row, e.Got, e.Want)
}

// HCat concatenates matrices column-wise. All inputs must have identical row
// label sequences; concatenating differently ordered rows would silently
// misalign counts, so it is refused.
func HCat(ms ...*Matrix) (*Matrix, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}

	first := ms[0]
	ncol, nnz := 0, 0
	for n, m := range ms {
		if err := SameRows(first, m); err != nil {
			err.Matrix = n
			return nil, err
		}
		ncol += len(m.cols)
		nnz += len(m.vals)
	}

	out := &Matrix{
		rows:   first.rows,
		cols:   make([]string, 0, ncol),
		colPtr: make([]int, 1, ncol+1),
		rowIdx: make([]int, 0, nnz),
		vals:   make([]uint32, 0, nnz),
	}

	for _, m := range ms {
		offset := len(out.vals)
		out.cols = append(out.cols, m.cols...)
		for j := range m.cols {
			out.colPtr = append(out.colPtr, offset+m.colPtr[j+1])
		}
		out.rowIdx = append(out.rowIdx, m.rowIdx...)
		out.vals = append(out.vals, m.vals...)
	}

	return out, nil
}

// SameRows compares the row label sequences of a and b. It returns nil when
// they are identical.
func SameRows(a, b *Matrix) *RowMismatchError {
	n := len(a.rows)
	if len(b.rows) > n {
		n = len(b.rows)
	}

	for i := 0; i < n; i++ {
		var want, got string
		if i < len(a.rows) {
			want = a.rows[i]
		}
		if i < len(b.rows) {
			got = b.rows[i]
		}
		if i >= len(a.rows) || i >= len(b.rows) || want != got {
			return &RowMismatchError{Row: i, Want: want, Got: got}
		}
	}

	return nil
}
