package countmatrix

// ColSums returns the total count of every column.
func (m *Matrix) ColSums() []int64 {
	out := make([]int64, len(m.cols))
	for j := range m.cols {
		for k := m.colPtr[j]; k < m.colPtr[j+1]; k++ {
			out[j] += int64(m.vals[k])
		}
	}

	return out
}

// ColNonZero returns the number of non-zero rows in every column.
func (m *Matrix) ColNonZero() []int {
	out := make([]int, len(m.cols))
	for j := range m.cols {
		out[j] = m.colPtr[j+1] - m.colPtr[j]
	}

	return out
}

// RowNonZero returns the number of non-zero columns in every row.
func (m *Matrix) RowNonZero() []int {
	out := make([]int, len(m.rows))
	for _, i := range m.rowIdx {
		out[i]++
	}

	return out
}

// ColSumsWhere sums, per column, only the rows for which keep returns true.
func (m *Matrix) ColSumsWhere(keep func(row string) bool) []int64 {
	rowKeep := make([]bool, len(m.rows))
	for i, label := range m.rows {
		rowKeep[i] = keep(label)
	}

	out := make([]int64, len(m.cols))
	for j := range m.cols {
		for k := m.colPtr[j]; k < m.colPtr[j+1]; k++ {
			if rowKeep[m.rowIdx[k]] {
				out[j] += int64(m.vals[k])
			}
		}
	}

	return out
}
