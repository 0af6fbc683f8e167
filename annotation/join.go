package annotation

import (
	"fmt"

	"github.com/carbocation/platemerge/countmatrix"
	"gopkg.in/guregu/null.v3"
)

// Annotated is a count matrix with one annotation record per column.
// Records[j] describes column j.
type Annotated struct {
	Matrix  *countmatrix.Matrix
	Fields  []string
	Records []Record
}

type JoinStats struct {
	Cells     int `json:"cells"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`

	// Annotation rows that matched no column.
	Orphans int `json:"orphans"`
}

// Join attaches the record whose cell ID equals each column label. Columns
// without one get a record with every field absent. A nil table annotates
// nothing. The matrix itself is shared, unchanged.
func Join(m *countmatrix.Matrix, t *Table) (*Annotated, JoinStats) {
	labels := m.ColLabels()
	out := &Annotated{
		Matrix:  m,
		Records: make([]Record, len(labels)),
	}
	stats := JoinStats{Cells: len(labels)}

	if t == nil {
		stats.Unmatched = len(labels)
		return out, stats
	}

	out.Fields = append([]string(nil), t.Fields...)

	used := make(map[string]struct{}, len(labels))
	for j, label := range labels {
		rec, ok := t.Lookup(label)
		if !ok {
			out.Records[j] = t.Absent()
			stats.Unmatched++
			continue
		}
		out.Records[j] = rec
		used[label] = struct{}{}
		stats.Matched++
	}
	stats.Orphans = t.Len() - len(used)

	return out, stats
}

// FieldIndex returns the position of a field, or -1.
func (a *Annotated) FieldIndex(name string) int {
	for k, f := range a.Fields {
		if f == name {
			return k
		}
	}

	return -1
}

// Value returns field f of column j.
func (a *Annotated) Value(j, f int) null.String {
	if f < 0 || f >= len(a.Records[j].Values) {
		return null.String{}
	}

	return a.Records[j].Values[f]
}

// SelectCols keeps the columns at the given indices, in that order, along
// with their records.
func (a *Annotated) SelectCols(idx []int) (*Annotated, error) {
	m, err := a.Matrix.SelectCols(idx)
	if err != nil {
		return nil, err
	}

	out := &Annotated{
		Matrix:  m,
		Fields:  a.Fields,
		Records: make([]Record, len(idx)),
	}
	for k, j := range idx {
		out.Records[k] = a.Records[j]
	}

	return out, nil
}

// SelectRows keeps the matrix rows at the given strictly increasing indices.
// Records are per column and carry over unchanged.
func (a *Annotated) SelectRows(idx []int) (*Annotated, error) {
	m, err := a.Matrix.SelectRows(idx)
	if err != nil {
		return nil, err
	}

	return &Annotated{Matrix: m, Fields: a.Fields, Records: a.Records}, nil
}

// Match returns the indices of the columns whose value for field is one of
// values. Absent values never match.
func (a *Annotated) Match(field string, values []string) ([]int, error) {
	f := a.FieldIndex(field)
	if f < 0 {
		return nil, fmt.Errorf("no annotation field %q (have %q)", field, a.Fields)
	}

	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}

	keep := make([]int, 0)
	for j := range a.Records {
		v := a.Value(j, f)
		if !v.Valid {
			continue
		}
		if _, ok := want[v.String]; ok {
			keep = append(keep, j)
		}
	}

	return keep, nil
}

// Subset keeps the columns selected by Match.
func (a *Annotated) Subset(field string, values []string) (*Annotated, error) {
	keep, err := a.Match(field, values)
	if err != nil {
		return nil, err
	}

	return a.SelectCols(keep)
}
