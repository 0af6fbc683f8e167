// Package aligner merges normalized plate matrices into one matrix over the
// union of their genes.
package aligner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/carbocation/platemerge/countmatrix"
)

var (
	ErrEmptyPlateSet        = errors.New("no plates to merge")
	ErrInconsistentRowOrder = errors.New("plate matrices disagree on row order")
)

// EmptyPlateSetError is returned when AlignAndMerge is given no plates.
type EmptyPlateSetError struct{}

func (e *EmptyPlateSetError) Error() string { return ErrEmptyPlateSet.Error() }
func (e *EmptyPlateSetError) Unwrap() error { return ErrEmptyPlateSet }

// InconsistentRowOrderError means two aligned plates ended up with different
// row sequences. It indicates a bug, not bad input.
type InconsistentRowOrderError struct {
	PlateA string
	PlateB string
	Row    int
	Want   string
	Got    string
}

func (e *InconsistentRowOrderError) Error() string {
	return fmt.Sprintf("%s: plate %s has row %d = %q but plate %s has %q", ErrInconsistentRowOrder, e.PlateB, e.Row, e.Got, e.PlateA, e.Want)
}

func (e *InconsistentRowOrderError) Unwrap() error { return ErrInconsistentRowOrder }

// DuplicatePlateError is returned when two plates share an ID, which would
// make their prefixed cell labels collide.
type DuplicatePlateError struct {
	Plate string
}

func (e *DuplicatePlateError) Error() string {
	return fmt.Sprintf("plate ID %q appears more than once", e.Plate)
}

// ColumnCollisionError is returned when two prefixed cell labels are still
// equal, e.g. plate "P" with cell "1_A1" and plate "P_1" with cell "A1".
type ColumnCollisionError struct {
	Label string
}

func (e *ColumnCollisionError) Error() string {
	return fmt.Sprintf("merged cell label %q is produced by more than one plate column", e.Label)
}

// PlateMatrix is one normalized plate, ready for merging.
type PlateMatrix struct {
	ID     string
	Matrix *countmatrix.Matrix
}

// Origin records where a merged column came from.
type Origin struct {
	Label string `json:"cell"`
	Plate string `json:"plate"`
	Well  string `json:"well"`
}

// CellID is the merged label of a cell: the plate ID and the plate-local
// label joined with an underscore.
func CellID(plate, well string) string {
	return plate + "_" + well
}

// Union returns the sorted union of every plate's row labels.
func Union(plates []PlateMatrix) []string {
	seen := make(map[string]struct{})
	for _, p := range plates {
		for _, label := range p.Matrix.RowLabels() {
			seen[label] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool { return countmatrix.LabelLess(out[i], out[j]) })

	return out
}

// Align zero-fills and sorts one plate so that its rows are exactly genes,
// which must be sorted and must include every row of m.
func Align(m *countmatrix.Matrix, genes []string) *countmatrix.Matrix {
	present := make(map[string]struct{}, len(m.RowLabels()))
	for _, label := range m.RowLabels() {
		present[label] = struct{}{}
	}

	var missing []string
	for _, gene := range genes {
		if _, exists := present[gene]; !exists {
			missing = append(missing, gene)
		}
	}

	return m.AppendZeroRows(missing).SortRows()
}

// AlignAndMerge concatenates the plates column-wise over the union of their
// genes. Genes a plate did not observe are zero in that plate's columns.
// Columns keep the input plate order and are labeled with CellID.
func AlignAndMerge(plates []PlateMatrix) (*countmatrix.Matrix, error) {
	if len(plates) == 0 {
		return nil, &EmptyPlateSetError{}
	}

	ids := make(map[string]struct{}, len(plates))
	for _, p := range plates {
		if _, exists := ids[p.ID]; exists {
			return nil, &DuplicatePlateError{Plate: p.ID}
		}
		ids[p.ID] = struct{}{}
	}

	genes := Union(plates)

	aligned := make([]*countmatrix.Matrix, len(plates))
	for k, p := range plates {
		aligned[k] = Align(p.Matrix, genes).PrefixCols(p.ID + "_")

		if mismatch := countmatrix.SameRows(aligned[0], aligned[k]); mismatch != nil {
			return nil, &InconsistentRowOrderError{
				PlateA: plates[0].ID,
				PlateB: p.ID,
				Row:    mismatch.Row,
				Want:   mismatch.Want,
				Got:    mismatch.Got,
			}
		}
	}

	merged, err := countmatrix.HCat(aligned...)
	if err != nil {
		return nil, err
	}

	if label, dup := firstDuplicate(merged.ColLabels()); dup {
		return nil, &ColumnCollisionError{Label: label}
	}

	return merged, nil
}

// Origins lists the plate and plate-local label of every merged column, in
// the column order AlignAndMerge produces.
func Origins(plates []PlateMatrix) []Origin {
	var out []Origin
	for _, p := range plates {
		for _, well := range p.Matrix.ColLabels() {
			out = append(out, Origin{Label: CellID(p.ID, well), Plate: p.ID, Well: well})
		}
	}

	return out
}

func firstDuplicate(labels []string) (string, bool) {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, exists := seen[label]; exists {
			return label, true
		}
		seen[label] = struct{}{}
	}

	return "", false
}
