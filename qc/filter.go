package qc

import (
	"github.com/carbocation/platemerge/countmatrix"
)

// Thresholds for Filter. A zero value disables its check.
type Thresholds struct {
	MinFeatures     int     `json:"min_features" yaml:"min_features"`
	MinCounts       int64   `json:"min_counts" yaml:"min_counts"`
	MaxPercentMito  float64 `json:"max_percent_mito" yaml:"max_percent_mito"`
	MitoPrefix      string  `json:"mito_prefix" yaml:"mito_prefix"`
	MinCellsPerGene int     `json:"min_cells_per_gene" yaml:"min_cells_per_gene"`
}

// Enabled reports whether any threshold is set.
func (t Thresholds) Enabled() bool {
	return t.MinFeatures > 0 || t.MinCounts > 0 || t.MaxPercentMito > 0 || t.MinCellsPerGene > 0
}

// Pass reports whether a cell meets the per-cell thresholds. A cell without
// counts has no mitochondrial share and fails only on the other checks.
func (t Thresholds) Pass(m Metrics) bool {
	if t.MinFeatures > 0 && m.NFeature < t.MinFeatures {
		return false
	}
	if t.MinCounts > 0 && m.NCount < t.MinCounts {
		return false
	}
	if t.MaxPercentMito > 0 && m.PercentMito.Valid && m.PercentMito.Float64 > t.MaxPercentMito {
		return false
	}

	return true
}

type FilterStats struct {
	CellsIn   int `json:"cells_in"`
	CellsKept int `json:"cells_kept"`
	GenesIn   int `json:"genes_in"`
	GenesKept int `json:"genes_kept"`
}

// Selection lists the kept column and row indices of a matrix, both
// increasing.
type Selection struct {
	Cells []int
	Genes []int
	Stats FilterStats
}

// Filter chooses the cells that pass t, then the genes detected in at least
// MinCellsPerGene of those cells. metrics must come from Compute(m, ...).
func Filter(m *countmatrix.Matrix, metrics []Metrics, t Thresholds) (Selection, error) {
	nrow, ncol := m.Dims()
	sel := Selection{Stats: FilterStats{CellsIn: ncol, GenesIn: nrow}}

	sel.Cells = make([]int, 0, ncol)
	for j, mm := range metrics {
		if t.Pass(mm) {
			sel.Cells = append(sel.Cells, j)
		}
	}

	kept, err := m.SelectCols(sel.Cells)
	if err != nil {
		return Selection{}, err
	}

	detected := kept.RowNonZero()
	sel.Genes = make([]int, 0, nrow)
	for i, n := range detected {
		if t.MinCellsPerGene <= 0 || n >= t.MinCellsPerGene {
			sel.Genes = append(sel.Genes, i)
		}
	}

	sel.Stats.CellsKept = len(sel.Cells)
	sel.Stats.GenesKept = len(sel.Genes)

	return sel, nil
}
