// Package qc computes per-cell quality metrics and filters low-quality cells
// and rarely detected genes out of a count matrix.
package qc

import (
	"sort"
	"strings"

	"github.com/carbocation/platemerge/countmatrix"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/guregu/null.v3"
)

const DefaultMitoPrefix = "mt-"

// Metrics describes one cell (column).
type Metrics struct {
	NCount   int64 `json:"n_count"`
	NFeature int   `json:"n_feature"`

	// Percentage of the cell's counts on mitochondrial genes. Absent for a
	// cell without counts.
	PercentMito null.Float `json:"percent_mito"`
}

// IsMito reports whether a gene label carries the mitochondrial prefix,
// ignoring case.
func IsMito(label, prefix string) bool {
	return prefix != "" && len(label) >= len(prefix) && strings.EqualFold(label[:len(prefix)], prefix)
}

// Compute returns the metrics of every column of m. An empty prefix uses
// DefaultMitoPrefix.
func Compute(m *countmatrix.Matrix, mitoPrefix string) []Metrics {
	if mitoPrefix == "" {
		mitoPrefix = DefaultMitoPrefix
	}

	counts := m.ColSums()
	features := m.ColNonZero()
	mito := m.ColSumsWhere(func(row string) bool { return IsMito(row, mitoPrefix) })

	out := make([]Metrics, len(counts))
	for j := range out {
		out[j] = Metrics{NCount: counts[j], NFeature: features[j]}
		if counts[j] > 0 {
			out[j].PercentMito = null.FloatFrom(100 * float64(mito[j]) / float64(counts[j]))
		}
	}

	return out
}

// Summary describes the distribution of metrics over a group of cells.
type Summary struct {
	Cells             int     `json:"cells"`
	MeanCount         float64 `json:"mean_count"`
	MedianCount       float64 `json:"median_count"`
	MeanFeatures      float64 `json:"mean_features"`
	MedianFeatures    float64 `json:"median_features"`
	MedianPercentMito float64 `json:"median_percent_mito"`
}

// Summarize computes means and medians. Cells without counts are left out of
// the mitochondrial median.
func Summarize(metrics []Metrics) Summary {
	s := Summary{Cells: len(metrics)}
	if len(metrics) == 0 {
		return s
	}

	counts := make([]float64, len(metrics))
	features := make([]float64, len(metrics))
	var mito []float64
	for k, m := range metrics {
		counts[k] = float64(m.NCount)
		features[k] = float64(m.NFeature)
		if m.PercentMito.Valid {
			mito = append(mito, m.PercentMito.Float64)
		}
	}

	s.MeanCount = stat.Mean(counts, nil)
	s.MeanFeatures = stat.Mean(features, nil)
	s.MedianCount = median(counts)
	s.MedianFeatures = median(features)
	if len(mito) > 0 {
		s.MedianPercentMito = median(mito)
	}

	return s
}

// SummarizeBy summarizes the cells of each group. groups[j] names the group
// of metrics[j].
func SummarizeBy(metrics []Metrics, groups []string) map[string]Summary {
	members := make(map[string][]Metrics)
	for j, g := range groups {
		members[g] = append(members[g], metrics[j])
	}

	out := make(map[string]Summary, len(members))
	for g, ms := range members {
		out[g] = Summarize(ms)
	}

	return out
}

// median sorts x in place.
func median(x []float64) float64 {
	sort.Float64s(x)
	return stat.Quantile(0.5, stat.Empirical, x, nil)
}
