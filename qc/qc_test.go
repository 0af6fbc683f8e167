package qc

import (
	"fmt"
	"math"
	"testing"

	"github.com/carbocation/platemerge/countmatrix"
)

func fixture(t *testing.T) *countmatrix.Matrix {
	t.Helper()

	m, err := countmatrix.FromDense(
		[]string{"Actb", "Gapdh", "MT-Co1", "mt-Nd1", "Xist"},
		[]string{"c1", "c2", "c3", "c4"},
		[][]uint32{
			{10, 1, 0, 4},
			{5, 0, 0, 4},
			{3, 9, 0, 0},
			{2, 0, 0, 0},
			{0, 0, 0, 2},
		})
	if err != nil {
		t.Fatal(err)
	}

	return m
}

func TestIsMito(t *testing.T) {
	for _, c := range []struct {
		label string
		want  bool
	}{
		{"mt-Co1", true},
		{"MT-CO1", true},
		{"Mt-", true},
		{"mt", false},
		{"Mtor", false},
		{"", false},
	} {
		if got := IsMito(c.label, DefaultMitoPrefix); got != c.want {
			t.Errorf("IsMito(%q) = %v, want %v", c.label, got, c.want)
		}
	}
}

func TestCompute(t *testing.T) {
	metrics := Compute(fixture(t), "")

	want := []struct {
		count   int64
		feature int
		mito    float64
		valid   bool
	}{
		{20, 4, 25, true},
		{10, 2, 90, true},
		{0, 0, 0, false},
		{10, 3, 0, true},
	}

	for j, w := range want {
		m := metrics[j]
		if m.NCount != w.count || m.NFeature != w.feature {
			t.Errorf("Cell %d: got count %d features %d, want %d %d", j, m.NCount, m.NFeature, w.count, w.feature)
		}
		if m.PercentMito.Valid != w.valid || math.Abs(m.PercentMito.Float64-w.mito) > 1e-9 {
			t.Errorf("Cell %d: got percent mito %v, want %v (valid=%v)", j, m.PercentMito, w.mito, w.valid)
		}
	}
}

func TestFilter(t *testing.T) {
	m := fixture(t)
	metrics := Compute(m, "")

	for _, c := range []struct {
		name  string
		th    Thresholds
		cells string
		genes string
	}{
		{"disabled", Thresholds{}, "[0 1 2 3]", "[0 1 2 3 4]"},
		{"min features", Thresholds{MinFeatures: 3}, "[0 3]", "[0 1 2 3 4]"},
		{"min counts", Thresholds{MinCounts: 11}, "[0]", "[0 1 2 3 4]"},
		{"max mito", Thresholds{MaxPercentMito: 50}, "[0 2 3]", "[0 1 2 3 4]"},
		{"min cells per gene", Thresholds{MinCellsPerGene: 2}, "[0 1 2 3]", "[0 1 2]"},
		{"combined", Thresholds{MinFeatures: 1, MaxPercentMito: 50, MinCellsPerGene: 2}, "[0 3]", "[0 1]"},
	} {
		sel, err := Filter(m, metrics, c.th)
		if err != nil {
			t.Fatal(err)
		}
		if got := fmt.Sprint(sel.Cells); got != c.cells {
			t.Errorf("%s: kept cells %s, want %s", c.name, got, c.cells)
		}
		if got := fmt.Sprint(sel.Genes); got != c.genes {
			t.Errorf("%s: kept genes %s, want %s", c.name, got, c.genes)
		}
		if sel.Stats.CellsIn != 4 || sel.Stats.GenesIn != 5 || sel.Stats.CellsKept != len(sel.Cells) {
			t.Errorf("%s: unexpected stats %+v", c.name, sel.Stats)
		}
	}
}

func TestSummarize(t *testing.T) {
	metrics := Compute(fixture(t), "")

	s := Summarize(metrics)
	if s.Cells != 4 || s.MeanCount != 10 || s.MeanFeatures != 2.25 {
		t.Errorf("Unexpected summary %+v", s)
	}
	if s.MedianPercentMito != 25 {
		t.Errorf("Expected median percent mito 25, got %v", s.MedianPercentMito)
	}

	// The input order is left alone.
	if metrics[0].NCount != 20 {
		t.Error("Summarize reordered its input")
	}

	groups := SummarizeBy(metrics, []string{"A", "A", "B", "B"})
	if groups["A"].Cells != 2 || groups["A"].MeanCount != 15 || groups["B"].MeanFeatures != 1.5 {
		t.Errorf("Unexpected grouped summaries %+v", groups)
	}

	if empty := Summarize(nil); empty.Cells != 0 || empty.MeanCount != 0 {
		t.Errorf("Unexpected empty summary %+v", empty)
	}
}
