package annotation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/countmatrix"
)

const facs = "Plate,Well,FACSannotation,Sorter\n" +
	"PlateA,A2,CD4+,S1\n" +
	" PlateB , A1 ,NA,S2\n" +
	"PlateB,B2,CD8+\n" +
	"PlateC,A1,CD4+,S1\n" +
	",,orphan,S9\n"

func merged(t *testing.T) *countmatrix.Matrix {
	t.Helper()

	m, err := countmatrix.FromDense(
		[]string{"G1", "G2", "G3"},
		[]string{"PlateA_A1", "PlateA_A2", "PlateB_A1", "PlateB_B2"},
		[][]uint32{
			{1, 2, 0, 0},
			{3, 4, 5, 0},
			{0, 0, 7, 8},
		})
	if err != nil {
		t.Fatal(err)
	}

	return m
}

func TestParse(t *testing.T) {
	table, err := Parse("facs.csv", []byte(facs), Options{})
	if err != nil {
		t.Fatal(err)
	}

	if got := fmt.Sprint(table.Fields); got != "[FACSannotation Sorter]" {
		t.Errorf("Unexpected fields %s", got)
	}
	if table.Len() != 4 {
		t.Errorf("Expected 4 records, got %d", table.Len())
	}

	rec, ok := table.Lookup("PlateB_A1")
	if !ok {
		t.Fatal("Expected whitespace around plate and well to be trimmed")
	}
	if rec.Values[0].Valid {
		t.Errorf("Expected NA to be absent, got %q", rec.Values[0].String)
	}
	if rec.Values[1].ValueOrZero() != "S2" {
		t.Errorf("Unexpected sorter %q", rec.Values[1].ValueOrZero())
	}

	rec, _ = table.Lookup("PlateB_B2")
	if rec.Values[1].Valid {
		t.Error("Expected the missing trailing field to be absent")
	}
}

func TestParseCustomColumns(t *testing.T) {
	data := "plate_id\twell_pos\tcelltype\nP1\tC3\tB cell\n"

	table, err := Parse("facs.tsv", []byte(data), Options{PlateColumn: "plate_id", WellColumn: "well_pos"})
	if err != nil {
		t.Fatal(err)
	}

	rec, ok := table.Lookup("P1_C3")
	if !ok || rec.Values[0].String != "B cell" {
		t.Errorf("Unexpected record %+v (found=%v)", rec, ok)
	}
}

func TestParseMissingColumn(t *testing.T) {
	_, err := Parse("facs.csv", []byte("Plate,FACSannotation\nPlateA,CD4+\n"), Options{})

	var mce *platemerge.MissingColumnsError
	if !errors.As(err, &mce) {
		t.Fatalf("Expected MissingColumnsError, got %v", err)
	}
	if fmt.Sprint(mce.Missing) != "[Well]" {
		t.Errorf("Unexpected missing columns %v", mce.Missing)
	}
}

func TestParseDuplicateKey(t *testing.T) {
	_, err := Parse("facs.csv", []byte("Plate,Well,x\nP,A1,1\nP,A2,2\nP,A1,3\n"), Options{})

	var dke *platemerge.DuplicateKeyError
	if !errors.As(err, &dke) {
		t.Fatalf("Expected DuplicateKeyError, got %v", err)
	}
	if dke.Key != "P_A1" || dke.First != "line 2" || dke.Second != "line 4" {
		t.Errorf("Unexpected error %+v", dke)
	}
}

func TestJoin(t *testing.T) {
	table, err := Parse("facs.csv", []byte(facs), Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := merged(t)

	a, stats := Join(m, table)

	if stats.Cells != 4 || stats.Matched != 3 || stats.Unmatched != 1 || stats.Orphans != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	// PlateA_A1 has no annotation row: every field absent, counts unchanged.
	f := a.FieldIndex("FACSannotation")
	if a.Value(0, f).Valid || a.Value(0, a.FieldIndex("Sorter")).Valid {
		t.Errorf("Expected absent fields for PlateA_A1, got %+v", a.Records[0])
	}
	if got := a.Value(1, f).ValueOrZero(); got != "CD4+" {
		t.Errorf("Expected CD4+ for PlateA_A2, got %q", got)
	}
	if got := a.Value(3, f).ValueOrZero(); got != "CD8+" {
		t.Errorf("Expected CD8+ for PlateB_B2, got %q", got)
	}

	if fmt.Sprint(a.Matrix.Dense()) != fmt.Sprint(m.Dense()) || fmt.Sprint(a.Matrix.ColLabels()) != fmt.Sprint(m.ColLabels()) {
		t.Error("Join changed the matrix")
	}
}

func TestJoinNilTable(t *testing.T) {
	a, stats := Join(merged(t), nil)
	if stats.Unmatched != 4 || len(a.Fields) != 0 || len(a.Records) != 4 {
		t.Errorf("Unexpected result %+v %+v", stats, a)
	}
	if a.Value(0, a.FieldIndex("anything")).Valid {
		t.Error("Expected an absent value")
	}
}

func TestSubset(t *testing.T) {
	table, err := Parse("facs.csv", []byte(facs), Options{})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := Join(merged(t), table)

	sub, err := a.Subset("FACSannotation", []string{"CD4+", "CD8+"})
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(sub.Matrix.ColLabels()); got != "[PlateA_A2 PlateB_B2]" {
		t.Errorf("Unexpected subset %s", got)
	}
	if got := fmt.Sprint(sub.Matrix.Dense()); got != "[[2 0] [4 0] [0 8]]" {
		t.Errorf("Unexpected subset counts %s", got)
	}
	if sub.Value(1, 0).ValueOrZero() != "CD8+" {
		t.Error("Records were not carried with their columns")
	}

	if _, err := a.Subset("Nope", []string{"x"}); err == nil {
		t.Error("Expected an error for an unknown field")
	}
}
