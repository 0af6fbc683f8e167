package annotation

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

// testdata/facs.xls holds two sheets. "Notes" comes first; "FACS" has a
// numeric Events column, a blank cell, and no stored row 2.
func readFixture(t *testing.T) []byte {
	t.Helper()

	data, err := os.ReadFile("testdata/facs.xls")
	if err != nil {
		t.Fatal(err)
	}

	return data
}

func TestReadXLSNamedSheet(t *testing.T) {
	header, rows, err := ReadXLS("facs.xls", readFixture(t), "FACS")
	if err != nil {
		t.Fatal(err)
	}

	if got := fmt.Sprint(header); got != "[Plate Well FACSannotation Events]" {
		t.Errorf("Unexpected header %q", header)
	}

	// The missing row is skipped rather than returned empty.
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %q", rows)
	}
	if got := strings.Join(rows[0], "|"); got != "PlateA|A1|CD4+|1200" {
		t.Errorf("Unexpected first row %q", got)
	}
	if got := strings.Join(rows[1], "|"); got != "PlateB| B2 |CD8+|" {
		t.Errorf("Unexpected second row %q", got)
	}
}

func TestReadXLSFirstSheet(t *testing.T) {
	header, rows, err := ReadXLS("facs.xls", readFixture(t), "")
	if err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(header) != "[Comment]" || len(rows) != 1 || rows[0][0] != "ignore me" {
		t.Errorf("Expected the Notes sheet, got %q %q", header, rows)
	}
}

func TestReadXLSMissingSheet(t *testing.T) {
	_, _, err := ReadXLS("facs.xls", readFixture(t), "Sorts")
	if err == nil {
		t.Fatal("Expected an error for an unknown sheet")
	}
	if !strings.Contains(err.Error(), `no sheet named "Sorts"`) || !strings.Contains(err.Error(), "FACS") {
		t.Errorf("Error does not name the sheet and the alternatives: %v", err)
	}
}

func TestReadXLSNotAWorkbook(t *testing.T) {
	if _, _, err := ReadXLS("facs.xls", []byte("Plate,Well\nPlateA,A1\n"), ""); err == nil {
		t.Error("Expected an error for a file that is not a workbook")
	}
}

func TestParseXLS(t *testing.T) {
	table, err := Parse("facs.xls", readFixture(t), Options{Sheet: "FACS"})
	if err != nil {
		t.Fatal(err)
	}

	if got := fmt.Sprint(table.Fields); got != "[FACSannotation Events]" {
		t.Errorf("Unexpected fields %s", got)
	}

	rec, ok := table.Lookup("PlateA_A1")
	if !ok || rec.Values[1].ValueOrZero() != "1200" {
		t.Errorf("Unexpected PlateA_A1 record %+v (%v)", rec, ok)
	}

	rec, ok = table.Lookup("PlateB_B2")
	if !ok {
		t.Fatal("Expected the well to be trimmed")
	}
	if rec.Values[0].ValueOrZero() != "CD8+" || rec.Values[1].Valid {
		t.Errorf("Unexpected PlateB_B2 record %+v", rec)
	}

	if _, err := Parse("facs.xls", readFixture(t), Options{}); err == nil {
		t.Error("Expected the first sheet to lack the plate and well columns")
	}
}
