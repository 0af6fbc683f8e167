// Package annotation reads per-cell annotation spreadsheets and attaches
// their records to the columns of a merged count matrix.
package annotation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/aligner"
	"github.com/carbocation/platemerge/lookup"
	"gopkg.in/guregu/null.v3"
)

const (
	DefaultPlateColumn = "Plate"
	DefaultWellColumn  = "Well"
)

// Options controls how an annotation spreadsheet is read.
type Options struct {
	// Sheet names the worksheet of an .xls workbook. Empty means the first.
	Sheet       string `json:"sheet" yaml:"sheet"`
	PlateColumn string `json:"plate_column" yaml:"plate_column"`
	WellColumn  string `json:"well_column" yaml:"well_column"`
}

func (o Options) withDefaults() Options {
	if o.PlateColumn == "" {
		o.PlateColumn = DefaultPlateColumn
	}
	if o.WellColumn == "" {
		o.WellColumn = DefaultWellColumn
	}

	return o
}

// Record holds one value per Table field. Invalid values are absent.
type Record struct {
	Values []null.String
}

// Table maps cell IDs to annotation records. The plate and well columns are
// consumed to build the key; every other column is a field.
type Table struct {
	Path   string
	Fields []string

	records map[string]Record
	keys    []string
}

// CellID derives the key of an annotation row. It matches the column labels
// of the merged matrix.
func CellID(plate, well string) string {
	return aligner.CellID(strings.TrimSpace(plate), strings.TrimSpace(well))
}

// Load reads an annotation table from a local path or gs:// URI. Files ending
// in .xls are read as Excel workbooks, anything else as a delimited table.
func Load(ctx context.Context, path string, opts Options, client *storage.Client) (*Table, error) {
	data, err := platemerge.ReadAll(ctx, path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return Parse(path, data, opts)
}

// Parse builds a Table from the raw bytes of an annotation file.
func Parse(path string, data []byte, opts Options) (*Table, error) {
	opts = opts.withDefaults()

	if strings.EqualFold(platemerge.Extension(path), ".xls") {
		header, rows, err := ReadXLS(path, data, opts.Sheet)
		if err != nil {
			return nil, err
		}
		if err := platemerge.RequireColumns(path, header, opts.PlateColumn, opts.WellColumn); err != nil {
			return nil, err
		}
		return FromRows(path, header, rows, opts)
	}

	header, rows, err := platemerge.ReadTable(path, data, opts.PlateColumn, opts.WellColumn)
	if err != nil {
		return nil, err
	}

	return FromRows(path, header, rows, opts)
}

// FromRows builds a Table from a header and its data rows. Short rows are
// padded with absent values. Rows with a blank plate or well are skipped.
func FromRows(path string, header []string, rows [][]string, opts Options) (*Table, error) {
	opts = opts.withDefaults()

	if err := platemerge.RequireColumns(path, header, opts.PlateColumn, opts.WellColumn); err != nil {
		return nil, err
	}

	plateCol, wellCol := -1, -1
	var fieldCols []int
	t := &Table{Path: path, records: make(map[string]Record, len(rows))}
	for k, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == opts.PlateColumn && plateCol < 0:
			plateCol = k
		case name == opts.WellColumn && wellCol < 0:
			wellCol = k
		case name == "":
		default:
			fieldCols = append(fieldCols, k)
			t.Fields = append(t.Fields, name)
		}
	}

	cell := func(row []string, k int) string {
		if k < len(row) {
			return row[k]
		}
		return ""
	}

	lines := make(map[string]int, len(rows))
	skipped := 0
	for k, row := range rows {
		// Data rows start on line 2, after the header.
		line := k + 2
		plate, well := cell(row, plateCol), cell(row, wellCol)
		if lookup.IsBlank(plate) || lookup.IsBlank(well) {
			skipped++
			continue
		}

		key := CellID(plate, well)
		if first, exists := lines[key]; exists {
			return nil, &platemerge.DuplicateKeyError{
				Path:   path,
				Key:    key,
				First:  fmt.Sprintf("line %d", first),
				Second: fmt.Sprintf("line %d", line),
			}
		}
		lines[key] = line

		rec := Record{Values: make([]null.String, len(fieldCols))}
		for f, k := range fieldCols {
			v := strings.TrimSpace(cell(row, k))
			rec.Values[f] = null.NewString(v, !lookup.IsBlank(v))
		}

		t.records[key] = rec
		t.keys = append(t.keys, key)
	}

	if skipped > 0 {
		log.Printf("Annotation %s: skipped %d rows without a plate or well\n", path, skipped)
	}

	return t, nil
}

// Lookup returns the record for a cell ID.
func (t *Table) Lookup(cellID string) (Record, bool) {
	rec, ok := t.records[cellID]
	return rec, ok
}

// Keys lists the cell IDs in file order.
func (t *Table) Keys() []string {
	return append([]string(nil), t.keys...)
}

func (t *Table) Len() int {
	return len(t.records)
}

// Absent returns a record with every field missing.
func (t *Table) Absent() Record {
	return Record{Values: make([]null.String, len(t.Fields))}
}
