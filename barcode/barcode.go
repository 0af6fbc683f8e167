// Package barcode turns the raw cell barcodes of one plate into well labels.
package barcode

import (
	"context"
	"log"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/lookup"
)

const (
	ColumnBarcode = "BC"
	ColumnSample  = "sample"
)

type row struct {
	BC     string `csv:"BC"`
	Sample string `csv:"sample"`
}

// Table maps raw barcodes to sample codes for a single plate.
type Table struct {
	path    string
	samples map[string]string
	repeats int
}

func Load(ctx context.Context, path string, client *storage.Client) (*Table, error) {
	data, err := platemerge.ReadAll(ctx, path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return Parse(path, data)
}

// Parse builds a Table. A barcode listed twice with different sample codes
// is an error; identical repeats are ignored.
func Parse(path string, data []byte) (*Table, error) {
	rows := []row{}
	if err := platemerge.UnmarshalTable(path, data, &rows, ColumnBarcode, ColumnSample); err != nil {
		return nil, err
	}

	t := &Table{
		path:    path,
		samples: make(map[string]string, len(rows)),
	}

	for _, r := range rows {
		bc := strings.TrimSpace(r.BC)
		sample := strings.TrimSpace(r.Sample)
		if bc == "" {
			continue
		}

		if prior, exists := t.samples[bc]; exists {
			if prior != sample {
				return nil, &platemerge.DuplicateKeyError{Path: path, Key: bc, First: prior, Second: sample}
			}
			t.repeats++
			continue
		}

		t.samples[bc] = sample
	}

	if t.repeats > 0 {
		log.Printf("Barcode table %s: ignored %d repeated row(s)\n", path, t.repeats)
	}

	return t, nil
}

// NewTable builds a Table from an in-memory map.
func NewTable(samples map[string]string) *Table {
	t := &Table{samples: make(map[string]string, len(samples))}
	for k, v := range samples {
		t.samples[k] = v
	}

	return t
}

// Sample returns the sample code recorded for a raw barcode.
func (t *Table) Sample(raw string) lookup.Result {
	sample, exists := t.samples[raw]
	return lookup.Classify(sample, exists)
}

func (t *Table) Len() int {
	return len(t.samples)
}

func (t *Table) Path() string {
	return t.path
}
