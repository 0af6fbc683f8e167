// Package wellindex maps composite i7/i5 index strings to the well position
// that carries them on a plate layout. The table is loaded once per run and is
// read-only afterwards, so it may be shared by concurrent plate workers.
package wellindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/lookup"
)

const (
	ColumnIndexString = "indexstring"
	ColumnWell        = "well"
)

// MalformedIndexError is returned when the index table lacks the indexstring
// or well column.
type MalformedIndexError struct {
	Path    string
	Missing []string
}

func (e *MalformedIndexError) Error() string {
	return fmt.Sprintf("index table %s is malformed: missing column(s) %s", e.Path, strings.Join(e.Missing, ", "))
}

type row struct {
	IndexString string `csv:"indexstring"`
	Well        string `csv:"well"`
}

type Table struct {
	path  string
	wells map[string]string

	// Rows that repeated an earlier row exactly.
	repeats int
}

// Load reads an index table from a local path or gs:// URI.
func Load(ctx context.Context, path string, client *storage.Client) (*Table, error) {
	data, err := platemerge.ReadAll(ctx, path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return Parse(path, data)
}

// Parse builds a Table from the raw bytes of a delimited file. A composite
// index that maps to two different wells is rejected; exact repeats are
// tolerated.
func Parse(path string, data []byte) (*Table, error) {
	rows := []row{}
	if err := platemerge.UnmarshalTable(path, data, &rows, ColumnIndexString, ColumnWell); err != nil {
		var mce *platemerge.MissingColumnsError
		if errors.As(err, &mce) {
			return nil, &MalformedIndexError{Path: path, Missing: mce.Missing}
		}
		return nil, err
	}

	t := &Table{
		path:  path,
		wells: make(map[string]string, len(rows)),
	}

	for _, r := range rows {
		key := strings.TrimSpace(r.IndexString)
		well := strings.TrimSpace(r.Well)
		if key == "" {
			continue
		}

		if prior, exists := t.wells[key]; exists {
			if prior != well {
				return nil, &platemerge.DuplicateKeyError{Path: path, Key: key, First: prior, Second: well}
			}
			t.repeats++
			continue
		}

		t.wells[key] = well
	}

	if t.repeats > 0 {
		log.Printf("Index table %s: ignored %d repeated row(s)\n", path, t.repeats)
	}

	return t, nil
}

// Resolve returns the well label for a composite index string.
func (t *Table) Resolve(composite string) lookup.Result {
	well, exists := t.wells[composite]
	return lookup.Classify(well, exists)
}

// Len is the number of distinct composite index strings.
func (t *Table) Len() int {
	return len(t.wells)
}

func (t *Table) Path() string {
	return t.path
}
