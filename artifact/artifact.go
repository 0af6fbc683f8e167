// Package artifact persists an annotated count matrix as a directory of
// gzipped Matrix Market and tab-separated files plus a JSON run manifest.
package artifact

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/countmatrix"
	"github.com/carbocation/platemerge/qc"
	"gopkg.in/guregu/null.v3"
)

const (
	MatrixFile   = "matrix.mtx.gz"
	FeaturesFile = "features.tsv.gz"
	BarcodesFile = "barcodes.tsv.gz"
	CellsFile    = "cells.tsv.gz"
	ManifestFile = "run.json"
)

// CellColumns are the leading columns of the cells table. Annotation fields
// follow them.
var CellColumns = []string{"cell", "plate", "well", "n_count", "n_feature", "percent_mito"}

// Cell is the metadata of one matrix column.
type Cell struct {
	ID    string
	Plate string
	Well  string
	qc.Metrics
	Annotation []null.String
}

// Artifact is a matrix with one Cell per column. Fields names the entries of
// every Cell's Annotation.
type Artifact struct {
	Matrix *countmatrix.Matrix
	Fields []string
	Cells  []Cell
}

func (a *Artifact) validate() error {
	_, ncol := a.Matrix.Dims()
	if len(a.Cells) != ncol {
		return fmt.Errorf("%d cell records for %d matrix columns", len(a.Cells), ncol)
	}
	for j, c := range a.Cells {
		if c.ID != a.Matrix.ColLabel(j) {
			return fmt.Errorf("cell record %d is %q but matrix column %d is %q", j, c.ID, j, a.Matrix.ColLabel(j))
		}
		if len(c.Annotation) > len(a.Fields) {
			return fmt.Errorf("cell %s has %d annotation values for %d fields", c.ID, len(c.Annotation), len(a.Fields))
		}
	}

	return nil
}

// Write stores a under dir, along with manifest encoded as JSON. A local
// directory is assembled next to dir and renamed into place once every file
// is complete, replacing any earlier artifact; a failed write leaves nothing
// behind. Objects in google storage are uploaded one by one with the
// manifest last, so its presence marks a complete artifact.
func Write(ctx context.Context, dir string, a *Artifact, manifest interface{}, client *storage.Client) error {
	if err := a.validate(); err != nil {
		return pfx.Err(err)
	}

	if platemerge.IsGoogleStorage(dir) {
		return writeFiles(ctx, dir, a, manifest, client)
	}

	dir = filepath.Clean(platemerge.ExpandHome(dir))
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return pfx.Err(err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".partial-")
	if err != nil {
		return pfx.Err(err)
	}

	if err := writeFiles(ctx, tmp, a, manifest, nil); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		os.RemoveAll(tmp)
		return pfx.Err(err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		return pfx.Err(err)
	}

	return nil
}

func writeFiles(ctx context.Context, dir string, a *Artifact, manifest interface{}, client *storage.Client) error {
	steps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{MatrixFile, func(w io.Writer) error { return countmatrix.WriteMatrixMarket(w, a.Matrix) }},
		{FeaturesFile, func(w io.Writer) error { return countmatrix.WriteLabels(w, a.Matrix.RowLabels()) }},
		{BarcodesFile, func(w io.Writer) error { return countmatrix.WriteLabels(w, a.Matrix.ColLabels()) }},
		{CellsFile, func(w io.Writer) error { return WriteCells(w, a.Fields, a.Cells) }},
	}

	for _, step := range steps {
		if err := writeGzip(ctx, platemerge.Join(dir, step.name), client, step.write); err != nil {
			return pfx.Err(fmt.Errorf("%s: %w", step.name, err))
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return pfx.Err(err)
	}

	return writeFile(ctx, platemerge.Join(dir, ManifestFile), client, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

func writeGzip(ctx context.Context, path string, client *storage.Client, fn func(io.Writer) error) error {
	return writeFile(ctx, path, client, func(w io.Writer) error {
		gz := gzip.NewWriter(w)
		if err := fn(gz); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	})
}

func writeFile(ctx context.Context, path string, client *storage.Client, fn func(io.Writer) error) error {
	f, err := platemerge.Create(ctx, path, client)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// WriteCells writes the cells table: a header row, then one row per cell.
// Absent values are written as empty fields.
func WriteCells(w io.Writer, fields []string, cells []Cell) error {
	header := append(append([]string(nil), CellColumns...), fields...)
	if _, err := fmt.Fprintln(w, strings.Join(sanitize(header), "\t")); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, c := range cells {
		row[0], row[1], row[2] = c.ID, c.Plate, c.Well
		row[3] = strconv.FormatInt(c.NCount, 10)
		row[4] = strconv.Itoa(c.NFeature)
		row[5] = NullFloatFormatter(c.PercentMito)
		for k := range fields {
			if k < len(c.Annotation) {
				row[len(CellColumns)+k] = NullStringFormatter(c.Annotation[k])
			} else {
				row[len(CellColumns)+k] = ""
			}
		}

		if _, err := fmt.Fprintln(w, strings.Join(sanitize(row), "\t")); err != nil {
			return err
		}
	}

	return nil
}

func NullStringFormatter(n null.String) string {
	if !n.Valid {
		return ""
	}

	return n.String
}

func NullFloatFormatter(n null.Float) string {
	if !n.Valid {
		return ""
	}

	return strconv.FormatFloat(n.Float64, 'g', 6, 64)
}

var fieldReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// sanitize keeps free-text values from breaking the tab-separated layout.
func sanitize(values []string) []string {
	for k, v := range values {
		values[k] = fieldReplacer.Replace(v)
	}

	return values
}
