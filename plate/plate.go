// Package plate loads the files of a single sequencing plate and rewrites its
// raw count matrix with well labels on the columns and gene symbols on the
// rows.
package plate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
)

// Files names the per-plate files, relative to the plate directory.
type Files struct {
	Matrix         string `json:"matrix" yaml:"matrix"`
	Features       string `json:"features" yaml:"features"`
	Barcodes       string `json:"barcodes" yaml:"barcodes"`
	GeneNames      string `json:"gene_names" yaml:"gene_names"`
	BarcodeSamples string `json:"barcode_samples" yaml:"barcode_samples"`
}

var DefaultFiles = Files{
	Matrix:         "matrix.mtx",
	Features:       "features.tsv",
	Barcodes:       "barcodes.tsv",
	GeneNames:      "gene_names.txt",
	BarcodeSamples: "barcode_samples.txt",
}

// WithDefaults fills blank names from DefaultFiles.
func (f Files) WithDefaults() Files {
	if f.Matrix == "" {
		f.Matrix = DefaultFiles.Matrix
	}
	if f.Features == "" {
		f.Features = DefaultFiles.Features
	}
	if f.Barcodes == "" {
		f.Barcodes = DefaultFiles.Barcodes
	}
	if f.GeneNames == "" {
		f.GeneNames = DefaultFiles.GeneNames
	}
	if f.BarcodeSamples == "" {
		f.BarcodeSamples = DefaultFiles.BarcodeSamples
	}

	return f
}

// Plate is one processing run. ID namespaces the plate's cell labels in the
// merged matrix.
type Plate struct {
	ID  string `json:"id" yaml:"id"`
	Dir string `json:"dir" yaml:"dir"`
}

// FromDir derives the plate ID from the directory's base name.
func FromDir(dir string) Plate {
	dir = strings.TrimSuffix(dir, "/")
	return Plate{ID: platemerge.Base(dir), Dir: dir}
}

func (p Plate) Path(name string) string {
	return platemerge.Join(p.Dir, name)
}

// Discover lists every immediate sub-directory of root that holds at least
// one of the per-plate files (plain or gzipped), sorted by plate ID. A plate
// directory that lacks some of them is still returned so that Load reports
// the missing file. Directories holding none of them are logged and ignored.
func Discover(ctx context.Context, root string, files Files, client *storage.Client) ([]Plate, error) {
	dirs, err := platemerge.ListDirs(ctx, root, client)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("listing plates in %s: %w", root, err))
	}

	files = files.WithDefaults()

	out := make([]Plate, 0, len(dirs))
	for _, dir := range dirs {
		p := FromDir(dir)
		found, err := holdsAny(ctx, p, files, client)
		if err != nil {
			return nil, err
		}
		if !found {
			log.Printf("Ignoring %s: it holds none of the plate files\n", dir)
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func holdsAny(ctx context.Context, p Plate, files Files, client *storage.Client) (bool, error) {
	for _, name := range []string{files.Matrix, files.Features, files.Barcodes, files.GeneNames, files.BarcodeSamples} {
		path, err := locate(ctx, p, name, client)
		if err != nil {
			return false, err
		}
		if path != "" {
			return true, nil
		}
	}

	return false, nil
}
