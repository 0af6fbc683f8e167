package plate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/barcode"
	"github.com/carbocation/platemerge/countmatrix"
	"github.com/carbocation/platemerge/genesymbol"
)

// Inputs are the parsed files of one plate. Raw has gene IDs as row labels
// and raw barcodes as column labels.
type Inputs struct {
	Plate    Plate
	Raw      *countmatrix.Matrix
	Genes    *genesymbol.Map
	Barcodes *barcode.Table
}

// Load reads every file of a plate. A missing file yields a
// *MissingFileError; row or column label lists whose length disagrees with
// the matrix yield a *ShapeMismatchError.
func Load(ctx context.Context, p Plate, files Files, client *storage.Client) (*Inputs, error) {
	files = files.WithDefaults()

	paths := make(map[string]string)
	for _, f := range []struct{ what, name string }{
		{"matrix", files.Matrix},
		{"features", files.Features},
		{"barcodes", files.Barcodes},
		{"gene name", files.GeneNames},
		{"barcode sample", files.BarcodeSamples},
	} {
		path, err := locate(ctx, p, f.name, client)
		if err != nil {
			return nil, err
		}
		if path == "" {
			return nil, &MissingFileError{Plate: p.ID, Path: p.Path(f.name), What: f.what}
		}
		paths[f.what] = path
	}

	mtx, err := readMTX(ctx, paths["matrix"], client)
	if err != nil {
		return nil, fmt.Errorf("plate %s: %s: %w", p.ID, paths["matrix"], err)
	}

	geneIDs, err := readLabels(ctx, paths["features"], client)
	if err != nil {
		return nil, fmt.Errorf("plate %s: %s: %w", p.ID, paths["features"], err)
	}
	if len(geneIDs) != mtx.Rows {
		return nil, &ShapeMismatchError{Plate: p.ID, Path: paths["features"], What: "gene identifier list", Want: mtx.Rows, Got: len(geneIDs)}
	}

	rawBarcodes, err := readLabels(ctx, paths["barcodes"], client)
	if err != nil {
		return nil, fmt.Errorf("plate %s: %s: %w", p.ID, paths["barcodes"], err)
	}
	if len(rawBarcodes) != mtx.Cols {
		return nil, &ShapeMismatchError{Plate: p.ID, Path: paths["barcodes"], What: "barcode list", Want: mtx.Cols, Got: len(rawBarcodes)}
	}

	raw, err := countmatrix.New(geneIDs, rawBarcodes, mtx.Entries)
	if err != nil {
		return nil, fmt.Errorf("plate %s: %s: %w", p.ID, paths["matrix"], err)
	}

	genes, err := genesymbol.Load(ctx, paths["gene name"], client)
	if err != nil {
		return nil, fmt.Errorf("plate %s: %w", p.ID, err)
	}

	barcodes, err := barcode.Load(ctx, paths["barcode sample"], client)
	if err != nil {
		return nil, fmt.Errorf("plate %s: %w", p.ID, err)
	}

	return &Inputs{
		Plate:    p,
		Raw:      raw,
		Genes:    genes,
		Barcodes: barcodes,
	}, nil
}

// locate returns the path of name in the plate directory, also trying the
// gzipped variant. An empty path means neither exists.
func locate(ctx context.Context, p Plate, name string, client *storage.Client) (string, error) {
	for _, candidate := range []string{p.Path(name), p.Path(name + ".gz")} {
		found, err := platemerge.Exists(ctx, candidate, client)
		if err != nil {
			return "", pfx.Err(fmt.Errorf("plate %s: %w", p.ID, err))
		}
		if found {
			return candidate, nil
		}
	}

	return "", nil
}

func readMTX(ctx context.Context, path string, client *storage.Client) (*countmatrix.MTX, error) {
	rc, err := platemerge.OpenDecompressed(ctx, path, client)
	if err != nil {
		return nil, notExist(err)
	}
	defer rc.Close()

	return countmatrix.ReadMatrixMarket(rc)
}

func readLabels(ctx context.Context, path string, client *storage.Client) ([]string, error) {
	rc, err := platemerge.OpenDecompressed(ctx, path, client)
	if err != nil {
		return nil, notExist(err)
	}
	defer rc.Close()

	return countmatrix.ReadLabels(rc)
}

// notExist keeps a file vanishing between locate and open recognizable.
func notExist(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrMissingFile, err)
	}

	return err
}
