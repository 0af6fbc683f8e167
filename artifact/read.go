package artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/countmatrix"
)

// Contents is an artifact as read back from disk. The cells table is kept as
// text.
type Contents struct {
	Matrix      *countmatrix.Matrix
	CellsHeader []string
	Cells       [][]string
	Manifest    json.RawMessage
}

// Read loads an artifact directory written by Write.
func Read(ctx context.Context, dir string, client *storage.Client) (*Contents, error) {
	path := func(name string) string { return platemerge.Join(dir, name) }

	mtx, err := readMatrix(ctx, path(MatrixFile), client)
	if err != nil {
		return nil, err
	}

	rows, err := readLabels(ctx, path(FeaturesFile), client)
	if err != nil {
		return nil, err
	}
	cols, err := readLabels(ctx, path(BarcodesFile), client)
	if err != nil {
		return nil, err
	}
	if len(rows) != mtx.Rows || len(cols) != mtx.Cols {
		return nil, fmt.Errorf("%s: matrix is %d x %d but there are %d features and %d barcodes", dir, mtx.Rows, mtx.Cols, len(rows), len(cols))
	}

	m, err := countmatrix.New(rows, cols, mtx.Entries)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path(MatrixFile), err))
	}

	data, err := platemerge.ReadAll(ctx, path(CellsFile), client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	header, cells, err := platemerge.ReadTable(path(CellsFile), data, CellColumns...)
	if err != nil {
		return nil, err
	}
	if len(cells) != mtx.Cols {
		return nil, fmt.Errorf("%s: %d cell records for %d barcodes", path(CellsFile), len(cells), mtx.Cols)
	}

	manifest, err := platemerge.ReadAll(ctx, path(ManifestFile), client)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return &Contents{
		Matrix:      m,
		CellsHeader: header,
		Cells:       cells,
		Manifest:    manifest,
	}, nil
}

func readMatrix(ctx context.Context, path string, client *storage.Client) (*countmatrix.MTX, error) {
	rc, err := platemerge.OpenDecompressed(ctx, path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	mtx, err := countmatrix.ReadMatrixMarket(rc)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	return mtx, nil
}

func readLabels(ctx context.Context, path string, client *storage.Client) ([]string, error) {
	rc, err := platemerge.OpenDecompressed(ctx, path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	labels, err := countmatrix.ReadLabels(rc)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	return labels, nil
}
