package plate

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/carbocation/platemerge/samplecode"
	"github.com/carbocation/platemerge/wellindex"
)

type fixture struct {
	matrix         string
	features       string
	barcodes       string
	geneNames      string
	barcodeSamples string
}

// A 3-gene x 3-cell plate. ENSG2 and ENSG3 share a symbol, and barcode GGGG
// has no sample code.
var basicPlate = fixture{
	matrix: "%%MatrixMarket matrix coordinate integer general\n" +
		"3 3 4\n" +
		"1 1 5\n" +
		"2 1 1\n" +
		"3 2 2\n" +
		"1 3 9\n",
	features:       "ENSG1\nENSG2\nENSG3\n",
	barcodes:       "AAAA\nCCCC\nGGGG\n",
	geneNames:      "gene_id\tgene_name\nENSG1\tActb\nENSG2\tH2-K1\nENSG3\tH2-K1\n",
	barcodeSamples: "BC\tsample\nAAAA\tx_N701_y_S502\nCCCC\tx_N702_y_S502\n",
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeFixture(t *testing.T, root, id string, f fixture) Plate {
	t.Helper()

	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	// The matrix is gzipped under the ".gz" name that Load also looks for.
	if f.matrix != "" {
		writeGzip(t, filepath.Join(dir, DefaultFiles.Matrix+".gz"), f.matrix)
	}
	for name, content := range map[string]string{
		DefaultFiles.Features:       f.features,
		DefaultFiles.Barcodes:       f.barcodes,
		DefaultFiles.GeneNames:      f.geneNames,
		DefaultFiles.BarcodeSamples: f.barcodeSamples,
	} {
		if content == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	return Plate{ID: id, Dir: dir}
}

func testIndex(t *testing.T) *wellindex.Table {
	t.Helper()

	idx, err := wellindex.Parse("index.tsv", []byte("indexstring\twell\ni7_N701_i5_S502\tA1\ni7_N702_i5_S502\tA2\n"))
	if err != nil {
		t.Fatal(err)
	}

	return idx
}

func TestProcess(t *testing.T) {
	p := writeFixture(t, t.TempDir(), "PlateA", basicPlate)

	out, err := Process(context.Background(), p, Files{}, testIndex(t), samplecode.V1, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := fmt.Sprint(out.Matrix.RowLabels()); got != "[Actb H2-K1 H2-K1.1]" {
		t.Errorf("Unexpected row labels %s", got)
	}
	if got := fmt.Sprint(out.Matrix.ColLabels()); got != "[A1 A2 GGGG]" {
		t.Errorf("Unexpected column labels %s", got)
	}
	if got := fmt.Sprint(out.Matrix.Dense()); got != "[[5 0 9] [1 0 0] [0 2 0]]" {
		t.Errorf("Counts changed during normalization: %s", got)
	}

	r := out.Report
	if r.Barcodes.Resolved != 2 || r.Barcodes.NoSample != 1 {
		t.Errorf("Unexpected barcode stats %+v", r.Barcodes)
	}
	if r.GeneIDs.Renamed != 1 || r.GeneIDs.Symbols != 3 {
		t.Errorf("Unexpected gene stats %+v", r.GeneIDs)
	}
}

func TestMissingFile(t *testing.T) {
	f := basicPlate
	f.barcodeSamples = ""
	p := writeFixture(t, t.TempDir(), "PlateB", f)

	_, err := Load(context.Background(), p, Files{}, nil)

	var mfe *MissingFileError
	if !errors.As(err, &mfe) {
		t.Fatalf("Expected MissingFileError, got %v", err)
	}
	if mfe.Plate != "PlateB" || filepath.Base(mfe.Path) != DefaultFiles.BarcodeSamples {
		t.Errorf("Diagnostic does not name plate and file: %v", mfe)
	}
	if !errors.Is(err, ErrMissingFile) {
		t.Error("Expected errors.Is(err, ErrMissingFile)")
	}
}

func TestFeatureCountMismatch(t *testing.T) {
	f := basicPlate
	f.features = "ENSG1\nENSG2\n"
	p := writeFixture(t, t.TempDir(), "PlateC", f)

	_, err := Load(context.Background(), p, Files{}, nil)

	var sme *ShapeMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("Expected ShapeMismatchError, got %v", err)
	}
	if sme.Want != 3 || sme.Got != 2 || sme.Plate != "PlateC" {
		t.Errorf("Unexpected report %+v", sme)
	}
}

func TestBarcodeCountMismatch(t *testing.T) {
	f := basicPlate
	f.barcodes = "AAAA\nCCCC\nGGGG\nTTTT\n"
	p := writeFixture(t, t.TempDir(), "PlateD", f)

	_, err := Load(context.Background(), p, Files{}, nil)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Expected a shape mismatch, got %v", err)
	}
}

func TestEmptyBarcodeTable(t *testing.T) {
	f := basicPlate
	f.barcodeSamples = "BC\tsample\n"
	p := writeFixture(t, t.TempDir(), "PlateE", f)

	_, err := Process(context.Background(), p, Files{}, testIndex(t), samplecode.V1, nil)

	var sme *ShapeMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("Expected ShapeMismatchError, got %v", err)
	}
}

func TestDuplicateCell(t *testing.T) {
	f := basicPlate
	f.barcodeSamples = "BC\tsample\nAAAA\tx_N701_y_S502\nCCCC\tz_N701_w_S502\n"
	p := writeFixture(t, t.TempDir(), "PlateF", f)

	_, err := Process(context.Background(), p, Files{}, testIndex(t), samplecode.V1, nil)

	var dce *DuplicateCellError
	if !errors.As(err, &dce) {
		t.Fatalf("Expected DuplicateCellError, got %v", err)
	}
	if dce.Label != "A1" {
		t.Errorf("Expected A1 to be reported, got %q", dce.Label)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "P2", basicPlate)
	writeFixture(t, root, "P1", basicPlate)

	// Not a plate: none of the plate files.
	if err := os.MkdirAll(filepath.Join(root, "logs"), 0755); err != nil {
		t.Fatal(err)
	}

	// A matrix under its plain name is found as well.
	plain := filepath.Join(root, "P3")
	if err := os.MkdirAll(plain, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(plain, DefaultFiles.Matrix), []byte(basicPlate.matrix), 0644); err != nil {
		t.Fatal(err)
	}

	// A plate without its matrix is still listed; Load reports the gap.
	partial := filepath.Join(root, "P4")
	if err := os.MkdirAll(partial, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partial, DefaultFiles.Features), []byte(basicPlate.features), 0644); err != nil {
		t.Fatal(err)
	}

	plates, err := Discover(context.Background(), root, Files{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, p := range plates {
		ids = append(ids, p.ID)
	}
	if got := fmt.Sprint(ids); got != "[P1 P2 P3 P4]" {
		t.Errorf("Unexpected plates %s", got)
	}
	if plates[0].Dir != filepath.Join(root, "P1") {
		t.Errorf("Unexpected plate dir %s", plates[0].Dir)
	}
}
