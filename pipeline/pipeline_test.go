package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carbocation/platemerge/aligner"
	"github.com/carbocation/platemerge/artifact"
	"github.com/carbocation/platemerge/config"
	"github.com/carbocation/platemerge/plate"
)

const index = "indexstring\twell\n" +
	"i7_N701_i5_S502\tA1\n" +
	"i7_N702_i5_S502\tA2\n" +
	"i7_N701_i5_S503\tB2\n"

const annotationTable = "Plate,Well,FACSannotation\n" +
	"PlateA,A2,CD4+\n" +
	"PlateB,A1,CD8+\n" +
	"PlateB,B2,CD4+\n"

type plateFiles struct {
	matrix, features, barcodes, geneNames, barcodeSamples string
}

// PlateA: genes G1, G2 in wells A1, A2. PlateB: genes G2, G3 in wells A1, B2.
var fixtures = map[string]plateFiles{
	"PlateA": {
		matrix:         "%%MatrixMarket matrix coordinate integer general\n2 2 3\n1 1 1\n2 1 3\n2 2 4\n",
		features:       "ENSG1\nENSG2\n",
		barcodes:       "AAAA\nCCCC\n",
		geneNames:      "gene_id\tgene_name\nENSG1\tG1\nENSG2\tG2\n",
		barcodeSamples: "BC\tsample\nAAAA\tx_N701_y_S502\nCCCC\tx_N702_y_S502\n",
	},
	"PlateB": {
		matrix:         "%%MatrixMarket matrix coordinate integer general\n2 2 3\n1 1 5\n2 1 7\n2 2 8\n",
		features:       "ENSG2\nENSG3\n",
		barcodes:       "GGGG\nTTTT\n",
		geneNames:      "gene_id\tgene_name\nENSG2\tG2\nENSG3\tG3\n",
		barcodeSamples: "BC\tsample\nGGGG\tx_N701_y_S502\nTTTT\tx_N701_y_S503\n",
	},
}

func writeFixtures(t *testing.T) (string, config.Config) {
	t.Helper()

	root := t.TempDir()
	write := func(path, content string) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	for id, f := range fixtures {
		dir := filepath.Join(root, "plates", id)
		write(filepath.Join(dir, plate.DefaultFiles.Matrix), f.matrix)
		write(filepath.Join(dir, plate.DefaultFiles.Features), f.features)
		write(filepath.Join(dir, plate.DefaultFiles.Barcodes), f.barcodes)
		write(filepath.Join(dir, plate.DefaultFiles.GeneNames), f.geneNames)
		write(filepath.Join(dir, plate.DefaultFiles.BarcodeSamples), f.barcodeSamples)
	}
	write(filepath.Join(root, "index.tsv"), index)
	write(filepath.Join(root, "facs.csv"), annotationTable)

	cfg := config.Default()
	cfg.PlatesDir = filepath.Join(root, "plates")
	cfg.IndexTable = filepath.Join(root, "index.tsv")
	cfg.Annotation.Path = filepath.Join(root, "facs.csv")
	cfg.Output = filepath.Join(root, "out", "merged")

	return root, cfg
}

func TestRun(t *testing.T) {
	_, cfg := writeFixtures(t)

	res, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	m := res.Merged.Matrix
	if got := fmt.Sprint(m.RowLabels()); got != "[G1 G2 G3]" {
		t.Errorf("Unexpected genes %s", got)
	}
	if got := fmt.Sprint(m.ColLabels()); got != "[PlateA_A1 PlateA_A2 PlateB_A1 PlateB_B2]" {
		t.Errorf("Unexpected cells %s", got)
	}
	if got := fmt.Sprint(m.Dense()); got != "[[1 0 0 0] [3 4 5 0] [0 0 7 8]]" {
		t.Errorf("Unexpected counts %s", got)
	}

	// PlateA_A1 has no annotation row.
	if c := res.Merged.Cells[0]; c.Annotation[0].Valid || c.Plate != "PlateA" || c.Well != "A1" || c.NCount != 4 {
		t.Errorf("Unexpected first cell %+v", c)
	}
	if c := res.Merged.Cells[3]; c.Annotation[0].ValueOrZero() != "CD4+" {
		t.Errorf("Unexpected last cell %+v", c)
	}

	man := res.Manifest
	if len(man.Plates) != 2 || man.Plates[0].Plate != "PlateA" || man.Annotation.Unmatched != 1 {
		t.Errorf("Unexpected manifest %+v", man)
	}

	back, err := artifact.Read(context.Background(), cfg.Output, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(back.Matrix.Dense()) != fmt.Sprint(m.Dense()) {
		t.Error("Written matrix differs from the merged one")
	}

	var buf bytes.Buffer
	if err := man.RenderSummary(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "PlateB") {
		t.Errorf("Expected PlateB in the summary:\n%s", buf.String())
	}
}

func TestRunQCAndSubset(t *testing.T) {
	root, cfg := writeFixtures(t)
	cfg.QC.MinCounts = 5
	cfg.QC.MinCellsPerGene = 1
	cfg.Subset = config.Subset{Field: "FACSannotation", Values: []string{"CD4+"}, Output: filepath.Join(root, "out", "cd4")}

	res, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Both PlateA cells have 4 counts and are dropped; G1 is then seen in
	// no cell.
	if got := fmt.Sprint(res.Merged.Matrix.ColLabels()); got != "[PlateB_A1 PlateB_B2]" {
		t.Errorf("Unexpected cells after QC %s", got)
	}
	if got := fmt.Sprint(res.Merged.Matrix.RowLabels()); got != "[G2 G3]" {
		t.Errorf("Unexpected genes after QC %s", got)
	}
	if got := fmt.Sprint(res.Merged.Matrix.Dense()); got != "[[5 0] [7 8]]" {
		t.Errorf("Unexpected counts after QC %s", got)
	}
	if len(res.Merged.Cells) != 2 || res.Merged.Cells[1].ID != "PlateB_B2" {
		t.Errorf("Cell records do not follow the kept columns: %+v", res.Merged.Cells)
	}
	if res.Manifest.Filter == nil || res.Manifest.Filter.CellsKept != 2 {
		t.Errorf("Unexpected filter stats %+v", res.Manifest.Filter)
	}

	if res.Subset == nil {
		t.Fatal("Expected a subset artifact")
	}
	if got := fmt.Sprint(res.Subset.Matrix.ColLabels()); got != "[PlateB_B2]" {
		t.Errorf("Unexpected subset %s", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.Subset.Output, artifact.ManifestFile)); err != nil {
		t.Error(err)
	}
}

func TestRunMissingFile(t *testing.T) {
	root, cfg := writeFixtures(t)
	if err := os.Remove(filepath.Join(root, "plates", "PlateB", plate.DefaultFiles.GeneNames)); err != nil {
		t.Fatal(err)
	}

	_, err := Run(context.Background(), cfg, nil)
	var mfe *plate.MissingFileError
	if !errors.As(err, &mfe) || mfe.Plate != "PlateB" {
		t.Fatalf("Expected a MissingFileError for PlateB, got %v", err)
	}
	if _, err := os.Stat(cfg.Output); !os.IsNotExist(err) {
		t.Error("A failed run wrote an artifact")
	}

	cfg.SkipMissingPlates = true
	res, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Manifest.Skipped) != 1 || res.Manifest.Skipped[0].Plate != "PlateB" {
		t.Errorf("Expected PlateB to be reported as skipped, got %+v", res.Manifest.Skipped)
	}
	if got := fmt.Sprint(res.Merged.Matrix.RowLabels()); got != "[G1 G2]" {
		t.Errorf("Unexpected genes %s", got)
	}
}

func TestRunMissingMatrix(t *testing.T) {
	root, cfg := writeFixtures(t)
	if err := os.Remove(filepath.Join(root, "plates", "PlateB", plate.DefaultFiles.Matrix)); err != nil {
		t.Fatal(err)
	}

	_, err := Run(context.Background(), cfg, nil)
	var mfe *plate.MissingFileError
	if !errors.As(err, &mfe) || mfe.Plate != "PlateB" || mfe.What != "matrix" {
		t.Fatalf("Expected a missing matrix for PlateB, got %v", err)
	}
	if _, err := os.Stat(cfg.Output); !os.IsNotExist(err) {
		t.Error("A failed run wrote an artifact")
	}

	cfg.SkipMissingPlates = true
	res, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Manifest.Skipped) != 1 || res.Manifest.Skipped[0].Plate != "PlateB" {
		t.Errorf("Expected PlateB to be reported as skipped, got %+v", res.Manifest.Skipped)
	}
	if got := fmt.Sprint(res.Merged.Matrix.ColLabels()); got != "[PlateA_A1 PlateA_A2]" {
		t.Errorf("Unexpected cells %s", got)
	}
}

func TestRunNoPlates(t *testing.T) {
	root, cfg := writeFixtures(t)
	cfg.PlatesDir = filepath.Join(root, "empty")
	if err := os.MkdirAll(cfg.PlatesDir, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := Run(context.Background(), cfg, nil)
	if !errors.Is(err, aligner.ErrEmptyPlateSet) {
		t.Fatalf("Expected an empty plate set, got %v", err)
	}
}

func TestResolvePlatesExplicit(t *testing.T) {
	cfg := config.Default()
	cfg.Plates = []plate.Plate{{Dir: "/data/run7/"}, {ID: "custom", Dir: "/data/run8"}}

	plates, err := ResolvePlates(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if plates[0].ID != "run7" || plates[1].ID != "custom" {
		t.Errorf("Unexpected plates %+v", plates)
	}
}
