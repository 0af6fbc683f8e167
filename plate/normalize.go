package plate

import (
	"context"
	"log"

	"cloud.google.com/go/storage"
	"github.com/carbocation/platemerge/barcode"
	"github.com/carbocation/platemerge/countmatrix"
	"github.com/carbocation/platemerge/genesymbol"
	"github.com/carbocation/platemerge/samplecode"
)

// Report summarizes how a plate's identifiers were resolved.
type Report struct {
	Plate    string           `json:"plate"`
	Dir      string           `json:"dir"`
	Genes    int              `json:"genes"`
	Cells    int              `json:"cells"`
	NNZ      int              `json:"nnz"`
	GeneIDs  genesymbol.Stats `json:"gene_ids"`
	Barcodes barcode.Stats    `json:"barcodes"`
}

// Normalized is a plate matrix with gene symbols as row labels and well
// positions (or the raw barcode, where unresolvable) as column labels.
type Normalized struct {
	Plate  Plate
	Matrix *countmatrix.Matrix
	Report Report
}

// Normalize relabels the plate's raw matrix. The counts are shared with the
// raw matrix, unchanged.
func Normalize(in *Inputs, index barcode.WellIndex, format samplecode.Format) (*Normalized, error) {
	nrow, ncol := in.Raw.Dims()

	if ncol > 0 && in.Barcodes.Len() == 0 {
		return nil, &ShapeMismatchError{Plate: in.Plate.ID, Path: in.Barcodes.Path(), What: "barcode sample table", Want: ncol, Got: 0}
	}
	if nrow > 0 && in.Genes.Len() == 0 {
		return nil, &ShapeMismatchError{Plate: in.Plate.ID, Path: in.Genes.Path(), What: "gene name table", Want: nrow, Got: 0}
	}

	geneLabels, geneStats := genesymbol.Resolve(in.Genes, in.Raw.RowLabels())

	resolver := barcode.Resolver{Samples: in.Barcodes, Index: index, Format: format}
	cellLabels, barcodeStats := resolver.ResolveAll(in.Raw.ColLabels())

	if dup, found := firstDuplicate(cellLabels); found {
		return nil, &DuplicateCellError{Plate: in.Plate.ID, Label: dup}
	}

	m, err := in.Raw.WithRowLabels(geneLabels)
	if err != nil {
		return nil, err
	}
	m, err = m.WithColLabels(cellLabels)
	if err != nil {
		return nil, err
	}

	report := Report{
		Plate:    in.Plate.ID,
		Dir:      in.Plate.Dir,
		Genes:    nrow,
		Cells:    ncol,
		NNZ:      m.NNZ(),
		GeneIDs:  geneStats,
		Barcodes: barcodeStats,
	}
	report.logWarnings()

	return &Normalized{Plate: in.Plate, Matrix: m, Report: report}, nil
}

func (r Report) logWarnings() {
	if n := r.Barcodes.Unresolved(); n > 0 {
		log.Printf("Warning: plate %s: %d of %d barcodes unresolved (no sample code: %d, malformed sample code: %d, no well: %d); kept as raw barcodes\n",
			r.Plate, n, r.Barcodes.Total, r.Barcodes.NoSample, r.Barcodes.MalformedSample, r.Barcodes.NoWell)
	}
	if r.GeneIDs.Fallback > 0 {
		log.Printf("Warning: plate %s: %d of %d gene IDs have no symbol; kept as accessions\n", r.Plate, r.GeneIDs.Fallback, r.GeneIDs.Total)
	}
	if r.GeneIDs.Renamed > 0 {
		log.Printf("Plate %s: %d gene labels were suffixed to keep them unique\n", r.Plate, r.GeneIDs.Renamed)
	}
}

func firstDuplicate(labels []string) (string, bool) {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, exists := seen[label]; exists {
			return label, true
		}
		seen[label] = struct{}{}
	}

	return "", false
}

// Process loads and normalizes one plate.
func Process(ctx context.Context, p Plate, files Files, index barcode.WellIndex, format samplecode.Format, client *storage.Client) (*Normalized, error) {
	in, err := Load(ctx, p, files, client)
	if err != nil {
		return nil, err
	}

	out, err := Normalize(in, index, format)
	if err != nil {
		return nil, err
	}

	log.Printf("Plate %s: %d genes x %d cells, %d of %d barcodes placed in wells\n", p.ID, out.Report.Genes, out.Report.Cells, out.Report.Barcodes.Resolved, out.Report.Barcodes.Total)

	return out, nil
}
