// Package pipeline runs a complete merge: every plate is normalized, the
// plates are merged over their gene union, annotated, quality filtered and
// written out.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge/aligner"
	"github.com/carbocation/platemerge/annotation"
	"github.com/carbocation/platemerge/artifact"
	"github.com/carbocation/platemerge/bqexport"
	"github.com/carbocation/platemerge/compileinfo"
	"github.com/carbocation/platemerge/config"
	"github.com/carbocation/platemerge/plate"
	"github.com/carbocation/platemerge/qc"
	"github.com/carbocation/platemerge/wellindex"
)

// Manifest describes a run. It is written as run.json next to each artifact.
type Manifest struct {
	Build    compileinfo.CompileInfo `json:"build"`
	RunID    string                  `json:"run_id"`
	Started  time.Time               `json:"started"`
	Finished time.Time               `json:"finished"`
	Config   config.Config           `json:"config"`

	Plates     []plate.Report        `json:"plates"`
	Skipped    []SkippedPlate        `json:"skipped_plates,omitempty"`
	Annotation annotation.JoinStats  `json:"annotation"`
	Filter     *qc.FilterStats       `json:"qc_filter,omitempty"`
	QC         map[string]qc.Summary `json:"qc_by_plate"`

	Genes int `json:"genes"`
	Cells int `json:"cells"`

	// Set in the manifest of a subset artifact.
	SubsetOf string `json:"subset_of,omitempty"`
}

type Result struct {
	Merged   *artifact.Artifact
	Subset   *artifact.Artifact
	Manifest Manifest
}

// Run executes cfg. Nothing is written unless every plate, the merge and the
// annotation join succeed.
func Run(ctx context.Context, cfg config.Config, client *storage.Client) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	man := Manifest{
		Build:   compileinfo.Get(),
		RunID:   started.UTC().Format("20060102T150405.000Z"),
		Started: started,
		Config:  cfg,
	}

	index, err := wellindex.Load(ctx, cfg.IndexTable, client)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded %d index strings from %s\n", index.Len(), cfg.IndexTable)

	plates, err := ResolvePlates(ctx, cfg, client)
	if err != nil {
		return nil, err
	}

	normalized, skipped, err := NormalizeAll(ctx, plates, cfg, index, client)
	if err != nil {
		return nil, err
	}
	man.Skipped = skipped

	var matrices []aligner.PlateMatrix
	for _, n := range normalized {
		if n == nil {
			continue
		}
		matrices = append(matrices, aligner.PlateMatrix{ID: n.Plate.ID, Matrix: n.Matrix})
		man.Plates = append(man.Plates, n.Report)
	}

	merged, err := aligner.AlignAndMerge(matrices)
	if err != nil {
		return nil, err
	}
	nrow, ncol := merged.Dims()
	log.Printf("Merged %d plates: %d genes x %d cells\n", len(matrices), nrow, ncol)

	var table *annotation.Table
	if cfg.Annotation.Path != "" {
		table, err = annotation.Load(ctx, cfg.Annotation.Path, cfg.Annotation.Options, client)
		if err != nil {
			return nil, err
		}
	}
	annotated, joinStats := annotation.Join(merged, table)
	man.Annotation = joinStats
	if table != nil {
		log.Printf("Annotated %d of %d cells from %s (%d annotation rows matched no cell)\n", joinStats.Matched, joinStats.Cells, cfg.Annotation.Path, joinStats.Orphans)
	}

	metrics := qc.Compute(merged, cfg.QC.MitoPrefix)
	cells := buildCells(annotated, aligner.Origins(matrices), metrics)

	if cfg.QC.Enabled() {
		annotated, cells, man.Filter, err = filter(annotated, cells, metrics, cfg.QC)
		if err != nil {
			return nil, err
		}
		log.Printf("QC kept %d of %d cells and %d of %d genes\n", man.Filter.CellsKept, man.Filter.CellsIn, man.Filter.GenesKept, man.Filter.GenesIn)
	}

	man.QC = summarize(cells)
	man.Genes, man.Cells = annotated.Matrix.Dims()

	out := &Result{Merged: toArtifact(annotated, cells)}

	if cfg.Subset.Enabled() {
		keep, err := annotated.Match(cfg.Subset.Field, cfg.Subset.Values)
		if err != nil {
			return nil, pfx.Err(err)
		}
		sub, err := annotated.SelectCols(keep)
		if err != nil {
			return nil, pfx.Err(err)
		}
		out.Subset = toArtifact(sub, selectCells(cells, keep))
		log.Printf("Subset %s in %v: %d cells\n", cfg.Subset.Field, cfg.Subset.Values, len(keep))
	}

	man.Finished = time.Now()
	out.Manifest = man

	if err := artifact.Write(ctx, cfg.Output, out.Merged, man, client); err != nil {
		return nil, err
	}
	log.Printf("Wrote %s\n", cfg.Output)

	if out.Subset != nil {
		subMan := man
		subMan.SubsetOf = cfg.Output
		subMan.Genes, subMan.Cells = out.Subset.Matrix.Dims()
		subMan.QC = summarize(out.Subset.Cells)
		if err := artifact.Write(ctx, cfg.Subset.Output, out.Subset, subMan, client); err != nil {
			return nil, err
		}
		log.Printf("Wrote %s\n", cfg.Subset.Output)
	}

	if cfg.BigQuery.Enabled() {
		if err := bqexport.Export(ctx, cfg.BigQueryOptions(), out.Merged, man.RunID); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func buildCells(a *annotation.Annotated, origins []aligner.Origin, metrics []qc.Metrics) []artifact.Cell {
	cells := make([]artifact.Cell, len(origins))
	for j, o := range origins {
		cells[j] = artifact.Cell{
			ID:         o.Label,
			Plate:      o.Plate,
			Well:       o.Well,
			Metrics:    metrics[j],
			Annotation: a.Records[j].Values,
		}
	}

	return cells
}

func selectCells(cells []artifact.Cell, idx []int) []artifact.Cell {
	out := make([]artifact.Cell, len(idx))
	for k, j := range idx {
		out[k] = cells[j]
	}

	return out
}

// filter applies the QC thresholds. Cells keep the metrics they were judged
// by.
func filter(a *annotation.Annotated, cells []artifact.Cell, metrics []qc.Metrics, th qc.Thresholds) (*annotation.Annotated, []artifact.Cell, *qc.FilterStats, error) {
	sel, err := qc.Filter(a.Matrix, metrics, th)
	if err != nil {
		return nil, nil, nil, pfx.Err(err)
	}

	kept, err := a.SelectCols(sel.Cells)
	if err != nil {
		return nil, nil, nil, pfx.Err(err)
	}
	kept, err = kept.SelectRows(sel.Genes)
	if err != nil {
		return nil, nil, nil, pfx.Err(err)
	}

	return kept, selectCells(cells, sel.Cells), &sel.Stats, nil
}

func summarize(cells []artifact.Cell) map[string]qc.Summary {
	metrics := make([]qc.Metrics, len(cells))
	plates := make([]string, len(cells))
	for j, c := range cells {
		metrics[j] = c.Metrics
		plates[j] = c.Plate
	}

	return qc.SummarizeBy(metrics, plates)
}

func toArtifact(a *annotation.Annotated, cells []artifact.Cell) *artifact.Artifact {
	return &artifact.Artifact{Matrix: a.Matrix, Fields: a.Fields, Cells: cells}
}

func (m Manifest) String() string {
	return fmt.Sprintf("run %s: %d plates (%d skipped), %d genes x %d cells", m.RunID, len(m.Plates), len(m.Skipped), m.Genes, m.Cells)
}
