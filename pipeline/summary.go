package pipeline

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// RenderSummary prints one row per plate: its size, how its identifiers
// resolved and the QC medians of the cells it contributed.
func (m Manifest) RenderSummary(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Plate", "Genes", "Cells", "Wells placed", "No sample", "Bad sample", "No well", "Gene fallback", "Renamed", "Median count", "Median features"})

	rows := make([][]string, 0, len(m.Plates)+len(m.Skipped))
	for _, r := range m.Plates {
		s := m.QC[r.Plate]
		rows = append(rows, []string{
			r.Plate,
			strconv.Itoa(r.Genes),
			strconv.Itoa(r.Cells),
			fmt.Sprintf("%d/%d", r.Barcodes.Resolved, r.Barcodes.Total),
			strconv.Itoa(r.Barcodes.NoSample),
			strconv.Itoa(r.Barcodes.MalformedSample),
			strconv.Itoa(r.Barcodes.NoWell),
			strconv.Itoa(r.GeneIDs.Fallback),
			strconv.Itoa(r.GeneIDs.Renamed),
			strconv.FormatFloat(s.MedianCount, 'f', 0, 64),
			strconv.FormatFloat(s.MedianFeatures, 'f', 0, 64),
		})
	}
	for _, s := range m.Skipped {
		rows = append(rows, []string{s.Plate, "skipped", "", "", "", "", "", "", "", "", ""})
	}

	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w, m)
	return err
}
