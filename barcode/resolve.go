package barcode

import (
	"fmt"

	"github.com/carbocation/platemerge/lookup"
	"github.com/carbocation/platemerge/samplecode"
)

// SampleTable is satisfied by *Table.
type SampleTable interface {
	Sample(raw string) lookup.Result
}

// WellIndex is satisfied by *wellindex.Table.
type WellIndex interface {
	Resolve(composite string) lookup.Result
}

// Outcome records which step, if any, stopped a barcode from resolving.
type Outcome uint8

const (
	Resolved Outcome = iota
	NoSample
	MalformedSample
	NoWell
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case NoSample:
		return "no sample code"
	case MalformedSample:
		return "malformed sample code"
	case NoWell:
		return "no well for index"
	}

	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Resolver maps raw barcodes to well labels. It holds no mutable state.
type Resolver struct {
	Samples SampleTable
	Index   WellIndex
	Format  samplecode.Format
}

// Resolve returns the well label for raw, or raw itself when any step of the
// chain barcode -> sample code -> composite index -> well comes up empty.
func (r Resolver) Resolve(raw string) (string, Outcome) {
	sample := r.Samples.Sample(raw)
	if !sample.OK() {
		return raw, NoSample
	}

	code, err := r.Format.Parse(sample.Value)
	if err != nil {
		return raw, MalformedSample
	}

	well := r.Index.Resolve(code.IndexString())
	if !well.OK() {
		return raw, NoWell
	}

	return well.Value, Resolved
}

// Stats counts outcomes over a batch of barcodes.
type Stats struct {
	Total           int `json:"total"`
	Resolved        int `json:"resolved"`
	NoSample        int `json:"no_sample"`
	MalformedSample int `json:"malformed_sample"`
	NoWell          int `json:"no_well"`
}

func (s Stats) Unresolved() int {
	return s.Total - s.Resolved
}

func (s *Stats) add(o Outcome) {
	s.Total++
	switch o {
	case Resolved:
		s.Resolved++
	case NoSample:
		s.NoSample++
	case MalformedSample:
		s.MalformedSample++
	case NoWell:
		s.NoWell++
	}
}

// ResolveAll resolves every barcode, preserving order.
func (r Resolver) ResolveAll(raws []string) ([]string, Stats) {
	out := make([]string, len(raws))
	var stats Stats
	for k, raw := range raws {
		var outcome Outcome
		out[k], outcome = r.Resolve(raw)
		stats.add(outcome)
	}

	return out, stats
}

// ResolveBarcode resolves a single barcode with the V1 sample code format.
func ResolveBarcode(samples SampleTable, index WellIndex, raw string) string {
	label, _ := Resolver{Samples: samples, Index: index, Format: samplecode.V1}.Resolve(raw)
	return label
}
