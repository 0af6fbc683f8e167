// Package genesymbol replaces gene accession IDs with gene symbols. Symbols
// are not one-to-one with accessions, so the resolved labels are always made
// unique before they are used as matrix row names.
package genesymbol

import (
	"context"
	"log"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/lookup"
)

const (
	ColumnGeneID   = "gene_id"
	ColumnGeneName = "gene_name"
)

type row struct {
	GeneID   string `csv:"gene_id"`
	GeneName string `csv:"gene_name"`
}

// Map holds gene_id -> gene_name for one plate.
type Map struct {
	path      string
	symbols   map[string]string
	conflicts int
}

func Load(ctx context.Context, path string, client *storage.Client) (*Map, error) {
	data, err := platemerge.ReadAll(ctx, path, client)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return Parse(path, data)
}

// Parse builds a Map. When an accession is listed more than once the first
// symbol is kept and the conflict is counted.
func Parse(path string, data []byte) (*Map, error) {
	rows := []row{}
	if err := platemerge.UnmarshalTable(path, data, &rows, ColumnGeneID, ColumnGeneName); err != nil {
		return nil, err
	}

	m := &Map{
		path:    path,
		symbols: make(map[string]string, len(rows)),
	}

	for _, r := range rows {
		id := strings.TrimSpace(r.GeneID)
		name := strings.TrimSpace(r.GeneName)
		if id == "" {
			continue
		}

		if prior, exists := m.symbols[id]; exists {
			if prior != name {
				m.conflicts++
			}
			continue
		}

		m.symbols[id] = name
	}

	if m.conflicts > 0 {
		log.Printf("Gene table %s: %d accession(s) listed with more than one symbol; kept the first\n", path, m.conflicts)
	}

	return m, nil
}

// NewMap builds a Map from an in-memory table.
func NewMap(symbols map[string]string) *Map {
	m := &Map{symbols: make(map[string]string, len(symbols))}
	for k, v := range symbols {
		m.symbols[k] = v
	}

	return m
}

func (m *Map) Symbol(id string) lookup.Result {
	name, exists := m.symbols[id]
	return lookup.Classify(name, exists)
}

func (m *Map) Len() int {
	return len(m.symbols)
}

func (m *Map) Conflicts() int {
	return m.conflicts
}

func (m *Map) Path() string {
	return m.path
}

// Symbols is satisfied by *Map.
type Symbols interface {
	Symbol(id string) lookup.Result
}

type Stats struct {
	Total    int `json:"total"`
	Symbols  int `json:"symbols"`
	Fallback int `json:"fallback"`
	Renamed  int `json:"renamed"`
}

// Resolve returns one unique label per gene ID, in input order: the symbol
// when the map has a non-empty one, otherwise the ID itself, followed by
// MakeUnique.
func Resolve(m Symbols, ids []string) ([]string, Stats) {
	stats := Stats{Total: len(ids)}

	labels := make([]string, len(ids))
	for k, id := range ids {
		res := m.Symbol(id)
		if res.OK() {
			stats.Symbols++
		} else {
			stats.Fallback++
		}
		labels[k] = res.Or(id)
	}

	labels, stats.Renamed = MakeUnique(labels)

	return labels, stats
}

// MakeUnique appends ".1", ".2", ... to repeated labels so that every output
// label is distinct. The first occurrence of each label stays bare, and a
// generated name never reuses a label that is present anywhere in the input.
// The second return value is the number of labels that were renamed.
func MakeUnique(labels []string) ([]string, int) {
	reserved := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		reserved[label] = struct{}{}
	}

	out := make([]string, len(labels))
	used := make(map[string]struct{}, len(labels))
	next := make(map[string]int)
	renamed := 0

	for k, label := range labels {
		if _, seen := used[label]; !seen {
			out[k] = label
			used[label] = struct{}{}
			continue
		}

		n := next[label]
		if n == 0 {
			n = 1
		}

		var candidate string
		for ; ; n++ {
			candidate = label + "." + strconv.Itoa(n)
			_, isReserved := reserved[candidate]
			_, isUsed := used[candidate]
			if !isReserved && !isUsed {
				break
			}
		}

		next[label] = n + 1
		used[candidate] = struct{}{}
		out[k] = candidate
		renamed++
	}

	return out, renamed
}
