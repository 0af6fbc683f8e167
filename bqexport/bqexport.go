// Package bqexport streams per-cell metadata (identity, QC metrics and
// annotation fields) of a merged artifact into a BigQuery table.
package bqexport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"unicode"

	"cloud.google.com/go/bigquery"
	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge/artifact"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BatchSize is the number of rows sent per streaming insert.
const BatchSize = 500

// Options locates the destination table. Credentials is an optional service
// account key file; without it, application default credentials are used.
type Options struct {
	Project     string `json:"project" yaml:"project"`
	Dataset     string `json:"dataset" yaml:"dataset"`
	Table       string `json:"table" yaml:"table"`
	Credentials string `json:"credentials" yaml:"credentials"`
}

// Enabled reports whether a destination table is configured.
func (o Options) Enabled() bool {
	return o.Table != ""
}

func (o Options) Validate() error {
	if !o.Enabled() {
		return nil
	}
	if o.Project == "" || o.Dataset == "" {
		return fmt.Errorf("bigquery export to table %q needs both a project and a dataset", o.Table)
	}

	return nil
}

func (o Options) String() string {
	return fmt.Sprintf("%s.%s.%s", o.Project, o.Dataset, o.Table)
}

var fixedColumns = []*bigquery.FieldSchema{
	{Name: "run_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "cell", Type: bigquery.StringFieldType, Required: true},
	{Name: "plate", Type: bigquery.StringFieldType, Required: true},
	{Name: "well", Type: bigquery.StringFieldType, Required: true},
	{Name: "n_count", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "n_feature", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "percent_mito", Type: bigquery.FloatFieldType},
}

// FieldName turns an annotation header into a legal BigQuery column name:
// letters, digits and underscores, not starting with a digit.
func FieldName(s string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}

	name := sb.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	if len(name) > 300 {
		name = name[:300]
	}

	return name
}

// Schema returns the table schema for an artifact with the given annotation
// fields, along with the column name of each field. Column names are
// compared case-insensitively, so clashes get a numeric suffix.
func Schema(fields []string) (bigquery.Schema, []string) {
	schema := append(bigquery.Schema(nil), fixedColumns...)

	taken := make(map[string]struct{}, len(fixedColumns)+len(fields))
	for _, c := range fixedColumns {
		taken[strings.ToLower(c.Name)] = struct{}{}
	}

	names := make([]string, len(fields))
	for k, f := range fields {
		base := FieldName(f)
		name := base
		for n := 2; ; n++ {
			if _, exists := taken[strings.ToLower(name)]; !exists {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[strings.ToLower(name)] = struct{}{}
		names[k] = name

		schema = append(schema, &bigquery.FieldSchema{Name: name, Type: bigquery.StringFieldType, Description: f})
	}

	return schema, names
}

// Row is one cell, ready for a streaming insert.
type Row struct {
	RunID   string
	Cell    artifact.Cell
	Columns []string
}

// Save implements bigquery.ValueSaver. The insert ID makes retried inserts of
// the same run idempotent.
func (r Row) Save() (map[string]bigquery.Value, string, error) {
	out := map[string]bigquery.Value{
		"run_id":    r.RunID,
		"cell":      r.Cell.ID,
		"plate":     r.Cell.Plate,
		"well":      r.Cell.Well,
		"n_count":   r.Cell.NCount,
		"n_feature": r.Cell.NFeature,
	}
	if r.Cell.PercentMito.Valid {
		out["percent_mito"] = r.Cell.PercentMito.Float64
	} else {
		out["percent_mito"] = nil
	}

	for k, col := range r.Columns {
		if k < len(r.Cell.Annotation) && r.Cell.Annotation[k].Valid {
			out[col] = r.Cell.Annotation[k].String
		} else {
			out[col] = nil
		}
	}

	return out, r.RunID + "/" + r.Cell.ID, nil
}

// Rows converts every cell of a into a Row.
func Rows(a *artifact.Artifact, runID string, columns []string) []bigquery.ValueSaver {
	out := make([]bigquery.ValueSaver, 0, len(a.Cells))
	for _, c := range a.Cells {
		out = append(out, Row{RunID: runID, Cell: c, Columns: columns})
	}

	return out
}

// Export creates the destination table if needed and inserts one row per
// cell of a.
func Export(ctx context.Context, opts Options, a *artifact.Artifact, runID string) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	var clientOpts []option.ClientOption
	if opts.Credentials != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.Credentials))
	}

	client, err := bigquery.NewClient(ctx, opts.Project, clientOpts...)
	if err != nil {
		return pfx.Err(fmt.Errorf("connecting to BigQuery: %w", err))
	}
	defer client.Close()

	schema, columns := Schema(a.Fields)
	table := client.Dataset(opts.Dataset).Table(opts.Table)

	if err := ensureTable(ctx, table, schema); err != nil {
		return pfx.Err(fmt.Errorf("%s: %w", opts, err))
	}

	rows := Rows(a, runID, columns)
	inserter := table.Inserter()
	for start := 0; start < len(rows); start += BatchSize {
		end := start + BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return pfx.Err(fmt.Errorf("%s: inserting rows %d-%d: %w", opts, start, end, err))
		}
	}

	log.Printf("Exported %d cells to BigQuery table %s\n", len(rows), opts)

	return nil
}

// ensureTable creates the table with schema unless it exists. An existing
// table must already hold every column.
func ensureTable(ctx context.Context, table *bigquery.Table, schema bigquery.Schema) error {
	md, err := table.Metadata(ctx)
	if isNotFound(err) {
		log.Printf("Creating BigQuery table %s.%s\n", table.DatasetID, table.TableID)
		return table.Create(ctx, &bigquery.TableMetadata{Schema: schema})
	} else if err != nil {
		return err
	}

	have := make(map[string]struct{}, len(md.Schema))
	for _, f := range md.Schema {
		have[strings.ToLower(f.Name)] = struct{}{}
	}

	var missing []string
	for _, f := range schema {
		if _, ok := have[strings.ToLower(f.Name)]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("existing table lacks column(s) %s", strings.Join(missing, ", "))
	}

	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
