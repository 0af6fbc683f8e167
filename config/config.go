// Package config holds the settings of a merge run, read from a JSON or YAML
// file and overridden by command-line flags.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/annotation"
	"github.com/carbocation/platemerge/bqexport"
	"github.com/carbocation/platemerge/plate"
	"github.com/carbocation/platemerge/qc"
	"github.com/carbocation/platemerge/samplecode"
	"gopkg.in/yaml.v3"
)

// MaxDefaultParallelism caps the number of plates processed at once when
// Parallelism is not set.
const MaxDefaultParallelism = 4

type Annotation struct {
	Path               string `json:"path" yaml:"path"`
	annotation.Options `yaml:",inline"`
}

// Subset writes a second artifact holding the cells whose annotation Field
// has one of Values.
type Subset struct {
	Field  string   `json:"field" yaml:"field"`
	Values []string `json:"values" yaml:"values"`
	Output string   `json:"output" yaml:"output"`
}

func (s Subset) Enabled() bool {
	return s.Field != ""
}

type Config struct {
	ConfigPath string `json:"-" yaml:"-"`

	// Plates come either from the sub-directories of PlatesDir or from an
	// explicit list.
	PlatesDir string        `json:"plates_dir,omitempty" yaml:"plates_dir,omitempty"`
	Plates    []plate.Plate `json:"plates,omitempty" yaml:"plates,omitempty"`
	Files     plate.Files   `json:"files" yaml:"files"`

	IndexTable string            `json:"index_table" yaml:"index_table"`
	SampleCode samplecode.Format `json:"sample_code" yaml:"sample_code"`
	Annotation Annotation        `json:"annotation" yaml:"annotation"`

	SkipMissingPlates bool `json:"skip_missing_plates" yaml:"skip_missing_plates"`
	Parallelism       int  `json:"parallelism" yaml:"parallelism"`

	QC     qc.Thresholds `json:"qc" yaml:"qc"`
	Subset Subset        `json:"subset" yaml:"subset"`
	Output string        `json:"output" yaml:"output"`

	// Service account key for google storage, and for BigQuery unless
	// BigQuery.Credentials is set. Empty means application default
	// credentials.
	Credentials string           `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	BigQuery    bqexport.Options `json:"bigquery" yaml:"bigquery"`
}

// Default returns a Config with every optional setting at its default.
func Default() Config {
	return Config{
		Files:      plate.DefaultFiles,
		SampleCode: samplecode.V1,
		Annotation: Annotation{Options: annotation.Options{
			PlateColumn: annotation.DefaultPlateColumn,
			WellColumn:  annotation.DefaultWellColumn,
		}},
		QC: qc.Thresholds{MitoPrefix: qc.DefaultMitoPrefix},
	}
}

// Load reads a config file over Default. Files ending in .yaml or .yml are
// YAML, .json is JSON. Unknown keys are rejected.
func Load(path string) (Config, error) {
	out := Default()

	data, err := os.ReadFile(platemerge.ExpandHome(path))
	if err != nil {
		return out, pfx.Err(err)
	}

	switch ext := strings.ToLower(platemerge.Extension(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&out); err != nil {
			return out, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&out); err != nil {
			if e, ok := err.(*json.SyntaxError); ok {
				log.Printf("%s: syntax error at byte offset %d", path, e.Offset)
			}
			return out, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
	default:
		return out, fmt.Errorf("%s: unrecognized config extension %q (want .json, .yaml or .yml)", path, ext)
	}

	out.ConfigPath = path
	out.ExpandHome()

	return out, nil
}

// BigQueryOptions returns the export destination, falling back to the
// storage key file when no BigQuery key file is configured.
func (c Config) BigQueryOptions() bqexport.Options {
	opts := c.BigQuery
	if opts.Credentials == "" {
		opts.Credentials = c.Credentials
	}

	return opts
}

// ExpandHome interprets a leading ~ in every local path.
func (c *Config) ExpandHome() {
	for _, p := range []*string{
		&c.ConfigPath,
		&c.PlatesDir,
		&c.IndexTable,
		&c.Annotation.Path,
		&c.Subset.Output,
		&c.Output,
		&c.Credentials,
		&c.BigQuery.Credentials,
	} {
		*p = platemerge.ExpandHome(*p)
	}

	for k := range c.Plates {
		c.Plates[k].Dir = platemerge.ExpandHome(c.Plates[k].Dir)
	}
}

// EffectiveParallelism is the number of plates to process at once for a run
// over n plates.
func (c Config) EffectiveParallelism(n int) int {
	if c.Parallelism > 0 {
		return c.Parallelism
	}
	if n > MaxDefaultParallelism {
		return MaxDefaultParallelism
	}
	if n < 1 {
		return 1
	}

	return n
}

// UsesGoogleStorage reports whether any input or output lives in a bucket.
func (c Config) UsesGoogleStorage() bool {
	paths := []string{c.PlatesDir, c.IndexTable, c.Annotation.Path, c.Output, c.Subset.Output}
	for _, p := range c.Plates {
		paths = append(paths, p.Dir)
	}

	for _, p := range paths {
		if platemerge.IsGoogleStorage(p) {
			return true
		}
	}

	return false
}

// Validate reports the first setting that would make a run impossible.
func (c *Config) Validate() error {
	if c.PlatesDir == "" && len(c.Plates) == 0 {
		return fmt.Errorf("no plates: set plates_dir or list plates")
	}
	if c.PlatesDir != "" && len(c.Plates) > 0 {
		return fmt.Errorf("set either plates_dir or plates, not both")
	}
	for k, p := range c.Plates {
		if p.Dir == "" {
			return fmt.Errorf("plate %d (%q) has no dir", k, p.ID)
		}
	}

	if c.IndexTable == "" {
		return fmt.Errorf("index_table is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}

	if err := c.SampleCode.Validate(); err != nil {
		return err
	}

	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0 (0 = automatic), got %d", c.Parallelism)
	}

	if c.QC.MinFeatures < 0 || c.QC.MinCounts < 0 || c.QC.MinCellsPerGene < 0 {
		return fmt.Errorf("qc thresholds must be >= 0")
	}
	if c.QC.MaxPercentMito < 0 || c.QC.MaxPercentMito > 100 {
		return fmt.Errorf("qc.max_percent_mito must be between 0 and 100, got %v", c.QC.MaxPercentMito)
	}

	if c.Subset.Enabled() {
		if c.Annotation.Path == "" {
			return fmt.Errorf("subset on %q needs an annotation table", c.Subset.Field)
		}
		if len(c.Subset.Values) == 0 {
			return fmt.Errorf("subset on %q lists no values", c.Subset.Field)
		}
		if c.Subset.Output == "" {
			return fmt.Errorf("subset on %q needs an output", c.Subset.Field)
		}
		if c.Subset.Output == c.Output {
			return fmt.Errorf("subset output must differ from output %s", c.Output)
		}
	}

	return c.BigQuery.Validate()
}
