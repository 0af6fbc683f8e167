// platemerge merges the single-cell count matrices of several sequencing
// plates into one gene x cell matrix, labels cells by plate and well, and
// attaches per-cell annotation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	_ "github.com/carbocation/platemerge/compileinfoprint"
	"github.com/carbocation/platemerge/config"
	"github.com/carbocation/platemerge/pipeline"
	"google.golang.org/api/option"
)

func main() {
	var (
		configPath   string
		platesDir    string
		indexTable   string
		annotations  string
		sheet        string
		output       string
		subsetField  string
		subsetValues string
		subsetOutput string
		skipMissing  bool
		parallelism  int
		minFeatures  int
		minCounts    int64
		maxMito      float64
		minCells     int
		credentials  string
		bqProject    string
		bqDataset    string
		bqTable      string
		bqCreds      string
	)

	flag.StringVar(&configPath, "config", "", "(Optional) JSON or YAML file with run settings. Flags given explicitly override it.")
	flag.StringVar(&platesDir, "plates_dir", "", "Folder whose sub-folders are plates. May be a gs:// path.")
	flag.StringVar(&indexTable, "index", "", "Delimited table with indexstring and well columns. May be a gs:// path.")
	flag.StringVar(&annotations, "annotation", "", "(Optional) Annotation spreadsheet (.xls, .csv, .tsv) with Plate and Well columns. May be a gs:// path.")
	flag.StringVar(&sheet, "sheet", "", "(Optional) Worksheet of an .xls annotation file. Defaults to the first.")
	flag.StringVar(&output, "output", "", "Folder to write the merged artifact into. May be a gs:// path.")
	flag.StringVar(&subsetField, "subset_field", "", "(Optional) Annotation field used to write a second, filtered artifact.")
	flag.StringVar(&subsetValues, "subset_values", "", "Comma-separated values of -subset_field to keep.")
	flag.StringVar(&subsetOutput, "subset_output", "", "Folder for the filtered artifact.")
	flag.BoolVar(&skipMissing, "skip_missing_plates", false, "Skip, and report, plates that lack a required file instead of failing.")
	flag.IntVar(&parallelism, "parallelism", 0, "Plates to process at once. 0 means one per plate, up to 4.")
	flag.IntVar(&minFeatures, "min_features", 0, "Drop cells with fewer detected genes. 0 disables.")
	flag.Int64Var(&minCounts, "min_counts", 0, "Drop cells with fewer total counts. 0 disables.")
	flag.Float64Var(&maxMito, "max_percent_mito", 0, "Drop cells with a higher percentage of mitochondrial counts. 0 disables.")
	flag.IntVar(&minCells, "min_cells_per_gene", 0, "Drop genes detected in fewer of the kept cells. 0 disables.")
	flag.StringVar(&credentials, "credentials", "", "(Optional) Service account key for google storage. Also used for BigQuery unless -bq_credentials is set.")
	flag.StringVar(&bqProject, "bq_project", "", "(Optional) BigQuery project for the per-cell export.")
	flag.StringVar(&bqDataset, "bq_dataset", "", "(Optional) BigQuery dataset for the per-cell export.")
	flag.StringVar(&bqTable, "bq_table", "", "(Optional) BigQuery table for the per-cell export. Created if absent.")
	flag.StringVar(&bqCreds, "bq_credentials", "", "(Optional) Service account key for the BigQuery export.")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalln(err)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "plates_dir":
			cfg.PlatesDir = platesDir
		case "index":
			cfg.IndexTable = indexTable
		case "annotation":
			cfg.Annotation.Path = annotations
		case "sheet":
			cfg.Annotation.Sheet = sheet
		case "output":
			cfg.Output = output
		case "subset_field":
			cfg.Subset.Field = subsetField
		case "subset_values":
			cfg.Subset.Values = splitList(subsetValues)
		case "subset_output":
			cfg.Subset.Output = subsetOutput
		case "skip_missing_plates":
			cfg.SkipMissingPlates = skipMissing
		case "parallelism":
			cfg.Parallelism = parallelism
		case "min_features":
			cfg.QC.MinFeatures = minFeatures
		case "min_counts":
			cfg.QC.MinCounts = minCounts
		case "max_percent_mito":
			cfg.QC.MaxPercentMito = maxMito
		case "min_cells_per_gene":
			cfg.QC.MinCellsPerGene = minCells
		case "credentials":
			cfg.Credentials = credentials
		case "bq_project":
			cfg.BigQuery.Project = bqProject
		case "bq_dataset":
			cfg.BigQuery.Dataset = bqDataset
		case "bq_table":
			cfg.BigQuery.Table = bqTable
		case "bq_credentials":
			cfg.BigQuery.Credentials = bqCreds
		}
	})
	cfg.ExpandHome()

	if err := cfg.Validate(); err != nil {
		log.Println(err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx := context.Background()

	var client *storage.Client
	if cfg.UsesGoogleStorage() {
		var opts []option.ClientOption
		if cfg.Credentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
		}

		var err error
		client, err = storage.NewClient(ctx, opts...)
		if err != nil {
			log.Fatalln(err)
		}
		defer client.Close()
	}

	res, err := pipeline.Run(ctx, cfg, client)
	if err != nil {
		log.Fatalln(err)
	}

	if err := res.Manifest.RenderSummary(os.Stderr); err != nil {
		log.Fatalln(err)
	}
	fmt.Fprintln(os.Stderr, "Done")
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}

	return out
}
