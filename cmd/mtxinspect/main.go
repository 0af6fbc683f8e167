// mtxinspect prints the dimensions, label heads and run manifest of a merged
// artifact folder.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/platemerge"
	"github.com/carbocation/platemerge/artifact"
	_ "github.com/carbocation/platemerge/compileinfoprint"
	"github.com/olekukonko/tablewriter"
)

func main() {
	var dir string
	var head int
	var manifest bool

	flag.StringVar(&dir, "artifact", "", "Folder written by platemerge. May be a gs:// path.")
	flag.IntVar(&head, "head", 5, "Number of genes and cells to print.")
	flag.BoolVar(&manifest, "manifest", false, "Also print run.json.")
	flag.Parse()

	if dir == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx := context.Background()

	var client *storage.Client
	if platemerge.IsGoogleStorage(dir) {
		var err error
		client, err = storage.NewClient(ctx)
		if err != nil {
			log.Fatalln(err)
		}
		defer client.Close()
	}

	contents, err := artifact.Read(ctx, dir, client)
	if err != nil {
		log.Fatalln(err)
	}

	nrow, ncol := contents.Matrix.Dims()
	fmt.Printf("%s: %d genes x %d cells, %d non-zero counts\n", dir, nrow, ncol, contents.Matrix.NNZ())
	fmt.Printf("Genes: %s\n", strings.Join(first(contents.Matrix.RowLabels(), head), ", "))

	table := tablewriter.NewWriter(os.Stdout)
	table.Header(contents.CellsHeader)
	if err := table.Bulk(first(contents.Cells, head)); err != nil {
		log.Fatalln(err)
	}
	if err := table.Render(); err != nil {
		log.Fatalln(err)
	}

	if manifest {
		os.Stdout.Write(contents.Manifest)
	}
}

func first[T any](s []T, n int) []T {
	if n >= 0 && n < len(s) {
		return s[:n]
	}

	return s
}
