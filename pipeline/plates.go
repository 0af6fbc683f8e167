package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/storage"
	"github.com/carbocation/platemerge/barcode"
	"github.com/carbocation/platemerge/config"
	"github.com/carbocation/platemerge/plate"
	"golang.org/x/sync/errgroup"
)

// SkippedPlate is a plate left out of the merge because a file was missing.
type SkippedPlate struct {
	Plate  string `json:"plate"`
	Dir    string `json:"dir"`
	Reason string `json:"reason"`
}

// ResolvePlates returns the plates of a run: the configured list, or the
// plate directories found under PlatesDir.
func ResolvePlates(ctx context.Context, cfg config.Config, client *storage.Client) ([]plate.Plate, error) {
	if cfg.PlatesDir != "" {
		plates, err := plate.Discover(ctx, cfg.PlatesDir, cfg.Files, client)
		if err != nil {
			return nil, err
		}
		log.Printf("Found %d plates under %s\n", len(plates), cfg.PlatesDir)
		return plates, nil
	}

	out := make([]plate.Plate, len(cfg.Plates))
	for k, p := range cfg.Plates {
		if p.ID == "" {
			p = plate.FromDir(p.Dir)
		}
		out[k] = p
	}

	return out, nil
}

// NormalizeAll loads and normalizes every plate, at most parallelism at a
// time. Results keep the order of plates. With skipMissing, a plate that
// lacks a file is reported in the second return value instead of failing the
// run; its slot in the first is nil.
func NormalizeAll(ctx context.Context, plates []plate.Plate, cfg config.Config, index barcode.WellIndex, client *storage.Client) ([]*plate.Normalized, []SkippedPlate, error) {
	results := make([]*plate.Normalized, len(plates))
	skipped := make([]*SkippedPlate, len(plates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.EffectiveParallelism(len(plates)))

	for k, p := range plates {
		k, p := k, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			out, err := plate.Process(gctx, p, cfg.Files, index, cfg.SampleCode, client)
			if err == nil {
				results[k] = out
				return nil
			}

			var mfe *plate.MissingFileError
			if cfg.SkipMissingPlates && errors.As(err, &mfe) {
				log.Printf("Warning: skipping plate %s: %v\n", p.ID, err)
				skipped[k] = &SkippedPlate{Plate: p.ID, Dir: p.Dir, Reason: err.Error()}
				return nil
			}

			return fmt.Errorf("plate %s (%s): %w", p.ID, p.Dir, err)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var skips []SkippedPlate
	for _, s := range skipped {
		if s != nil {
			skips = append(skips, *s)
		}
	}

	return results, skips, nil
}
