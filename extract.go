package gfcanalysis

import (
	"context"
	"fmt"

	"github.com/tbonfort/gobs"
)

// defaultLoadWorkers bounds the per-tile load fan-out.
const defaultLoadWorkers = 4

// ExtractOptions is the explicit configuration of one pipeline call.
type ExtractOptions struct {
	// Variant is the product stack keyword: change, first or last.
	Variant string
	// DatasetVersion tags the distributed release, e.g. GFC-2023-v1.11.
	// Empty selects DefaultDatasetVersion.
	DatasetVersion string
	// DataFolder holds the previously-downloaded tile files. May use a
	// registered VSI scheme such as gs://.
	DataFolder string
	// ToUTM reprojects the mosaic into the UTM zone of its own centroid.
	ToUTM bool
	// Rescale converts the reflectance composites to physical reflectance.
	Rescale bool
	// Tolerance is the mosaic grid alignment tolerance in pixel fractions;
	// zero selects DefaultTolerance.
	Tolerance float64
	// OutputPath, when set, persists the final stack as a GeoTIFF.
	OutputPath  string
	Overwrite   bool
	Compression Compression
	COG         bool
	// WarpSwitches are extra gdalwarp switches appended during
	// reprojection; the caller is responsible for validating them.
	WarpSwitches []string
	// Workers bounds the parallel tile loads; zero selects the default.
	Workers int
}

func (o *ExtractOptions) fill() {
	if o.DatasetVersion == "" {
		o.DatasetVersion = DefaultDatasetVersion
	}
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Workers <= 0 {
		o.Workers = defaultLoadWorkers
	}
}

// Extract runs the full pipeline: tile selection, per-tile load+crop,
// mosaic, then the optional reprojection, reflectance rescale and
// persistence stages. Stages run strictly in order and the first error
// aborts the call; nothing persists across invocations.
func Extract(ctx context.Context, aoi *AOI, opts ExtractOptions) (*RasterStack, error) {
	variant, err := ParseVariant(opts.Variant)
	if err != nil {
		return nil, err
	}
	opts.fill()
	if opts.Rescale && variant.Categorical {
		return nil, fmt.Errorf("stack %q cannot be rescaled to reflectance", variant.Key)
	}

	tiles, err := TilesFor(aoi)
	if err != nil {
		return nil, err
	}

	stacks, err := loadTiles(ctx, tiles, aoi, variant, opts)
	if err != nil {
		return nil, err
	}

	mosaic, err := Mosaic(stacks, opts.Tolerance)
	if err != nil {
		return nil, err
	}

	out := mosaic
	if opts.ToUTM {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		epsg, err := LocalUTM(out)
		if err != nil {
			return nil, err
		}
		if out, err = Reproject(out, epsg, variant.Categorical, opts.WarpSwitches...); err != nil {
			return nil, err
		}
	}
	if opts.Rescale {
		if out, err = RescaleReflectance(out); err != nil {
			return nil, err
		}
	}

	if opts.OutputPath != "" {
		werr := WriteGTiff(out, opts.OutputPath, WriteOptions{
			Overwrite:   opts.Overwrite,
			Compression: opts.Compression,
			COG:         opts.COG,
		})
		if werr != nil {
			return nil, werr
		}
	}
	return out, nil
}

// loadTiles fans the independent per-tile load+crop calls out on a bounded
// worker pool and joins them before mosaicking. Results keep tile order so
// the pipeline stays deterministic.
func loadTiles(ctx context.Context, tiles []TileID, aoi *AOI, variant ProductVariant, opts ExtractOptions) ([]*RasterStack, error) {
	stacks := make([]*RasterStack, len(tiles))
	workers := opts.Workers
	if workers > len(tiles) {
		workers = len(tiles)
	}
	pool := gobs.NewPool(workers)
	batch := pool.Batch()
	for i, tile := range tiles {
		i, tile := i, tile
		batch.Submit(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			paths := TilePaths(tile, variant, opts.DatasetVersion, opts.DataFolder)
			stack, err := LoadAndCrop(paths, aoi, variant)
			if err != nil {
				return fmt.Errorf("tile %s: %w", tile, err)
			}
			stacks[i] = stack
			return nil
		})
	}
	if err := batch.Wait(); err != nil {
		return nil, err
	}
	return stacks, nil
}
