package gfcanalysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/cogger"
	"github.com/airbusgeo/godal"
	"github.com/google/uuid"

	_ "github.com/google/tiff/bigtiff"
)

// Compression selects the GTiff compression of persisted products.
type Compression int

const (
	CompressionLZW Compression = iota
	CompressionDeflate
	CompressionNone
)

func (c Compression) creationOption() (string, error) {
	switch c {
	case CompressionLZW:
		return "COMPRESS=LZW", nil
	case CompressionDeflate:
		return "COMPRESS=DEFLATE", nil
	case CompressionNone:
		return "COMPRESS=NONE", nil
	}
	return "", fmt.Errorf("unknown compression %d", int(c))
}

// WriteOptions configures product persistence.
type WriteOptions struct {
	Overwrite   bool
	Compression Compression
	// COG restructures the written file into a Cloud-Optimized GeoTIFF.
	COG bool
}

func (p PixelType) gdalType() godal.DataType {
	switch p {
	case PixelByte:
		return godal.Byte
	case PixelUInt16:
		return godal.UInt16
	default:
		return godal.Float32
	}
}

// WriteGTiff persists the stack to a tiled GeoTIFF, carrying the band
// names, CRS and nodata sentinel. Categorical products are written as
// 8-bit unsigned, raw reflectance as 16-bit unsigned and rescaled
// reflectance as 32-bit float.
func WriteGTiff(s *RasterStack, path string, opts WriteOptions) error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("write %s: file exists and overwrite is disabled", path)
		}
	}
	compress, err := opts.Compression.creationOption()
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	target := path
	if opts.COG {
		// write to a scratch file first, then restructure into the output
		base := filepath.Base(path)
		target = filepath.Join(filepath.Dir(path),
			fmt.Sprintf(".%s.%s.tif", strings.TrimSuffix(base, filepath.Ext(base)), uuid.New().String()[0:8]))
		defer os.Remove(target)
	}

	ds, err := godal.Create(godal.GTiff, target, len(s.Bands), s.Pixel.gdalType(), s.Width, s.Height,
		godal.CreationOption("TILED=YES", "BLOCKXSIZE=256", "BLOCKYSIZE=256", compress))
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	closed := false
	defer func() {
		if !closed {
			ds.Close()
		}
	}()
	if err := ds.SetGeoTransform(s.GT); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if s.Proj != "" {
		sr, err := godal.NewSpatialRefFromWKT(s.Proj)
		if err != nil {
			return UnsupportedCRSError{Reason: fmt.Sprintf("stack CRS: %v", err)}
		}
		err = ds.SetSpatialRef(sr)
		sr.Close()
		if err != nil {
			return fmt.Errorf("set spatial ref: %w", err)
		}
	}
	if err := ds.SetNoData(s.NoData); err != nil {
		return fmt.Errorf("set nodata: %w", err)
	}
	if err := ds.SetMetadata("BAND_NAMES", strings.Join(s.Bands, ",")); err != nil {
		return fmt.Errorf("set band names: %w", err)
	}
	for i, band := range ds.Bands() {
		if err := band.Write(0, 0, s.Data[i], s.Width, s.Height); err != nil {
			return fmt.Errorf("write band %s: %w", s.Bands[i], err)
		}
	}
	closed = true
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}

	if !opts.COG {
		return nil
	}
	return cogify(target, path)
}

func cogify(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if err := cogger.DefaultConfig().Rewrite(out, in); err != nil {
		out.Close()
		return fmt.Errorf("cog rewrite: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
