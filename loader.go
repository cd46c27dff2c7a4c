package gfcanalysis

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/airbusgeo/godal"
)

type pixelWindow struct {
	x, y, w, h int
}

// LoadAndCrop reads the ordered per-tile source files of a variant and
// assembles them into a single RasterStack cropped to the AOI envelope.
// The envelope is first re-expressed in the tile's own CRS, and the crop
// snaps outward to pixel boundaries so the integer encoding is preserved
// without resampling. Files are opened read-only and closed on every exit
// path. An absent file is a MissingTileFileError; a band cardinality that
// does not match the variant is a BandCountMismatchError.
func LoadAndCrop(paths []string, aoi *AOI, variant ProductVariant) (*RasterStack, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("load: no tile files to read")
	}

	stack := &RasterStack{
		NoData: variant.NoData,
		Pixel:  variant.Pixel,
	}
	var (
		win        pixelWindow
		srcGT      [6]float64
		srcW, srcH int
	)

	loadOne := func(path string, first bool) error {
		ds, err := godal.Open(path, godal.RasterOnly())
		if err != nil {
			// a local file that exists but fails to open is corrupt, not
			// missing; VSI paths cannot be stat'ed so the open error stands
			if !strings.Contains(path, "://") {
				if _, serr := os.Stat(path); serr == nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
			}
			return MissingTileFileError{Path: path, Err: err}
		}
		defer ds.Close()

		gt, err := ds.GeoTransform()
		if err != nil {
			return fmt.Errorf("geotransform of %s: %w", path, err)
		}
		if gt[2] != 0 || gt[4] != 0 {
			return fmt.Errorf("%s: rotated grids not supported", path)
		}
		st := ds.Structure()

		if first {
			// the first file of a tile establishes the grid
			if win, stack.GT, err = cropWindow(ds, gt, aoi, path); err != nil {
				return err
			}
			stack.Width, stack.Height = win.w, win.h
			stack.Proj, stack.EPSG = datasetCRS(ds)
			srcGT, srcW, srcH = gt, st.SizeX, st.SizeY
		} else {
			for i := range gt {
				if math.Abs(gt[i]-srcGT[i]) > 1e-9 {
					return fmt.Errorf("%s: grid differs from sibling tile images", path)
				}
			}
			if st.SizeX != srcW || st.SizeY != srcH {
				return fmt.Errorf("%s: size %dx%d differs from sibling tile images %dx%d",
					path, st.SizeX, st.SizeY, srcW, srcH)
			}
		}

		for _, band := range ds.Bands() {
			buf := make([]float64, win.w*win.h)
			if err := band.Read(win.x, win.y, buf, win.w, win.h); err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			stack.Data = append(stack.Data, buf)
		}
		return nil
	}

	for i, p := range paths {
		if err := loadOne(p, i == 0); err != nil {
			return nil, err
		}
	}

	if len(stack.Data) != len(variant.BandNames) {
		return nil, BandCountMismatchError{
			Want:    len(variant.BandNames),
			Got:     len(stack.Data),
			Context: fmt.Sprintf("load %s tile %s", variant.Key, paths[0]),
		}
	}
	stack.Bands = append([]string(nil), variant.BandNames...)
	if err := stack.validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", paths[0], err)
	}
	return stack, nil
}

func cropWindow(ds *godal.Dataset, gt [6]float64, aoi *AOI, path string) (pixelWindow, [6]float64, error) {
	b, err := aoi.boundsInSRS(ds.SpatialRef())
	if err != nil {
		return pixelWindow{}, [6]float64{}, fmt.Errorf("crop %s: %w", path, err)
	}
	st := ds.Structure()

	px0 := int(math.Floor((b[0] - gt[0]) / gt[1]))
	px1 := int(math.Ceil((b[2] - gt[0]) / gt[1]))
	py0 := int(math.Floor((b[3] - gt[3]) / gt[5]))
	py1 := int(math.Ceil((b[1] - gt[3]) / gt[5]))
	px0, px1 = clampRange(px0, px1, st.SizeX)
	py0, py1 = clampRange(py0, py1, st.SizeY)
	if px1 <= px0 || py1 <= py0 {
		return pixelWindow{}, [6]float64{}, fmt.Errorf("crop %s: aoi envelope does not overlap tile", path)
	}

	win := pixelWindow{x: px0, y: py0, w: px1 - px0, h: py1 - py0}
	cropGT := [6]float64{
		gt[0] + float64(px0)*gt[1], gt[1], 0,
		gt[3] + float64(py0)*gt[5], 0, gt[5],
	}
	return win, cropGT, nil
}

func clampRange(lo, hi, max int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > max {
		hi = max
	}
	return lo, hi
}

func datasetCRS(ds *godal.Dataset) (wkt string, epsg int) {
	sr := ds.SpatialRef()
	if sr == nil {
		return "", 0
	}
	wkt, err := sr.WKT()
	if err != nil {
		return "", 0
	}
	if wgs84, err := godal.NewSpatialRefFromEPSG(4326); err == nil {
		if sr.IsSame(wgs84) {
			epsg = 4326
		}
		wgs84.Close()
	}
	return wkt, epsg
}
