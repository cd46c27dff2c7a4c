package gfcanalysis

import "fmt"

// A RasterStack is a single in-memory raster with one or more named bands
// sharing one grid. The geotransform follows the usual GDAL convention:
// gt[0],gt[3] is the top-left corner, gt[1] the pixel width and gt[5] the
// (negative) pixel height; rotated grids are not supported.
//
// Pipeline stages never mutate a stack they received: each transform
// returns a new value, with the single exception of the mosaic singleton
// pass-through which returns its input unchanged.
type RasterStack struct {
	Bands  []string
	Data   [][]float64 // one Width*Height row-major buffer per band
	Width  int
	Height int
	GT     [6]float64
	Proj   string // CRS as WKT, may be empty
	EPSG   int    // 0 when unknown
	NoData float64
	Pixel  PixelType
}

// Bounds returns the stack extent as minx,miny,maxx,maxy in its own CRS.
func (s *RasterStack) Bounds() [4]float64 {
	return [4]float64{
		s.GT[0],
		s.GT[3] + float64(s.Height)*s.GT[5],
		s.GT[0] + float64(s.Width)*s.GT[1],
		s.GT[3],
	}
}

func (s *RasterStack) resolution() (xres, yres float64) {
	return s.GT[1], s.GT[5]
}

func (s *RasterStack) sameBands(o *RasterStack) bool {
	if len(s.Bands) != len(o.Bands) {
		return false
	}
	for i := range s.Bands {
		if s.Bands[i] != o.Bands[i] {
			return false
		}
	}
	return true
}

func (s *RasterStack) validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("empty raster %dx%d", s.Width, s.Height)
	}
	if len(s.Bands) == 0 || len(s.Bands) != len(s.Data) {
		return fmt.Errorf("inconsistent band list: %d names, %d buffers", len(s.Bands), len(s.Data))
	}
	for i, d := range s.Data {
		if len(d) != s.Width*s.Height {
			return fmt.Errorf("band %s: %d samples, expected %d", s.Bands[i], len(d), s.Width*s.Height)
		}
	}
	if s.GT[2] != 0 || s.GT[4] != 0 {
		return fmt.Errorf("rotated grids not supported")
	}
	return nil
}
