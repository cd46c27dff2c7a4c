package gfcanalysis

import (
	"fmt"
	"math"
)

// DefaultTolerance is the maximum allowed grid misalignment between tiles
// being merged, as a fraction of one pixel.
const DefaultTolerance = 0.05

// alignEps absorbs float noise so an offset exactly at the tolerance passes.
const alignEps = 1e-9

// Mosaic merges cropped tile stacks that share a common grid into one
// contiguous raster covering their combined extent. A single stack is
// returned unchanged. Where stacks overlap, cells carrying data in more
// than one stack are blended with an unweighted mean; cells covered by a
// single stack keep their value; uncovered cells get the nodata sentinel.
//
// All inputs must agree on band names and order, CRS, resolution and
// nodata. Each grid must align with the first stack's grid to within
// tolerance (fraction of a pixel) on both axes, otherwise the whole merge
// aborts with a GridAlignmentError.
func Mosaic(stacks []*RasterStack, tolerance float64) (*RasterStack, error) {
	if len(stacks) == 0 {
		return nil, fmt.Errorf("mosaic: no stacks to merge")
	}
	if tolerance < 0 {
		return nil, fmt.Errorf("mosaic: negative tolerance %g", tolerance)
	}
	if len(stacks) == 1 {
		return stacks[0], nil
	}

	ref := stacks[0]
	xres, yres := ref.resolution()

	// integer placement of each stack on the reference grid
	cols := make([]int, len(stacks))
	rows := make([]int, len(stacks))
	for i, s := range stacks {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("mosaic input %d: %w", i, err)
		}
		if !ref.sameBands(s) {
			if len(s.Bands) != len(ref.Bands) {
				return nil, BandCountMismatchError{
					Want:    len(ref.Bands),
					Got:     len(s.Bands),
					Context: fmt.Sprintf("mosaic input %d", i),
				}
			}
			return nil, fmt.Errorf("mosaic input %d: band names %v differ from %v", i, s.Bands, ref.Bands)
		}
		if s.Proj != ref.Proj || s.EPSG != ref.EPSG {
			return nil, fmt.Errorf("mosaic input %d: CRS differs from input 0", i)
		}
		if s.NoData != ref.NoData {
			return nil, fmt.Errorf("mosaic input %d: nodata %g differs from %g", i, s.NoData, ref.NoData)
		}
		sx, sy := s.resolution()
		if math.Abs(sx-xres) > tolerance*math.Abs(xres)+alignEps ||
			math.Abs(sy-yres) > tolerance*math.Abs(yres)+alignEps {
			return nil, GridAlignmentError{
				Axis:      "resolution",
				Offset:    math.Max(math.Abs(sx-xres)/math.Abs(xres), math.Abs(sy-yres)/math.Abs(yres)),
				Tolerance: tolerance,
			}
		}

		fx := (s.GT[0] - ref.GT[0]) / xres
		fy := (s.GT[3] - ref.GT[3]) / yres
		cols[i] = int(math.Round(fx))
		rows[i] = int(math.Round(fy))
		if off := math.Abs(fx - float64(cols[i])); off > tolerance+alignEps {
			return nil, GridAlignmentError{Axis: "x", Offset: off, Tolerance: tolerance}
		}
		if off := math.Abs(fy - float64(rows[i])); off > tolerance+alignEps {
			return nil, GridAlignmentError{Axis: "y", Offset: off, Tolerance: tolerance}
		}
	}

	// union extent on the reference grid
	minCol, minRow := cols[0], rows[0]
	maxCol, maxRow := cols[0]+stacks[0].Width, rows[0]+stacks[0].Height
	for i, s := range stacks[1:] {
		c, r := cols[i+1], rows[i+1]
		if c < minCol {
			minCol = c
		}
		if r < minRow {
			minRow = r
		}
		if c+s.Width > maxCol {
			maxCol = c + s.Width
		}
		if r+s.Height > maxRow {
			maxRow = r + s.Height
		}
	}
	width := maxCol - minCol
	height := maxRow - minRow

	out := &RasterStack{
		Bands:  append([]string(nil), ref.Bands...),
		Data:   make([][]float64, len(ref.Bands)),
		Width:  width,
		Height: height,
		GT: [6]float64{
			ref.GT[0] + float64(minCol)*xres, xres, 0,
			ref.GT[3] + float64(minRow)*yres, 0, yres,
		},
		Proj:   ref.Proj,
		EPSG:   ref.EPSG,
		NoData: ref.NoData,
		Pixel:  ref.Pixel,
	}

	sum := make([]float64, width*height)
	count := make([]int, width*height)
	for b := range ref.Bands {
		for i := range sum {
			sum[i], count[i] = 0, 0
		}
		for si, s := range stacks {
			c0 := cols[si] - minCol
			r0 := rows[si] - minRow
			for y := 0; y < s.Height; y++ {
				src := s.Data[b][y*s.Width : (y+1)*s.Width]
				off := (r0+y)*width + c0
				for x, v := range src {
					if v == s.NoData {
						continue
					}
					sum[off+x] += v
					count[off+x]++
				}
			}
		}
		buf := make([]float64, width*height)
		for i := range buf {
			if count[i] == 0 {
				buf[i] = ref.NoData
				continue
			}
			buf[i] = sum[i] / float64(count[i])
		}
		out.Data[b] = buf
	}
	return out, nil
}
