package gfcanalysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStack(originX, originY float64, w, h int, fill float64) *RasterStack {
	s := &RasterStack{
		Bands:  []string{"treecover2000", "lossyear", "gain", "datamask"},
		Data:   make([][]float64, 4),
		Width:  w,
		Height: h,
		GT:     [6]float64{originX, 1, 0, originY, 0, -1},
		EPSG:   4326,
		NoData: -1,
		Pixel:  PixelByte,
	}
	for b := range s.Data {
		buf := make([]float64, w*h)
		for i := range buf {
			buf[i] = fill
		}
		s.Data[b] = buf
	}
	return s
}

func TestMosaicSingletonPassThrough(t *testing.T) {
	s := testStack(0, 10, 4, 4, 7)
	out, err := Mosaic([]*RasterStack{s}, DefaultTolerance)
	require.NoError(t, err)
	assert.Same(t, s, out)
}

func TestMosaicAdjacentTiles(t *testing.T) {
	left := testStack(0, 10, 4, 4, 2)
	right := testStack(4, 10, 4, 4, 4)

	out, err := Mosaic([]*RasterStack{left, right}, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 4, out.Height)
	assert.Equal(t, [6]float64{0, 1, 0, 10, 0, -1}, out.GT)
	assert.Equal(t, left.Bands, out.Bands)
	for b := range out.Bands {
		assert.Equal(t, 2.0, out.Data[b][0])
		assert.Equal(t, 4.0, out.Data[b][7])
	}
}

func TestMosaicOverlapMeanBlend(t *testing.T) {
	left := testStack(0, 10, 4, 4, 2)
	right := testStack(2, 10, 4, 4, 4)

	out, err := Mosaic([]*RasterStack{left, right}, DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, 6, out.Width)
	row := out.Data[0][:6]
	assert.Equal(t, []float64{2, 2, 3, 3, 4, 4}, row)
}

func TestMosaicNoDataDoesNotBlend(t *testing.T) {
	left := testStack(0, 10, 4, 4, 2)
	right := testStack(2, 10, 4, 4, 4)
	for i := range right.Data[0] {
		right.Data[0][i] = right.NoData
	}

	out, err := Mosaic([]*RasterStack{left, right}, DefaultTolerance)
	require.NoError(t, err)
	// band 0: only the left stack contributes, gap stays nodata
	assert.Equal(t, []float64{2, 2, 2, 2, -1, -1}, out.Data[0][:6])
	// band 1: both contribute, overlap is the mean
	assert.Equal(t, []float64{2, 2, 3, 3, 4, 4}, out.Data[1][:6])
}

func TestMosaicToleranceBoundary(t *testing.T) {
	tol := 0.05

	// offset exactly at the tolerance mosaics successfully
	left := testStack(0, 10, 4, 4, 2)
	right := testStack(4+tol, 10, 4, 4, 4)
	_, err := Mosaic([]*RasterStack{left, right}, tol)
	assert.NoError(t, err)

	// tolerance + epsilon fails with GridAlignmentError
	right = testStack(4+tol+0.001, 10, 4, 4, 4)
	_, err = Mosaic([]*RasterStack{left, right}, tol)
	require.Error(t, err)
	var misaligned GridAlignmentError
	require.True(t, errors.As(err, &misaligned))
	assert.Equal(t, "x", misaligned.Axis)

	// same on the y axis
	right = testStack(4, 10-tol-0.001, 4, 4, 4)
	_, err = Mosaic([]*RasterStack{left, right}, tol)
	require.True(t, errors.As(err, &misaligned))
	assert.Equal(t, "y", misaligned.Axis)
}

func TestMosaicBandMismatch(t *testing.T) {
	left := testStack(0, 10, 4, 4, 2)
	right := testStack(4, 10, 4, 4, 4)
	right.Bands = right.Bands[:3]
	right.Data = right.Data[:3]

	_, err := Mosaic([]*RasterStack{left, right}, DefaultTolerance)
	require.Error(t, err)
	var mismatch BandCountMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 4, mismatch.Want)
	assert.Equal(t, 3, mismatch.Got)

	right = testStack(4, 10, 4, 4, 4)
	right.Bands = []string{"Band3", "Band4", "Band5", "Band7"}
	_, err = Mosaic([]*RasterStack{left, right}, DefaultTolerance)
	assert.Error(t, err)
}

func TestMosaicEmptyInput(t *testing.T) {
	_, err := Mosaic(nil, DefaultTolerance)
	assert.Error(t, err)
}
