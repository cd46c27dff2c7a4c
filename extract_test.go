package gfcanalysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

// writeTile materializes one synthetic 10-degree tile image with a constant
// value and 0.25 degree pixels.
func writeTile(t *testing.T, folder string, tile TileID, image string, nbands int, fill float64) {
	t.Helper()
	const size = 40
	path := filepath.Join(folder, TileFileName(tile, image, DefaultDatasetVersion))
	ds, err := godal.Create(godal.GTiff, path, nbands, godal.Byte, size, size)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{float64(tile.Lon), 0.25, 0, float64(tile.Lat), 0, -0.25}))
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	require.NoError(t, err)
	require.NoError(t, ds.SetSpatialRef(sr))
	sr.Close()
	buf := make([]float64, size*size)
	for i := range buf {
		buf[i] = fill
	}
	for _, band := range ds.Bands() {
		require.NoError(t, band.Write(0, 0, buf, size, size))
	}
	require.NoError(t, ds.Close())
}

func squareAOI(t *testing.T, minx, miny, maxx, maxy float64) *AOI {
	t.Helper()
	aoi, err := NewAOI([]byte(polygonJSON(minx, miny, maxx, maxy)), 4326)
	require.NoError(t, err)
	return aoi
}

func TestExtractChangeSingleTile(t *testing.T) {
	folder := t.TempDir()
	tile := TileID{Lat: 0, Lon: 0}
	for i, image := range Change.Images {
		writeTile(t, folder, tile, image, 1, float64(10*(i+1)))
	}

	aoi := squareAOI(t, 2, -8, 5, -3)
	stack, err := Extract(context.Background(), aoi, ExtractOptions{
		Variant:    "change",
		DataFolder: folder,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"treecover2000", "lossyear", "gain", "datamask"}, stack.Bands)
	assert.Equal(t, -1.0, stack.NoData)
	assert.Equal(t, 4326, stack.EPSG)
	assert.Equal(t, 12, stack.Width)
	assert.Equal(t, 20, stack.Height)
	assert.Equal(t, [6]float64{2, 0.25, 0, -3, 0, -0.25}, stack.GT)
	for b := range stack.Bands {
		assert.Equal(t, float64(10*(b+1)), stack.Data[b][0])
	}
}

func TestExtractFirstStraddlingTwoTiles(t *testing.T) {
	folder := t.TempDir()
	writeTile(t, folder, TileID{Lat: 0, Lon: 0}, "first", 4, 5)
	writeTile(t, folder, TileID{Lat: 0, Lon: 10}, "first", 4, 7)

	aoi := squareAOI(t, 8, -5, 12, -2)
	stack, err := Extract(context.Background(), aoi, ExtractOptions{
		Variant:    "first",
		DataFolder: folder,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Band3", "Band4", "Band5", "Band7"}, stack.Bands)
	assert.Equal(t, 0.0, stack.NoData)
	assert.Equal(t, 16, stack.Width)
	for x := 0; x < 8; x++ {
		assert.Equal(t, 5.0, stack.Data[0][x])
	}
	for x := 8; x < 16; x++ {
		assert.Equal(t, 7.0, stack.Data[0][x])
	}
}

func TestExtractChangeToUTMStraddlingTiles(t *testing.T) {
	folder := t.TempDir()
	for _, image := range Change.Images {
		writeTile(t, folder, TileID{Lat: 0, Lon: 0}, image, 1, 5)
		writeTile(t, folder, TileID{Lat: 0, Lon: 10}, image, 1, 7)
	}

	// midpoint (10, -3.5): zone 32 south
	aoi := squareAOI(t, 8, -5, 12, -2)
	stack, err := Extract(context.Background(), aoi, ExtractOptions{
		Variant:    "change",
		DataFolder: folder,
		ToUTM:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, 32732, stack.EPSG)
	assert.NotEmpty(t, stack.Proj)
	assert.Equal(t, Change.BandNames, stack.Bands)
	// nearest-neighbour: class codes survive the warp, nothing interpolates
	for b := range stack.Bands {
		for _, v := range stack.Data[b] {
			assert.Contains(t, []float64{5, 7, stack.NoData}, v)
		}
	}
}

// a present but unreadable file is a corruption error, not a missing tile
func TestExtractCorruptTileFile(t *testing.T) {
	folder := t.TempDir()
	tile := TileID{Lat: 0, Lon: 0}
	for _, image := range Change.Images {
		writeTile(t, folder, tile, image, 1, 3)
	}
	garbled := filepath.Join(folder, TileFileName(tile, "treecover2000", DefaultDatasetVersion))
	require.NoError(t, os.WriteFile(garbled, []byte("not a raster"), 0644))

	aoi := squareAOI(t, 2, -8, 5, -3)
	_, err := Extract(context.Background(), aoi, ExtractOptions{
		Variant:    "change",
		DataFolder: folder,
	})
	require.Error(t, err)
	var missing MissingTileFileError
	assert.False(t, errors.As(err, &missing))
}

func TestExtractMissingTileFile(t *testing.T) {
	aoi := squareAOI(t, 2, -8, 5, -3)
	_, err := Extract(context.Background(), aoi, ExtractOptions{
		Variant:    "change",
		DataFolder: t.TempDir(),
	})
	require.Error(t, err)
	var missing MissingTileFileError
	assert.True(t, errors.As(err, &missing))
}

func TestExtractWritesOutput(t *testing.T) {
	folder := t.TempDir()
	tile := TileID{Lat: 0, Lon: 0}
	for _, image := range Change.Images {
		writeTile(t, folder, tile, image, 1, 3)
	}
	out := filepath.Join(t.TempDir(), "change.tif")

	aoi := squareAOI(t, 2, -8, 5, -3)
	opts := ExtractOptions{
		Variant:    "change",
		DataFolder: folder,
		OutputPath: out,
	}
	_, err := Extract(context.Background(), aoi, opts)
	require.NoError(t, err)
	_, err = os.Stat(out)
	require.NoError(t, err)

	// a second run without overwrite refuses to clobber the product
	_, err = Extract(context.Background(), aoi, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overwrite")

	opts.Overwrite = true
	_, err = Extract(context.Background(), aoi, opts)
	assert.NoError(t, err)
}
