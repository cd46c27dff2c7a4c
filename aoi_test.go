package gfcanalysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func polygonJSON(minx, miny, maxx, maxy float64) string {
	return fmt.Sprintf(`{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}`,
		minx, miny, maxx, miny, maxx, maxy, minx, maxy, minx, miny)
}

// every feature of a collection contributes to the envelope, not just the
// first one
func TestNewAOIMultiFeatureCollection(t *testing.T) {
	doc := fmt.Sprintf(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":%s},
		{"type":"Feature","properties":{},"geometry":%s}]}`,
		polygonJSON(2, -8, 5, -3), polygonJSON(22, -8, 25, -3))

	aoi, err := NewAOI([]byte(doc), 4326)
	require.NoError(t, err)

	b, err := aoi.Bounds(4326)
	require.NoError(t, err)
	assert.Equal(t, [4]float64{2, -8, 25, -3}, b)

	tiles, err := TilesFor(aoi)
	require.NoError(t, err)
	assert.Equal(t, []TileID{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 20}}, tiles)
}

func TestNewAOIRejectsNonPolygonFeature(t *testing.T) {
	doc := fmt.Sprintf(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":%s},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}]}`,
		polygonJSON(2, -8, 5, -3))

	_, err := NewAOI([]byte(doc), 4326)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Polygon or MultiPolygon")
}

func TestEnvelopeOfSkipsUnmappablePoints(t *testing.T) {
	huge := 1e308
	xs := []float64{1, huge, 3}
	ys := []float64{4, huge, 6}

	b, err := envelopeOf(xs, ys, []bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, [4]float64{1, 4, 3, 6}, b)

	_, err = envelopeOf(xs, ys, []bool{false, false, false})
	assert.Error(t, err)
}
