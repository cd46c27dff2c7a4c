package gfcanalysis

import (
	"fmt"
	"path/filepath"
	"strings"
)

// The dataset is distributed as a fixed global grid of 10x10 degree tiles
// in EPSG:4326, identified by the latitude/longitude of their north-west
// corner. Coverage runs from 80N down to 60S.
const (
	TileSize = 10 // degrees

	coverageWest  = -180.0
	coverageEast  = 180.0
	coverageSouth = -60.0
	coverageNorth = 80.0

	// FilePrefix is the fixed leading component of every distributed
	// tile file name.
	FilePrefix = "Hansen"

	// DefaultDatasetVersion is the release used when none is configured.
	DefaultDatasetVersion = "GFC-2023-v1.11"
)

// A TileID identifies one cell of the global grid by its top-left (NW)
// corner, in whole degrees. Both coordinates are multiples of TileSize.
type TileID struct {
	Lat int // latitude of the northern edge
	Lon int // longitude of the western edge
}

// Extent returns the tile coverage as minx,miny,maxx,maxy in EPSG:4326.
func (t TileID) Extent() [4]float64 {
	return [4]float64{float64(t.Lon), float64(t.Lat - TileSize), float64(t.Lon + TileSize), float64(t.Lat)}
}

// PathSuffix encodes the corner as the distributor's file-name fragment,
// e.g. (10,-20) -> "10N_020W". Latitude is zero-padded to two digits,
// longitude to three; zero maps to the N/E hemisphere.
func (t TileID) PathSuffix() string {
	ns := "N"
	lat := t.Lat
	if lat < 0 {
		ns = "S"
		lat = -lat
	}
	ew := "E"
	lon := t.Lon
	if lon < 0 {
		ew = "W"
		lon = -lon
	}
	return fmt.Sprintf("%02d%s_%03d%s", lat, ns, lon, ew)
}

func (t TileID) String() string {
	return t.PathSuffix()
}

// TileFileName composes the canonical file name of one source image of a
// tile, e.g. Hansen_GFC-2023-v1.11_treecover2000_10N_020W.tif.
func TileFileName(t TileID, image, datasetVersion string) string {
	return fmt.Sprintf("%s_%s_%s_%s.tif", FilePrefix, datasetVersion, image, t.PathSuffix())
}

// TilePaths resolves the ordered sequence of file paths a variant needs for
// one tile. Pure string composition: existence is checked at load time.
// Folders with a URL scheme (e.g. gs://bucket/path registered as a VSI
// handler) are joined textually so the scheme separator survives.
func TilePaths(t TileID, variant ProductVariant, datasetVersion, dataFolder string) []string {
	paths := make([]string, len(variant.Images))
	for i, image := range variant.Images {
		name := TileFileName(t, image, datasetVersion)
		if strings.Contains(dataFolder, "://") {
			paths[i] = strings.TrimSuffix(dataFolder, "/") + "/" + name
		} else {
			paths[i] = filepath.Join(dataFolder, name)
		}
	}
	return paths
}

// TilesFor computes the set of grid tiles whose extent intersects the AOI
// envelope, north-to-south then west-to-east. At least one tile is returned;
// an AOI outside the dataset coverage yields an EmptyResultError.
func TilesFor(aoi *AOI) ([]TileID, error) {
	b, err := aoi.Bounds(4326)
	if err != nil {
		return nil, fmt.Errorf("aoi bounds: %w", err)
	}
	return tilesForBounds(b)
}

func tilesForBounds(b [4]float64) ([]TileID, error) {
	if b[0] > coverageEast || b[2] < coverageWest || b[1] > coverageNorth || b[3] < coverageSouth {
		return nil, EmptyResultError{Bounds: b}
	}

	// Closed-interval intersection: an envelope edge exactly on a tile
	// boundary selects the tiles on both sides.
	var tiles []TileID
	for lat := int(coverageNorth); lat > int(coverageSouth); lat -= TileSize {
		if float64(lat) < b[1] || float64(lat-TileSize) > b[3] {
			continue
		}
		for lon := int(coverageWest); lon < int(coverageEast); lon += TileSize {
			if float64(lon) > b[2] || float64(lon+TileSize) < b[0] {
				continue
			}
			tiles = append(tiles, TileID{Lat: lat, Lon: lon})
		}
	}
	if len(tiles) == 0 {
		return nil, EmptyResultError{Bounds: b}
	}
	return tiles, nil
}
