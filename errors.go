package gfcanalysis

import "fmt"

// EmptyResultError is returned when an AOI does not intersect the dataset's
// global coverage and no tile can be selected.
type EmptyResultError struct {
	Bounds [4]float64 // AOI envelope in EPSG:4326, minx/miny/maxx/maxy
}

func (e EmptyResultError) Error() string {
	return fmt.Sprintf("aoi [%g %g %g %g] does not intersect dataset coverage",
		e.Bounds[0], e.Bounds[1], e.Bounds[2], e.Bounds[3])
}

// MissingTileFileError is returned when an expected tile file cannot be
// opened. The download collaborator must have fetched it beforehand.
type MissingTileFileError struct {
	Path string
	Err  error
}

func (e MissingTileFileError) Error() string {
	return fmt.Sprintf("missing tile file %s: %v", e.Path, e.Err)
}

func (e MissingTileFileError) Unwrap() error {
	return e.Err
}

// BandCountMismatchError is returned when a loaded or computed raster does
// not carry the band cardinality its product variant requires.
type BandCountMismatchError struct {
	Want, Got int
	Context   string
}

func (e BandCountMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d bands, got %d", e.Context, e.Want, e.Got)
}

// GridAlignmentError is returned by the mosaic engine when two tile grids
// are offset by more than the configured fraction of a pixel.
type GridAlignmentError struct {
	Axis      string
	Offset    float64 // fractional pixel offset from the reference grid
	Tolerance float64
}

func (e GridAlignmentError) Error() string {
	return fmt.Sprintf("grids misaligned on %s axis: offset %g px exceeds tolerance %g px",
		e.Axis, e.Offset, e.Tolerance)
}

// UnsupportedCRSError is returned when a reprojection target cannot be
// determined, e.g. a local UTM zone for an extent centered on a pole.
type UnsupportedCRSError struct {
	Lon, Lat float64
	Reason   string
}

func (e UnsupportedCRSError) Error() string {
	return fmt.Sprintf("no usable CRS for (%g,%g): %s", e.Lon, e.Lat, e.Reason)
}
