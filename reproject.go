package gfcanalysis

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
)

// UTMZoneEPSG computes the EPSG code of the UTM zone containing a
// geographic coordinate: 6 degree zones numbered from 180W, hemisphere from
// the latitude sign (326xx north, 327xx south). Deterministic and
// side-effect free. Coordinates outside the defined zones (beyond 84N/80S
// or with a longitude off the globe) yield an UnsupportedCRSError.
func UTMZoneEPSG(lon, lat float64) (int, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 {
		return 0, UnsupportedCRSError{Lon: lon, Lat: lat, Reason: "longitude outside [-180,180]"}
	}
	if lat > 84 || lat < -80 {
		return 0, UnsupportedCRSError{Lon: lon, Lat: lat, Reason: "latitude outside UTM coverage"}
	}
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone > 60 { // lon == 180
		zone = 60
	}
	if lat < 0 {
		return 32700 + zone, nil
	}
	return 32600 + zone, nil
}

// LocalUTM derives the UTM zone EPSG code from the midpoint of the stack's
// own extent, re-expressed in geographic coordinates when the stack is
// projected.
func LocalUTM(s *RasterStack) (int, error) {
	b := s.Bounds()
	lon := (b[0] + b[2]) / 2
	lat := (b[1] + b[3]) / 2
	if s.EPSG != 4326 && s.Proj != "" {
		src, err := stackSpatialRef(s)
		if err != nil {
			return 0, err
		}
		defer src.Close()
		dst, err := godal.NewSpatialRefFromEPSG(4326)
		if err != nil {
			return 0, UnsupportedCRSError{Reason: fmt.Sprintf("epsg 4326: %v", err)}
		}
		defer dst.Close()
		trn, err := godal.NewTransform(src, dst)
		if err != nil {
			return 0, fmt.Errorf("centroid transform: %w", err)
		}
		defer trn.Close()
		xs, ys := []float64{lon}, []float64{lat}
		ok := []bool{false}
		if err := trn.TransformEx(xs, ys, []float64{0}, ok); err != nil {
			return 0, fmt.Errorf("transform centroid: %w", err)
		}
		if !ok[0] {
			return 0, UnsupportedCRSError{Lon: lon, Lat: lat,
				Reason: "extent midpoint is not mappable to geographic coordinates"}
		}
		lon, lat = xs[0], ys[0]
	}
	return UTMZoneEPSG(lon, lat)
}

// Reproject warps the stack into the target CRS. Categorical layers use
// strict nearest-neighbour resampling so class codes never interpolate into
// invalid intermediate values; continuous layers use bilinear. extraSwitches
// are appended to the warp switch list after validation by the caller.
func Reproject(s *RasterStack, epsg int, categorical bool, extraSwitches ...string) (*RasterStack, error) {
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("reproject: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return nil, UnsupportedCRSError{Reason: fmt.Sprintf("epsg %d: %v", epsg, err)}
	}
	sr.Close()

	src, err := s.toDataset()
	if err != nil {
		return nil, fmt.Errorf("reproject: %w", err)
	}
	defer src.Close()

	method := "bilinear"
	if categorical {
		method = "near"
	}
	switches := []string{
		"-t_srs", fmt.Sprintf("EPSG:%d", epsg),
		"-r", method,
		"-srcnodata", fmt.Sprintf("%g", s.NoData),
		"-dstnodata", fmt.Sprintf("%g", s.NoData),
	}
	switches = append(switches, extraSwitches...)

	warped, err := src.Warp("", switches, godal.Memory)
	if err != nil {
		return nil, fmt.Errorf("warp to EPSG:%d: %w", epsg, err)
	}
	defer warped.Close()

	out, err := stackFromDataset(warped, s.Bands, s.NoData, s.Pixel)
	if err != nil {
		return nil, fmt.Errorf("read warped raster: %w", err)
	}
	out.EPSG = epsg
	return out, nil
}

func stackSpatialRef(s *RasterStack) (*godal.SpatialRef, error) {
	if s.Proj != "" {
		sr, err := godal.NewSpatialRefFromWKT(s.Proj)
		if err != nil {
			return nil, UnsupportedCRSError{Reason: fmt.Sprintf("stack CRS: %v", err)}
		}
		return sr, nil
	}
	if s.EPSG != 0 {
		sr, err := godal.NewSpatialRefFromEPSG(s.EPSG)
		if err != nil {
			return nil, UnsupportedCRSError{Reason: fmt.Sprintf("epsg %d: %v", s.EPSG, err)}
		}
		return sr, nil
	}
	return nil, UnsupportedCRSError{Reason: "stack has no CRS"}
}

// toDataset materializes the stack as an in-memory GDAL dataset.
func (s *RasterStack) toDataset() (*godal.Dataset, error) {
	ds, err := godal.Create(godal.Memory, "", len(s.Bands), godal.Float64, s.Width, s.Height)
	if err != nil {
		return nil, fmt.Errorf("create mem dataset: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			ds.Close()
		}
	}()
	if err := ds.SetGeoTransform(s.GT); err != nil {
		return nil, fmt.Errorf("set geotransform: %w", err)
	}
	if s.Proj != "" {
		sr, err := godal.NewSpatialRefFromWKT(s.Proj)
		if err != nil {
			return nil, UnsupportedCRSError{Reason: fmt.Sprintf("stack CRS: %v", err)}
		}
		err = ds.SetSpatialRef(sr)
		sr.Close()
		if err != nil {
			return nil, fmt.Errorf("set spatial ref: %w", err)
		}
	}
	if err := ds.SetNoData(s.NoData); err != nil {
		return nil, fmt.Errorf("set nodata: %w", err)
	}
	for i, band := range ds.Bands() {
		if err := band.Write(0, 0, s.Data[i], s.Width, s.Height); err != nil {
			return nil, fmt.Errorf("write band %s: %w", s.Bands[i], err)
		}
	}
	ok = true
	return ds, nil
}

// stackFromDataset reads a whole dataset back into a RasterStack, keeping
// the supplied band names and sentinel.
func stackFromDataset(ds *godal.Dataset, bands []string, nodata float64, pixel PixelType) (*RasterStack, error) {
	st := ds.Structure()
	if st.NBands != len(bands) {
		return nil, BandCountMismatchError{Want: len(bands), Got: st.NBands, Context: "warped raster"}
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("geotransform: %w", err)
	}
	out := &RasterStack{
		Bands:  append([]string(nil), bands...),
		Data:   make([][]float64, st.NBands),
		Width:  st.SizeX,
		Height: st.SizeY,
		GT:     gt,
		NoData: nodata,
		Pixel:  pixel,
	}
	out.Proj, out.EPSG = datasetCRS(ds)
	for i, band := range ds.Bands() {
		buf := make([]float64, st.SizeX*st.SizeY)
		if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			return nil, fmt.Errorf("read band %s: %w", bands[i], err)
		}
		out.Data[i] = buf
	}
	return out, nil
}
