package gfcanalysis

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	geo "github.com/nci/geometry"
)

// An AOI is the caller-supplied area of interest: a polygon or multi-polygon
// geometry with its CRS. The value is immutable; envelope queries under
// other CRSs return fresh values and never touch the stored geometry.
type AOI struct {
	geojson []byte
	epsg    int
}

// NewAOI builds an AOI from a GeoJSON document (a Feature, a
// FeatureCollection, or a bare geometry) and the EPSG code of its CRS.
// Only Polygon and MultiPolygon geometries are accepted.
func NewAOI(doc []byte, epsg int) (*AOI, error) {
	if epsg <= 0 {
		return nil, fmt.Errorf("invalid aoi epsg %d", epsg)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return nil, fmt.Errorf("parse aoi geojson: %w", err)
	}

	var feat geo.Feature
	switch head.Type {
	case "FeatureCollection":
		var fc geo.FeatureCollection
		if err := json.Unmarshal(doc, &fc); err != nil {
			return nil, fmt.Errorf("parse aoi feature collection: %w", err)
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("aoi feature collection is empty")
		}
		for i, f := range fc.Features {
			switch f.Geometry.(type) {
			case *geo.Polygon, *geo.MultiPolygon:
			default:
				return nil, fmt.Errorf("aoi feature %d: geometry must be a Polygon or MultiPolygon", i)
			}
		}
		if len(fc.Features) > 1 {
			gj, err := unionFeatures(fc.Features)
			if err != nil {
				return nil, err
			}
			return &AOI{geojson: gj, epsg: epsg}, nil
		}
		feat = fc.Features[0]
	case "Feature":
		if err := json.Unmarshal(doc, &feat); err != nil {
			return nil, fmt.Errorf("parse aoi feature: %w", err)
		}
	default:
		wrapped, err := json.Marshal(map[string]json.RawMessage{
			"type":     json.RawMessage(`"Feature"`),
			"geometry": json.RawMessage(doc),
		})
		if err != nil {
			return nil, fmt.Errorf("wrap aoi geometry: %w", err)
		}
		if err := json.Unmarshal(wrapped, &feat); err != nil {
			return nil, fmt.Errorf("parse aoi geometry: %w", err)
		}
	}

	switch feat.Geometry.(type) {
	case *geo.Polygon, *geo.MultiPolygon:
	default:
		return nil, fmt.Errorf("aoi geometry must be a Polygon or MultiPolygon")
	}
	gj, err := json.Marshal(feat.Geometry)
	if err != nil {
		return nil, fmt.Errorf("marshal aoi geometry: %w", err)
	}
	return &AOI{geojson: gj, epsg: epsg}, nil
}

// unionFeatures merges the geometries of a multi-feature collection into a
// single Polygon or MultiPolygon document, so every feature contributes to
// tile selection and cropping.
func unionFeatures(feats []geo.Feature) ([]byte, error) {
	var acc *godal.Geometry
	defer func() {
		if acc != nil {
			acc.Close()
		}
	}()
	for i, f := range feats {
		raw, err := json.Marshal(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("marshal aoi feature %d: %w", i, err)
		}
		g, err := godal.NewGeometryFromGeoJSON(string(raw))
		if err != nil {
			return nil, fmt.Errorf("aoi feature %d: %w", i, err)
		}
		if acc == nil {
			acc = g
			continue
		}
		u, err := acc.Union(g)
		g.Close()
		if err != nil {
			return nil, fmt.Errorf("union aoi feature %d: %w", i, err)
		}
		acc.Close()
		acc = u
	}
	gj, err := acc.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("aoi union to geojson: %w", err)
	}
	return []byte(gj), nil
}

// NewAOIFromWKT builds an AOI from a WKT polygon.
func NewAOIFromWKT(wkt string, epsg int) (*AOI, error) {
	g, err := godal.NewGeometryFromWKT(wkt, nil)
	if err != nil {
		return nil, fmt.Errorf("parse aoi wkt: %w", err)
	}
	defer g.Close()
	gj, err := g.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("aoi wkt to geojson: %w", err)
	}
	return NewAOI([]byte(gj), epsg)
}

// EPSG returns the EPSG code of the AOI's native CRS.
func (a *AOI) EPSG() int {
	return a.epsg
}

// GeoJSON returns the stored geometry document.
func (a *AOI) GeoJSON() []byte {
	out := make([]byte, len(a.geojson))
	copy(out, a.geojson)
	return out
}

// Bounds returns the envelope of the AOI re-expressed under the given EPSG
// code, as minx,miny,maxx,maxy.
func (a *AOI) Bounds(epsg int) ([4]float64, error) {
	g, err := godal.NewGeometryFromGeoJSON(string(a.geojson))
	if err != nil {
		return [4]float64{}, fmt.Errorf("aoi geometry: %w", err)
	}
	defer g.Close()
	b, err := g.Bounds()
	if err != nil {
		return [4]float64{}, fmt.Errorf("aoi envelope: %w", err)
	}
	if epsg == a.epsg {
		return b, nil
	}
	src, err := godal.NewSpatialRefFromEPSG(a.epsg)
	if err != nil {
		return [4]float64{}, UnsupportedCRSError{Reason: fmt.Sprintf("aoi epsg %d: %v", a.epsg, err)}
	}
	defer src.Close()
	dst, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return [4]float64{}, UnsupportedCRSError{Reason: fmt.Sprintf("target epsg %d: %v", epsg, err)}
	}
	defer dst.Close()
	return transformBounds(b, src, dst)
}

// boundsInSRS is the loader-side variant of Bounds for a raster's own
// spatial reference rather than a bare EPSG code.
func (a *AOI) boundsInSRS(dst *godal.SpatialRef) ([4]float64, error) {
	g, err := godal.NewGeometryFromGeoJSON(string(a.geojson))
	if err != nil {
		return [4]float64{}, fmt.Errorf("aoi geometry: %w", err)
	}
	defer g.Close()
	b, err := g.Bounds()
	if err != nil {
		return [4]float64{}, fmt.Errorf("aoi envelope: %w", err)
	}
	if dst == nil {
		return b, nil
	}
	src, err := godal.NewSpatialRefFromEPSG(a.epsg)
	if err != nil {
		return [4]float64{}, UnsupportedCRSError{Reason: fmt.Sprintf("aoi epsg %d: %v", a.epsg, err)}
	}
	defer src.Close()
	if src.IsSame(dst) {
		return b, nil
	}
	return transformBounds(b, src, dst)
}

// transformBounds reprojects an envelope by sampling points along its edges,
// so curvature introduced by the transform still ends up inside the result.
func transformBounds(b [4]float64, src, dst *godal.SpatialRef) ([4]float64, error) {
	trn, err := godal.NewTransform(src, dst)
	if err != nil {
		return [4]float64{}, fmt.Errorf("coordinate transform: %w", err)
	}
	defer trn.Close()

	const samples = 21
	var xs, ys []float64
	for i := 0; i < samples; i++ {
		f := float64(i) / float64(samples-1)
		x := b[0] + f*(b[2]-b[0])
		y := b[1] + f*(b[3]-b[1])
		xs = append(xs, x, x, b[0], b[2])
		ys = append(ys, b[1], b[3], y, y)
	}
	zs := make([]float64, len(xs))
	ok := make([]bool, len(xs))
	if err := trn.TransformEx(xs, ys, zs, ok); err != nil {
		return [4]float64{}, fmt.Errorf("transform envelope: %w", err)
	}
	return envelopeOf(xs, ys, ok)
}

// envelopeOf reduces transformed points to their bounding box. Points the
// transform could not map carry garbage coordinates and are skipped; an
// envelope with no mappable point at all is an error, not a box.
func envelopeOf(xs, ys []float64, ok []bool) ([4]float64, error) {
	out := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	mapped := 0
	for i := range xs {
		if !ok[i] {
			continue
		}
		mapped++
		if xs[i] < out[0] {
			out[0] = xs[i]
		}
		if xs[i] > out[2] {
			out[2] = xs[i]
		}
		if ys[i] < out[1] {
			out[1] = ys[i]
		}
		if ys[i] > out[3] {
			out[3] = ys[i]
		}
	}
	if mapped == 0 {
		return [4]float64{}, fmt.Errorf("no envelope point is mappable to the target CRS")
	}
	return out, nil
}
