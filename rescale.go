package gfcanalysis

import "fmt"

// ReflectanceScale holds the dataset-documented per-band divisors that turn
// the integer-encoded composites back into top-of-atmosphere reflectance:
// reflectance = (DN - 1) / scale.
var ReflectanceScale = map[string]float64{
	"Band3": 508,
	"Band4": 254,
	"Band5": 363,
	"Band7": 423,
}

// RescaleReflectance converts the integer-encoded reflectance composites to
// physical floating-point reflectance, band by band. It applies only to the
// 4-band first/last epoch variants; the nodata sentinel is carried through
// untouched rather than rescaled as if it were data.
func RescaleReflectance(s *RasterStack) (*RasterStack, error) {
	if len(s.Bands) != len(ReflectanceScale) {
		return nil, BandCountMismatchError{
			Want:    len(ReflectanceScale),
			Got:     len(s.Bands),
			Context: "rescale reflectance",
		}
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("rescale: %w", err)
	}

	out := &RasterStack{
		Bands:  append([]string(nil), s.Bands...),
		Data:   make([][]float64, len(s.Bands)),
		Width:  s.Width,
		Height: s.Height,
		GT:     s.GT,
		Proj:   s.Proj,
		EPSG:   s.EPSG,
		NoData: s.NoData,
		Pixel:  PixelFloat32,
	}
	for i, name := range s.Bands {
		scale, found := ReflectanceScale[name]
		if !found {
			return nil, fmt.Errorf("rescale: band %q is not a reflectance band", name)
		}
		buf := make([]float64, len(s.Data[i]))
		for j, v := range s.Data[i] {
			if v == s.NoData {
				buf[j] = s.NoData
				continue
			}
			buf[j] = (v - 1) / scale
		}
		out.Data[i] = buf
	}
	return out, nil
}
