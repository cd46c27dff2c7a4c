package gfcanalysis

import "fmt"

// PixelType is the on-disk pixel encoding of a product.
type PixelType int

const (
	PixelByte PixelType = iota
	PixelUInt16
	PixelFloat32
)

// ProductVariant describes one of the distributed per-tile product families:
// which source images make up a tile, the band names of the assembled stack,
// the nodata sentinel and whether the values are class codes.
type ProductVariant struct {
	Key         string
	Images      []string
	BandNames   []string
	NoData      float64
	Categorical bool
	Pixel       PixelType
}

var (
	// Change holds the forest change layers, one single-band file per layer.
	Change = ProductVariant{
		Key:         "change",
		Images:      []string{"treecover2000", "lossyear", "gain", "datamask"},
		BandNames:   []string{"treecover2000", "lossyear", "gain", "datamask"},
		NoData:      -1,
		Categorical: true,
		Pixel:       PixelByte,
	}

	// FirstEpoch is the growing-season composite from the first epoch,
	// a single 4-band file of scaled Landsat reflectance. DN 0 marks
	// missing pixels in the distributed files.
	FirstEpoch = ProductVariant{
		Key:       "first",
		Images:    []string{"first"},
		BandNames: []string{"Band3", "Band4", "Band5", "Band7"},
		NoData:    0,
		Pixel:     PixelUInt16,
	}

	// LastEpoch is the growing-season composite from the last epoch.
	LastEpoch = ProductVariant{
		Key:       "last",
		Images:    []string{"last"},
		BandNames: []string{"Band3", "Band4", "Band5", "Band7"},
		NoData:    0,
		Pixel:     PixelUInt16,
	}
)

// ParseVariant resolves a stack keyword to its ProductVariant. It is the
// first validation the pipeline performs, before any tile I/O.
func ParseVariant(key string) (ProductVariant, error) {
	switch key {
	case Change.Key:
		return Change, nil
	case FirstEpoch.Key:
		return FirstEpoch, nil
	case LastEpoch.Key:
		return LastEpoch, nil
	}
	return ProductVariant{}, fmt.Errorf("unknown stack %q (must be change, first or last)", key)
}
