package gfcanalysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariant(t *testing.T) {
	change, err := ParseVariant("change")
	require.NoError(t, err)
	assert.Equal(t, []string{"treecover2000", "lossyear", "gain", "datamask"}, change.BandNames)
	assert.Equal(t, change.BandNames, change.Images)
	assert.Equal(t, -1.0, change.NoData)
	assert.True(t, change.Categorical)
	assert.Equal(t, PixelByte, change.Pixel)

	first, err := ParseVariant("first")
	require.NoError(t, err)
	assert.Equal(t, []string{"Band3", "Band4", "Band5", "Band7"}, first.BandNames)
	assert.Equal(t, []string{"first"}, first.Images)
	assert.Equal(t, 0.0, first.NoData)
	assert.False(t, first.Categorical)
	assert.Equal(t, PixelUInt16, first.Pixel)

	last, err := ParseVariant("last")
	require.NoError(t, err)
	assert.Equal(t, first.BandNames, last.BandNames)
	assert.Equal(t, []string{"last"}, last.Images)
}

func TestParseVariantUnknown(t *testing.T) {
	for _, key := range []string{"", "Change", "both", "gfc"} {
		_, err := ParseVariant(key)
		assert.Error(t, err, key)
	}
}

// an unsupported variant fails before any tile I/O: the AOI is never even
// inspected here
func TestExtractFailsFastOnVariant(t *testing.T) {
	_, err := Extract(context.Background(), nil, ExtractOptions{Variant: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stack")
}

func TestExtractRejectsCategoricalRescale(t *testing.T) {
	_, err := Extract(context.Background(), nil, ExtractOptions{Variant: "change", Rescale: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be rescaled")
}
