package audio

import (
	"testing"

	"github.com/ceti-tag/whaletag-daemon/internal/wterr"
	"github.com/stretchr/testify/require"
)

func TestLookupFindsGroundedMedianEntry(t *testing.T) {
	entry, err := Lookup(96000, PowerModeMedian)
	require.NoError(t, err)
	require.Equal(t, 8, entry.MCLKDiv)
	require.Equal(t, 4, entry.DCLKDiv)
}

func TestLookupFindsGroundedFastEntry(t *testing.T) {
	entry, err := Lookup(192000, PowerModeFast)
	require.NoError(t, err)
	require.Equal(t, 4, entry.MCLKDiv)
	require.Equal(t, 1, entry.DCLKDiv)
}

func TestLookupRejectsUnknownCombination(t *testing.T) {
	_, err := Lookup(192000, PowerModeMedian)
	werr, ok := wterr.As(err)
	require.True(t, ok)
	require.Equal(t, wterr.ErrBadAudioRate, werr.Code)
}

func TestValidateBitDepthAcceptsSixteenAndTwentyFour(t *testing.T) {
	require.NoError(t, ValidateBitDepth(16))
	require.NoError(t, ValidateBitDepth(24))

	werr, ok := wterr.As(ValidateBitDepth(20))
	require.True(t, ok)
	require.Equal(t, wterr.ErrBadAudioBitDepth, werr.Code)
}

func TestValidateFilterAcceptsSincAndWideband(t *testing.T) {
	require.NoError(t, ValidateFilter(FilterSinc))
	require.NoError(t, ValidateFilter(FilterWideband))

	werr, ok := wterr.As(ValidateFilter("bandpass"))
	require.True(t, ok)
	require.Equal(t, wterr.ErrBadAudioFilter, werr.Code)
}
