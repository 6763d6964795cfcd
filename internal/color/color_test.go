package color_test

import (
	"math"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestelampe/lampd/internal/color"
)

const tolerance = 1e-9

func TestWithBrightness(t *testing.T) {
	tests := []struct {
		name      string
		xy        color.XY
		luminance float64
		expected  color.XYZ
	}{
		{
			name:      "equal energy white",
			xy:        color.NewXY(1.0/3.0, 1.0/3.0),
			luminance: 1,
			expected:  color.XYZ{X: 1, Y: 1, Z: 1},
		},
		{
			name:      "zero luminance",
			xy:        color.NewXY(0.4, 0.4),
			luminance: 0,
			expected:  color.XYZ{},
		},
		{
			name:      "scaled warm point",
			xy:        color.NewXY(0.5, 0.25),
			luminance: 2,
			expected:  color.XYZ{X: 4, Y: 2, Z: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.xy.WithBrightness(tt.luminance)
			assert.InDelta(t, tt.expected.X, result.X, tolerance)
			assert.InDelta(t, tt.expected.Y, result.Y, tolerance)
			assert.InDelta(t, tt.expected.Z, result.Z, tolerance)
		})
	}
}

func TestWithBrightness_ZeroYPanics(t *testing.T) {
	assert.Panics(t, func() {
		color.NewXY(0.5, 0).WithBrightness(1)
	})
}

func TestChromaticity_ZeroSum(t *testing.T) {
	_, err := color.XYZ{}.Chromaticity()
	require.Error(t, err)
	assert.ErrorIs(t, err, color.ErrZeroLuminance)
}

func TestChromaticity_RoundTrip(t *testing.T) {
	points := []color.XY{
		color.NewXY(0.3127, 0.3290),
		color.NewXY(0.6400, 0.3500),
		color.NewXY(0.1470, 0.1100),
		color.NewXY(0.2, 0.2),
		color.NewXY(2, 2),
	}
	luminances := []float64{1e-6, 0.25, 1, 30, 460}

	for _, xy := range points {
		for _, luminance := range luminances {
			result, err := xy.WithBrightness(luminance).Chromaticity()
			require.NoError(t, err)
			assert.InDelta(t, xy.X, result.X, 1e-9, "x for %s at Y=%v", xy, luminance)
			assert.InDelta(t, xy.Y, result.Y, 1e-9, "y for %s at Y=%v", xy, luminance)
		}
	}
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5.0, color.NewXY(0, 0).Distance(color.NewXY(3, 4)), tolerance)
	assert.Zero(t, color.NewXY(0.3, 0.3).Distance(color.NewXY(0.3, 0.3)))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, color.NewXY(0.3, 0.3).IsFinite())
	assert.False(t, color.NewXY(math.NaN(), 0.3).IsFinite())
	assert.False(t, color.NewXY(0.3, math.Inf(1)).IsFinite())
}

func TestFromRGB(t *testing.T) {
	white := colorful.Color{R: 1, G: 1, B: 1}

	result, err := color.FromRGB(white, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.Y, tolerance)

	xy, err := result.Chromaticity()
	require.NoError(t, err)
	// sRGB white is D65.
	assert.InDelta(t, 0.3127, xy.X, 1e-3)
	assert.InDelta(t, 0.3290, xy.Y, 1e-3)
}

func TestFromRGB_Black(t *testing.T) {
	_, err := color.FromRGB(colorful.Color{}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, color.ErrZeroLuminance)
}
