package color_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestelampe/lampd/internal/color"
)

func TestTemperatureToXY_KnownValues(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		expectedX   float64
		expectedY   float64
	}{
		{
			name:        "warm white 2700 K",
			temperature: 2700,
			expectedX:   0.4593,
			expectedY:   0.4107,
		},
		{
			name:        "2000 K uses the low branch",
			temperature: 2000,
			expectedX:   0.5269,
			expectedY:   0.4133,
		},
		{
			name:        "4000 K is the last point of the low x branch",
			temperature: 4000,
			expectedX:   0.3805,
			expectedY:   0.3767,
		},
		{
			name:        "10000 K uses the high branches",
			temperature: 10000,
			expectedX:   0.2807,
			expectedY:   0.2883,
		},
		{
			name:        "D65-ish 6500 K",
			temperature: 6500,
			expectedX:   0.3135,
			expectedY:   0.3237,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xy, err := color.TemperatureToXY(tt.temperature, color.Reject)
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedX, xy.X, 5e-4)
			assert.InDelta(t, tt.expectedY, xy.Y, 5e-4)
		})
	}
}

func TestTemperatureToXY_RangeAndContinuity(t *testing.T) {
	previous, err := color.TemperatureToXY(color.MinTemperature, color.Reject)
	require.NoError(t, err)

	for temperature := color.MinTemperature + 1; temperature <= color.MaxTemperature; temperature++ {
		xy, err := color.TemperatureToXY(temperature, color.Reject)
		require.NoError(t, err)

		require.Greater(t, xy.X, 0.0, "x at %v K", temperature)
		require.Less(t, xy.X, 1.0, "x at %v K", temperature)
		require.Greater(t, xy.Y, 0.0, "y at %v K", temperature)
		require.Less(t, xy.Y, 1.0, "y at %v K", temperature)
		require.Less(t, xy.Distance(previous), 1e-3, "jump at %v K", temperature)

		previous = xy
	}
}

func TestTemperatureToXY_BranchBoundaries(t *testing.T) {
	for _, boundary := range []float64{2000, 2222, 4000} {
		below, err := color.TemperatureToXY(boundary-1e-6, color.Reject)
		require.NoError(t, err)
		above, err := color.TemperatureToXY(boundary+1e-6, color.Reject)
		require.NoError(t, err)

		assert.InDelta(t, below.X, above.X, 1e-4, "x at %v K", boundary)
		assert.InDelta(t, below.Y, above.Y, 1e-4, "y at %v K", boundary)
	}
}

func TestTemperatureToXY_Policies(t *testing.T) {
	lowest, err := color.TemperatureToXY(color.MinTemperature, color.Reject)
	require.NoError(t, err)
	highest, err := color.TemperatureToXY(color.MaxTemperature, color.Reject)
	require.NoError(t, err)

	t.Run("reject below range", func(t *testing.T) {
		_, err := color.TemperatureToXY(1000, color.Reject)
		require.Error(t, err)
		assert.ErrorIs(t, err, color.ErrOutOfRange)
		assert.ErrorIs(t, err, color.ErrOutOfGamut)
	})

	t.Run("reject above range", func(t *testing.T) {
		_, err := color.TemperatureToXY(30000, color.Reject)
		assert.ErrorIs(t, err, color.ErrOutOfRange)
	})

	t.Run("clamp below range", func(t *testing.T) {
		xy, err := color.TemperatureToXY(1000, color.Clamp)
		require.NoError(t, err)
		assert.Equal(t, lowest, xy)
	})

	t.Run("clamp above range", func(t *testing.T) {
		xy, err := color.TemperatureToXY(40000, color.Clamp)
		require.NoError(t, err)
		assert.Equal(t, highest, xy)
	})

	t.Run("extrapolate above range clamps", func(t *testing.T) {
		xy, err := color.TemperatureToXY(40000, color.ExtrapolateRed)
		require.NoError(t, err)
		assert.Equal(t, highest, xy)
	})

	t.Run("extrapolate blends towards red", func(t *testing.T) {
		xy, err := color.TemperatureToXY(1667-667.0/2, color.ExtrapolateRed)
		require.NoError(t, err)
		assert.InDelta(t, (color.RedPoint.X+lowest.X)/2, xy.X, 1e-9)
		assert.InDelta(t, (color.RedPoint.Y+lowest.Y)/2, xy.Y, 1e-9)
	})

	t.Run("extrapolate stops at the floor", func(t *testing.T) {
		floor, err := color.TemperatureToXY(color.ExtrapolationFloor, color.ExtrapolateRed)
		require.NoError(t, err)
		xy, err := color.TemperatureToXY(500, color.ExtrapolateRed)
		require.NoError(t, err)
		assert.Equal(t, floor, xy)
	})

	t.Run("NaN is always rejected", func(t *testing.T) {
		for _, policy := range []color.ClampPolicy{color.Reject, color.Clamp, color.ExtrapolateRed} {
			_, err := color.TemperatureToXY(math.NaN(), policy)
			assert.ErrorIs(t, err, color.ErrOutOfRange, policy.String())
		}
	})
}

func TestParseClampPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected color.ClampPolicy
		wantErr  bool
	}{
		{input: "reject", expected: color.Reject},
		{input: "Clamp", expected: color.Clamp},
		{input: "extrapolate-red", expected: color.ExtrapolateRed},
		{input: "wrap", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			policy, err := color.ParseClampPolicy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, policy)
			assert.Equal(t, tt.expected.String(), policy.String())
		})
	}
}
