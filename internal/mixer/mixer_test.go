package mixer_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bestelampe/lampd/internal/color"
	"github.com/bestelampe/lampd/internal/gamut"
	"github.com/bestelampe/lampd/internal/mixer"
	"github.com/bestelampe/lampd/internal/mixer/mocks"
)

// recorder is a ChannelDriver that keeps the last fraction of every channel.
type recorder struct {
	fractions map[int]float64
	writes    int
}

func newRecorder() *recorder {
	return &recorder{fractions: make(map[int]float64)}
}

func (r *recorder) SetDutyFraction(channel int, fraction float64) error {
	r.fractions[channel] = fraction
	r.writes++
	return nil
}

func unitGamut(t *testing.T) *gamut.Gamut {
	t.Helper()
	g, err := gamut.Build([]gamut.ChannelSpec{
		{Name: "A", X: 0, Y: 0, MaxBrightness: 1},
		{Name: "B", X: 1, Y: 0, MaxBrightness: 1},
		{Name: "C", X: 0, Y: 1, MaxBrightness: 1},
	})
	require.NoError(t, err)
	return g
}

func defaultGamut(t *testing.T, opts ...gamut.Option) *gamut.Gamut {
	t.Helper()
	g, err := gamut.Build(gamut.DefaultChannels, opts...)
	require.NoError(t, err)
	return g
}

func TestSetColor_InsideUnitTriangle(t *testing.T) {
	driver := newRecorder()
	m := mixer.New(unitGamut(t), driver)

	const luminance = 0.5
	result, err := m.SetColor(color.NewXY(0.2, 0.2).WithBrightness(luminance))
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.False(t, result.Clamped)
	assert.False(t, result.Saturated)

	var sum float64
	for i := 0; i < 3; i++ {
		assert.Greater(t, driver.fractions[i], 0.0, "channel %d", i)
		sum += driver.fractions[i]
	}
	assert.InDelta(t, luminance, sum, 1e-12)
	assert.Equal(t, result.Fractions, m.Duties())
}

func TestSetColor_OutsideUnitTriangle(t *testing.T) {
	target := color.NewXY(2, 2).WithBrightness(0.5)

	t.Run("off reports no match", func(t *testing.T) {
		driver := newRecorder()
		m := mixer.New(unitGamut(t), driver, mixer.WithStrategy(mixer.StrategyOff))

		result, err := m.SetColor(target)
		require.NoError(t, err)
		assert.False(t, result.Matched)
		for i := 0; i < 3; i++ {
			assert.Equal(t, 0.0, driver.fractions[i])
		}
	})

	t.Run("error returns ErrOutOfGamut", func(t *testing.T) {
		driver := newRecorder()
		m := mixer.New(unitGamut(t), driver, mixer.WithStrategy(mixer.StrategyError))

		result, err := m.SetColor(target)
		require.Error(t, err)
		assert.ErrorIs(t, err, mixer.ErrOutOfGamut)
		assert.False(t, result.Matched)
		assert.Equal(t, 3, driver.writes, "every channel is explicitly cleared")
	})

	t.Run("clamp mixes nearest boundary point", func(t *testing.T) {
		driver := newRecorder()
		m := mixer.New(unitGamut(t), driver)

		result, err := m.SetColor(target)
		require.NoError(t, err)
		assert.True(t, result.Matched)
		assert.True(t, result.Clamped)
		assert.InDelta(t, 0.5, result.Target.X, 1e-12)
		assert.InDelta(t, 0.5, result.Target.Y, 1e-12)
		assert.InDelta(t, 0.0, driver.fractions[0], 1e-9)
		assert.InDelta(t, 0.25, driver.fractions[1], 1e-9)
		assert.InDelta(t, 0.25, driver.fractions[2], 1e-9)
	})
}

func TestSetColor_ClearsPreviousChannels(t *testing.T) {
	driver := newRecorder()
	g := defaultGamut(t, gamut.WithTriangles(gamut.DefaultTriangles))
	m := mixer.New(g, driver, mixer.WithLuminanceScale(100))

	// Cold target uses blue.
	_, err := m.SetTemperatureAndBrightness(10000, 1)
	require.NoError(t, err)
	blue, err := g.ChannelByName("B")
	require.NoError(t, err)
	require.Greater(t, driver.fractions[blue.Index], 0.0)

	// Warm target must clear it again.
	_, err = m.SetTemperatureAndBrightness(2700, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, driver.fractions[blue.Index])
}

func TestSetColor_ZeroLuminance(t *testing.T) {
	driver := newRecorder()
	m := mixer.New(unitGamut(t), driver)

	result, err := m.SetColor(color.XYZ{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, result.Fractions)
	assert.Equal(t, 3, driver.writes)
}

func TestSetColor_InvalidColor(t *testing.T) {
	m := mixer.New(unitGamut(t), newRecorder())

	_, err := m.SetColor(color.XYZ{X: math.NaN(), Y: 1, Z: 1})
	assert.ErrorIs(t, err, mixer.ErrInvalidColor)
}

func TestSetColor_Saturation(t *testing.T) {
	driver := newRecorder()
	m := mixer.New(unitGamut(t), driver)

	result, err := m.SetColor(color.NewXY(0.2, 0.2).WithBrightness(10))
	require.NoError(t, err)
	assert.True(t, result.Saturated)
	for i := 0; i < 3; i++ {
		assert.LessOrEqual(t, driver.fractions[i], mixer.MaxDuty)
	}
}

func TestSetTemperatureAndBrightness_ZeroBrightness(t *testing.T) {
	driver := newRecorder()
	m := mixer.New(defaultGamut(t), driver)

	_, err := m.SetTemperatureAndBrightness(3000, 0)
	require.NoError(t, err)

	require.Len(t, driver.fractions, len(gamut.DefaultChannels))
	for i, f := range driver.fractions {
		assert.Equal(t, 0.0, f, "channel %d", i)
	}
}

func TestSetTemperatureAndBrightness_WarmWhite(t *testing.T) {
	tests := []struct {
		name  string
		gamut *gamut.Gamut
	}{
		{name: "delaunay", gamut: defaultGamut(t)},
		{name: "manual triangles", gamut: defaultGamut(t, gamut.WithTriangles(gamut.DefaultTriangles))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newRecorder()
			m := mixer.New(tt.gamut, driver)

			result, err := m.SetTemperatureAndBrightness(2700, 1)
			require.NoError(t, err)
			require.True(t, result.Matched)
			assert.False(t, result.Clamped)

			names := tt.gamut.Names(result.Triangle)
			assert.True(t, contains(names, "WW") || contains(names, "PA"), "triangle %v", names)

			blue, err := tt.gamut.ChannelByName("B")
			require.NoError(t, err)
			assert.InDelta(t, 0.0, driver.fractions[blue.Index], 1e-9)
		})
	}
}

func TestSetTemperatureAndBrightness_Gamma(t *testing.T) {
	driver := newRecorder()
	m := mixer.New(unitGamut(t), driver, mixer.WithGamma(2), mixer.WithClampPolicy(color.Clamp))

	result, err := m.SetTemperatureAndBrightness(3000, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, result.Luminance, 1e-12)
}

func TestSetTemperatureAndBrightness_Errors(t *testing.T) {
	m := mixer.New(unitGamut(t), newRecorder(), mixer.WithClampPolicy(color.Reject))

	_, err := m.SetTemperatureAndBrightness(3000, math.NaN())
	assert.ErrorIs(t, err, mixer.ErrInvalidBrightness)

	_, err = m.SetTemperatureAndBrightness(500, 0.5)
	assert.ErrorIs(t, err, color.ErrOutOfRange)
	assert.ErrorIs(t, err, mixer.ErrOutOfGamut)
}

func TestSetChromaticityAndBrightness(t *testing.T) {
	driver := newRecorder()
	m := mixer.New(unitGamut(t), driver)

	result, err := m.SetChromaticityAndBrightness(color.NewXY(0.2, 0.2), 0.5)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 0.25, result.Luminance, 1e-12)

	var sum float64
	for _, f := range result.Fractions {
		sum += f
	}
	assert.InDelta(t, 0.25, sum, 1e-12)

	_, err = m.SetChromaticityAndBrightness(color.NewXY(0.3, 0), 0.5)
	assert.ErrorIs(t, err, mixer.ErrInvalidColor)

	_, err = m.SetChromaticityAndBrightness(color.NewXY(0.2, 0.2), math.NaN())
	assert.ErrorIs(t, err, mixer.ErrInvalidBrightness)
}

func TestSetChannel(t *testing.T) {
	driver := newRecorder()
	g := defaultGamut(t)
	m := mixer.New(g, driver)

	require.NoError(t, m.SetDuties([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}))
	require.NoError(t, m.SetChannel("PA", 0.7))

	amber, err := g.ChannelByName("PA")
	require.NoError(t, err)
	for i, f := range m.Duties() {
		if i == amber.Index {
			assert.Equal(t, 0.7, f)
			continue
		}
		assert.Equal(t, 0.0, f)
	}

	assert.ErrorIs(t, m.SetChannel("UV", 1), gamut.ErrUnknownChannel)
	assert.ErrorIs(t, m.SetChannel("PA", math.NaN()), mixer.ErrInvalidBrightness)
}

func TestSetDuties(t *testing.T) {
	m := mixer.New(unitGamut(t), newRecorder())

	require.NoError(t, m.SetDuties([]float64{-1, 0.5, 2}))
	assert.Equal(t, []float64{0, 0.5, 1}, m.Duties())

	assert.ErrorIs(t, m.SetDuties([]float64{0.5}), mixer.ErrChannelCount)

	require.NoError(t, m.Off())
	assert.Equal(t, []float64{0, 0, 0}, m.Duties())
}

func TestDriverErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockChannelDriver(ctrl)
	errWrite := errors.New("i2c write failed")

	gomock.InOrder(
		driver.EXPECT().SetDutyFraction(0, gomock.Any()).Return(nil),
		driver.EXPECT().SetDutyFraction(1, gomock.Any()).Return(errWrite),
	)

	m := mixer.New(unitGamut(t), driver)
	_, err := m.SetColor(color.NewXY(0.2, 0.2).WithBrightness(0.5))
	require.Error(t, err)
	assert.ErrorIs(t, err, errWrite)
	assert.Contains(t, err.Error(), "channel B")
}

func TestDriverReceivesEveryChannel(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockChannelDriver(ctrl)

	driver.EXPECT().SetDutyFraction(0, 0.0).Return(nil)
	driver.EXPECT().SetDutyFraction(1, 0.0).Return(nil)
	driver.EXPECT().SetDutyFraction(2, 0.0).Return(nil)

	m := mixer.New(unitGamut(t), driver)
	require.NoError(t, m.Off())
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []mixer.Strategy{mixer.StrategyOff, mixer.StrategyError, mixer.StrategyClamp} {
		parsed, err := mixer.ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	parsed, err := mixer.ParseStrategy("CLAMP")
	require.NoError(t, err)
	assert.Equal(t, mixer.StrategyClamp, parsed)

	_, err = mixer.ParseStrategy("dim")
	assert.Error(t, err)
}

func contains(names [3]string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
