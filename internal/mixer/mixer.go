// SPDX-License-Identifier: GPL-3.0-only

package mixer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bestelampe/lampd/internal/brightness"
	"github.com/bestelampe/lampd/internal/color"
	"github.com/bestelampe/lampd/internal/gamut"
)

// MaxDuty is the drive fraction of a fully driven channel.
const MaxDuty = 1.0

// ErrOutOfGamut is returned by StrategyError when no triangle contains the
// target chromaticity.
var ErrOutOfGamut = color.ErrOutOfGamut

// ErrInvalidBrightness is returned for NaN brightness values.
var ErrInvalidBrightness = errors.New("invalid brightness")

// ErrInvalidColor is returned for targets with non-finite components.
var ErrInvalidColor = errors.New("invalid target color")

// ErrChannelCount is returned when a duty list does not match the channel count.
var ErrChannelCount = errors.New("duty count does not match channel count")

// Strategy decides what happens to a target outside of every triangle.
type Strategy int

const (
	// StrategyOff switches every channel off and reports no match.
	StrategyOff Strategy = iota
	// StrategyError switches every channel off and returns ErrOutOfGamut.
	StrategyError
	// StrategyClamp moves the target to the nearest point of the gamut
	// outline and mixes that instead.
	StrategyClamp
)

var strategyNames = map[Strategy]string{
	StrategyOff:   "off",
	StrategyError: "error",
	StrategyClamp: "clamp",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy parses the textual name of a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for strategy, name := range strategyNames {
		if strings.EqualFold(s, name) {
			return strategy, nil
		}
	}
	return StrategyOff, fmt.Errorf("unknown out-of-gamut strategy %q", s)
}

// Result describes the outcome of a mixing call.
type Result struct {
	// Matched is false when no triangle contained the (possibly clamped)
	// target and every channel was switched off.
	Matched bool
	// Clamped is set when the target was moved onto the gamut outline.
	Clamped bool
	// Saturated is set when at least one channel needed more than MaxDuty.
	Saturated bool
	Triangle  gamut.Triangle
	Weights   [3]float64
	// Target is the chromaticity that was actually mixed.
	Target    color.XY
	Luminance float64
	// Fractions holds the drive fraction written to every channel.
	Fractions []float64
}

// Mixer converts target colors into drive fractions for the channels of a
// gamut and writes them to a ChannelDriver.
// A Mixer is not safe for concurrent use.
type Mixer struct {
	gamut          *gamut.Gamut
	driver         ChannelDriver
	gamma          float64
	luminanceScale float64
	policy         color.ClampPolicy
	strategy       Strategy
	duties         []float64
}

// Option is a functional option for configuring a Mixer.
type Option func(*Mixer)

// WithGamma sets the exponent applied to brightness values.
func WithGamma(gamma float64) Option {
	return func(m *Mixer) {
		m.gamma = gamma
	}
}

// WithLuminanceScale sets the factor that converts a relative luminance into
// the units of the channels' MaxBrightness.
func WithLuminanceScale(scale float64) Option {
	return func(m *Mixer) {
		m.luminanceScale = scale
	}
}

// WithClampPolicy sets the policy for temperatures outside of the supported
// range.
func WithClampPolicy(policy color.ClampPolicy) Option {
	return func(m *Mixer) {
		m.policy = policy
	}
}

// WithStrategy sets the behavior for targets outside of the gamut.
func WithStrategy(strategy Strategy) Option {
	return func(m *Mixer) {
		m.strategy = strategy
	}
}

// New creates a Mixer for the given gamut and driver.
// Defaults: gamma 2, luminance scale 1, ExtrapolateRed, StrategyClamp.
func New(g *gamut.Gamut, driver ChannelDriver, opts ...Option) *Mixer {
	m := &Mixer{
		gamut:          g,
		driver:         driver,
		gamma:          brightness.DefaultGamma,
		luminanceScale: 1,
		policy:         color.ExtrapolateRed,
		strategy:       StrategyClamp,
		duties:         make([]float64, g.Len()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Gamut returns the gamut the mixer was built for.
func (m *Mixer) Gamut() *gamut.Gamut {
	return m.gamut
}

// SetTemperatureAndBrightness mixes a color temperature in Kelvin at a linear
// brightness in [0, 1]. Brightness is gamma corrected first; values outside of
// [0, 1] are clamped.
func (m *Mixer) SetTemperatureAndBrightness(temperature, level float64) (Result, error) {
	if math.IsNaN(level) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBrightness, level)
	}
	xy, err := color.TemperatureToXY(temperature, m.policy)
	if err != nil {
		return Result{}, err
	}

	return m.SetChromaticityAndBrightness(xy, level)
}

// SetChromaticityAndBrightness mixes a fixed chromaticity at a linear
// brightness in [0, 1], gamma corrected like SetTemperatureAndBrightness.
func (m *Mixer) SetChromaticityAndBrightness(xy color.XY, level float64) (Result, error) {
	if math.IsNaN(level) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBrightness, level)
	}
	if !xy.IsFinite() || xy.Y == 0 {
		return Result{}, fmt.Errorf("%w: chromaticity %s", ErrInvalidColor, xy)
	}

	corrected := brightness.GammaCorrect(level, m.gamma)
	target := xy.WithBrightness(corrected)
	return m.mix(xy, target.Y)
}

// SetColor mixes an XYZ color. Its Y component is the luminance.
// A color with X+Y+Z == 0 switches every channel off.
func (m *Mixer) SetColor(target color.XYZ) (Result, error) {
	if !isFinite(target.X) || !isFinite(target.Y) || !isFinite(target.Z) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidColor, target)
	}

	xy, err := target.Chromaticity()
	if errors.Is(err, color.ErrZeroLuminance) {
		fractions := make([]float64, m.gamut.Len())
		return Result{Fractions: fractions}, m.write(fractions)
	}
	if err != nil {
		return Result{}, err
	}
	return m.mix(xy, target.Y)
}

func (m *Mixer) mix(xy color.XY, luminance float64) (Result, error) {
	result := Result{Target: xy, Luminance: luminance}

	match, ok := m.gamut.Locate(xy)
	if !ok && m.strategy == StrategyClamp {
		if clamped, hasBoundary := m.gamut.ClampToBoundary(xy); hasBoundary {
			log.Debug().
				Str("target", xy.String()).
				Str("clamped", clamped.String()).
				Msg("Target outside of gamut, clamping to boundary")
			result.Target = clamped
			result.Clamped = true
			match, ok = m.gamut.Locate(clamped)
		}
	}

	fractions := make([]float64, m.gamut.Len())
	if !ok {
		result.Fractions = fractions
		if err := m.write(fractions); err != nil {
			return result, err
		}
		if m.strategy == StrategyError {
			return result, fmt.Errorf("%w: no triangle contains %s", ErrOutOfGamut, xy)
		}
		return result, nil
	}

	result.Matched = true
	result.Triangle = match.Triangle
	result.Weights = match.Weights
	for k, idx := range match.Triangle {
		ch := m.gamut.Channel(idx)
		fraction := match.Weights[k] * luminance * m.luminanceScale * MaxDuty / ch.MaxBrightness
		if fraction > MaxDuty {
			result.Saturated = true
		}
		fractions[idx] = brightness.Clamp(fraction)
	}
	result.Fractions = fractions

	return result, m.write(fractions)
}

// SetChannel drives a single channel and switches every other channel off.
func (m *Mixer) SetChannel(name string, fraction float64) error {
	ch, err := m.gamut.ChannelByName(name)
	if err != nil {
		return err
	}
	if math.IsNaN(fraction) {
		return fmt.Errorf("%w: %v", ErrInvalidBrightness, fraction)
	}

	fractions := make([]float64, m.gamut.Len())
	fractions[ch.Index] = brightness.Clamp(fraction)
	return m.write(fractions)
}

// SetDuties writes raw drive fractions, one per channel in index order.
func (m *Mixer) SetDuties(fractions []float64) error {
	if len(fractions) != m.gamut.Len() {
		return fmt.Errorf("%w: got %d, want %d", ErrChannelCount, len(fractions), m.gamut.Len())
	}

	clamped := make([]float64, len(fractions))
	for i, f := range fractions {
		if math.IsNaN(f) {
			return fmt.Errorf("%w: channel %d is NaN", ErrInvalidBrightness, i)
		}
		clamped[i] = brightness.Clamp(f)
	}
	return m.write(clamped)
}

// Off switches every channel off.
func (m *Mixer) Off() error {
	return m.write(make([]float64, m.gamut.Len()))
}

// Duties returns a copy of the last fractions written to the driver.
func (m *Mixer) Duties() []float64 {
	out := make([]float64, len(m.duties))
	copy(out, m.duties)
	return out
}

// Report logs the last written fraction of every channel.
func (m *Mixer) Report() {
	event := log.Info()
	for i, duty := range m.duties {
		event = event.Float64(m.gamut.Channel(i).Name, duty)
	}
	event.Msg("Channel duties")
}

// write sends every fraction to the driver. The first driver error aborts the
// write and is returned; channels written before it keep their new value.
func (m *Mixer) write(fractions []float64) error {
	for i, f := range fractions {
		if err := m.driver.SetDutyFraction(i, f); err != nil {
			return fmt.Errorf("failed to set duty of channel %s: %w", m.gamut.Channel(i).Name, err)
		}
		m.duties[i] = f
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
