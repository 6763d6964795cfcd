// SPDX-License-Identifier: GPL-3.0-only

// Package control owns the light target shared by all inputs and the loop
// that moves the lamp towards it.
package control

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/bestelampe/lampd/internal/brightness"
	"github.com/bestelampe/lampd/internal/color"
)

// ButtonSpeed is the smoothing speed used for preset and brightness steps.
const ButtonSpeed = 0.1

// Presets are the color temperatures in Kelvin that CyclePreset steps through.
var Presets = []float64{1050, 1700, 2300, 2700, 3500, 5700, 10000, 20000}

// ErrInvalidTemperature is returned for non-finite or non-positive temperatures.
var ErrInvalidTemperature = errors.New("invalid temperature")

// ErrInvalidBrightness is returned for brightness values outside of [0, 1].
var ErrInvalidBrightness = errors.New("invalid brightness")

// ErrInvalidSpeed is returned for smoothing speeds outside of (0, 1].
var ErrInvalidSpeed = errors.New("invalid speed")

// ErrInvalidColor is returned for unusable chromaticity overrides.
var ErrInvalidColor = errors.New("invalid color")

// Target is what the lamp should converge to.
type Target struct {
	// Temperature in Kelvin.
	Temperature float64
	// Brightness is linear in [0, 1], before gamma correction.
	Brightness float64
	// Speed is the fraction of the remaining distance covered per tick.
	Speed float64
	// Color, if set, is mixed instead of Temperature.
	Color *color.XY
}

// Validate checks that every field is usable by the control loop.
func (t Target) Validate() error {
	if math.IsNaN(t.Temperature) || math.IsInf(t.Temperature, 0) || t.Temperature <= 0 {
		return fmt.Errorf("%w: %v K", ErrInvalidTemperature, t.Temperature)
	}
	if math.IsNaN(t.Brightness) || t.Brightness < 0 || t.Brightness > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidBrightness, t.Brightness)
	}
	if math.IsNaN(t.Speed) || t.Speed <= 0 || t.Speed > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, t.Speed)
	}
	if t.Color != nil && (!t.Color.IsFinite() || t.Color.Y <= 0) {
		return fmt.Errorf("%w: chromaticity %s", ErrInvalidColor, t.Color)
	}
	return nil
}

func (t Target) clone() Target {
	if t.Color != nil {
		c := *t.Color
		t.Color = &c
	}
	return t
}

// State holds the target behind a single lock so that temperature, brightness
// and speed are always read and written together.
type State struct {
	mu          sync.RWMutex
	target      Target
	preset      int
	subscribers []func(Target)
}

// NewState creates a State with the given initial target.
func NewState(initial Target) (*State, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &State{target: initial.clone(), preset: -1}, nil
}

// Snapshot returns a consistent copy of the current target.
func (s *State) Snapshot() Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target.clone()
}

// Subscribe registers fn to be called with the new target after every change.
// fn is called without the lock held.
func (s *State) Subscribe(fn func(Target)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Set replaces the whole target.
func (s *State) Set(t Target) error {
	_, err := s.Update(func(target *Target) {
		*target = t
	})
	return err
}

// Update applies fn to a copy of the target and stores the result if it is
// valid. The read and the write happen under one lock.
func (s *State) Update(fn func(*Target)) (Target, error) {
	s.mu.Lock()
	next := s.target.clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Target{}, err
	}
	s.target = next.clone()
	subscribers := append([]func(Target){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(next.clone())
	}
	return next, nil
}

// SetTemperature sets the temperature target and drops any color override.
func (s *State) SetTemperature(temperature float64) (Target, error) {
	return s.Update(func(t *Target) {
		t.Temperature = temperature
		t.Color = nil
	})
}

// SetBrightness sets the brightness target.
func (s *State) SetBrightness(level float64) (Target, error) {
	return s.Update(func(t *Target) {
		t.Brightness = level
	})
}

// SetColor sets a fixed chromaticity and brightness target.
func (s *State) SetColor(xy color.XY, level float64) (Target, error) {
	return s.Update(func(t *Target) {
		t.Color = &xy
		t.Brightness = level
	})
}

// StepBrightness moves the brightness target by delta percentage points,
// clamped to [0, 1], and switches to ButtonSpeed.
func (s *State) StepBrightness(delta int) (Target, error) {
	return s.Update(func(t *Target) {
		t.Brightness = brightness.StepPercent(t.Brightness, delta)
		t.Speed = ButtonSpeed
	})
}

// CyclePreset advances to the next entry of Presets, wrapping around, and
// drops any color override.
func (s *State) CyclePreset() (Target, error) {
	return s.Update(func(t *Target) {
		s.preset = (s.preset + 1) % len(Presets)
		t.Temperature = Presets[s.preset]
		t.Color = nil
		t.Speed = ButtonSpeed
	})
}
