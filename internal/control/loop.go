// SPDX-License-Identifier: GPL-3.0-only

package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bestelampe/lampd/internal/color"
	"github.com/bestelampe/lampd/internal/mixer"
)

const (
	// DefaultInterval is the time between two ticks of the loop.
	DefaultInterval = 50 * time.Millisecond

	// reportEvery is the number of ticks between two progress log lines.
	reportEvery = 40
)

// Mixer is the part of mixer.Mixer used by the loop.
type Mixer interface {
	SetTemperatureAndBrightness(temperature, level float64) (mixer.Result, error)
	SetChromaticityAndBrightness(xy color.XY, level float64) (mixer.Result, error)
}

// Current is the smoothed light the loop last mixed.
type Current struct {
	Temperature float64
	Brightness  float64
}

// Loop moves the current light towards the target with exponential smoothing
// and mixes it on every tick. It is the only user of its Mixer.
type Loop struct {
	state    *State
	mixer    Mixer
	interval time.Duration
	onError  func(error)

	mu      sync.Mutex
	current Current
	last    mixer.Result
	ticks   int
	clamped bool
	failing bool
}

// LoopOption is a functional option for configuring a Loop.
type LoopOption func(*Loop)

// WithInterval sets the time between two ticks.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithErrorHandler sets a function that Run calls with every error returned
// by Tick. It runs on the loop goroutine and must not block.
func WithErrorHandler(fn func(error)) LoopOption {
	return func(l *Loop) {
		l.onError = fn
	}
}

// NewLoop creates a loop that starts at the current target.
func NewLoop(state *State, m Mixer, opts ...LoopOption) *Loop {
	target := state.Snapshot()
	l := &Loop{
		state:    state,
		mixer:    m,
		interval: DefaultInterval,
		current:  Current{Temperature: target.Temperature, Brightness: target.Brightness},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tick performs one smoothing step and mixes the result. Targets the mixer
// cannot produce are logged and skipped; driver errors are returned.
func (l *Loop) Tick() error {
	target := l.state.Snapshot()

	l.mu.Lock()
	l.current.Temperature += (target.Temperature - l.current.Temperature) * target.Speed
	l.current.Brightness += (target.Brightness - l.current.Brightness) * target.Speed
	current := l.current
	l.ticks++
	ticks := l.ticks
	l.mu.Unlock()

	if ticks%reportEvery == 0 {
		log.Info().
			Float64("temperature", current.Temperature).
			Float64("brightness", current.Brightness).
			Msg("Current light")
	}

	var result mixer.Result
	var err error
	if target.Color != nil {
		result, err = l.mixer.SetChromaticityAndBrightness(*target.Color, current.Brightness)
	} else {
		result, err = l.mixer.SetTemperatureAndBrightness(current.Temperature, current.Brightness)
	}

	targetErr := err != nil && isTargetError(err)
	if err != nil && !targetErr {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Out of gamut with StrategyError still writes zeros.
	if result.Fractions != nil {
		l.last = result
	}

	if targetErr {
		if !l.failing {
			log.Warn().
				Err(err).
				Float64("temperature", current.Temperature).
				Float64("brightness", current.Brightness).
				Msg("Cannot mix target")
		}
		l.failing = true
		return nil
	}
	if l.failing {
		log.Info().Msg("Target can be mixed again")
	}
	l.failing = false

	switch {
	case result.Clamped && !l.clamped:
		log.Warn().
			Float64("temperature", current.Temperature).
			Str("clamped", result.Target.String()).
			Msg("Target outside of gamut, clamping to boundary")
	case !result.Clamped && l.clamped:
		log.Info().Msg("Target back inside of gamut")
	}
	l.clamped = result.Clamped
	return nil
}

func isTargetError(err error) bool {
	return errors.Is(err, color.ErrOutOfGamut) ||
		errors.Is(err, mixer.ErrInvalidBrightness) ||
		errors.Is(err, mixer.ErrInvalidColor)
}

// Run ticks until ctx is cancelled. Driver errors are logged and the loop
// keeps going, since controllers may come back after a reconnect.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", l.interval).Msg("Control loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopped")
			return
		case <-ticker.C:
			if err := l.Tick(); err != nil {
				log.Error().Err(err).Msg("Failed to write channel duties")
				if l.onError != nil {
					l.onError(err)
				}
			}
		}
	}
}

// Current returns the smoothed light of the last tick.
func (l *Loop) Current() Current {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Duties returns a copy of the fractions written by the last tick that
// reached the driver, including the zeros written for unmixable targets.
func (l *Loop) Duties() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]float64, len(l.last.Fractions))
	copy(out, l.last.Fractions)
	return out
}
