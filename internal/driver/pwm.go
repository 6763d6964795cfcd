// SPDX-License-Identifier: GPL-3.0-only

// Package driver provides ChannelDriver implementations that write drive
// fractions to lamp hardware or to the log.
package driver

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/bestelampe/lampd/internal/brightness"
)

// DefaultFrequency is the PWM frequency used when none is configured.
const DefaultFrequency = 2400 * physic.Hertz

// ErrUnknownChannel is returned for channel indices without an output.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrUnknownPin is returned when a GPIO pin name cannot be resolved.
var ErrUnknownPin = errors.New("unknown GPIO pin")

// ErrDriverClosed is returned when writing to a closed driver.
var ErrDriverClosed = errors.New("driver is closed")

// PWMPin is the part of a periph GPIO pin used by PWM.
// This interface allows for mocking in tests.
type PWMPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
	String() string
}

// PWM drives one GPIO pin per channel with hardware PWM.
type PWM struct {
	mu        sync.Mutex
	pins      []PWMPin
	frequency physic.Frequency
	closed    bool
}

// OpenPWM initializes the periph host drivers and resolves the given pin
// names, one per channel in index order.
func OpenPWM(names []string, frequency physic.Frequency) (*PWM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	pins := make([]PWMPin, len(names))
	for i, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPin, name)
		}
		pins[i] = p
	}

	log.Info().
		Strs("pins", names).
		Str("frequency", frequency.String()).
		Msg("Opened PWM outputs")

	return NewPWM(pins, frequency), nil
}

// NewPWM creates a PWM driver from already resolved pins.
// A zero frequency selects DefaultFrequency.
func NewPWM(pins []PWMPin, frequency physic.Frequency) *PWM {
	if frequency == 0 {
		frequency = DefaultFrequency
	}
	return &PWM{pins: pins, frequency: frequency}
}

// SetDutyFraction implements mixer.ChannelDriver.
func (p *PWM) SetDutyFraction(channel int, fraction float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrDriverClosed
	}
	if channel < 0 || channel >= len(p.pins) {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}

	duty := FractionToDuty(fraction)
	if err := p.pins[channel].PWM(duty, p.frequency); err != nil {
		return fmt.Errorf("failed to set PWM on %s: %w", p.pins[channel], err)
	}
	return nil
}

// Close halts every pin. Further writes fail with ErrDriverClosed.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, pin := range p.pins {
		if err := pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("failed to halt %s: %w", pin, err))
		}
	}
	return errors.Join(errs...)
}

// Release detaches from the pins without halting them, so the last duties
// keep running after the process exits. Further writes fail with
// ErrDriverClosed.
func (p *PWM) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	log.Debug().Int("pins", len(p.pins)).Msg("Released PWM outputs")
	return nil
}

// FractionToDuty converts a drive fraction to a periph duty cycle in
// [0, gpio.DutyMax]. Fractions outside of [0, 1] are clamped.
func FractionToDuty(fraction float64) gpio.Duty {
	return gpio.Duty(math.Round(brightness.Clamp(fraction) * float64(gpio.DutyMax)))
}
