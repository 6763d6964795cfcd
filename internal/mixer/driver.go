// SPDX-License-Identifier: GPL-3.0-only

// Package mixer turns target colors into per-channel drive fractions and
// writes them to a ChannelDriver.
package mixer

//go:generate mockgen -source=driver.go -destination=mocks/driver_mock.go -package=mocks

// ChannelDriver represents the PWM outputs of a lamp.
// This interface allows for mocking in tests.
type ChannelDriver interface {
	// SetDutyFraction sets the duty cycle of a channel to a fraction in [0, 1].
	SetDutyFraction(channel int, fraction float64) error
}
