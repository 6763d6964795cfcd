// SPDX-License-Identifier: GPL-3.0-only

// Package brightness provides utilities for converting between linear drive
// fractions, user-friendly percentages and raw controller duty values.
package brightness

import "math"

const (
	// DefaultGamma is the exponent applied to a requested brightness before
	// mixing, to compensate for the non-linear response of human vision.
	DefaultGamma = 2.0

	// MaxPercent is the percentage that corresponds to a fraction of 1.
	MaxPercent uint8 = 100

	// MaxDuty is the raw 16-bit duty value of a fully driven channel.
	MaxDuty uint16 = 0xFFFF
)

// Clamp ensures a fraction is within [0, 1]. NaN is treated as 0.
func Clamp(fraction float64) float64 {
	if math.IsNaN(fraction) || fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

// GammaCorrect returns fraction^gamma for a fraction clamped to [0, 1].
// A non-positive gamma leaves the fraction unchanged.
func GammaCorrect(fraction, gamma float64) float64 {
	fraction = Clamp(fraction)
	if gamma <= 0 {
		return fraction
	}
	return math.Pow(fraction, gamma)
}

// FractionToPercent converts a fraction to a percentage (0-100).
// Values outside of [0, 1] are clamped before conversion.
// Uses rounding to ensure round-trip consistency with PercentToFraction.
func FractionToPercent(fraction float64) uint8 {
	return uint8(math.Round(Clamp(fraction) * float64(MaxPercent)))
}

// PercentToFraction converts a percentage (0-100) to a fraction.
// Percentages above 100 are treated as 100%.
func PercentToFraction(percent uint8) float64 {
	if percent > MaxPercent {
		percent = MaxPercent
	}
	return float64(percent) / float64(MaxPercent)
}

// StepPercent moves a fraction by a signed number of percentage points and
// clamps the result.
func StepPercent(fraction float64, delta int) float64 {
	return Clamp(fraction + float64(delta)/float64(MaxPercent))
}

// FractionToDuty converts a fraction to a raw 16-bit duty value.
func FractionToDuty(fraction float64) uint16 {
	return uint16(math.Round(Clamp(fraction) * float64(MaxDuty)))
}

// DutyToFraction converts a raw 16-bit duty value to a fraction.
func DutyToFraction(duty uint16) float64 {
	return float64(duty) / float64(MaxDuty)
}
