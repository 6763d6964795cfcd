// SPDX-License-Identifier: GPL-3.0-only

package color

import (
	"fmt"
	"strings"
)

const (
	// MinTemperature is the lowest temperature in Kelvin covered by the
	// Planckian-locus approximation.
	MinTemperature = 1667.0

	// MaxTemperature is the highest temperature in Kelvin covered by the
	// Planckian-locus approximation.
	MaxTemperature = 25000.0

	// ExtrapolationFloor is the lowest temperature accepted by ExtrapolateRed.
	// Lower values are raised to it.
	ExtrapolationFloor = 1005.0

	// extrapolationSpan is the temperature distance over which ExtrapolateRed
	// blends from the 1667 K point to RedPoint.
	extrapolationSpan = 667.0
)

// RedPoint is the deep-red chromaticity that ExtrapolateRed blends towards
// below MinTemperature. These are the coordinates of the red LEDs of the
// first prototype and not a point on the Planckian locus.
var RedPoint = XY{X: 0.628, Y: 0.295}

// ErrOutOfRange is returned by TemperatureToXY under the Reject policy.
var ErrOutOfRange = fmt.Errorf("%w: temperature outside of %.0f K to %.0f K", ErrOutOfGamut, MinTemperature, MaxTemperature)

// ClampPolicy decides what TemperatureToXY does with temperatures outside of
// the supported range.
type ClampPolicy int

const (
	// Reject returns ErrOutOfRange.
	Reject ClampPolicy = iota
	// Clamp moves the temperature to the nearest supported bound.
	Clamp
	// ExtrapolateRed clamps above MaxTemperature and blends linearly towards
	// RedPoint below MinTemperature. This is a heuristic, not a physical model.
	ExtrapolateRed
)

var clampPolicyNames = map[ClampPolicy]string{
	Reject:         "reject",
	Clamp:          "clamp",
	ExtrapolateRed: "extrapolate-red",
}

func (p ClampPolicy) String() string {
	if name, ok := clampPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ClampPolicy(%d)", int(p))
}

// ParseClampPolicy parses the textual name of a ClampPolicy.
func ParseClampPolicy(s string) (ClampPolicy, error) {
	for p, name := range clampPolicyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return Reject, fmt.Errorf("unknown clamp policy %q", s)
}

// TemperatureToXY converts a color temperature in Kelvin to a chromaticity on
// the Planckian locus, using the cubic spline approximation by Kim et al.
// NaN and infinite temperatures are rejected regardless of policy.
func TemperatureToXY(t float64, policy ClampPolicy) (XY, error) {
	if !isFinite(t) {
		return XY{}, fmt.Errorf("%w: %v K", ErrOutOfRange, t)
	}

	switch {
	case t >= MinTemperature && t <= MaxTemperature:
		return planckian(t), nil
	case policy == Reject:
		return XY{}, fmt.Errorf("%w: %.1f K", ErrOutOfRange, t)
	case t > MaxTemperature:
		return planckian(MaxTemperature), nil
	case policy == Clamp:
		return planckian(MinTemperature), nil
	}

	if t < ExtrapolationFloor {
		t = ExtrapolationFloor
	}
	a := (MinTemperature - t) / extrapolationSpan
	edge := planckian(MinTemperature)
	return XY{
		X: RedPoint.X*a + edge.X*(1.0-a),
		Y: RedPoint.Y*a + edge.Y*(1.0-a),
	}, nil
}

// planckian evaluates the approximation for t in [MinTemperature, MaxTemperature].
// The y branches overlap between 2000 K and 2222 K; the first matching one wins.
func planckian(t float64) XY {
	t2 := t * t
	t3 := t2 * t

	var x float64
	if t <= 4000.0 {
		x = -266123900.0/t3 - 234359.0/t2 + 877.6956/t + 0.179910
	} else {
		x = -3025846900.0/t3 + 2107038.0/t2 + 222.6347/t + 0.240390
	}

	x2 := x * x
	x3 := x2 * x

	var y float64
	switch {
	case t <= 2222.0:
		y = -1.1063814*x3 - 1.34811020*x2 + 2.18555832*x - 0.20219683
	case t <= 4000.0:
		y = -0.9549476*x3 - 1.37418593*x2 + 2.09137015*x - 0.16748867
	default:
		y = 3.0817580*x3 - 5.87338670*x2 + 3.75112997*x - 0.37001483
	}

	return XY{X: x, Y: y}
}
