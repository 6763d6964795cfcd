// SPDX-License-Identifier: GPL-3.0-only

// Package color provides chromaticity and tristimulus types together with the
// Planckian-locus approximation used to turn a color temperature into a
// point on the CIE 1931 xy diagram.
package color

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrOutOfGamut is returned when a requested color cannot be produced.
var ErrOutOfGamut = errors.New("color outside of valid bounds")

// ErrZeroLuminance is returned when a tristimulus value has X+Y+Z == 0 and
// therefore no defined chromaticity.
var ErrZeroLuminance = errors.New("tristimulus sum is zero")

// XY is a chromaticity on the CIE 1931 xy chromaticity diagram.
// It describes hue and saturation of light without brightness information.
type XY struct {
	X float64
	Y float64
}

// XYZ is a color in the CIE 1931 XYZ color space. Y is the luminance.
type XYZ struct {
	X float64
	Y float64
	Z float64
}

// NewXY creates a chromaticity from its coordinates.
func NewXY(x, y float64) XY {
	return XY{X: x, Y: y}
}

// WithBrightness combines the chromaticity with a luminance Y in the xyY
// color space and converts the result to XYZ.
//
// A chromaticity with y == 0 has no XYZ representation. Such a value can only
// come from a broken calibration table, so this panics instead of returning
// an error.
func (c XY) WithBrightness(luminance float64) XYZ {
	if c.Y == 0 {
		panic(fmt.Sprintf("color: chromaticity %s has y == 0", c))
	}
	z := 1.0 - (c.X + c.Y)
	return XYZ{
		X: (luminance / c.Y) * c.X,
		Y: luminance,
		Z: (luminance / c.Y) * z,
	}
}

// Distance returns the euclidean distance between two chromaticities.
func (c XY) Distance(o XY) float64 {
	return math.Hypot(c.X-o.X, c.Y-o.Y)
}

// IsFinite reports whether both coordinates are finite numbers.
func (c XY) IsFinite() bool {
	return isFinite(c.X) && isFinite(c.Y)
}

func (c XY) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", c.X, c.Y)
}

// Chromaticity returns the xy chromaticity of the tristimulus value.
func (c XYZ) Chromaticity() (XY, error) {
	sum := c.X + c.Y + c.Z
	if sum == 0 {
		return XY{}, ErrZeroLuminance
	}
	return XY{X: c.X / sum, Y: c.Y / sum}, nil
}

// FromRGB converts an sRGB color to XYZ and rescales it so that its
// luminance equals the given value. Black has no chromaticity and yields
// ErrZeroLuminance.
func FromRGB(c colorful.Color, luminance float64) (XYZ, error) {
	x, y, z := c.Xyz()
	xy, err := XYZ{X: x, Y: y, Z: z}.Chromaticity()
	if err != nil {
		return XYZ{}, err
	}
	if xy.Y == 0 {
		return XYZ{}, fmt.Errorf("%w: %s has no luminance", ErrOutOfGamut, c.Hex())
	}
	return xy.WithBrightness(luminance), nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
