// SPDX-License-Identifier: GPL-3.0-only

package gamut

// DefaultChannels is the calibration table of the six-channel prototype lamp:
// red, green, blue, cold white, warm white and phosphor-converted amber.
var DefaultChannels = []ChannelSpec{
	{Name: "R", X: 0.6400, Y: 0.3500, MaxBrightness: 165},
	{Name: "G", X: 0.4070, Y: 0.5370, MaxBrightness: 460},
	{Name: "B", X: 0.1470, Y: 0.1100, MaxBrightness: 130},
	{Name: "CW", X: 0.3447, Y: 0.3553, MaxBrightness: 310},
	{Name: "WW", X: 0.5066, Y: 0.4158, MaxBrightness: 170},
	{Name: "PA", X: 0.5650, Y: 0.4250, MaxBrightness: 230},
}

// DefaultTriangles is the hand-picked partition used with DefaultChannels.
// It is searched in this order.
var DefaultTriangles = [][3]string{
	{"R", "PA", "WW"},
	{"G", "PA", "WW"},
	{"R", "CW", "WW"},
	{"G", "CW", "WW"},
	{"R", "CW", "B"},
	{"G", "CW", "B"},
}
