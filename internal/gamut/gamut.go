// SPDX-License-Identifier: GPL-3.0-only

// Package gamut models the set of LED channels of a lamp and the triangles
// spanned by their chromaticities. Any target chromaticity inside one of the
// triangles can be mixed from the three LEDs at its corners.
package gamut

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/bestelampe/lampd/internal/color"
)

// ErrInvalidChannel is returned when a channel specification is unusable.
var ErrInvalidChannel = errors.New("invalid channel")

// ErrDegenerateGeometry is returned for zero-area triangles and for channel
// sets that cannot be triangulated.
var ErrDegenerateGeometry = errors.New("degenerate gamut geometry")

// ErrUnknownChannel is returned when a channel name does not exist.
var ErrUnknownChannel = errors.New("unknown channel")

// ChannelSpec is one row of a calibration table.
type ChannelSpec struct {
	Name string
	X    float64
	Y    float64
	// MaxBrightness is the luminous output of the channel at full duty, in
	// arbitrary linear units shared by all channels.
	MaxBrightness float64
}

// Channel is a physical LED channel owned by a Gamut.
type Channel struct {
	Index         int
	Name          string
	Color         color.XY
	MaxBrightness float64
}

// Triangle holds three indices into the channel list of its Gamut.
type Triangle [3]int

// Gamut is the immutable set of channels and the triangles covering them.
// Build a new Gamut whenever the channel set changes.
type Gamut struct {
	channels  []Channel
	triangles []Triangle
	byName    map[string]int
	boundary  []edge
}

type buildOptions struct {
	names      [][3]string
	indices    [][3]int
	allowEmpty bool
}

// Option configures Build.
type Option func(*buildOptions)

// WithTriangles replaces the Delaunay triangulation with a manual partition,
// given by channel names. The order of the list is the search order.
func WithTriangles(triangles [][3]string) Option {
	return func(o *buildOptions) {
		o.names = triangles
	}
}

// WithTriangleIndices is like WithTriangles but takes channel indices.
func WithTriangleIndices(triangles [][3]int) Option {
	return func(o *buildOptions) {
		o.indices = triangles
	}
}

// AllowEmpty lets Build succeed for channel sets without any triangle.
// Every target is then out of gamut.
func AllowEmpty() Option {
	return func(o *buildOptions) {
		o.allowEmpty = true
	}
}

// Build validates the channel specifications and triangulates them.
func Build(specs []ChannelSpec, opts ...Option) (*Gamut, error) {
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}

	g := &Gamut{
		channels: make([]Channel, len(specs)),
		byName:   make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		if _, exists := g.byName[spec.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidChannel, spec.Name)
		}
		g.byName[spec.Name] = i
		g.channels[i] = Channel{
			Index:         i,
			Name:          spec.Name,
			Color:         color.NewXY(spec.X, spec.Y),
			MaxBrightness: spec.MaxBrightness,
		}
	}

	var err error
	switch {
	case o.names != nil:
		g.triangles, err = g.trianglesByName(o.names)
	case o.indices != nil:
		g.triangles, err = g.checkTriangles(o.indices)
	default:
		g.triangles = g.delaunay()
	}
	if err != nil {
		return nil, err
	}

	if len(g.triangles) == 0 && !o.allowEmpty {
		return nil, fmt.Errorf("%w: need at least 3 non-collinear channels, got %d channels", ErrDegenerateGeometry, len(specs))
	}

	g.boundary = boundaryEdges(g.triangles)

	log.Debug().
		Int("channels", len(g.channels)).
		Int("triangles", len(g.triangles)).
		Bool("manual", o.names != nil || o.indices != nil).
		Msg("Built gamut")

	return g, nil
}

func validateSpec(spec ChannelSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidChannel)
	}
	if !color.NewXY(spec.X, spec.Y).IsFinite() {
		return fmt.Errorf("%w: %s has non-finite chromaticity", ErrInvalidChannel, spec.Name)
	}
	if math.IsNaN(spec.MaxBrightness) || math.IsInf(spec.MaxBrightness, 0) || spec.MaxBrightness <= 0 {
		return fmt.Errorf("%w: %s max brightness must be positive, got %v", ErrInvalidChannel, spec.Name, spec.MaxBrightness)
	}
	return nil
}

func (g *Gamut) delaunay() []Triangle {
	points := make([]color.XY, len(g.channels))
	for i, ch := range g.channels {
		points[i] = ch.Color
	}

	raw := Triangulate(points)
	triangles := make([]Triangle, len(raw))
	for i, t := range raw {
		triangles[i] = Triangle(t)
	}
	return triangles
}

func (g *Gamut) trianglesByName(names [][3]string) ([]Triangle, error) {
	indices := make([][3]int, len(names))
	for i, t := range names {
		for k, name := range t {
			idx, ok := g.byName[name]
			if !ok {
				return nil, fmt.Errorf("triangle %d: %w %q", i, ErrUnknownChannel, name)
			}
			indices[i][k] = idx
		}
	}
	return g.checkTriangles(indices)
}

func (g *Gamut) checkTriangles(indices [][3]int) ([]Triangle, error) {
	triangles := make([]Triangle, len(indices))
	for i, t := range indices {
		for _, idx := range t {
			if idx < 0 || idx >= len(g.channels) {
				return nil, fmt.Errorf("triangle %d: %w: index %d", i, ErrUnknownChannel, idx)
			}
		}
		a, b, c := g.channels[t[0]].Color, g.channels[t[1]].Color, g.channels[t[2]].Color
		if math.Abs(doubledArea(a, b, c)) <= areaEpsilon {
			return nil, fmt.Errorf("%w: triangle %d (%s, %s, %s) has zero area", ErrDegenerateGeometry, i,
				g.channels[t[0]].Name, g.channels[t[1]].Name, g.channels[t[2]].Name)
		}
		triangles[i] = Triangle(t)
	}
	return triangles, nil
}

// Channels returns a copy of all channels in index order.
func (g *Gamut) Channels() []Channel {
	out := make([]Channel, len(g.channels))
	copy(out, g.channels)
	return out
}

// Len returns the number of channels.
func (g *Gamut) Len() int {
	return len(g.channels)
}

// Channel returns the channel with the given index.
func (g *Gamut) Channel(index int) Channel {
	return g.channels[index]
}

// ChannelByName looks up a channel by its name.
func (g *Gamut) ChannelByName(name string) (Channel, error) {
	idx, ok := g.byName[name]
	if !ok {
		return Channel{}, fmt.Errorf("%w %q", ErrUnknownChannel, name)
	}
	return g.channels[idx], nil
}

// Triangles returns a copy of the triangles in search order.
func (g *Gamut) Triangles() []Triangle {
	out := make([]Triangle, len(g.triangles))
	copy(out, g.triangles)
	return out
}

// Names returns the channel names of a triangle.
func (g *Gamut) Names(t Triangle) [3]string {
	return [3]string{g.channels[t[0]].Name, g.channels[t[1]].Name, g.channels[t[2]].Name}
}
