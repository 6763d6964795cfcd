// SPDX-License-Identifier: GPL-3.0-only

package gamut

import (
	"fmt"
	"math"

	"github.com/bestelampe/lampd/internal/color"
)

// Epsilon is the tolerance below zero still accepted for a barycentric weight.
// It absorbs rounding noise for points on a shared edge or on the boundary.
const Epsilon = 1e-9

// Match is the result of locating a chromaticity inside the gamut.
type Match struct {
	Triangle Triangle
	Weights  [3]float64
}

// Barycentric returns the barycentric weights of p relative to the triangle
// abc. The weights sum to one; all of them are non-negative iff p lies inside
// or on the boundary of the triangle.
func Barycentric(a, b, c, p color.XY) ([3]float64, error) {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return [3]float64{}, fmt.Errorf("%w: triangle %s %s %s has zero area", ErrDegenerateGeometry, a, b, c)
	}

	wa := ((b.Y-c.Y)*(p.X-c.X) + (c.X-b.X)*(p.Y-c.Y)) / denom
	wb := ((c.Y-a.Y)*(p.X-c.X) + (a.X-c.X)*(p.Y-c.Y)) / denom
	return [3]float64{wa, wb, 1.0 - wa - wb}, nil
}

// Weights returns the barycentric weights of p for a triangle of this gamut.
func (g *Gamut) Weights(t Triangle, p color.XY) ([3]float64, error) {
	return Barycentric(g.channels[t[0]].Color, g.channels[t[1]].Color, g.channels[t[2]].Color, p)
}

// Locate finds the first triangle, in search order, that contains p.
// Points on an edge shared by two triangles go to the earlier one.
func (g *Gamut) Locate(p color.XY) (Match, bool) {
	for _, t := range g.triangles {
		w, err := g.Weights(t, p)
		if err != nil {
			// Build rejects zero-area triangles.
			panic(err)
		}
		if w[0] >= -Epsilon && w[1] >= -Epsilon && w[2] >= -Epsilon {
			return Match{Triangle: t, Weights: w}, true
		}
	}
	return Match{}, false
}

// Contains reports whether p lies inside the gamut.
func (g *Gamut) Contains(p color.XY) bool {
	_, ok := g.Locate(p)
	return ok
}

// ClampToBoundary returns the point on the outer boundary of the triangles
// closest to p. It returns false if the gamut has no triangles.
func (g *Gamut) ClampToBoundary(p color.XY) (color.XY, bool) {
	if len(g.boundary) == 0 {
		return p, false
	}

	best := p
	bestDistance := math.Inf(1)
	for _, e := range g.boundary {
		candidate := closestPointOnSegment(g.channels[e.a].Color, g.channels[e.b].Color, p)
		if d := candidate.Distance(p); d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best, true
}

// Boundary returns the outer edges of the triangulated area as channel index
// pairs.
func (g *Gamut) Boundary() [][2]int {
	out := make([][2]int, len(g.boundary))
	for i, e := range g.boundary {
		out[i] = [2]int{e.a, e.b}
	}
	return out
}

// boundaryEdges returns the edges that belong to exactly one triangle.
func boundaryEdges(triangles []Triangle) []edge {
	count := make(map[edge]int)
	var order []edge
	for _, t := range triangles {
		for _, e := range []edge{newEdge(t[0], t[1]), newEdge(t[1], t[2]), newEdge(t[2], t[0])} {
			if count[e] == 0 {
				order = append(order, e)
			}
			count[e]++
		}
	}

	var boundary []edge
	for _, e := range order {
		if count[e] == 1 {
			boundary = append(boundary, e)
		}
	}
	return boundary
}

// closestPointOnSegment returns the point on segment ab closest to p.
func closestPointOnSegment(a, b, p color.XY) color.XY {
	abX, abY := b.X-a.X, b.Y-a.Y
	length2 := abX*abX + abY*abY
	if length2 == 0 {
		return a
	}

	t := ((p.X-a.X)*abX + (p.Y-a.Y)*abY) / length2
	t = math.Max(0, math.Min(1, t))
	return color.XY{X: a.X + abX*t, Y: a.Y + abY*t}
}
