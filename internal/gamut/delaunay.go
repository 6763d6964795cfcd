// SPDX-License-Identifier: GPL-3.0-only

package gamut

import (
	"math"
	"sort"

	"github.com/bestelampe/lampd/internal/color"
)

const (
	// areaEpsilon is the smallest doubled triangle area treated as non-degenerate.
	areaEpsilon = 1e-12

	superTriangleScale = 1e5
)

type edge struct {
	a, b int
}

func newEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a: a, b: b}
}

type circumTriangle struct {
	v      [3]int
	cx, cy float64
	r2     float64
}

func newCircumTriangle(points []color.XY, a, b, c int) circumTriangle {
	t := circumTriangle{v: [3]int{a, b, c}}
	pa, pb, pc := points[a], points[b], points[c]

	d := 2 * (pa.X*(pb.Y-pc.Y) + pb.X*(pc.Y-pa.Y) + pc.X*(pa.Y-pb.Y))
	if d == 0 {
		// Collinear vertices: every later point lies "inside", so the
		// triangle is removed by the next insertion or the final filter.
		t.r2 = math.Inf(1)
		return t
	}

	la := pa.X*pa.X + pa.Y*pa.Y
	lb := pb.X*pb.X + pb.Y*pb.Y
	lc := pc.X*pc.X + pc.Y*pc.Y
	t.cx = (la*(pb.Y-pc.Y) + lb*(pc.Y-pa.Y) + lc*(pa.Y-pb.Y)) / d
	t.cy = (la*(pc.X-pb.X) + lb*(pa.X-pc.X) + lc*(pb.X-pa.X)) / d
	t.r2 = (pa.X-t.cx)*(pa.X-t.cx) + (pa.Y-t.cy)*(pa.Y-t.cy)
	return t
}

func (t circumTriangle) contains(p color.XY) bool {
	if math.IsInf(t.r2, 1) {
		return true
	}
	dx, dy := p.X-t.cx, p.Y-t.cy
	return dx*dx+dy*dy < t.r2
}

// Triangulate computes a Delaunay triangulation of points with the
// Bowyer-Watson algorithm and returns triangles as index triples into points.
//
// Fewer than three distinct points, or points that are all collinear, yield no
// triangles. Duplicate points are triangulated once, using the lowest index.
// Vertices within a triangle are sorted ascending, and triangles are sorted
// lexicographically, so the result does not depend on insertion order.
func Triangulate(points []color.XY) [][3]int {
	n := len(points)
	if n < 3 {
		return nil
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		return nil
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	// Work on a copy extended by a super triangle enclosing every point. Its
	// vertices must be far away, or triangles along nearly straight stretches
	// of the convex hull go missing.
	far := superTriangleScale * span
	work := make([]color.XY, n, n+3)
	copy(work, points)
	work = append(work,
		color.XY{X: midX - far, Y: midY - far},
		color.XY{X: midX, Y: midY + far},
		color.XY{X: midX + far, Y: midY - far},
	)

	triangles := []circumTriangle{newCircumTriangle(work, n, n+1, n+2)}
	seen := make(map[color.XY]bool, n)

	for i := 0; i < n; i++ {
		p := work[i]
		if seen[p] {
			continue
		}
		seen[p] = true

		var kept []circumTriangle
		edgeCount := make(map[edge]int)
		var edgeOrder []edge
		for _, t := range triangles {
			if !t.contains(p) {
				kept = append(kept, t)
				continue
			}
			for _, e := range []edge{newEdge(t.v[0], t.v[1]), newEdge(t.v[1], t.v[2]), newEdge(t.v[2], t.v[0])} {
				if edgeCount[e] == 0 {
					edgeOrder = append(edgeOrder, e)
				}
				edgeCount[e]++
			}
		}

		for _, e := range edgeOrder {
			if edgeCount[e] == 1 {
				kept = append(kept, newCircumTriangle(work, e.a, e.b, i))
			}
		}
		triangles = kept
	}

	var result [][3]int
	for _, t := range triangles {
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n {
			continue
		}
		if math.Abs(doubledArea(points[t.v[0]], points[t.v[1]], points[t.v[2]])) <= areaEpsilon {
			continue
		}
		v := t.v
		sort.Ints(v[:])
		result = append(result, v)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		for k := 0; k < 3; k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return result
}

// doubledArea returns twice the signed area of the triangle abc.
func doubledArea(a, b, c color.XY) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y)
}
