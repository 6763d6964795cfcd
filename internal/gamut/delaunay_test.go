package gamut

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestelampe/lampd/internal/color"
)

func TestTriangulate_SmallInputs(t *testing.T) {
	tests := []struct {
		name   string
		points []color.XY
	}{
		{name: "no points", points: nil},
		{name: "one point", points: []color.XY{{X: 0.3, Y: 0.3}}},
		{name: "two points", points: []color.XY{{X: 0.3, Y: 0.3}, {X: 0.5, Y: 0.4}}},
		{name: "collinear points", points: []color.XY{{X: 0, Y: 0}, {X: 0.5, Y: 0.5}, {X: 1, Y: 1}, {X: 0.25, Y: 0.25}}},
		{name: "identical points", points: []color.XY{{X: 0.3, Y: 0.3}, {X: 0.3, Y: 0.3}, {X: 0.3, Y: 0.3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Triangulate(tt.points))
		})
	}
}

func TestTriangulate_SingleTriangle(t *testing.T) {
	points := []color.XY{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	assert.Equal(t, [][3]int{{0, 1, 2}}, Triangulate(points))
}

func TestTriangulate_Square(t *testing.T) {
	points := []color.XY{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	triangles := Triangulate(points)

	require.Len(t, triangles, 2)
	assert.InDelta(t, 1.0, totalArea(points, triangles), 1e-12)
}

func TestTriangulate_DuplicatePointUsesLowestIndex(t *testing.T) {
	points := []color.XY{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 0}}
	assert.Equal(t, [][3]int{{0, 1, 2}}, Triangulate(points))
}

func TestTriangulate_DefaultChannels(t *testing.T) {
	points := make([]color.XY, len(DefaultChannels))
	for i, spec := range DefaultChannels {
		points[i] = color.NewXY(spec.X, spec.Y)
	}

	triangles := Triangulate(points)
	require.NotEmpty(t, triangles)
	assertDelaunay(t, points, triangles)
	assert.InDelta(t, hullArea(points), totalArea(points, triangles), 1e-12)
}

func TestTriangulate_RandomPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		points := make([]color.XY, 4+rng.Intn(16))
		for i := range points {
			points[i] = color.NewXY(rng.Float64(), rng.Float64())
		}

		triangles := Triangulate(points)
		assertDelaunay(t, points, triangles)
		assert.InDelta(t, hullArea(points), totalArea(points, triangles), 1e-9, "round %d", round)
	}
}

func TestTriangulate_Deterministic(t *testing.T) {
	points := []color.XY{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.2}, {X: 0.5, Y: 0.9}, {X: 0.5, Y: 0.4}, {X: 0.2, Y: 0.6}}
	first := Triangulate(points)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Triangulate(points))
	}
}

// assertDelaunay checks that no point lies strictly inside the circumcircle
// of any triangle.
func assertDelaunay(t *testing.T, points []color.XY, triangles [][3]int) {
	t.Helper()
	for _, tri := range triangles {
		c := newCircumTriangle(points, tri[0], tri[1], tri[2])
		for i, p := range points {
			if i == tri[0] || i == tri[1] || i == tri[2] {
				continue
			}
			dx, dy := p.X-c.cx, p.Y-c.cy
			assert.GreaterOrEqual(t, dx*dx+dy*dy, c.r2-1e-9, "point %d inside circumcircle of %v", i, tri)
		}
	}
}

func totalArea(points []color.XY, triangles [][3]int) float64 {
	var sum float64
	for _, tri := range triangles {
		sum += math.Abs(doubledArea(points[tri[0]], points[tri[1]], points[tri[2]])) / 2
	}
	return sum
}

// hullArea computes the convex hull with Andrew's monotone chain and returns
// its area.
func hullArea(points []color.XY) float64 {
	sorted := append([]color.XY(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	var hull []color.XY
	for _, pass := range []int{0, 1} {
		start := len(hull)
		for i := range sorted {
			p := sorted[i]
			if pass == 1 {
				p = sorted[len(sorted)-1-i]
			}
			for len(hull) >= start+2 && doubledArea(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
				hull = hull[:len(hull)-1]
			}
			hull = append(hull, p)
		}
		hull = hull[:len(hull)-1]
	}

	var area float64
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		area += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(area) / 2
}
