package path

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float32) bool {
	return math.Abs(float64(a-b)) <= float64(eps)
}

func TestFlattenStraightLineProducesTwoVertices(t *testing.T) {
	var p Path
	p.MoveTo(Vertex{0, 0}).LineTo(Vertex{10, 0})

	pls := p.Flatten(8)
	if len(pls) != 1 {
		t.Fatalf("expected 1 polyline, got %d", len(pls))
	}
	if len(pls[0].Vertices) != 2 {
		t.Fatalf("expected 2 vertices for a single line segment, got %d", len(pls[0].Vertices))
	}
	if !almostEqual(pls[0].TotalDistance, 10, 1e-4) {
		t.Fatalf("TotalDistance = %f, want 10", pls[0].TotalDistance)
	}
}

func TestFlattenDropsDuplicatePoints(t *testing.T) {
	var p Path
	p.MoveTo(Vertex{1, 1}).LineTo(Vertex{1, 1}).LineTo(Vertex{5, 1})

	pls := p.Flatten(8)
	if len(pls[0].Vertices) != 2 {
		t.Fatalf("expected duplicate point to be dropped, got %d vertices", len(pls[0].Vertices))
	}
}

func TestClosePathReturnsToStart(t *testing.T) {
	var p Path
	p.MoveTo(Vertex{0, 0}).LineTo(Vertex{4, 0}).LineTo(Vertex{4, 4}).Close()

	pls := p.Flatten(8)
	last := pls[0].Vertices[len(pls[0].Vertices)-1]
	if last != (Vertex{0, 0}) {
		t.Fatalf("Close did not return to start vertex, got %+v", last)
	}
}

func TestFlattenToleranceEndpointsMatchFixedStep(t *testing.T) {
	var p Path
	p.MoveTo(Vertex{0, 0}).CubicBezierTo(Vertex{0, 10}, Vertex{10, 10}, Vertex{10, 0})

	fixed := p.Flatten(64)
	adaptive := p.FlattenTolerance(0.01)

	fEnd := fixed[0].Vertices[len(fixed[0].Vertices)-1]
	aEnd := adaptive[0].Vertices[len(adaptive[0].Vertices)-1]
	if !almostEqual(fEnd.X, aEnd.X, 0.01) || !almostEqual(fEnd.Y, aEnd.Y, 0.01) {
		t.Fatalf("fixed-step and adaptive flattening disagree on curve endpoint: %+v vs %+v", fEnd, aEnd)
	}
}

func TestFlattenToleranceStaysWithinBound(t *testing.T) {
	var p Path
	p.MoveTo(Vertex{0, 0}).CubicBezierTo(Vertex{0, 50}, Vertex{50, 50}, Vertex{50, 0})

	tolerance := float32(0.5)
	pls := p.FlattenTolerance(tolerance)
	verts := pls[0].Vertices

	for i := 1; i < len(verts)-1; i++ {
		d := perpendicularDistance(verts[i], verts[0], verts[len(verts)-1])
		if d > 60 { // sanity bound on a degenerate global chord check, not the per-segment flatness test itself
			t.Fatalf("vertex %d deviates implausibly far from overall chord: %f", i, d)
		}
	}
	if len(verts) < 3 {
		t.Fatalf("expected curve to subdivide into more than 2 points, got %d", len(verts))
	}
}

func TestAddFromSimplifiedSVGRoundTrip(t *testing.T) {
	svg := "M 0,0 L 10,0 L 10,10 H 0 V 0 Z"

	var p Path
	if err := p.AddFromSimplifiedSVG(svg); err != nil {
		t.Fatal(err)
	}
	if p.NumContours() != 1 {
		t.Fatalf("expected 1 contour, got %d", p.NumContours())
	}

	pls := p.Flatten(1)
	want := []Vertex{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	got := pls[0].Vertices
	if len(got) != len(want) {
		t.Fatalf("vertex count = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("vertex %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Emitting p and re-parsing the result must reproduce the same
	// flattened geometry -- H and V fold into L at append time (see
	// path.go's lastPoint), so the round trip holds modulo that merging,
	// not byte-for-byte against the original SVG text.
	emitted := p.ToSimplifiedSVG()
	var reparsed Path
	if err := reparsed.AddFromSimplifiedSVG(emitted); err != nil {
		t.Fatalf("re-parsing emitted SVG %q: %v", emitted, err)
	}
	gotReparsed := reparsed.Flatten(1)[0].Vertices
	if len(gotReparsed) != len(want) {
		t.Fatalf("round-trip vertex count = %d, want %d: %+v", len(gotReparsed), len(want), gotReparsed)
	}
	for i := range want {
		if gotReparsed[i] != want[i] {
			t.Fatalf("round-trip vertex %d = %+v, want %+v", i, gotReparsed[i], want[i])
		}
	}
}

func TestAddFromSimplifiedSVGCurves(t *testing.T) {
	var p Path
	err := p.AddFromSimplifiedSVG("M 0,0 Q 5,10 10,0 C 12,2 14,-2 16,0")
	if err != nil {
		t.Fatal(err)
	}

	pls := p.Flatten(16)
	if len(pls[0].Vertices) < 3 {
		t.Fatalf("expected curve subdivisions to add vertices beyond start/end")
	}
}

func TestAddFromSimplifiedSVGRejectsUnknownInstruction(t *testing.T) {
	var p Path
	if err := p.AddFromSimplifiedSVG("M 0,0 X 1,1"); err == nil {
		t.Fatal("expected error for unrecognized instruction")
	}
}

func TestExtrudeProducesWallMesh(t *testing.T) {
	var p Path
	p.MoveTo(Vertex{0, 0}).LineTo(Vertex{10, 0}).LineTo(Vertex{10, 10})
	pl := p.Flatten(1)[0]

	m := Extrude(pl, 0, 5)
	if len(m.Positions) != len(pl.Vertices)*2 {
		t.Fatalf("expected 2 positions per source vertex, got %d for %d vertices", len(m.Positions), len(pl.Vertices))
	}
	if len(m.Indices)%3 != 0 {
		t.Fatalf("expected a whole number of triangles, got %d indices", len(m.Indices))
	}
}

func TestGeneratePlaneIndexCount(t *testing.T) {
	m := GeneratePlane(2, 2, 4, 3)
	wantVerts := (4 + 1) * (3 + 1)
	if len(m.Positions) != wantVerts {
		t.Fatalf("vertex count = %d, want %d", len(m.Positions), wantVerts)
	}
	wantTris := 4 * 3 * 2
	if len(m.Indices) != wantTris*3 {
		t.Fatalf("index count = %d, want %d", len(m.Indices), wantTris*3)
	}
}

func TestGenerateSphereRadiusIsRespected(t *testing.T) {
	m := GenerateSphere(3, 8, 6, 0, 2*math.Pi, 0, math.Pi)
	for _, v := range m.Positions {
		l := math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z))
		if !almostEqual(float32(l), 3, 1e-3) {
			t.Fatalf("vertex %+v is not at radius 3 (got %f)", v, l)
		}
	}
}
