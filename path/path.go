// Package path flattens SVG-style vector paths into polylines an
// application can feed to island's encoder as vertex data. A Path here
// is a plain Go value, not a handle into an opaque object.
package path

import "math"

// Vertex is a 2D point or vector, used for both positions and tangents.
type Vertex struct {
	X, Y float32
}

func (a Vertex) add(b Vertex) Vertex      { return Vertex{a.X + b.X, a.Y + b.Y} }
func (a Vertex) sub(b Vertex) Vertex      { return Vertex{a.X - b.X, a.Y - b.Y} }
func (a Vertex) scale(s float32) Vertex   { return Vertex{a.X * s, a.Y * s} }
func (a Vertex) dist(b Vertex) float32    { return float32(math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))) }

type commandKind uint8

const (
	cmdMoveTo commandKind = iota
	cmdLineTo
	cmdQuadBezierTo
	cmdCubicBezierTo
	cmdClosePath
)

type command struct {
	kind   commandKind
	p      Vertex // end point
	c1, c2 Vertex // control points, unused by moveTo/lineTo/closePath
}

// Contour is one sub-path: an ordered list of SVG-style drawing commands
// that must begin with a MoveTo.
type Contour struct {
	commands []command
}

// Path holds any number of independent contours: commands describe
// intent, Polylines (built by Flatten) are the renderable result.
type Path struct {
	contours []Contour
}

func (p *Path) current() *Contour {
	if len(p.contours) == 0 {
		p.contours = append(p.contours, Contour{})
	}
	return &p.contours[len(p.contours)-1]
}

// MoveTo starts a new contour at p.
func (p *Path) MoveTo(v Vertex) *Path {
	p.contours = append(p.contours, Contour{commands: []command{{kind: cmdMoveTo, p: v}}})
	return p
}

// LineTo appends a straight segment to the current contour.
func (p *Path) LineTo(v Vertex) *Path {
	c := p.current()
	c.commands = append(c.commands, command{kind: cmdLineTo, p: v})
	return p
}

// LineHorizTo appends a straight horizontal segment ending at x, keeping
// the current contour's y coordinate -- the flattened form of SVG's 'H'.
func (p *Path) LineHorizTo(x float32) *Path {
	c := p.current()
	y := lastPoint(c).Y
	c.commands = append(c.commands, command{kind: cmdLineTo, p: Vertex{X: x, Y: y}})
	return p
}

// LineVertTo appends a straight vertical segment ending at y -- the
// flattened form of SVG's 'V'.
func (p *Path) LineVertTo(y float32) *Path {
	c := p.current()
	x := lastPoint(c).X
	c.commands = append(c.commands, command{kind: cmdLineTo, p: Vertex{X: x, Y: y}})
	return p
}

// QuadBezierTo appends a quadratic bezier with control point c1 and end
// point p.
func (p *Path) QuadBezierTo(c1, end Vertex) *Path {
	c := p.current()
	c.commands = append(c.commands, command{kind: cmdQuadBezierTo, p: end, c1: c1})
	return p
}

// CubicBezierTo appends a cubic bezier with control points c1, c2 and end
// point p.
func (p *Path) CubicBezierTo(c1, c2, end Vertex) *Path {
	c := p.current()
	c.commands = append(c.commands, command{kind: cmdCubicBezierTo, p: end, c1: c1, c2: c2})
	return p
}

// Close appends an implicit line back to the contour's first vertex.
func (p *Path) Close() *Path {
	c := p.current()
	c.commands = append(c.commands, command{kind: cmdClosePath})
	return p
}

func lastPoint(c *Contour) Vertex {
	for i := len(c.commands) - 1; i >= 0; i-- {
		return c.commands[i].p
	}
	return Vertex{}
}

// Polyline is one flattened contour: vertices in traversal order, the
// per-segment tangent vectors between consecutive vertices, the
// cumulative distance at each vertex, and the contour's total length.
type Polyline struct {
	Vertices      []Vertex
	Tangents      []Vertex
	Distances     []float32
	TotalDistance float32
}

func (pl *Polyline) traceMoveTo(p Vertex) {
	pl.Vertices = append(pl.Vertices, p)
	pl.Distances = append(pl.Distances, 0)
}

func (pl *Polyline) traceLineTo(p Vertex) {
	if len(pl.Vertices) == 0 {
		pl.Vertices = append(pl.Vertices, p)
		pl.Distances = append(pl.Distances, 0)
		return
	}
	p0 := pl.Vertices[len(pl.Vertices)-1]
	rel := p.sub(p0)
	dist2 := float64(rel.X)*float64(rel.X) + float64(rel.Y)*float64(rel.Y)
	if dist2 <= epsilon2 {
		return
	}
	pl.TotalDistance += float32(math.Sqrt(dist2))
	pl.Distances = append(pl.Distances, pl.TotalDistance)
	pl.Vertices = append(pl.Vertices, p)
	pl.Tangents = append(pl.Tangents, rel)
}

const epsilon2 = 1.1920929e-7 * 1.1920929e-7 // float32 machine epsilon squared

func (pl *Polyline) traceClosePath() {
	if len(pl.Vertices) == 0 {
		return
	}
	pl.traceLineTo(pl.Vertices[0])
}

// Flatten traces every contour into a Polyline using a fixed number of
// segments per curve, independent of curve shape. Use FlattenTolerance
// when a shape-adaptive result is preferred.
func (p *Path) Flatten(segmentsPerCurve int) []Polyline {
	out := make([]Polyline, 0, len(p.contours))
	for _, c := range p.contours {
		var pl Polyline
		for _, cmd := range c.commands {
			switch cmd.kind {
			case cmdMoveTo:
				pl.traceMoveTo(cmd.p)
			case cmdLineTo:
				pl.traceLineTo(cmd.p)
			case cmdQuadBezierTo:
				traceQuadBezierFixed(&pl, cmd.c1, cmd.p, segmentsPerCurve)
			case cmdCubicBezierTo:
				traceCubicBezierFixed(&pl, cmd.c1, cmd.c2, cmd.p, segmentsPerCurve)
			case cmdClosePath:
				pl.traceClosePath()
			}
		}
		out = append(out, pl)
	}
	return out
}

func traceQuadBezierFixed(pl *Polyline, c1, end Vertex, resolution int) {
	if resolution <= 0 {
		return
	}
	if resolution == 1 || len(pl.Vertices) == 0 {
		pl.traceLineTo(end)
		return
	}
	p0 := pl.Vertices[len(pl.Vertices)-1]
	pPrev := p0
	deltaT := 1.0 / float32(resolution)
	for i := 1; i <= resolution; i++ {
		t := float32(i) * deltaT
		tSq := t * t
		omt := 1 - t
		omtSq := omt * omt

		b := p0.scale(omtSq).add(c1.scale(2 * omt * t)).add(end.scale(tSq))

		pl.TotalDistance += b.dist(pPrev)
		pl.Distances = append(pl.Distances, pl.TotalDistance)
		pPrev = b
		pl.Vertices = append(pl.Vertices, b)
		pl.Tangents = append(pl.Tangents, c1.sub(p0).scale(2*omt).add(end.sub(c1).scale(2*t)))
	}
}

func traceCubicBezierFixed(pl *Polyline, c1, c2, end Vertex, resolution int) {
	if resolution <= 0 {
		return
	}
	if resolution == 1 || len(pl.Vertices) == 0 {
		pl.traceLineTo(end)
		return
	}
	p0 := pl.Vertices[len(pl.Vertices)-1]
	pPrev := p0
	deltaT := 1.0 / float32(resolution)
	for i := 1; i <= resolution; i++ {
		t := float32(i) * deltaT
		tSq := t * t
		tCub := tSq * t
		omt := 1 - t
		omtSq := omt * omt
		omtCub := omtSq * omt

		b := p0.scale(omtCub).
			add(c1.scale(3 * omtSq * t)).
			add(c2.scale(3 * omt * tSq)).
			add(end.scale(tCub))

		pl.TotalDistance += b.dist(pPrev)
		pl.Distances = append(pl.Distances, pl.TotalDistance)
		pPrev = b
		pl.Vertices = append(pl.Vertices, b)
		pl.Tangents = append(pl.Tangents, c1.sub(p0).scale(3*omtSq).
			add(c2.sub(c1).scale(6*omt*t)).
			add(end.sub(c2).scale(3*tSq)))
	}
}

// FlattenTolerance traces every contour adaptively: line segments pass
// through unchanged, and curves subdivide only as finely as needed to
// stay within tolerance of the true curve (measured as the perpendicular
// distance of each control point from the chord). A positive tolerance
// is used exactly as given -- this package does not clamp or override
// it; a tolerance <= 0 selects the default of 0.04.
func (p *Path) FlattenTolerance(tolerance float32) []Polyline {
	if tolerance <= 0 {
		tolerance = 0.04
	}
	out := make([]Polyline, 0, len(p.contours))
	for _, c := range p.contours {
		var pl Polyline
		for _, cmd := range c.commands {
			switch cmd.kind {
			case cmdMoveTo:
				pl.traceMoveTo(cmd.p)
			case cmdLineTo:
				pl.traceLineTo(cmd.p)
			case cmdQuadBezierTo:
				if len(pl.Vertices) == 0 {
					continue
				}
				p0 := pl.Vertices[len(pl.Vertices)-1]
				flattenCubicAdaptive(&pl, p0, lerpControlToCubic(p0, cmd.c1, cmd.p, true), lerpControlToCubic(p0, cmd.c1, cmd.p, false), cmd.p, tolerance, 0)
			case cmdCubicBezierTo:
				if len(pl.Vertices) == 0 {
					continue
				}
				p0 := pl.Vertices[len(pl.Vertices)-1]
				flattenCubicAdaptive(&pl, p0, cmd.c1, cmd.c2, cmd.p, tolerance, 0)
			case cmdClosePath:
				pl.traceClosePath()
			}
		}
		out = append(out, pl)
	}
	return out
}

// lerpControlToCubic converts a quadratic bezier's single control point
// into the pair of cubic control points that reproduce the same curve
// exactly (the standard degree-raising identity), so quad and cubic
// curves can share one adaptive flattener.
func lerpControlToCubic(p0, c, p1 Vertex, first bool) Vertex {
	if first {
		return p0.add(c.sub(p0).scale(2.0 / 3.0))
	}
	return p1.add(c.sub(p1).scale(2.0 / 3.0))
}

const maxBezierSubdivisionDepth = 24

// flattenCubicAdaptive recursively subdivides a cubic bezier until both
// control points of the remaining curve lie within tolerance of the chord
// between its endpoints (isFlatEnough), using an explicit recursive de
// Casteljau subdivision rather than a single step-size formula.
// Recursion stops at maxBezierSubdivisionDepth regardless.
func flattenCubicAdaptive(pl *Polyline, p0, c1, c2, p1 Vertex, tolerance float32, depth int) {
	if depth >= maxBezierSubdivisionDepth || isFlatEnough(p0, c1, c2, p1, tolerance) {
		pl.traceLineTo(p1)
		return
	}

	// de Casteljau split at t=0.5
	p01 := midpoint(p0, c1)
	p12 := midpoint(c1, c2)
	p23 := midpoint(c2, p1)
	p012 := midpoint(p01, p12)
	p123 := midpoint(p12, p23)
	p0123 := midpoint(p012, p123)

	flattenCubicAdaptive(pl, p0, p01, p012, p0123, tolerance, depth+1)
	flattenCubicAdaptive(pl, p0123, p123, p23, p1, tolerance, depth+1)
}

func midpoint(a, b Vertex) Vertex { return a.add(b).scale(0.5) }

// isFlatEnough measures how far each control point sits from the chord
// p0-p1 and accepts the curve as a line once both are within tolerance.
func isFlatEnough(p0, c1, c2, p1 Vertex, tolerance float32) bool {
	d1 := perpendicularDistance(c1, p0, p1)
	d2 := perpendicularDistance(c2, p0, p1)
	return d1 <= tolerance && d2 <= tolerance
}

func perpendicularDistance(p, a, b Vertex) float32 {
	ab := b.sub(a)
	length := float32(math.Hypot(float64(ab.X), float64(ab.Y)))
	if length < epsilon2 {
		return p.dist(a)
	}
	cross := (p.X-a.X)*ab.Y - (p.Y-a.Y)*ab.X
	return float32(math.Abs(float64(cross))) / length
}

// Clear discards every contour, reusing the Path's backing storage.
func (p *Path) Clear() {
	p.contours = p.contours[:0]
}

// NumContours reports how many sub-paths have been recorded.
func (p *Path) NumContours() int {
	return len(p.contours)
}
