package path

import "math"

// Mesh is a plain vertex/index buffer pair, holding positions and normals
// in parallel per-vertex slices (Positions[i] pairs with Normals[i]). It
// carries no GPU resources of its own -- island/encoder's SetVertexData
// and SetIndexData are what turn a Mesh into something a pass can draw.
type Mesh struct {
	Positions []Vertex3
	Normals   []Vertex3
	Indices   []uint32
}

// Vertex3 is a 3D point or vector.
type Vertex3 struct {
	X, Y, Z float32
}

func (a Vertex3) add(b Vertex3) Vertex3    { return Vertex3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vertex3) scale(s float32) Vertex3  { return Vertex3{a.X * s, a.Y * s, a.Z * s} }
func (a Vertex3) sub(b Vertex3) Vertex3    { return Vertex3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

func (a Vertex3) normalize() Vertex3 {
	l := float32(math.Sqrt(float64(a.X*a.X + a.Y*a.Y + a.Z*a.Z)))
	if l == 0 {
		return a
	}
	return Vertex3{a.X / l, a.Y / l, a.Z / l}
}

// Extrude turns one flattened 2D polyline into a wall mesh along the Z
// axis between z0 and z1: an indexed triangle list with two triangles per
// polyline segment.
func Extrude(pl Polyline, z0, z1 float32) Mesh {
	n := len(pl.Vertices)
	if n < 2 {
		return Mesh{}
	}

	var m Mesh
	m.Positions = make([]Vertex3, 0, n*2)
	m.Normals = make([]Vertex3, 0, n*2)

	for i, v := range pl.Vertices {
		var tangent Vertex
		switch {
		case i < len(pl.Tangents):
			tangent = pl.Tangents[i]
		case len(pl.Tangents) > 0:
			tangent = pl.Tangents[len(pl.Tangents)-1]
		}
		normal := Vertex3{X: tangent.Y, Y: -tangent.X}.normalize()

		m.Positions = append(m.Positions, Vertex3{X: v.X, Y: v.Y, Z: z0})
		m.Positions = append(m.Positions, Vertex3{X: v.X, Y: v.Y, Z: z1})
		m.Normals = append(m.Normals, normal, normal)
	}

	for i := 0; i < n-1; i++ {
		a0 := uint32(i * 2)
		a1 := a0 + 1
		b0 := uint32((i + 1) * 2)
		b1 := b0 + 1
		m.Indices = append(m.Indices, a0, b0, a1, a1, b0, b1)
	}
	return m
}

// Triangulate fans a single convex, closed polyline into a triangle
// list sharing its first vertex -- sufficient for the flattened SVG
// glyph/icon shapes this package targets, not a general polygon
// triangulator (no ear-clipping, no holes).
func Triangulate(pl Polyline, z float32) Mesh {
	n := len(pl.Vertices)
	if n < 3 {
		return Mesh{}
	}

	var m Mesh
	m.Positions = make([]Vertex3, n)
	m.Normals = make([]Vertex3, n)
	for i, v := range pl.Vertices {
		m.Positions[i] = Vertex3{X: v.X, Y: v.Y, Z: z}
		m.Normals[i] = Vertex3{Z: 1}
	}
	for i := 1; i < n-1; i++ {
		m.Indices = append(m.Indices, 0, uint32(i), uint32(i+1))
	}
	return m
}

// GeneratePlane builds a subdivided rectangular grid in the XY plane,
// centered on the origin.
func GeneratePlane(width, height float32, widthSegments, heightSegments uint32) Mesh {
	if widthSegments == 0 {
		widthSegments = 1
	}
	if heightSegments == 0 {
		heightSegments = 1
	}

	var m Mesh
	segW, segH := float32(widthSegments), float32(heightSegments)
	stepX, stepY := width/segW, height/segH
	halfW, halfH := width/2, height/2

	for iy := uint32(0); iy <= heightSegments; iy++ {
		y := float32(iy)*stepY - halfH
		for ix := uint32(0); ix <= widthSegments; ix++ {
			x := float32(ix)*stepX - halfW
			m.Positions = append(m.Positions, Vertex3{X: x, Y: y, Z: 0})
			m.Normals = append(m.Normals, Vertex3{Z: 1})
		}
	}

	rowStride := widthSegments + 1
	for iy := uint32(0); iy < heightSegments; iy++ {
		for ix := uint32(0); ix < widthSegments; ix++ {
			a := iy*rowStride + ix
			b := a + 1
			c := a + rowStride
			d := c + 1
			m.Indices = append(m.Indices, a, c, b, b, c, d)
		}
	}
	return m
}

// GenerateSphere builds a UV sphere of given radius, subdivided
// widthSegments times around the equator and heightSegments times from
// pole to pole, over the angular range [phiStart,phiStart+phiLength] x
// [thetaStart,thetaStart+thetaLength].
func GenerateSphere(radius float32, widthSegments, heightSegments uint32, phiStart, phiLength, thetaStart, thetaLength float32) Mesh {
	if widthSegments < 3 {
		widthSegments = 3
	}
	if heightSegments < 2 {
		heightSegments = 2
	}

	var m Mesh
	rowStride := widthSegments + 1

	for iy := uint32(0); iy <= heightSegments; iy++ {
		v := float32(iy) / float32(heightSegments)
		theta := thetaStart + v*thetaLength

		for ix := uint32(0); ix <= widthSegments; ix++ {
			u := float32(ix) / float32(widthSegments)
			phi := phiStart + u*phiLength

			sinTheta, cosTheta := float32(math.Sin(float64(theta))), float32(math.Cos(float64(theta)))
			sinPhi, cosPhi := float32(math.Sin(float64(phi))), float32(math.Cos(float64(phi)))

			p := Vertex3{
				X: -radius * cosPhi * sinTheta,
				Y: radius * cosTheta,
				Z: radius * sinPhi * sinTheta,
			}
			m.Positions = append(m.Positions, p)
			m.Normals = append(m.Normals, p.normalize())
		}
	}

	for iy := uint32(0); iy < heightSegments; iy++ {
		for ix := uint32(0); ix < widthSegments; ix++ {
			a := iy*rowStride + ix
			b := a + 1
			c := a + rowStride
			d := c + 1
			if iy != 0 {
				m.Indices = append(m.Indices, a, c, b)
			}
			if iy != heightSegments-1 {
				m.Indices = append(m.Indices, b, c, d)
			}
		}
	}
	return m
}
