package path

import (
	"fmt"
	"strconv"
	"strings"
)

// AddFromSimplifiedSVG parses a restricted SVG path-data grammar and
// appends the resulting contours to p. Simplified SVG, as produced by
// Inkscape with "Force Repeat Commands" and absolute coordinates
// enabled, allows only:
//
//	M x,y       moveto
//	L x,y       lineto
//	H x         horizontal lineto
//	V y         vertical lineto
//	C x1,y1 x2,y2 x,y   cubic bezier to
//	Q x1,y1 x,y         quadratic bezier to
//	Z                   close path
//
// All coordinates are absolute, and each instruction must be repeated
// explicitly rather than relying on an implicit repeat of the previous
// command letter.
func (p *Path) AddFromSimplifiedSVG(svg string) error {
	toks, err := tokenizeSVG(svg)
	if err != nil {
		return err
	}
	i := 0
	next := func() (float32, error) {
		if i >= len(toks) {
			return 0, fmt.Errorf("path: unexpected end of SVG data")
		}
		v, err := strconv.ParseFloat(toks[i], 32)
		i++
		return float32(v), err
	}

	for i < len(toks) {
		cmd := toks[i]
		i++
		switch cmd {
		case "M":
			x, err := next()
			if err != nil {
				return err
			}
			y, err := next()
			if err != nil {
				return err
			}
			p.MoveTo(Vertex{X: x, Y: y})
		case "L":
			x, err := next()
			if err != nil {
				return err
			}
			y, err := next()
			if err != nil {
				return err
			}
			p.LineTo(Vertex{X: x, Y: y})
		case "H":
			x, err := next()
			if err != nil {
				return err
			}
			p.LineHorizTo(x)
		case "V":
			y, err := next()
			if err != nil {
				return err
			}
			p.LineVertTo(y)
		case "Q":
			c1x, err := next()
			if err != nil {
				return err
			}
			c1y, err := next()
			if err != nil {
				return err
			}
			ex, err := next()
			if err != nil {
				return err
			}
			ey, err := next()
			if err != nil {
				return err
			}
			p.QuadBezierTo(Vertex{X: c1x, Y: c1y}, Vertex{X: ex, Y: ey})
		case "C":
			c1x, err := next()
			if err != nil {
				return err
			}
			c1y, err := next()
			if err != nil {
				return err
			}
			c2x, err := next()
			if err != nil {
				return err
			}
			c2y, err := next()
			if err != nil {
				return err
			}
			ex, err := next()
			if err != nil {
				return err
			}
			ey, err := next()
			if err != nil {
				return err
			}
			p.CubicBezierTo(Vertex{X: c1x, Y: c1y}, Vertex{X: c2x, Y: c2y}, Vertex{X: ex, Y: ey})
		case "Z":
			p.Close()
		default:
			return fmt.Errorf("path: unrecognized SVG instruction %q", cmd)
		}
	}
	return nil
}

// ToSimplifiedSVG renders p back into the simplified SVG grammar
// AddFromSimplifiedSVG accepts: absolute coordinates, one M per contour,
// each instruction written out explicitly rather than relying on an
// implicit repeat. H and V are not re-emitted separately -- LineHorizTo
// and LineVertTo fold into a plain line segment at append time (see
// path.go's lastPoint) -- so re-parsing the result reproduces the same
// command list only modulo that merging, not the original text
// byte-for-byte.
func (p *Path) ToSimplifiedSVG() string {
	var b strings.Builder
	for ci, c := range p.contours {
		if ci > 0 {
			b.WriteByte(' ')
		}
		for i, cmd := range c.commands {
			if i > 0 {
				b.WriteByte(' ')
			}
			switch cmd.kind {
			case cmdMoveTo:
				b.WriteString("M ")
				writeSVGPoint(&b, cmd.p)
			case cmdLineTo:
				b.WriteString("L ")
				writeSVGPoint(&b, cmd.p)
			case cmdQuadBezierTo:
				b.WriteString("Q ")
				writeSVGPoint(&b, cmd.c1)
				b.WriteByte(' ')
				writeSVGPoint(&b, cmd.p)
			case cmdCubicBezierTo:
				b.WriteString("C ")
				writeSVGPoint(&b, cmd.c1)
				b.WriteByte(' ')
				writeSVGPoint(&b, cmd.c2)
				b.WriteByte(' ')
				writeSVGPoint(&b, cmd.p)
			case cmdClosePath:
				b.WriteString("Z")
			}
		}
	}
	return b.String()
}

func writeSVGPoint(b *strings.Builder, v Vertex) {
	b.WriteString(strconv.FormatFloat(float64(v.X), 'g', -1, 32))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(float64(v.Y), 'g', -1, 32))
}

// tokenizeSVG splits simplified SVG path data into command letters and
// numeric tokens, treating commas and whitespace as equivalent
// separators the way SVG path-data grammar does.
func tokenizeSVG(svg string) ([]string, error) {
	var toks []string
	var num strings.Builder

	flush := func() {
		if num.Len() > 0 {
			toks = append(toks, num.String())
			num.Reset()
		}
	}

	for _, r := range svg {
		switch {
		case r == 'M' || r == 'L' || r == 'H' || r == 'V' || r == 'C' || r == 'Q' || r == 'Z':
			flush()
			toks = append(toks, string(r))
		case r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		case r == '-' || r == '.' || r == '+' || (r >= '0' && r <= '9') || r == 'e' || r == 'E':
			num.WriteRune(r)
		default:
			return nil, fmt.Errorf("path: unexpected character %q in SVG data", r)
		}
	}
	flush()
	return toks, nil
}
