// Package face computes deterministic crop, pad and mask geometry around
// detected faces to build fixed-size conditioning frames. Face detection and
// landmark estimation are external collaborators behind interfaces.
package face

import "math"

// Rect is a face rectangle in pixel coordinates, left/top inclusive,
// right/bottom exclusive.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Point is a 2D pixel coordinate.
type Point struct {
	X, Y float64
}

// Width returns the rectangle width.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the rectangle height.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Center returns the integer-floored center point.
func (r Rect) Center() Point {
	return Point{
		X: math.Floor((r.Left + r.Right) / 2),
		Y: math.Floor((r.Top + r.Bottom) / 2),
	}
}

// Square pads the shorter side equally on both ends so width equals height.
func (r Rect) Square() Rect {
	w, h := r.Width(), r.Height()
	if w < h {
		pad := math.Floor((h - w) / 2)
		r.Left -= pad
		r.Right += pad
	} else {
		pad := math.Floor((w - h) / 2)
		r.Top -= pad
		r.Bottom += pad
	}
	return r
}

// Clip constrains the rectangle to a width x height frame. The result always
// has non-negative size for rects that overlap the frame.
func (r Rect) Clip(width, height int) Rect {
	r.Left = math.Max(r.Left, 0)
	r.Top = math.Max(r.Top, 0)
	r.Right = math.Min(r.Right, float64(width))
	r.Bottom = math.Min(r.Bottom, float64(height))
	return r
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Left:   math.Min(r.Left, o.Left),
		Top:    math.Min(r.Top, o.Top),
		Right:  math.Max(r.Right, o.Right),
		Bottom: math.Max(r.Bottom, o.Bottom),
	}
}

// centerSquare returns the largest square centered on p that fits inside a
// width x height frame.
func centerSquare(p Point, width, height int) Rect {
	d := math.Min(math.Min(p.X, p.Y), math.Min(float64(width)-p.X, float64(height)-p.Y))
	return Rect{Left: p.X - d, Top: p.Y - d, Right: p.X + d, Bottom: p.Y + d}.Clip(width, height)
}

// inscribedSquare returns the side length and center of the largest square
// centered on r's center that fits inside a width x height frame.
func inscribedSquare(r Rect, width, height int) (length float64, center Point) {
	c := r.Center()
	d := math.Min(math.Min(c.X, c.Y), math.Min(float64(width)-c.X, float64(height)-c.Y))
	return 2 * d, c
}
