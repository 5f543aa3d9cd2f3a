package export

import (
	"image"

	"golang.org/x/image/draw"
)

// PadToSquare pads the shorter side of img with black so the result is
// square, splitting the padding evenly with the extra pixel on the far side.
func PadToSquare(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}

	var offset image.Point
	side := max(w, h)
	if w < h {
		offset.X = (h - w) / 2
	} else {
		offset.Y = (w - h) / 2
	}

	out := image.NewNRGBA(image.Rect(0, 0, side, side))
	dst := image.Rect(offset.X, offset.Y, offset.X+w, offset.Y+h)
	draw.Draw(out, dst, img, b.Min, draw.Src)
	return out
}
