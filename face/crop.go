package face

import (
	"math/rand/v2"

	"github.com/latentforge/animate/tensor"
)

// Size is a (height, width) target resolution.
type Size struct {
	Height, Width int
}

// DefaultSize is the conditioning resolution used by the pipeline.
var DefaultSize = Size{Height: 512, Width: 512}

// patchGridDim is the patch-mask grid: the masked frame is partitioned into
// patchGridDim x patchGridDim square patches.
const patchGridDim = 16

// CropResize crops a square region of an NCHW frame batch and resizes it
// bilinearly to target. The region comes from, in order of precedence: an
// explicit rect padded to a square and clipped; a center point expanded to
// the largest inscribed square; the default center square over the short
// edge.
func CropResize(frames *tensor.Array, target Size, rect *Rect, center *Point) *tensor.Array {
	height, width := frames.Dim(2), frames.Dim(3)

	var r Rect
	switch {
	case rect != nil:
		r = rect.Square().Clip(width, height)
	case center != nil:
		r = centerSquare(*center, width, height)
	default:
		short := min(height, width)
		left := (width - short) / 2
		top := (height - short) / 2
		r = Rect{Left: float64(left), Top: float64(top), Right: float64(left + short), Bottom: float64(top + short)}
	}

	cropped := tensor.CropHW(frames, int(r.Top), int(r.Bottom), int(r.Left), int(r.Right))
	return tensor.ResizeBilinear(cropped, target.Height, target.Width)
}

// MoveFaceOptions configures MoveFace.
type MoveFaceOptions struct {
	// IncludeHead widens the region upward by 40% and downward by 10% of the
	// face height so the hairline is kept.
	IncludeHead bool
	// UseMaskRate is the probability that patch masking is applied at all;
	// MaskRate is the per-patch zeroing probability once it is.
	UseMaskRate float64
	MaskRate    float64
	// Rand supplies the mask draws. Nil disables masking.
	Rand *rand.Rand
}

// MoveFace keeps only the face region of each frame, zeroes everything else
// in place of cropping, and resizes the result to target. With masking
// enabled, the output is partitioned into a 16x16 grid of patches and each
// patch is independently zeroed with probability MaskRate.
func MoveFace(frames *tensor.Array, target Size, rect *Rect, opts MoveFaceOptions) *tensor.Array {
	b, c := frames.Dim(0), frames.Dim(1)
	height, width := frames.Dim(2), frames.Dim(3)

	var r Rect
	if rect != nil {
		r = rect.Square()
		if opts.IncludeHead {
			dh := r.Height()
			r.Top -= 0.4 * dh
			r.Bottom += 0.1 * dh
		}
		r = r.Clip(width, height)
	} else {
		// No face: keep only a token corner region so the frame reads as
		// fully blacked out downstream.
		r = Rect{Right: 2, Bottom: 2}
	}

	kept := tensor.ZerosLike(frames)
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			for y := int(r.Top); y < int(r.Bottom); y++ {
				for x := int(r.Left); x < int(r.Right); x++ {
					kept.Set(frames.At(n, ch, y, x), n, ch, y, x)
				}
			}
		}
	}

	resized := tensor.ResizeBilinear(kept, target.Height, target.Width)

	if opts.Rand != nil && opts.MaskRate != 0 && opts.Rand.Float64() < opts.UseMaskRate {
		applyPatchMask(resized, opts.MaskRate, opts.Rand)
	}
	return resized
}

func applyPatchMask(frames *tensor.Array, maskRate float64, rng *rand.Rand) {
	b, c := frames.Dim(0), frames.Dim(1)
	height, width := frames.Dim(2), frames.Dim(3)
	patch := height / patchGridDim

	for i := 0; i < patchGridDim; i++ {
		for j := 0; j < patchGridDim; j++ {
			if rng.Float64() >= maskRate {
				continue
			}
			for n := 0; n < b; n++ {
				for ch := 0; ch < c; ch++ {
					for y := i * patch; y < (i+1)*patch && y < height; y++ {
						for x := j * patch; x < (j+1)*patch && x < width; x++ {
							frames.Set(0, n, ch, y, x)
						}
					}
				}
			}
		}
	}
}
