package face

import (
	"context"
	"fmt"
	"math"

	"github.com/latentforge/animate/tensor"
)

// Landmarker estimates an ordered, fixed-length facial landmark array for a
// single frame. Coordinates are normalized to [0,1]; callers scale them by
// the frame resolution.
type Landmarker interface {
	Landmarks(ctx context.Context, frame *tensor.Array, resolution int) ([]Point, error)
}

// Landmark index ranges into the 68-point face subset.
const (
	leftEyeStart  = 36
	leftEyeEnd    = 42
	rightEyeStart = 42
	rightEyeEnd   = 48
	mouthStart    = 48
	mouthEnd      = 68
)

// GazeOptions configures the gaze conditioning pipeline.
type GazeOptions struct {
	// IncludeHead widens the per-frame face crop to keep the hairline.
	IncludeHead bool
}

// GazeMouthPatches builds the sparse gaze/mouth conditioning signal for a
// control clip: each frame is reduced to its face region, then to three
// (H/4, W/4) patches centered on the mean positions of the left eye, right
// eye and mouth landmarks. It returns the face-cropped clip and the sparse
// patch clip, both at target resolution.
func GazeMouthPatches(ctx context.Context, control *tensor.Array, target Size, det Detector, lm Landmarker, opts GazeOptions) (cropped, gaze *tensor.Array, err error) {
	cropped, err = moveFaces(ctx, control, target, det, opts)
	if err != nil {
		return nil, nil, err
	}

	gaze = tensor.ZerosLike(cropped)
	for i := 0; i < cropped.Dim(0); i++ {
		pts, err := scaledLandmarks(ctx, lm, cropped, i, target)
		if err != nil {
			return nil, nil, err
		}
		for _, span := range [][2]int{
			{leftEyeStart, leftEyeEnd},
			{rightEyeStart, rightEyeEnd},
			{mouthStart, mouthEnd},
		} {
			mean := meanPoint(pts[span[0]:span[1]])
			xmin, xmax, ymin, ymax := patchBounds(mean, target.Height, target.Width)
			copyRegion(gaze, cropped, i, ymin, ymax, xmin, xmax)
		}
	}
	return cropped, gaze, nil
}

// ConditionFace is the eye-region variant of GazeMouthPatches: instead of
// fixed-size patches it keeps the tight bounding box over both eyes' landmark
// points and zeroes everything else.
func ConditionFace(ctx context.Context, control *tensor.Array, target Size, det Detector, lm Landmarker, opts GazeOptions) (cropped, gaze *tensor.Array, err error) {
	cropped, err = moveFaces(ctx, control, target, det, opts)
	if err != nil {
		return nil, nil, err
	}

	gaze = tensor.ZerosLike(cropped)
	for i := 0; i < cropped.Dim(0); i++ {
		pts, err := scaledLandmarks(ctx, lm, cropped, i, target)
		if err != nil {
			return nil, nil, err
		}
		eyes := pts[leftEyeStart:rightEyeEnd]
		xmin, ymin := math.Inf(1), math.Inf(1)
		xmax, ymax := math.Inf(-1), math.Inf(-1)
		for _, p := range eyes {
			xmin = math.Min(xmin, p.X)
			xmax = math.Max(xmax, p.X)
			ymin = math.Min(ymin, p.Y)
			ymax = math.Max(ymax, p.Y)
		}
		copyRegion(gaze, cropped, i, int(ymin), int(ymax), int(xmin), int(xmax))
	}
	return cropped, gaze, nil
}

// moveFaces detects a face per frame and applies MoveFace to each, so every
// frame keeps only its own face region. Frames without a detection come out
// blacked out.
func moveFaces(ctx context.Context, control *tensor.Array, target Size, det Detector, opts GazeOptions) (*tensor.Array, error) {
	d, err := det.Detect(ctx, control)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	out := make([]*tensor.Array, control.Dim(0))
	for i := range out {
		var rect *Rect
		if r, ok := d.RectFor(i); ok {
			rect = &r
		}
		frame := control.Frame(i).Unsqueeze()
		out[i] = MoveFace(frame, target, rect, MoveFaceOptions{IncludeHead: opts.IncludeHead})
	}
	return tensor.Concat(out...), nil
}

func scaledLandmarks(ctx context.Context, lm Landmarker, frames *tensor.Array, i int, target Size) ([]Point, error) {
	frame := frames.Frame(i).Unsqueeze()
	pts, err := lm.Landmarks(ctx, frame, target.Height)
	if err != nil {
		return nil, fmt.Errorf("landmarks for frame %d: %w", i, err)
	}
	if len(pts) < mouthEnd {
		return nil, fmt.Errorf("landmarks for frame %d: got %d points, need %d", i, len(pts), mouthEnd)
	}
	scaled := make([]Point, len(pts))
	for j, p := range pts {
		scaled[j] = Point{X: p.X * float64(target.Height), Y: p.Y * float64(target.Height)}
	}
	return scaled, nil
}

func meanPoint(pts []Point) Point {
	var m Point
	for _, p := range pts {
		m.X += p.X
		m.Y += p.Y
	}
	m.X /= float64(len(pts))
	m.Y /= float64(len(pts))
	return m
}

// patchBounds returns a (H/4, W/4) region centered on p, clamped to the
// frame.
func patchBounds(p Point, height, width int) (xmin, xmax, ymin, ymax int) {
	halfH := float64(height) / 8
	halfW := float64(width) / 8
	xmin = int(math.Max(0, p.X-halfW))
	xmax = int(math.Min(float64(width), p.X+halfW))
	ymin = int(math.Max(0, p.Y-halfH))
	ymax = int(math.Min(float64(height), p.Y+halfH))
	return xmin, xmax, ymin, ymax
}

// copyRegion copies all channels of the region from src frame i into dst.
func copyRegion(dst, src *tensor.Array, i, ymin, ymax, xmin, xmax int) {
	for ch := 0; ch < src.Dim(1); ch++ {
		for y := ymin; y < ymax; y++ {
			for x := xmin; x < xmax; x++ {
				dst.Set(src.At(i, ch, y, x), i, ch, y, x)
			}
		}
	}
}
