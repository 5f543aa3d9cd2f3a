package face

import (
	"context"
	"fmt"
	"math"

	"github.com/latentforge/animate/tensor"
)

// Detector finds faces in a batch of frames. ImageIDs pairs each rect with
// the frame it was found in; an empty result means no face anywhere.
type Detector interface {
	Detect(ctx context.Context, frames *tensor.Array) (Detections, error)
}

// Detections is the raw detector output for a batch.
type Detections struct {
	ImageIDs []int
	Rects    []Rect
}

// RectFor returns the first rect found in frame i.
func (d Detections) RectFor(i int) (Rect, bool) {
	for j, id := range d.ImageIDs {
		if id == i {
			return d.Rects[j], true
		}
	}
	return Rect{}, false
}

// Empty reports whether no face was detected at all.
func (d Detections) Empty() bool { return len(d.ImageIDs) == 0 }

// FindingKind tags a Finding.
type FindingKind int

const (
	// NoFace means neither probed frame had a detection.
	NoFace FindingKind = iota
	// SingleFace means only the first frame had a detection.
	SingleFace
	// DualFace means both the first and the last probed frame had one.
	DualFace
)

// Finding summarizes detector output over the first and last frame of a clip.
type Finding struct {
	Kind  FindingKind
	First Rect
	Last  Rect
}

// classify probes the first and last frame of a clip and folds the detector
// output into a single Finding.
func classify(ctx context.Context, det Detector, frames *tensor.Array) (Finding, error) {
	n := frames.Dim(0)
	probe := frames
	if n > 1 {
		probe = tensor.Concat(frames.Frame(0).Unsqueeze(), frames.Frame(n-1).Unsqueeze())
	}
	d, err := det.Detect(ctx, probe)
	if err != nil {
		return Finding{}, fmt.Errorf("detect faces: %w", err)
	}
	if d.Empty() {
		return Finding{Kind: NoFace}, nil
	}

	first, hasFirst := d.RectFor(0)
	last, hasLast := d.RectFor(1)
	switch {
	case hasFirst && hasLast && n > 1:
		return Finding{Kind: DualFace, First: first, Last: last}, nil
	case hasFirst:
		return Finding{Kind: SingleFace, First: first}, nil
	default:
		return Finding{Kind: NoFace}, nil
	}
}

// CropFaceCenter crops every frame of a clip to target, centered on the face
// when one is reliably present. A face must be found in both the first and
// last frame; the centered crop is then re-verified on the last frame and
// abandoned if the face was cut off. Single-frame clips center on their only
// detection. Everything else degrades to a plain center crop.
func CropFaceCenter(ctx context.Context, frames *tensor.Array, target Size, det Detector, centerOnFace bool) (*tensor.Array, error) {
	if !centerOnFace {
		return CropResize(frames, target, nil, nil), nil
	}

	f, err := classify(ctx, det, frames)
	if err != nil {
		return nil, err
	}

	switch f.Kind {
	case DualFace:
		center := f.First.Center()
		centered := CropResize(frames, target, nil, &center)

		n := centered.Dim(0)
		recheck, err := det.Detect(ctx, centered.Frame(n-1).Unsqueeze())
		if err != nil {
			return nil, fmt.Errorf("re-verify last frame: %w", err)
		}
		if recheck.Empty() {
			return CropResize(frames, target, nil, nil), nil
		}
		return centered, nil

	case SingleFace:
		if frames.Dim(0) == 1 {
			center := f.First.Center()
			return CropResize(frames, target, nil, &center), nil
		}
		return CropResize(frames, target, nil, nil), nil

	default:
		return CropResize(frames, target, nil, nil), nil
	}
}

// CropQuarterFace crops a clip so the union of all detected faces sits
// centered at roughly a quarter of the output area. The union box is expanded
// to the largest square inscribed at its center, then tightened edge by edge:
// sides to 0.6x the union width, top to its full height, bottom to 0.6x its
// height. Frames without any detection, or clips with none at all, degrade to
// a plain center crop.
func CropQuarterFace(ctx context.Context, frames *tensor.Array, target Size, det Detector, centerOnFace bool) (*tensor.Array, error) {
	if !centerOnFace {
		return CropResize(frames, target, nil, nil), nil
	}

	d, err := det.Detect(ctx, frames)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if d.Empty() {
		return CropResize(frames, target, nil, nil), nil
	}

	height, width := frames.Dim(2), frames.Dim(3)

	union := Rect{Left: float64(width), Top: float64(height)}
	for i := 0; i < frames.Dim(0); i++ {
		if r, ok := d.RectFor(i); ok {
			union = union.Union(r)
		}
	}

	dh, dw := union.Height(), union.Width()
	length, center := inscribedSquare(union, width, height)
	crop := Rect{
		Left:   center.X - math.Min(math.Floor(length/2), dw*0.6),
		Right:  center.X + math.Min(math.Floor(length/2), dw*0.6),
		Top:    center.Y - math.Min(math.Floor(length/2), dh*1.0),
		Bottom: center.Y + math.Min(math.Floor(length/2), dh*0.6),
	}
	return CropResize(frames, target, &crop, nil), nil
}
