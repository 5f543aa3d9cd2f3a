package face

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentforge/animate/tensor"
)

// stubLandmarker returns the same normalized landmark set for every frame.
type stubLandmarker struct {
	points []Point
}

func (s *stubLandmarker) Landmarks(ctx context.Context, frame *tensor.Array, resolution int) ([]Point, error) {
	return s.points, nil
}

// centeredLandmarks builds a 68-point set with the eyes and mouth at fixed
// normalized positions.
func centeredLandmarks() []Point {
	pts := make([]Point, 68)
	for i := range pts {
		pts[i] = Point{X: 0.5, Y: 0.5}
	}
	for i := leftEyeStart; i < leftEyeEnd; i++ {
		pts[i] = Point{X: 0.35, Y: 0.4}
	}
	for i := rightEyeStart; i < rightEyeEnd; i++ {
		pts[i] = Point{X: 0.65, Y: 0.4}
	}
	for i := mouthStart; i < mouthEnd; i++ {
		pts[i] = Point{X: 0.5, Y: 0.7}
	}
	return pts
}

func TestGazeMouthPatches(t *testing.T) {
	control := tensor.Ones(2, 3, 64, 64)
	target := Size{Height: 64, Width: 64}
	det := &stubDetector{results: []Detections{{
		ImageIDs: []int{0, 1},
		Rects: []Rect{
			{Left: 0, Top: 0, Right: 64, Bottom: 64},
			{Left: 0, Top: 0, Right: 64, Bottom: 64},
		},
	}}}
	lm := &stubLandmarker{points: centeredLandmarks()}

	cropped, gaze, err := GazeMouthPatches(context.Background(), control, target, det, lm, GazeOptions{})
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 64, 64}, cropped.Shape())
	require.Equal(t, []int{2, 3, 64, 64}, gaze.Shape())

	// Left eye at (0.35, 0.4)*64 = (22.4, 25.6): patch is (H/4, W/4) around
	// it, so its center pixel survives.
	require.Equal(t, float32(1), gaze.At(0, 0, 25, 22))
	// Mouth at (0.5, 0.7)*64 = (32, 44.8).
	require.Equal(t, float32(1), gaze.At(0, 0, 44, 32))
	// Far corner is outside every patch.
	require.Equal(t, float32(0), gaze.At(0, 0, 2, 2))
	require.Equal(t, float32(0), gaze.At(0, 0, 62, 62))
}

func TestGazeMouthPatchesTooFewLandmarks(t *testing.T) {
	control := tensor.Ones(1, 3, 64, 64)
	det := &stubDetector{results: []Detections{{ImageIDs: []int{0}, Rects: []Rect{{Right: 64, Bottom: 64}}}}}
	lm := &stubLandmarker{points: make([]Point, 10)}

	_, _, err := GazeMouthPatches(context.Background(), control, Size{Height: 64, Width: 64}, det, lm, GazeOptions{})
	require.Error(t, err)
}

func TestConditionFace(t *testing.T) {
	control := tensor.Ones(1, 3, 64, 64)
	target := Size{Height: 64, Width: 64}
	det := &stubDetector{results: []Detections{{
		ImageIDs: []int{0},
		Rects:    []Rect{{Left: 0, Top: 0, Right: 64, Bottom: 64}},
	}}}
	lm := &stubLandmarker{points: centeredLandmarks()}

	_, gaze, err := ConditionFace(context.Background(), control, target, det, lm, GazeOptions{})
	require.NoError(t, err)

	// The eye bounding box spans x in [22.4, 41.6], y fixed at 25.6: the box
	// collapses vertically, so nothing is kept outside it and a pixel inside
	// the horizontal span but off the eye row stays zero.
	require.Equal(t, float32(0), gaze.At(0, 0, 50, 30))
	require.Equal(t, float32(0), gaze.At(0, 0, 2, 2))
}

func TestMoveFacesBlacksOutMissingFrames(t *testing.T) {
	control := tensor.Ones(2, 1, 64, 64)
	det := &stubDetector{results: []Detections{{
		ImageIDs: []int{0},
		Rects:    []Rect{{Left: 16, Top: 16, Right: 48, Bottom: 48}},
	}}}

	got, err := moveFaces(context.Background(), control, Size{Height: 64, Width: 64}, det, GazeOptions{})
	require.NoError(t, err)

	// Frame 0 keeps its face region.
	require.Equal(t, float32(1), got.At(0, 0, 32, 32))
	// Frame 1 had no detection: at most the corner stub survives.
	var sum float32
	for y := 4; y < 64; y++ {
		for x := 4; x < 64; x++ {
			sum += got.At(1, 0, y, x)
		}
	}
	require.Zero(t, sum)
}
