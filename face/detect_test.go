package face

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latentforge/animate/tensor"
)

// stubDetector returns queued detections, one per call.
type stubDetector struct {
	results []Detections
	err     error
	calls   int
}

func (s *stubDetector) Detect(ctx context.Context, frames *tensor.Array) (Detections, error) {
	if s.err != nil {
		return Detections{}, s.err
	}
	d := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return d, nil
}

func TestDetectionsRectFor(t *testing.T) {
	d := Detections{
		ImageIDs: []int{0, 0, 2},
		Rects: []Rect{
			{Left: 1, Top: 1, Right: 2, Bottom: 2},
			{Left: 3, Top: 3, Right: 4, Bottom: 4},
			{Left: 5, Top: 5, Right: 6, Bottom: 6},
		},
	}

	r, ok := d.RectFor(0)
	require.True(t, ok)
	require.Equal(t, 1.0, r.Left) // first detection wins

	_, ok = d.RectFor(1)
	require.False(t, ok)

	r, ok = d.RectFor(2)
	require.True(t, ok)
	require.Equal(t, 5.0, r.Left)
}

func TestCropFaceCenter(t *testing.T) {
	frames := rampFrames(4, 3, 480, 640)
	target := Size{Height: 64, Width: 64}
	faceRect := Rect{Left: 300, Top: 200, Right: 360, Bottom: 280}

	t.Run("disabled", func(t *testing.T) {
		det := &stubDetector{results: []Detections{{}}}
		got, err := CropFaceCenter(context.Background(), frames, target, det, false)
		require.NoError(t, err)
		require.Equal(t, []int{4, 3, 64, 64}, got.Shape())
		require.Zero(t, det.calls)
	})

	t.Run("no face falls back to center", func(t *testing.T) {
		det := &stubDetector{results: []Detections{{}}}
		got, err := CropFaceCenter(context.Background(), frames, target, det, true)
		require.NoError(t, err)

		want := CropResize(frames, target, nil, nil)
		require.Equal(t, want.Data(), got.Data())
	})

	t.Run("face in both frames centers the crop", func(t *testing.T) {
		both := Detections{ImageIDs: []int{0, 1}, Rects: []Rect{faceRect, faceRect}}
		det := &stubDetector{results: []Detections{both, both}}

		got, err := CropFaceCenter(context.Background(), frames, target, det, true)
		require.NoError(t, err)
		require.Equal(t, 2, det.calls)

		center := faceRect.Center()
		want := CropResize(frames, target, nil, &center)
		require.Equal(t, want.Data(), got.Data())
	})

	t.Run("face lost after centering falls back", func(t *testing.T) {
		both := Detections{ImageIDs: []int{0, 1}, Rects: []Rect{faceRect, faceRect}}
		det := &stubDetector{results: []Detections{both, {}}}

		got, err := CropFaceCenter(context.Background(), frames, target, det, true)
		require.NoError(t, err)

		want := CropResize(frames, target, nil, nil)
		require.Equal(t, want.Data(), got.Data())
	})

	t.Run("single frame single face", func(t *testing.T) {
		one := rampFrames(1, 3, 480, 640)
		det := &stubDetector{results: []Detections{{ImageIDs: []int{0}, Rects: []Rect{faceRect}}}}

		got, err := CropFaceCenter(context.Background(), one, target, det, true)
		require.NoError(t, err)

		center := faceRect.Center()
		want := CropResize(one, target, nil, &center)
		require.Equal(t, want.Data(), got.Data())
	})

	t.Run("detector error", func(t *testing.T) {
		det := &stubDetector{err: errors.New("detector offline")}
		_, err := CropFaceCenter(context.Background(), frames, target, det, true)
		require.Error(t, err)
	})
}

func TestCropQuarterFace(t *testing.T) {
	frames := rampFrames(2, 3, 480, 640)
	target := Size{Height: 64, Width: 64}

	t.Run("no face falls back to center", func(t *testing.T) {
		det := &stubDetector{results: []Detections{{}}}
		got, err := CropQuarterFace(context.Background(), frames, target, det, true)
		require.NoError(t, err)

		want := CropResize(frames, target, nil, nil)
		require.Equal(t, want.Data(), got.Data())
	})

	t.Run("union crop", func(t *testing.T) {
		det := &stubDetector{results: []Detections{{
			ImageIDs: []int{0, 1},
			Rects: []Rect{
				{Left: 300, Top: 220, Right: 340, Bottom: 260},
				{Left: 310, Top: 230, Right: 350, Bottom: 270},
			},
		}}}

		got, err := CropQuarterFace(context.Background(), frames, target, det, true)
		require.NoError(t, err)
		require.Equal(t, []int{2, 3, 64, 64}, got.Shape())
	})
}
