package face

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/latentforge/animate/tensor"
)

func rampFrames(b, c, h, w int) *tensor.Array {
	a := tensor.New(b, c, h, w)
	for i := range a.Data() {
		a.Data()[i] = float32(i % 251)
	}
	return a
}

func TestCropResizeDefaultCenter(t *testing.T) {
	frames := rampFrames(1, 3, 480, 640)

	got := CropResize(frames, Size{Height: 480, Width: 480}, nil, nil)
	require.Equal(t, []int{1, 3, 480, 480}, got.Shape())

	// Landscape input: the central short-edge square, 80px off each side.
	want := tensor.CropHW(frames, 0, 480, 80, 560)
	if diff := cmp.Diff(want.Data(), got.Data()); diff != "" {
		t.Errorf("unexpected crop (-want +got):\n%s", diff)
	}
}

func TestCropResizeExplicitRect(t *testing.T) {
	frames := rampFrames(1, 1, 480, 640)
	rect := Rect{Left: 100, Top: 100, Right: 200, Bottom: 150}

	got := CropResize(frames, Size{Height: 100, Width: 100}, &rect, nil)
	require.Equal(t, []int{1, 1, 100, 100}, got.Shape())

	// Squared to (100,75)-(200,175), inside bounds, resize is identity.
	want := tensor.CropHW(frames, 75, 175, 100, 200)
	if diff := cmp.Diff(want.Data(), got.Data()); diff != "" {
		t.Errorf("unexpected crop (-want +got):\n%s", diff)
	}
}

func TestCropResizeCenterPoint(t *testing.T) {
	frames := rampFrames(1, 1, 480, 640)
	center := Point{X: 50, Y: 240}

	got := CropResize(frames, Size{Height: 100, Width: 100}, nil, &center)
	require.Equal(t, []int{1, 1, 100, 100}, got.Shape())

	want := tensor.CropHW(frames, 190, 290, 0, 100)
	if diff := cmp.Diff(want.Data(), got.Data()); diff != "" {
		t.Errorf("unexpected crop (-want +got):\n%s", diff)
	}
}

func TestMoveFaceKeepsOnlyFaceRegion(t *testing.T) {
	frames := tensor.Ones(1, 1, 64, 64)
	rect := Rect{Left: 16, Top: 16, Right: 32, Bottom: 32}

	got := MoveFace(frames, Size{Height: 64, Width: 64}, &rect, MoveFaceOptions{})
	require.Equal(t, []int{1, 1, 64, 64}, got.Shape())

	require.Equal(t, float32(1), got.At(0, 0, 20, 20))
	require.Equal(t, float32(0), got.At(0, 0, 8, 8))
	require.Equal(t, float32(0), got.At(0, 0, 40, 40))
}

func TestMoveFaceIncludeHead(t *testing.T) {
	frames := tensor.Ones(1, 1, 64, 64)
	rect := Rect{Left: 24, Top: 24, Right: 40, Bottom: 40}

	got := MoveFace(frames, Size{Height: 64, Width: 64}, &rect, MoveFaceOptions{IncludeHead: true})

	// Head padding extends the kept region upward by 0.4h: row 18 is inside.
	require.Equal(t, float32(1), got.At(0, 0, 18, 32))
	// And downward by 0.1h: row 40 is inside, row 44 is not.
	require.Equal(t, float32(1), got.At(0, 0, 40, 32))
	require.Equal(t, float32(0), got.At(0, 0, 44, 32))
}

func TestMoveFaceNoDetection(t *testing.T) {
	frames := tensor.Ones(1, 1, 64, 64)

	got := MoveFace(frames, Size{Height: 64, Width: 64}, nil, MoveFaceOptions{})

	// All but a 2x2 corner stub is zeroed.
	var sum float32
	for _, v := range got.Data() {
		sum += v
	}
	require.LessOrEqual(t, sum, float32(4))
}

func TestMoveFaceFullMask(t *testing.T) {
	frames := tensor.Ones(1, 3, 64, 64)
	rect := Rect{Left: 0, Top: 0, Right: 64, Bottom: 64}

	got := MoveFace(frames, Size{Height: 64, Width: 64}, &rect, MoveFaceOptions{
		MaskRate:    1,
		UseMaskRate: 1,
		Rand:        rand.New(rand.NewPCG(1, 2)),
	})

	for i, v := range got.Data() {
		require.Zero(t, v, "index %d", i)
	}
}

func TestMoveFaceMaskDisabledWithoutRand(t *testing.T) {
	frames := tensor.Ones(1, 1, 64, 64)
	rect := Rect{Left: 0, Top: 0, Right: 64, Bottom: 64}

	got := MoveFace(frames, Size{Height: 64, Width: 64}, &rect, MoveFaceOptions{MaskRate: 1, UseMaskRate: 1})
	for _, v := range got.Data() {
		require.Equal(t, float32(1), v)
	}
}
