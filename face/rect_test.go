package face

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRectSquare(t *testing.T) {
	cases := []struct {
		name string
		in   Rect
		want Rect
	}{
		{
			name: "wider than tall",
			in:   Rect{Left: 100, Top: 100, Right: 200, Bottom: 150},
			want: Rect{Left: 100, Top: 75, Right: 200, Bottom: 175},
		},
		{
			name: "taller than wide",
			in:   Rect{Left: 10, Top: 0, Right: 20, Bottom: 40},
			want: Rect{Left: -5, Top: 0, Right: 35, Bottom: 40},
		},
		{
			name: "already square",
			in:   Rect{Left: 0, Top: 0, Right: 10, Bottom: 10},
			want: Rect{Left: 0, Top: 0, Right: 10, Bottom: 10},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Square()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unexpected square (-want +got):\n%s", diff)
			}
			require.InDelta(t, got.Width(), got.Height(), 1)
		})
	}
}

func TestRectSquareClipStaysInBounds(t *testing.T) {
	r := Rect{Left: 100, Top: 100, Right: 200, Bottom: 150}.Square().Clip(640, 480)
	require.GreaterOrEqual(t, r.Left, 0.0)
	require.GreaterOrEqual(t, r.Top, 0.0)
	require.LessOrEqual(t, r.Right, 640.0)
	require.LessOrEqual(t, r.Bottom, 480.0)
	require.Greater(t, r.Width(), 0.0)
	require.Greater(t, r.Height(), 0.0)
}

func TestRectClip(t *testing.T) {
	r := Rect{Left: -10, Top: -5, Right: 700, Bottom: 500}.Clip(640, 480)
	require.Equal(t, Rect{Left: 0, Top: 0, Right: 640, Bottom: 480}, r)
}

func TestRectUnion(t *testing.T) {
	a := Rect{Left: 10, Top: 20, Right: 30, Bottom: 40}
	b := Rect{Left: 5, Top: 25, Right: 50, Bottom: 35}
	require.Equal(t, Rect{Left: 5, Top: 20, Right: 50, Bottom: 40}, a.Union(b))
}

func TestRectCenterFloors(t *testing.T) {
	r := Rect{Left: 0, Top: 0, Right: 5, Bottom: 7}
	require.Equal(t, Point{X: 2, Y: 3}, r.Center())
}

func TestCenterSquare(t *testing.T) {
	// Point near the left edge: the square is limited by the distance to it.
	r := centerSquare(Point{X: 50, Y: 240}, 640, 480)
	require.Equal(t, Rect{Left: 0, Top: 190, Right: 100, Bottom: 290}, r)
}

func TestInscribedSquare(t *testing.T) {
	length, center := inscribedSquare(Rect{Left: 300, Top: 220, Right: 340, Bottom: 260}, 640, 480)
	require.Equal(t, Point{X: 320, Y: 240}, center)
	require.Equal(t, 480.0, length)
}
