package tensor

import (
	"fmt"
	"math"
)

func checkSameShape(op string, a, b *Array) {
	if !SameShape(a, b) {
		panic(fmt.Sprintf("tensor: %s shape mismatch %v vs %v", op, a.shape, b.shape))
	}
}

// Add returns a + b elementwise.
func Add(a, b *Array) *Array {
	checkSameShape("Add", a, b)
	out := ZerosLike(a)
	for i := range a.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	return out
}

// Sub returns a - b elementwise.
func Sub(a, b *Array) *Array {
	checkSameShape("Sub", a, b)
	out := ZerosLike(a)
	for i := range a.data {
		out.data[i] = a.data[i] - b.data[i]
	}
	return out
}

// Mul returns a * b elementwise.
func Mul(a, b *Array) *Array {
	checkSameShape("Mul", a, b)
	out := ZerosLike(a)
	for i := range a.data {
		out.data[i] = a.data[i] * b.data[i]
	}
	return out
}

// MulScalar returns a * s.
func MulScalar(a *Array, s float32) *Array {
	out := ZerosLike(a)
	for i := range a.data {
		out.data[i] = a.data[i] * s
	}
	return out
}

// AddScalar returns a + s.
func AddScalar(a *Array, s float32) *Array {
	out := ZerosLike(a)
	for i := range a.data {
		out.data[i] = a.data[i] + s
	}
	return out
}

// AddScaled accumulates dst += s*src in place.
func AddScaled(dst *Array, s float32, src *Array) {
	checkSameShape("AddScaled", dst, src)
	for i := range dst.data {
		dst.data[i] += s * src.data[i]
	}
}

// Axpby returns alpha*a + beta*b elementwise.
func Axpby(alpha float32, a *Array, beta float32, b *Array) *Array {
	checkSameShape("Axpby", a, b)
	out := ZerosLike(a)
	for i := range a.data {
		out.data[i] = alpha*a.data[i] + beta*b.data[i]
	}
	return out
}

// Concat concatenates arrays along the leading dimension. All trailing
// dimensions must match.
func Concat(arrays ...*Array) *Array {
	if len(arrays) == 0 {
		panic("tensor: Concat of nothing")
	}
	first := arrays[0]
	rest := first.Len() / max(first.Dim(0), 1)
	total := 0
	for _, a := range arrays {
		if a.Len()/max(a.Dim(0), 1) != rest {
			panic(fmt.Sprintf("tensor: Concat trailing shape mismatch %v vs %v", first.shape, a.shape))
		}
		total += a.Dim(0)
	}
	shape := append([]int{total}, first.shape[1:]...)
	out := New(shape...)
	off := 0
	for _, a := range arrays {
		off += copy(out.data[off:], a.data)
	}
	return out
}

// ResizeBilinear resizes an NCHW array to (outH, outW) with bilinear
// sampling, align-corners=false. Matches the sampling used by
// torch.nn.functional.interpolate for conditioning frames.
func ResizeBilinear(src *Array, outH, outW int) *Array {
	if src.NDim() != 4 {
		panic(fmt.Sprintf("tensor: ResizeBilinear wants NCHW, got %v", src.shape))
	}
	b, c, inH, inW := src.Dim(0), src.Dim(1), src.Dim(2), src.Dim(3)
	out := New(b, c, outH, outW)
	if inH == outH && inW == outW {
		copy(out.data, src.data)
		return out
	}

	scaleH := float64(inH) / float64(outH)
	scaleW := float64(inW) / float64(outW)
	for oy := 0; oy < outH; oy++ {
		sy := (float64(oy)+0.5)*scaleH - 0.5
		y0 := int(math.Floor(sy))
		fy := sy - float64(y0)
		y1 := y0 + 1
		y0 = clampInt(y0, 0, inH-1)
		y1 = clampInt(y1, 0, inH-1)
		for ox := 0; ox < outW; ox++ {
			sx := (float64(ox)+0.5)*scaleW - 0.5
			x0 := int(math.Floor(sx))
			fx := sx - float64(x0)
			x1 := x0 + 1
			x0 = clampInt(x0, 0, inW-1)
			x1 = clampInt(x1, 0, inW-1)
			for n := 0; n < b; n++ {
				for ch := 0; ch < c; ch++ {
					v00 := float64(src.At(n, ch, y0, x0))
					v01 := float64(src.At(n, ch, y0, x1))
					v10 := float64(src.At(n, ch, y1, x0))
					v11 := float64(src.At(n, ch, y1, x1))
					top := v00 + (v01-v00)*fx
					bot := v10 + (v11-v10)*fx
					out.Set(float32(top+(bot-top)*fy), n, ch, oy, ox)
				}
			}
		}
	}
	return out
}

// CropHW returns the [top,bottom)x[left,right) spatial region of an NCHW
// array as a new array.
func CropHW(src *Array, top, bottom, left, right int) *Array {
	if src.NDim() != 4 {
		panic(fmt.Sprintf("tensor: CropHW wants NCHW, got %v", src.shape))
	}
	b, c := src.Dim(0), src.Dim(1)
	h, w := bottom-top, right-left
	out := New(b, c, h, w)
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					out.Set(src.At(n, ch, top+y, left+x), n, ch, y, x)
				}
			}
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
