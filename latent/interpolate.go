// Package latent blends diffusion latents. Spherical interpolation follows
// the slerp formulation used for latent walks, with a linear fallback when
// the inputs are close to parallel.
package latent

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/latentforge/animate/tensor"
)

// DotThreshold is the |cos| above which two latents are treated as parallel
// and slerp degrades to lerp to avoid dividing by a vanishing sin(omega).
const DotThreshold = 0.9995

// Interpolator selects the blend used wherever two latents meet, e.g. motion
// LoRA blending and sliding-window stitching. The zero value is linear.
type Interpolator struct {
	Spherical bool
}

// Interpolate blends v0 and v1 at position t in [0,1].
func (ip Interpolator) Interpolate(v0, v1 *tensor.Array, t float64) *tensor.Array {
	if ip.Spherical {
		return Slerp(v0, v1, t)
	}
	return Lerp(v0, v1, t)
}

// Lerp returns (1-t)*v0 + t*v1.
func Lerp(v0, v1 *tensor.Array, t float64) *tensor.Array {
	return tensor.Axpby(float32(1-t), v0, float32(t), v1)
}

// Slerp spherically interpolates between v0 and v1 treated as flat vectors.
// Zero-norm inputs are the caller's responsibility.
func Slerp(v0, v1 *tensor.Array, t float64) *tensor.Array {
	a := toFloat64(v0.Data())
	b := toFloat64(v1.Data())

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	dot := floats.Dot(a, b) / (na * nb)

	if math.Abs(dot) > DotThreshold {
		return Lerp(v0, v1, t)
	}

	omega := math.Acos(dot)
	sinOmega := math.Sin(omega)
	c0 := math.Sin((1-t)*omega) / sinOmega
	c1 := math.Sin(t*omega) / sinOmega
	return tensor.Axpby(float32(c0), v0, float32(c1), v1)
}

func toFloat64(s []float32) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}
