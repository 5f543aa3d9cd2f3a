// Package diffusion implements DDIM inversion: walking a clean video latent
// backward through a scheduler's noise schedule to recover the deterministic
// noise trajectory that reproduces it. The denoising network and text encoder
// are external collaborators behind interfaces.
package diffusion

import (
	"fmt"
	"math"
)

// BetaSchedule selects how the noise variances are spaced over training
// timesteps.
type BetaSchedule string

const (
	BetaLinear       BetaSchedule = "linear"
	BetaScaledLinear BetaSchedule = "scaled_linear"
)

// SchedulerConfig mirrors the DDIM schedule parameters of the trained model.
type SchedulerConfig struct {
	NumTrainTimesteps int
	BetaStart         float64
	BetaEnd           float64
	BetaSchedule      BetaSchedule
	// SetAlphaToOne uses 1.0 as the cumulative alpha below timestep zero
	// instead of the schedule's first value.
	SetAlphaToOne bool
	// StepsOffset shifts every inference timestep, matching the offset the
	// pipeline was trained with.
	StepsOffset int
}

// DefaultSchedulerConfig returns the schedule used by the stable-diffusion
// family of backbones.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		NumTrainTimesteps: 1000,
		BetaStart:         0.00085,
		BetaEnd:           0.012,
		BetaSchedule:      BetaScaledLinear,
	}
}

// Scheduler holds a precomputed noise schedule and the currently configured
// inference timestep sequence.
type Scheduler struct {
	cfg               SchedulerConfig
	alphasCumprod     []float64
	finalAlphaCumprod float64
	timesteps         []int
	inferenceSteps    int
}

// NewScheduler precomputes cumulative alphas for the configured schedule.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.NumTrainTimesteps <= 0 {
		return nil, fmt.Errorf("scheduler: NumTrainTimesteps must be positive, got %d", cfg.NumTrainTimesteps)
	}

	n := cfg.NumTrainTimesteps
	alphas := make([]float64, n)
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n-1)
		var beta float64
		switch cfg.BetaSchedule {
		case BetaLinear:
			beta = cfg.BetaStart + (cfg.BetaEnd-cfg.BetaStart)*frac
		case BetaScaledLinear, "":
			s := math.Sqrt(cfg.BetaStart) + (math.Sqrt(cfg.BetaEnd)-math.Sqrt(cfg.BetaStart))*frac
			beta = s * s
		default:
			return nil, fmt.Errorf("scheduler: unknown beta schedule %q", cfg.BetaSchedule)
		}
		alphas[i] = 1 - beta
	}

	cumprod := make([]float64, n)
	acc := 1.0
	for i, a := range alphas {
		acc *= a
		cumprod[i] = acc
	}

	final := cumprod[0]
	if cfg.SetAlphaToOne {
		final = 1.0
	}

	return &Scheduler{
		cfg:               cfg,
		alphasCumprod:     cumprod,
		finalAlphaCumprod: final,
		inferenceSteps:    n,
	}, nil
}

// SetTimesteps configures n inference steps, producing the descending
// timestep sequence. n not dividing the training timesteps evenly produces a
// slightly uneven last stride; this is accepted, not flagged.
func (s *Scheduler) SetTimesteps(n int) error {
	if n <= 0 || n > s.cfg.NumTrainTimesteps {
		return fmt.Errorf("scheduler: inference steps %d out of range (1..%d)", n, s.cfg.NumTrainTimesteps)
	}
	ratio := s.cfg.NumTrainTimesteps / n
	ts := make([]int, n)
	for i := 0; i < n; i++ {
		ts[i] = (n-1-i)*ratio + s.cfg.StepsOffset
	}
	s.timesteps = ts
	s.inferenceSteps = n
	return nil
}

// Timesteps returns the configured inference timesteps in descending order.
func (s *Scheduler) Timesteps() []int { return s.timesteps }

// InferenceSteps returns the configured number of inference steps.
func (s *Scheduler) InferenceSteps() int { return s.inferenceSteps }

// TrainTimesteps returns the schedule's training timestep count.
func (s *Scheduler) TrainTimesteps() int { return s.cfg.NumTrainTimesteps }

// AlphaCumprod returns the cumulative alpha at timestep t, or the configured
// final value for t below zero.
func (s *Scheduler) AlphaCumprod(t int) float64 {
	if t < 0 {
		return s.finalAlphaCumprod
	}
	return s.alphasCumprod[t]
}
