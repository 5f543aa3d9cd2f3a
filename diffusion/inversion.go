package diffusion

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/latentforge/animate/tensor"
)

// Denoiser is the trained denoising network. Predict returns the noise
// prediction for the latents at the given timestep, conditioned on the
// encoder hidden states.
type Denoiser interface {
	Predict(ctx context.Context, latents *tensor.Array, timestep int, encoderHiddenStates *tensor.Array) (*tensor.Array, error)
}

// PromptEncoder tokenizes and embeds a prompt string.
type PromptEncoder interface {
	Encode(ctx context.Context, prompt string) (*tensor.Array, error)
}

// PromptContext is the pair of text embeddings used during sampling: the
// unconditional (empty prompt) branch and the conditional branch.
type PromptContext struct {
	Uncond *tensor.Array
	Cond   *tensor.Array
}

// InitPrompt encodes the empty prompt and the given prompt.
func InitPrompt(ctx context.Context, enc PromptEncoder, prompt string) (PromptContext, error) {
	uncond, err := enc.Encode(ctx, "")
	if err != nil {
		return PromptContext{}, fmt.Errorf("encode unconditional prompt: %w", err)
	}
	cond, err := enc.Encode(ctx, prompt)
	if err != nil {
		return PromptContext{}, fmt.Errorf("encode prompt: %w", err)
	}
	return PromptContext{Uncond: uncond, Cond: cond}, nil
}

// NextStep advances one DDIM inversion step: given the model's noise
// prediction at timestep t and the current latent, it returns the next
// (noisier) latent. Pure function of its inputs and the schedule.
func NextStep(noisePred *tensor.Array, timestep int, sample *tensor.Array, s *Scheduler) *tensor.Array {
	nextTimestep := timestep
	timestep = min(timestep-s.cfg.NumTrainTimesteps/s.inferenceSteps, 999)

	alphaProd := s.AlphaCumprod(timestep)
	alphaProdNext := s.AlphaCumprod(nextTimestep)
	betaProd := 1 - alphaProd

	// original = (sample - sqrt(1-a_t)*eps) / sqrt(a_t)
	// next     = sqrt(a_next)*original + sqrt(1-a_next)*eps
	sqrtAlpha := math.Sqrt(alphaProd)
	original := tensor.Axpby(float32(1/sqrtAlpha), sample, float32(-math.Sqrt(betaProd)/sqrtAlpha), noisePred)
	return tensor.Axpby(float32(math.Sqrt(alphaProdNext)), original, float32(math.Sqrt(1-alphaProdNext)), noisePred)
}

// InvertOptions configures the inversion loop.
type InvertOptions struct {
	// Progress, when set, is called after every completed step.
	Progress func(step, total int)
}

// Invert walks a clean video latent backward through numInvSteps inversion
// steps, calling the denoiser once per step with the conditional embedding
// only. It returns numInvSteps+1 latents ordered from clean to fully
// inverted; the first element is a copy of the input.
func Invert(ctx context.Context, d Denoiser, s *Scheduler, videoLatent *tensor.Array, numInvSteps int, prompt string, enc PromptEncoder, opts InvertOptions) ([]*tensor.Array, error) {
	if numInvSteps > len(s.timesteps) {
		return nil, fmt.Errorf("invert: %d steps requested but scheduler has %d timesteps", numInvSteps, len(s.timesteps))
	}

	pc, err := InitPrompt(ctx, enc, prompt)
	if err != nil {
		return nil, err
	}

	slog.Debug("ddim inversion", "steps", numInvSteps, "prompt", prompt)

	latents := make([]*tensor.Array, 0, numInvSteps+1)
	latent := videoLatent.Clone()
	latents = append(latents, latent.Clone())

	ts := s.Timesteps()
	for i := 0; i < numInvSteps; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		t := ts[len(ts)-1-i]
		noisePred, err := d.Predict(ctx, latent, t, pc.Cond)
		if err != nil {
			return nil, fmt.Errorf("invert step %d (t=%d): %w", i, t, err)
		}
		latent = NextStep(noisePred, t, latent, s)
		latents = append(latents, latent)

		if opts.Progress != nil {
			opts.Progress(i+1, numInvSteps)
		}
	}
	return latents, nil
}
