package merge

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	gt "github.com/pdevine/tensor"

	"github.com/latentforge/animate/ckpt"
	"github.com/latentforge/animate/tensor"
)

const (
	loraUNetPrefix = "lora_unet_"
	loraTextPrefix = "lora_te_"
	loraDownSuffix = ".lora_down.weight"
	loraUpSuffix   = ".lora_up.weight"
	loraAlphaKey   = ".alpha"
)

// applyLoRA applies kohya-style low-rank deltas onto the targeted linear and
// conv layers: W += loraAlpha * (alpha/rank) * (up @ down). Keys that resolve
// to no parameter are skipped, consistent with non-strict loading.
func applyLoRA(p *Pipeline, sd *ckpt.StateDict, loraAlpha float64) error {
	unetIndex := flatIndex(p.UNet)
	textIndex := flatIndex(p.TextEncoder)

	var firstErr error
	sd.Range(func(key string, down *tensor.Array) bool {
		if !strings.HasSuffix(key, loraDownSuffix) {
			return true
		}
		base := strings.TrimSuffix(key, loraDownSuffix)

		var index map[string]*tensor.Array
		var flat string
		switch {
		case strings.HasPrefix(base, loraUNetPrefix):
			index, flat = unetIndex, base[len(loraUNetPrefix):]
		case strings.HasPrefix(base, loraTextPrefix):
			index, flat = textIndex, base[len(loraTextPrefix):]
		default:
			return true
		}

		up, ok := sd.Get(base + loraUpSuffix)
		if !ok {
			slog.Warn("lora key without matching up weight", "key", key)
			return true
		}
		target, ok := index[flat]
		if !ok {
			slog.Debug("lora target not present in pipeline", "layer", flat)
			return true
		}

		scale := loraAlpha
		if alphaT, ok := sd.Get(base + loraAlphaKey); ok && down.Dim(0) > 0 {
			scale *= float64(alphaT.Data()[0]) / float64(down.Dim(0))
		}

		delta, err := lowRankProduct(up, down)
		if err != nil {
			firstErr = fmt.Errorf("lora %q: %w", base, err)
			return false
		}
		if delta.Len() != target.Len() {
			firstErr = fmt.Errorf("lora %q: delta has %d values, target %v", base, delta.Len(), target.Shape())
			return false
		}
		tensor.AddScaled(target, float32(scale), delta.Reshape(target.Shape()...))
		return true
	})
	return firstErr
}

// applyMotionLoRA applies a motion-LoRA checkpoint onto the motion-module
// parameters, scaled by alpha. Keys follow the attention-processor naming,
// e.g. "...attn1.processor.to_q_lora.down.weight" targeting "...attn1.to_q.weight".
func applyMotionLoRA(unet *Params, sd *ckpt.StateDict, alpha float64) error {
	var firstErr error
	sd.Range(func(key string, down *tensor.Array) bool {
		if !strings.Contains(key, ".down.weight") {
			return true
		}
		up, ok := sd.Get(strings.Replace(key, ".down.weight", ".up.weight", 1))
		if !ok {
			slog.Warn("motion lora key without matching up weight", "key", key)
			return true
		}

		name := strings.Replace(key, "processor.", "", 1)
		name = strings.Replace(name, "_lora.down.weight", ".weight", 1)
		target, ok := unet.Get(name)
		if !ok {
			slog.Debug("motion lora target not present in unet", "param", name)
			return true
		}

		delta, err := lowRankProduct(up, down)
		if err != nil {
			firstErr = fmt.Errorf("motion lora %q: %w", key, err)
			return false
		}
		if delta.Len() != target.Len() {
			firstErr = fmt.Errorf("motion lora %q: delta has %d values, target %v", key, delta.Len(), target.Shape())
			return false
		}
		tensor.AddScaled(target, float32(alpha), delta.Reshape(target.Shape()...))
		return true
	})
	return firstErr
}

// lowRankProduct computes up @ down with conv weights flattened to matrices:
// up (out, r, ...) x down (r, in, ...) -> (out, in*spatial).
func lowRankProduct(up, down *tensor.Array) (*tensor.Array, error) {
	if up.NDim() < 2 || down.NDim() < 2 {
		return nil, fmt.Errorf("low-rank pair must be at least 2D, got %v and %v", up.Shape(), down.Shape())
	}
	rank := down.Dim(0)
	out := up.Dim(0)
	if up.Len()/out != rank {
		return nil, fmt.Errorf("rank mismatch: up %v vs down %v", up.Shape(), down.Shape())
	}
	cols := down.Len() / rank

	a := gt.New(gt.WithShape(out, rank), gt.WithBacking(slices.Clone(up.Data())))
	b := gt.New(gt.WithShape(rank, cols), gt.WithBacking(slices.Clone(down.Data())))
	prod, err := gt.MatMul(a, b)
	if err != nil {
		return nil, err
	}
	return tensor.NewArray(prod.Data().([]float32), out, cols), nil
}

// flatIndex maps the underscore-flattened layer name used by LoRA keys back
// to the live weight tensor, e.g. "down_blocks_0_attentions_0_..._to_q" for
// "down_blocks.0.attentions.0.....to_q.weight".
func flatIndex(p *Params) map[string]*tensor.Array {
	index := make(map[string]*tensor.Array, p.Len())
	for _, name := range p.Names() {
		layer, ok := strings.CutSuffix(name, ".weight")
		if !ok {
			continue
		}
		t, _ := p.Get(name)
		index[strings.ReplaceAll(layer, ".", "_")] = t
	}
	return index
}
