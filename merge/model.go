// Package merge loads heterogeneous checkpoint dictionaries into a live
// pipeline's parameter state: motion-module weights, dreambooth full models,
// and low-rank (LoRA) deltas. Merges mutate parameters in place; callers must
// not merge into the same pipeline from multiple goroutines.
package merge

import (
	"fmt"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/latentforge/animate/ckpt"
	"github.com/latentforge/animate/tensor"
)

// Params is the named parameter set of one live module (UNet, VAE or text
// encoder). Names follow the diffusers convention.
type Params struct {
	m *orderedmap.OrderedMap[string, *tensor.Array]
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{m: orderedmap.New[string, *tensor.Array]()}
}

// Register adds a parameter. Registering an existing name replaces it.
func (p *Params) Register(name string, t *tensor.Array) { p.m.Set(name, t) }

// Get returns the named parameter tensor. The tensor is live model state;
// mutating its data mutates the model.
func (p *Params) Get(name string) (*tensor.Array, bool) { return p.m.Get(name) }

// Names returns the parameter names in registration order.
func (p *Params) Names() []string {
	names := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Len returns the number of parameters.
func (p *Params) Len() int { return p.m.Len() }

// LoadStateDict copies sd's tensors into the matching parameters. With
// strict=true any missing or unexpected key is an error; otherwise both are
// tolerated and reported. A shape mismatch is always an error.
func (p *Params) LoadStateDict(sd *ckpt.StateDict, strict bool) (missing, unexpected []string, err error) {
	loaded := make(map[string]bool, sd.Len())

	sd.Range(func(name string, t *tensor.Array) bool {
		dst, ok := p.m.Get(name)
		if !ok {
			unexpected = append(unexpected, name)
			return true
		}
		if !slices.Equal(dst.Shape(), t.Shape()) {
			err = fmt.Errorf("param %q: shape %v does not match checkpoint shape %v", name, dst.Shape(), t.Shape())
			return false
		}
		copy(dst.Data(), t.Data())
		loaded[name] = true
		return true
	})
	if err != nil {
		return nil, nil, err
	}

	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		if !loaded[pair.Key] {
			missing = append(missing, pair.Key)
		}
	}

	if strict && (len(missing) > 0 || len(unexpected) > 0) {
		return missing, unexpected, fmt.Errorf("strict load: %d missing, %d unexpected keys", len(missing), len(unexpected))
	}
	return missing, unexpected, nil
}

// Pipeline is the mutable parameter state of an animation pipeline. The
// forward passes themselves live behind external interfaces; only the
// parameters are held here so checkpoints can be merged into them.
type Pipeline struct {
	UNet        *Params
	VAE         *Params
	TextEncoder *Params
}

// NewPipeline returns a pipeline with empty parameter sets.
func NewPipeline() *Pipeline {
	return &Pipeline{
		UNet:        NewParams(),
		VAE:         NewParams(),
		TextEncoder: NewParams(),
	}
}
