package ckpt

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/latentforge/animate/tensor"
)

// StateDict is an insertion-ordered mapping from dotted parameter names to
// tensors, the in-memory form of a checkpoint dictionary.
type StateDict struct {
	m *orderedmap.OrderedMap[string, *tensor.Array]
}

// NewStateDict returns an empty state dict.
func NewStateDict() *StateDict {
	return &StateDict{m: orderedmap.New[string, *tensor.Array]()}
}

// LoadStateDict reads every tensor of the checkpoint at path.
func LoadStateDict(path string) (*StateDict, error) {
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return ReadAll(src)
}

// ReadAll materializes every tensor of a source into a state dict.
func ReadAll(src Source) (*StateDict, error) {
	sd := NewStateDict()
	for _, k := range src.Keys() {
		t, err := src.Tensor(k)
		if err != nil {
			return nil, err
		}
		sd.Set(k, t)
	}
	return sd, nil
}

// Set inserts or replaces the named tensor.
func (sd *StateDict) Set(name string, t *tensor.Array) { sd.m.Set(name, t) }

// Get returns the named tensor.
func (sd *StateDict) Get(name string) (*tensor.Array, bool) { return sd.m.Get(name) }

// Len returns the number of entries.
func (sd *StateDict) Len() int { return sd.m.Len() }

// Keys returns the names in insertion order.
func (sd *StateDict) Keys() []string {
	keys := make([]string, 0, sd.m.Len())
	for pair := sd.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for every entry in insertion order until fn returns false.
func (sd *StateDict) Range(fn func(name string, t *tensor.Array) bool) {
	for pair := sd.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Filter returns the entries whose name contains substr, preserving order.
func (sd *StateDict) Filter(substr string) *StateDict {
	out := NewStateDict()
	sd.Range(func(name string, t *tensor.Array) bool {
		if strings.Contains(name, substr) {
			out.Set(name, t)
		}
		return true
	})
	return out
}

// FilterPrefix returns the entries whose name starts with prefix, with the
// prefix stripped, preserving order.
func (sd *StateDict) FilterPrefix(prefix string) *StateDict {
	out := NewStateDict()
	sd.Range(func(name string, t *tensor.Array) bool {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			out.Set(rest, t)
		}
		return true
	})
	return out
}

// Renamed returns a copy with every name passed through the replacer.
func (sd *StateDict) Renamed(replacer *strings.Replacer) *StateDict {
	out := NewStateDict()
	sd.Range(func(name string, t *tensor.Array) bool {
		out.Set(replacer.Replace(name), t)
		return true
	})
	return out
}
