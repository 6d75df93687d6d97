package framez

import (
	"fmt"
	"slices"
)

// Descriptor describes a plugin type: its id, parameter schema and
// constructor.
type Descriptor struct {
	New         func(Params) (Plugin, error) `json:"-"`
	Name        Name                         `json:"name"`
	Description string                       `json:"description,omitempty"`
	Schema      Schema                       `json:"parameters,omitempty"`
}

// Registry maps plugin ids to descriptors. It is built once from an explicit
// list and never mutated afterwards.
type Registry struct {
	byName map[Name]Descriptor
	order  []Name
}

// NewRegistry builds a registry. Duplicate ids, missing constructors and
// invalid schemas are rejected.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[Name]Descriptor, len(descs))}
	for _, d := range descs {
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: %q registered twice", ErrPlugin, d.Name)
		}
		if d.New == nil {
			return nil, fmt.Errorf("%w: %q has no constructor", ErrPlugin, d.Name)
		}
		if err := d.Schema.Validate(); err != nil {
			return nil, fmt.Errorf("plugin %q: %w", d.Name, err)
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id Name) (Descriptor, error) {
	d, ok := r.byName[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrPlugin, id)
	}
	return d, nil
}

// Build resolves raw parameters against the plugin's schema and constructs
// the plugin.
func (r *Registry) Build(id Name, raw map[string]any) (Plugin, error) {
	d, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	params, err := d.Schema.Resolve(raw)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", id, err)
	}
	p, err := d.New(params)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", id, err)
	}
	return p, nil
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the registered ids in registration order.
func (r *Registry) Names() []Name {
	return slices.Clone(r.order)
}
