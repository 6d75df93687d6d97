package framez

import (
	"encoding/json"
	"slices"
)

// ChainSchema is a serialisable description of a chain: its datasets, with
// shapes and patterns, and its steps, with the pattern and frame layout each
// plugin selected. Before Setup only the declared structure is known.
//
// Example:
//
//	schema := chain.Describe()
//	jsonBytes, _ := json.MarshalIndent(schema, "", "  ")
type ChainSchema struct {
	Name     Name            `json:"name"`
	State    State           `json:"state"`
	Datasets []DatasetSchema `json:"datasets"`
	Steps    []StepSchema    `json:"steps"`
}

// DatasetSchema describes one dataset.
type DatasetSchema struct {
	Patterns   map[string]Pattern `json:"patterns,omitempty"`
	Name       Name               `json:"name"`
	Producer   Name               `json:"producer,omitempty"`
	Shape      []int              `json:"shape,omitempty"`
	AxisLabels []string           `json:"axis_labels,omitempty"`
}

// StepSchema describes one plugin of the chain.
type StepSchema struct {
	Plugin   Name            `json:"plugin"`
	In       []Name          `json:"in"`
	Out      []Name          `json:"out"`
	Bindings []BindingSchema `json:"bindings,omitempty"`
	Arity    Arity           `json:"arity"`
	Index    int             `json:"index"`
	Frames   int             `json:"frames"`
}

// BindingSchema describes how a plugin sees one of its datasets.
type BindingSchema struct {
	Dataset    Name   `json:"dataset"`
	Role       string `json:"role"`
	Pattern    string `json:"pattern"`
	FrameShape []int  `json:"frame_shape"`
	MaxFrames  int    `json:"max_frames"`
}

// Describe returns the schema of the chain.
func (c *Chain) Describe() ChainSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()

	schema := ChainSchema{
		Name:  c.name,
		State: c.progress.State,
	}
	for _, d := range c.loaders {
		schema.Datasets = append(schema.Datasets, describeDataset(d, ""))
	}
	for i, st := range c.steps {
		s := StepSchema{
			Index:  i,
			Plugin: st.Plugin.Name(),
			Arity:  st.Plugin.Arity(),
			In:     slices.Clone(st.In),
			Out:    slices.Clone(st.Out),
		}
		if st.binding == nil {
			schema.Steps = append(schema.Steps, s)
			continue
		}
		s.In, s.Out, s.Frames = slices.Clone(st.in), slices.Clone(st.out), st.frames
		for _, pd := range st.binding.inData {
			s.Bindings = append(s.Bindings, describeBinding(pd, "in"))
		}
		for _, pd := range st.binding.outData {
			s.Bindings = append(s.Bindings, describeBinding(pd, "out"))
			schema.Datasets = append(schema.Datasets, describeDataset(pd.Dataset(), st.Plugin.Name()))
		}
		schema.Steps = append(schema.Steps, s)
	}
	return schema
}

func describeDataset(d *Dataset, producer Name) DatasetSchema {
	s := DatasetSchema{
		Name:     d.Name(),
		Producer: producer,
		Shape:    d.Shape(),
	}
	for _, l := range d.AxisLabels() {
		s.AxisLabels = append(s.AxisLabels, l.String())
	}
	for _, name := range d.Patterns() {
		if s.Patterns == nil {
			s.Patterns = make(map[string]Pattern)
		}
		p, _ := d.Pattern(name) //nolint:errcheck // name comes from Patterns
		s.Patterns[name] = p
	}
	return s
}

func describeBinding(pd *PluginData, role string) BindingSchema {
	s := BindingSchema{Dataset: pd.Dataset().Name(), Role: role}
	s.Pattern, _ = pd.Pattern()       //nolint:errcheck // zero values for unbound data
	s.MaxFrames, _ = pd.MaxFrames()   //nolint:errcheck
	s.FrameShape, _ = pd.FrameShape() //nolint:errcheck
	return s
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// String renders the schema as indented JSON.
func (s ChainSchema) String() string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(b)
}
