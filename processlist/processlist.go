// Package processlist loads YAML process lists: ordered lists of plugin
// entries with their parameters, from which a framez.Chain is built.
//
//	name: tomo-demo
//	plugins:
//	  - id: Scale
//	    parameters:
//	      factor: 2.0
//	  - id: Quantisation
//	    active: false
//	    out_datasets: [quantised]
package processlist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zoobzio/framez"
	"gopkg.in/yaml.v3"
)

// Entry is one plugin of a process list.
type Entry struct {
	Active      *bool          `yaml:"active,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
	ID          framez.Name    `yaml:"id"`
	InDatasets  []framez.Name  `yaml:"in_datasets,omitempty"`
	OutDatasets []framez.Name  `yaml:"out_datasets,omitempty"`
}

// IsActive reports whether the entry runs. Entries are active unless marked
// otherwise.
func (e Entry) IsActive() bool {
	return e.Active == nil || *e.Active
}

// ProcessList is an ordered list of plugin entries.
type ProcessList struct {
	Name    framez.Name `yaml:"name"`
	Plugins []Entry     `yaml:"plugins"`
}

// Parse decodes a process list. Unknown keys are rejected.
func Parse(data []byte) (*ProcessList, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var pl ProcessList
	if err := dec.Decode(&pl); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("process list is empty")
		}
		return nil, fmt.Errorf("decoding process list: %w", err)
	}
	for i, e := range pl.Plugins {
		if e.ID == "" {
			return nil, fmt.Errorf("process list entry %d has no id", i)
		}
	}
	return &pl, nil
}

// Load reads and parses a process list file.
func Load(path string) (*ProcessList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading process list: %w", err)
	}
	pl, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pl, nil
}

// Active returns the entries that run, in order.
func (pl *ProcessList) Active() []Entry {
	var out []Entry
	for _, e := range pl.Plugins {
		if e.IsActive() {
			out = append(out, e)
		}
	}
	return out
}

// Steps validates every active entry against the registry and constructs
// its plugin. Unknown ids fail with framez.ErrPlugin; bad parameters with
// framez.ErrParameter.
func (pl *ProcessList) Steps(reg *framez.Registry) ([]framez.Step, error) {
	var steps []framez.Step
	for i, e := range pl.Plugins {
		if !e.IsActive() {
			continue
		}
		d, err := reg.Lookup(e.ID)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		params, err := d.Schema.Resolve(e.Parameters)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.ID, err)
		}
		p, err := d.New(params)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.ID, err)
		}
		steps = append(steps, framez.Step{
			Plugin: p,
			Params: params,
			In:     e.InDatasets,
			Out:    e.OutDatasets,
		})
	}
	return steps, nil
}

// Validate checks every active entry without keeping the plugins.
func (pl *ProcessList) Validate(reg *framez.Registry) error {
	_, err := pl.Steps(reg)
	return err
}

// Build constructs a chain running the active entries. Loader datasets are
// added by the caller with AddDataset before the chain is set up.
func (pl *ProcessList) Build(reg *framez.Registry, opts ...framez.Option) (*framez.Chain, error) {
	steps, err := pl.Steps(reg)
	if err != nil {
		return nil, err
	}
	name := pl.Name
	if name == "" {
		name = "process-list"
	}
	chain := framez.NewChain(name, opts...)
	if err := chain.Push(steps...); err != nil {
		return nil, err
	}
	return chain, nil
}

// Marshal encodes the process list as YAML.
func (pl *ProcessList) Marshal() ([]byte, error) {
	return yaml.Marshal(pl)
}
