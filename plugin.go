package framez

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

// Arity is the number of input and output datasets a plugin works on.
type Arity struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
}

// Plugin is one step of a Chain.
//
// Setup is called once, after the Chain has checked the step's dataset
// counts against Arity. It must select a pattern on every PluginData of the
// Binding and configure every output dataset (CreateDataset, AddPattern).
//
// ProcessFrames is then called once per frame index with one frame per input
// and one zeroed frame per output, in dataset order. Frames are only valid
// for the duration of the call. Implementations must be safe for concurrent
// calls when the Chain runs more than one worker.
type Plugin interface {
	Name() Name
	Arity() Arity
	Setup(b *Binding) error
	ProcessFrames(ctx context.Context, in, out []*Frame) error
}

// PreProcessor is implemented by plugins that need a pass over complete input
// data, e.g. a global minimum, before the first frame.
type PreProcessor interface {
	PreProcess(ctx context.Context, b *Binding) error
}

// PostProcessor is implemented by plugins that run after their last frame.
type PostProcessor interface {
	PostProcess(ctx context.Context, b *Binding) error
}

// OutputNamer supplies output dataset names for steps that do not name them.
type OutputNamer interface {
	DefaultOutputs() []Name
}

// Binding is the view of its datasets a plugin gets from the Chain.
type Binding struct {
	logger  *zap.Logger
	params  Params
	in      []*Dataset
	out     []*Dataset
	inData  []*PluginData
	outData []*PluginData
	step    int
}

// NewBinding wires datasets into a binding outside a Chain, creating one
// PluginData per dataset. Used to drive a plugin directly in tests and tools.
func NewBinding(in, out []*Dataset, params Params, logger *zap.Logger) *Binding {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Binding{
		logger: logger,
		params: params,
		in:     slices.Clone(in),
		out:    slices.Clone(out),
	}
	for _, d := range in {
		b.inData = append(b.inData, NewPluginData(d))
	}
	for _, d := range out {
		b.outData = append(b.outData, NewPluginData(d))
	}
	return b
}

// In returns the input datasets.
func (b *Binding) In() []*Dataset { return slices.Clone(b.in) }

// Out returns the output datasets.
func (b *Binding) Out() []*Dataset { return slices.Clone(b.out) }

// InData returns one PluginData per input.
func (b *Binding) InData() []*PluginData { return slices.Clone(b.inData) }

// OutData returns one PluginData per output.
func (b *Binding) OutData() []*PluginData { return slices.Clone(b.outData) }

// Params returns the resolved parameters.
func (b *Binding) Params() Params { return b.params }

// Logger returns a logger scoped to the plugin.
func (b *Binding) Logger() *zap.Logger { return b.logger }

// Step returns the position of the plugin in its chain.
func (b *Binding) Step() int { return b.step }

// all returns every PluginData, inputs first.
func (b *Binding) all() []*PluginData {
	return append(slices.Clone(b.inData), b.outData...)
}
