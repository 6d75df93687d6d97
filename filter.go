package framez

import (
	"context"
	"fmt"
)

// FilterFunc processes one input frame into one output frame of the same
// shape. out starts zeroed.
type FilterFunc func(ctx context.Context, in, out *Frame) error

// Filter is a one-in, one-out plugin whose output is a template copy of its
// input: same shape, labels, patterns and metadata. It covers the common case
// of a plugin that only changes values.
//
// Filter is the workhorse adapter - use it for denoising, normalisation,
// thresholding and other operations that map a frame to a frame of the same
// shape. For element-wise arithmetic, use Map.
//
// Example:
//
//	const MedianName = framez.Name("median")
//	median := framez.NewFilter(MedianName, framez.PatternProjection, 4,
//	    func(ctx context.Context, in, out *framez.Frame) error {
//	        for k := 0; k < in.Len(); k++ {
//	            medianFilter(in.Slice(k), out.Slice(k), in.CoreShape())
//	        }
//	        return nil
//	    })
type Filter struct {
	fn        FilterFunc
	name      Name
	pattern   string
	maxFrames int
}

// NewFilter creates a Filter processing frames of up to maxFrames slices of
// the named pattern.
func NewFilter(name Name, pattern string, maxFrames int, fn FilterFunc) *Filter {
	return &Filter{
		fn:        fn,
		name:      name,
		pattern:   pattern,
		maxFrames: maxFrames,
	}
}

// Map creates a Filter that applies fn to every element. Map cannot fail,
// and since elements are independent it uses the whole slice space of the
// pattern in as few frames as maxFrames allows.
//
// Example:
//
//	double := framez.Map("double", framez.PatternProjection, framez.AllFrames,
//	    func(v float64) float64 { return 2 * v })
func Map(name Name, pattern string, maxFrames int, fn func(float64) float64) *Filter {
	return NewFilter(name, pattern, maxFrames, func(_ context.Context, in, out *Frame) error {
		dst := out.Data()
		for i, v := range in.Data() {
			dst[i] = fn(v)
		}
		return nil
	})
}

// Name returns the name of this filter.
func (f *Filter) Name() Name {
	return f.name
}

// Arity implements Plugin.
func (*Filter) Arity() Arity {
	return Arity{Inputs: 1, Outputs: 1}
}

// Setup implements Plugin.
func (f *Filter) Setup(b *Binding) error {
	in, out := b.In()[0], b.Out()[0]
	if err := out.CreateDataset(FromTemplate(in)); err != nil {
		return err
	}
	if err := b.InData()[0].Setup(f.pattern, f.maxFrames); err != nil {
		return err
	}
	return b.OutData()[0].Setup(f.pattern, f.maxFrames)
}

// ProcessFrames implements Plugin.
func (f *Filter) ProcessFrames(ctx context.Context, in, out []*Frame) (err error) {
	defer recoverFromPanic(&err)
	if len(in) != 1 || len(out) != 1 {
		return fmt.Errorf("%w: filter %q got %d inputs and %d outputs", ErrArity, f.name, len(in), len(out))
	}
	return f.fn(ctx, in[0], out[0])
}
