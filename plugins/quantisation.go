package plugins

import (
	"context"
	"fmt"
	"math"

	"github.com/zoobzio/framez"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// QuantisationName is the registry id of Quantisation.
const QuantisationName = framez.Name("Quantisation")

// Quantisation maps values onto 2^num_bits evenly spaced levels between a
// minimum and maximum. Values outside the range are clamped. When min and max
// are not given they are found by a pass over the whole input before the
// first frame.
type Quantisation struct {
	*framez.Filter
	bits    int
	lo, hi  float64
	hasLo   bool
	hasHi   bool
	pattern string
}

// QuantisationSchema is the parameter schema of Quantisation.
var QuantisationSchema = framez.Schema{
	{Name: "num_bits", Type: framez.ParamInt, Default: 8, Description: "Bits per quantised value."},
	{Name: "min", Type: framez.ParamFloat, Description: "Lower bound; scanned from the data when omitted."},
	{Name: "max", Type: framez.ParamFloat, Description: "Upper bound; scanned from the data when omitted."},
	{Name: "pattern", Type: framez.ParamString, Default: framez.PatternProjection, Description: "Pattern to work on."},
	{Name: "max_frames", Type: framez.ParamInt, Default: 8, Description: "Slices per frame."},
}

// NewQuantisation builds the plugin from resolved parameters.
func NewQuantisation(p framez.Params) (framez.Plugin, error) {
	bits := p.Int("num_bits")
	if bits < 1 || bits > 32 {
		return nil, fmt.Errorf("%w: num_bits must be in [1, 32], got %d", framez.ErrParameter, bits)
	}
	q := &Quantisation{
		bits:    bits,
		lo:      p.Float("min"),
		hi:      p.Float("max"),
		hasLo:   p.Has("min"),
		hasHi:   p.Has("max"),
		pattern: p.String("pattern"),
	}
	if q.hasLo && q.hasHi && q.hi <= q.lo {
		return nil, fmt.Errorf("%w: max %v must exceed min %v", framez.ErrParameter, q.hi, q.lo)
	}
	q.Filter = framez.NewFilter(QuantisationName, q.pattern, p.Int("max_frames"), q.quantise)
	return q, nil
}

// PreProcess scans the input for the bounds that were not given.
func (q *Quantisation) PreProcess(ctx context.Context, b *framez.Binding) error {
	if q.hasLo && q.hasHi {
		return nil
	}
	pd := b.InData()[0]
	frames, err := pd.FrameCount()
	if err != nil {
		return err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := pd.Frame(i)
		if err != nil {
			return err
		}
		lo = math.Min(lo, floats.Min(f.Data()))
		hi = math.Max(hi, floats.Max(f.Data()))
		f.Release()
	}
	if !q.hasLo {
		q.lo = lo
	}
	if !q.hasHi {
		q.hi = hi
	}
	b.Logger().Debug("quantisation range", zap.Float64("min", q.lo), zap.Float64("max", q.hi))
	return nil
}

func (q *Quantisation) quantise(_ context.Context, in, out *framez.Frame) error {
	levels := math.Exp2(float64(q.bits)) - 1
	span := q.hi - q.lo
	dst := out.Data()
	for i, v := range in.Data() {
		if span <= 0 {
			dst[i] = 0
			continue
		}
		t := (v - q.lo) / span
		t = math.Max(0, math.Min(1, t))
		dst[i] = math.Round(t * levels)
	}
	return nil
}
