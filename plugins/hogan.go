package plugins

import (
	"context"
	"fmt"
	"math"

	"github.com/zoobzio/framez"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// HoganAbsorptionCorrectionName is the registry id of HoganAbsorptionCorrection.
const HoganAbsorptionCorrectionName = framez.Name("HoganAbsorptionCorrection")

// Metadata keys read by HoganAbsorptionCorrection.
const (
	MetaRotationAngle = "rotation_angle"
)

// maxRotationStep is the angular step in degrees above which the correction
// becomes unreliable.
const maxRotationStep = 10.0

// HoganAbsorptionCorrection corrects an XRF sinogram stack for self
// absorption using a normalised STXM absorption sinogram stack.
//
// Inputs, in order:
//   - xrf: (rotation_angle, y, x, channel) with the xrf pattern holding
//     angle, x and channel as core axes
//   - stxm: (rotation_angle, y, x) with the stxm pattern holding angle and x
//
// The output is a template copy of xrf. The per-channel attenuation ratios
// come from the attenuation_ratios parameter.
type HoganAbsorptionCorrection struct {
	xrfPattern  string
	stxmPattern string
	ratios      []float64
	offset      float64

	// Set by PreProcess.
	displacement int
}

// HoganAbsorptionCorrectionSchema is the parameter schema of
// HoganAbsorptionCorrection.
var HoganAbsorptionCorrectionSchema = framez.Schema{
	{Name: "azimuthal_offset", Type: framez.ParamFloat, Default: -90.0, Description: "Angle between detector and incident beam in degrees."},
	{Name: "attenuation_ratios", Type: framez.ParamFloats, Description: "Peak to pump attenuation ratio for each channel."},
	{Name: "xrf_pattern", Type: framez.ParamString, Default: framez.PatternSpectralSinogram, Description: "Pattern of the fluorescence data."},
	{Name: "stxm_pattern", Type: framez.ParamString, Default: framez.PatternSinogram, Description: "Pattern of the absorption data."},
}

// NewHoganAbsorptionCorrection builds the plugin from resolved parameters.
func NewHoganAbsorptionCorrection(p framez.Params) (framez.Plugin, error) {
	ratios := p.Floats("attenuation_ratios")
	if len(ratios) == 0 {
		return nil, fmt.Errorf("%w: attenuation_ratios is required", framez.ErrParameter)
	}
	return &HoganAbsorptionCorrection{
		xrfPattern:  p.String("xrf_pattern"),
		stxmPattern: p.String("stxm_pattern"),
		ratios:      ratios,
		offset:      p.Float("azimuthal_offset"),
	}, nil
}

func (*HoganAbsorptionCorrection) Name() framez.Name { return HoganAbsorptionCorrectionName }

func (*HoganAbsorptionCorrection) Arity() framez.Arity { return framez.Arity{Inputs: 2, Outputs: 1} }

func (h *HoganAbsorptionCorrection) Setup(b *framez.Binding) error {
	in, out := b.In(), b.Out()
	xrf, stxm := in[0].Shape(), in[1].Shape()
	if len(xrf) != 4 || len(stxm) != 3 {
		return fmt.Errorf("%w: want xrf rank 4 and stxm rank 3, got %v and %v", framez.ErrShape, xrf, stxm)
	}
	if xrf[0] != stxm[0] || xrf[1] != stxm[1] || xrf[2] != stxm[2] {
		return fmt.Errorf("%w: xrf %v and stxm %v disagree on (angle, y, x)", framez.ErrShape, xrf, stxm)
	}
	if len(h.ratios) != xrf[3] {
		return fmt.Errorf("%w: %d attenuation ratios for %d channels", framez.ErrParameter, len(h.ratios), xrf[3])
	}

	if err := out[0].CreateDataset(framez.FromTemplate(in[0])); err != nil {
		return err
	}
	inData := b.InData()
	if err := inData[0].Setup(h.xrfPattern, 1); err != nil {
		return err
	}
	if err := inData[1].Setup(h.stxmPattern, 1); err != nil {
		return err
	}
	return b.OutData()[0].Setup(h.xrfPattern, 1)
}

// PreProcess derives the pixel displacement between the absorption and
// fluorescence sinograms from the rotation step.
func (h *HoganAbsorptionCorrection) PreProcess(_ context.Context, b *framez.Binding) error {
	theta, err := b.In()[0].MetaData().Float64s(MetaRotationAngle)
	if err != nil {
		return err
	}
	if len(theta) < 2 {
		return fmt.Errorf("%w: need at least two rotation angles, got %d", framez.ErrShape, len(theta))
	}
	dtheta := theta[1] - theta[0]
	if dtheta == 0 {
		return fmt.Errorf("%w: rotation step is zero", framez.ErrShape)
	}
	log := b.Logger()
	log.Debug("rotation step", zap.Float64("dtheta", dtheta))
	if math.Abs(dtheta) > maxRotationStep {
		log.Warn("rotation step is greater than 10 degrees", zap.Float64("dtheta", dtheta))
	}
	h.displacement = int(math.Floor(h.offset / dtheta))
	log.Debug("pixel offset", zap.Int("displacement", h.displacement))
	return nil
}

func (h *HoganAbsorptionCorrection) ProcessFrames(_ context.Context, in, out []*framez.Frame) error {
	core := in[0].CoreShape()
	angles, width, channels := core[0], core[1], core[2]

	absorption := make([]float64, angles*width)
	row := make([]float64, width)
	avg := make([]float64, width)
	for k := 0; k < in[0].Len(); k++ {
		xrf, stxm, corrected := in[0].Slice(k), in[1].Slice(k), out[0].Slice(k)

		// Absorption sinogram, rolled along the angle axis.
		for a := 0; a < angles; a++ {
			dst := mod(a+h.displacement, angles)
			for x := 0; x < width; x++ {
				absorption[dst*width+x] = -math.Log10(stxm[a*width+x])
			}
		}

		for a := 0; a < angles; a++ {
			sino := absorption[a*width : (a+1)*width]
			floats.CumSum(row, sino)
			for x := range avg {
				avg[x] = row[x] / float64(x+1)
			}
			for x := 0; x < width; x++ {
				base := (a*width + x) * channels
				for c := 0; c < channels; c++ {
					factor := math.Exp(-avg[x] * h.ratios[c] * sino[x])
					corrected[base+c] = factor * xrf[base+c]
				}
			}
		}
	}
	return nil
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
