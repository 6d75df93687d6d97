package plugins

import (
	"context"
	"fmt"

	"github.com/zoobzio/framez"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ComponentAnalysisName is the registry id of ComponentAnalysis.
const ComponentAnalysisName = framez.Name("ComponentAnalysis")

// Default output names of ComponentAnalysis.
const (
	ScoresName       = framez.Name("scores")
	EigenvectorsName = framez.Name("eigenvectors")
)

// ComponentAnalysis decomposes every spectrum of a dataset into its principal
// components. The last axis of the input is the spectrum; the chunk pattern
// must hold exactly that axis in its core.
//
// Outputs:
//   - scores: the input's layout with the spectrum axis replaced by one
//     weight per component
//   - eigenvectors: (components, spectrum length), pattern SPECTRUM
//
// All spectra are needed at once, so the plugin works on a single frame.
type ComponentAnalysis struct {
	chunk      string
	components int
	whiten     bool
}

// ComponentAnalysisSchema is the parameter schema of ComponentAnalysis.
var ComponentAnalysisSchema = framez.Schema{
	{Name: "number_of_components", Type: framez.ParamInt, Default: 3, Description: "The number of expected components."},
	{Name: "chunk", Type: framez.ParamString, Default: framez.PatternSpectrum, Description: "The pattern to work on."},
	{Name: "whiten", Type: framez.ParamBool, Default: true, Description: "Subtract the mean spectrum before decomposing."},
}

// NewComponentAnalysis builds the plugin from resolved parameters.
func NewComponentAnalysis(p framez.Params) (framez.Plugin, error) {
	n := p.Int("number_of_components")
	if n <= 0 {
		return nil, fmt.Errorf("%w: number_of_components must be positive, got %d", framez.ErrParameter, n)
	}
	return &ComponentAnalysis{
		chunk:      p.String("chunk"),
		components: n,
		whiten:     p.Bool("whiten"),
	}, nil
}

func (*ComponentAnalysis) Name() framez.Name { return ComponentAnalysisName }

func (*ComponentAnalysis) Arity() framez.Arity { return framez.Arity{Inputs: 1, Outputs: 2} }

func (*ComponentAnalysis) DefaultOutputs() []framez.Name {
	return []framez.Name{ScoresName, EigenvectorsName}
}

func (c *ComponentAnalysis) Setup(b *framez.Binding) error {
	in := b.In()[0]
	out := b.Out()
	b.Logger().Debug("setting up the component analysis", zap.Int("components", c.components))

	pattern, err := in.Pattern(c.chunk)
	if err != nil {
		return err
	}
	shape := in.Shape()
	last := len(shape) - 1
	if len(pattern.CoreDir) != 1 || pattern.CoreDir[0] != last {
		return fmt.Errorf("%w: %q must have only the spectrum axis %d as core", framez.ErrPattern, c.chunk, last)
	}
	spectra, length := in.Size()/shape[last], shape[last]
	if c.components > min(spectra, length) {
		return fmt.Errorf("%w: %d components from %d spectra of length %d", framez.ErrParameter, c.components, spectra, length)
	}

	scores := shape
	scores[last] = c.components
	if err := out[0].CreateDataset(framez.FromTemplate(in)); err != nil {
		return err
	}
	if err := out[0].SetShape(scores...); err != nil {
		return err
	}

	if err := out[1].CreateDataset(
		framez.WithShape(c.components, length),
		framez.WithAxisLabels(framez.MustAxisLabels("idx.unit", "spectra.unit")...),
	); err != nil {
		return err
	}
	if err := out[1].AddPattern(framez.PatternSpectrum, framez.Pattern{CoreDir: []int{1}, SliceDir: []int{0}}); err != nil {
		return err
	}

	inData, outData := b.InData(), b.OutData()
	if err := inData[0].Setup(c.chunk, framez.AllFrames); err != nil {
		return err
	}
	if err := outData[0].Setup(c.chunk, framez.AllFrames); err != nil {
		return err
	}
	return outData[1].Setup(framez.PatternSpectrum, framez.AllFrames)
}

func (c *ComponentAnalysis) ProcessFrames(_ context.Context, in, out []*framez.Frame) error {
	spectra := in[0].Len()
	length := in[0].CoreShape()[0]

	x := mat.NewDense(spectra, length, append([]float64(nil), in[0].Data()...))
	if c.whiten {
		col := make([]float64, spectra)
		for j := 0; j < length; j++ {
			mat.Col(col, j, x)
			mean := stat.Mean(col, nil)
			for i := 0; i < spectra; i++ {
				x.Set(i, j, x.At(i, j)-mean)
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return fmt.Errorf("singular value decomposition of %dx%d spectra failed", spectra, length)
	}
	var v mat.Dense
	svd.VTo(&v)
	basis := v.Slice(0, length, 0, c.components)

	scores := mat.NewDense(spectra, c.components, out[0].Data())
	scores.Mul(x, basis)

	eig := mat.NewDense(c.components, length, out[1].Data())
	eig.Copy(basis.T())
	return nil
}
