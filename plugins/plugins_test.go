package plugins

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/framez"
)

// newData creates, allocates and fills a dataset with fill(flat index).
func newData(t *testing.T, name framez.Name, shape []int, labels []string, patterns map[string]framez.Pattern, fill func(int) float64) *framez.Dataset {
	t.Helper()
	d := framez.NewDataset(name)
	require.NoError(t, d.CreateDataset(framez.WithShape(shape...), framez.WithAxisLabels(framez.MustAxisLabels(labels...)...)))
	for p, pattern := range patterns {
		require.NoError(t, d.AddPattern(p, pattern))
	}
	require.NoError(t, d.Allocate(framez.MemoryBackend{}))
	data := make([]float64, d.Size())
	for i := range data {
		data[i] = fill(i)
	}
	require.NoError(t, d.WriteRegion(make([]int, len(shape)), shape, data))
	return d
}

func newRamp(t *testing.T, shape ...int) *framez.Dataset {
	t.Helper()
	return newData(t, "ramp", shape,
		[]string{"rotation_angle.degrees", "detector_y.pixel", "detector_x.pixel"},
		map[string]framez.Pattern{
			framez.PatternProjection: {CoreDir: []int{1, 2}, SliceDir: []int{0}},
			framez.PatternSinogram:   {CoreDir: []int{0, 2}, SliceDir: []int{1}},
		},
		func(i int) float64 { return float64(i) })
}

func readAll(t *testing.T, d *framez.Dataset) []float64 {
	t.Helper()
	data := make([]float64, d.Size())
	require.NoError(t, d.ReadRegion(make([]int, d.Rank()), d.Shape(), data))
	return data
}

// runOne runs p over the given datasets and returns the chain.
func runOne(t *testing.T, p framez.Plugin, out []framez.Name, in ...*framez.Dataset) *framez.Chain {
	t.Helper()
	chain := framez.NewChain("test", framez.WithWorkers(2))
	t.Cleanup(func() { _ = chain.Close() })
	for _, d := range in {
		require.NoError(t, chain.AddDataset(d))
	}
	require.NoError(t, chain.Register(p, nil, out))
	require.NoError(t, chain.Run(context.Background()))
	return chain
}

func output(t *testing.T, chain *framez.Chain, name framez.Name) []float64 {
	t.Helper()
	d, err := chain.Dataset(name)
	require.NoError(t, err)
	return readAll(t, d)
}

func TestRegistry(t *testing.T) {
	r := Registry()
	assert.Equal(t, []framez.Name{ComponentAnalysisName, HoganAbsorptionCorrectionName, QuantisationName, ScaleName}, r.Names())

	for _, d := range Descriptors() {
		assert.NoError(t, d.Schema.Validate(), d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
	}

	p, err := r.Build(ScaleName, map[string]any{"factor": 3})
	require.NoError(t, err)
	assert.Equal(t, ScaleName, p.Name())

	_, err = r.Build(HoganAbsorptionCorrectionName, nil)
	assert.ErrorIs(t, err, framez.ErrParameter)
}

func TestScale(t *testing.T) {
	p, err := Registry().Build(ScaleName, map[string]any{
		"factor":  2,
		"offset":  -1.5,
		"pattern": framez.PatternSinogram,
	})
	require.NoError(t, err)

	chain := runOne(t, p, []framez.Name{"scaled"}, newRamp(t, 3, 4, 5))

	got := output(t, chain, "scaled")
	want := make([]float64, 60)
	for i := range want {
		want[i] = 2*float64(i) - 1.5
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scaled values mismatch (-want +got):\n%s", diff)
	}
}

func TestQuantisation(t *testing.T) {
	t.Run("Explicit Range Clamps", func(t *testing.T) {
		p, err := Registry().Build(QuantisationName, map[string]any{"num_bits": 2, "min": 0, "max": 3})
		require.NoError(t, err)

		chain := runOne(t, p, nil, newRamp(t, 2, 2, 2))
		assert.Equal(t, []float64{0, 1, 2, 3, 3, 3, 3, 3}, output(t, chain, "ramp"))
	})

	t.Run("Scanned Range", func(t *testing.T) {
		p, err := Registry().Build(QuantisationName, map[string]any{"num_bits": 3, "max_frames": 1})
		require.NoError(t, err)

		chain := runOne(t, p, []framez.Name{"q"}, newRamp(t, 2, 2, 2))
		assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, output(t, chain, "q"))
	})

	t.Run("One Sided Range", func(t *testing.T) {
		p, err := Registry().Build(QuantisationName, map[string]any{"num_bits": 1, "min": 4})
		require.NoError(t, err)

		chain := runOne(t, p, []framez.Name{"q"}, newRamp(t, 2, 2, 2))
		// Scanned max is 7; values round to 1 from 5.5 upwards.
		assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 1, 1}, output(t, chain, "q"))
	})

	t.Run("Invalid Parameters", func(t *testing.T) {
		_, err := Registry().Build(QuantisationName, map[string]any{"num_bits": 0})
		assert.ErrorIs(t, err, framez.ErrParameter)

		_, err = Registry().Build(QuantisationName, map[string]any{"min": 5, "max": 5})
		assert.ErrorIs(t, err, framez.ErrParameter)
	})
}

func TestTomoDataset(t *testing.T) {
	d, err := NewTomoDataset(TomoName, 7, 3, 16, framez.MemoryBackend{})
	require.NoError(t, err)

	assert.Equal(t, []int{7, 3, 16}, d.Shape())
	assert.Equal(t, []string{framez.PatternProjection, framez.PatternSinogram}, d.Patterns())
	assert.True(t, d.Frozen())

	theta, err := d.MetaData().Float64s(MetaRotationAngle)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{0, 30, 60, 90, 120, 150, 180}, theta, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("rotation angles mismatch (-want +got):\n%s", diff)
	}

	data := readAll(t, d)
	for i, v := range data {
		require.GreaterOrEqual(t, v, 1.0, "element %d", i)
	}
	// The detector edge lies outside both discs, the centre inside the large one.
	assert.Equal(t, 1.0, data[0])
	assert.Greater(t, data[8], 1.0)

	// Every detector row sees the same projection.
	assert.Equal(t, data[0:16], data[16:32])
}

func TestComponentAnalysis(t *testing.T) {
	weights := []float64{1, 2, 3, 4, 5, 6}
	basis := []float64{1, 2, 0, -1}
	spectra := func(t *testing.T) *framez.Dataset {
		return newData(t, "xrf", []int{2, 3, 4},
			[]string{"y.pixel", "x.pixel", "energy.kev"},
			map[string]framez.Pattern{
				framez.PatternSpectrum:   {CoreDir: []int{2}, SliceDir: []int{0, 1}},
				framez.PatternProjection: {CoreDir: []int{1, 2}, SliceDir: []int{0}},
			},
			func(i int) float64 { return weights[i/4]*basis[i%4] + 10 })
	}

	t.Run("Recovers A Single Component", func(t *testing.T) {
		p, err := Registry().Build(ComponentAnalysisName, map[string]any{"number_of_components": 1})
		require.NoError(t, err)

		chain := runOne(t, p, nil, spectra(t))

		scores, err := chain.Dataset(ScoresName)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3, 1}, scores.Shape())

		eig := output(t, chain, EigenvectorsName)
		require.Len(t, eig, 4)
		norm := math.Sqrt(6)
		var dot float64
		for j := range eig {
			dot += eig[j] * basis[j] / norm
		}
		assert.InDelta(t, 1, math.Abs(dot), 1e-9, "eigenvector %v is not parallel to the basis", eig)

		for i, s := range readAll(t, scores) {
			assert.InDelta(t, math.Abs(weights[i]-3.5)*norm, math.Abs(s), 1e-9, "score %d", i)
		}
	})

	t.Run("Too Many Components", func(t *testing.T) {
		p, err := NewComponentAnalysis(mustParams(t, ComponentAnalysisSchema, map[string]any{"number_of_components": 5}))
		require.NoError(t, err)
		b := framez.NewBinding([]*framez.Dataset{spectra(t)}, []*framez.Dataset{framez.NewDataset("s"), framez.NewDataset("e")}, framez.Params{}, nil)
		assert.ErrorIs(t, p.Setup(b), framez.ErrParameter)
	})

	t.Run("Pattern Must Hold Only The Spectrum", func(t *testing.T) {
		p, err := NewComponentAnalysis(mustParams(t, ComponentAnalysisSchema, map[string]any{"chunk": framez.PatternProjection}))
		require.NoError(t, err)
		b := framez.NewBinding([]*framez.Dataset{spectra(t)}, []*framez.Dataset{framez.NewDataset("s"), framez.NewDataset("e")}, framez.Params{}, nil)
		assert.ErrorIs(t, p.Setup(b), framez.ErrPattern)
	})

	t.Run("Non Positive Components", func(t *testing.T) {
		_, err := NewComponentAnalysis(mustParams(t, ComponentAnalysisSchema, map[string]any{"number_of_components": 0}))
		assert.ErrorIs(t, err, framez.ErrParameter)
	})
}

func TestHoganAbsorptionCorrection(t *testing.T) {
	const angles, rows, cols, channels = 3, 2, 4, 2
	transmission := math.Pow(10, -0.1)

	xrf := func(t *testing.T, theta []float64) *framez.Dataset {
		d := newData(t, "xrf", []int{angles, rows, cols, channels},
			[]string{"rotation_angle.degrees", "y.pixel", "x.pixel", "channel.unit"},
			map[string]framez.Pattern{
				framez.PatternSpectralSinogram: {CoreDir: []int{0, 2, 3}, SliceDir: []int{1}},
			},
			func(i int) float64 { return float64(i + 1) })
		d.MetaData().Set(MetaRotationAngle, theta)
		return d
	}
	stxm := func(t *testing.T) *framez.Dataset {
		return newData(t, "stxm", []int{angles, rows, cols},
			[]string{"rotation_angle.degrees", "y.pixel", "x.pixel"},
			map[string]framez.Pattern{
				framez.PatternSinogram: {CoreDir: []int{0, 2}, SliceDir: []int{1}},
			},
			func(int) float64 { return transmission })
	}
	build := func(t *testing.T, ratios []float64) framez.Plugin {
		p, err := Registry().Build(HoganAbsorptionCorrectionName, map[string]any{"attenuation_ratios": ratios})
		require.NoError(t, err)
		return p
	}

	t.Run("Uniform Absorption", func(t *testing.T) {
		ratios := []float64{1, 3}
		chain := runOne(t, build(t, ratios), []framez.Name{"corrected"}, xrf(t, []float64{0, 5, 10}), stxm(t))

		got := output(t, chain, "corrected")
		want := make([]float64, len(got))
		for i := range want {
			// Absorption is 0.1 everywhere, so each channel scales by exp(-0.01 * ratio).
			want[i] = float64(i+1) * math.Exp(-0.01*ratios[i%channels])
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("corrected values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Rolled Absorption Running Mean", func(t *testing.T) {
		// One row of three pixels at three angles. A 30 degree step with a
		// -45 degree offset shifts the absorption sinogram by -2 angles.
		absorption := []float64{
			0.1, 0.2, 0.3,
			0.4, 0.0, 0.2,
			0.3, 0.1, 0.5,
		}
		fluo := newData(t, "xrf", []int{3, 1, 3, 1},
			[]string{"rotation_angle.degrees", "y.pixel", "x.pixel", "channel.unit"},
			map[string]framez.Pattern{
				framez.PatternSpectralSinogram: {CoreDir: []int{0, 2, 3}, SliceDir: []int{1}},
			},
			func(int) float64 { return 2 })
		fluo.MetaData().Set(MetaRotationAngle, []float64{0, 30, 60})
		abs := newData(t, "stxm", []int{3, 1, 3},
			[]string{"rotation_angle.degrees", "y.pixel", "x.pixel"},
			map[string]framez.Pattern{
				framez.PatternSinogram: {CoreDir: []int{0, 2}, SliceDir: []int{1}},
			},
			func(i int) float64 { return math.Pow(10, -absorption[i]) })
		p, err := Registry().Build(HoganAbsorptionCorrectionName, map[string]any{
			"attenuation_ratios": []float64{2},
			"azimuthal_offset":   -45.0,
		})
		require.NoError(t, err)

		chain := runOne(t, p, []framez.Name{"corrected"}, fluo, abs)
		got := output(t, chain, "corrected")

		// Angle a takes the absorption of angle a-1; each value is scaled by
		// its running mean along x.
		rolled := [][]float64{{0.3, 0.1, 0.5}, {0.1, 0.2, 0.3}, {0.4, 0.0, 0.2}}
		mean := [][]float64{{0.3, 0.2, 0.3}, {0.1, 0.15, 0.2}, {0.4, 0.2, 0.2}}
		want := make([]float64, 0, 9)
		for a := range rolled {
			for x := range rolled[a] {
				want = append(want, 2*math.Exp(-2*mean[a][x]*rolled[a][x]))
			}
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("corrected values mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Channel Count Mismatch", func(t *testing.T) {
		chain := framez.NewChain("hogan")
		defer chain.Close()
		require.NoError(t, chain.AddDataset(xrf(t, []float64{0, 5, 10})))
		require.NoError(t, chain.AddDataset(stxm(t)))
		require.NoError(t, chain.Register(build(t, []float64{1}), nil, []framez.Name{"corrected"}))

		assert.ErrorIs(t, chain.Setup(context.Background()), framez.ErrParameter)
	})

	t.Run("Zero Rotation Step", func(t *testing.T) {
		chain := framez.NewChain("hogan")
		defer chain.Close()
		require.NoError(t, chain.AddDataset(xrf(t, []float64{0, 0, 0})))
		require.NoError(t, chain.AddDataset(stxm(t)))
		require.NoError(t, chain.Register(build(t, []float64{1, 1}), nil, []framez.Name{"corrected"}))

		err := chain.Run(context.Background())
		assert.ErrorIs(t, err, framez.ErrShape)
		var ce *framez.ChainError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, framez.PhasePreProcess, ce.Phase)
	})
}

func mustParams(t *testing.T, s framez.Schema, raw map[string]any) framez.Params {
	t.Helper()
	p, err := s.Resolve(raw)
	require.NoError(t, err)
	return p
}
