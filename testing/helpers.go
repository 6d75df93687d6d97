// Package testing provides test utilities and helpers for framez plugins and
// chains.
//
// This package includes a configurable mock plugin, synthetic dataset
// builders and assertion helpers to make testing chains easier.
//
// Example usage:
//
//	func TestMyChain(t *testing.T) {
//		d, err := ftesting.NewRampDataset("raw", []int{4, 3, 2}, ftesting.Stack3D())
//		require.NoError(t, err)
//
//		mock := ftesting.NewMockPlugin(t, "mock").WithPattern(framez.PatternProjection, 2)
//		chain := framez.NewChain("test")
//		require.NoError(t, chain.AddDataset(d))
//		require.NoError(t, chain.Register(mock, nil, nil))
//		require.NoError(t, chain.Run(context.Background()))
//
//		ftesting.AssertFrames(t, mock, 2)
//	}
package testing

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/framez"
)

// MockPlugin provides a configurable mock implementation of framez.Plugin.
// Outputs are template copies of the inputs (output j copies input
// j mod inputs) and, by default, frames are copied through unchanged.
// It counts every lifecycle call and records the frame indices it saw.
type MockPlugin struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t          *testing.T
	name       framez.Name
	arity      framez.Arity
	outputs    []framez.Name
	shape      []int
	pattern    string
	maxFrames  int
	fn         func(ctx context.Context, in, out []*framez.Frame) error
	frameErr   error
	failFrame  int
	setupErr   error
	panicMsg   string
	delay      time.Duration
	mu         sync.RWMutex
	indices    []int
	setups     atomic.Int64
	preCalls   atomic.Int64
	postCalls  atomic.Int64
	frameCalls atomic.Int64
}

// NewMockPlugin creates a one-in, one-out mock working on single PROJECTION
// frames.
func NewMockPlugin(t *testing.T, name framez.Name) *MockPlugin {
	return &MockPlugin{
		t:         t,
		name:      name,
		arity:     framez.Arity{Inputs: 1, Outputs: 1},
		pattern:   framez.PatternProjection,
		maxFrames: 1,
		failFrame: -1,
	}
}

// WithArity sets the number of inputs and outputs. A mock with no inputs
// creates its outputs with the shape set by WithShape.
func (m *MockPlugin) WithArity(inputs, outputs int) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.arity = framez.Arity{Inputs: inputs, Outputs: outputs}
	return m
}

// WithPattern sets the pattern and frame size selected on every dataset.
func (m *MockPlugin) WithPattern(pattern string, maxFrames int) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pattern = pattern
	m.maxFrames = maxFrames
	return m
}

// WithShape sets the output shape of a mock without inputs. The outputs get
// the Stack3D patterns when the shape has rank 3.
func (m *MockPlugin) WithShape(shape ...int) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shape = slices.Clone(shape)
	return m
}

// WithDefaultOutputs makes the mock implement framez.OutputNamer.
func (m *MockPlugin) WithDefaultOutputs(names ...framez.Name) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = slices.Clone(names)
	return m
}

// WithFunc replaces the default copy-through frame processing.
func (m *MockPlugin) WithFunc(fn func(ctx context.Context, in, out []*framez.Frame) error) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithFrameError makes ProcessFrames fail with err on the given frame, or on
// every frame when frame is negative.
func (m *MockPlugin) WithFrameError(frame int, err error) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFrame = frame
	m.frameErr = err
	return m
}

// WithSetupError makes Setup fail with err.
func (m *MockPlugin) WithSetupError(err error) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setupErr = err
	return m
}

// WithPanic configures the mock to panic in ProcessFrames with a specific
// message.
func (m *MockPlugin) WithPanic(msg string) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithDelay delays every frame. The delay honours context cancellation.
func (m *MockPlugin) WithDelay(d time.Duration) *MockPlugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Name implements framez.Plugin.
func (m *MockPlugin) Name() framez.Name {
	return m.name
}

// Arity implements framez.Plugin.
func (m *MockPlugin) Arity() framez.Arity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.arity
}

// DefaultOutputs implements framez.OutputNamer. It returns nil unless
// WithDefaultOutputs was called.
func (m *MockPlugin) DefaultOutputs() []framez.Name {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.outputs)
}

// Setup implements framez.Plugin.
func (m *MockPlugin) Setup(b *framez.Binding) error {
	m.setups.Add(1)
	m.mu.RLock()
	pattern, maxFrames, shape, setupErr := m.pattern, m.maxFrames, m.shape, m.setupErr
	m.mu.RUnlock()
	if setupErr != nil {
		return setupErr
	}

	in := b.In()
	for j, d := range b.Out() {
		var err error
		if len(in) > 0 {
			err = d.CreateDataset(framez.FromTemplate(in[j%len(in)]))
		} else {
			err = createStack(d, shape)
		}
		if err != nil {
			return err
		}
	}
	for _, pd := range append(b.InData(), b.OutData()...) {
		if err := pd.Setup(pattern, maxFrames); err != nil {
			return err
		}
	}
	return nil
}

// PreProcess implements framez.PreProcessor.
func (m *MockPlugin) PreProcess(context.Context, *framez.Binding) error {
	m.preCalls.Add(1)
	return nil
}

// PostProcess implements framez.PostProcessor.
func (m *MockPlugin) PostProcess(context.Context, *framez.Binding) error {
	m.postCalls.Add(1)
	return nil
}

// ProcessFrames implements framez.Plugin.
func (m *MockPlugin) ProcessFrames(ctx context.Context, in, out []*framez.Frame) error {
	m.frameCalls.Add(1)
	index := -1
	switch {
	case len(out) > 0:
		index = out[0].Index()
	case len(in) > 0:
		index = in[0].Index()
	}

	m.mu.Lock()
	m.indices = append(m.indices, index)
	fn, delay, panicMsg := m.fn, m.delay, m.panicMsg
	failFrame, frameErr := m.failFrame, m.frameErr
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if frameErr != nil && (failFrame < 0 || failFrame == index) {
		return frameErr
	}
	if fn != nil {
		return fn(ctx, in, out)
	}
	for j, f := range out {
		if len(in) == 0 {
			continue
		}
		src := in[j%len(in)].Data()
		if len(src) == len(f.Data()) {
			copy(f.Data(), src)
		}
	}
	return nil
}

// SetupCount returns the number of Setup calls.
func (m *MockPlugin) SetupCount() int {
	return int(m.setups.Load())
}

// PreProcessCount returns the number of PreProcess calls.
func (m *MockPlugin) PreProcessCount() int {
	return int(m.preCalls.Load())
}

// PostProcessCount returns the number of PostProcess calls.
func (m *MockPlugin) PostProcessCount() int {
	return int(m.postCalls.Load())
}

// FrameCount returns the number of ProcessFrames calls.
func (m *MockPlugin) FrameCount() int {
	return int(m.frameCalls.Load())
}

// FrameIndices returns the frame indices seen, sorted.
func (m *MockPlugin) FrameIndices() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.indices)
	slices.Sort(out)
	return out
}

// Reset clears all call tracking.
func (m *MockPlugin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indices = nil
	m.setups.Store(0)
	m.preCalls.Store(0)
	m.postCalls.Store(0)
	m.frameCalls.Store(0)
}

// Datasets

// Stack3D returns the PROJECTION and SINOGRAM patterns of an
// (angle, y, x) stack.
func Stack3D() map[string]framez.Pattern {
	return map[string]framez.Pattern{
		framez.PatternProjection: {CoreDir: []int{1, 2}, SliceDir: []int{0}},
		framez.PatternSinogram:   {CoreDir: []int{0, 2}, SliceDir: []int{1}},
	}
}

// NewRampDataset builds an allocated in-memory dataset whose element at flat
// row-major position i holds float64(i).
func NewRampDataset(name framez.Name, shape []int, patterns map[string]framez.Pattern) (*framez.Dataset, error) {
	d := framez.NewDataset(name)
	labels := make([]framez.AxisLabel, len(shape))
	for i := range shape {
		labels[i] = framez.AxisLabel{Name: fmt.Sprintf("axis%d", i), Unit: "pixel"}
	}
	if err := d.CreateDataset(framez.WithShape(shape...), framez.WithAxisLabels(labels...)); err != nil {
		return nil, err
	}
	for pname, p := range patterns {
		if err := d.AddPattern(pname, p); err != nil {
			return nil, err
		}
	}
	if err := d.Allocate(framez.MemoryBackend{}); err != nil {
		return nil, err
	}
	data := make([]float64, d.Size())
	for i := range data {
		data[i] = float64(i)
	}
	if err := d.WriteRegion(make([]int, len(shape)), shape, data); err != nil {
		return nil, err
	}
	return d, nil
}

// ReadAll returns the whole contents of an allocated dataset in row-major
// order.
func ReadAll(d *framez.Dataset) ([]float64, error) {
	data := make([]float64, d.Size())
	if err := d.ReadRegion(make([]int, d.Rank()), d.Shape(), data); err != nil {
		return nil, err
	}
	return data, nil
}

func createStack(d *framez.Dataset, shape []int) error {
	labels := make([]framez.AxisLabel, len(shape))
	for i := range shape {
		labels[i] = framez.AxisLabel{Name: fmt.Sprintf("axis%d", i), Unit: "pixel"}
	}
	if err := d.CreateDataset(framez.WithShape(shape...), framez.WithAxisLabels(labels...)); err != nil {
		return err
	}
	if len(shape) != 3 {
		return nil
	}
	for pname, p := range Stack3D() {
		if err := d.AddPattern(pname, p); err != nil {
			return err
		}
	}
	return nil
}

// Assertion Helpers

// AssertFrames verifies that a mock plugin processed exactly n frames.
func AssertFrames(t *testing.T, mock *MockPlugin, expected int) {
	t.Helper()
	if actual := mock.FrameCount(); actual != expected {
		t.Errorf("expected mock plugin %s to process %d frames, but processed %d",
			mock.name, expected, actual)
	}
}

// AssertNotRun verifies that a mock plugin never processed a frame.
func AssertNotRun(t *testing.T, mock *MockPlugin) {
	t.Helper()
	AssertFrames(t, mock, 0)
}

// AssertDataset verifies the contents of a dataset element by element within
// tol.
func AssertDataset(t *testing.T, d *framez.Dataset, want []float64, tol float64) {
	t.Helper()
	got, err := ReadAll(d)
	if err != nil {
		t.Errorf("reading dataset %s: %v", d.Name(), err)
		return
	}
	if len(got) != len(want) {
		t.Errorf("dataset %s has %d elements, want %d", d.Name(), len(got), len(want))
		return
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("dataset %s element %d = %v, want %v", d.Name(), i, got[i], want[i])
			return
		}
	}
}

// Helper Functions

// WaitForFrames waits for a mock plugin to process at least n frames, with a
// timeout. Returns true if the expected frames were reached.
func WaitForFrames(mock *MockPlugin, expected int, timeout time.Duration) bool {
	start := time.Now()
	for time.Since(start) < timeout {
		if mock.FrameCount() >= expected {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// ParallelTest runs a test function in parallel with multiple goroutines.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}

	wg.Wait()
}
