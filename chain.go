package framez

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
	"go.uber.org/zap"
)

// Observability constants for the Chain.
const (
	// Metrics.
	ChainRunsTotal        = metricz.Key("chain.runs.total")
	ChainSuccessesTotal   = metricz.Key("chain.successes.total")
	ChainFailuresTotal    = metricz.Key("chain.failures.total")
	ChainFramesTotal      = metricz.Key("chain.frames.total")
	ChainFramesFailed     = metricz.Key("chain.frames.failed")
	ChainPluginsCompleted = metricz.Key("chain.plugins.completed")
	ChainPluginsTotal     = metricz.Key("chain.plugins.total")
	ChainWorkersMax       = metricz.Key("chain.workers.max")
	ChainWorkersActive    = metricz.Key("chain.workers.active")
	ChainFrameDurationMs  = metricz.Key("chain.frame.duration.ms")
	ChainDurationMs       = metricz.Key("chain.duration.ms")

	// Spans.
	ChainSetupSpan  = tracez.Key("chain.setup")
	ChainRunSpan    = tracez.Key("chain.run")
	ChainPluginSpan = tracez.Key("chain.plugin")
	ChainFrameSpan  = tracez.Key("chain.frame")

	// Tags.
	ChainTagRunID       = tracez.Tag("chain.run_id")
	ChainTagPluginCount = tracez.Tag("chain.plugin_count")
	ChainTagPluginName  = tracez.Tag("chain.plugin_name")
	ChainTagStep        = tracez.Tag("chain.step")
	ChainTagFrame       = tracez.Tag("chain.frame")
	ChainTagFrameCount  = tracez.Tag("chain.frame_count")
	ChainTagSuccess     = tracez.Tag("chain.success")
	ChainTagError       = tracez.Tag("chain.error")

	// Hook event keys.
	ChainEventFrameComplete  = hookz.Key("chain.frame_complete")
	ChainEventPluginComplete = hookz.Key("chain.plugin_complete")
	ChainEventComplete       = hookz.Key("chain.complete")
	ChainEventFailed         = hookz.Key("chain.failed")
)

// State is the lifecycle state of a Chain.
type State int

// Chain states. A chain moves strictly forward through them; StateFailed can
// be entered from any state and is terminal.
const (
	StateUnconfigured State = iota
	StateSetupDone
	StateRunning
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateSetupDone:
		return "setup_done"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// ChainEvent is emitted via hookz as frames, plugins and whole runs finish.
type ChainEvent struct {
	Timestamp   time.Time     // When the event occurred
	Error       error         // Error if the frame, plugin or run failed
	RunID       string        // Unique id of the run
	Chain       Name          // Chain name
	Plugin      Name          // Plugin name (frame and plugin events)
	Step        int           // Plugin position in the chain
	Frame       int           // Frame index (frame events), -1 otherwise
	TotalFrames int           // Frame count of the step
	TotalSteps  int           // Number of plugins in the chain
	Duration    time.Duration // Duration of the frame, plugin or run
	Success     bool          // Whether it succeeded
}

// Progress reports where a running chain is.
type Progress struct {
	Plugin     Name  `json:"plugin,omitempty"`
	State      State `json:"state"`
	Step       int   `json:"step"`
	Frames     int   `json:"frames"`
	FramesDone int   `json:"frames_done"`
}

// Step declares one plugin of a chain together with the datasets it reads and
// writes. Empty In means the previous step's outputs; empty Out means the
// plugin's DefaultOutputs or, when it names none and the plugin has as many
// outputs as inputs, the input names (the outputs then replace the inputs for later steps).
type Step struct {
	Plugin Plugin
	Params Params
	In     []Name
	Out    []Name
}

type step struct {
	binding *Binding
	Step
	in     []Name
	out    []Name
	frames int
}

// Chain runs a sequence of plugins over named datasets.
//
// Running a chain has two phases. Setup walks the plugins left to right:
// it resolves dataset names, checks arity, creates output placeholders,
// calls each plugin's Setup and freezes the outputs, so every shape and
// pattern is known before any data moves. Run then executes the plugins one
// after another, each over all of its frames, allocating outputs lazily.
//
// # Observability
//
// Metrics:
//   - chain.runs.total: Counter of Run calls
//   - chain.successes.total: Counter of successful runs
//   - chain.failures.total: Counter of failed setups and runs
//   - chain.frames.total: Counter of committed frames
//   - chain.frames.failed: Counter of failed frames
//   - chain.plugins.completed: Gauge of plugins completed in the current run
//   - chain.plugins.total: Gauge of plugins in the chain
//   - chain.workers.max: Gauge of the frame worker limit
//   - chain.workers.active: Gauge of frames currently in ProcessFrames
//   - chain.frame.duration.ms: Gauge of the last frame duration
//   - chain.duration.ms: Gauge of the last run duration
//
// Traces:
//   - chain.setup: Span for Setup
//   - chain.run: Parent span for a run
//   - chain.plugin: Child span per plugin
//   - chain.frame: Child span per frame
//
// Events (via hooks):
//   - chain.frame_complete: Fired as each frame finishes
//   - chain.plugin_complete: Fired as each plugin finishes
//   - chain.complete: Fired when a run succeeds
//   - chain.failed: Fired when setup or a run fails
//
// Example:
//
//	chain := framez.NewChain("tomo-recon", framez.WithWorkers(4))
//	_ = chain.AddDataset(tomo)
//	_ = chain.Register(darkFlat, nil, nil)
//	_ = chain.Register(median, nil, []framez.Name{"filtered"})
//
//	chain.OnPluginComplete(func(ctx context.Context, e framez.ChainEvent) error {
//	    log.Printf("%s done in %v", e.Plugin, e.Duration)
//	    return nil
//	})
//
//	if err := chain.Run(ctx); err != nil {
//	    var ce *framez.ChainError
//	    if errors.As(err, &ce) {
//	        log.Printf("failed at %s frame %d", ce.Plugin, ce.Frame)
//	    }
//	}
type Chain struct {
	backend      Backend
	clock        clockz.Clock
	datasets     map[Name]*Dataset
	logger       *zap.Logger
	metrics      *metricz.Registry
	tracer       *tracez.Tracer
	hooks        *hookz.Hooks[ChainEvent]
	name         Name
	loaders      []*Dataset
	produced     []*Dataset
	steps        []*step
	progress     Progress
	framesDone   atomic.Int64
	active       atomic.Int64
	workers      int
	frameTimeout time.Duration
	runMu        sync.Mutex
	mu           sync.RWMutex
	closed       bool
}

// Option configures a Chain.
type Option func(*Chain)

// WithWorkers sets how many frames of a plugin may be processed at once.
// The default of 1 processes frames strictly in slice order.
func WithWorkers(n int) Option {
	return func(c *Chain) {
		if n <= 0 {
			n = 1
		}
		c.workers = n
	}
}

// WithBackend sets the storage backend for plugin outputs.
// Defaults to MemoryBackend.
func WithBackend(b Backend) Option {
	return func(c *Chain) {
		c.backend = b
	}
}

// WithLogger sets the logger. Plugins receive named children of it.
func WithLogger(l *zap.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets a custom clock for testing.
func WithClock(clock clockz.Clock) Option {
	return func(c *Chain) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithFrameTimeout bounds each ProcessFrames call. Zero means no limit.
func WithFrameTimeout(d time.Duration) Option {
	return func(c *Chain) {
		c.frameTimeout = d
	}
}

// NewChain creates an empty chain.
func NewChain(name Name, opts ...Option) *Chain {
	// Initialize observability
	metrics := metricz.New()
	metrics.Counter(ChainRunsTotal)
	metrics.Counter(ChainSuccessesTotal)
	metrics.Counter(ChainFailuresTotal)
	metrics.Counter(ChainFramesTotal)
	metrics.Counter(ChainFramesFailed)
	metrics.Gauge(ChainPluginsCompleted)
	metrics.Gauge(ChainPluginsTotal)
	metrics.Gauge(ChainWorkersMax)
	metrics.Gauge(ChainWorkersActive)
	metrics.Gauge(ChainFrameDurationMs)
	metrics.Gauge(ChainDurationMs)

	c := &Chain{
		name:     name,
		backend:  MemoryBackend{},
		clock:    clockz.RealClock,
		datasets: make(map[Name]*Dataset),
		logger:   zap.NewNop(),
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[ChainEvent](),
		workers:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("chain", name))
	c.metrics.Gauge(ChainWorkersMax).Set(float64(c.workers))
	return c
}

// AddDataset makes a loader-provided dataset available to the chain. The
// dataset must be created; it is frozen by this call. The first plugin reads
// the loader datasets in the order they were added unless it names its
// inputs.
func (c *Chain) AddDataset(d *Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress.State != StateUnconfigured {
		return fmt.Errorf("%w: cannot add dataset %q in state %v", ErrState, d.Name(), c.progress.State)
	}
	if _, exists := c.datasets[d.Name()]; exists {
		return fmt.Errorf("%w: %q is already defined", ErrDataset, d.Name())
	}
	if err := d.freeze(); err != nil {
		return err
	}
	c.datasets[d.Name()] = d
	c.loaders = append(c.loaders, d)
	return nil
}

// Register appends a plugin reading in and writing out.
func (c *Chain) Register(p Plugin, in, out []Name) error {
	return c.Push(Step{Plugin: p, In: in, Out: out})
}

// Push appends steps to the chain.
func (c *Chain) Push(steps ...Step) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress.State != StateUnconfigured {
		return fmt.Errorf("%w: cannot add plugins in state %v", ErrState, c.progress.State)
	}
	for _, s := range steps {
		s.In = slices.Clone(s.In)
		s.Out = slices.Clone(s.Out)
		c.steps = append(c.steps, &step{Step: s})
	}
	c.metrics.Gauge(ChainPluginsTotal).Set(float64(len(c.steps)))
	return nil
}

// Setup resolves the dataset graph and sets up every plugin, left to right.
// Any configuration error, from an arity mismatch to a pattern a dataset does
// not register, is returned here as a *ChainError and leaves the chain
// failed. Calling Setup again after success is a no-op.
func (c *Chain) Setup(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return c.setup(ctx)
}

func (c *Chain) setup(ctx context.Context) (err error) {
	switch state := c.State(); state {
	case StateSetupDone:
		return nil
	case StateUnconfigured:
	default:
		return fmt.Errorf("%w: setup in state %v", ErrState, state)
	}

	c.mu.RLock()
	steps := slices.Clone(c.steps)
	c.mu.RUnlock()

	ctx, span := c.tracer.StartSpan(ctx, ChainSetupSpan)
	span.SetTag(ChainTagPluginCount, strconv.Itoa(len(steps)))
	defer func() {
		if err == nil {
			span.SetTag(ChainTagSuccess, "true")
		} else {
			span.SetTag(ChainTagSuccess, "false")
			span.SetTag(ChainTagError, err.Error())
		}
		span.Finish()
	}()

	start := c.clock.Now()
	if err = c.resolve(steps, start); err == nil {
		for i, st := range steps {
			if err = ctx.Err(); err != nil {
				err = newChainError(err, st.Plugin.Name(), i, -1, PhaseSetup, start, c.clock.Now())
				break
			}
			if err = c.setupStep(i, st, start); err != nil {
				break
			}
		}
	}
	if err != nil {
		c.fail(ctx, "", err, start)
		return err
	}

	c.setState(StateSetupDone)
	c.logger.Info("chain setup complete", zap.Int("plugins", len(steps)))
	return nil
}

// resolve names every step's inputs and outputs and checks them against the
// plugin's arity before any plugin Setup runs.
func (c *Chain) resolve(steps []*step, start time.Time) error {
	c.mu.RLock()
	available := make(map[Name]bool, len(c.datasets))
	prev := make([]Name, 0, len(c.loaders))
	for _, d := range c.loaders {
		available[d.Name()] = true
		prev = append(prev, d.Name())
	}
	c.mu.RUnlock()

	for i, st := range steps {
		p := st.Plugin
		arity := p.Arity()
		fail := func(err error) error {
			return newChainError(err, p.Name(), i, -1, PhaseResolve, start, c.clock.Now())
		}

		in := st.In
		if len(in) == 0 && arity.Inputs > 0 {
			in = slices.Clone(prev)
		}
		out := st.Out
		if len(out) == 0 {
			if namer, ok := p.(OutputNamer); ok {
				out = namer.DefaultOutputs()
			}
			if len(out) == 0 && arity.Outputs == len(in) {
				out = slices.Clone(in)
			}
		}

		if len(in) != arity.Inputs {
			return fail(fmt.Errorf("%w: %d inputs %v, plugin takes %d", ErrArity, len(in), in, arity.Inputs))
		}
		if len(out) != arity.Outputs {
			return fail(fmt.Errorf("%w: %d outputs %v, plugin produces %d", ErrArity, len(out), out, arity.Outputs))
		}
		for _, name := range in {
			if !available[name] {
				return fail(fmt.Errorf("%w: input %q", ErrDataset, name))
			}
		}
		for j, name := range out {
			if slices.Contains(out[:j], name) {
				return fail(fmt.Errorf("%w: output %q named twice", ErrDataset, name))
			}
			available[name] = true
		}
		st.in, st.out = in, out
		prev = out
	}
	return nil
}

// setupStep creates the step's output placeholders, runs the plugin's Setup
// and checks what it declared.
func (c *Chain) setupStep(i int, st *step, start time.Time) error {
	p := st.Plugin
	fail := func(err error) error {
		return newChainError(err, p.Name(), i, -1, PhaseSetup, start, c.clock.Now())
	}

	c.mu.RLock()
	in := make([]*Dataset, len(st.in))
	for j, name := range st.in {
		in[j] = c.datasets[name]
	}
	c.mu.RUnlock()
	out := make([]*Dataset, len(st.out))
	for j, name := range st.out {
		out[j] = NewDataset(name)
	}

	logger := c.logger.Named(p.Name()).With(zap.Int("step", i))
	b := NewBinding(in, out, st.Params, logger)
	b.step = i

	if err := setupPlugin(p, b); err != nil {
		return fail(err)
	}

	checker, _ := c.backend.(ShapeChecker)
	for _, d := range out {
		if err := d.freeze(); err != nil {
			return fail(err)
		}
		if checker == nil || d.Allocated() {
			continue
		}
		if err := checker.CheckShape(d.Shape()); err != nil {
			return fail(fmt.Errorf("output %q: %w", d.Name(), err))
		}
	}
	frames := -1
	for _, pd := range b.all() {
		if !pd.Bound() {
			return fail(fmt.Errorf("%w: plugin did not select a pattern for %q", ErrUnbound, pd.Dataset().Name()))
		}
		pd.refresh()
		n, _ := pd.FrameCount() //nolint:errcheck // bound was checked above
		if frames >= 0 && n != frames {
			return fail(fmt.Errorf("%w: %q needs %d frames, other datasets of the step need %d", ErrShape, pd.Dataset().Name(), n, frames))
		}
		frames = n
	}

	st.binding = b
	st.frames = max(frames, 0)

	c.mu.Lock()
	for _, d := range out {
		c.datasets[d.Name()] = d
		c.produced = append(c.produced, d)
	}
	c.mu.Unlock()

	logger.Debug("plugin setup",
		zap.Strings("in", st.in),
		zap.Strings("out", st.out),
		zap.Int("frames", st.frames))
	return nil
}

// Run executes every plugin over all of its frames, calling Setup first if
// needed. Steps run one after another; within a step up to WithWorkers
// frames run concurrently. The first failure cancels the step's remaining
// frames, invalidates its outputs and is returned as a *ChainError. Later
// steps do not run.
func (c *Chain) Run(ctx context.Context) (err error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if c.State() == StateUnconfigured {
		if err := c.setup(ctx); err != nil {
			return err
		}
	}
	if state := c.State(); state != StateSetupDone {
		return fmt.Errorf("%w: run in state %v", ErrState, state)
	}

	c.mu.RLock()
	steps := slices.Clone(c.steps)
	c.mu.RUnlock()

	runID := uuid.NewString()
	c.setState(StateRunning)
	c.metrics.Counter(ChainRunsTotal).Inc()
	c.metrics.Gauge(ChainPluginsCompleted).Set(0)
	start := c.clock.Now()
	logger := c.logger.With(zap.String("run_id", runID))

	ctx, span := c.tracer.StartSpan(ctx, ChainRunSpan)
	span.SetTag(ChainTagRunID, runID)
	span.SetTag(ChainTagPluginCount, strconv.Itoa(len(steps)))
	defer func() {
		elapsed := c.clock.Since(start)
		c.metrics.Gauge(ChainDurationMs).Set(float64(elapsed.Milliseconds()))
		if err == nil {
			span.SetTag(ChainTagSuccess, "true")
			c.metrics.Counter(ChainSuccessesTotal).Inc()
		} else {
			span.SetTag(ChainTagSuccess, "false")
			span.SetTag(ChainTagError, err.Error())
		}
		span.Finish()
	}()

	for i, st := range steps {
		if err := c.runStep(ctx, runID, i, st, logger); err != nil {
			for _, d := range st.binding.Out() {
				d.invalidate(err)
			}
			logger.Error("chain failed", zap.Error(err))
			c.fail(ctx, runID, err, start)
			return err
		}
		c.metrics.Gauge(ChainPluginsCompleted).Set(float64(i + 1))
	}

	c.setState(StateComplete)
	duration := c.clock.Since(start)
	logger.Info("chain complete", zap.Duration("duration", duration))
	_ = c.hooks.Emit(ctx, ChainEventComplete, ChainEvent{ //nolint:errcheck
		RunID:      runID,
		Chain:      c.name,
		Frame:      -1,
		TotalSteps: len(steps),
		Success:    true,
		Duration:   duration,
		Timestamp:  c.clock.Now(),
	})
	return nil
}

func (c *Chain) runStep(ctx context.Context, runID string, i int, st *step, logger *zap.Logger) (err error) {
	p := st.Plugin
	b := st.binding
	start := c.clock.Now()
	phase, frame := PhaseAllocate, -1

	c.mu.Lock()
	c.progress.Step = i
	c.progress.Plugin = p.Name()
	c.progress.Frames = st.frames
	c.mu.Unlock()
	c.framesDone.Store(0)

	ctx, span := c.tracer.StartSpan(ctx, ChainPluginSpan)
	span.SetTag(ChainTagPluginName, p.Name())
	span.SetTag(ChainTagStep, strconv.Itoa(i))
	span.SetTag(ChainTagFrameCount, strconv.Itoa(st.frames))
	defer func() {
		duration := c.clock.Since(start)
		if err != nil {
			err = newChainError(err, p.Name(), i, frame, phase, start, c.clock.Now())
			span.SetTag(ChainTagSuccess, "false")
			span.SetTag(ChainTagError, err.Error())
		} else {
			span.SetTag(ChainTagSuccess, "true")
			logger.Info("plugin complete",
				zap.String("plugin", p.Name()),
				zap.Int("step", i),
				zap.Int("frames", st.frames),
				zap.Duration("duration", duration))
		}
		span.Finish()
		_ = c.hooks.Emit(context.WithoutCancel(ctx), ChainEventPluginComplete, ChainEvent{ //nolint:errcheck
			RunID:       runID,
			Chain:       c.name,
			Plugin:      p.Name(),
			Step:        i,
			Frame:       -1,
			TotalFrames: st.frames,
			Success:     err == nil,
			Error:       err,
			Duration:    duration,
			Timestamp:   c.clock.Now(),
		})
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range b.In() {
		if _, err := d.storage(); err != nil {
			return err
		}
	}
	for _, d := range b.Out() {
		if err := d.Allocate(c.backend); err != nil {
			return err
		}
	}

	if pre, ok := p.(PreProcessor); ok {
		phase = PhasePreProcess
		if err := preProcess(ctx, pre, b); err != nil {
			return err
		}
	}

	phase = PhaseFrame
	if f, err := c.runFrames(ctx, runID, i, st); err != nil {
		frame = f
		return err
	}

	if post, ok := p.(PostProcessor); ok {
		phase = PhasePostProcess
		if err := postProcess(ctx, post, b); err != nil {
			return err
		}
	}
	return nil
}

// fail moves the chain to StateFailed and emits the failure event.
func (c *Chain) fail(ctx context.Context, runID string, err error, start time.Time) {
	c.setState(StateFailed)
	c.metrics.Counter(ChainFailuresTotal).Inc()

	event := ChainEvent{
		RunID:     runID,
		Chain:     c.name,
		Frame:     -1,
		Error:     err,
		Duration:  c.clock.Since(start),
		Timestamp: c.clock.Now(),
	}
	c.mu.RLock()
	event.TotalSteps = len(c.steps)
	c.mu.RUnlock()
	var ce *ChainError
	if errors.As(err, &ce) {
		event.Plugin = ce.Plugin
		event.Step = ce.Step
		event.Frame = ce.Frame
	}
	_ = c.hooks.Emit(context.WithoutCancel(ctx), ChainEventFailed, event) //nolint:errcheck
}

func (c *Chain) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.State = s
}

// State returns the lifecycle state.
func (c *Chain) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress.State
}

// Progress returns the current step and how many of its frames are done.
func (c *Chain) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.progress
	p.FramesDone = int(c.framesDone.Load())
	return p
}

// Dataset returns the dataset currently known under name: a loader dataset,
// or the output of the last step that wrote name.
func (c *Chain) Dataset(name Name) (*Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDataset, name)
	}
	return d, nil
}

// Names returns the plugin names in order.
func (c *Chain) Names() []Name {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]Name, len(c.steps))
	for i, st := range c.steps {
		names[i] = st.Plugin.Name()
	}
	return names
}

// Len returns the number of plugins.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.steps)
}

// Name returns the name of this chain.
func (c *Chain) Name() Name {
	return c.name
}

// Metrics returns the metrics registry for this chain.
func (c *Chain) Metrics() *metricz.Registry {
	return c.metrics
}

// Tracer returns the tracer for this chain.
func (c *Chain) Tracer() *tracez.Tracer {
	return c.tracer
}

// Close releases the storage of every dataset the chain produced and shuts
// down observability components. Loader datasets are left to their owner.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, d := range c.produced {
		d.release()
	}
	if c.tracer != nil {
		c.tracer.Close()
	}
	c.hooks.Close()
	return nil
}

// OnFrameComplete registers a handler called asynchronously as each frame
// finishes, whether it succeeds or fails.
func (c *Chain) OnFrameComplete(handler func(context.Context, ChainEvent) error) error {
	_, err := c.hooks.Hook(ChainEventFrameComplete, handler)
	return err
}

// OnPluginComplete registers a handler called asynchronously as each plugin
// finishes, whether it succeeds or fails.
func (c *Chain) OnPluginComplete(handler func(context.Context, ChainEvent) error) error {
	_, err := c.hooks.Hook(ChainEventPluginComplete, handler)
	return err
}

// OnChainComplete registers a handler called asynchronously when a run
// succeeds.
func (c *Chain) OnChainComplete(handler func(context.Context, ChainEvent) error) error {
	_, err := c.hooks.Hook(ChainEventComplete, handler)
	return err
}

// OnChainFailed registers a handler called asynchronously when setup or a
// run fails.
func (c *Chain) OnChainFailed(handler func(context.Context, ChainEvent) error) error {
	_, err := c.hooks.Hook(ChainEventFailed, handler)
	return err
}

func setupPlugin(p Plugin, b *Binding) (err error) {
	defer recoverFromPanic(&err)
	return p.Setup(b)
}

func preProcess(ctx context.Context, p PreProcessor, b *Binding) (err error) {
	defer recoverFromPanic(&err)
	return p.PreProcess(ctx, b)
}

func postProcess(ctx context.Context, p PostProcessor, b *Binding) (err error) {
	defer recoverFromPanic(&err)
	return p.PostProcess(ctx, b)
}

func processFrames(ctx context.Context, p Plugin, in, out []*Frame) (err error) {
	defer recoverFromPanic(&err)
	return p.ProcessFrames(ctx, in, out)
}
