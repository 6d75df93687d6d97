package framez

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these sentinels so callers can classify failures with errors.Is.
var (
	// ErrShape reports invalid or inconsistent dimensions.
	ErrShape = errors.New("shape error")
	// ErrPattern reports an unregistered or malformed pattern.
	ErrPattern = errors.New("pattern error")
	// ErrArity reports a wrong number of input or output datasets.
	ErrArity = errors.New("arity error")
	// ErrParameter reports an unknown parameter or a value of the wrong type.
	ErrParameter = errors.New("parameter error")
	// ErrIndex reports a frame index outside [0, FrameCount).
	ErrIndex = errors.New("index error")

	// ErrUnbound is returned by PluginData accessors before a successful Setup.
	ErrUnbound = errors.New("plugin data is not bound to a pattern")
	// ErrFrozen is returned when a dataset is mutated after its producer's setup.
	ErrFrozen = errors.New("dataset is frozen")
	// ErrDataset reports a dataset name that does not resolve in the chain.
	ErrDataset = errors.New("dataset not found")
	// ErrUnallocated is returned when frames are requested before storage exists.
	ErrUnallocated = errors.New("dataset storage is not allocated")
	// ErrInvalidated marks the output of a failed plugin.
	ErrInvalidated = errors.New("dataset was invalidated by a failed plugin")
	// ErrPlugin reports an unknown or duplicate plugin id in a Registry.
	ErrPlugin = errors.New("plugin not registered")
	// ErrState is returned when a Chain operation is not valid in its current state.
	ErrState = errors.New("invalid chain state")
)

// Phase identifies where in a plugin's lifecycle a ChainError occurred.
type Phase string

// Lifecycle phases reported by ChainError.
const (
	PhaseResolve     Phase = "resolve"
	PhaseSetup       Phase = "setup"
	PhaseAllocate    Phase = "allocate"
	PhasePreProcess  Phase = "pre_process"
	PhaseFrame       Phase = "frame"
	PhasePostProcess Phase = "post_process"
)

// ChainError provides rich context about a chain failure.
// It wraps the underlying error with the failing plugin, its position in the
// chain, the frame being processed (or -1 outside the frame loop) and timing.
type ChainError struct {
	Timestamp time.Time
	Err       error
	Plugin    Name
	Phase     Phase
	Step      int
	Frame     int
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

func newChainError(err error, plugin Name, step, frame int, phase Phase, start, now time.Time) *ChainError {
	return &ChainError{
		Timestamp: now,
		Err:       err,
		Plugin:    plugin,
		Phase:     phase,
		Step:      step,
		Frame:     frame,
		Duration:  now.Sub(start),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	location := fmt.Sprintf("plugin %q (step %d, %s", e.Plugin, e.Step, e.Phase)
	if e.Frame >= 0 {
		location += fmt.Sprintf(", frame %d", e.Frame)
	}
	location += ")"

	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error.
func (e *ChainError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error was caused by a timeout.
func (e *ChainError) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled returns true if the error was caused by cancellation.
func (e *ChainError) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// panicError carries a recovered plugin panic.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// recoverFromPanic converts a panic in plugin code into an error assigned to
// err. It must be deferred directly.
func recoverFromPanic(err *error) {
	if r := recover(); r != nil {
		*err = &panicError{value: r}
	}
}
