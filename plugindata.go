package framez

import (
	"fmt"
	"math"
	"slices"
	"sync"
)

// AllFrames requests the whole slice space of a pattern in a single frame.
const AllFrames = math.MaxInt32

// PluginData binds one dataset to one plugin step: it records the pattern the
// plugin wants the data in and how many slices go into each frame, and hands
// out frames accordingly.
//
// The Chain creates a PluginData for every input and output of a step before
// calling the plugin's Setup. The plugin then selects its pattern:
//
//	func (p *Median) Setup(b *framez.Binding) error {
//	    if err := b.InData()[0].Setup(framez.PatternSinogram, 8); err != nil {
//	        return err
//	    }
//	    ...
//	}
type PluginData struct {
	dataset     *Dataset
	strategy    FrameStrategy
	geom        *geometry
	bufs        *sync.Pool
	pattern     Pattern
	patternName string
	requested   int
	maxFrames   int
	frames      int
	mu          sync.RWMutex
	bound       bool
}

// NewPluginData creates an unbound PluginData for d.
func NewPluginData(d *Dataset) *PluginData {
	return &PluginData{
		dataset:  d,
		strategy: ContiguousFrames{},
	}
}

// Setup binds the PluginData to the named pattern of its dataset with at most
// maxFrames slices per frame. The effective maximum is capped at the number
// of slices. A pattern the dataset does not register fails with ErrPattern
// and leaves the PluginData unbound, even if an earlier Setup succeeded.
func (pd *PluginData) Setup(pattern string, maxFrames int) error {
	if maxFrames <= 0 {
		pd.unbind()
		return fmt.Errorf("%w: max frames %d for %q must be positive", ErrShape, maxFrames, pd.dataset.Name())
	}
	p, err := pd.dataset.Pattern(pattern)
	if err != nil {
		pd.unbind()
		return err
	}

	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.pattern = p
	pd.patternName = pattern
	pd.requested = maxFrames
	pd.bound = true
	pd.layout()
	return nil
}

// unbind drops any earlier binding after a failed Setup.
func (pd *PluginData) unbind() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.bound = false
	pd.geom = nil
	pd.bufs = nil
	pd.patternName = ""
	pd.pattern = Pattern{}
	pd.maxFrames, pd.frames = 0, 0
}

// SetStrategy replaces the frame grouping strategy. It must be called before
// frames are requested.
func (pd *PluginData) SetStrategy(s FrameStrategy) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.strategy = s
	if pd.bound {
		pd.layout()
	}
}

// layout derives the frame geometry from the dataset's current shape.
// Callers hold pd.mu.
func (pd *PluginData) layout() {
	pd.geom = newGeometry(pd.dataset.Shape(), pd.pattern)
	pd.maxFrames = min(pd.requested, pd.geom.sliceSize)
	pd.frames = pd.strategy.FrameCount(pd.geom.sliceSize, pd.maxFrames)
	size := pd.maxFrames * pd.geom.coreSize
	pd.bufs = &sync.Pool{New: func() any {
		buf := make([]float64, size)
		return &buf
	}}
}

// refresh recomputes the geometry after the producer of the dataset has
// finished shaping it.
func (pd *PluginData) refresh() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if pd.bound {
		pd.layout()
	}
}

// Dataset returns the bound dataset.
func (pd *PluginData) Dataset() *Dataset {
	return pd.dataset
}

// Bound reports whether Setup has succeeded.
func (pd *PluginData) Bound() bool {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return pd.bound
}

// Pattern returns the selected pattern name.
func (pd *PluginData) Pattern() (string, error) {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	if !pd.bound {
		return "", pd.unbound()
	}
	return pd.patternName, nil
}

// MaxFrames returns the effective number of slices per frame.
func (pd *PluginData) MaxFrames() (int, error) {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	if !pd.bound {
		return 0, pd.unbound()
	}
	return pd.maxFrames, nil
}

// FrameCount returns the number of frames needed to cover the slice space.
func (pd *PluginData) FrameCount() (int, error) {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	if !pd.bound {
		return 0, pd.unbound()
	}
	return pd.frames, nil
}

// FrameShape returns [MaxFrames, core extents...].
func (pd *PluginData) FrameShape() ([]int, error) {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	if !pd.bound {
		return nil, pd.unbound()
	}
	return append([]int{pd.maxFrames}, pd.geom.coreShape...), nil
}

// SliceShape returns the extents of the slice axes in SliceDir order.
func (pd *PluginData) SliceShape() ([]int, error) {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	if !pd.bound {
		return nil, pd.unbound()
	}
	return slices.Clone(pd.geom.sliceShape), nil
}

// Frame reads the index-th frame from the dataset. The frame holds a copy;
// the dataset is unchanged.
func (pd *PluginData) Frame(index int) (*Frame, error) {
	f, err := pd.frame(index)
	if err != nil {
		return nil, err
	}
	err = pd.dataset.view(func(store Store) error {
		for k := 0; k < f.n; k++ {
			start, count := f.geom.region(f.first + k)
			if err := store.ReadRegion(start, count, f.Slice(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		pd.recycle(f)
		return nil, fmt.Errorf("reading %v: %w", f, err)
	}
	return f, nil
}

// NewFrame returns a zeroed frame for the index-th batch, to be filled and
// committed by the caller.
func (pd *PluginData) NewFrame(index int) (*Frame, error) {
	f, err := pd.frame(index)
	if err != nil {
		return nil, err
	}
	clear(f.data)
	return f, nil
}

// WriteFrame commits every slice of f to the dataset under one exclusive
// lock.
func (pd *PluginData) WriteFrame(f *Frame) error {
	if f.owner != pd {
		return fmt.Errorf("%w: %v does not belong to %q", ErrIndex, f, pd.dataset.Name())
	}
	err := pd.dataset.update(func(store Store) error {
		for k := 0; k < f.n; k++ {
			start, count := f.geom.region(f.first + k)
			if err := store.WriteRegion(start, count, f.Slice(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %v: %w", f, err)
	}
	return nil
}

func (pd *PluginData) frame(index int) (*Frame, error) {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	if !pd.bound {
		return nil, pd.unbound()
	}
	if index < 0 || index >= pd.frames {
		return nil, fmt.Errorf("%w: frame %d outside [0, %d) for %q", ErrIndex, index, pd.frames, pd.dataset.Name())
	}
	first, n := pd.strategy.FrameRange(index, pd.geom.sliceSize, pd.maxFrames)
	buf := pd.bufs.Get().(*[]float64)
	return &Frame{
		owner: pd,
		geom:  pd.geom,
		data:  (*buf)[:n*pd.geom.coreSize],
		index: index,
		first: first,
		n:     n,
	}, nil
}

// recycle returns a frame buffer to the pool. The frame must not be used
// afterwards.
func (pd *PluginData) recycle(f *Frame) {
	if f == nil || f.data == nil {
		return
	}
	buf := f.data[:cap(f.data)]
	f.data = nil
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	if pd.geom != nil && f.geom == pd.geom {
		pd.bufs.Put(&buf)
	}
}

func (pd *PluginData) unbound() error {
	return fmt.Errorf("%w: %q", ErrUnbound, pd.dataset.Name())
}
