package framez

import (
	"fmt"
	"slices"
)

// Frame is one processing unit: a batch of up to MaxFrames slices of a
// dataset, each holding the full core extent of the bound pattern.
//
// The buffer is dense row-major with shape [Len(), core extents...], core
// axes in ascending dataset order. Frames returned by PluginData.Frame hold a
// copy of the stored values; frames returned by PluginData.NewFrame start
// zeroed. Nothing reaches the dataset until Commit.
//
// Plugins must not retain frames after ProcessFrames returns; the Chain
// recycles their buffers. Frames read outside ProcessFrames, e.g. in
// PreProcess, should be released once done.
type Frame struct {
	owner *PluginData
	geom  *geometry
	data  []float64
	index int
	first int
	n     int
}

// Index returns the frame index within [0, FrameCount).
func (f *Frame) Index() int {
	return f.index
}

// Len returns the number of slices in the frame. Only the last frame of a
// dataset can be shorter than MaxFrames.
func (f *Frame) Len() int {
	return f.n
}

// Shape returns [Len(), core extents...].
func (f *Frame) Shape() []int {
	return append([]int{f.n}, f.geom.coreShape...)
}

// CoreShape returns the extents of one slice.
func (f *Frame) CoreShape() []int {
	return slices.Clone(f.geom.coreShape)
}

// Data returns the frame buffer. Writes to it are visible to Commit.
func (f *Frame) Data() []float64 {
	return f.data
}

// Slice returns the k-th slice of the frame as a sub-view of Data.
func (f *Frame) Slice(k int) []float64 {
	size := f.geom.coreSize
	return f.data[k*size : (k+1)*size : (k+1)*size]
}

// Coords returns the slice-direction coordinates of the k-th slice, one per
// axis in SliceDir order.
func (f *Frame) Coords(k int) []int {
	return f.geom.coords(f.first + k)
}

// Release hands the frame buffer back for reuse by later frames of the same
// PluginData. The frame must not be used afterwards. Releasing twice is a
// no-op.
func (f *Frame) Release() {
	f.owner.recycle(f)
}

// Commit writes every slice of the frame back to the dataset. Readers of the
// dataset observe either none or all of the frame.
func (f *Frame) Commit() error {
	return f.owner.WriteFrame(f)
}

// FrameStrategy groups the flattened slice indices [0, slices) of a pattern
// into frames of at most maxFrames consecutive indices. Every index must be
// covered by exactly one frame.
type FrameStrategy interface {
	FrameCount(slices, maxFrames int) int
	FrameRange(index, slices, maxFrames int) (first, n int)
}

// ContiguousFrames fills every frame to maxFrames; only the last frame may
// be short. It is the default strategy.
type ContiguousFrames struct{}

// FrameCount implements FrameStrategy.
func (ContiguousFrames) FrameCount(slices, maxFrames int) int {
	return (slices + maxFrames - 1) / maxFrames
}

// FrameRange implements FrameStrategy.
func (ContiguousFrames) FrameRange(index, slices, maxFrames int) (int, int) {
	first := index * maxFrames
	return first, min(maxFrames, slices-first)
}

// BalancedFrames uses the same number of frames as ContiguousFrames but
// spreads the slices so frame lengths differ by at most one. Useful when
// frames run in parallel and a short tail frame would idle a worker.
type BalancedFrames struct{}

// FrameCount implements FrameStrategy.
func (BalancedFrames) FrameCount(slices, maxFrames int) int {
	return (slices + maxFrames - 1) / maxFrames
}

// FrameRange implements FrameStrategy.
func (b BalancedFrames) FrameRange(index, slices, maxFrames int) (int, int) {
	frames := b.FrameCount(slices, maxFrames)
	base, extra := slices/frames, slices%frames
	first := index*base + min(index, extra)
	n := base
	if index < extra {
		n++
	}
	return first, n
}

// geometry is the frame layout of a dataset under one pattern.
type geometry struct {
	shape      []int
	sliceDir   []int
	sliceShape []int
	core       []int
	coreShape  []int
	sliceSize  int
	coreSize   int
}

func newGeometry(shape []int, p Pattern) *geometry {
	g := &geometry{
		shape:    slices.Clone(shape),
		sliceDir: slices.Clone(p.SliceDir),
		core:     p.coreAxes(),
	}
	g.sliceShape = make([]int, len(g.sliceDir))
	for i, axis := range g.sliceDir {
		g.sliceShape[i] = shape[axis]
	}
	g.coreShape = make([]int, len(g.core))
	for i, axis := range g.core {
		g.coreShape[i] = shape[axis]
	}
	g.sliceSize = product(g.sliceShape)
	g.coreSize = product(g.coreShape)
	return g
}

// coords decodes a flattened slice index into per-axis coordinates in
// SliceDir order, last axis fastest.
func (g *geometry) coords(flat int) []int {
	c := make([]int, len(g.sliceShape))
	for i := len(g.sliceShape) - 1; i >= 0; i-- {
		c[i] = flat % g.sliceShape[i]
		flat /= g.sliceShape[i]
	}
	return c
}

// region returns the dataset region holding one slice.
func (g *geometry) region(flat int) (start, count []int) {
	start = make([]int, len(g.shape))
	count = slices.Clone(g.shape)
	for i, c := range g.coords(flat) {
		axis := g.sliceDir[i]
		start[axis] = c
		count[axis] = 1
	}
	return start, count
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame %d of %q (%d slices from %d)", f.index, f.owner.dataset.Name(), f.n, f.first)
}
