package framez

import (
	"fmt"
	"slices"
	"sync"
)

// Backend allocates the storage behind a Dataset.
type Backend interface {
	Allocate(shape []int) (Store, error)
}

// ShapeChecker is implemented by backends that cannot allocate every valid
// shape. The Chain checks each plugin output against it during Setup, before
// any frame runs.
type ShapeChecker interface {
	CheckShape(shape []int) error
}

// Store holds the contents of one dataset and supports random-access
// reads and writes of rectangular sub-regions. Buffers are dense row-major
// with shape count.
type Store interface {
	Shape() []int
	ReadRegion(start, count []int, dst []float64) error
	WriteRegion(start, count []int, src []float64) error
}

// MemoryBackend allocates dense in-memory stores.
type MemoryBackend struct{}

// CheckShape implements ShapeChecker.
func (MemoryBackend) CheckShape(shape []int) error {
	return validateShape(shape)
}

// Allocate implements Backend.
func (MemoryBackend) Allocate(shape []int) (Store, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	return &memoryStore{
		shape:   slices.Clone(shape),
		strides: rowMajorStrides(shape),
		data:    make([]float64, product(shape)),
	}, nil
}

type memoryStore struct {
	shape   []int
	strides []int
	data    []float64
	mu      sync.RWMutex
}

func (s *memoryStore) Shape() []int {
	return slices.Clone(s.shape)
}

func (s *memoryStore) ReadRegion(start, count []int, dst []float64) error {
	if err := checkRegion(s.shape, start, count, len(dst)); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	copyBox(dst, rowMajorStrides(count), nil, s.data, s.strides, start, count)
	return nil
}

func (s *memoryStore) WriteRegion(start, count []int, src []float64) error {
	if err := checkRegion(s.shape, start, count, len(src)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBox(s.data, s.strides, start, src, rowMajorStrides(count), nil, count)
	return nil
}

// ChunkedBackend allocates stores split into fixed-size chunks that are only
// materialised when first written. Unwritten regions read as zero.
// A ChunkShape entry of zero or less means the full extent of that axis.
type ChunkedBackend struct {
	ChunkShape []int
}

// CheckShape implements ShapeChecker. The chunk shape must have the rank of
// the dataset.
func (b ChunkedBackend) CheckShape(shape []int) error {
	if err := validateShape(shape); err != nil {
		return err
	}
	if len(b.ChunkShape) != len(shape) {
		return fmt.Errorf("%w: chunk rank %d does not match dataset rank %d", ErrShape, len(b.ChunkShape), len(shape))
	}
	return nil
}

// Allocate implements Backend.
func (b ChunkedBackend) Allocate(shape []int) (Store, error) {
	if err := b.CheckShape(shape); err != nil {
		return nil, err
	}
	chunk := make([]int, len(shape))
	grid := make([]int, len(shape))
	for i, n := range shape {
		c := b.ChunkShape[i]
		if c <= 0 || c > n {
			c = n
		}
		chunk[i] = c
		grid[i] = (n + c - 1) / c
	}
	return &chunkedStore{
		shape:        slices.Clone(shape),
		chunk:        chunk,
		chunkStrides: rowMajorStrides(chunk),
		grid:         grid,
		gridStrides:  rowMajorStrides(grid),
		chunks:       make(map[int][]float64),
	}, nil
}

type chunkedStore struct {
	chunks       map[int][]float64
	shape        []int
	chunk        []int
	chunkStrides []int
	grid         []int
	gridStrides  []int
	mu           sync.RWMutex
}

func (s *chunkedStore) Shape() []int {
	return slices.Clone(s.shape)
}

// Chunks returns the number of materialised chunks.
func (s *chunkedStore) Chunks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *chunkedStore) ReadRegion(start, count []int, dst []float64) error {
	if err := checkRegion(s.shape, start, count, len(dst)); err != nil {
		return err
	}
	bufStrides := rowMajorStrides(count)
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.eachChunk(start, count, func(key int, inChunk, inBuf, box []int) {
		data, ok := s.chunks[key]
		if !ok {
			fillBox(dst, bufStrides, inBuf, box, 0)
			return
		}
		copyBox(dst, bufStrides, inBuf, data, s.chunkStrides, inChunk, box)
	})
	return nil
}

func (s *chunkedStore) WriteRegion(start, count []int, src []float64) error {
	if err := checkRegion(s.shape, start, count, len(src)); err != nil {
		return err
	}
	bufStrides := rowMajorStrides(count)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eachChunk(start, count, func(key int, inChunk, inBuf, box []int) {
		data, ok := s.chunks[key]
		if !ok {
			data = make([]float64, product(s.chunk))
			s.chunks[key] = data
		}
		copyBox(data, s.chunkStrides, inChunk, src, bufStrides, inBuf, box)
	})
	return nil
}

// eachChunk visits every chunk overlapping the region. For each it passes the
// chunk key, the start of the overlap inside the chunk, the start of the
// overlap inside the region buffer, and the overlap extents.
func (s *chunkedStore) eachChunk(start, count []int, fn func(key int, inChunk, inBuf, box []int)) {
	rank := len(s.shape)
	first := make([]int, rank)
	last := make([]int, rank)
	for d := 0; d < rank; d++ {
		first[d] = start[d] / s.chunk[d]
		last[d] = (start[d] + count[d] - 1) / s.chunk[d]
	}

	cc := slices.Clone(first)
	inChunk := make([]int, rank)
	inBuf := make([]int, rank)
	box := make([]int, rank)
	for {
		key := 0
		for d := 0; d < rank; d++ {
			origin := cc[d] * s.chunk[d]
			lo := max(start[d], origin)
			hi := min(start[d]+count[d], origin+s.chunk[d])
			inChunk[d] = lo - origin
			inBuf[d] = lo - start[d]
			box[d] = hi - lo
			key += cc[d] * s.gridStrides[d]
		}
		fn(key, inChunk, inBuf, box)

		d := rank - 1
		for ; d >= 0; d-- {
			cc[d]++
			if cc[d] <= last[d] {
				break
			}
			cc[d] = first[d]
		}
		if d < 0 {
			return
		}
	}
}

// checkRegion validates a region request against a shape and buffer length.
func checkRegion(shape, start, count []int, buflen int) error {
	if len(start) != len(shape) || len(count) != len(shape) {
		return fmt.Errorf("%w: region rank %d/%d does not match rank %d", ErrShape, len(start), len(count), len(shape))
	}
	for d := range shape {
		if count[d] <= 0 {
			return fmt.Errorf("%w: region extent %d on axis %d", ErrShape, count[d], d)
		}
		if start[d] < 0 || start[d]+count[d] > shape[d] {
			return fmt.Errorf("%w: region [%d, %d) outside axis %d of extent %d", ErrIndex, start[d], start[d]+count[d], d, shape[d])
		}
	}
	if n := product(count); n != buflen {
		return fmt.Errorf("%w: buffer holds %d values, region needs %d", ErrShape, buflen, n)
	}
	return nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= shape[d]
	}
	return strides
}

// copyBox copies an N-d box of extents count from src (starting at srcStart)
// to dst (starting at dstStart). Both buffers are row-major with the given
// strides; a nil start means the origin. Contiguous runs along the last axis
// are copied with a single copy call.
func copyBox(dst []float64, dstStrides, dstStart []int, src []float64, srcStrides, srcStart, count []int) {
	eachRun(count, func(idx []int, run int) {
		copy(dst[offset(dstStrides, dstStart, idx):][:run], src[offset(srcStrides, srcStart, idx):][:run])
	})
}

// fillBox sets an N-d box of dst to v.
func fillBox(dst []float64, strides, start, count []int, v float64) {
	eachRun(count, func(idx []int, run int) {
		row := dst[offset(strides, start, idx):][:run]
		for i := range row {
			row[i] = v
		}
	})
}

// eachRun iterates the outer coordinates of a box (every axis but the last)
// in row-major order and calls fn with the coordinate and the run length of
// the last axis. idx has full rank with the last entry zero.
func eachRun(count []int, fn func(idx []int, run int)) {
	rank := len(count)
	idx := make([]int, rank)
	run := count[rank-1]
	outer := product(count[:rank-1])
	for k := 0; k < outer; k++ {
		fn(idx, run)
		for d := rank - 2; d >= 0; d-- {
			idx[d]++
			if idx[d] < count[d] {
				break
			}
			idx[d] = 0
		}
	}
}

func offset(strides, start, idx []int) int {
	off := 0
	for d := range idx {
		c := idx[d]
		if start != nil {
			c += start[d]
		}
		off += c * strides[d]
	}
	return off
}
