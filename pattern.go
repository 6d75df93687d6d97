package framez

import (
	"fmt"
	"slices"
)

// Well-known pattern names used by the bundled plugins and loaders.
const (
	PatternSinogram         = "SINOGRAM"
	PatternProjection       = "PROJECTION"
	PatternSpectrum         = "SPECTRUM"
	PatternSpectralSinogram = "SPECTRAL_SINOGRAM"
	PatternVolumeXZ         = "VOLUME_XZ"
)

// Pattern partitions the axes of a dataset into core axes, held in full for
// one processing unit, and slice axes, iterated over frame by frame.
//
// For a (angle, detector_y, detector_x) stack a sinogram is
//
//	framez.Pattern{CoreDir: []int{0, 2}, SliceDir: []int{1}}
//
// SliceDir order defines the frame iteration order: slice coordinates are
// flattened row-major over SliceDir, so the last listed axis varies fastest.
type Pattern struct {
	CoreDir  []int `json:"core_dir" yaml:"core_dir"`
	SliceDir []int `json:"slice_dir" yaml:"slice_dir"`
}

// Clone returns a deep copy of the pattern.
func (p Pattern) Clone() Pattern {
	return Pattern{
		CoreDir:  slices.Clone(p.CoreDir),
		SliceDir: slices.Clone(p.SliceDir),
	}
}

// Validate checks that CoreDir and SliceDir together cover every axis of a
// dataset of the given rank exactly once.
func (p Pattern) Validate(rank int) error {
	seen := make([]bool, rank)
	for _, dirs := range [][]int{p.CoreDir, p.SliceDir} {
		for _, axis := range dirs {
			if axis < 0 || axis >= rank {
				return fmt.Errorf("%w: axis %d outside rank %d", ErrPattern, axis, rank)
			}
			if seen[axis] {
				return fmt.Errorf("%w: axis %d listed twice", ErrPattern, axis)
			}
			seen[axis] = true
		}
	}
	for axis, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: axis %d is neither core nor slice", ErrPattern, axis)
		}
	}
	return nil
}

// coreAxes returns the core axes in ascending dataset order, which is the
// order they take inside a frame buffer.
func (p Pattern) coreAxes() []int {
	axes := slices.Clone(p.CoreDir)
	slices.Sort(axes)
	return axes
}
