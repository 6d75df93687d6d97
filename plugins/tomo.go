package plugins

import (
	"fmt"
	"math"

	"github.com/zoobzio/framez"
	"gonum.org/v1/gonum/floats"
)

// TomoName is the default name of the synthetic tomography dataset.
const TomoName = framez.Name("tomo")

// NewTomoDataset builds and fills a synthetic tomography dataset of shape
// (angles, rows, cols): parallel-beam projections of two discs over a half
// rotation. It registers the PROJECTION and SINOGRAM patterns and stores the
// rotation angles in degrees under "rotation_angle". Values are positive, so
// the dataset can also stand in for normalised transmission data.
func NewTomoDataset(name framez.Name, angles, rows, cols int, backend framez.Backend) (*framez.Dataset, error) {
	d := framez.NewDataset(name)
	if err := d.CreateDataset(
		framez.WithShape(angles, rows, cols),
		framez.WithAxisLabels(framez.MustAxisLabels(
			"rotation_angle.degrees", "detector_y.pixel", "detector_x.pixel")...),
	); err != nil {
		return nil, err
	}
	if err := d.AddPattern(framez.PatternProjection, framez.Pattern{CoreDir: []int{1, 2}, SliceDir: []int{0}}); err != nil {
		return nil, err
	}
	if err := d.AddPattern(framez.PatternSinogram, framez.Pattern{CoreDir: []int{0, 2}, SliceDir: []int{1}}); err != nil {
		return nil, err
	}

	theta := make([]float64, angles)
	if angles > 1 {
		floats.Span(theta, 0, 180)
	}
	d.MetaData().Set(MetaRotationAngle, theta)

	if err := d.Allocate(backend); err != nil {
		return nil, err
	}

	// Disc centres and radii in pixels relative to the detector centre.
	discs := []struct{ cx, cy, r float64 }{
		{0, 0, 0.35 * float64(cols)},
		{0.2 * float64(cols), 0.05 * float64(cols), 0.1 * float64(cols)},
	}
	centre := float64(cols-1) / 2
	proj := make([]float64, rows*cols)
	for a, deg := range theta {
		rad := deg * math.Pi / 180
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				s := float64(x) - centre
				v := 1.0
				for _, disc := range discs {
					off := s - (disc.cx*math.Cos(rad) + disc.cy*math.Sin(rad))
					if off*off < disc.r*disc.r {
						v += 2 * math.Sqrt(disc.r*disc.r-off*off) / float64(cols)
					}
				}
				proj[y*cols+x] = v
			}
		}
		if err := d.WriteRegion([]int{a, 0, 0}, []int{1, rows, cols}, proj); err != nil {
			return nil, fmt.Errorf("filling projection %d: %w", a, err)
		}
	}
	return d, nil
}
