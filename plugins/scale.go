package plugins

import (
	"github.com/zoobzio/framez"
)

// ScaleName is the registry id of the scale filter.
const ScaleName = framez.Name("Scale")

// ScaleSchema is the parameter schema of the scale filter.
var ScaleSchema = framez.Schema{
	{Name: "factor", Type: framez.ParamFloat, Default: 1.0, Description: "Multiplier."},
	{Name: "offset", Type: framez.ParamFloat, Default: 0.0, Description: "Added after multiplying."},
	{Name: "pattern", Type: framez.ParamString, Default: framez.PatternProjection, Description: "Pattern to work on."},
	{Name: "max_frames", Type: framez.ParamInt, Default: 8, Description: "Slices per frame."},
}

// NewScale builds an element-wise v*factor + offset filter.
func NewScale(p framez.Params) (framez.Plugin, error) {
	factor, offset := p.Float("factor"), p.Float("offset")
	return framez.Map(ScaleName, p.String("pattern"), p.Int("max_frames"), func(v float64) float64 {
		return v*factor + offset
	}), nil
}
