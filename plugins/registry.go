// Package plugins provides the bundled framez plugins and the synthetic
// datasets used to exercise them.
package plugins

import (
	"github.com/zoobzio/framez"
)

// Descriptors returns the bundled plugin descriptors in display order.
func Descriptors() []framez.Descriptor {
	return []framez.Descriptor{
		{
			Name:        ComponentAnalysisName,
			Description: "Principal component analysis of the spectra of a dataset.",
			Schema:      ComponentAnalysisSchema,
			New:         NewComponentAnalysis,
		},
		{
			Name:        HoganAbsorptionCorrectionName,
			Description: "Hogan's XRF self-absorption correction using STXM data.",
			Schema:      HoganAbsorptionCorrectionSchema,
			New:         NewHoganAbsorptionCorrection,
		},
		{
			Name:        QuantisationName,
			Description: "Quantise values onto 2^num_bits levels.",
			Schema:      QuantisationSchema,
			New:         NewQuantisation,
		},
		{
			Name:        ScaleName,
			Description: "Multiply by a factor and add an offset.",
			Schema:      ScaleSchema,
			New:         NewScale,
		},
	}
}

// Registry returns a registry of the bundled plugins.
func Registry() *framez.Registry {
	r, err := framez.NewRegistry(Descriptors()...)
	if err != nil {
		// The bundled descriptors are static.
		panic(err)
	}
	return r
}
