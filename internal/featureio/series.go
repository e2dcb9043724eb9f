// Package featureio provides feature trajectories for segmentation: an
// in-memory Series, min/max normalisation and loaders for CSV and JSON
// feature tables.
package featureio

import (
	"gonum.org/v1/gonum/floats"
)

// Series is one feature's per-frame values. It satisfies
// segmentation.History.
type Series []float64

// Len returns the number of frames.
func (s Series) Len() int { return len(s) }

// At returns the value at frame i.
func (s Series) At(i int) float64 { return s[i] }

// Normalize maps values from [min, max] onto [0, 1] as (v-min)/(max-min).
// Values outside the range are not clamped. A degenerate range (max == min)
// yields all zeros. The input is not modified.
func Normalize(values []float64, min, max float64) Series {
	out := make(Series, len(values))
	if max == min {
		return out
	}
	copy(out, values)
	floats.AddConst(-min, out)
	floats.Scale(1/(max-min), out)
	return out
}

// Extents returns the minimum and maximum of s, or (0, 0) when s is empty.
func Extents(s Series) (min, max float64) {
	if len(s) == 0 {
		return 0, 0
	}
	return floats.Min(s), floats.Max(s)
}
