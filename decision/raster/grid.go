// Package raster does per-pixel NDVI arithmetic: three-class
// reclassification, change between two dates and colour rendering.
package raster

import (
	"math"

	gerrors "urban-greenery/pkg/errors"
)

// Grid is a row-major single-band raster.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// NewGrid allocates a zeroed grid.
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Data: make([]float64, width*height)}
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

// SameShape reports whether g and o have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Vegetation classes.
const (
	ClassNoData       = 0
	ClassNonVegetated = 1
	ClassSparse       = 2
	ClassDense        = 3
)

// ClassNames label the classes for legends.
var ClassNames = map[int]string{
	ClassNonVegetated: "Non-vegetated (<0.2)",
	ClassSparse:       "Sparse Veg (0.2-0.4)",
	ClassDense:        "Dense Veg (>0.4)",
}

// Classify maps one NDVI value to its class. NaN is no data.
func Classify(v float64) int {
	switch {
	case math.IsNaN(v):
		return ClassNoData
	case v < 0.2:
		return ClassNonVegetated
	case v <= 0.4:
		return ClassSparse
	default:
		return ClassDense
	}
}

// Reclassify returns a grid of class numbers.
func Reclassify(g *Grid) *Grid {
	out := NewGrid(g.Width, g.Height)
	for i, v := range g.Data {
		out.Data[i] = float64(Classify(v))
	}
	return out
}

// Difference returns later − earlier per pixel.
func Difference(later, earlier *Grid) (*Grid, error) {
	if !later.SameShape(earlier) {
		return nil, gerrors.New(gerrors.ErrCodeRasterShapeMismatch, gerrors.SeverityError,
			"the input rasters do not have the same dimensions (%dx%d vs %dx%d)",
			earlier.Width, earlier.Height, later.Width, later.Height)
	}
	out := NewGrid(later.Width, later.Height)
	for i := range later.Data {
		out.Data[i] = later.Data[i] - earlier.Data[i]
	}
	return out, nil
}

// ClassSummary counts pixels per class.
type ClassSummary struct {
	Counts map[int]int `json:"counts"`
	Total  int         `json:"total"`
}

// Share returns the fraction of classified pixels in class c.
func (s ClassSummary) Share(c int) float64 {
	classified := s.Total - s.Counts[ClassNoData]
	if classified == 0 {
		return 0
	}
	return float64(s.Counts[c]) / float64(classified)
}

// Summarize counts the classes of a reclassified grid.
func Summarize(classes *Grid) ClassSummary {
	s := ClassSummary{Counts: make(map[int]int, 4), Total: len(classes.Data)}
	for _, v := range classes.Data {
		s.Counts[int(v)]++
	}
	return s
}

// ChangeSummary describes a difference grid.
type ChangeSummary struct {
	Mean   float64 `json:"mean"`
	Gained int     `json:"gained"`
	Lost   int     `json:"lost"`
	Stable int     `json:"stable"`
}

// SummarizeChange counts pixels whose change exceeds threshold either way.
func SummarizeChange(diff *Grid, threshold float64) ChangeSummary {
	var s ChangeSummary
	var sum float64
	var n int
	for _, v := range diff.Data {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
		switch {
		case v > threshold:
			s.Gained++
		case v < -threshold:
			s.Lost++
		default:
			s.Stable++
		}
	}
	if n > 0 {
		s.Mean = sum / float64(n)
	}
	return s
}
