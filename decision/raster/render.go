package raster

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
)

// ColorMap maps a pixel value to a colour.
type ColorMap func(v float64) color.Color

var noData = color.NRGBA{}

// ClassColors are brown, yellow and green for the three vegetation classes.
var ClassColors = map[int]color.NRGBA{
	ClassNonVegetated: {R: 0xa5, G: 0x2a, B: 0x2a, A: 0xff},
	ClassSparse:       {R: 0xff, G: 0xff, B: 0x00, A: 0xff},
	ClassDense:        {R: 0x00, G: 0x80, B: 0x00, A: 0xff},
}

// ClassColorMap colours a reclassified grid.
func ClassColorMap(v float64) color.Color {
	if c, ok := ClassColors[int(v)]; ok {
		return c
	}
	return noData
}

// rdYlGn are the red-yellow-green diverging stops, low to high.
var rdYlGn = []color.NRGBA{
	{R: 0xa5, G: 0x00, B: 0x26, A: 0xff},
	{R: 0xd7, G: 0x30, B: 0x27, A: 0xff},
	{R: 0xf4, G: 0x6d, B: 0x43, A: 0xff},
	{R: 0xfd, G: 0xae, B: 0x61, A: 0xff},
	{R: 0xfe, G: 0xe0, B: 0x8b, A: 0xff},
	{R: 0xff, G: 0xff, B: 0xbf, A: 0xff},
	{R: 0xd9, G: 0xef, B: 0x8b, A: 0xff},
	{R: 0xa6, G: 0xd9, B: 0x6a, A: 0xff},
	{R: 0x66, G: 0xbd, B: 0x63, A: 0xff},
	{R: 0x1a, G: 0x98, B: 0x50, A: 0xff},
	{R: 0x00, G: 0x68, B: 0x37, A: 0xff},
}

// TwoSlopeNorm maps [Min, Center] onto [0, 0.5] and [Center, Max] onto
// [0.5, 1], clipping outside.
type TwoSlopeNorm struct {
	Min, Center, Max float64
}

// DefaultChangeNorm centres NDVI change on zero with ±0.5 extremes.
var DefaultChangeNorm = TwoSlopeNorm{Min: -0.5, Center: 0, Max: 0.5}

func (n TwoSlopeNorm) Normalize(v float64) float64 {
	var t float64
	if v < n.Center {
		t = 0.5 * (v - n.Min) / (n.Center - n.Min)
	} else {
		t = 0.5 + 0.5*(v-n.Center)/(n.Max-n.Center)
	}
	return math.Max(0, math.Min(1, t))
}

// ChangeColorMap colours an NDVI difference: red loss, green gain.
func ChangeColorMap(norm TwoSlopeNorm) ColorMap {
	return func(v float64) color.Color {
		if math.IsNaN(v) {
			return noData
		}
		return interpolate(rdYlGn, norm.Normalize(v))
	}
}

func interpolate(stops []color.NRGBA, t float64) color.NRGBA {
	pos := t * float64(len(stops)-1)
	i := int(pos)
	if i >= len(stops)-1 {
		return stops[len(stops)-1]
	}
	frac := pos - float64(i)
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*frac))
	}
	a, b := stops[i], stops[i+1]
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

// Render draws each cell as a scale×scale block.
func Render(g *Grid, cmap ColorMap, scale int) *image.NRGBA {
	if scale < 1 {
		scale = 1
	}
	img := image.NewNRGBA(image.Rect(0, 0, g.Width*scale, g.Height*scale))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := cmap(g.At(x, y))
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.Set(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}

// WritePNG encodes the rendered grid as PNG.
func WritePNG(w io.Writer, g *Grid, cmap ColorMap, scale int) error {
	return png.Encode(w, Render(g, cmap, scale))
}
