package raster

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"

	gerrors "urban-greenery/pkg/errors"
)

// Encoding maps stored integer samples to NDVI: ndvi = raw×Scale + Offset.
type Encoding struct {
	Scale  float64
	Offset float64
	// Signed reinterprets 16-bit samples as int16.
	Signed bool
	// NoData, when set, marks raw samples that decode to NaN.
	NoData *int
}

var (
	// ByteEncoding stretches 0..255 over -1..1.
	ByteEncoding = Encoding{Scale: 2.0 / 255, Offset: -1}
	// Int16Encoding is the common int16 ×10000 NDVI product layout.
	Int16Encoding = Encoding{Scale: 1e-4, Signed: true}
)

// DecodeTIFF reads the first band of a TIFF. Float samples are taken as
// NDVI. For unsigned samples a nil encoding picks one by depth:
// Int16Encoding for 16-bit, ByteEncoding otherwise. Signed samples default
// to Int16Encoding.
func DecodeTIFF(r io.Reader, enc *Encoding) (*Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, decodeFailed(err)
	}
	if d, err := readIFD(data); err == nil && d.sampleFormat() != sampleUnsigned {
		g, err := decodeSamples(data, d, enc)
		if err != nil {
			return nil, decodeFailed(err)
		}
		return g, nil
	}
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeFailed(err)
	}
	return FromImage(img, enc), nil
}

func decodeFailed(err error) error {
	return gerrors.New(gerrors.ErrCodeRasterDecodeFailed, gerrors.SeverityError,
		"could not read the raster file, ensure it is a valid GeoTIFF: %v", err)
}

// FromImage converts a decoded image to an NDVI grid.
func FromImage(img image.Image, enc *Encoding) *Grid {
	b := img.Bounds()
	g := NewGrid(b.Dx(), b.Dy())

	gray16, is16 := img.(*image.Gray16)
	if enc == nil {
		if is16 {
			enc = &Int16Encoding
		} else {
			enc = &ByteEncoding
		}
	}

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var raw int
			switch {
			case is16:
				v := gray16.Gray16At(b.Min.X+x, b.Min.Y+y).Y
				if enc.Signed {
					raw = int(int16(v))
				} else {
					raw = int(v)
				}
			default:
				raw = int(color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y)
			}
			if enc.NoData != nil && raw == *enc.NoData {
				g.Set(x, y, math.NaN())
				continue
			}
			g.Set(x, y, float64(raw)*enc.Scale+enc.Offset)
		}
	}
	return g
}
