package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	gerrors "urban-greenery/pkg/errors"
)

func gridOf(w, h int, vals ...float64) *Grid {
	g := NewGrid(w, h)
	copy(g.Data, vals)
	return g
}

func TestClassify(t *testing.T) {
	tests := []struct {
		v    float64
		want int
	}{
		{-0.5, ClassNonVegetated},
		{0.1999, ClassNonVegetated},
		{0.2, ClassSparse},
		{0.4, ClassSparse},
		{0.4001, ClassDense},
		{math.NaN(), ClassNoData},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.v), "Classify(%v)", tt.v)
	}
}

func TestReclassifyAndSummarize(t *testing.T) {
	g := gridOf(3, 2, 0.1, 0.3, 0.7, 0.2, 0.9, math.NaN())
	classes := Reclassify(g)
	assert.Equal(t, []float64{1, 2, 3, 2, 3, 0}, classes.Data)

	s := Summarize(classes)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Counts[ClassDense])
	assert.InDelta(t, 0.4, s.Share(ClassDense), 1e-9)
}

func TestDifference(t *testing.T) {
	earlier := gridOf(2, 2, 0.1, 0.5, 0.3, 0.3)
	later := gridOf(2, 2, 0.4, 0.2, 0.3, 0.35)

	diff, err := Difference(later, earlier)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, -0.3, 0, 0.05}, diff.Data, 1e-9)

	s := SummarizeChange(diff, 0.1)
	assert.Equal(t, 1, s.Gained)
	assert.Equal(t, 1, s.Lost)
	assert.Equal(t, 2, s.Stable)

	_, err = Difference(NewGrid(3, 2), earlier)
	assert.Equal(t, gerrors.ErrCodeRasterShapeMismatch, gerrors.CodeOf(err))
}

func TestTwoSlopeNorm(t *testing.T) {
	n := DefaultChangeNorm
	assert.Equal(t, 0.0, n.Normalize(-0.5))
	assert.Equal(t, 0.0, n.Normalize(-2))
	assert.Equal(t, 0.25, n.Normalize(-0.25))
	assert.Equal(t, 0.5, n.Normalize(0))
	assert.Equal(t, 0.75, n.Normalize(0.25))
	assert.Equal(t, 1.0, n.Normalize(0.9))
}

func TestChangeColorMapEnds(t *testing.T) {
	cmap := ChangeColorMap(DefaultChangeNorm)
	assert.Equal(t, rdYlGn[0], cmap(-1))
	assert.Equal(t, rdYlGn[len(rdYlGn)-1], cmap(1))
	assert.Equal(t, rdYlGn[5], cmap(0))
	assert.Equal(t, noData, cmap(math.NaN()))
}

func TestWritePNG(t *testing.T) {
	classes := Reclassify(gridOf(2, 1, 0.1, 0.9))
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, classes, ClassColorMap, 3))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 3), img.Bounds())
	assert.Equal(t, color.NRGBAModel.Convert(ClassColors[ClassNonVegetated]), color.NRGBAModel.Convert(img.At(2, 2)))
	assert.Equal(t, color.NRGBAModel.Convert(ClassColors[ClassDense]), color.NRGBAModel.Convert(img.At(3, 0)))
}

func TestDecodeTIFFInt16(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 2, 1))
	src.SetGray16(0, 0, color.Gray16{Y: uint16(5000)})
	neg := int16(-3000)
	src.SetGray16(1, 0, color.Gray16{Y: uint16(neg)})

	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, src, nil))

	g, err := DecodeTIFF(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Width)
	assert.InDelta(t, 0.5, g.At(0, 0), 1e-9)
	assert.InDelta(t, -0.3, g.At(1, 0), 1e-9)
}

func TestDecodeTIFFByteWithNoData(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.SetGray(0, 0, color.Gray{Y: 255})
	src.SetGray(1, 0, color.Gray{Y: 0})

	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, src, nil))

	zero := 0
	enc := ByteEncoding
	enc.NoData = &zero
	g, err := DecodeTIFF(&buf, &enc)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g.At(0, 0), 1e-9)
	assert.True(t, math.IsNaN(g.At(1, 0)))
}

func TestDecodeTIFFRejectsGarbage(t *testing.T) {
	_, err := DecodeTIFF(bytes.NewReader([]byte("not a tiff")), nil)
	assert.Equal(t, gerrors.ErrCodeRasterDecodeFailed, gerrors.CodeOf(err))
}

type tiffEntry struct {
	tag, typ uint16
	count    uint32
	value    uint32
}

// buildTIFF writes a little-endian single-strip TIFF around samples.
func buildTIFF(t *testing.T, w, h int, bits, format, compression uint16, samples []byte, noData string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("II")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(42)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))

	dataOff := uint32(buf.Len())
	buf.Write(samples)

	entries := []tiffEntry{
		{256, 4, 1, uint32(w)},
		{257, 4, 1, uint32(h)},
		{258, 3, 1, uint32(bits)},
		{259, 3, 1, uint32(compression)},
		{262, 3, 1, 1},
		{273, 4, 1, dataOff},
		{277, 3, 1, 1},
		{278, 4, 1, uint32(h)},
		{279, 4, 1, uint32(len(samples))},
		{339, 3, 1, uint32(format)},
	}
	if noData != "" {
		entries = append(entries, tiffEntry{42113, 2, uint32(len(noData) + 1), uint32(buf.Len())})
		buf.WriteString(noData)
		buf.WriteByte(0)
	}
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}

	ifdOff := uint32(buf.Len())
	le := binary.LittleEndian
	require.NoError(t, binary.Write(&buf, le, uint16(len(entries))))
	for _, e := range entries {
		require.NoError(t, binary.Write(&buf, le, e.tag))
		require.NoError(t, binary.Write(&buf, le, e.typ))
		require.NoError(t, binary.Write(&buf, le, e.count))
		require.NoError(t, binary.Write(&buf, le, e.value))
	}
	require.NoError(t, binary.Write(&buf, le, uint32(0)))

	out := buf.Bytes()
	le.PutUint32(out[4:8], ifdOff)
	return out
}

func float32Samples(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func TestDecodeTIFFFloat32(t *testing.T) {
	data := buildTIFF(t, 2, 1, 32, 3, 1, float32Samples(0.1, 0.5), "")

	g, err := DecodeTIFF(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Width)
	assert.Equal(t, 1, g.Height)
	assert.InDelta(t, 0.1, g.At(0, 0), 1e-6)
	assert.InDelta(t, 0.5, g.At(1, 0), 1e-6)

	// An explicit encoding does not rescale float samples.
	g, err = DecodeTIFF(bytes.NewReader(data), &Int16Encoding)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, g.At(1, 0), 1e-6)

	assert.Equal(t, []float64{ClassNonVegetated, ClassDense}, Reclassify(g).Data)
}

func TestDecodeTIFFFloat32DeflateWithNoData(t *testing.T) {
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	_, err := zw.Write(float32Samples(0.3, -9999, 0.8, -0.2))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	data := buildTIFF(t, 2, 2, 32, 3, 8, z.Bytes(), "-9999")
	g, err := DecodeTIFF(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, g.At(0, 0), 1e-6)
	assert.True(t, math.IsNaN(g.At(1, 0)))
	assert.InDelta(t, 0.8, g.At(0, 1), 1e-6)
	assert.InDelta(t, -0.2, g.At(1, 1), 1e-6)
}

func TestDecodeTIFFSignedInt16(t *testing.T) {
	samples := make([]byte, 4)
	pos, neg := int16(4000), int16(-2500)
	binary.LittleEndian.PutUint16(samples[0:], uint16(pos))
	binary.LittleEndian.PutUint16(samples[2:], uint16(neg))

	g, err := DecodeTIFF(bytes.NewReader(buildTIFF(t, 2, 1, 16, 2, 1, samples, "")), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, g.At(0, 0), 1e-9)
	assert.InDelta(t, -0.25, g.At(1, 0), 1e-9)
}

func TestDecodeTIFFRejectsTruncatedFloatStrip(t *testing.T) {
	data := buildTIFF(t, 2, 2, 32, 3, 1, float32Samples(0.1, 0.2), "")
	_, err := DecodeTIFF(bytes.NewReader(data), nil)
	assert.Equal(t, gerrors.ErrCodeRasterDecodeFailed, gerrors.CodeOf(err))
}
