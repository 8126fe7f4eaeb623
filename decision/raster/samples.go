package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// TIFF tags read by the sample decoder.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagGDALNoData      = 42113
)

const (
	sampleUnsigned = 1
	sampleSigned   = 2
	sampleFloat    = 3
)

const (
	compressionNone     = 1
	compressionDeflate  = 8
	compressionDeflate2 = 32946
)

// ifd is the first image directory of a TIFF file.
type ifd struct {
	order   binary.ByteOrder
	entries map[uint16][]uint64
	noData  string
}

func (d ifd) first(tag uint16, def uint64) uint64 {
	if v := d.entries[tag]; len(v) > 0 {
		return v[0]
	}
	return def
}

// sampleFormat reports the format of the first band; baseline files
// without the tag are unsigned integers.
func (d ifd) sampleFormat() uint64 {
	return d.first(tagSampleFormat, sampleUnsigned)
}

var typeSizes = map[uint16]uint32{1: 1, 2: 1, 3: 2, 4: 4, 6: 1, 7: 1, 8: 2, 9: 4, 16: 8}

// readIFD parses the header and first directory of a TIFF.
func readIFD(data []byte) (ifd, error) {
	if len(data) < 8 {
		return ifd{}, fmt.Errorf("file too short")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return ifd{}, fmt.Errorf("not a TIFF file")
	}
	if order.Uint16(data[2:4]) != 42 {
		return ifd{}, fmt.Errorf("not a classic TIFF file")
	}

	off := int(order.Uint32(data[4:8]))
	if off+2 > len(data) {
		return ifd{}, fmt.Errorf("directory offset out of range")
	}
	n := int(order.Uint16(data[off : off+2]))
	d := ifd{order: order, entries: make(map[uint16][]uint64, n)}
	for i := 0; i < n; i++ {
		e := off + 2 + 12*i
		if e+12 > len(data) {
			return ifd{}, fmt.Errorf("directory entry out of range")
		}
		tag := order.Uint16(data[e:])
		typ := order.Uint16(data[e+2:])
		count := order.Uint32(data[e+4:])
		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		raw := data[e+8 : e+12]
		if total := uint64(size) * uint64(count); total > 4 {
			p := uint64(order.Uint32(raw))
			if p+total > uint64(len(data)) {
				return ifd{}, fmt.Errorf("tag %d value out of range", tag)
			}
			raw = data[p : p+total]
		}
		if typ == 2 {
			if tag == tagGDALNoData {
				d.noData = strings.TrimRight(string(raw[:count]), "\x00 ")
			}
			continue
		}
		vals := make([]uint64, count)
		for j := range vals {
			switch size {
			case 1:
				vals[j] = uint64(raw[j])
			case 2:
				vals[j] = uint64(order.Uint16(raw[2*j:]))
			case 4:
				vals[j] = uint64(order.Uint32(raw[4*j:]))
			case 8:
				vals[j] = order.Uint64(raw[8*j:])
			}
		}
		d.entries[tag] = vals
	}
	return d, nil
}

// sampleReader converts one stored sample to NDVI.
type sampleReader func(b []byte) float64

func (d ifd) sampleReader(bits uint64, enc *Encoding) (sampleReader, error) {
	order := d.order
	switch d.sampleFormat() {
	case sampleFloat:
		switch bits {
		case 32:
			return func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }, nil
		case 64:
			return func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }, nil
		}
	case sampleSigned:
		if enc == nil {
			enc = &Int16Encoding
		}
		e := *enc
		scaled := func(raw int) float64 {
			if e.NoData != nil && raw == *e.NoData {
				return math.NaN()
			}
			return float64(raw)*e.Scale + e.Offset
		}
		switch bits {
		case 8:
			return func(b []byte) float64 { return scaled(int(int8(b[0]))) }, nil
		case 16:
			return func(b []byte) float64 { return scaled(int(int16(order.Uint16(b)))) }, nil
		case 32:
			return func(b []byte) float64 { return scaled(int(int32(order.Uint32(b)))) }, nil
		}
	}
	return nil, fmt.Errorf("unsupported sample layout: format %d, %d bits", d.sampleFormat(), bits)
}

// decodeSamples reads the first band of a TIFF holding signed integer or
// floating point samples. Float samples are NDVI values and ignore enc; a
// GDAL no-data tag marks samples that decode to NaN.
func decodeSamples(data []byte, d ifd, enc *Encoding) (*Grid, error) {
	width, height := int(d.first(tagImageWidth, 0)), int(d.first(tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("missing image dimensions")
	}
	bits := d.first(tagBitsPerSample, 1)
	spp := int(d.first(tagSamplesPerPixel, 1))
	if spp < 1 {
		spp = 1
	}
	if p := d.first(tagPredictor, 1); p != 1 {
		return nil, fmt.Errorf("unsupported predictor %d", p)
	}
	compression := d.first(tagCompression, compressionNone)
	switch compression {
	case compressionNone, compressionDeflate, compressionDeflate2:
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
	read, err := d.sampleReader(bits, enc)
	if err != nil {
		return nil, err
	}

	// Only band one is read. Planar files store it first.
	bytesPer := int(bits / 8)
	stride := bytesPer * spp
	if d.first(tagPlanarConfig, 1) == 2 {
		stride = bytesPer
	}

	blockW, blockH := width, int(d.first(tagRowsPerStrip, uint64(height)))
	offsets, counts := d.entries[tagStripOffsets], d.entries[tagStripByteCounts]
	if _, tiled := d.entries[tagTileWidth]; tiled {
		blockW, blockH = int(d.first(tagTileWidth, 0)), int(d.first(tagTileLength, 0))
		offsets, counts = d.entries[tagTileOffsets], d.entries[tagTileByteCounts]
	}
	if blockW <= 0 || blockH <= 0 || len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("malformed strip or tile layout")
	}
	if blockH > height && blockW == width {
		blockH = height
	}
	across := (width + blockW - 1) / blockW
	down := (height + blockH - 1) / blockH
	if len(offsets) < across*down {
		return nil, fmt.Errorf("expected %d blocks, found %d", across*down, len(offsets))
	}

	var noData *float64
	if d.noData != "" {
		if v, err := strconv.ParseFloat(d.noData, 64); err == nil {
			noData = &v
		}
	}

	g := NewGrid(width, height)
	for bi := 0; bi < across*down; bi++ {
		start, n := offsets[bi], counts[bi]
		if start+n > uint64(len(data)) {
			return nil, fmt.Errorf("block %d out of range", bi)
		}
		block := data[start : start+n]
		if compression != compressionNone {
			zr, err := zlib.NewReader(bytes.NewReader(block))
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", bi, err)
			}
			block, err = io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", bi, err)
			}
		}

		x0, y0 := (bi%across)*blockW, (bi/across)*blockH
		for by := 0; by < blockH && y0+by < height; by++ {
			for bx := 0; bx < blockW && x0+bx < width; bx++ {
				p := (by*blockW + bx) * stride
				if p+bytesPer > len(block) {
					return nil, fmt.Errorf("block %d truncated", bi)
				}
				v := read(block[p : p+bytesPer])
				if noData != nil && v == *noData {
					v = math.NaN()
				}
				g.Set(x0+bx, y0+by, v)
			}
		}
	}
	return g, nil
}
