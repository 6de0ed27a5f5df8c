package loaders

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/tiff/lzw"

	"github.com/topoviz/topoviz/pkg/grid"
)

// ErrUnsupportedTIFF is returned for TIFF features the reader does not
// handle, such as BigTIFF or planar band layout.
var ErrUnsupportedTIFF = errors.New("unsupported TIFF")

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
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGDALNoData      = 42113
)

const (
	compressionNone     = 1
	compressionLZW      = 5
	compressionDeflate  = 8
	compressionDeflate2 = 32946

	predictorNone       = 1
	predictorHorizontal = 2
	predictorFloat      = 3

	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// sizes of TIFF field types, indexed by type id.
var fieldTypeSize = [...]int{0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8}

type tiffField struct {
	typ   uint16
	count int
	data  []byte
}

type tiffReader struct {
	buf    []byte
	bo     binary.ByteOrder
	fields map[uint16]tiffField
}

// readGeoTIFF decodes one band of the first image in a (Geo)TIFF file.
// Strip and tile layouts with no, LZW or deflate compression and the
// horizontal and floating point predictors are supported. GeoTIFF pixel
// scale and tie point tags set the grid transform and GDAL nodata cells
// become NaN.
func readGeoTIFF(data []byte, band int) (*grid.Grid, error) {
	tr, err := parseTIFF(data)
	if err != nil {
		return nil, err
	}
	return tr.decode(band)
}

func parseTIFF(data []byte) (*tiffReader, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: file too short", ErrUnsupportedTIFF)
	}
	tr := &tiffReader{buf: data, fields: make(map[uint16]tiffField)}
	switch string(data[:2]) {
	case "II":
		tr.bo = binary.LittleEndian
	case "MM":
		tr.bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order marker", ErrUnsupportedTIFF)
	}
	switch tr.bo.Uint16(data[2:4]) {
	case 42:
	case 43:
		return nil, fmt.Errorf("%w: BigTIFF", ErrUnsupportedTIFF)
	default:
		return nil, fmt.Errorf("%w: bad magic number", ErrUnsupportedTIFF)
	}

	ifd := int(tr.bo.Uint32(data[4:8]))
	if ifd+2 > len(data) {
		return nil, fmt.Errorf("%w: IFD offset out of range", ErrUnsupportedTIFF)
	}
	n := int(tr.bo.Uint16(data[ifd:]))
	if ifd+2+12*n > len(data) {
		return nil, fmt.Errorf("%w: truncated IFD", ErrUnsupportedTIFF)
	}
	for i := 0; i < n; i++ {
		e := data[ifd+2+12*i : ifd+14+12*i]
		tag := tr.bo.Uint16(e[0:2])
		typ := tr.bo.Uint16(e[2:4])
		count := int(tr.bo.Uint32(e[4:8]))
		if int(typ) >= len(fieldTypeSize) || fieldTypeSize[typ] == 0 {
			continue
		}
		size := fieldTypeSize[typ] * count
		var raw []byte
		if size <= 4 {
			raw = e[8 : 8+size]
		} else {
			off := int(tr.bo.Uint32(e[8:12]))
			if off < 0 || off+size > len(data) {
				return nil, fmt.Errorf("%w: tag %d data out of range", ErrUnsupportedTIFF, tag)
			}
			raw = data[off : off+size]
		}
		tr.fields[tag] = tiffField{typ: typ, count: count, data: raw}
	}
	return tr, nil
}

func (tr *tiffReader) ints(tag uint16) []uint64 {
	f, ok := tr.fields[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, f.count)
	for i := range out {
		switch f.typ {
		case 1, 7:
			out[i] = uint64(f.data[i])
		case 3:
			out[i] = uint64(tr.bo.Uint16(f.data[2*i:]))
		case 4:
			out[i] = uint64(tr.bo.Uint32(f.data[4*i:]))
		default:
			return nil
		}
	}
	return out
}

func (tr *tiffReader) intOr(tag uint16, def uint64) uint64 {
	if v := tr.ints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (tr *tiffReader) floats(tag uint16) []float64 {
	f, ok := tr.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, f.count)
	for i := range out {
		switch f.typ {
		case 11:
			out[i] = float64(math.Float32frombits(tr.bo.Uint32(f.data[4*i:])))
		case 12:
			out[i] = math.Float64frombits(tr.bo.Uint64(f.data[8*i:]))
		default:
			return nil
		}
	}
	return out
}

func (tr *tiffReader) str(tag uint16) string {
	f, ok := tr.fields[tag]
	if !ok || f.typ != 2 {
		return ""
	}
	return strings.TrimRight(string(f.data), "\x00 ")
}

type tiffLayout struct {
	width, height   int
	spp, bps        int
	format          uint64
	compression     uint64
	predictor       uint64
	chunkW, chunkH  int
	chunksAcross    int
	offsets, counts []uint64
}

func (tr *tiffReader) layout() (*tiffLayout, error) {
	l := &tiffLayout{
		width:       int(tr.intOr(tagImageWidth, 0)),
		height:      int(tr.intOr(tagImageLength, 0)),
		spp:         int(tr.intOr(tagSamplesPerPixel, 1)),
		format:      tr.intOr(tagSampleFormat, sampleUint),
		compression: tr.intOr(tagCompression, compressionNone),
		predictor:   tr.intOr(tagPredictor, predictorNone),
	}
	if l.width <= 0 || l.height <= 0 {
		return nil, fmt.Errorf("%w: missing image dimensions", ErrUnsupportedTIFF)
	}
	bits := tr.ints(tagBitsPerSample)
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits {
		if b != bits[0] {
			return nil, fmt.Errorf("%w: mixed bits per sample", ErrUnsupportedTIFF)
		}
	}
	switch bits[0] {
	case 8, 16, 32, 64:
		l.bps = int(bits[0]) / 8
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedTIFF, bits[0])
	}
	if l.format == sampleFloat && l.bps < 4 {
		return nil, fmt.Errorf("%w: %d-bit floats", ErrUnsupportedTIFF, bits[0])
	}
	if l.spp > 1 && tr.intOr(tagPlanarConfig, 1) != 1 {
		return nil, fmt.Errorf("%w: planar band layout", ErrUnsupportedTIFF)
	}

	if _, tiled := tr.fields[tagTileWidth]; tiled {
		l.chunkW = int(tr.intOr(tagTileWidth, 0))
		l.chunkH = int(tr.intOr(tagTileLength, 0))
		l.offsets = tr.ints(tagTileOffsets)
		l.counts = tr.ints(tagTileByteCounts)
	} else {
		l.chunkW = l.width
		l.chunkH = int(tr.intOr(tagRowsPerStrip, uint64(l.height)))
		if l.chunkH > l.height {
			l.chunkH = l.height
		}
		l.offsets = tr.ints(tagStripOffsets)
		l.counts = tr.ints(tagStripByteCounts)
	}
	if l.chunkW <= 0 || l.chunkH <= 0 || len(l.offsets) == 0 || len(l.offsets) != len(l.counts) {
		return nil, fmt.Errorf("%w: bad strip or tile layout", ErrUnsupportedTIFF)
	}
	l.chunksAcross = (l.width + l.chunkW - 1) / l.chunkW
	return l, nil
}

func (tr *tiffReader) decode(band int) (*grid.Grid, error) {
	l, err := tr.layout()
	if err != nil {
		return nil, err
	}
	if band < 1 || band > l.spp {
		return nil, fmt.Errorf("band %d out of range, image has %d", band, l.spp)
	}

	g := grid.New(l.height, l.width)
	pixelBytes := l.spp * l.bps
	for i, off := range l.offsets {
		cx := (i % l.chunksAcross) * l.chunkW
		cy := (i / l.chunksAcross) * l.chunkH
		if cy >= l.height {
			break
		}
		rows := l.chunkH
		if l.chunksAcross == 1 && l.chunkW == l.width && cy+rows > l.height {
			rows = l.height - cy
		}

		end := off + l.counts[i]
		if end > uint64(len(tr.buf)) {
			return nil, fmt.Errorf("%w: chunk %d out of range", ErrUnsupportedTIFF, i)
		}
		chunk, err := decompress(tr.buf[off:end], l.compression, l.chunkW*rows*pixelBytes)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}

		bo := tr.bo
		switch l.predictor {
		case predictorNone:
		case predictorHorizontal:
			undoHorizontal(chunk, l.chunkW, rows, l.spp, l.bps, bo)
		case predictorFloat:
			chunk = undoFloatPredictor(chunk, l.chunkW, rows, l.spp, l.bps)
			bo = binary.BigEndian
		default:
			return nil, fmt.Errorf("%w: predictor %d", ErrUnsupportedTIFF, l.predictor)
		}

		for y := 0; y < rows && cy+y < l.height; y++ {
			for x := 0; x < l.chunkW && cx+x < l.width; x++ {
				p := (y*l.chunkW+x)*pixelBytes + (band-1)*l.bps
				g.Set(cy+y, cx+x, sampleValue(chunk[p:p+l.bps], bo, l.format))
			}
		}
	}

	tr.applyGeoKeys(g)
	return g, nil
}

func decompress(src []byte, compression uint64, want int) ([]byte, error) {
	var out []byte
	switch compression {
	case compressionNone:
		out = src
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
		defer rc.Close()
		var err error
		if out, err = io.ReadAll(rc); err != nil {
			return nil, fmt.Errorf("lzw: %w", err)
		}
	case compressionDeflate, compressionDeflate2:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		if out, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupportedTIFF, compression)
	}
	if len(out) < want {
		return nil, fmt.Errorf("%w: chunk holds %d bytes, want %d", ErrUnsupportedTIFF, len(out), want)
	}
	return append([]byte(nil), out[:want]...), nil
}

// undoHorizontal reverses integer horizontal differencing in place.
func undoHorizontal(buf []byte, width, rows, spp, bps int, bo binary.ByteOrder) {
	rowLen := width * spp * bps
	for y := 0; y < rows; y++ {
		row := buf[y*rowLen : (y+1)*rowLen]
		for i := spp * bps; i < rowLen; i += bps {
			prev := i - spp*bps
			switch bps {
			case 1:
				row[i] += row[prev]
			case 2:
				bo.PutUint16(row[i:], bo.Uint16(row[i:])+bo.Uint16(row[prev:]))
			case 4:
				bo.PutUint32(row[i:], bo.Uint32(row[i:])+bo.Uint32(row[prev:]))
			case 8:
				bo.PutUint64(row[i:], bo.Uint64(row[i:])+bo.Uint64(row[prev:]))
			}
		}
	}
}

// undoFloatPredictor reverses the floating point predictor: byte-wise
// differencing over byte planes that store each sample most significant
// byte first. The result is big-endian.
func undoFloatPredictor(buf []byte, width, rows, spp, bps int) []byte {
	rowLen := width * spp * bps
	samples := width * spp
	out := make([]byte, len(buf))
	for y := 0; y < rows; y++ {
		row := buf[y*rowLen : (y+1)*rowLen]
		for i := spp; i < rowLen; i++ {
			row[i] += row[i-spp]
		}
		dst := out[y*rowLen : (y+1)*rowLen]
		for s := 0; s < samples; s++ {
			for b := 0; b < bps; b++ {
				dst[s*bps+b] = row[b*samples+s]
			}
		}
	}
	return out
}

func sampleValue(b []byte, bo binary.ByteOrder, format uint64) float64 {
	switch format {
	case sampleFloat:
		if len(b) == 4 {
			return float64(math.Float32frombits(bo.Uint32(b)))
		}
		return math.Float64frombits(bo.Uint64(b))
	case sampleInt:
		switch len(b) {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(bo.Uint16(b)))
		case 4:
			return float64(int32(bo.Uint32(b)))
		default:
			return float64(int64(bo.Uint64(b)))
		}
	default:
		switch len(b) {
		case 1:
			return float64(b[0])
		case 2:
			return float64(bo.Uint16(b))
		case 4:
			return float64(bo.Uint32(b))
		default:
			return float64(bo.Uint64(b))
		}
	}
}

func (tr *tiffReader) applyGeoKeys(g *grid.Grid) {
	scale := tr.floats(tagModelPixelScale)
	tie := tr.floats(tagModelTiepoint)
	if len(scale) >= 2 && len(tie) >= 6 && scale[0] > 0 {
		g.Transform = &grid.Transform{
			OriginX:  tie[3] - tie[0]*scale[0],
			OriginY:  tie[4] + tie[1]*scale[1],
			CellSize: scale[0],
		}
	}

	if s := tr.str(tagGDALNoData); s != "" {
		if nodata, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			maskValue(g, nodata)
		}
	}
}

// maskValue replaces every cell equal to v with NaN.
func maskValue(g *grid.Grid, v float64) {
	for i, x := range g.Data {
		if x == v {
			g.Data[i] = math.NaN()
		}
	}
}
