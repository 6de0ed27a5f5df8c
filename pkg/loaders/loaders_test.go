package loaders

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/topoviz/topoviz/pkg/inputs"
)

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	value    []byte
}

// buildTIFF writes a little-endian single-strip TIFF with the given pixel
// payload and extra IFD entries.
func buildTIFF(rows, cols int, bps, format uint16, pixels []byte, extra ...ifdEntry) []byte {
	le := binary.LittleEndian
	short := func(v uint16) []byte { b := make([]byte, 2); le.PutUint16(b, v); return b }
	long := func(v uint32) []byte { b := make([]byte, 4); le.PutUint32(b, v); return b }

	entries := []ifdEntry{
		{tagImageWidth, 4, 1, long(uint32(cols))},
		{tagImageLength, 4, 1, long(uint32(rows))},
		{tagBitsPerSample, 3, 1, short(bps)},
		{tagCompression, 3, 1, short(compressionNone)},
		{tagStripOffsets, 4, 1, long(8)},
		{tagSamplesPerPixel, 3, 1, short(1)},
		{tagRowsPerStrip, 4, 1, long(uint32(rows))},
		{tagStripByteCounts, 4, 1, long(uint32(len(pixels)))},
		{tagSampleFormat, 3, 1, short(format)},
	}
	entries = append(entries, extra...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(short(42))
	buf.Write(long(0))
	buf.Write(pixels)

	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.value) > 4 {
			offsets[i] = uint32(buf.Len())
			buf.Write(e.value)
		}
	}
	ifd := uint32(buf.Len())
	buf.Write(short(uint16(len(entries))))
	for i, e := range entries {
		buf.Write(short(e.tag))
		buf.Write(short(e.typ))
		buf.Write(long(e.count))
		if len(e.value) > 4 {
			buf.Write(long(offsets[i]))
			continue
		}
		v := make([]byte, 4)
		copy(v, e.value)
		buf.Write(v)
	}
	buf.Write(long(0))

	out := buf.Bytes()
	le.PutUint32(out[4:8], ifd)
	return out
}

func doubles(vs ...float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

func float32Pixels(vs ...float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestReadFloatGeoTIFF(t *testing.T) {
	nodata := []byte("-9999\x00")
	data := buildTIFF(2, 3, 32, sampleFloat,
		float32Pixels(100, 200.5, -9999, 400, 500, 600),
		ifdEntry{tagModelPixelScale, 12, 3, doubles(30, 30, 0)},
		ifdEntry{tagModelTiepoint, 12, 6, doubles(0, 0, 0, 1000, 5000, 0)},
		ifdEntry{tagGDALNoData, 2, uint32(len(nodata)), nodata},
	)

	g, err := readGeoTIFF(data, 1)
	if err != nil {
		t.Fatalf("readGeoTIFF: %v", err)
	}
	if g.Rows != 2 || g.Cols != 3 {
		t.Fatalf("shape = %dx%d, want 2x3", g.Rows, g.Cols)
	}
	if g.At(0, 1) != 200.5 || g.At(1, 2) != 600 {
		t.Errorf("unexpected values %v", g.Data)
	}
	if !math.IsNaN(g.At(0, 2)) {
		t.Errorf("nodata cell = %v, want NaN", g.At(0, 2))
	}
	if g.Transform == nil || g.Transform.CellSize != 30 || g.Transform.OriginX != 1000 || g.Transform.OriginY != 5000 {
		t.Errorf("transform = %+v", g.Transform)
	}
}

func TestReadEncodedTIFF(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(10*y + x)})
		}
	}

	tests := []struct {
		name string
		opts *tiff.Options
	}{
		{"uncompressed", &tiff.Options{Compression: tiff.Uncompressed}},
		{"deflate", &tiff.Options{Compression: tiff.Deflate}},
		{"deflate with predictor", &tiff.Options{Compression: tiff.Deflate, Predictor: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tiff.Encode(&buf, img, tt.opts); err != nil {
				t.Fatal(err)
			}
			g, err := readGeoTIFF(buf.Bytes(), 1)
			if err != nil {
				t.Fatalf("readGeoTIFF: %v", err)
			}
			if g.Rows != 3 || g.Cols != 4 {
				t.Fatalf("shape = %dx%d, want 3x4", g.Rows, g.Cols)
			}
			for y := 0; y < 3; y++ {
				for x := 0; x < 4; x++ {
					if got, want := g.At(y, x), float64(10*y+x); got != want {
						t.Errorf("cell (%d,%d) = %v, want %v", y, x, got, want)
					}
				}
			}
		})
	}
}

func TestReadGeoTIFFRejects(t *testing.T) {
	bigTIFF := []byte("II\x2b\x00\x08\x00\x00\x00")
	if _, err := readGeoTIFF(bigTIFF, 1); !errors.Is(err, ErrUnsupportedTIFF) {
		t.Errorf("BigTIFF: expected ErrUnsupportedTIFF, got %v", err)
	}
	if _, err := readGeoTIFF([]byte("not a tiff at all"), 1); !errors.Is(err, ErrUnsupportedTIFF) {
		t.Errorf("garbage: expected ErrUnsupportedTIFF, got %v", err)
	}
	data := buildTIFF(1, 2, 32, sampleFloat, float32Pixels(1, 2))
	if _, err := readGeoTIFF(data, 2); err == nil {
		t.Error("band 2 of a single band image should fail")
	}
}

func npyPayload(descr, shape string, body []byte) []byte {
	header := "{'descr': '" + descr + "', 'fortran_order': False, 'shape': " + shape + ", }"
	for (10+len(header)+1)%16 != 0 {
		header += " "
	}
	header += "\n"
	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	hl := make([]byte, 2)
	binary.LittleEndian.PutUint16(hl, uint16(len(header)))
	buf.Write(hl)
	buf.WriteString(header)
	buf.Write(body)
	return buf.Bytes()
}

func TestDecodeNPY(t *testing.T) {
	g, err := decodeNPY(npyPayload("<f8", "(2, 3)", doubles(1, 2, 3, 4, math.NaN(), 6)))
	if err != nil {
		t.Fatalf("decodeNPY: %v", err)
	}
	if g.Rows != 2 || g.Cols != 3 || g.At(1, 0) != 4 || !math.IsNaN(g.At(1, 1)) {
		t.Errorf("unexpected grid %dx%d %v", g.Rows, g.Cols, g.Data)
	}

	ints := make([]byte, 8)
	binary.LittleEndian.PutUint16(ints[0:], uint16(0xFFFF))
	binary.LittleEndian.PutUint16(ints[2:], 7)
	binary.LittleEndian.PutUint16(ints[4:], 8)
	binary.LittleEndian.PutUint16(ints[6:], 9)
	g, err = decodeNPY(npyPayload("<i2", "(4,)", ints))
	if err != nil {
		t.Fatalf("decodeNPY int16: %v", err)
	}
	if g.Rows != 1 || g.Cols != 4 || g.At(0, 0) != -1 || g.At(0, 3) != 9 {
		t.Errorf("unexpected 1D grid %v", g.Data)
	}

	if _, err := decodeNPY(npyPayload("<f8", "(2, 2, 2)", doubles(1, 2, 3, 4, 5, 6, 7, 8))); err == nil {
		t.Error("3D array should be rejected")
	}
	if _, err := decodeNPY(npyPayload("<c16", "(1,)", make([]byte, 16))); err == nil {
		t.Error("complex dtype should be rejected")
	}
}

func TestDecodeNPZ(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, vals := range map[string][]float64{"elevation.npy": {1, 2}, "slope.npy": {3, 4}} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(npyPayload("<f8", "(1, 2)", doubles(vals...))); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := decodeNPZ(buf.Bytes(), ""); !errors.Is(err, ErrArrayKey) {
		t.Errorf("expected ErrArrayKey, got %v", err)
	}
	g, err := decodeNPZ(buf.Bytes(), "slope")
	if err != nil {
		t.Fatalf("decodeNPZ: %v", err)
	}
	if g.At(0, 1) != 4 {
		t.Errorf("slope[0,1] = %v, want 4", g.At(0, 1))
	}
	if _, err := decodeNPZ(buf.Bytes(), "aspect"); err == nil {
		t.Error("missing key should fail")
	}
}

func TestDecodeJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		nanCell int
		wantErr bool
	}{
		{name: "bare", doc: `[[1, 2], [null, 4]]`, nanCell: 2},
		{name: "object", doc: `{"data": [[1, -1], [3, 4]], "nodata": -1, "transform": {"origin_x": 0, "origin_y": 10, "cell_size": 5}}`, nanCell: 1},
		{name: "ragged", doc: `[[1, 2], [3]]`, wantErr: true},
		{name: "empty", doc: `[]`, wantErr: true},
		{name: "not json", doc: `elevation`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := decodeJSONArray([]byte(tt.doc))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !math.IsNaN(g.Data[tt.nanCell]) {
				t.Errorf("cell %d = %v, want NaN", tt.nanCell, g.Data[tt.nanCell])
			}
		})
	}
}

func TestBuiltinRegistry(t *testing.T) {
	r := NewBuiltin(Options{DEMStore: NewDEMStore(t.TempDir())})
	for alias, name := range map[string]string{
		"topotoolbox.read_tif": "read_tif",
		"topotoolbox.load_dem": "load_dem",
		"rasterio":             "raster",
		"numpy":                "array",
	} {
		d, err := r.Get(alias)
		if err != nil {
			t.Fatalf("Get(%s): %v", alias, err)
		}
		if d.Name != name {
			t.Errorf("%s resolves to %s, want %s", alias, d.Name, name)
		}
	}
	if _, err := r.Get("gdal"); !errors.Is(err, ErrUnknownLoader) {
		t.Errorf("expected ErrUnknownLoader, got %v", err)
	}
	if got := r.Names(); len(got) != 4 {
		t.Errorf("Names() = %v", got)
	}
	if _, err := NewRegistry(Descriptor{Name: "a", Load: readTIF}, Descriptor{Name: "b", Aliases: []string{"a"}, Load: readTIF}); err == nil {
		t.Error("alias clash should fail")
	}
}

func TestLoadersFromFiles(t *testing.T) {
	ctx := context.Background()
	r := NewBuiltin(Options{DEMStore: NewDEMStore(t.TempDir())})
	tif := writeFile(t, "dem.tif", buildTIFF(1, 3, 32, sampleFloat, float32Pixels(-1, 5, 7)))
	arr := writeFile(t, "dem.json", []byte(`[[1, 2, 3]]`))

	tests := []struct {
		loader string
		args   inputs.Args
		want   []float64
	}{
		{"topotoolbox.read_tif", inputs.Args{"path": tif}, []float64{-1, 5, 7}},
		{"topotoolbox.load_dem", inputs.Args{"source": tif}, []float64{-1, 5, 7}},
		{"rasterio", inputs.Args{"path": tif, "nodata": -1}, []float64{math.NaN(), 5, 7}},
		{"numpy", inputs.Args{"path": arr}, []float64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.loader, func(t *testing.T) {
			d, err := r.Get(tt.loader)
			if err != nil {
				t.Fatal(err)
			}
			g, err := d.Load(ctx, tt.args)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			for i, want := range tt.want {
				got := g.Data[i]
				if math.IsNaN(want) != math.IsNaN(got) || (!math.IsNaN(want) && got != want) {
					t.Errorf("cell %d = %v, want %v", i, got, want)
				}
			}
		})
	}

	d, _ := r.Get("read_tif")
	if _, err := d.Load(ctx, inputs.Args{"path": filepath.Join(t.TempDir(), "missing.tif")}); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := d.Load(ctx, inputs.Args{}); err == nil {
		t.Error("missing path param should fail")
	}
	d, _ = r.Get("array")
	if _, err := d.Load(ctx, inputs.Args{"path": writeFile(t, "dem.csv", []byte("1,2"))}); err == nil {
		t.Error("unknown extension should fail")
	}
}

func TestDEMStoreDownloadsOnce(t *testing.T) {
	payload := buildTIFF(1, 2, 32, sampleFloat, float32Pixels(3, 4))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/taiwan.tif" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	store := NewDEMStore(t.TempDir())
	store.BaseURL = srv.URL
	store.Client = srv.Client()
	r := NewBuiltin(Options{DEMStore: store})
	d, _ := r.Get("load_dem")

	for i := 0; i < 2; i++ {
		g, err := d.Load(context.Background(), inputs.Args{"source": "taiwan"})
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if g.At(0, 1) != 4 {
			t.Errorf("cell = %v, want 4", g.At(0, 1))
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}

	if _, err := d.Load(context.Background(), inputs.Args{"source": "atlantis"}); err == nil {
		t.Error("unknown sample should fail")
	}
	if _, err := store.Path(context.Background(), "tibet"); err == nil {
		t.Error("404 should fail")
	}
}
