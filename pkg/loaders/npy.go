package loaders

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/topoviz/topoviz/pkg/grid"
)

// ErrArrayKey is returned when an archive holds several arrays and no key
// selects one.
var ErrArrayKey = errors.New("array archive requires a key")

var (
	npyMagic  = []byte("\x93NUMPY")
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([<>|=])([a-z])(\d+)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// decodeNPY parses a .npy payload holding a 1D or 2D numeric array. 1D
// arrays become a single row.
func decodeNPY(data []byte) (*grid.Grid, error) {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return nil, fmt.Errorf("not an npy file")
	}
	major := data[6]
	var headerLen, start int
	switch major {
	case 1:
		headerLen, start = int(binary.LittleEndian.Uint16(data[8:10])), 10
	case 2, 3:
		if len(data) < 12 {
			return nil, fmt.Errorf("truncated npy header")
		}
		headerLen, start = int(binary.LittleEndian.Uint32(data[8:12])), 12
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}
	if start+headerLen > len(data) {
		return nil, fmt.Errorf("truncated npy header")
	}
	header := string(data[start : start+headerLen])
	body := data[start+headerLen:]

	m := descrRe.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("npy header has no usable descr: %s", strings.TrimSpace(header))
	}
	var bo binary.ByteOrder = binary.LittleEndian
	if m[1] == ">" {
		bo = binary.BigEndian
	}
	kind := m[2]
	size, _ := strconv.Atoi(m[3])

	fortran := false
	if f := fortranRe.FindStringSubmatch(header); f != nil {
		fortran = f[1] == "True"
	}

	sm := shapeRe.FindStringSubmatch(header)
	if sm == nil {
		return nil, fmt.Errorf("npy header has no shape")
	}
	var dims []int
	for _, part := range strings.Split(sm[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad npy shape %q", sm[1])
		}
		dims = append(dims, n)
	}
	var rows, cols int
	switch len(dims) {
	case 1:
		rows, cols = 1, dims[0]
	case 2:
		rows, cols = dims[0], dims[1]
	default:
		return nil, fmt.Errorf("npy array must be 1D or 2D, got %dD", len(dims))
	}

	n := rows * cols
	if len(body) < n*size {
		return nil, fmt.Errorf("npy body holds %d bytes, want %d", len(body), n*size)
	}
	values := make([]float64, n)
	for i := range values {
		v, err := npyValue(body[i*size:(i+1)*size], bo, kind)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	if fortran && rows > 1 {
		t := make([]float64, n)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				t[r*cols+c] = values[c*rows+r]
			}
		}
		values = t
	}
	return grid.FromData(rows, cols, values)
}

func npyValue(b []byte, bo binary.ByteOrder, kind string) (float64, error) {
	switch kind {
	case "f":
		switch len(b) {
		case 4:
			return float64(math.Float32frombits(bo.Uint32(b))), nil
		case 8:
			return math.Float64frombits(bo.Uint64(b)), nil
		}
	case "i":
		return sampleValue(b, bo, sampleInt), nil
	case "u":
		return sampleValue(b, bo, sampleUint), nil
	case "b":
		if b[0] != 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported npy dtype %s%d", kind, len(b))
}

// decodeNPZ opens an .npz archive and decodes the array called key, or the
// only array when key is empty.
func decodeNPZ(data []byte, key string) (*grid.Grid, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open npz: %w", err)
	}
	entries := make(map[string]*zip.File, len(zr.File))
	var keys []string
	for _, f := range zr.File {
		k := strings.TrimSuffix(path.Base(f.Name), ".npy")
		entries[k] = f
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if key == "" {
		if len(keys) != 1 {
			return nil, fmt.Errorf("%w: archive holds %s", ErrArrayKey, strings.Join(keys, ", "))
		}
		key = keys[0]
	}
	f, ok := entries[key]
	if !ok {
		return nil, fmt.Errorf("array %q not found, archive holds %s", key, strings.Join(keys, ", "))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return decodeNPY(payload)
}
