package processors

import (
	"context"
	"fmt"
	"math"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
)

// Boundary modes follow the usual ndimage names.
const (
	ModeNearest  = "nearest"
	ModeReflect  = "reflect"
	ModeMirror   = "mirror"
	ModeWrap     = "wrap"
	ModeConstant = "constant"
)

const truncate = 4.0

func gaussianKernel(sigma float64) []float64 {
	radius := int(truncate*sigma + 0.5)
	if radius == 0 {
		return []float64{1}
	}
	k := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		k[i+radius] = w
		sum += w
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// boundaryIndex maps an out-of-range index back into [0, n). ok is false
// when the cell lies in constant padding.
func boundaryIndex(i, n int, mode string) (idx int, ok bool) {
	if i >= 0 && i < n {
		return i, true
	}
	if n == 1 {
		return 0, mode != ModeConstant
	}
	switch mode {
	case ModeConstant:
		return 0, false
	case ModeWrap:
		i %= n
		if i < 0 {
			i += n
		}
		return i, true
	case ModeReflect:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i, true
	case ModeMirror:
		period := 2 * (n - 1)
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - i
		}
		return i, true
	default:
		if i < 0 {
			return 0, true
		}
		return n - 1, true
	}
}

func validMode(mode string) error {
	switch mode {
	case ModeNearest, ModeReflect, ModeMirror, ModeWrap, ModeConstant:
		return nil
	}
	return fmt.Errorf("unsupported boundary mode %q", mode)
}

// convolveRows filters each row of data (rows x cols) with k.
func convolveRows(data []float64, rows, cols int, k []float64, mode string) []float64 {
	out := make([]float64, len(data))
	radius := len(k) / 2
	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		for c := 0; c < cols; c++ {
			var acc float64
			for j, w := range k {
				idx, ok := boundaryIndex(c+j-radius, cols, mode)
				if ok {
					acc += w * row[idx]
				}
			}
			out[r*cols+c] = acc
		}
	}
	return out
}

// convolveCols filters each column of data with k.
func convolveCols(data []float64, rows, cols int, k []float64, mode string) []float64 {
	out := make([]float64, len(data))
	radius := len(k) / 2
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			var acc float64
			for j, w := range k {
				idx, ok := boundaryIndex(r+j-radius, rows, mode)
				if ok {
					acc += w * data[idx*cols+c]
				}
			}
			out[r*cols+c] = acc
		}
	}
	return out
}

// nanGaussian smooths g while ignoring NaN cells: the data with NaN filled
// by zero and the validity mask are filtered with the same kernel and the
// result is renormalised by the filtered mask. Cells that were NaN stay NaN,
// and cells with no valid neighbour become NaN.
func nanGaussian(g *grid.Grid, sigma float64, mode string) (*grid.Grid, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("sigma must be non-negative, got %v", sigma)
	}
	if err := validMode(mode); err != nil {
		return nil, err
	}
	out := g.Clone()
	k := gaussianKernel(sigma)
	if len(k) == 1 {
		return out, nil
	}

	filled := make([]float64, g.Len())
	weights := make([]float64, g.Len())
	for i, v := range g.Data {
		if !math.IsNaN(v) {
			filled[i] = v
			weights[i] = 1
		}
	}

	sd := convolveCols(convolveRows(filled, g.Rows, g.Cols, k, mode), g.Rows, g.Cols, k, mode)
	sw := convolveCols(convolveRows(weights, g.Rows, g.Cols, k, mode), g.Rows, g.Cols, k, mode)

	for i := range out.Data {
		if math.IsNaN(g.Data[i]) || sw[i] == 0 {
			out.Data[i] = math.NaN()
			continue
		}
		out.Data[i] = sd[i] / sw[i]
	}
	return out, nil
}

func smoothingArgs(args inputs.Args) (float64, string, error) {
	sigma, err := args.Float("sigma", 1)
	if err != nil {
		return 0, "", err
	}
	mode, err := args.String("mode", ModeNearest)
	if err != nil {
		return 0, "", err
	}
	return sigma, mode, nil
}

func filterDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        "gaussian_smooth",
			Description: "NaN-aware Gaussian filter (sigma, mode)",
			Kind:        KindMutate,
			Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
				sigma, mode, err := smoothingArgs(args)
				if err != nil {
					return err
				}
				smoothed, err := nanGaussian(m.Grid, sigma, mode)
				if err != nil {
					return err
				}
				m.Grid = smoothed
				return nil
			},
		},
	}
}
