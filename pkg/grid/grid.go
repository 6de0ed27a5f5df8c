package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrShape is returned when cell data does not match the declared dimensions.
var ErrShape = errors.New("grid shape mismatch")

// Transform maps cell indices to geographic coordinates. OriginX and OriginY
// locate the upper-left corner of cell (0, 0).
type Transform struct {
	OriginX  float64 `json:"origin_x" yaml:"origin_x"`
	OriginY  float64 `json:"origin_y" yaml:"origin_y"`
	CellSize float64 `json:"cell_size" yaml:"cell_size"`
}

// Extent is the bounding box covered by a grid.
type Extent struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

// Grid is a row-major raster of float64 cells.
type Grid struct {
	Rows      int
	Cols      int
	Data      []float64
	Transform *Transform
}

// New returns a zero-filled grid.
func New(rows, cols int) *Grid {
	return &Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// FromData wraps data as a rows x cols grid without copying.
func FromData(rows, cols int, data []float64) (*Grid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShape, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %dx%d needs %d cells, got %d", ErrShape, rows, cols, rows*cols, len(data))
	}
	return &Grid{Rows: rows, Cols: cols, Data: data}, nil
}

// FromRows builds a grid from a slice of equally sized rows.
func FromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrShape)
	}
	g := New(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != g.Cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, r, len(row), g.Cols)
		}
		copy(g.Data[r*g.Cols:], row)
	}
	return g, nil
}

func (g *Grid) index(r, c int) int { return r*g.Cols + c }

// At returns the value of cell (r, c).
func (g *Grid) At(r, c int) float64 { return g.Data[g.index(r, c)] }

// Set assigns the value of cell (r, c).
func (g *Grid) Set(r, c int, v float64) { g.Data[g.index(r, c)] = v }

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.Data) }

// Clone returns a deep copy, including the transform.
func (g *Grid) Clone() *Grid {
	out := &Grid{Rows: g.Rows, Cols: g.Cols, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	if g.Transform != nil {
		t := *g.Transform
		out.Transform = &t
	}
	return out
}

// CellSize returns the transform cell size, or 1 when the grid is not
// georeferenced.
func (g *Grid) CellSize() float64 {
	if g.Transform == nil || g.Transform.CellSize <= 0 {
		return 1
	}
	return g.Transform.CellSize
}

// Extent returns the bounding box. Grids without a transform span
// [0, Cols] x [0, Rows] in index units.
func (g *Grid) Extent() Extent {
	if g.Transform == nil {
		return Extent{MinX: 0, MaxX: float64(g.Cols), MinY: 0, MaxY: float64(g.Rows)}
	}
	t := g.Transform
	return Extent{
		MinX: t.OriginX,
		MaxX: t.OriginX + float64(g.Cols)*t.CellSize,
		MinY: t.OriginY - float64(g.Rows)*t.CellSize,
		MaxY: t.OriginY,
	}
}

// Rows2D returns a copy of the cells as nested rows.
func (g *Grid) Rows2D() [][]float64 {
	out := make([][]float64, g.Rows)
	for r := range out {
		row := make([]float64, g.Cols)
		copy(row, g.Data[r*g.Cols:(r+1)*g.Cols])
		out[r] = row
	}
	return out
}

// Mask returns true for every missing cell.
func (g *Grid) Mask() []bool {
	mask := make([]bool, len(g.Data))
	for i, v := range g.Data {
		mask[i] = math.IsNaN(v)
	}
	return mask
}

// Stats summarises the finite cells of a grid.
type Stats struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Mean    float64 `json:"mean" yaml:"mean"`
	Valid   int     `json:"valid" yaml:"valid"`
	Missing int     `json:"missing" yaml:"missing"`
}

// Stats computes min, max and mean over non-NaN cells. When no cell is
// valid, Min, Max and Mean are NaN.
func (g *Grid) Stats() Stats {
	finite := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	s := Stats{Valid: len(finite), Missing: len(g.Data) - len(finite)}
	if len(finite) == 0 {
		s.Min, s.Max, s.Mean = math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	s.Mean = floats.Sum(finite) / float64(len(finite))
	return s
}

// Equal reports whether two grids have the same shape and cells, treating
// NaN as equal to NaN.
func Equal(a, b *Grid) bool {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return false
	}
	for i := range a.Data {
		x, y := a.Data[i], b.Data[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			if math.IsNaN(x) != math.IsNaN(y) {
				return false
			}
			continue
		}
		if x != y {
			return false
		}
	}
	return true
}
