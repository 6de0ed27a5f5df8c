// Package grid provides the raster type shared by loaders, processors and
// figure builders.
//
// # Overview
//
// A Grid is a dense, row-major matrix of float64 cells with an optional
// geographic transform. NaN marks missing or masked data and every operation
// in this package treats NaN as "no value" rather than as a number:
//
//	g := grid.New(3, 3)
//	g.Set(1, 1, math.NaN())
//	s := g.Stats() // s.Valid == 8, s.Missing == 1
//
// Grids are owned by exactly one map layer. Anything that needs an
// independent copy must call Clone; the engine does this when it builds map
// layers from a shared data source.
package grid
