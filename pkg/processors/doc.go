// Package processors implements the named, parameterised transforms a map's
// processor chain is made of, and the pipeline that runs them.
//
// # Overview
//
// Every processor is registered once in an immutable Registry with an
// applicability (2D, 3D or both) and a kind:
//
//   - mutate: rewrites the map's grid in place (nan_below, gaussian_smooth, expr)
//   - derive: appends a derived layer and leaves the grid alone (hillshade, multishade)
//   - state: changes 3D-only state such as height scale or lighting
//
// The pipeline walks a map's chain in declared order. Each step's params
// are resolved against the run's input values; a step whose applicability
// excludes the map's context is skipped with no effect. Failures come back as
// *StepError carrying the map, the processor and its position in the chain.
//
// # Missing data
//
// NaN marks missing cells. Masking never un-masks, smoothing renormalises by
// the valid-data weight and keeps every NaN cell NaN, and shading propagates
// the source mask to the derived layer.
package processors
