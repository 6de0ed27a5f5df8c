// Package engine executes topoviz workflows.
//
// # Overview
//
// A run moves strictly forward through six phases:
//
//  1. Parsed - the document was decoded by package spec
//  2. Validated - references, registries, fig2d actions and policies checked
//  3. InputsResolved - an InputCollector supplied raw values, typed by package inputs
//  4. DataLoaded - every data source's loader ran exactly once, in name order
//  5. MapsBuilt - one LayerSet per render context, each map over its own grid clone
//  6. Rendered - a FigureBuilder turned the Figure into artifacts
//
// Any error moves the run to Failed. Run then returns a nil Result and an
// *EngineError whose Phase is the phase that could not be entered.
//
// # Collaborators
//
// The engine depends only on two interfaces:
//
//   - InputCollector: console prompt, terminal form, parameter file or fast mode (package runner)
//   - FigureBuilder: manifest or PNG output (package render)
//
// Loader and processor registries default to the built-in ones and can be
// replaced with WithLoaders and WithProcessors. WithPolicy adds Rego checks
// to validation; warnings are reported on the Result, errors block the run.
//
// # Error Classification
//
// Errors are classified by the stage that produced them:
//
//   - Validation: structural problems, all collected into spec.Problems
//   - Input: missing, unconvertible or cancelled inputs
//   - Loader: carries the data source name
//   - Processor: carries the map name, processor name and chain position
//   - Render: figure builder failures
//
// Use IsValidation, IsInput, IsLoader, IsProcessor and IsRender, or
// errors.As with *EngineError for the full context.
//
// # Telemetry
//
// Each run gets a UUID, a run.execute span with one child span per phase,
// loader and map, phase metrics and phase events. See package telemetry.
package engine
