// Package runner provides the strategies that source raw input values for
// a workflow run.
//
// Every strategy implements Runner and so can be handed to the engine as
// its input collector:
//
//   - Prompt asks on a line-oriented terminal.
//   - Dialog shows a terminal form built with bubbletea.
//   - ParamFile reads a flat name=value file written by WriteParamFile.
//   - Fast wraps Prompt or Dialog and asks only for inputs that feed data
//     sources.
//
// Prompt and Dialog ask for every input of an interactive workflow, and
// only for inputs without a default otherwise. Declining to answer returns
// inputs.ErrCancelled.
package runner
