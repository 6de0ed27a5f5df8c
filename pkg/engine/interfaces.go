package engine

import (
	"context"

	"github.com/topoviz/topoviz/pkg/spec"
)

// InputCollector obtains raw input values for a workflow. It is the single
// point where a run may block on a user: a console prompt, a terminal form,
// a parameter file or a fixed map in tests.
type InputCollector interface {
	// Collect returns raw text per input name. Names left out (or mapped to
	// "") fall back to their declared defaults. Implementations return an
	// error wrapping inputs.ErrCancelled when the user declines.
	Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error)
}

// InputCollectorFunc adapts a function to InputCollector.
type InputCollectorFunc func(ctx context.Context, wf *spec.Workflow) (map[string]string, error)

// Collect calls f.
func (f InputCollectorFunc) Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error) {
	return f(ctx, wf)
}

// StaticInputs is an InputCollector that always returns the same values.
type StaticInputs map[string]string

// Collect returns a copy of s.
func (s StaticInputs) Collect(context.Context, *spec.Workflow) (map[string]string, error) {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// FigureBuilder turns built layer sets into output artifacts.
type FigureBuilder interface {
	// Build renders fig and returns the paths of the written artifacts.
	Build(ctx context.Context, fig *Figure) ([]string, error)
}

// FigureBuilderFunc adapts a function to FigureBuilder.
type FigureBuilderFunc func(ctx context.Context, fig *Figure) ([]string, error)

// Build calls f.
func (f FigureBuilderFunc) Build(ctx context.Context, fig *Figure) ([]string, error) {
	return f(ctx, fig)
}
