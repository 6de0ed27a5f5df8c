package engine

import (
	"time"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/policy"
	"github.com/topoviz/topoviz/pkg/processors"
	"github.com/topoviz/topoviz/pkg/spec"
)

// LayerSet is the ordered maps built for one render context. Every set
// owns its grids and lighting; nothing is shared between sets.
type LayerSet struct {
	Context spec.Context
	Maps    []*mapobject.MapObject
}

// Map returns the map called name.
func (s LayerSet) Map(name string) (*mapobject.MapObject, bool) {
	for _, m := range s.Maps {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Figure is everything a FigureBuilder needs. Workflow is the validated
// document the run started from and is never modified by the engine.
type Figure struct {
	RunID    string
	Workflow *spec.Workflow
	Mode     spec.RunMode
	Values   inputs.Values
	Sets     []LayerSet
}

// Set returns the layer set for c.
func (f *Figure) Set(c spec.Context) (LayerSet, bool) {
	for _, s := range f.Sets {
		if s.Context == c {
			return s, true
		}
	}
	return LayerSet{}, false
}

// Fig2D returns the flat figure settings, or zero settings.
func (f *Figure) Fig2D() spec.Fig2D {
	if f.Workflow == nil || f.Workflow.Fig2D == nil {
		return spec.Fig2D{}
	}
	return *f.Workflow.Fig2D
}

// Fig3D returns the surface figure settings, or zero settings.
func (f *Figure) Fig3D() spec.Fig3D {
	if f.Workflow == nil || f.Workflow.Fig3D == nil {
		return spec.Fig3D{}
	}
	return *f.Workflow.Fig3D
}

// Actions decodes the fig2d actions in order.
func (f *Figure) Actions() ([]Action, error) {
	raw := f.Fig2D().Actions
	out := make([]Action, 0, len(raw))
	for _, sa := range raw {
		a, err := ParseAction(sa)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Validation is the outcome of validating a workflow.
type Validation struct {
	// Problems block the run.
	Problems spec.Problems

	// Violations are every policy finding, blocking or not.
	Violations []policy.Violation
}

// OK reports whether the workflow may run.
func (v *Validation) OK() bool {
	return len(v.Problems) == 0
}

// Result describes a run that reached PhaseRendered.
type Result struct {
	RunID string
	Phase Phase

	Figure    *Figure
	Artifacts []string

	// Reports holds the processor report per "context/map".
	Reports map[string]processors.Report

	// Warnings are non-blocking policy findings.
	Warnings []policy.Violation

	Duration time.Duration
}
