// Package mapobject holds the per-map state the processor pipeline works on:
// the owned grid, display settings, derived layers and 3D lighting.
package mapobject

import (
	"math"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/spec"
)

// DefaultCmap is used when a map declares no colormap.
const DefaultCmap = "terrain"

// Display holds how a layer is drawn.
type Display struct {
	Cmap   string   `json:"cmap" yaml:"cmap"`
	Cbar   string   `json:"cbar,omitempty" yaml:"cbar,omitempty"`
	Alpha  float64  `json:"alpha" yaml:"alpha"`
	Vmin   *float64 `json:"vmin,omitempty" yaml:"vmin,omitempty"`
	Vmax   *float64 `json:"vmax,omitempty" yaml:"vmax,omitempty"`
	Draped bool     `json:"draped,omitempty" yaml:"draped,omitempty"`
}

// DisplayFromSpec fills defaults for unset map fields.
func DisplayFromSpec(ms spec.MapSpec) Display {
	d := Display{Cmap: ms.Cmap, Cbar: ms.Cbar, Alpha: 1, Vmin: ms.Vmin, Vmax: ms.Vmax}
	if d.Cmap == "" {
		d.Cmap = DefaultCmap
	}
	if ms.Alpha != nil {
		d.Alpha = *ms.Alpha
	}
	if ms.Draped != nil {
		d.Draped = *ms.Draped
	}
	return d
}

// Layer is a derived layer spawned by a shading processor. It never
// replaces the base grid.
type Layer struct {
	Name      string     `json:"name" yaml:"name"`
	Processor string     `json:"processor" yaml:"processor"`
	Hint      string     `json:"hint" yaml:"hint"`
	Grid      *grid.Grid `json:"-" yaml:"-"`
	Display   Display    `json:"display" yaml:"display"`
}

// MapObject is a named map layer and everything its pipeline produced.
type MapObject struct {
	// Name is unique within a figure.
	Name string

	// Source is the data source name the grid was cloned from.
	Source string

	// Context is the rendering target the pipeline ran for.
	Context spec.Context

	// Grid is owned by this map and mutated in place by processors.
	Grid *grid.Grid

	Display Display

	// Processors is the chain as authored, with references unresolved.
	Processors []spec.ProcessorSpec

	// Derived layers in the order their processors ran.
	Derived []Layer

	// Lighting and ZScale only affect 3D rendering.
	Lighting Lighting
	ZScale   float64

	// SmoothShading overrides the figure setting when set.
	SmoothShading   *bool
	EyeDomeLighting bool
}

// New creates a map owning g.
func New(name string, g *grid.Grid, display Display) *MapObject {
	return &MapObject{
		Name:     name,
		Grid:     g,
		Display:  display,
		Lighting: DefaultLighting(),
		ZScale:   1,
	}
}

// FromSpec creates a map for ms over a clone of g.
func FromSpec(ms spec.MapSpec, g *grid.Grid, target spec.Context) *MapObject {
	m := New(ms.Name, g.Clone(), DisplayFromSpec(ms))
	m.Source = ms.Data
	m.Context = target
	m.Processors = append([]spec.ProcessorSpec(nil), ms.Processors...)
	m.Lighting = LightingFromSpec(ms)
	if ms.SmoothShading != nil {
		smooth := *ms.SmoothShading
		m.SmoothShading = &smooth
	}
	if ms.EyeDomeLighting != nil {
		m.EyeDomeLighting = *ms.EyeDomeLighting
	}
	return m
}

// AddLayer appends a derived layer, naming it after its processor when
// unnamed.
func (m *MapObject) AddLayer(l Layer) {
	if l.Name == "" {
		l.Name = m.Name + "_" + l.Processor
	}
	m.Derived = append(m.Derived, l)
}

// Range returns the color range: explicit bounds win, otherwise the finite
// minimum and maximum of the grid.
func (m *MapObject) Range() (vmin, vmax float64) {
	s := m.Grid.Stats()
	vmin, vmax = s.Min, s.Max
	if m.Display.Vmin != nil {
		vmin = *m.Display.Vmin
	}
	if m.Display.Vmax != nil {
		vmax = *m.Display.Vmax
	}
	return vmin, vmax
}

// HasData reports whether any cell is not NaN.
func (m *MapObject) HasData() bool {
	for _, v := range m.Grid.Data {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}
