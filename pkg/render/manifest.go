package render

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/spec"
)

// Manifest describes one figure: the layers a renderer would draw and the
// settings it would apply.
type Manifest struct {
	RunID   string         `json:"run_id" yaml:"run_id"`
	Context spec.Context   `json:"context" yaml:"context"`
	Output  string         `json:"output" yaml:"output"`
	Inputs  map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Flat figure.
	Style   string    `json:"style,omitempty" yaml:"style,omitempty"`
	Figsize []float64 `json:"figsize,omitempty" yaml:"figsize,omitempty"`
	Axes    []Axis    `json:"axes,omitempty" yaml:"axes,omitempty"`

	// Surface figure.
	Surface        string   `json:"surface,omitempty" yaml:"surface,omitempty"`
	Background     string   `json:"background,omitempty" yaml:"background,omitempty"`
	ZExaggeration  *float64 `json:"z_exaggeration,omitempty" yaml:"z_exaggeration,omitempty"`
	CameraPosition any      `json:"camera_position,omitempty" yaml:"camera_position,omitempty"`

	Maps []MapEntry `json:"maps" yaml:"maps"`
}

// MapEntry summarises a built map.
type MapEntry struct {
	Name     string              `json:"name" yaml:"name"`
	Source   string              `json:"source" yaml:"source"`
	Shape    [2]int              `json:"shape" yaml:"shape,flow"`
	Extent   grid.Extent         `json:"extent" yaml:"extent"`
	Display  mapobject.Display   `json:"display" yaml:"display"`
	Range    [2]*float64         `json:"range" yaml:"range,flow"`
	Stats    StatsEntry          `json:"stats" yaml:"stats"`
	ZScale   float64             `json:"zscale,omitempty" yaml:"zscale,omitempty"`
	Lighting *mapobject.Lighting `json:"lighting,omitempty" yaml:"lighting,omitempty"`
	Derived  []LayerEntry        `json:"derived,omitempty" yaml:"derived,omitempty"`

	SmoothShading   *bool `json:"smooth_shading,omitempty" yaml:"smooth_shading,omitempty"`
	EyeDomeLighting bool  `json:"eye_dome_lighting,omitempty" yaml:"eye_dome_lighting,omitempty"`
}

// LayerEntry summarises a derived layer.
type LayerEntry struct {
	Name      string            `json:"name" yaml:"name"`
	Processor string            `json:"processor" yaml:"processor"`
	Hint      string            `json:"hint" yaml:"hint"`
	Display   mapobject.Display `json:"display" yaml:"display"`
	Stats     StatsEntry        `json:"stats" yaml:"stats"`
}

// StatsEntry is grid.Stats with undefined values left out, since JSON has
// no NaN.
type StatsEntry struct {
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Mean    *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Valid   int      `json:"valid" yaml:"valid"`
	Missing int      `json:"missing" yaml:"missing"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func statsEntry(g *grid.Grid) StatsEntry {
	s := g.Stats()
	return StatsEntry{Min: finite(s.Min), Max: finite(s.Max), Mean: finite(s.Mean), Valid: s.Valid, Missing: s.Missing}
}

func mapEntry(m *mapobject.MapObject, surface bool) MapEntry {
	vmin, vmax := m.Range()
	e := MapEntry{
		Name:    m.Name,
		Source:  m.Source,
		Shape:   [2]int{m.Grid.Rows, m.Grid.Cols},
		Extent:  m.Grid.Extent(),
		Display: m.Display,
		Range:   [2]*float64{finite(vmin), finite(vmax)},
		Stats:   statsEntry(m.Grid),
	}
	if surface {
		e.ZScale = m.ZScale
		l := m.Lighting
		e.Lighting = &l
		e.SmoothShading = m.SmoothShading
		e.EyeDomeLighting = m.EyeDomeLighting
	}
	for _, d := range m.Derived {
		e.Derived = append(e.Derived, LayerEntry{
			Name:      d.Name,
			Processor: d.Processor,
			Hint:      d.Hint,
			Display:   d.Display,
			Stats:     statsEntry(d.Grid),
		})
	}
	return e
}

// BuildManifest describes the layer set for context c of fig.
func BuildManifest(fig *engine.Figure, c spec.Context, output string) (*Manifest, error) {
	set, ok := fig.Set(c)
	if !ok {
		return nil, fmt.Errorf("figure has no %s layer set", c)
	}
	man := &Manifest{
		RunID:   fig.RunID,
		Context: c,
		Output:  output,
		Inputs:  fig.Values.Map(),
	}

	surface := c == spec.Context3D
	if surface {
		f3 := fig.Fig3D()
		man.Background = f3.Background
		man.ZExaggeration = f3.ZExaggeration
		man.CameraPosition = f3.CameraPosition
		if m := surfaceMap(set, f3.SurfaceMap); m != nil {
			man.Surface = m.Name
		}
	} else {
		f2 := fig.Fig2D()
		man.Style = f2.Style
		man.Figsize = f2.Figsize
		actions, err := fig.Actions()
		if err != nil {
			return nil, err
		}
		man.Axes = layoutAxes(set)
		if err := applyActions(man.Axes, actions); err != nil {
			return nil, err
		}
	}

	man.Maps = make([]MapEntry, 0, len(set.Maps))
	for _, m := range set.Maps {
		man.Maps = append(man.Maps, mapEntry(m, surface))
	}
	return man, nil
}

// surfaceMap picks the map drawn as the 3D surface: the named one, else the
// first map that is not draped, else the first map.
func surfaceMap(set engine.LayerSet, name string) *mapobject.MapObject {
	if name != "" {
		if m, ok := set.Map(name); ok {
			return m
		}
	}
	for _, m := range set.Maps {
		if !m.Display.Draped {
			return m
		}
	}
	if len(set.Maps) > 0 {
		return set.Maps[0]
	}
	return nil
}

// ManifestBuilder writes one manifest per layer set next to the image the
// figure would produce, e.g. "relief.png" gets "relief.manifest.yaml".
type ManifestBuilder struct {
	opts Options
}

// NewManifestBuilder creates a manifest builder.
func NewManifestBuilder(opts Options) *ManifestBuilder {
	return &ManifestBuilder{opts: opts.withDefaults()}
}

// Build implements engine.FigureBuilder.
func (b *ManifestBuilder) Build(ctx context.Context, fig *engine.Figure) ([]string, error) {
	var artifacts []string
	for _, set := range fig.Sets {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}
		output := outputPath(b.opts, fig, set.Context)
		man, err := BuildManifest(fig, set.Context, output)
		if err != nil {
			return artifacts, err
		}
		data, err := b.encode(man)
		if err != nil {
			return artifacts, err
		}
		path := strings.TrimSuffix(output, filepath.Ext(output)) + ".manifest." + b.opts.ManifestFormat
		if err := writeFile(path, data); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, path)
	}
	return artifacts, nil
}

func (b *ManifestBuilder) encode(man *Manifest) ([]byte, error) {
	if b.opts.ManifestFormat == "json" {
		data, err := json.MarshalIndent(man, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
		return append(data, '\n'), nil
	}
	data, err := yaml.Marshal(man)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return data, nil
}
