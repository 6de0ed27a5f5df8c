package factory

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/loaders"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/spec"
)

// DefaultLoader is used for data sources generated for maps without
// provenance.
const DefaultLoader = "read_tif"

var (
	// ErrNoMaps is returned when there is nothing to capture.
	ErrNoMaps = errors.New("no maps to capture")

	// ErrDuplicateMap is returned when two maps share a name.
	ErrDuplicateMap = errors.New("duplicate map name")
)

// Options controls capture.
type Options struct {
	// Interactive overrides the captured interactive flag. Nil keeps the
	// flag of the source workflow, or true when there is none.
	Interactive *bool

	// DefaultLoader is the loader of generated data sources.
	DefaultLoader string

	// Loaders resolves DefaultLoader and its path parameter.
	Loaders *loaders.Registry
}

func (o Options) withDefaults() Options {
	if o.DefaultLoader == "" {
		o.DefaultLoader = DefaultLoader
	}
	if o.Loaders == nil {
		o.Loaders = loaders.Builtin()
	}
	return o
}

// Capture turns a built figure back into a workflow. Maps keep the map spec
// they were built from: data source, display fields and the processor
// chain with references as authored. Maps the source workflow does not
// know about get a generated path input and data source.
//
// Capturing the figure of an unmodified run yields a workflow equal to the
// one the run started from.
func Capture(fig *engine.Figure, opts Options) (*spec.Workflow, error) {
	if fig == nil || len(fig.Sets) == 0 {
		return nil, ErrNoMaps
	}
	opts = opts.withDefaults()
	src := fig.Workflow

	wf := &spec.Workflow{Version: spec.CurrentVersion, Interactive: true}
	if src != nil {
		wf.Interactive = src.Interactive
		wf.Inputs = copyInputs(src.Inputs)
		wf.DataSources = copyDataSources(src.DataSources)
		wf.Fig2D = copyFig2D(src.Fig2D)
		wf.Fig3D = copyFig3D(src.Fig3D)
		wf.Run = src.Run
		if fig.Mode != "" && fig.Mode != src.Mode() {
			wf.Run.Mode = fig.Mode
		}
	} else {
		wf.Run.Mode = fig.Mode
	}
	if opts.Interactive != nil {
		wf.Interactive = *opts.Interactive
	}

	seen := map[string]bool{}
	for _, m := range fig.Sets[0].Maps {
		if seen[m.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMap, m.Name)
		}
		seen[m.Name] = true

		if src != nil {
			if ms, ok := src.Map(m.Name); ok {
				ms = copyMapSpec(ms)
				ms.Processors = copyProcessors(m.Processors)
				wf.Maps = append(wf.Maps, ms)
				continue
			}
		}
		log.Debug().Str("map", m.Name).Msg("Map has no provenance, generating data source")
		if err := addGenerated(wf, m, opts); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

// FromMaps builds a workflow for maps composed outside a run. Each map
// gets a "<name>_path" input and a data source using the default loader.
// The run mode follows the figure settings given: both, fig3d when only
// fig3d is set, fig2d otherwise.
func FromMaps(maps []*mapobject.MapObject, fig2d *spec.Fig2D, fig3d *spec.Fig3D, opts Options) (*spec.Workflow, error) {
	if len(maps) == 0 {
		return nil, ErrNoMaps
	}
	opts = opts.withDefaults()

	wf := &spec.Workflow{
		Version:     spec.CurrentVersion,
		Interactive: true,
		Fig2D:       copyFig2D(fig2d),
		Fig3D:       copyFig3D(fig3d),
	}
	if opts.Interactive != nil {
		wf.Interactive = *opts.Interactive
	}
	switch {
	case fig2d != nil && fig3d != nil:
		wf.Run.Mode = spec.RunModeBoth
	case fig3d != nil:
		wf.Run.Mode = spec.RunMode3D
	default:
		wf.Run.Mode = spec.RunMode2D
	}

	seen := map[string]bool{}
	for _, m := range maps {
		if seen[m.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMap, m.Name)
		}
		seen[m.Name] = true
		if err := addGenerated(wf, m, opts); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

// addGenerated appends a map spec for m together with its path input and
// data source.
func addGenerated(wf *spec.Workflow, m *mapobject.MapObject, opts Options) error {
	desc, err := opts.Loaders.Get(opts.DefaultLoader)
	if err != nil {
		return err
	}
	param := desc.PathParam
	if param == "" {
		param = "path"
	}

	input := unique(m.Name+"_path", func(n string) bool { _, ok := wf.Inputs.Get(n); return ok })
	required := true
	wf.Inputs = append(wf.Inputs, spec.Input{
		Name:     input,
		Type:     spec.InputPath,
		Default:  m.Name + ".tif",
		Prompt:   "Path for " + m.Name,
		Required: &required,
	})

	source := unique(m.Name, func(n string) bool { _, ok := wf.DataSources[n]; return ok })
	if wf.DataSources == nil {
		wf.DataSources = make(map[string]spec.DataSource)
	}
	wf.DataSources[source] = spec.DataSource{
		Name:   source,
		Loader: opts.DefaultLoader,
		Params: spec.Params{param: spec.Reference(input)},
	}

	wf.Maps = append(wf.Maps, mapSpecOf(m, source))
	return nil
}

// mapSpecOf describes m as a map spec fed by source.
func mapSpecOf(m *mapobject.MapObject, source string) spec.MapSpec {
	d := m.Display
	alpha := d.Alpha
	ms := spec.MapSpec{
		Name:       m.Name,
		Data:       source,
		Cmap:       d.Cmap,
		Cbar:       d.Cbar,
		Alpha:      &alpha,
		Vmin:       copyFloat(d.Vmin),
		Vmax:       copyFloat(d.Vmax),
		Processors: copyProcessors(m.Processors),
	}
	if d.Draped {
		draped := true
		ms.Draped = &draped
	}
	setLighting(&ms, m.Lighting)
	ms.SmoothShading = copyBool(m.SmoothShading)
	if m.EyeDomeLighting {
		edl := true
		ms.EyeDomeLighting = &edl
	}
	return ms
}

// setLighting records the fields of l that differ from the default
// lighting.
func setLighting(ms *spec.MapSpec, l mapobject.Lighting) {
	def := mapobject.DefaultLighting()
	for _, f := range []struct {
		dst      **float64
		val, def float64
	}{
		{&ms.Ambient, l.Ambient, def.Ambient},
		{&ms.Diffuse, l.Diffuse, def.Diffuse},
		{&ms.Specular, l.Specular, def.Specular},
		{&ms.SpecularPower, l.SpecularPower, def.SpecularPower},
		{&ms.LightAzimuth, l.Azimuth, def.Azimuth},
		{&ms.LightElevation, l.Elevation, def.Elevation},
		{&ms.LightIntensity, l.Intensity, def.Intensity},
	} {
		if f.val != f.def {
			v := f.val
			*f.dst = &v
		}
	}
}

// unique returns name, or name with the smallest numeric suffix that is
// not taken.
func unique(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for i := 2; ; i++ {
		n := fmt.Sprintf("%s_%d", name, i)
		if !taken(n) {
			return n
		}
	}
}
