package factory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/loaders"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/spec"
)

const workflowDoc = `version: 1
interactive: true
inputs:
  dem_path:
    type: path
    default: dem.npy
    prompt: Path to the DEM
  threshold:
    type: float
    default: 500.5
  sigma:
    type: float
    required: false
data_sources:
  dem:
    loader: numeric
    params:
      path: {$ref: dem_path}
  unused:
    loader: numeric
    params:
      path: other.npy
maps:
  - name: relief
    data: dem
    cmap: gray
    alpha: 0.8
    ambient: 0.3
    light_azimuth: 90.5
    smooth_shading: false
    processors:
      - name: nan_below
        params:
          threshold: {$ref: threshold}
      - name: multishade
        params:
          azimuths: [300.5, 45.5]
          alpha: 0.6
      - name: tenfold
  - name: overlay
    data: dem
    cbar: Elevation (m)
    vmin: 100.5
    draped: true
fig2d:
  style: paper
  figsize: [6.5, 4.5]
  actions:
    - {type: title, axis: 0, text: Relief, loc: left}
    - {type: xlim, axis: 0, min: 0.5, max: 2.5}
fig3d:
  background: white
  z_exaggeration: 2.5
  smooth_shading: true
  camera_position: iso
run:
  mode: both
`

func numericLoaders(t *testing.T) *loaders.Registry {
	t.Helper()
	r, err := loaders.NewRegistry(loaders.Descriptor{
		Name:      "numeric",
		PathParam: "path",
		Load: func(context.Context, inputs.Args) (*grid.Grid, error) {
			return grid.FromRows([][]float64{{100, 600, 700}, {450, 800, 900}, {300, 550, 1000}})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func parse(t *testing.T, doc string) *spec.Workflow {
	t.Helper()
	wf, err := spec.NewParser().Parse([]byte(doc), spec.FormatYAML, "test.yaml")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return wf
}

func build(t *testing.T, wf *spec.Workflow, mode spec.RunMode) *engine.Figure {
	t.Helper()
	e := engine.New(engine.WithLoaders(numericLoaders(t)))
	res, err := e.Run(context.Background(), wf, engine.RunOptions{
		Collector: engine.StaticInputs{"sigma": "1.5"},
		Mode:      mode,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res.Figure
}

func TestCaptureRoundTrip(t *testing.T) {
	wf := parse(t, workflowDoc)
	fig := build(t, wf, "")

	got, err := Capture(fig, Options{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !reflect.DeepEqual(got, wf) {
		t.Errorf("captured workflow differs:\n got: %+v\nwant: %+v", got, wf)
	}

	data, err := spec.Marshal(got, spec.FormatYAML)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	again := parse(t, string(data))
	if !reflect.DeepEqual(again, wf) {
		t.Errorf("saved capture differs after reparse:\n%s", data)
	}
}

func TestCaptureIsIndependent(t *testing.T) {
	wf := parse(t, workflowDoc)
	fig := build(t, wf, "")

	got, err := Capture(fig, Options{})
	if err != nil {
		t.Fatal(err)
	}
	*got.Maps[0].Alpha = 0.1
	got.Maps[0].Processors[0].Params["threshold"] = spec.Literal(1.0)
	got.Fig2D.Actions[0].Args["text"] = "changed"
	got.DataSources["dem"].Params["path"] = spec.Literal("x")

	if *wf.Maps[0].Alpha != 0.8 {
		t.Error("alpha shared with source workflow")
	}
	if !wf.Maps[0].Processors[0].Params["threshold"].IsRef() {
		t.Error("processor params shared with source workflow")
	}
	if wf.Fig2D.Actions[0].Args["text"] != "Relief" {
		t.Error("action args shared with source workflow")
	}
	if !wf.DataSources["dem"].Params["path"].IsRef() {
		t.Error("data source params shared with source workflow")
	}
}

func TestCaptureOptions(t *testing.T) {
	wf := parse(t, workflowDoc)

	t.Run("mode override is captured", func(t *testing.T) {
		got, err := Capture(build(t, wf, spec.RunMode3D), Options{})
		if err != nil {
			t.Fatal(err)
		}
		if got.Run.Mode != spec.RunMode3D {
			t.Errorf("mode = %q, want fig3d", got.Run.Mode)
		}
	})

	t.Run("interactive override", func(t *testing.T) {
		off := false
		got, err := Capture(build(t, wf, ""), Options{Interactive: &off})
		if err != nil {
			t.Fatal(err)
		}
		if got.Interactive {
			t.Error("interactive flag not overridden")
		}
		if !wf.Interactive {
			t.Error("source workflow modified")
		}
	})

	t.Run("empty figure", func(t *testing.T) {
		if _, err := Capture(&engine.Figure{}, Options{}); !errors.Is(err, ErrNoMaps) {
			t.Errorf("err = %v, want ErrNoMaps", err)
		}
	})
}

func TestCaptureAddedMap(t *testing.T) {
	wf := parse(t, workflowDoc)
	fig := build(t, wf, spec.RunMode2D)

	g, _ := grid.FromRows([][]float64{{1, 2}, {3, 4}})
	extra := mapobject.New("slope", g, mapobject.Display{Cmap: "magma", Alpha: 0.5})
	fig.Sets[0].Maps = append(fig.Sets[0].Maps, extra)

	got, err := Capture(fig, Options{})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(got.Maps) != 3 || got.Maps[2].Name != "slope" {
		t.Fatalf("maps = %+v", got.Maps)
	}
	in, ok := got.Inputs.Get("slope_path")
	if !ok || in.Default != "slope.tif" || in.Type != spec.InputPath {
		t.Errorf("generated input = %+v", in)
	}
	ds := got.DataSources["slope"]
	if ds.Loader != DefaultLoader || ds.Params["path"].Ref != "slope_path" {
		t.Errorf("generated data source = %+v", ds)
	}
	if problems := got.Check(); len(problems) > 0 {
		t.Errorf("captured workflow has problems: %v", problems)
	}
}

func TestFromMaps(t *testing.T) {
	g, _ := grid.FromRows([][]float64{{1, 2}, {3, 4}})
	vmax := 3.0
	relief := mapobject.New("relief", g, mapobject.Display{Cmap: "terrain", Alpha: 1, Vmax: &vmax})
	relief.Processors = []spec.ProcessorSpec{{Name: "multishade", Params: spec.Params{"alpha": spec.Literal(0.5)}}}
	relief.Lighting.Ambient = 0.35
	drape := mapobject.New("drape", g.Clone(), mapobject.Display{Cmap: "viridis", Cbar: "Value", Alpha: 0.4, Draped: true})

	tests := []struct {
		name      string
		loader    string
		fig2d     *spec.Fig2D
		fig3d     *spec.Fig3D
		wantMode  spec.RunMode
		wantParam string
	}{
		{name: "default loader", wantMode: spec.RunMode2D, wantParam: "path"},
		{name: "load_dem uses source", loader: "load_dem", fig3d: &spec.Fig3D{}, wantMode: spec.RunMode3D, wantParam: "source"},
		{name: "alias", loader: "rasterio", fig2d: &spec.Fig2D{}, fig3d: &spec.Fig3D{}, wantMode: spec.RunModeBoth, wantParam: "path"},
		{name: "array", loader: "array", fig2d: &spec.Fig2D{Style: "paper"}, wantMode: spec.RunMode2D, wantParam: "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := FromMaps([]*mapobject.MapObject{relief, drape}, tt.fig2d, tt.fig3d, Options{DefaultLoader: tt.loader})
			if err != nil {
				t.Fatalf("FromMaps failed: %v", err)
			}
			if wf.Run.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", wf.Run.Mode, tt.wantMode)
			}
			if !wf.Interactive || wf.Version != spec.CurrentVersion {
				t.Errorf("interactive=%v version=%d", wf.Interactive, wf.Version)
			}
			if got := wf.Inputs.Names(); !reflect.DeepEqual(got, []string{"relief_path", "drape_path"}) {
				t.Errorf("inputs = %v", got)
			}
			for _, name := range []string{"relief", "drape"} {
				p, ok := wf.DataSources[name].Params[tt.wantParam]
				if !ok || p.Ref != name+"_path" {
					t.Errorf("%s params = %+v", name, wf.DataSources[name].Params)
				}
			}
			r := wf.Maps[0]
			if r.Vmax == nil || *r.Vmax != 3 || r.Vmax == relief.Display.Vmax {
				t.Errorf("vmax not copied: %v", r.Vmax)
			}
			if len(r.Processors) != 1 || r.Processors[0].Params["alpha"].Value != 0.5 {
				t.Errorf("processors = %+v", r.Processors)
			}
			d := wf.Maps[1]
			if d.Draped == nil || !*d.Draped || d.Cbar != "Value" || *d.Alpha != 0.4 {
				t.Errorf("drape spec = %+v", d)
			}
			if r.Draped != nil {
				t.Error("undraped map captured as draped")
			}
			if r.Ambient == nil || *r.Ambient != 0.35 || r.Diffuse != nil || d.Ambient != nil {
				t.Errorf("lighting = ambient %v diffuse %v, drape ambient %v", r.Ambient, r.Diffuse, d.Ambient)
			}
			if problems := wf.Check(); len(problems) > 0 {
				t.Errorf("problems: %v", problems)
			}
		})
	}
}

func TestFromMapsErrors(t *testing.T) {
	g, _ := grid.FromRows([][]float64{{1}})
	m := mapobject.New("relief", g, mapobject.Display{Alpha: 1})

	if _, err := FromMaps(nil, nil, nil, Options{}); !errors.Is(err, ErrNoMaps) {
		t.Errorf("empty: err = %v", err)
	}
	if _, err := FromMaps([]*mapobject.MapObject{m, m}, nil, nil, Options{}); !errors.Is(err, ErrDuplicateMap) {
		t.Errorf("duplicate: err = %v", err)
	}
	if _, err := FromMaps([]*mapobject.MapObject{m}, nil, nil, Options{DefaultLoader: "netcdf"}); !errors.Is(err, loaders.ErrUnknownLoader) {
		t.Errorf("unknown loader: err = %v", err)
	}
}

func TestUnique(t *testing.T) {
	taken := map[string]bool{"dem": true, "dem_2": true}
	if got := unique("dem", func(n string) bool { return taken[n] }); got != "dem_3" {
		t.Errorf("unique = %q, want dem_3", got)
	}
	if got := unique("slope", func(n string) bool { return taken[n] }); got != "slope" {
		t.Errorf("unique = %q, want slope", got)
	}
}

func genParam(depth int) *rapid.Generator[spec.Param] {
	return rapid.Custom(func(t *rapid.T) spec.Param {
		choice := rapid.IntRange(0, 3).Draw(t, "choice")
		if depth <= 0 {
			choice = rapid.IntRange(0, 1).Draw(t, "leaf")
		}
		switch choice {
		case 0:
			return spec.Literal(rapid.Float64Range(-1e3, 1e3).Draw(t, "float"))
		case 1:
			return spec.Reference(rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "ref"))
		case 2:
			return spec.Param{Kind: spec.ListParam, List: rapid.SliceOfN(genParam(depth-1), 1, 3).Draw(t, "list")}
		default:
			keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{2,4}`), 1, 3, rapid.ID[string]).Draw(t, "keys")
			m := make(map[string]spec.Param, len(keys))
			for _, k := range keys {
				m[k] = genParam(depth - 1).Draw(t, "value")
			}
			return spec.Param{Kind: spec.MapParam, Map: m}
		}
	})
}

func TestCaptureReproducesProcessorChains(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, _ := grid.FromRows([][]float64{{1, 2}, {3, 4}})
		wf := &spec.Workflow{
			Version:     spec.CurrentVersion,
			DataSources: map[string]spec.DataSource{"dem": {Name: "dem", Loader: "read_tif", Params: spec.Params{"path": spec.Literal("dem.tif")}}},
		}
		nmaps := rapid.IntRange(1, 3).Draw(t, "maps")
		set := engine.LayerSet{Context: spec.Context2D}
		for i := 0; i < nmaps; i++ {
			ms := spec.MapSpec{Name: string(rune('p' + i)), Data: "dem"}
			nprocs := rapid.IntRange(0, 4).Draw(t, "procs")
			for j := 0; j < nprocs; j++ {
				params := spec.Params{}
				for _, k := range rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,5}`), 0, 3, rapid.ID[string]).Draw(t, "keys") {
					params[k] = genParam(2).Draw(t, "param")
				}
				ms.Processors = append(ms.Processors, spec.ProcessorSpec{
					Name:   rapid.SampledFrom([]string{"nan_below", "multishade", "tenfold", "expr"}).Draw(t, "name"),
					Params: params,
				})
			}
			wf.Maps = append(wf.Maps, ms)
			set.Maps = append(set.Maps, mapobject.FromSpec(ms, g, spec.Context2D))
		}

		got, err := Capture(&engine.Figure{Workflow: wf, Mode: spec.RunMode2D, Sets: []engine.LayerSet{set}}, Options{})
		if err != nil {
			t.Fatalf("Capture failed: %v", err)
		}
		if !reflect.DeepEqual(got.Maps, wf.Maps) {
			t.Fatalf("maps differ:\n got: %+v\nwant: %+v", got.Maps, wf.Maps)
		}
		if got.Run.Mode != "" {
			t.Fatalf("default mode captured as %q", got.Run.Mode)
		}
	})
}
