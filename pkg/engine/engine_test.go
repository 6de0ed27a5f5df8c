package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/loaders"
	"github.com/topoviz/topoviz/pkg/policy"
	"github.com/topoviz/topoviz/pkg/spec"
	"github.com/topoviz/topoviz/pkg/telemetry"
)

// countingLoader serves a fixed 3x3 grid and counts invocations.
type countingLoader struct {
	calls atomic.Int32
	fail  error
}

func (c *countingLoader) registry(t *testing.T) *loaders.Registry {
	t.Helper()
	r, err := loaders.NewRegistry(loaders.Descriptor{
		Name:      "numeric",
		PathParam: "path",
		Load: func(_ context.Context, args inputs.Args) (*grid.Grid, error) {
			c.calls.Add(1)
			if c.fail != nil {
				return nil, c.fail
			}
			if _, err := args.RequireString("path"); err != nil {
				return nil, err
			}
			return grid.FromRows([][]float64{
				{100, 600, 700},
				{math.NaN(), 800, 900},
				{450, 550, 1000},
			})
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

const scenarioA = `version: 1
inputs:
  dem_path:
    type: path
    default: dem.npy
  threshold:
    type: float
    default: 500.0
data_sources:
  dem:
    loader: numeric
    params:
      path: {$ref: dem_path}
maps:
  - name: relief
    data: dem
    processors:
      - name: nan_below
        params:
          threshold: {$ref: threshold}
      - name: multishade
        params:
          alpha: 0.6
run:
  mode: fig2d
`

func TestScenarioThresholdAndMultishade(t *testing.T) {
	loader := &countingLoader{}
	e := New(WithLoaders(loader.registry(t)))

	var built *Figure
	builder := FigureBuilderFunc(func(_ context.Context, fig *Figure) ([]string, error) {
		built = fig
		return []string{"out.png"}, nil
	})

	res, err := e.Run(context.Background(), parse(t, scenarioA), RunOptions{Builder: builder})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Phase != PhaseRendered {
		t.Errorf("phase = %s, want rendered", res.Phase)
	}
	if built == nil || len(res.Artifacts) != 1 {
		t.Fatalf("builder not invoked: artifacts=%v", res.Artifacts)
	}
	if got := loader.calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}

	set, ok := built.Set(spec.Context2D)
	if !ok || len(built.Sets) != 1 {
		t.Fatalf("expected exactly one 2D layer set, got %d", len(built.Sets))
	}
	relief, ok := set.Map("relief")
	if !ok {
		t.Fatal("relief map missing")
	}
	for i, v := range relief.Grid.Data {
		if !math.IsNaN(v) && v < 500 {
			t.Errorf("cell %d = %v survived the threshold", i, v)
		}
	}
	if !math.IsNaN(relief.Grid.At(1, 0)) {
		t.Error("original NaN was lost")
	}
	if len(relief.Derived) != 1 {
		t.Fatalf("derived layers = %d, want 1", len(relief.Derived))
	}
	if d := relief.Derived[0]; d.Processor != "multishade" || d.Display.Alpha != 0.6 {
		t.Errorf("derived layer = %s alpha %v", d.Processor, d.Display.Alpha)
	}
	if got := res.Reports["2d/relief"].Applied; len(got) != 2 {
		t.Errorf("applied = %v", got)
	}
}

func TestUndeclaredReferenceFailsBeforeLoading(t *testing.T) {
	doc := strings.Replace(scenarioA, "threshold: {$ref: threshold}", "threshold: {$ref: cutoff}", 1)
	loader := &countingLoader{}
	e := New(WithLoaders(loader.registry(t)))

	res, err := e.Run(context.Background(), parse(t, doc), RunOptions{})
	if res != nil {
		t.Error("expected nil result on failure")
	}
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var problems spec.Problems
	if !errors.As(err, &problems) {
		t.Fatalf("error does not carry problems: %v", err)
	}
	if !strings.Contains(err.Error(), `"cutoff"`) || !strings.Contains(err.Error(), "maps[0].processors[0].params.threshold") {
		t.Errorf("error %q does not name the reference and its location", err)
	}
	if got := loader.calls.Load(); got != 0 {
		t.Errorf("loader called %d times before validation passed", got)
	}
}

func TestValidateCollectsRegistryProblems(t *testing.T) {
	doc := `version: 1
data_sources:
  dem:
    loader: netcdf
    params: {path: a.nc}
maps:
  - name: relief
    data: dem
    processors:
      - name: sharpen
      - name: hillshade
fig2d:
  actions:
    - {type: title, axis: 0, text: Relief}
    - {type: spin, axis: 0}
    - {type: xlim, axis: 0, min: 10, max: 1}
`
	v, err := New().Validate(context.Background(), parse(t, doc))
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	paths := map[string]bool{}
	for _, p := range v.Problems {
		paths[p.Path] = true
	}
	for _, want := range []string{
		"data_sources.dem.loader",
		"maps[0].processors[0].name",
		"fig2d.actions[1]",
		"fig2d.actions[2]",
	} {
		if !paths[want] {
			t.Errorf("missing problem at %s; got %v", want, v.Problems)
		}
	}
	if len(v.Problems) != 4 {
		t.Errorf("got %d problems, want 4: %v", len(v.Problems), v.Problems)
	}
}

func TestValidateAcceptsAliases(t *testing.T) {
	doc := `version: 1
data_sources:
  dem:
    loader: topotoolbox.read_tif
    params: {path: dem.tif}
maps:
  - name: relief
    data: dem
`
	if _, err := New().Validate(context.Background(), parse(t, doc)); err != nil {
		t.Errorf("alias rejected: %v", err)
	}
}

func TestRunErrorClasses(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		doc       string
		loaderErr error
		opts      RunOptions
		check     func(t *testing.T, ee *EngineError)
	}{
		{
			name: "missing input",
			doc:  strings.Replace(scenarioA, "    default: dem.npy\n", "", 1),
			check: func(t *testing.T, ee *EngineError) {
				if ee.Class != ErrorClassInput || ee.Code != ErrCodeMissingInput || ee.Phase != PhaseInputsResolved {
					t.Errorf("got %s/%s/%s", ee.Class, ee.Code, ee.Phase)
				}
				if !errors.Is(ee, inputs.ErrMissingInput) {
					t.Error("ErrMissingInput not in chain")
				}
			},
		},
		{
			name: "conversion",
			doc:  scenarioA,
			opts: RunOptions{Collector: StaticInputs{"threshold": "high"}},
			check: func(t *testing.T, ee *EngineError) {
				if !IsInput(ee) || ee.Code != ErrCodeConversion {
					t.Errorf("got %s/%s", ee.Class, ee.Code)
				}
			},
		},
		{
			name: "cancelled prompt",
			doc:  scenarioA,
			opts: RunOptions{Collector: InputCollectorFunc(func(context.Context, *spec.Workflow) (map[string]string, error) {
				return nil, fmt.Errorf("dem_path: %w", inputs.ErrCancelled)
			})},
			check: func(t *testing.T, ee *EngineError) {
				if !IsInput(ee) || ee.Code != ErrCodeCancelled {
					t.Errorf("got %s/%s", ee.Class, ee.Code)
				}
			},
		},
		{
			name:      "loader",
			doc:       scenarioA,
			loaderErr: boom,
			check: func(t *testing.T, ee *EngineError) {
				if !IsLoader(ee) || ee.Source != "dem" || !errors.Is(ee, boom) {
					t.Errorf("got %+v", ee)
				}
			},
		},
		{
			name: "processor",
			doc:  strings.Replace(scenarioA, "alpha: 0.6", "alpha: 1.6", 1),
			check: func(t *testing.T, ee *EngineError) {
				if !IsProcessor(ee) || ee.MapObject != "relief" || ee.Processor != "multishade" || ee.Position != 1 {
					t.Errorf("got %+v", ee)
				}
			},
		},
		{
			name: "render",
			doc:  scenarioA,
			opts: RunOptions{Builder: FigureBuilderFunc(func(context.Context, *Figure) ([]string, error) {
				return nil, boom
			})},
			check: func(t *testing.T, ee *EngineError) {
				if !IsRender(ee) || ee.Phase != PhaseRendered || !errors.Is(ee, boom) {
					t.Errorf("got %+v", ee)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &countingLoader{fail: tt.loaderErr}
			e := New(WithLoaders(loader.registry(t)))
			res, err := e.Run(context.Background(), parse(t, tt.doc), tt.opts)
			if res != nil {
				t.Error("expected nil result on failure")
			}
			var ee *EngineError
			if !errors.As(err, &ee) {
				t.Fatalf("expected *EngineError, got %T: %v", err, err)
			}
			tt.check(t, ee)
		})
	}
}

func TestRunCancelledContext(t *testing.T) {
	loader := &countingLoader{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithLoaders(loader.registry(t))).Run(ctx, parse(t, scenarioA), RunOptions{})
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != ErrCodeCancelled || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if loader.calls.Load() != 0 {
		t.Error("loader ran after cancellation")
	}
}

func TestBothModesBuildIndependentSets(t *testing.T) {
	doc := `version: 1
data_sources:
  dem:
    loader: numeric
    params: {path: dem.npy}
maps:
  - name: relief
    data: dem
    processors:
      - name: tenfold
      - name: nan_above
        params: {threshold: 900}
  - name: overlay
    data: dem
run:
  mode: both
`
	loader := &countingLoader{}
	res, err := New(WithLoaders(loader.registry(t))).Run(context.Background(), parse(t, doc), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Errorf("loader called %d times for two maps in two contexts", loader.calls.Load())
	}
	if len(res.Figure.Sets) != 2 {
		t.Fatalf("sets = %d, want 2", len(res.Figure.Sets))
	}

	flat, _ := res.Figure.Set(spec.Context2D)
	surface, _ := res.Figure.Set(spec.Context3D)
	r2, _ := flat.Map("relief")
	r3, _ := surface.Map("relief")
	o2, _ := flat.Map("overlay")
	if r2.Grid == r3.Grid || r2.Grid == o2.Grid {
		t.Fatal("grids are shared between maps")
	}
	if r2.ZScale != 1 || r3.ZScale != 10 {
		t.Errorf("zscale 2d=%v 3d=%v", r2.ZScale, r3.ZScale)
	}
	if !math.IsNaN(r2.Grid.At(2, 2)) || math.IsNaN(o2.Grid.At(2, 2)) {
		t.Error("masking leaked between maps")
	}
	if got := res.Reports["2d/relief"].Skipped; len(got) != 1 || got[0] != "tenfold" {
		t.Errorf("2d skipped = %v", got)
	}
	if got := res.Reports["3d/relief"].Skipped; len(got) != 0 {
		t.Errorf("3d skipped = %v", got)
	}
}

func TestMapLightingReachesSurface(t *testing.T) {
	doc := `version: 1
data_sources:
  dem:
    loader: numeric
    params: {path: dem.npy}
maps:
  - name: relief
    data: dem
    ambient: 0.3
    light_elevation: 120
    smooth_shading: false
run:
  mode: fig3d
`
	loader := &countingLoader{}
	res, err := New(WithLoaders(loader.registry(t))).Run(context.Background(), parse(t, doc), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	surface, ok := res.Figure.Set(spec.Context3D)
	if !ok {
		t.Fatal("no 3d set")
	}
	m, _ := surface.Map("relief")
	if m.Lighting.Ambient != 0.3 || m.Lighting.Elevation != 90 {
		t.Errorf("lighting = %+v", m.Lighting)
	}
	if m.Lighting.Diffuse != 0.8 {
		t.Errorf("unset diffuse = %v, want default", m.Lighting.Diffuse)
	}
	if m.SmoothShading == nil || *m.SmoothShading {
		t.Errorf("smooth shading override lost: %v", m.SmoothShading)
	}
}

func TestNilGridIsLoaderError(t *testing.T) {
	r, err := loaders.NewRegistry(loaders.Descriptor{
		Name:      "numeric",
		PathParam: "path",
		Load: func(context.Context, inputs.Args) (*grid.Grid, error) {
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(WithLoaders(r)).Run(context.Background(), parse(t, scenarioA), RunOptions{})
	var ee *EngineError
	if !errors.As(err, &ee) || !IsLoader(ee) || ee.Source != "dem" {
		t.Fatalf("expected loader error for dem, got %v", err)
	}
	if !strings.Contains(ee.Error(), "no grid") {
		t.Errorf("error = %v", ee)
	}
}

func TestModeOverride(t *testing.T) {
	loader := &countingLoader{}
	e := New(WithLoaders(loader.registry(t)))

	res, err := e.Run(context.Background(), parse(t, scenarioA), RunOptions{Mode: spec.RunMode3D})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := res.Figure.Set(spec.Context3D); !ok || len(res.Figure.Sets) != 1 {
		t.Errorf("override ignored: %d sets", len(res.Figure.Sets))
	}

	_, err = e.Run(context.Background(), parse(t, scenarioA), RunOptions{Mode: "fig4d"})
	if !IsValidation(err) {
		t.Errorf("expected validation error for bad mode, got %v", err)
	}
}

func TestPolicyFindings(t *testing.T) {
	pe, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	doc := strings.Replace(scenarioA, "name: relief", "name: Relief", 1)
	loader := &countingLoader{}
	res, err := New(WithLoaders(loader.registry(t)), WithPolicy(pe)).Run(context.Background(), parse(t, doc), RunOptions{})
	if err != nil {
		t.Fatalf("warnings must not block: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Policy != "naming" {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestRunPublishesPhaseEvents(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "disabled"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var phases []string
	tel.Events.Subscribe(func(ev telemetry.Event) {
		phases = append(phases, ev.Phase)
	}, telemetry.FilterByType(telemetry.EventTypePhaseCompleted))

	loader := &countingLoader{}
	if _, err := New(WithLoaders(loader.registry(t)), WithTelemetry(tel)).Run(context.Background(), parse(t, scenarioA), RunOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"validated", "inputs_resolved", "data_loaded", "maps_built", "rendered"}
	if strings.Join(phases, ",") != strings.Join(want, ",") {
		t.Errorf("phases = %v, want %v", phases, want)
	}
}

func TestPhase(t *testing.T) {
	if PhaseParsed.Next() != PhaseValidated || PhaseRendered.Next() != PhaseRendered {
		t.Error("Next is wrong")
	}
	if !PhaseFailed.IsTerminal() || PhaseMapsBuilt.IsTerminal() {
		t.Error("IsTerminal is wrong")
	}
	data, err := json.Marshal(PhaseDataLoaded)
	if err != nil || string(data) != `"data_loaded"` {
		t.Errorf("Marshal = %s, %v", data, err)
	}
	var p Phase
	if err := json.Unmarshal([]byte(`"drift"`), &p); err == nil {
		t.Error("unknown phase accepted")
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		action  spec.Action
		wantErr bool
		check   func(a Action) bool
	}{
		{"title defaults loc", spec.Action{Type: "title", Args: map[string]any{"text": "Relief"}}, false,
			func(a Action) bool { return a.Text == "Relief" && a.Loc == "center" }},
		{"title needs text", spec.Action{Type: "title"}, true, nil},
		{"bad loc", spec.Action{Type: "xlabel", Args: map[string]any{"text": "x", "loc": "top"}}, true, nil},
		{"limits", spec.Action{Type: "ylim", Axis: 1, Args: map[string]any{"min": 0, "max": 2.5}}, false,
			func(a Action) bool { return a.Axis == 1 && a.Min == 0 && a.Max == 2.5 }},
		{"inverted limits", spec.Action{Type: "ylim", Args: map[string]any{"min": 1000, "max": 0}}, false,
			func(a Action) bool { return a.Min == 1000 && a.Max == 0 }},
		{"equal limits", spec.Action{Type: "xlim", Args: map[string]any{"min": 3, "max": 3}}, true, nil},
		{"ticks default", spec.Action{Type: "convert_ticks_to_km"}, false,
			func(a Action) bool { return a.Axes == "both" }},
		{"ticks bad", spec.Action{Type: "convert_ticks_to_km", Args: map[string]any{"axes": "z"}}, true, nil},
		{"crosses defaults", spec.Action{Type: "add_grid_crosses"}, false,
			func(a Action) bool {
				return a.Color == "black" && a.Size == 5 && a.LineWidth == 1 && a.Alpha == 0.47 && a.IncludeMinor
			}},
		{"crosses alpha", spec.Action{Type: "add_grid_crosses", Args: map[string]any{"alpha": 2}}, true, nil},
		{"unknown", spec.Action{Type: "legend"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAction(tt.action)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(a) {
				t.Errorf("unexpected action %+v", a)
			}
		})
	}
	if got := ActionTypes(); len(got) != 7 {
		t.Errorf("ActionTypes = %v", got)
	}
}
