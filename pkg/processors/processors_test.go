package processors

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/spec"
)

func newMap(t *testing.T, rows [][]float64, target spec.Context, steps ...spec.ProcessorSpec) *mapobject.MapObject {
	t.Helper()
	g, err := grid.FromRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	m := mapobject.New("relief", g, mapobject.Display{Cmap: "terrain", Alpha: 1})
	m.Context = target
	m.Processors = steps
	return m
}

func step(name string, params map[string]any) spec.ProcessorSpec {
	return spec.ProcessorSpec{Name: name, Params: spec.ParamsOf(params)}
}

func TestBuiltinNames(t *testing.T) {
	want := []string{
		"nan_equal", "nan_below", "nan_above", "nan_range", "gaussian_smooth",
		"hillshade", "multishade", "smooth_hillshade", "smooth_multishade",
		"scale", "double_scale", "halve_scale", "tenfold", "tenthfold",
		"matte_lighting", "glossy_lighting", "flat_lighting", "dramatic_lighting", "heightmap_lighting",
		"lighting_control", "lighting_intensity_up", "lighting_intensity_down",
		"lighting_brighten", "lighting_darken", "light_rotate_left", "light_rotate_right",
		"light_raise", "light_lower", "expr",
	}
	r := Builtin()
	for _, name := range want {
		if !r.Has(name) {
			t.Errorf("builtin registry missing %s", name)
		}
	}
	if _, err := r.Get("sharpen"); !errors.Is(err, ErrUnknownProcessor) {
		t.Errorf("expected ErrUnknownProcessor, got %v", err)
	}
	if _, err := NewRegistry(Descriptor{Name: "x", Apply: maskDescriptors()[0].Apply}, Descriptor{Name: "x", Apply: maskDescriptors()[0].Apply}); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestMasking(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		step   spec.ProcessorSpec
		want   [][]float64
		errMsg bool
	}{
		{name: "below is inclusive", step: step("nan_below", map[string]any{"threshold": 2}), want: [][]float64{{nan, nan, 3}, {nan, 5, 6}}},
		{name: "below default zero", step: step("nan_below", nil), want: [][]float64{{1, 2, 3}, {nan, 5, 6}}},
		{name: "above is inclusive", step: step("nan_above", map[string]any{"threshold": 5}), want: [][]float64{{1, 2, 3}, {nan, nan, nan}}},
		{name: "equal", step: step("nan_equal", map[string]any{"target": 3.0}), want: [][]float64{{1, 2, nan}, {nan, 5, 6}}},
		{name: "range", step: step("nan_range", map[string]any{"min": 2, "max": 5}), want: [][]float64{{1, nan, nan}, {nan, nan, 6}}},
		{name: "equal needs target", step: step("nan_equal", nil), errMsg: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMap(t, [][]float64{{1, 2, 3}, {nan, 5, 6}}, spec.Context2D, tt.step)
			_, err := NewPipeline(Builtin(), nil).Run(context.Background(), m, inputs.NewValues(nil))
			if tt.errMsg {
				var se *StepError
				if !errors.As(err, &se) || se.Processor != tt.step.Name || se.Position != 0 {
					t.Fatalf("expected StepError for %s, got %v", tt.step.Name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			want, _ := grid.FromRows(tt.want)
			if !grid.Equal(m.Grid, want) {
				t.Errorf("got %v, want %v", m.Grid.Rows2D(), tt.want)
			}
		})
	}
}

func TestGaussianSmoothPreservesNaN(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rows := rapid.IntRange(1, 6).Draw(rt, "rows")
		cols := rapid.IntRange(1, 6).Draw(rt, "cols")
		data := make([]float64, rows*cols)
		for i := range data {
			data[i] = rapid.Float64Range(-1000, 1000).Draw(rt, "cell")
		}
		nanAt := rapid.IntRange(0, rows*cols-1).Draw(rt, "nanAt")
		data[nanAt] = math.NaN()
		g, _ := grid.FromData(rows, cols, data)

		sigma := rapid.Float64Range(0, 3).Draw(rt, "sigma")
		mode := rapid.SampledFrom([]string{ModeNearest, ModeReflect, ModeMirror, ModeWrap, ModeConstant}).Draw(rt, "mode")

		out, err := nanGaussian(g, sigma, mode)
		if err != nil {
			rt.Fatal(err)
		}
		if !math.IsNaN(out.Data[nanAt]) {
			rt.Fatalf("NaN cell %d became %v", nanAt, out.Data[nanAt])
		}
		if !math.IsNaN(g.Data[nanAt]) {
			rt.Fatal("input grid was modified")
		}
	})
}

func TestGaussianSmoothFlatSurface(t *testing.T) {
	m := newMap(t, [][]float64{{4, 4, 4}, {4, math.NaN(), 4}, {4, 4, 4}}, spec.Context2D,
		step("gaussian_smooth", map[string]any{"sigma": 1.5, "mode": "reflect"}))
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), m, inputs.NewValues(nil)); err != nil {
		t.Fatal(err)
	}
	for i, v := range m.Grid.Data {
		if i == 4 {
			if !math.IsNaN(v) {
				t.Errorf("center should stay NaN, got %v", v)
			}
			continue
		}
		if math.Abs(v-4) > 1e-9 {
			t.Errorf("cell %d = %v, want 4", i, v)
		}
	}

	bad := newMap(t, [][]float64{{1}}, spec.Context2D, step("gaussian_smooth", map[string]any{"mode": "bogus"}))
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), bad, inputs.NewValues(nil)); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestHillshadeFlatAndNaN(t *testing.T) {
	g, _ := grid.FromRows([][]float64{{10, 10, 10}, {10, 10, math.NaN()}, {10, 10, 10}})
	hs := Hillshade(g, DefaultAzimuth, DefaultAltitude, 1)
	want := math.Sin(DefaultAltitude * math.Pi / 180)
	for i, v := range hs.Data {
		if i == 5 {
			if !math.IsNaN(v) {
				t.Errorf("NaN did not propagate: %v", v)
			}
			continue
		}
		if math.Abs(v-want) > 1e-9 {
			t.Errorf("flat cell %d = %v, want %v", i, v, want)
		}
	}

	allNaN, _ := grid.FromRows([][]float64{{math.NaN(), math.NaN()}})
	for _, v := range Hillshade(allNaN, 315, 45, 1).Data {
		if !math.IsNaN(v) {
			t.Errorf("all-NaN input produced %v", v)
		}
	}
}

func TestHillshadeFacesLight(t *testing.T) {
	// Surface rising to the east: a light from the west (270) hits the
	// slope head on, a light from the east (90) grazes its back.
	g, _ := grid.FromRows([][]float64{{0, 1, 2}, {0, 1, 2}, {0, 1, 2}})
	lit := Hillshade(g, 270, 30, 1).At(1, 1)
	dark := Hillshade(g, 90, 30, 1).At(1, 1)
	if lit <= dark {
		t.Errorf("slope facing the light (%v) should be brighter than the other side (%v)", lit, dark)
	}
}

func TestShadingAppendsLayersInOrder(t *testing.T) {
	m := newMap(t, [][]float64{{1, 2}, {3, 4}}, spec.Context2D,
		step("hillshade", nil),
		step("multishade", map[string]any{"alpha": 0.6}),
		step("smooth_hillshade", map[string]any{"sigma": 1}),
	)
	base := m.Grid.Clone()
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), m, inputs.NewValues(nil)); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, l := range m.Derived {
		got = append(got, l.Processor)
	}
	if !reflect.DeepEqual(got, []string{"hillshade", "multishade", "smooth_hillshade"}) {
		t.Errorf("derived order = %v", got)
	}
	if m.Derived[0].Display.Alpha != DefaultShadeAlpha || m.Derived[1].Display.Alpha != 0.6 {
		t.Errorf("alphas = %v, %v", m.Derived[0].Display.Alpha, m.Derived[1].Display.Alpha)
	}
	if !grid.Equal(m.Grid, base) {
		t.Error("shading must not replace the base grid")
	}

	bad := newMap(t, [][]float64{{1}}, spec.Context2D, step("multishade", map[string]any{"azimuths": []any{1, 2, 3}}))
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), bad, inputs.NewValues(nil)); err == nil {
		t.Error("multishade with three azimuths should fail")
	}
}

func TestApplicabilitySkip(t *testing.T) {
	rows := [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	with := newMap(t, rows, spec.Context2D,
		step("nan_below", map[string]any{"threshold": 2}),
		step("tenfold", nil),
		step("dramatic_lighting", nil),
		step("hillshade", nil),
	)
	without := newMap(t, rows, spec.Context2D,
		step("nan_below", map[string]any{"threshold": 2}),
		step("hillshade", nil),
	)

	p := NewPipeline(Builtin(), nil)
	report, err := p.Run(context.Background(), with, inputs.NewValues(nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), without, inputs.NewValues(nil)); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(report.Skipped, []string{"tenfold", "dramatic_lighting"}) {
		t.Errorf("skipped = %v", report.Skipped)
	}
	if !grid.Equal(with.Grid, without.Grid) || len(with.Derived) != len(without.Derived) {
		t.Fatal("3D-only steps changed the 2D result")
	}
	for i := range with.Derived {
		if !grid.Equal(with.Derived[i].Grid, without.Derived[i].Grid) {
			t.Errorf("derived layer %d differs", i)
		}
	}
	if with.ZScale != 1 || with.Lighting != mapobject.DefaultLighting() {
		t.Error("3D state changed under 2D context")
	}
}

func TestThreeDimensionalState(t *testing.T) {
	m := newMap(t, [][]float64{{1}}, spec.Context3D,
		step("double_scale", nil),
		step("scale", map[string]any{"factor": 3}),
		step("tenthfold", nil),
		step("glossy_lighting", nil),
		step("lighting_intensity_up", nil),
		step("lighting_intensity_up", nil),
		step("light_rotate_left", nil),
		step("lighting_control", map[string]any{"specular": 0.25}),
	)
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), m, inputs.NewValues(nil)); err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.ZScale-0.6) > 1e-12 {
		t.Errorf("ZScale = %v, want 0.6", m.ZScale)
	}
	if math.Abs(m.Lighting.Intensity-1.21) > 1e-12 {
		t.Errorf("intensity = %v, want 1.21", m.Lighting.Intensity)
	}
	if m.Lighting.Azimuth != 300 {
		t.Errorf("azimuth = %v, want 300", m.Lighting.Azimuth)
	}
	if m.Lighting.Specular != 0.25 || m.Lighting.SpecularPower != 40 {
		t.Errorf("lighting = %+v", m.Lighting)
	}
}

func TestReferencesResolvedPerStep(t *testing.T) {
	m := newMap(t, [][]float64{{100, 600}, {499, 500}}, spec.Context2D,
		spec.ProcessorSpec{Name: "nan_below", Params: spec.Params{"threshold": spec.Reference("threshold")}})
	vals := inputs.NewValues(map[string]any{"threshold": "500"})
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), m, vals); err != nil {
		t.Fatal(err)
	}
	s := m.Grid.Stats()
	if s.Valid != 1 || m.Grid.At(0, 1) != 600 {
		t.Errorf("grid = %v", m.Grid.Rows2D())
	}
}

func TestExpr(t *testing.T) {
	m := newMap(t, [][]float64{{1, 2}, {math.NaN(), -4}}, spec.Context2D,
		step("expr", map[string]any{"expr": "None if z < 0 else z * k + row", "vars": map[string]any{"k": 10}}))
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), m, inputs.NewValues(nil)); err != nil {
		t.Fatal(err)
	}
	want, _ := grid.FromRows([][]float64{{10, 20}, {math.NaN(), math.NaN()}})
	if !grid.Equal(m.Grid, want) {
		t.Errorf("got %v", m.Grid.Rows2D())
	}

	bad := newMap(t, [][]float64{{1}}, spec.Context2D, step("expr", map[string]any{"expr": "'text'"}))
	if _, err := NewPipeline(Builtin(), nil).Run(context.Background(), bad, inputs.NewValues(nil)); err == nil {
		t.Error("non-numeric expr result should fail")
	}
}

type countingObserver struct{ applied, skipped int }

func (c *countingObserver) ProcessorApplied(string, string, time.Duration) { c.applied++ }
func (c *countingObserver) ProcessorSkipped(string, string)                { c.skipped++ }

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	m := newMap(t, [][]float64{{1}}, spec.Context2D, step("hillshade", nil), step("tenfold", nil))
	if _, err := NewPipeline(Builtin(), obs).Run(context.Background(), m, inputs.NewValues(nil)); err != nil {
		t.Fatal(err)
	}
	if obs.applied != 1 || obs.skipped != 1 {
		t.Errorf("observer saw %d applied, %d skipped", obs.applied, obs.skipped)
	}
}

func TestPipelineUsesInjectedLoggerAndTracer(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel).With().Str("run_id", "run-7").Logger()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	m := newMap(t, [][]float64{{1, 2}, {3, 4}}, spec.Context2D, step("hillshade", nil), step("tenfold", nil))
	p := NewPipeline(Builtin(), nil, WithLogger(logger), WithTracer(provider.Tracer("test")))
	if _, err := p.Run(context.Background(), m, inputs.NewValues(nil)); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"Applied processor", "Skipping processor outside its context", `"run_id":"run-7"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q:\n%s", want, out)
		}
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "processor.hillshade" {
		t.Errorf("spans = %v", spans)
	}
}
