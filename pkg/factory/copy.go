package factory

import (
	"github.com/topoviz/topoviz/pkg/spec"
)

// Deep copies keep a captured workflow independent of the figure it came
// from.

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyParams(ps spec.Params) spec.Params {
	return spec.ParamsOf(ps.Raw())
}

// copyValue copies the maps and slices of a decoded document value.
func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

func copyInputs(in spec.Inputs) spec.Inputs {
	if in == nil {
		return nil
	}
	out := make(spec.Inputs, len(in))
	for i, decl := range in {
		decl.Default = copyValue(decl.Default)
		decl.Required = copyBool(decl.Required)
		out[i] = decl
	}
	return out
}

func copyDataSources(dss map[string]spec.DataSource) map[string]spec.DataSource {
	if dss == nil {
		return nil
	}
	out := make(map[string]spec.DataSource, len(dss))
	for name, ds := range dss {
		ds.Params = copyParams(ds.Params)
		out[name] = ds
	}
	return out
}

func copyProcessors(ps []spec.ProcessorSpec) []spec.ProcessorSpec {
	if ps == nil {
		return nil
	}
	out := make([]spec.ProcessorSpec, len(ps))
	for i, p := range ps {
		out[i] = spec.ProcessorSpec{Name: p.Name, Params: copyParams(p.Params)}
	}
	return out
}

func copyMapSpec(ms spec.MapSpec) spec.MapSpec {
	ms.Alpha = copyFloat(ms.Alpha)
	ms.Vmin = copyFloat(ms.Vmin)
	ms.Vmax = copyFloat(ms.Vmax)
	ms.Draped = copyBool(ms.Draped)
	for _, f := range []**float64{&ms.Ambient, &ms.Diffuse, &ms.Specular, &ms.SpecularPower, &ms.LightAzimuth, &ms.LightElevation, &ms.LightIntensity} {
		*f = copyFloat(*f)
	}
	ms.SmoothShading = copyBool(ms.SmoothShading)
	ms.EyeDomeLighting = copyBool(ms.EyeDomeLighting)
	ms.Processors = copyProcessors(ms.Processors)
	return ms
}

func copyFig2D(f *spec.Fig2D) *spec.Fig2D {
	if f == nil {
		return nil
	}
	c := *f
	if f.Figsize != nil {
		c.Figsize = append([]float64(nil), f.Figsize...)
	}
	c.Show = copyBool(f.Show)
	if f.Actions != nil {
		c.Actions = make([]spec.Action, len(f.Actions))
		for i, a := range f.Actions {
			if a.Args != nil {
				a.Args = copyValue(a.Args).(map[string]any)
			}
			c.Actions[i] = a
		}
	}
	return &c
}

func copyFig3D(f *spec.Fig3D) *spec.Fig3D {
	if f == nil {
		return nil
	}
	c := *f
	c.SmoothShading = copyBool(f.SmoothShading)
	c.ShowScalarBar = copyBool(f.ShowScalarBar)
	c.ZExaggeration = copyFloat(f.ZExaggeration)
	c.Show = copyBool(f.Show)
	c.CameraPosition = copyValue(f.CameraPosition)
	return &c
}
