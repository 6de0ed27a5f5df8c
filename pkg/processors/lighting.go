package processors

import (
	"context"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
)

// Relative lighting steps.
const (
	IntensityStep = 0.10
	BrightStep    = 0.10
	RotateStep    = 15.0
	RaiseStep     = 10.0
)

var lightingFields = []string{"ambient", "diffuse", "specular", "specular_power", "azimuth", "elevation", "intensity"}

func lightingProcessor(name, description string, fn func(l *mapobject.Lighting, args inputs.Args) error) Descriptor {
	return Descriptor{
		Name:          name,
		Description:   description,
		Applicability: Only3D,
		Kind:          KindState,
		Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
			return fn(&m.Lighting, args)
		},
	}
}

func presetProcessor(preset string) Descriptor {
	return lightingProcessor(preset+"_lighting", "Apply the "+preset+" lighting preset",
		func(l *mapobject.Lighting, _ inputs.Args) error {
			return l.ApplyPreset(preset)
		})
}

// relative returns a processor whose step can be overridden by a "step"
// parameter.
func relative(name, description string, def float64, fn func(l *mapobject.Lighting, step float64)) Descriptor {
	return lightingProcessor(name, description, func(l *mapobject.Lighting, args inputs.Args) error {
		step, err := args.Float("step", def)
		if err != nil {
			return err
		}
		fn(l, step)
		return nil
	})
}

func lightingDescriptors() []Descriptor {
	descs := make([]Descriptor, 0, 16)
	for _, p := range mapobject.PresetNames() {
		descs = append(descs, presetProcessor(p))
	}
	descs = append(descs,
		lightingProcessor("lighting_control", "Set lighting fields absolutely",
			func(l *mapobject.Lighting, args inputs.Args) error {
				for _, field := range lightingFields {
					if !args.Has(field) {
						continue
					}
					v, err := args.Float(field, 0)
					if err != nil {
						return err
					}
					if err := l.Set(field, v); err != nil {
						return err
					}
				}
				return nil
			}),
		relative("lighting_intensity_up", "Raise light intensity by 10%", IntensityStep,
			func(l *mapobject.Lighting, s float64) { l.ScaleIntensity(1 + s) }),
		relative("lighting_intensity_down", "Lower light intensity by 10%", IntensityStep,
			func(l *mapobject.Lighting, s float64) { l.ScaleIntensity(1 - s) }),
		relative("lighting_brighten", "Raise ambient and diffuse by 10%", BrightStep,
			func(l *mapobject.Lighting, s float64) { l.ScaleBrightness(1 + s) }),
		relative("lighting_darken", "Lower ambient and diffuse by 10%", BrightStep,
			func(l *mapobject.Lighting, s float64) { l.ScaleBrightness(1 - s) }),
		relative("light_rotate_left", "Rotate light azimuth counter-clockwise by 15 degrees", RotateStep,
			func(l *mapobject.Lighting, s float64) { l.Rotate(-s) }),
		relative("light_rotate_right", "Rotate light azimuth clockwise by 15 degrees", RotateStep,
			func(l *mapobject.Lighting, s float64) { l.Rotate(s) }),
		relative("light_raise", "Raise light elevation by 10 degrees", RaiseStep,
			func(l *mapobject.Lighting, s float64) { l.Raise(s) }),
		relative("light_lower", "Lower light elevation by 10 degrees", RaiseStep,
			func(l *mapobject.Lighting, s float64) { l.Raise(-s) }),
	)
	return descs
}
