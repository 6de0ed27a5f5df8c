package mapobject

import (
	"fmt"
	"math"
	"sort"

	"github.com/topoviz/topoviz/pkg/spec"
)

// Lighting is the 3D surface lighting state carried by a map.
type Lighting struct {
	Ambient       float64 `json:"ambient" yaml:"ambient"`
	Diffuse       float64 `json:"diffuse" yaml:"diffuse"`
	Specular      float64 `json:"specular" yaml:"specular"`
	SpecularPower float64 `json:"specular_power" yaml:"specular_power"`
	Azimuth       float64 `json:"azimuth" yaml:"azimuth"`
	Elevation     float64 `json:"elevation" yaml:"elevation"`
	Intensity     float64 `json:"intensity" yaml:"intensity"`
}

// Clamp bounds.
const (
	MaxIntensity = 2.0
	MaxElevation = 90.0
)

// DefaultLighting returns the lighting every new map starts with.
func DefaultLighting() Lighting {
	return Lighting{
		Ambient:       0.15,
		Diffuse:       0.8,
		Specular:      0.1,
		SpecularPower: 10,
		Azimuth:       315,
		Elevation:     45,
		Intensity:     1,
	}
}

// LightingFromSpec starts from DefaultLighting and applies the lighting
// fields set on ms.
func LightingFromSpec(ms spec.MapSpec) Lighting {
	l := DefaultLighting()
	for _, f := range []struct {
		dst *float64
		src *float64
	}{
		{&l.Ambient, ms.Ambient},
		{&l.Diffuse, ms.Diffuse},
		{&l.Specular, ms.Specular},
		{&l.SpecularPower, ms.SpecularPower},
		{&l.Azimuth, ms.LightAzimuth},
		{&l.Elevation, ms.LightElevation},
		{&l.Intensity, ms.LightIntensity},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return l.Clamped()
}

// Clamped returns l with every field inside its valid range. Azimuth is
// wrapped into [0, 360).
func (l Lighting) Clamped() Lighting {
	l.Ambient = clamp(l.Ambient, 0, 1)
	l.Diffuse = clamp(l.Diffuse, 0, 1)
	l.Specular = clamp(l.Specular, 0, 1)
	l.SpecularPower = math.Max(0, l.SpecularPower)
	l.Intensity = clamp(l.Intensity, 0, MaxIntensity)
	l.Elevation = clamp(l.Elevation, 0, MaxElevation)
	l.Azimuth = math.Mod(l.Azimuth, 360)
	if l.Azimuth < 0 {
		l.Azimuth += 360
	}
	return l
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

type preset func(l *Lighting)

var presets = map[string]preset{
	"matte": func(l *Lighting) {
		l.Ambient, l.Diffuse, l.Specular, l.SpecularPower = 0.3, 0.7, 0, 1
	},
	"glossy": func(l *Lighting) {
		l.Ambient, l.Diffuse, l.Specular, l.SpecularPower = 0.15, 0.75, 0.6, 40
	},
	"flat": func(l *Lighting) {
		l.Ambient, l.Diffuse, l.Specular, l.SpecularPower = 0.8, 0.2, 0, 1
	},
	"dramatic": func(l *Lighting) {
		l.Ambient, l.Diffuse, l.Specular, l.SpecularPower = 0.05, 0.9, 0.3, 20
		l.Elevation, l.Intensity = 20, 1.3
	},
	"heightmap": func(l *Lighting) {
		l.Ambient, l.Diffuse, l.Specular, l.SpecularPower = 1, 0, 0, 1
	},
}

// PresetNames lists the lighting presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset assigns the fields of the named preset. Fields a preset does
// not mention keep their value, so applying a preset twice is the same as
// applying it once.
func (l *Lighting) ApplyPreset(name string) error {
	p, ok := presets[name]
	if !ok {
		return fmt.Errorf("unknown lighting preset %q", name)
	}
	p(l)
	*l = l.Clamped()
	return nil
}

// ScaleIntensity multiplies intensity by factor.
func (l *Lighting) ScaleIntensity(factor float64) {
	l.Intensity *= factor
	*l = l.Clamped()
}

// ScaleBrightness multiplies ambient and diffuse by factor.
func (l *Lighting) ScaleBrightness(factor float64) {
	l.Ambient *= factor
	l.Diffuse *= factor
	*l = l.Clamped()
}

// Rotate turns the light azimuth by deg degrees clockwise.
func (l *Lighting) Rotate(deg float64) {
	l.Azimuth += deg
	*l = l.Clamped()
}

// Raise lifts the light elevation by deg degrees.
func (l *Lighting) Raise(deg float64) {
	l.Elevation += deg
	*l = l.Clamped()
}

// Set assigns a single field by its document name.
func (l *Lighting) Set(field string, v float64) error {
	switch field {
	case "ambient":
		l.Ambient = v
	case "diffuse":
		l.Diffuse = v
	case "specular":
		l.Specular = v
	case "specular_power":
		l.SpecularPower = v
	case "azimuth", "light_azimuth":
		l.Azimuth = v
	case "elevation", "light_elevation":
		l.Elevation = v
	case "intensity", "light_intensity":
		l.Intensity = v
	default:
		return fmt.Errorf("unknown lighting field %q", field)
	}
	*l = l.Clamped()
	return nil
}
