package processors

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
)

// Shading defaults.
const (
	DefaultAzimuth    = 315.0
	DefaultAltitude   = 50.0
	DefaultShadeAlpha = 0.45
)

// DefaultAzimuths are the two light directions multishade averages.
var DefaultAzimuths = []float64{315, 135}

// Hillshade computes Horn's hillshade in [0, 1]. NaN cells are filled with
// the mean of the finite cells for the slope stencil and are NaN again in
// the result. A grid without finite cells yields an all-NaN result.
func Hillshade(g *grid.Grid, azimuth, altitude, exaggerate float64) *grid.Grid {
	out := g.Clone()
	stats := g.Stats()
	if stats.Valid == 0 {
		for i := range out.Data {
			out.Data[i] = math.NaN()
		}
		return out
	}

	z := make([]float64, g.Len())
	for i, v := range g.Data {
		if math.IsNaN(v) {
			v = stats.Mean
		}
		z[i] = v * exaggerate
	}
	at := func(r, c int) float64 {
		r = min(max(r, 0), g.Rows-1)
		c = min(max(c, 0), g.Cols-1)
		return z[r*g.Cols+c]
	}

	cell := g.CellSize()
	zenith := (90 - altitude) * math.Pi / 180
	azimuthMath := math.Mod(360-azimuth+90, 360) * math.Pi / 180
	cosZen, sinZen := math.Cos(zenith), math.Sin(zenith)

	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			i := r*g.Cols + c
			if math.IsNaN(g.Data[i]) {
				out.Data[i] = math.NaN()
				continue
			}
			a, b, cc := at(r-1, c-1), at(r-1, c), at(r-1, c+1)
			d, f := at(r, c-1), at(r, c+1)
			gg, h, ii := at(r+1, c-1), at(r+1, c), at(r+1, c+1)

			dzdx := ((cc + 2*f + ii) - (a + 2*d + gg)) / (8 * cell)
			dzdy := ((gg + 2*h + ii) - (a + 2*b + cc)) / (8 * cell)
			slope := math.Atan(math.Hypot(dzdx, dzdy))
			aspect := math.Atan2(dzdy, -dzdx)

			v := cosZen*math.Cos(slope) + sinZen*math.Sin(slope)*math.Cos(azimuthMath-aspect)
			out.Data[i] = math.Max(0, math.Min(1, v))
		}
	}
	return out
}

// multishade averages hillshades from several azimuths.
func multishade(g *grid.Grid, azimuths []float64, altitude, exaggerate float64) *grid.Grid {
	acc := make([]float64, g.Len())
	for _, az := range azimuths {
		floats.AddScaled(acc, 1/float64(len(azimuths)), Hillshade(g, az, altitude, exaggerate).Data)
	}
	out := g.Clone()
	copy(out.Data, acc)
	return out
}

type shadeOptions struct {
	azimuths   []float64
	altitude   float64
	exaggerate float64
	alpha      float64
	smooth     bool
	sigma      float64
	mode       string
}

func parseShadeArgs(args inputs.Args, multi, smooth bool) (shadeOptions, error) {
	opts := shadeOptions{smooth: smooth}
	var err error
	if multi {
		if opts.azimuths, err = args.Floats("azimuths", DefaultAzimuths); err != nil {
			return opts, err
		}
		if len(opts.azimuths) != 2 {
			return opts, fmt.Errorf("azimuths must contain exactly two angles, got %d", len(opts.azimuths))
		}
	} else {
		az, err := args.Float("azimuth", DefaultAzimuth)
		if err != nil {
			return opts, err
		}
		opts.azimuths = []float64{az}
	}
	if opts.altitude, err = args.Float("altitude", DefaultAltitude); err != nil {
		return opts, err
	}
	if opts.exaggerate, err = args.Float("exaggerate", 1); err != nil {
		return opts, err
	}
	if opts.alpha, err = args.Float("alpha", DefaultShadeAlpha); err != nil {
		return opts, err
	}
	if opts.alpha < 0 || opts.alpha > 1 {
		return opts, fmt.Errorf("alpha must be within [0, 1], got %v", opts.alpha)
	}
	if smooth {
		if opts.sigma, opts.mode, err = smoothingArgs(args); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func shadeProcessor(name, description string, multi, smooth bool) Descriptor {
	return Descriptor{
		Name:        name,
		Description: description,
		Kind:        KindDerive,
		Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
			opts, err := parseShadeArgs(args, multi, smooth)
			if err != nil {
				return err
			}
			src := m.Grid
			if opts.smooth {
				if src, err = nanGaussian(src, opts.sigma, opts.mode); err != nil {
					return err
				}
			}
			var shaded *grid.Grid
			if multi {
				shaded = multishade(src, opts.azimuths, opts.altitude, opts.exaggerate)
			} else {
				shaded = Hillshade(src, opts.azimuths[0], opts.altitude, opts.exaggerate)
			}
			m.AddLayer(mapobject.Layer{
				Processor: name,
				Hint:      "shade",
				Grid:      shaded,
				Display:   mapobject.Display{Cmap: "gray", Alpha: opts.alpha, Draped: true},
			})
			return nil
		},
	}
}

func shadeDescriptors() []Descriptor {
	return []Descriptor{
		shadeProcessor("hillshade", "Hillshade layer (azimuth, altitude, exaggerate, alpha)", false, false),
		shadeProcessor("multishade", "Averaged two-azimuth hillshade layer (azimuths, altitude, exaggerate, alpha)", true, false),
		shadeProcessor("smooth_hillshade", "Hillshade of a smoothed copy (sigma, mode, azimuth, altitude, exaggerate, alpha)", false, true),
		shadeProcessor("smooth_multishade", "Multishade of a smoothed copy (sigma, mode, azimuths, altitude, exaggerate, alpha)", true, true),
	}
}
