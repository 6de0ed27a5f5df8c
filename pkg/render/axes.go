package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/topoviz/topoviz/pkg/engine"
)

// ErrAxisRange is returned when a fig2d action targets an axis the figure
// does not have.
var ErrAxisRange = errors.New("axis index out of range")

// AxisKind distinguishes the plot axis from colorbar axes.
type AxisKind string

const (
	AxisPlot     AxisKind = "plot"
	AxisColorbar AxisKind = "colorbar"
)

// Crosses decorates tick junctions with "+" markers.
type Crosses struct {
	Color        string  `json:"color" yaml:"color"`
	Size         float64 `json:"size" yaml:"size"`
	LineWidth    float64 `json:"linewidth" yaml:"linewidth"`
	Alpha        float64 `json:"alpha" yaml:"alpha"`
	IncludeMinor bool    `json:"include_minor" yaml:"include_minor"`
}

// Axis is one axis of the flat figure. Axis 0 holds every map; each map
// with a colorbar label adds a colorbar axis after it, in map order.
type Axis struct {
	Index int      `json:"index" yaml:"index"`
	Kind  AxisKind `json:"kind" yaml:"kind"`

	// Map is the map a colorbar belongs to.
	Map string `json:"map,omitempty" yaml:"map,omitempty"`

	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	TitleLoc string `json:"title_loc,omitempty" yaml:"title_loc,omitempty"`
	XLabel   string `json:"xlabel,omitempty" yaml:"xlabel,omitempty"`
	YLabel   string `json:"ylabel,omitempty" yaml:"ylabel,omitempty"`

	XLim *[2]float64 `json:"xlim,omitempty" yaml:"xlim,omitempty"`
	YLim *[2]float64 `json:"ylim,omitempty" yaml:"ylim,omitempty"`

	// KilometerTicks is "", "x", "y" or "both".
	KilometerTicks string `json:"km_ticks,omitempty" yaml:"km_ticks,omitempty"`

	Crosses *Crosses `json:"grid_crosses,omitempty" yaml:"grid_crosses,omitempty"`
}

func (a *Axis) kmX() bool { return a.KilometerTicks == "x" || a.KilometerTicks == "both" }
func (a *Axis) kmY() bool { return a.KilometerTicks == "y" || a.KilometerTicks == "both" }

// layoutAxes builds the axes of a flat layer set.
func layoutAxes(set engine.LayerSet) []Axis {
	axes := []Axis{{Index: 0, Kind: AxisPlot}}
	for _, m := range set.Maps {
		if m.Display.Cbar == "" {
			continue
		}
		axes = append(axes, Axis{
			Index:  len(axes),
			Kind:   AxisColorbar,
			Map:    m.Name,
			YLabel: m.Display.Cbar,
		})
	}
	return axes
}

// applyActions runs actions against axes in order.
func applyActions(axes []Axis, actions []engine.Action) error {
	for _, a := range actions {
		if a.Axis < 0 || a.Axis >= len(axes) {
			return fmt.Errorf("%w: %s targets axis %d, figure has %d", ErrAxisRange, a.Type, a.Axis, len(axes))
		}
		ax := &axes[a.Axis]
		switch a.Type {
		case "title":
			ax.Title, ax.TitleLoc = a.Text, a.Loc
		case "xlabel":
			ax.XLabel = a.Text
		case "ylabel":
			ax.YLabel = a.Text
		case "xlim":
			ax.XLim = &[2]float64{a.Min, a.Max}
		case "ylim":
			ax.YLim = &[2]float64{a.Min, a.Max}
		case "convert_ticks_to_km":
			ax.KilometerTicks = mergeAxes(ax.KilometerTicks, a.Axes)
			if a.Axes != "y" {
				ax.XLabel = kilometerLabel(ax.XLabel)
			}
			if a.Axes != "x" {
				ax.YLabel = kilometerLabel(ax.YLabel)
			}
		case "add_grid_crosses":
			ax.Crosses = &Crosses{
				Color:        a.Color,
				Size:         a.Size,
				LineWidth:    a.LineWidth,
				Alpha:        a.Alpha,
				IncludeMinor: a.IncludeMinor,
			}
		default:
			return fmt.Errorf("unknown action type %q", a.Type)
		}
	}
	return nil
}

func mergeAxes(current, add string) string {
	if current == "" || current == add {
		return add
	}
	return "both"
}

// kilometerLabel rewrites a metre unit in a label, e.g. "Easting (m)".
func kilometerLabel(label string) string {
	for _, unit := range []string{"(m)", "[m]"} {
		if strings.Contains(label, unit) {
			return strings.Replace(label, unit, unit[:1]+"km"+unit[2:], 1)
		}
	}
	return label
}
