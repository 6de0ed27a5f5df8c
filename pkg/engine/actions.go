package engine

import (
	"fmt"
	"sort"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/spec"
)

// Action is a fig2d action with its arguments decoded and defaulted.
type Action struct {
	Type string
	Axis int

	// title, xlabel, ylabel
	Text string
	Loc  string

	// xlim, ylim
	Min float64
	Max float64

	// convert_ticks_to_km: x, y or both
	Axes string

	// add_grid_crosses
	Color        string
	Size         float64
	LineWidth    float64
	Alpha        float64
	IncludeMinor bool
}

type actionParser func(a *Action, args inputs.Args) error

var actionParsers = map[string]actionParser{
	"title":               parseLabel,
	"xlabel":              parseLabel,
	"ylabel":              parseLabel,
	"xlim":                parseLimits,
	"ylim":                parseLimits,
	"convert_ticks_to_km": parseTicks,
	"add_grid_crosses":    parseCrosses,
}

// ActionTypes returns the known fig2d action types in sorted order.
func ActionTypes() []string {
	names := make([]string, 0, len(actionParsers))
	for name := range actionParsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseAction checks a fig2d action and fills in defaults. The axis index
// is not checked against a figure here.
func ParseAction(sa spec.Action) (Action, error) {
	parse, ok := actionParsers[sa.Type]
	if !ok {
		return Action{}, fmt.Errorf("unknown action type %q", sa.Type)
	}
	if sa.Axis < 0 {
		return Action{}, fmt.Errorf("%s: negative axis %d", sa.Type, sa.Axis)
	}
	a := Action{Type: sa.Type, Axis: sa.Axis}
	if err := parse(&a, inputs.Args(sa.Args)); err != nil {
		return Action{}, fmt.Errorf("%s: %w", sa.Type, err)
	}
	return a, nil
}

func parseLabel(a *Action, args inputs.Args) error {
	var err error
	if a.Text, err = args.RequireString("text"); err != nil {
		return err
	}
	if a.Loc, err = args.String("loc", "center"); err != nil {
		return err
	}
	switch a.Loc {
	case "left", "center", "right":
		return nil
	}
	return fmt.Errorf("loc must be left, center or right, got %q", a.Loc)
}

func parseLimits(a *Action, args inputs.Args) error {
	var err error
	if a.Min, err = args.RequireFloat("min"); err != nil {
		return err
	}
	if a.Max, err = args.RequireFloat("max"); err != nil {
		return err
	}
	// min above max inverts the axis.
	if a.Min == a.Max {
		return fmt.Errorf("min and max must differ, both are %v", a.Min)
	}
	return nil
}

func parseTicks(a *Action, args inputs.Args) error {
	var err error
	if a.Axes, err = args.String("axes", "both"); err != nil {
		return err
	}
	switch a.Axes {
	case "x", "y", "both":
		return nil
	}
	return fmt.Errorf("axes must be x, y or both, got %q", a.Axes)
}

func parseCrosses(a *Action, args inputs.Args) error {
	var err error
	if a.Color, err = args.String("color", "black"); err != nil {
		return err
	}
	if a.Size, err = args.Float("size", 5); err != nil {
		return err
	}
	if a.LineWidth, err = args.Float("linewidth", 1); err != nil {
		return err
	}
	if a.Alpha, err = args.Float("alpha", 0.47); err != nil {
		return err
	}
	if a.IncludeMinor, err = args.Bool("include_minor", true); err != nil {
		return err
	}
	if a.Size <= 0 || a.LineWidth <= 0 {
		return fmt.Errorf("size and linewidth must be positive")
	}
	if a.Alpha < 0 || a.Alpha > 1 {
		return fmt.Errorf("alpha %v outside [0, 1]", a.Alpha)
	}
	return nil
}
