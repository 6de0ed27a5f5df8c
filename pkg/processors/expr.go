package processors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
)

// cellExpr is a compiled per-cell Starlark expression over z, row and col.
type cellExpr struct {
	thread *starlark.Thread
	fn     starlark.Callable
}

func compileCellExpr(expr string, vars map[string]any) (*cellExpr, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || strings.ContainsAny(expr, "\n\r") {
		return nil, fmt.Errorf("expr must be a single-line expression")
	}

	thread := &starlark.Thread{
		Name:  "topoviz-expr",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	predeclared := starlark.StringDict{"math": starlarkmath.Module}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, err := toStarlarkValue(vars[k])
		if err != nil {
			return nil, fmt.Errorf("var %s: %w", k, err)
		}
		predeclared[k] = v
	}

	script := "def cell(z, row, col):\n    return " + expr + "\n"
	globals, err := starlark.ExecFile(thread, "expr.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expr: %w", err)
	}
	fn, ok := globals["cell"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("failed to compile expr")
	}
	return &cellExpr{thread: thread, fn: fn}, nil
}

func (ce *cellExpr) eval(z float64, row, col int) (float64, error) {
	res, err := starlark.Call(ce.thread, ce.fn, starlark.Tuple{starlark.Float(z), starlark.MakeInt(row), starlark.MakeInt(col)}, nil)
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case starlark.Float:
		return float64(v), nil
	case starlark.Int:
		f, _ := starlark.AsFloat(v)
		return f, nil
	case starlark.Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case starlark.NoneType:
		return math.NaN(), nil
	default:
		return 0, fmt.Errorf("expr returned %s, want a number", res.Type())
	}
}

func toStarlarkValue(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		items := make([]starlark.Value, len(val))
		for i, x := range val {
			sv, err := toStarlarkValue(x)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func exprDescriptor() Descriptor {
	return Descriptor{
		Name:        "expr",
		Description: "Rewrite each cell with a Starlark expression over z, row and col; returning None masks the cell",
		Kind:        KindMutate,
		Apply: func(ctx context.Context, m *mapobject.MapObject, args inputs.Args) error {
			src, err := args.RequireString("expr")
			if err != nil {
				return err
			}
			var vars map[string]any
			if raw, ok := args["vars"]; ok && raw != nil {
				if vars, ok = raw.(map[string]any); !ok {
					return fmt.Errorf("param vars: expected mapping, got %T", raw)
				}
			}
			ce, err := compileCellExpr(src, vars)
			if err != nil {
				return err
			}

			stop := context.AfterFunc(ctx, func() { ce.thread.Cancel("context cancelled") })
			defer stop()

			g := m.Grid
			for r := 0; r < g.Rows; r++ {
				for c := 0; c < g.Cols; c++ {
					z := g.At(r, c)
					if math.IsNaN(z) {
						continue
					}
					v, err := ce.eval(z, r, c)
					if err != nil {
						return fmt.Errorf("cell (%d, %d): %w", r, c, err)
					}
					g.Set(r, c, v)
				}
			}
			return nil
		},
	}
}
