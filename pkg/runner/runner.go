package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/spec"
)

// Runner sources the raw text of a workflow's inputs. Values left out of
// the returned map fall back to their declared defaults.
type Runner interface {
	Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error)
}

// Asker asks for the given inputs, in order.
type Asker interface {
	Ask(ctx context.Context, decls []spec.Input) (map[string]string, error)
}

var (
	_ engine.InputCollector = Runner(nil)
	_ Runner                = (*Prompt)(nil)
	_ Runner                = (*Dialog)(nil)
	_ Runner                = Fast{}
	_ Runner                = ParamFile{}
)

// Pending returns the inputs to ask for. An interactive workflow asks for
// every input, otherwise only inputs without a default are asked for. A
// non-nil only set restricts the result to the inputs it names.
func Pending(wf *spec.Workflow, only map[string]bool) []spec.Input {
	var out []spec.Input
	for _, decl := range wf.Inputs {
		if only != nil && !only[decl.Name] {
			continue
		}
		if !wf.Interactive && decl.HasDefault() {
			continue
		}
		out = append(out, decl)
	}
	return out
}

// Fast asks only for inputs referenced by data source parameters. Every
// other input takes its default; a required one without a default fails
// resolution.
type Fast struct {
	Asker Asker
}

// Collect implements Runner.
func (f Fast) Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error) {
	return f.Asker.Ask(ctx, Pending(wf, wf.DataSourceRefs()))
}

// FormatValue renders a default as the text a user would type for it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
