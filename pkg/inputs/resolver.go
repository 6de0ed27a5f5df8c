// Package inputs turns raw runtime values into typed input values and
// substitutes them into loader and processor parameters.
package inputs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/topoviz/topoviz/pkg/spec"
)

var errBadBool = errors.New("expected true/false or 1/0")

// Values is the immutable result of resolving a workflow's inputs.
type Values struct {
	m     map[string]any
	order []string
}

// NewValues builds Values from already typed values, mostly for tests and
// ad-hoc compositions.
func NewValues(m map[string]any) Values {
	v := Values{m: make(map[string]any, len(m))}
	for k, x := range m {
		v.m[k] = x
		v.order = append(v.order, k)
	}
	return v
}

// Get returns the value of the named input.
func (v Values) Get(name string) (any, bool) {
	x, ok := v.m[name]
	return x, ok
}

// Names returns resolved input names in declaration order.
func (v Values) Names() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Len returns the number of resolved inputs.
func (v Values) Len() int { return len(v.m) }

// Map returns a copy of the values.
func (v Values) Map() map[string]any {
	out := make(map[string]any, len(v.m))
	for k, x := range v.m {
		out[k] = x
	}
	return out
}

// Resolve types every declared input. A raw value that is absent or empty
// falls back to the declared default, which is used verbatim. A required
// input with neither fails with MissingInputError; an optional one resolves
// to nil.
func Resolve(decls spec.Inputs, raw map[string]string) (Values, error) {
	vals := Values{m: make(map[string]any, len(decls))}
	for _, decl := range decls {
		text, ok := raw[decl.Name]
		if ok && text != "" {
			v, err := ParseValue(decl.Name, decl.Type, text)
			if err != nil {
				return Values{}, err
			}
			vals.set(decl.Name, v)
			continue
		}
		switch {
		case decl.HasDefault():
			vals.set(decl.Name, decl.Default)
		case decl.IsRequired():
			return Values{}, &MissingInputError{Input: decl.Name}
		default:
			vals.set(decl.Name, nil)
		}
	}
	return vals, nil
}

func (v *Values) set(name string, x any) {
	v.m[name] = x
	v.order = append(v.order, name)
}

// ParseValue converts raw text according to t.
func ParseValue(name string, t spec.InputType, raw string) (any, error) {
	switch t {
	case spec.InputPath, spec.InputStr:
		return raw, nil
	case spec.InputInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, &ConversionError{Input: name, Type: t, Raw: raw, Err: err}
		}
		return n, nil
	case spec.InputFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, &ConversionError{Input: name, Type: t, Raw: raw, Err: err}
		}
		return f, nil
	case spec.InputBool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, &ConversionError{Input: name, Type: t, Raw: raw, Err: errBadBool}
	case spec.InputJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, &ConversionError{Input: name, Type: t, Raw: raw, Err: err}
		}
		return v, nil
	default:
		return nil, &ConversionError{Input: name, Type: t, Raw: raw, Err: fmt.Errorf("unknown input type %q", t)}
	}
}

// ResolveParams substitutes references in a single pass. A substituted
// value is returned as is and never scanned for further references.
func ResolveParams(params spec.Params, vals Values) (Args, error) {
	out := make(Args, len(params))
	for _, k := range params.Keys() {
		v, err := ResolveParam(params[k], vals)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ResolveParam resolves one parameter value.
func ResolveParam(p spec.Param, vals Values) (any, error) {
	switch p.Kind {
	case spec.RefParam:
		v, ok := vals.Get(p.Ref)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, p.Ref)
		}
		return v, nil
	case spec.MapParam:
		m := make(map[string]any, len(p.Map))
		for k, x := range p.Map {
			v, err := ResolveParam(x, vals)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case spec.ListParam:
		l := make([]any, len(p.List))
		for i, x := range p.List {
			v, err := ResolveParam(x, vals)
			if err != nil {
				return nil, err
			}
			l[i] = v
		}
		return l, nil
	default:
		return p.Value, nil
	}
}
