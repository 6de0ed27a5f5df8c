package spec

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// RefKey is the mapping key that marks an input reference.
const RefKey = "$ref"

// ParamKind discriminates the Param union.
type ParamKind int

const (
	// LiteralParam holds a plain value.
	LiteralParam ParamKind = iota
	// RefParam names a declared input.
	RefParam
	// MapParam nests named parameters.
	MapParam
	// ListParam nests positional parameters.
	ListParam
)

// Param is a parameter value: a literal, a reference to an input, or a
// container of further params. References may appear at any depth.
type Param struct {
	Kind  ParamKind
	Value any
	Ref   string
	Map   map[string]Param
	List  []Param
}

// Literal wraps a plain value.
func Literal(v any) Param { return Param{Kind: LiteralParam, Value: v} }

// Reference points at the input called name.
func Reference(name string) Param { return Param{Kind: RefParam, Ref: name} }

// ParamOf converts a decoded document value into a Param. Any mapping
// holding a "$ref" key becomes a reference to that input; its other keys
// are ignored. A non-string reference keeps its printed form so that
// Check reports it as undeclared.
func ParamOf(raw any) Param {
	switch v := raw.(type) {
	case Param:
		return v
	case map[string]any:
		if ref, ok := v[RefKey]; ok {
			if name, ok := ref.(string); ok {
				return Reference(name)
			}
			return Reference(fmt.Sprint(ref))
		}
		m := make(map[string]Param, len(v))
		for k, x := range v {
			m[k] = ParamOf(x)
		}
		return Param{Kind: MapParam, Map: m}
	case map[any]any:
		conv := make(map[string]any, len(v))
		for k, x := range v {
			conv[fmt.Sprint(k)] = x
		}
		return ParamOf(conv)
	case []any:
		list := make([]Param, len(v))
		for i, x := range v {
			list[i] = ParamOf(x)
		}
		return Param{Kind: ListParam, List: list}
	default:
		return Literal(v)
	}
}

// IsRef reports whether p is a reference.
func (p Param) IsRef() bool { return p.Kind == RefParam }

// Raw converts p back into plain document form.
func (p Param) Raw() any {
	switch p.Kind {
	case RefParam:
		return map[string]any{RefKey: p.Ref}
	case MapParam:
		m := make(map[string]any, len(p.Map))
		for k, x := range p.Map {
			m[k] = x.Raw()
		}
		return m
	case ListParam:
		l := make([]any, len(p.List))
		for i, x := range p.List {
			l[i] = x.Raw()
		}
		return l
	default:
		return p.Value
	}
}

// Walk calls fn for every reference below p with its dotted location.
func (p Param) Walk(prefix string, fn func(location, ref string)) {
	switch p.Kind {
	case RefParam:
		fn(prefix, p.Ref)
	case MapParam:
		keys := make([]string, 0, len(p.Map))
		for k := range p.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.Map[k].Walk(prefix+"."+k, fn)
		}
	case ListParam:
		for i, x := range p.List {
			x.Walk(fmt.Sprintf("%s[%d]", prefix, i), fn)
		}
	}
}

// Params is a named parameter mapping.
type Params map[string]Param

// ParamsOf converts a decoded mapping.
func ParamsOf(raw map[string]any) Params {
	if raw == nil {
		return nil
	}
	ps := make(Params, len(raw))
	for k, v := range raw {
		ps[k] = ParamOf(v)
	}
	return ps
}

// Raw converts the mapping back into plain document form.
func (ps Params) Raw() map[string]any {
	if ps == nil {
		return nil
	}
	out := make(map[string]any, len(ps))
	for k, v := range ps {
		out[k] = v.Raw()
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (ps Params) Keys() []string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Walk visits every reference in the mapping.
func (ps Params) Walk(prefix string, fn func(location, ref string)) {
	for _, k := range ps.Keys() {
		ps[k].Walk(prefix+"."+k, fn)
	}
}

// Refs returns the distinct input names referenced by the mapping.
func (ps Params) Refs() []string {
	seen := map[string]bool{}
	var out []string
	ps.Walk("", func(_, ref string) {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	})
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (ps *Params) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*ps = ParamsOf(raw)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (ps Params) MarshalYAML() (interface{}, error) {
	return ps.Raw(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (ps *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*ps = ParamsOf(raw)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ps Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(ps.Raw())
}
