package inputs

import (
	"errors"
	"reflect"
	"testing"

	"github.com/topoviz/topoviz/pkg/spec"
)

func boolPtr(b bool) *bool { return &b }

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     spec.InputType
		raw     string
		want    any
		wantErr bool
	}{
		{name: "path passthrough", typ: spec.InputPath, raw: " ./a b.tif", want: " ./a b.tif"},
		{name: "int", typ: spec.InputInt, raw: "42", want: 42},
		{name: "int rejects float", typ: spec.InputInt, raw: "4.2", wantErr: true},
		{name: "float", typ: spec.InputFloat, raw: "500.5", want: 500.5},
		{name: "float garbage", typ: spec.InputFloat, raw: "abc", wantErr: true},
		{name: "bool TRUE", typ: spec.InputBool, raw: "TRUE", want: true},
		{name: "bool 1", typ: spec.InputBool, raw: "1", want: true},
		{name: "bool False", typ: spec.InputBool, raw: "False", want: false},
		{name: "bool 0", typ: spec.InputBool, raw: "0", want: false},
		{name: "bool yes rejected", typ: spec.InputBool, raw: "yes", wantErr: true},
		{name: "json object", typ: spec.InputJSON, raw: `{"a":[1,2]}`, want: map[string]any{"a": []any{1.0, 2.0}}},
		{name: "json invalid", typ: spec.InputJSON, raw: `{a}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue("x", tt.typ, tt.raw)
			if tt.wantErr {
				var ce *ConversionError
				if !errors.As(err, &ce) || !errors.Is(err, ErrConversion) {
					t.Fatalf("expected ConversionError, got %v", err)
				}
				if ce.Input != "x" || ce.Raw != tt.raw {
					t.Errorf("error does not carry input and raw text: %+v", ce)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	decls := spec.Inputs{
		{Name: "dem", Type: spec.InputPath},
		{Name: "threshold", Type: spec.InputFloat, Default: "500"},
		{Name: "label", Type: spec.InputStr, Required: boolPtr(false)},
	}

	t.Run("default used verbatim", func(t *testing.T) {
		vals, err := Resolve(decls, map[string]string{"dem": "a.tif"})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if v, _ := vals.Get("threshold"); v != "500" {
			t.Errorf("threshold = %#v, want the unparsed default", v)
		}
		if v, ok := vals.Get("label"); !ok || v != nil {
			t.Errorf("optional input = %#v, %v", v, ok)
		}
		if !reflect.DeepEqual(vals.Names(), []string{"dem", "threshold", "label"}) {
			t.Errorf("Names() = %v", vals.Names())
		}
	})

	t.Run("raw value parsed", func(t *testing.T) {
		vals, err := Resolve(decls, map[string]string{"dem": "a.tif", "threshold": "12.5"})
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if v, _ := vals.Get("threshold"); v != 12.5 {
			t.Errorf("threshold = %#v", v)
		}
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := Resolve(decls, map[string]string{"dem": ""})
		var me *MissingInputError
		if !errors.As(err, &me) || me.Input != "dem" {
			t.Fatalf("expected MissingInputError for dem, got %v", err)
		}
		if !errors.Is(err, ErrMissingInput) {
			t.Errorf("errors.Is(ErrMissingInput) = false")
		}
	})
}

func TestResolveParamsSinglePass(t *testing.T) {
	vals := NewValues(map[string]any{
		"t":     500.0,
		"inner": map[string]any{"$ref": "t"},
	})
	params := spec.ParamsOf(map[string]any{
		"threshold": map[string]any{"$ref": "t"},
		"nested":    []any{1, map[string]any{"$ref": "t"}},
		"chain":     map[string]any{"$ref": "inner"},
		"lit":       "x",
	})

	got, err := ResolveParams(params, vals)
	if err != nil {
		t.Fatalf("ResolveParams failed: %v", err)
	}
	want := Args{
		"threshold": 500.0,
		"nested":    []any{1, 500.0},
		"chain":     map[string]any{"$ref": "t"},
		"lit":       "x",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v\nwant %#v", got, want)
	}
}

func TestResolveParamsUnknownRef(t *testing.T) {
	params := spec.Params{"p": spec.Reference("nope")}
	_, err := ResolveParams(params, NewValues(nil))
	if !errors.Is(err, ErrUnresolvedRef) {
		t.Fatalf("expected ErrUnresolvedRef, got %v", err)
	}
}

func TestArgsAccessors(t *testing.T) {
	a := Args{
		"yamlInt":  3,
		"jsonNum":  2.5,
		"text":     "500",
		"list":     []any{315, 135.0},
		"flag":     "TRUE",
		"name":     "nearest",
		"notFloat": "abc",
	}

	if v, _ := a.Float("yamlInt", 0); v != 3 {
		t.Errorf("yamlInt = %v", v)
	}
	if v, _ := a.Float("text", 0); v != 500 {
		t.Errorf("numeric text = %v", v)
	}
	if v, _ := a.Float("absent", 7); v != 7 {
		t.Errorf("default = %v", v)
	}
	if _, err := a.Float("notFloat", 0); err == nil {
		t.Error("expected error for non-numeric text")
	}
	if v, _ := a.Floats("list", nil); !reflect.DeepEqual(v, []float64{315, 135}) {
		t.Errorf("list = %v", v)
	}
	if v, _ := a.Bool("flag", false); !v {
		t.Error("flag should be true")
	}
	if _, err := a.Int("jsonNum", 0); err == nil {
		t.Error("expected error for fractional int")
	}
	if _, err := a.RequireString("missing"); err == nil {
		t.Error("expected error for missing required string")
	}
}
