package inputs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Args are resolved parameters handed to a loader or processor. Accessors
// accept the numeric kinds produced by YAML, JSON and typed inputs, plus
// numeric text, since input defaults are passed through unparsed.
type Args map[string]any

// Has reports whether key is present and not nil.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Float returns key as a float64, or def when absent.
func (a Args) Float(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return f, nil
}

// RequireFloat returns key as a float64 and fails when absent.
func (a Args) RequireFloat(key string) (float64, error) {
	if !a.Has(key) {
		return 0, fmt.Errorf("param %s is required", key)
	}
	return a.Float(key, 0)
}

// Int returns key as an int, or def when absent.
func (a Args) Int(key string, def int) (int, error) {
	f, err := a.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("param %s: %v is not an integer", key, f)
	}
	return int(f), nil
}

// String returns key as a string, or def when absent.
func (a Args) String(key, def string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %s: expected string, got %T", key, v)
	}
	return s, nil
}

// RequireString returns key as a non-empty string.
func (a Args) RequireString(key string) (string, error) {
	s, err := a.String(key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("param %s is required", key)
	}
	return s, nil
}

// Bool returns key as a bool, or def when absent.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := ParseValue(key, "bool", b)
		if err != nil {
			return false, err
		}
		return parsed.(bool), nil
	}
	return false, fmt.Errorf("param %s: expected bool, got %T", key, v)
}

// Floats returns key as a list of float64, or def when absent.
func (a Args) Floats(key string, def []float64) ([]float64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	var items []any
	switch l := v.(type) {
	case []any:
		items = l
	case []float64:
		return append([]float64(nil), l...), nil
	case string:
		for _, part := range strings.Split(l, ",") {
			items = append(items, strings.TrimSpace(part))
		}
	default:
		return nil, fmt.Errorf("param %s: expected list, got %T", key, v)
	}
	out := make([]float64, len(items))
	for i, x := range items {
		f, err := toFloat(x)
		if err != nil {
			return nil, fmt.Errorf("param %s[%d]: %w", key, i, err)
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
