package processors

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/spec"
)

// ErrUnknownProcessor is returned for names missing from a registry.
var ErrUnknownProcessor = errors.New("unknown processor")

// Applicability restricts a processor to rendering contexts.
type Applicability int

const (
	// Both applies in 2D and 3D.
	Both Applicability = iota
	// Only2D applies to the flat figure.
	Only2D
	// Only3D applies to the surface figure.
	Only3D
)

// AppliesTo reports whether a processor runs under ctx.
func (a Applicability) AppliesTo(ctx spec.Context) bool {
	switch a {
	case Only2D:
		return ctx == spec.Context2D
	case Only3D:
		return ctx == spec.Context3D
	default:
		return true
	}
}

func (a Applicability) String() string {
	switch a {
	case Only2D:
		return "2d"
	case Only3D:
		return "3d"
	default:
		return "2d+3d"
	}
}

// Kind describes what a processor changes.
type Kind string

const (
	// KindMutate rewrites the map's grid in place.
	KindMutate Kind = "mutate"
	// KindDerive appends a derived layer.
	KindDerive Kind = "derive"
	// KindState changes 3D state such as lighting or height scale.
	KindState Kind = "state"
)

// ApplyFunc runs a processor against a map with resolved arguments.
type ApplyFunc func(ctx context.Context, m *mapobject.MapObject, args inputs.Args) error

// Descriptor is a registered processor.
type Descriptor struct {
	Name          string
	Description   string
	Applicability Applicability
	Kind          Kind
	Apply         ApplyFunc
}

// Registry maps processor names to descriptors. It is immutable once built.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry builds a registry, rejecting duplicate or incomplete entries.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" || d.Apply == nil {
			return nil, fmt.Errorf("processor descriptor %q is incomplete", d.Name)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("processor %q registered twice", d.Name)
		}
		r.byName[d.Name] = d
	}
	return r, nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return d, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var builtin = mustRegistry(builtinDescriptors()...)

// Builtin returns the process-wide registry of built-in processors.
func Builtin() *Registry { return builtin }

func mustRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

func builtinDescriptors() []Descriptor {
	var all []Descriptor
	all = append(all, maskDescriptors()...)
	all = append(all, filterDescriptors()...)
	all = append(all, shadeDescriptors()...)
	all = append(all, heightDescriptors()...)
	all = append(all, lightingDescriptors()...)
	all = append(all, exprDescriptor())
	return all
}
