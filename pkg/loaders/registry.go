package loaders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
)

// ErrUnknownLoader is returned for identifiers missing from a registry.
var ErrUnknownLoader = errors.New("unknown loader")

// LoadFunc produces a grid from resolved parameters.
type LoadFunc func(ctx context.Context, args inputs.Args) (*grid.Grid, error)

// Descriptor is a registered loader.
type Descriptor struct {
	Name        string
	Aliases     []string
	Description string
	// PathParam names the parameter that carries the file path or source
	// name. Captured workflows bind their generated input to it.
	PathParam string
	Load      LoadFunc
}

// Registry maps loader identifiers, including aliases, to descriptors. It
// is immutable once built.
type Registry struct {
	byName map[string]Descriptor
	names  []string
}

// NewRegistry builds a registry, rejecting duplicate identifiers.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor)}
	for _, d := range descs {
		if d.Name == "" || d.Load == nil {
			return nil, fmt.Errorf("loader descriptor %q is incomplete", d.Name)
		}
		for _, id := range append([]string{d.Name}, d.Aliases...) {
			if _, dup := r.byName[id]; dup {
				return nil, fmt.Errorf("loader %q registered twice", id)
			}
			r.byName[id] = d
		}
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the descriptor for a canonical name or alias.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.byName[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownLoader, id)
	}
	return d, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byName[id]
	return ok
}

// Names returns canonical loader names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
