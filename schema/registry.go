package schema

import (
	"fmt"
	"sort"
)

// A Registry maps model names and GraphQL type names to Model descriptors.
// It is built once at startup and read-only afterwards, so lookups need
// no locking.
type Registry struct {
	models  map[string]*Model
	byType  map[string]*Model
	byIface map[string][]*Model
}

// NewRegistry returns a Registry holding the given models.
func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{
		models:  make(map[string]*Model, len(models)),
		byType:  make(map[string]*Model, len(models)),
		byIface: make(map[string][]*Model),
	}
	for _, m := range models {
		if err := r.Add(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. Intended for
// package-level registry construction.
func MustRegistry(models ...*Model) *Registry {
	r, err := NewRegistry(models...)
	if err != nil {
		panic(err)
	}
	return r
}

// Add registers a model. Duplicate model or type names are rejected.
func (r *Registry) Add(m *Model) error {
	if _, ok := r.models[m.Name]; ok {
		return fmt.Errorf("vireo/schema: duplicate model %q", m.Name)
	}
	if prev, ok := r.byType[m.TypeName]; ok {
		return fmt.Errorf("vireo/schema: type %q already mapped to model %q", m.TypeName, prev.Name)
	}
	r.models[m.Name] = m
	r.byType[m.TypeName] = m
	for _, iface := range m.Implements {
		r.byIface[iface] = append(r.byIface[iface], m)
	}
	return nil
}

// Model returns the model with the given registry name.
func (r *Registry) Model(name string) (*Model, error) {
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("vireo/schema: unknown model %q", name)
}

// ModelForType returns the model exposed as the given GraphQL type.
func (r *Registry) ModelForType(typeName string) (*Model, bool) {
	m, ok := r.byType[typeName]
	return m, ok
}

// Implementors returns the models whose types implement the given GraphQL
// interface, in a stable order.
func (r *Registry) Implementors(iface string) []*Model {
	out := append([]*Model(nil), r.byIface[iface]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Models returns all registered models in a stable order.
func (r *Registry) Models() []*Model {
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
