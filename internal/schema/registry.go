package schema

import (
	"slices"

	"github.com/roach88/shardstore/internal/storeerr"
)

// Registry maps object-type names to their descriptors.
//
// A Registry is populated once at pool construction and is read-only
// afterwards, so concurrent lookups need no locking.
type Registry struct {
	types map[string]ObjectType
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ObjectType)}
}

// Register adds a descriptor. The name must be one of the known tags, the
// descriptor must be well formed, and each name may be registered once.
func (r *Registry) Register(t ObjectType) error {
	if !Tag(t.Name).Known() {
		return storeerr.Config("object type %q is not in the known tag set", t.Name)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if _, exists := r.types[t.Name]; exists {
		return storeerr.Config("object type %q registered twice", t.Name)
	}

	// Copy columns so later mutation of the caller's slice cannot leak in
	t.Columns = slices.Clone(t.Columns)
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (ObjectType, error) {
	t, ok := r.types[name]
	if !ok {
		return ObjectType{}, storeerr.UnknownType(name)
	}
	return t, nil
}

// Types returns all descriptors in registration order.
func (r *Registry) Types() []ObjectType {
	out := make([]ObjectType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.order)
}

// Build registers the built-in descriptor for every named tag, marking the
// replicated ones as such. A name in both lists, or in neither built-in set,
// is a configuration error.
func Build(replicated []string, partitioned []string) (*Registry, error) {
	r := NewRegistry()
	place := make(map[string]bool, len(replicated)+len(partitioned))
	for _, name := range replicated {
		place[name] = true
	}
	for _, name := range partitioned {
		if place[name] {
			return nil, storeerr.Config("object type %q is both replicated and partitioned", name)
		}
	}

	names := append(slices.Clone(replicated), partitioned...)
	for _, name := range names {
		t, ok := Builtin(Tag(name))
		if !ok {
			return nil, storeerr.UnknownType(name)
		}
		t.Replicated = place[name]
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
