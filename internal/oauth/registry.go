package oauth

import (
	"sort"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
)

// Registry maps provider names to adapters.
type Registry struct {
	adapters map[model.Provider]Adapter
}

// NewRegistry registers adapters by their Name. A later adapter with the
// same name replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for name, or a validation error for an unknown or
// unconfigured provider.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[model.Provider(name)]
	if !ok {
		return nil, apperror.ValidationFailed("provider", "Unsupported provider: "+name)
	}
	return a, nil
}

// Names lists the registered providers in alphabetical order.
func (r *Registry) Names() []model.Provider {
	names := make([]model.Provider, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
