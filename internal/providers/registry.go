package providers

import (
	"fmt"
	"sort"

	"github.com/attestra/attestra-backend/internal/pkg/errs"
)

// Registry is a closed set of providers fixed at startup. Tenant config
// selects by key; unknown keys fail fast rather than falling back.
type Registry struct {
	providers map[string]ComplianceProvider
}

func NewRegistry(provs ...ComplianceProvider) (*Registry, error) {
	r := &Registry{providers: make(map[string]ComplianceProvider, len(provs))}
	for _, p := range provs {
		if p == nil {
			return nil, fmt.Errorf("nil provider")
		}
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("provider with empty name")
		}
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		r.providers[name] = p
	}
	return r, nil
}

func (r *Registry) Get(name string) (ComplianceProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown compliance provider %q: %w", name, errs.ErrNotFound)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
