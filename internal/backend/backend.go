package backend

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/pkg/types"
)

// Backend produces a response for a request. Implementations must honor the
// context deadline and return promptly on cancellation.
type Backend interface {
	Descriptor() types.BackendDescriptor
	Generate(ctx context.Context, text string) (types.GenerateResult, error)
	// Ping is the lightweight health probe. Nil means reachable.
	Ping(ctx context.Context) error
}

// Registry holds every configured backend, keyed by id. It is built once at
// startup from configuration and read-only afterwards: absence of a backend
// is a configuration-time decision, not a runtime discovery path.
type Registry struct {
	backends map[string]Backend
	ordered  []string
}

// BuildRegistry constructs backends from the validated configuration. Hybrid
// entries are wired after their delegates exist.
func BuildRegistry(cfgs []config.BackendConfig, client *http.Client) (*Registry, error) {
	if client == nil {
		client = http.DefaultClient
	}

	r := &Registry{backends: make(map[string]Backend, len(cfgs))}

	// First pass: everything except hybrids.
	for _, cfg := range cfgs {
		desc := cfg.Descriptor()
		switch desc.Kind {
		case types.KindEmbedded:
			r.backends[desc.ID] = NewEmbedded(desc)
		case types.KindLocal, types.KindExternal:
			r.backends[desc.ID] = NewHTTP(desc, client)
		case types.KindHybrid:
			// second pass
		default:
			return nil, fmt.Errorf("unknown backend kind %q", desc.Kind)
		}
	}

	for _, cfg := range cfgs {
		desc := cfg.Descriptor()
		if desc.Kind != types.KindHybrid {
			continue
		}
		local, ok := r.backends[cfg.LocalDelegate]
		if !ok {
			return nil, fmt.Errorf("hybrid backend %q: unknown local delegate %q", desc.ID, cfg.LocalDelegate)
		}
		external, ok := r.backends[cfg.ExternalDelegate]
		if !ok {
			return nil, fmt.Errorf("hybrid backend %q: unknown external delegate %q", desc.ID, cfg.ExternalDelegate)
		}
		r.backends[desc.ID] = NewHybrid(desc, local, external)
	}

	for id := range r.backends {
		r.ordered = append(r.ordered, id)
	}
	sort.Strings(r.ordered)
	return r, nil
}

// NewRegistryFromBackends composes a registry from already-constructed
// backends. Configuration-driven setups should use BuildRegistry instead.
func NewRegistryFromBackends(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Descriptor().ID] = b
	}
	for id := range r.backends {
		r.ordered = append(r.ordered, id)
	}
	sort.Strings(r.ordered)
	return r
}

// Get returns the backend with the given id.
func (r *Registry) Get(id string) (Backend, bool) {
	b, ok := r.backends[id]
	return b, ok
}

// IDs returns all registered backend ids in stable order.
func (r *Registry) IDs() []string {
	return r.ordered
}

// Descriptors returns every descriptor in stable order.
func (r *Registry) Descriptors() []types.BackendDescriptor {
	out := make([]types.BackendDescriptor, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.backends[id].Descriptor())
	}
	return out
}

// Kinds returns the distinct backend kinds present, in registry order.
func (r *Registry) Kinds() []types.BackendKind {
	seen := make(map[types.BackendKind]bool)
	var kinds []types.BackendKind
	for _, id := range r.ordered {
		kind := r.backends[id].Descriptor().Kind
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// ByKind returns the ids of every backend of the given kind, in stable order.
func (r *Registry) ByKind(kind types.BackendKind) []string {
	var out []string
	for _, id := range r.ordered {
		if r.backends[id].Descriptor().Kind == kind {
			out = append(out, id)
		}
	}
	return out
}
