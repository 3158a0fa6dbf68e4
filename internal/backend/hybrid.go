package backend

import (
	"context"

	"github.com/driftlabs/driftroute/pkg/types"
)

// Hybrid splits traffic between a cheap local delegate and a stronger
// external one based on the cost ceiling attached to the call context. Short
// prompts and cost-capped requests stay local; everything else goes out.
type Hybrid struct {
	desc     types.BackendDescriptor
	local    Backend
	external Backend
}

// localPromptLimit is the prompt length in bytes below which the local
// delegate handles the call regardless of cost hints.
const localPromptLimit = 280

type hybridCostKey struct{}

// WithCostCeiling attaches a per-call spend cap that Hybrid consults when
// choosing a delegate.
func WithCostCeiling(ctx context.Context, ceiling float64) context.Context {
	return context.WithValue(ctx, hybridCostKey{}, ceiling)
}

// NewHybrid builds a hybrid backend over two already-constructed delegates.
func NewHybrid(desc types.BackendDescriptor, local, external Backend) *Hybrid {
	return &Hybrid{desc: desc, local: local, external: external}
}

// Descriptor returns the static configuration entry.
func (h *Hybrid) Descriptor() types.BackendDescriptor {
	return h.desc
}

// Generate routes to the local delegate when the prompt is short or the cost
// ceiling rules out the external delegate, otherwise to the external one.
// If the chosen delegate fails, the other is tried before giving up.
func (h *Hybrid) Generate(ctx context.Context, text string) (types.GenerateResult, error) {
	primary, secondary := h.pick(ctx, text)

	result, err := primary.Generate(ctx, text)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return types.GenerateResult{}, err
	}
	return secondary.Generate(ctx, text)
}

func (h *Hybrid) pick(ctx context.Context, text string) (Backend, Backend) {
	if len(text) < localPromptLimit {
		return h.local, h.external
	}
	if ceiling, ok := ctx.Value(hybridCostKey{}).(float64); ok {
		if ceiling > 0 && h.external.Descriptor().CostPerCall > ceiling {
			return h.local, h.external
		}
	}
	return h.external, h.local
}

// Ping succeeds when either delegate is reachable.
func (h *Hybrid) Ping(ctx context.Context) error {
	if err := h.local.Ping(ctx); err == nil {
		return nil
	}
	return h.external.Ping(ctx)
}
