package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftroute/internal/backend"
	"github.com/driftlabs/driftroute/internal/health"
	"github.com/driftlabs/driftroute/pkg/types"
)

func TestChainClassifiesTimeoutInExhaustionError(t *testing.T) {
	slow := &scriptedBackend{
		desc: types.BackendDescriptor{
			ID:               "local-llm",
			Kind:             types.KindLocal,
			MaxResponseTime:  30 * time.Millisecond,
			FailureThreshold: 3,
			CoolDown:         time.Hour,
		},
		delay:    200 * time.Millisecond,
		response: types.GenerateResult{Text: "late answer"},
	}
	registry := backend.NewRegistryFromBackends(slow)
	monitor := health.NewMonitor(registry.Descriptors(), health.Config{}, nil, nil)
	chain := NewChain(registry, monitor, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	decision := &types.RoutingDecision{}
	_, outcomes, err := chain.Execute(ctx, []string{"local-llm"}, "anything", decision)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllCandidatesExhausted))
	assert.True(t, errors.Is(err, ErrBackendTimeout))
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].TimedOut)
	assert.False(t, outcomes[0].Success)
}

func TestChainPlainFailureIsNotATimeout(t *testing.T) {
	broken := &scriptedBackend{
		desc: types.BackendDescriptor{
			ID:               "local-llm",
			Kind:             types.KindLocal,
			MaxResponseTime:  100 * time.Millisecond,
			FailureThreshold: 3,
			CoolDown:         time.Hour,
		},
		fail: true,
	}
	registry := backend.NewRegistryFromBackends(broken)
	monitor := health.NewMonitor(registry.Descriptors(), health.Config{}, nil, nil)
	chain := NewChain(registry, monitor, nil, nil)

	decision := &types.RoutingDecision{}
	_, outcomes, err := chain.Execute(context.Background(), []string{"local-llm"}, "anything", decision)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllCandidatesExhausted))
	assert.False(t, errors.Is(err, ErrBackendTimeout))
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].TimedOut)
}
