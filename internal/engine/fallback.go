package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driftlabs/driftroute/internal/backend"
	"github.com/driftlabs/driftroute/internal/health"
	"github.com/driftlabs/driftroute/internal/metrics"
	"github.com/driftlabs/driftroute/pkg/types"
	"github.com/driftlabs/driftroute/pkg/utils"
)

// Chain walks an ordered candidate list until one backend answers. Open
// circuits are skipped (the monitor admits at most one half-open probe per
// cooldown), each attempt is bounded by the backend's declared budget and
// the remaining overall deadline, and every attempt is reported back to the
// health monitor. A backend is never retried within one walk.
type Chain struct {
	registry  *backend.Registry
	monitor   *health.Monitor
	collector *metrics.Collector
	log       *utils.Logger
}

// NewChain creates a fallback chain over the given registry and monitor.
func NewChain(registry *backend.Registry, monitor *health.Monitor, collector *metrics.Collector, log *utils.Logger) *Chain {
	if log == nil {
		log = utils.NewLogger()
	}
	return &Chain{registry: registry, monitor: monitor, collector: collector, log: log}
}

// Execute tries candidates in order and returns the first successful result
// together with the outcome of every attempt made. Skips and failures are
// appended to the decision's reasoning trail.
func (c *Chain) Execute(ctx context.Context, candidates []string, text string, decision *types.RoutingDecision) (types.GenerateResult, []types.Outcome, error) {
	var outcomes []types.Outcome
	var lastErr error
	tried := make(map[string]bool, len(candidates))

	for _, id := range candidates {
		if tried[id] {
			continue
		}
		tried[id] = true

		b, ok := c.registry.Get(id)
		if !ok {
			decision.AddReason("candidate %s not registered, skipped", id)
			continue
		}

		if err := ctx.Err(); err != nil {
			decision.AddReason("deadline expired before trying %s", id)
			return types.GenerateResult{}, outcomes, fmt.Errorf("%w: %s untried", ErrDeadlineExceeded, id)
		}

		if c.monitor.IsCircuitOpen(id) {
			decision.AddReason("circuit open for %s, skipped", id)
			continue
		}

		desc := b.Descriptor()
		budget := desc.MaxResponseTime
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < budget {
				budget = remaining
			}
		}
		if budget <= 0 {
			decision.AddReason("no time budget left for %s", id)
			return types.GenerateResult{}, outcomes, fmt.Errorf("%w: %s untried", ErrDeadlineExceeded, id)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, budget)
		start := time.Now()
		result, err := b.Generate(attemptCtx, text)
		latency := time.Since(start)
		timedOut := err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if timedOut {
			err = fmt.Errorf("%w after %s: %v", ErrBackendTimeout, budget.Round(time.Millisecond), err)
		}

		outcome := types.Outcome{
			BackendID:  id,
			Success:    err == nil,
			TimedOut:   timedOut,
			Latency:    latency,
			Confidence: result.Confidence,
			Cost:       desc.CostPerCall,
		}
		outcomes = append(outcomes, outcome)
		decision.Attempted = append(decision.Attempted, id)

		wasOpen := c.monitor.StateOf(id) == health.StateCircuitOpen
		c.monitor.RecordOutcome(id, latency, err == nil)
		if c.collector != nil {
			c.collector.ObserveAttempt(id, attemptResult(err, timedOut), latency)
			if !wasOpen && c.monitor.StateOf(id) == health.StateCircuitOpen {
				c.collector.CircuitOpened(id)
			}
		}

		if err == nil {
			decision.AddReason("%s answered in %s", id, latency.Round(time.Millisecond))
			return result, outcomes, nil
		}

		lastErr = err
		if timedOut {
			decision.AddReason("%s timed out after %s", id, budget.Round(time.Millisecond))
			c.log.Warn("backend %s timed out: %v", id, err)
		} else {
			decision.AddReason("%s failed: %v", id, err)
			c.log.Warn("backend %s failed: %v", id, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return types.GenerateResult{}, outcomes, ErrDeadlineExceeded
	}
	if lastErr != nil {
		return types.GenerateResult{}, outcomes, fmt.Errorf("%w: last attempt: %w", ErrAllCandidatesExhausted, lastErr)
	}
	return types.GenerateResult{}, outcomes, ErrAllCandidatesExhausted
}

func attemptResult(err error, timedOut bool) string {
	switch {
	case err == nil:
		return "success"
	case timedOut:
		return "timeout"
	default:
		return "error"
	}
}
