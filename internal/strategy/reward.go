package strategy

import (
	"time"

	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/pkg/types"
)

// RewardShaper turns an outcome record into a bounded reward. It is a pure
// function of the outcome and the configured weights: low latency and high
// declared confidence push the reward up, errors and excessive latency push
// it down. The result is always within [-1, 1].
type RewardShaper struct {
	successBonus     float64
	latencyWeight    float64
	confidenceWeight float64
	errorPenalty     float64
	latencyBudget    time.Duration
}

// NewRewardShaper builds a shaper from configuration.
func NewRewardShaper(cfg config.RewardConfig) *RewardShaper {
	return &RewardShaper{
		successBonus:     cfg.SuccessBonus,
		latencyWeight:    cfg.LatencyWeight,
		confidenceWeight: cfg.ConfidenceWeight,
		errorPenalty:     cfg.ErrorPenalty,
		latencyBudget:    cfg.LatencyBudget.Std(),
	}
}

// Shape computes the reward for one outcome.
func (r *RewardShaper) Shape(outcome types.Outcome) float64 {
	if !outcome.Success {
		return clampReward(r.errorPenalty)
	}

	// Latency component in [-1, 1]: a call at zero latency earns the full
	// weight, a call at the budget earns -weight.
	fraction := float64(outcome.Latency) / float64(maxDuration(r.latencyBudget, time.Millisecond))
	if fraction > 1 {
		fraction = 1
	}
	latencyComponent := r.latencyWeight * (1 - 2*fraction)

	// Confidence component in [-1, 1] around the 0.5 midpoint.
	confidenceComponent := r.confidenceWeight * (2*clamp01(outcome.Confidence) - 1)

	return clampReward(r.successBonus + latencyComponent + confidenceComponent)
}

func clampReward(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
