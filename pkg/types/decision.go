package types

import (
	"fmt"
	"time"
)

// StageTiming is one entry of a decision's timing breakdown.
type StageTiming struct {
	Stage   string        `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

// RoutingDecision is the result of one Route call. It is created once per
// call and returned to the caller; the core keeps no reference to it.
type RoutingDecision struct {
	ID            string          `json:"id"`
	BackendID     string          `json:"backend_id"`
	Response      string          `json:"response"`
	Confidence    float64         `json:"confidence"`
	Complexity    ComplexityLevel `json:"complexity"`
	Category      RequestCategory `json:"category"`
	FallbackUsed  bool            `json:"fallback_used"`
	Attempted     []string        `json:"attempted,omitempty"`
	EstimatedCost float64         `json:"estimated_cost"`
	Elapsed       time.Duration   `json:"elapsed"`
	Reasoning     []string        `json:"reasoning"`
	Timings       []StageTiming   `json:"timings,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// AddReason appends a formatted entry to the reasoning trail.
func (d *RoutingDecision) AddReason(format string, args ...any) {
	d.Reasoning = append(d.Reasoning, fmt.Sprintf(format, args...))
}

// AddTiming appends one stage to the timing breakdown.
func (d *RoutingDecision) AddTiming(stage string, elapsed time.Duration) {
	d.Timings = append(d.Timings, StageTiming{Stage: stage, Elapsed: elapsed})
}
