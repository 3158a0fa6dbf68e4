package types

import (
	"strings"
	"time"
)

// Hint keys recognized in the request hint map.
const (
	HintUrgency     = "urgency"      // "low", "normal", "high", "critical"
	HintCostCeiling = "cost_ceiling" // float64, max acceptable cost per call
	HintQuality     = "quality"      // "fast", "balanced", "best"
	HintOfflineOnly = "offline_only" // bool, restrict to embedded/local backends
	HintDeadline    = "deadline_ms"  // int, overall routing deadline in milliseconds
)

// Request is an immutable routing request: opaque text plus optional hints.
// It lives for the duration of a single Route call.
type Request struct {
	Text  string
	Hints map[string]any
}

// NewRequest creates a request. The hint map is copied so later mutation by
// the caller cannot affect an in-flight routing call.
func NewRequest(text string, hints map[string]any) Request {
	copied := make(map[string]any, len(hints))
	for k, v := range hints {
		copied[k] = v
	}
	return Request{Text: text, Hints: copied}
}

// Urgency returns the urgency hint, defaulting to "normal".
func (r Request) Urgency() string {
	if v, ok := r.Hints[HintUrgency].(string); ok && v != "" {
		return strings.ToLower(v)
	}
	return "normal"
}

// OfflineOnly reports whether the request must be served without leaving
// the host (embedded or local backends only).
func (r Request) OfflineOnly() bool {
	v, ok := r.Hints[HintOfflineOnly].(bool)
	return ok && v
}

// CostCeiling returns the per-call cost ceiling hint, or 0 when unset.
func (r Request) CostCeiling() float64 {
	switch v := r.Hints[HintCostCeiling].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// QualityPreference returns the quality hint, defaulting to "balanced".
func (r Request) QualityPreference() string {
	if v, ok := r.Hints[HintQuality].(string); ok && v != "" {
		return strings.ToLower(v)
	}
	return "balanced"
}

// Deadline returns the per-call deadline hint, or 0 when unset.
func (r Request) Deadline() time.Duration {
	switch v := r.Hints[HintDeadline].(type) {
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	}
	return 0
}
