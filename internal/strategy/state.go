package strategy

import (
	"strings"

	"github.com/driftlabs/driftroute/pkg/types"
)

// QState is the discretized situation a routing decision is made in. States
// are value objects: recomputed per call, compared by key, never stored by
// identity.
type QState struct {
	Category      types.RequestCategory
	Complexity    types.ComplexityLevel
	Urgency       string // "normal" or "urgent"
	RecentSuccess string // "low", "medium", "high"
	Load          string // "low", "medium", "high"
}

// Key returns the canonical table key for the state.
func (s QState) Key() string {
	return strings.Join([]string{
		string(s.Category),
		string(s.Complexity),
		s.Urgency,
		s.RecentSuccess,
		s.Load,
	}, "|")
}

// UrgencyBucket folds a boolean urgency flag into the state vocabulary.
func UrgencyBucket(urgent bool) string {
	if urgent {
		return "urgent"
	}
	return "normal"
}

// SuccessBucket discretizes a recent success ratio.
func SuccessBucket(ratio float64) string {
	switch {
	case ratio < 0.5:
		return "low"
	case ratio < 0.85:
		return "medium"
	default:
		return "high"
	}
}

// QAction is one routing choice: which kind of backend to prefer, which
// response strategy to use, and how intensely to apply it.
type QAction struct {
	BackendKind types.BackendKind
	Strategy    string // "direct", "detailed", "empathetic", "analytical"
	Intensity   string // "low", "medium", "high"
}

// Key returns the canonical table key for the action.
func (a QAction) Key() string {
	return strings.Join([]string{string(a.BackendKind), a.Strategy, a.Intensity}, "|")
}

// Strategy labels and intensity buckets of the fixed action catalog.
var (
	strategyLabels   = []string{"direct", "detailed", "empathetic", "analytical"}
	intensityBuckets = []string{"low", "medium", "high"}
)

// BuildCatalog enumerates the full action catalog for the backend kinds
// present in the registry. The order is fixed at startup; greedy tie-breaks
// fall back to it, which keeps selection deterministic in tests.
func BuildCatalog(kinds []types.BackendKind) []QAction {
	seen := make(map[types.BackendKind]bool, len(kinds))
	catalog := make([]QAction, 0, len(kinds)*len(strategyLabels)*len(intensityBuckets))
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		for _, label := range strategyLabels {
			for _, intensity := range intensityBuckets {
				catalog = append(catalog, QAction{
					BackendKind: kind,
					Strategy:    label,
					Intensity:   intensity,
				})
			}
		}
	}
	return catalog
}

// FilterByKinds returns the subset of actions whose backend kind is allowed,
// preserving catalog order.
func FilterByKinds(actions []QAction, allowed map[types.BackendKind]bool) []QAction {
	out := make([]QAction, 0, len(actions))
	for _, a := range actions {
		if allowed[a.BackendKind] {
			out = append(out, a)
		}
	}
	return out
}
