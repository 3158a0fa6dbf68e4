package strategy

import (
	"math"
	"math/rand"
)

// ExplorationPolicy balances trying new actions against exploiting the best
// known one. Implementations must be pure given the rng: no hidden sources
// of randomness affect which backend is chosen.
type ExplorationPolicy interface {
	Name() string
	Select(rng *rand.Rand, table *QTable, stateKey string, actions []QAction, epsilon float64) QAction
}

// greedy picks argmax_a Q[state][a], breaking ties by lower visit count
// (which favors information gain) and then by catalog order, so selection is
// fully deterministic for a fixed table.
func greedy(table *QTable, stateKey string, actions []QAction) QAction {
	best := actions[0]
	bestValue := table.Get(stateKey, best.Key())
	bestVisits := table.Visits(stateKey, best.Key())

	for _, a := range actions[1:] {
		v := table.Get(stateKey, a.Key())
		n := table.Visits(stateKey, a.Key())
		if v > bestValue || (v == bestValue && n < bestVisits) {
			best, bestValue, bestVisits = a, v, n
		}
	}
	return best
}

// EpsilonGreedy explores uniformly at random with probability epsilon and
// exploits otherwise. The default policy.
type EpsilonGreedy struct{}

func (EpsilonGreedy) Name() string { return "epsilon-greedy" }

func (EpsilonGreedy) Select(rng *rand.Rand, table *QTable, stateKey string, actions []QAction, epsilon float64) QAction {
	if rng.Float64() < epsilon {
		return actions[rng.Intn(len(actions))]
	}
	return greedy(table, stateKey, actions)
}

// UCB selects by upper confidence bound: Q + c*sqrt(ln(N)/n). Unvisited
// actions have infinite bound and are tried first, in catalog order.
type UCB struct {
	C float64
}

func (UCB) Name() string { return "ucb" }

func (u UCB) Select(rng *rand.Rand, table *QTable, stateKey string, actions []QAction, epsilon float64) QAction {
	total := table.StateVisits(stateKey)
	if total == 0 {
		return actions[0]
	}

	best := actions[0]
	bestBound := math.Inf(-1)
	for _, a := range actions {
		n := table.Visits(stateKey, a.Key())
		if n == 0 {
			return a
		}
		bound := table.Get(stateKey, a.Key()) + u.C*math.Sqrt(math.Log(float64(total))/float64(n))
		if bound > bestBound {
			best, bestBound = a, bound
		}
	}
	return best
}

// Softmax samples actions with probability proportional to exp(Q/tau).
// Lower tau sharpens toward greedy; higher tau flattens toward uniform.
type Softmax struct {
	Tau float64
}

func (Softmax) Name() string { return "softmax" }

func (s Softmax) Select(rng *rand.Rand, table *QTable, stateKey string, actions []QAction, epsilon float64) QAction {
	tau := s.Tau
	if tau <= 0 {
		tau = 0.5
	}

	// Shift by the max value before exponentiating to keep weights finite.
	maxQ := math.Inf(-1)
	for _, a := range actions {
		if v := table.Get(stateKey, a.Key()); v > maxQ {
			maxQ = v
		}
	}

	weights := make([]float64, len(actions))
	total := 0.0
	for i, a := range actions {
		w := math.Exp((table.Get(stateKey, a.Key()) - maxQ) / tau)
		weights[i] = w
		total += w
	}

	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return actions[i]
		}
	}
	return actions[len(actions)-1]
}
