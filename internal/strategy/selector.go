package strategy

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/pkg/utils"
)

// ScoredAction pairs an action with its current Q-value for read-only
// recommendation queries.
type ScoredAction struct {
	Action QAction
	Value  float64
	Visits int
}

// Selector is the Q-learning strategy selector. It owns the QTable and the
// replay buffer; every read and write goes through one lock with narrow
// critical sections. Batch replay runs on a background worker so it never
// blocks action selection in the request path for more than one batch.
type Selector struct {
	mu      sync.Mutex
	cfg     config.LearningConfig
	table   *QTable
	catalog []QAction
	policy  ExplorationPolicy
	epsilon float64
	rng     *rand.Rand
	buffer  *replayBuffer
	updates int64
	log     *utils.Logger

	replayCh chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
}

// NewSelector creates a selector with the configured exploration policy and
// starts its replay worker. Call Close on shutdown.
func NewSelector(cfg config.LearningConfig, catalog []QAction, log *utils.Logger) *Selector {
	if log == nil {
		log = utils.NewLogger()
	}

	var policy ExplorationPolicy
	switch cfg.ExplorationPolicy {
	case "ucb":
		policy = UCB{C: cfg.UCBConstant}
	case "softmax":
		policy = Softmax{Tau: cfg.SoftmaxTau}
	default:
		policy = EpsilonGreedy{}
	}

	s := &Selector{
		cfg:      cfg,
		table:    NewQTable(),
		catalog:  append([]QAction(nil), catalog...),
		policy:   policy,
		epsilon:  cfg.Epsilon,
		rng:      rand.New(rand.NewSource(rand.Int63())),
		buffer:   newReplayBuffer(cfg.ReplayCapacity),
		log:      log,
		replayCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.replayWorker()

	log.Info("strategy selector ready: policy=%s, catalog=%d actions", policy.Name(), len(catalog))
	return s
}

// Close stops the replay worker.
func (s *Selector) Close() {
	close(s.stopCh)
	<-s.done
}

// Seed re-seeds the selector's random source. Exploration is the only place
// randomness may touch routing, and tests pin it down through this.
func (s *Selector) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// Catalog returns the fixed action catalog, in selection order.
func (s *Selector) Catalog() []QAction {
	return s.catalog
}

// SelectAction picks an action for the state from the available subset using
// the exploration policy, counts the visit, and decays epsilon.
func (s *Selector) SelectAction(state QState, available []QAction) (QAction, bool) {
	if len(available) == 0 {
		return QAction{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stateKey := state.Key()
	action := s.policy.Select(s.rng, s.table, stateKey, available, s.epsilon)
	s.table.Visit(stateKey, action.Key())
	s.decayExplorationLocked()
	return action, true
}

// DecayExploration multiplies epsilon by the configured decay factor,
// floored at the minimum. SelectAction calls this implicitly.
func (s *Selector) DecayExploration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decayExplorationLocked()
}

func (s *Selector) decayExplorationLocked() {
	s.epsilon *= s.cfg.EpsilonDecay
	if s.epsilon < s.cfg.MinEpsilon {
		s.epsilon = s.cfg.MinEpsilon
	}
}

// Epsilon returns the current exploration rate.
func (s *Selector) Epsilon() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epsilon
}

// Update applies the one-step Q-learning rule
//
//	Q[s][a] += alpha * (r + gamma*max_a' Q[s'][a']*(1-terminal) - Q[s][a])
//
// appends the experience to the replay buffer, and every ReplayFrequency
// updates wakes the replay worker.
func (s *Selector) Update(state QState, action QAction, reward float64, nextState QState, terminal bool) {
	s.mu.Lock()

	exp := Experience{
		StateKey:     state.Key(),
		Action:       action,
		Reward:       reward,
		NextStateKey: nextState.Key(),
		Terminal:     terminal,
	}
	s.applyUpdateLocked(exp, s.cfg.Alpha)
	s.buffer.Append(exp)
	s.updates++
	shouldReplay := s.cfg.ReplayFrequency > 0 && s.updates%int64(s.cfg.ReplayFrequency) == 0

	s.mu.Unlock()

	if shouldReplay {
		select {
		case s.replayCh <- struct{}{}:
		default: // a replay is already pending
		}
	}
}

// applyUpdateLocked runs the update rule at the given learning rate.
// Caller holds the lock.
func (s *Selector) applyUpdateLocked(exp Experience, alpha float64) {
	current := s.table.Get(exp.StateKey, exp.Action.Key())

	future := 0.0
	if !exp.Terminal {
		future = s.cfg.Gamma * s.table.MaxValue(exp.NextStateKey, s.catalog)
	}

	updated := current + alpha*(exp.Reward+future-current)
	s.table.Set(exp.StateKey, exp.Action.Key(), updated)
}

// replayWorker re-applies sampled experiences at half the learning rate to
// smooth noisy single-sample updates.
func (s *Selector) replayWorker() {
	defer close(s.done)
	for {
		select {
		case <-s.replayCh:
			s.replayBatch()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Selector) replayBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.buffer.Sample(s.rng, s.cfg.ReplayBatchSize)
	for _, exp := range batch {
		s.applyUpdateLocked(exp, s.cfg.Alpha/2)
	}
	if len(batch) > 0 {
		s.log.Debug("replayed %d experiences", len(batch))
	}
}

// Recommend returns the top-k available actions for the state by current
// Q-value. Read-only; never blocks on training beyond the shared lock.
func (s *Selector) Recommend(state QState, topK int, available []QAction) []ScoredAction {
	if topK <= 0 || len(available) == 0 {
		return nil
	}

	s.mu.Lock()
	stateKey := state.Key()
	scored := make([]ScoredAction, 0, len(available))
	for _, a := range available {
		scored = append(scored, ScoredAction{
			Action: a,
			Value:  s.table.Get(stateKey, a.Key()),
			Visits: s.table.Visits(stateKey, a.Key()),
		})
	}
	s.mu.Unlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Value > scored[j].Value
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Snapshot captures the learning state for checkpointing.
func (s *Selector) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.table.snapshot()
	snap.Epsilon = s.epsilon
	snap.UpdateCount = s.updates
	return snap
}

// Restore replaces the learning state from a checkpoint. Used at startup to
// resume learning across restarts.
func (s *Selector) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table.restore(snap)
	if snap.Epsilon > 0 {
		s.epsilon = snap.Epsilon
	}
	s.updates = snap.UpdateCount
	s.log.Info("restored learning state: %d states, %d updates, epsilon=%.3f",
		s.table.States(), s.updates, s.epsilon)
}

// Stats summarizes the selector for observability endpoints.
func (s *Selector) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"policy":        s.policy.Name(),
		"epsilon":       s.epsilon,
		"states":        s.table.States(),
		"updates":       s.updates,
		"replay_buffer": s.buffer.Len(),
	}
}
