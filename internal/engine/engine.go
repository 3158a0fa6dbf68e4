package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/driftroute/internal/backend"
	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/internal/health"
	"github.com/driftlabs/driftroute/internal/metrics"
	"github.com/driftlabs/driftroute/internal/profiler"
	"github.com/driftlabs/driftroute/internal/store"
	"github.com/driftlabs/driftroute/internal/strategy"
	"github.com/driftlabs/driftroute/pkg/types"
	"github.com/driftlabs/driftroute/pkg/utils"
)

// EmergencyBackendID marks decisions answered by the synthesized emergency
// response rather than any registered backend.
const EmergencyBackendID = "emergency"

const emergencyResponse = "I'm having trouble reaching my usual resources right now. " +
	"Please try again in a moment."

// recentWindow is the number of most recent outcomes folded into the
// recent-success state bucket.
const recentWindow = 64

// ResponseCache caches responses for cheap, repeatable prompts. A nil cache
// disables caching.
type ResponseCache interface {
	Get(ctx context.Context, text string) (types.GenerateResult, bool)
	Set(ctx context.Context, text string, result types.GenerateResult)
}

// Engine ties the profiler, learner, health monitor and fallback chain into
// the single Route entry point. One Engine serves concurrent callers.
type Engine struct {
	cfg       *config.Config
	registry  *backend.Registry
	profiler  *profiler.Profiler
	monitor   *health.Monitor
	selector  *strategy.Selector
	shaper    *strategy.RewardShaper
	chain     *Chain
	store     store.Store
	cache     ResponseCache
	collector *metrics.Collector
	log       *utils.Logger

	mu          sync.Mutex
	recent      []bool // ring of recent attempt successes
	recentNext  int
	recentFull  bool
	total       int64
	successes   int64
	fallbacks   int64
	emergencies int64
	cacheHits   int64
	perBackend  map[string]int64
	startedAt   time.Time

	stopCh  chan struct{}
	done    chan struct{}
	started bool
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	TotalRequests int64                    `json:"total_requests"`
	Successes     int64                    `json:"successes"`
	Fallbacks     int64                    `json:"fallbacks"`
	Emergencies   int64                    `json:"emergencies"`
	CacheHits     int64                    `json:"cache_hits"`
	PerBackend    map[string]int64         `json:"per_backend"`
	Uptime        time.Duration            `json:"uptime"`
	Learner       map[string]any           `json:"learner"`
	Health        map[string]health.Record `json:"health"`
}

// New assembles an engine from validated configuration and an already-built
// registry. The store may be nil to run without checkpoints; the cache may
// be nil to run without response caching.
func New(cfg *config.Config, registry *backend.Registry, st store.Store, cache ResponseCache, collector *metrics.Collector, log *utils.Logger) (*Engine, error) {
	if log == nil {
		log = utils.NewLogger()
	}
	if collector == nil {
		collector = metrics.NewCollector(nil)
	}

	probe := func(ctx context.Context, desc types.BackendDescriptor) error {
		b, ok := registry.Get(desc.ID)
		if !ok {
			return ErrBackendUnavailable
		}
		return b.Ping(ctx)
	}

	monitor := health.NewMonitor(registry.Descriptors(), health.Config{
		ProbeTimeout:    cfg.Routing.ProbeTimeout.Std(),
		FreshnessWindow: cfg.Routing.FreshnessWindow.Std(),
		CheckInterval:   cfg.Routing.HealthCheckInterval.Std(),
		SoftErrorRate:   cfg.Routing.SoftErrorRate,
		LatencyAlpha:    cfg.Routing.LatencyAlpha,
		ErrorAlpha:      cfg.Routing.ErrorAlpha,
	}, probe, log)

	selector := strategy.NewSelector(cfg.Learning, strategy.BuildCatalog(registry.Kinds()), log)

	e := &Engine{
		cfg:        cfg,
		registry:   registry,
		profiler:   profiler.New(cfg.Profiler),
		monitor:    monitor,
		selector:   selector,
		shaper:     strategy.NewRewardShaper(cfg.Reward),
		store:      st,
		cache:      cache,
		collector:  collector,
		log:        log,
		recent:     make([]bool, recentWindow),
		perBackend: make(map[string]int64),
		startedAt:  time.Now(),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	e.chain = NewChain(registry, monitor, collector, log)

	if st != nil {
		snap, found, err := st.LoadSnapshot()
		if err != nil {
			return nil, err
		}
		if found {
			selector.Restore(snap)
		}
	}

	return e, nil
}

// Start launches periodic health probing and the checkpoint loop. Routing
// works without it; Start only adds background maintenance.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.monitor.Start()
	go e.checkpointLoop()
}

// Route profiles the request, picks an action, walks the fallback chain,
// learns from the outcome and returns a fully-populated decision. It never
// returns an error for backend trouble; the emergency response covers that.
// Only a nil-text panic-level misuse of the API would surface an error.
func (e *Engine) Route(ctx context.Context, req types.Request) (*types.RoutingDecision, error) {
	start := time.Now()

	decision := &types.RoutingDecision{
		ID:        uuid.New().String(),
		Timestamp: start,
	}

	deadline := req.Deadline()
	if deadline <= 0 {
		deadline = e.cfg.Routing.DefaultDeadline.Std()
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if ceiling := req.CostCeiling(); ceiling > 0 {
		ctx = backend.WithCostCeiling(ctx, ceiling)
	}

	// Stage 1: profile.
	profileStart := time.Now()
	profile := e.profiler.Profile(req)
	decision.Complexity = profile.Level
	decision.Category = profile.Category
	decision.AddTiming("profile", time.Since(profileStart))
	decision.AddReason("profiled as %s/%s (score %.2f, urgent=%t)",
		profile.Category, profile.Level, profile.Score, profile.Urgent)

	// Stage 2: cache lookup for cheap, repeatable prompts.
	if e.cache != nil && (profile.Level == types.ComplexityTrivial || profile.Level == types.ComplexitySimple) {
		if cached, ok := e.cache.Get(ctx, req.Text); ok {
			decision.BackendID = "cache"
			decision.Response = cached.Text
			decision.Confidence = cached.Confidence
			decision.Elapsed = time.Since(start)
			decision.AddReason("served from response cache")
			e.recordRoute(decision, true, false, false, true)
			return decision, nil
		}
	}

	// Stage 3: select an action.
	selectStart := time.Now()
	state := e.currentState(profile, req)
	available := e.availableActions(req)
	action, actionOK := e.selector.SelectAction(state, available)
	decision.AddTiming("select", time.Since(selectStart))
	if actionOK {
		decision.AddReason("action: prefer %s backends, strategy %s/%s (epsilon %.3f)",
			action.BackendKind, action.Strategy, action.Intensity, e.selector.Epsilon())
	} else {
		decision.AddReason("no learnable action available, using static priorities")
	}

	// Stage 4: execute the fallback chain.
	candidates := e.buildCandidates(req, profile, state, available, action, actionOK)
	decision.AddReason("candidate order: %v", candidates)

	execStart := time.Now()
	result, outcomes, err := e.chain.Execute(ctx, candidates, req.Text, decision)
	decision.AddTiming("execute", time.Since(execStart))

	// Stage 5: learn.
	if actionOK {
		learnStart := time.Now()
		reward := e.shapeReward(outcomes, err)
		nextState := e.nextState(profile, req, outcomes)
		e.selector.Update(state, action, reward, nextState, false)
		e.collector.ObserveReward(reward)
		decision.AddTiming("learn", time.Since(learnStart))
		decision.AddReason("reward %.3f applied", reward)
	}

	e.noteOutcomes(outcomes)

	decision.Elapsed = time.Since(start)
	decision.FallbackUsed = len(outcomes) > 1 || err != nil

	if err != nil {
		decision.BackendID = EmergencyBackendID
		decision.Response = emergencyResponse
		decision.Confidence = 0.1
		if errors.Is(err, ErrDeadlineExceeded) {
			decision.AddReason("deadline exhausted, emergency response")
		} else {
			decision.AddReason("all candidates failed, emergency response")
		}
		e.recordRoute(decision, false, true, true, false)
		return decision, nil
	}

	serving := outcomes[len(outcomes)-1]
	decision.BackendID = serving.BackendID
	decision.Response = result.Text
	decision.Confidence = result.Confidence
	decision.EstimatedCost = serving.Cost

	if e.cache != nil && (profile.Level == types.ComplexityTrivial || profile.Level == types.ComplexitySimple) {
		e.cache.Set(ctx, req.Text, result)
	}

	e.recordRoute(decision, true, decision.FallbackUsed, false, false)
	return decision, nil
}

// currentState discretizes the situation the decision is made in.
func (e *Engine) currentState(profile types.ComplexityProfile, req types.Request) strategy.QState {
	return strategy.QState{
		Category:      profile.Category,
		Complexity:    profile.Level,
		Urgency:       strategy.UrgencyBucket(profile.Urgent),
		RecentSuccess: strategy.SuccessBucket(e.recentSuccessRatio()),
		Load:          e.monitor.LoadBucket(),
	}
}

// nextState is the state after the chain ran, with the fresh outcomes
// already reflected in the success and load buckets.
func (e *Engine) nextState(profile types.ComplexityProfile, req types.Request, outcomes []types.Outcome) strategy.QState {
	ratio := e.recentSuccessRatio()
	if n := len(outcomes); n > 0 {
		succeeded := 0.0
		if outcomes[n-1].Success {
			succeeded = 1
		}
		ratio = (ratio*float64(recentWindow) + succeeded) / float64(recentWindow+1)
	}
	return strategy.QState{
		Category:      profile.Category,
		Complexity:    profile.Level,
		Urgency:       strategy.UrgencyBucket(profile.Urgent),
		RecentSuccess: strategy.SuccessBucket(ratio),
		Load:          e.monitor.LoadBucket(),
	}
}

// availableActions restricts the catalog to kinds the request may use.
func (e *Engine) availableActions(req types.Request) []strategy.QAction {
	allowed := make(map[types.BackendKind]bool)
	for _, kind := range e.registry.Kinds() {
		if req.OfflineOnly() && kind != types.KindEmbedded && kind != types.KindLocal {
			continue
		}
		allowed[kind] = true
	}
	return strategy.FilterByKinds(e.selector.Catalog(), allowed)
}

// shapeReward derives the learning signal from the chain's attempts. The
// first attempt is the action's direct consequence; with no attempts at all
// the action earns the failure penalty.
func (e *Engine) shapeReward(outcomes []types.Outcome, err error) float64 {
	if len(outcomes) == 0 {
		return e.shaper.Shape(types.Outcome{Success: false})
	}
	return e.shaper.Shape(outcomes[0])
}

// buildCandidates produces the ordered fallback chain for one request: the
// selected action's kind first, then the learner's top-k kinds for the state,
// then static per-category priorities, then every remaining backend, with the
// embedded responder always last.
func (e *Engine) buildCandidates(req types.Request, profile types.ComplexityProfile, state strategy.QState, available []strategy.QAction, action strategy.QAction, actionOK bool) []string {
	embeddedID := e.cfg.Routing.EmbeddedBackendID
	ceiling := req.CostCeiling()

	var ordered []string
	if actionOK {
		ordered = append(ordered, e.registry.ByKind(action.BackendKind)...)
		for _, ranked := range e.selector.Recommend(state, e.cfg.Routing.RecommendTopK, available) {
			ordered = append(ordered, e.registry.ByKind(ranked.Action.BackendKind)...)
		}
	}
	ordered = append(ordered, e.cfg.Routing.StaticPriorities[string(profile.Category)]...)
	ordered = append(ordered, e.registry.IDs()...)

	switch req.QualityPreference() {
	case "fast":
		ordered = partitionBy(ordered, func(id string) bool {
			desc, ok := e.descriptor(id)
			return ok && desc.Offline()
		})
	case "best":
		ordered = partitionBy(ordered, func(id string) bool {
			desc, ok := e.descriptor(id)
			return ok && desc.Kind == types.KindExternal
		})
	}

	seen := make(map[string]bool, len(ordered))
	candidates := make([]string, 0, len(ordered))
	for _, id := range ordered {
		if seen[id] || id == embeddedID {
			continue
		}
		desc, ok := e.descriptor(id)
		if !ok {
			continue
		}
		if req.OfflineOnly() && !desc.Offline() {
			continue
		}
		if ceiling > 0 && desc.CostPerCall > ceiling {
			continue
		}
		seen[id] = true
		candidates = append(candidates, id)
	}

	// Trivial requests go straight to the embedded responder; it answers
	// greetings and small talk well enough and costs nothing.
	if profile.Level == types.ComplexityTrivial {
		return append([]string{embeddedID}, candidates...)
	}

	// The embedded responder closes every chain: free, offline, unbreakable.
	return append(candidates, embeddedID)
}

func (e *Engine) descriptor(id string) (types.BackendDescriptor, bool) {
	b, ok := e.registry.Get(id)
	if !ok {
		return types.BackendDescriptor{}, false
	}
	return b.Descriptor(), true
}

// partitionBy stably moves matching ids ahead of the rest.
func partitionBy(ids []string, match func(string) bool) []string {
	out := make([]string, 0, len(ids))
	var rest []string
	for _, id := range ids {
		if match(id) {
			out = append(out, id)
		} else {
			rest = append(rest, id)
		}
	}
	return append(out, rest...)
}

func (e *Engine) recentSuccessRatio() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.recentNext
	if e.recentFull {
		n = len(e.recent)
	}
	if n == 0 {
		return 1 // optimistic start
	}
	succeeded := 0
	for i := 0; i < n; i++ {
		if e.recent[i] {
			succeeded++
		}
	}
	return float64(succeeded) / float64(n)
}

func (e *Engine) noteOutcomes(outcomes []types.Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, o := range outcomes {
		e.recent[e.recentNext] = o.Success
		e.recentNext++
		if e.recentNext == len(e.recent) {
			e.recentNext = 0
			e.recentFull = true
		}
	}
}

func (e *Engine) recordRoute(decision *types.RoutingDecision, success, fallback, emergency, cacheHit bool) {
	e.mu.Lock()
	e.total++
	if success {
		e.successes++
	}
	if fallback {
		e.fallbacks++
	}
	if emergency {
		e.emergencies++
	}
	if cacheHit {
		e.cacheHits++
	}
	e.perBackend[decision.BackendID]++
	e.mu.Unlock()

	outcome := "success"
	if emergency {
		outcome = "emergency"
	}
	e.collector.ObserveRoute(outcome, string(decision.Complexity), decision.Elapsed, fallback, emergency)

	learner := e.selector.Stats()
	epsilon, _ := learner["epsilon"].(float64)
	states, _ := learner["states"].(int)
	e.collector.SetLearnerStats(epsilon, states)

	e.log.Debug("routed %s via %s in %s (fallback=%t)",
		decision.ID, decision.BackendID, decision.Elapsed.Round(time.Millisecond), fallback)
}

// Stats returns the aggregate routing statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	perBackend := make(map[string]int64, len(e.perBackend))
	for k, v := range e.perBackend {
		perBackend[k] = v
	}
	s := Stats{
		TotalRequests: e.total,
		Successes:     e.successes,
		Fallbacks:     e.fallbacks,
		Emergencies:   e.emergencies,
		CacheHits:     e.cacheHits,
		PerBackend:    perBackend,
		Uptime:        time.Since(e.startedAt),
	}
	e.mu.Unlock()

	s.Learner = e.selector.Stats()
	s.Health = e.monitor.Snapshot()
	return s
}

// Monitor exposes the health monitor for the backends endpoint.
func (e *Engine) Monitor() *health.Monitor {
	return e.monitor
}

// Selector exposes the learner, mainly for recommendation queries.
func (e *Engine) Selector() *strategy.Selector {
	return e.selector
}

// Checkpoint persists the current learning state.
func (e *Engine) Checkpoint() error {
	if e.store == nil {
		return nil
	}
	return e.store.SaveSnapshot(e.selector.Snapshot())
}

func (e *Engine) checkpointLoop() {
	defer close(e.done)

	interval := e.cfg.Checkpoint.Interval.Std()
	if e.store == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Checkpoint(); err != nil {
				e.log.Error("checkpoint failed: %v", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

// Shutdown stops background work, writes a final checkpoint and releases
// the learner and store.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	started := e.started
	e.started = false
	e.mu.Unlock()

	if started {
		close(e.stopCh)
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.monitor.Stop()

	var err error
	if e.store != nil {
		if saveErr := e.Checkpoint(); saveErr != nil {
			err = saveErr
		}
	}
	e.selector.Close()
	if e.store != nil {
		if closeErr := e.store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
