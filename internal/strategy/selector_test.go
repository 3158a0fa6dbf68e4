package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/pkg/types"
)

func testCatalog() []QAction {
	return BuildCatalog([]types.BackendKind{
		types.KindEmbedded, types.KindLocal, types.KindExternal,
	})
}

func testState() QState {
	return QState{
		Category:      types.CategoryQuestion,
		Complexity:    types.ComplexityModerate,
		Urgency:       "normal",
		RecentSuccess: "medium",
		Load:          "low",
	}
}

func newTestSelector(t *testing.T, mutate func(*config.LearningConfig)) *Selector {
	t.Helper()
	cfg := config.Default().Learning
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewSelector(cfg, testCatalog(), nil)
	s.Seed(1)
	t.Cleanup(s.Close)
	return s
}

func TestBuildCatalog(t *testing.T) {
	catalog := testCatalog()
	// 3 kinds x 4 strategies x 3 intensities
	assert.Len(t, catalog, 36)

	seen := make(map[string]bool)
	for _, a := range catalog {
		assert.False(t, seen[a.Key()], "duplicate action %s", a.Key())
		seen[a.Key()] = true
	}
}

func TestStateKeyIsCanonical(t *testing.T) {
	a := testState()
	b := testState()
	assert.Equal(t, a.Key(), b.Key())

	b.Load = "high"
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestSelectAction_NoAvailableActions(t *testing.T) {
	s := newTestSelector(t, nil)
	_, ok := s.SelectAction(testState(), nil)
	assert.False(t, ok)
}

func TestSelectAction_GreedyPicksHighestValue(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.Epsilon = 0
		c.MinEpsilon = 0
	})
	state := testState()
	best := s.catalog[7]
	s.table.Set(state.Key(), best.Key(), 0.9)

	action, ok := s.SelectAction(state, s.Catalog())
	require.True(t, ok)
	assert.Equal(t, best, action)
}

func TestSelectAction_TieBreaksByVisitCountThenOrder(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.Epsilon = 0
		c.MinEpsilon = 0
	})
	state := testState()
	available := s.Catalog()[:3]

	// All values equal; the first pick visits actions[0], so the second
	// pick must prefer a less-visited action.
	first, _ := s.SelectAction(state, available)
	assert.Equal(t, available[0], first)

	second, _ := s.SelectAction(state, available)
	assert.Equal(t, available[1], second)
}

func TestDecayEpsilonIsFloored(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.Epsilon = 0.5
		c.EpsilonDecay = 0.5
		c.MinEpsilon = 0.1
	})

	for i := 0; i < 20; i++ {
		s.DecayExploration()
	}
	assert.InDelta(t, 0.1, s.Epsilon(), 1e-9)
}

func TestUpdate_ZeroAlphaIsIdempotent(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.Alpha = 0
		c.ReplayFrequency = 0 // no background writes during the assertion
	})
	state := testState()
	next := testState()
	next.RecentSuccess = "high"
	action := s.catalog[0]

	s.table.Set(state.Key(), action.Key(), 0.42)
	for i := 0; i < 100; i++ {
		s.Update(state, action, 1.0, next, false)
	}
	assert.Equal(t, 0.42, s.table.Get(state.Key(), action.Key()))
}

func TestUpdate_QValuesStayBounded(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.Alpha = 0.5
		c.Gamma = 0.9
		c.ReplayFrequency = 0
	})
	state := testState()
	next := testState()
	next.Load = "high"
	bound := 1.0 / (1.0 - 0.9)

	// Alternate extreme rewards across actions and directions.
	for i := 0; i < 5000; i++ {
		action := s.catalog[i%len(s.catalog)]
		reward := 1.0
		if i%2 == 0 {
			reward = -1.0
		}
		s.Update(state, action, reward, next, i%7 == 0)
		s.Update(next, action, -reward, state, false)
	}

	for _, a := range s.catalog {
		for _, key := range []string{state.Key(), next.Key()} {
			v := s.table.Get(key, a.Key())
			assert.LessOrEqual(t, math.Abs(v), bound+1e-9,
				"Q[%s][%s] escaped the bound", key, a.Key())
		}
	}
}

func TestUpdate_TerminalIgnoresFutureValue(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.Alpha = 1.0
		c.ReplayFrequency = 0
	})
	state := testState()
	next := testState()
	next.Load = "high"
	action := s.catalog[0]

	// Give the next state a large value; a terminal update must not see it.
	s.table.Set(next.Key(), s.catalog[1].Key(), 5.0)
	s.Update(state, action, 0.25, next, true)
	assert.InDelta(t, 0.25, s.table.Get(state.Key(), action.Key()), 1e-9)
}

func TestRecommend_SortsByValue(t *testing.T) {
	s := newTestSelector(t, nil)
	state := testState()
	available := s.Catalog()[:4]

	s.table.Set(state.Key(), available[2].Key(), 0.9)
	s.table.Set(state.Key(), available[0].Key(), 0.5)
	s.table.Set(state.Key(), available[3].Key(), -0.2)

	top := s.Recommend(state, 2, available)
	require.Len(t, top, 2)
	assert.Equal(t, available[2], top[0].Action)
	assert.Equal(t, available[0], top[1].Action)
}

func TestLearning_ConvergesToSucceedingBackend(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.Epsilon = 0.2
		c.EpsilonDecay = 0.995
		c.MinEpsilon = 0.02
	})
	state := testState()

	// Restrict to two kinds: local always succeeds (+1), external always
	// fails (-1), for the same state.
	available := FilterByKinds(s.Catalog(), map[types.BackendKind]bool{
		types.KindLocal:    true,
		types.KindExternal: true,
	})

	for i := 0; i < 1000; i++ {
		action, ok := s.SelectAction(state, available)
		require.True(t, ok)
		reward := 1.0
		if action.BackendKind == types.KindExternal {
			reward = -1.0
		}
		s.Update(state, action, reward, state, true)
	}

	top := s.Recommend(state, 1, available)
	require.Len(t, top, 1)
	assert.Equal(t, types.KindLocal, top[0].Action.BackendKind)
	assert.Greater(t, top[0].Value, 0.0)
	assert.LessOrEqual(t, s.Epsilon(), 0.05)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.ReplayFrequency = 0
	})
	state := testState()
	next := testState()
	next.Urgency = "urgent"

	for i := 0; i < 50; i++ {
		action, _ := s.SelectAction(state, s.Catalog())
		s.Update(state, action, 0.5, next, false)
	}
	snap := s.Snapshot()

	restored := newTestSelector(t, func(c *config.LearningConfig) {
		c.ReplayFrequency = 0
	})
	restored.Restore(snap)

	assert.Equal(t, snap.UpdateCount, restored.Snapshot().UpdateCount)
	assert.InDelta(t, snap.Epsilon, restored.Epsilon(), 1e-9)
	for _, a := range s.Catalog() {
		assert.Equal(t,
			s.table.Get(state.Key(), a.Key()),
			restored.table.Get(state.Key(), a.Key()))
	}
}

func TestRewardShaper_Bounds(t *testing.T) {
	shaper := NewRewardShaper(config.Default().Reward)

	outcomes := []types.Outcome{
		{Success: false},
		{Success: true, Latency: 0, Confidence: 1},
		{Success: true, Latency: 60 * 1e9, Confidence: 0},
		{Success: true, Latency: 1e9, Confidence: 0.5},
	}
	for _, o := range outcomes {
		r := shaper.Shape(o)
		assert.GreaterOrEqual(t, r, -1.0)
		assert.LessOrEqual(t, r, 1.0)
	}
}

func TestRewardShaper_Ordering(t *testing.T) {
	shaper := NewRewardShaper(config.Default().Reward)

	fast := shaper.Shape(types.Outcome{Success: true, Latency: 100e6, Confidence: 0.8})
	slow := shaper.Shape(types.Outcome{Success: true, Latency: 10e9, Confidence: 0.8})
	failed := shaper.Shape(types.Outcome{Success: false})

	assert.Greater(t, fast, slow)
	assert.Greater(t, slow, failed)
	assert.Negative(t, failed)
}

func TestReplayBuffer_BoundedFIFO(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.ReplayCapacity = 8
		c.ReplayFrequency = 0
	})
	state := testState()

	for i := 0; i < 100; i++ {
		s.Update(state, s.catalog[0], 0.1, state, true)
	}
	assert.Equal(t, 8, s.buffer.Len())
}

func TestUCBTriesEveryActionOnce(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.ExplorationPolicy = "ucb"
	})
	state := testState()
	available := s.Catalog()[:5]

	picked := make(map[string]int)
	for i := 0; i < 5; i++ {
		action, _ := s.SelectAction(state, available)
		picked[action.Key()]++
	}
	assert.Len(t, picked, 5, "UCB should try each untried action before repeating")
}

func TestSoftmaxPrefersHigherValues(t *testing.T) {
	s := newTestSelector(t, func(c *config.LearningConfig) {
		c.ExplorationPolicy = "softmax"
		c.SoftmaxTau = 0.1
	})
	state := testState()
	available := s.Catalog()[:3]
	s.table.Set(state.Key(), available[1].Key(), 1.0)

	counts := make(map[string]int)
	for i := 0; i < 300; i++ {
		action, _ := s.SelectAction(state, available)
		counts[action.Key()]++
	}
	assert.Greater(t, counts[available[1].Key()], 250)
}

func TestSuccessBucket(t *testing.T) {
	assert.Equal(t, "low", SuccessBucket(0.2))
	assert.Equal(t, "medium", SuccessBucket(0.7))
	assert.Equal(t, "high", SuccessBucket(0.95))
}
