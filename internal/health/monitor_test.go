package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/driftroute/pkg/types"
)

func testBackends() []types.BackendDescriptor {
	return []types.BackendDescriptor{
		{ID: "embedded", Kind: types.KindEmbedded, FailureThreshold: 0},
		{ID: "local", Kind: types.KindLocal, FailureThreshold: 3, CoolDown: 30 * time.Second},
		{ID: "external", Kind: types.KindExternal, FailureThreshold: 5, CoolDown: time.Minute},
	}
}

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMonitor(probe ProbeFunc) (*Monitor, *fakeClock) {
	clock := newFakeClock()
	m := NewMonitor(testBackends(), Config{
		ProbeTimeout:    2 * time.Second,
		FreshnessWindow: 5 * time.Minute,
		SoftErrorRate:   0.3,
		LatencyAlpha:    0.2,
		ErrorAlpha:      0.5,
	}, probe, nil)
	m.now = clock.Now
	return m, clock
}

func TestRecordOutcome_SuccessResetsConsecutiveFailures(t *testing.T) {
	m, _ := newTestMonitor(nil)

	m.RecordOutcome("local", 100*time.Millisecond, false)
	m.RecordOutcome("local", 100*time.Millisecond, false)
	m.RecordOutcome("local", 80*time.Millisecond, true)

	snap := m.Snapshot()["local"]
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.False(t, m.IsCircuitOpen("local"))
}

func TestRecordOutcome_ErrorRateStaysBounded(t *testing.T) {
	m, _ := newTestMonitor(nil)

	for i := 0; i < 200; i++ {
		m.RecordOutcome("external", 10*time.Millisecond, false)
	}
	rate := m.ErrorRate("external")
	assert.GreaterOrEqual(t, rate, 0.0)
	assert.LessOrEqual(t, rate, 1.0)

	for i := 0; i < 200; i++ {
		m.RecordOutcome("external", 10*time.Millisecond, true)
	}
	rate = m.ErrorRate("external")
	assert.GreaterOrEqual(t, rate, 0.0)
	assert.LessOrEqual(t, rate, 1.0)
}

func TestCircuitOpensAtThresholdAndLatchesUntilCoolDown(t *testing.T) {
	m, clock := newTestMonitor(nil)

	for i := 0; i < 3; i++ {
		m.RecordOutcome("local", time.Second, false)
	}
	require.Equal(t, StateCircuitOpen, m.StateOf("local"))
	assert.True(t, m.IsCircuitOpen("local"))

	// Still open before the cool-down elapses, no matter how often asked.
	clock.Advance(29 * time.Second)
	for i := 0; i < 10; i++ {
		assert.True(t, m.IsCircuitOpen("local"))
	}

	// After the cool-down, exactly one caller gets the half-open slot.
	clock.Advance(2 * time.Second)
	assert.False(t, m.IsCircuitOpen("local"))
	assert.True(t, m.IsCircuitOpen("local"))
	assert.True(t, m.IsCircuitOpen("local"))
}

func TestHalfOpenSuccessClosesCircuit(t *testing.T) {
	m, clock := newTestMonitor(nil)

	for i := 0; i < 3; i++ {
		m.RecordOutcome("local", time.Second, false)
	}
	clock.Advance(31 * time.Second)
	require.False(t, m.IsCircuitOpen("local"))

	m.RecordOutcome("local", 50*time.Millisecond, true)
	assert.Equal(t, StateHealthy, m.StateOf("local"))
	assert.False(t, m.IsCircuitOpen("local"))
}

func TestHalfOpenFailureReopensCircuit(t *testing.T) {
	m, clock := newTestMonitor(nil)

	for i := 0; i < 3; i++ {
		m.RecordOutcome("local", time.Second, false)
	}
	clock.Advance(31 * time.Second)
	require.False(t, m.IsCircuitOpen("local"))

	m.RecordOutcome("local", time.Second, false)
	assert.Equal(t, StateCircuitOpen, m.StateOf("local"))

	// The failed probe restarts the cool-down.
	clock.Advance(29 * time.Second)
	assert.True(t, m.IsCircuitOpen("local"))
	clock.Advance(2 * time.Second)
	assert.False(t, m.IsCircuitOpen("local"))
}

func TestHalfOpenSlotReclaimedWhenAttemptGoesUnreported(t *testing.T) {
	m, clock := newTestMonitor(nil)

	for i := 0; i < 3; i++ {
		m.RecordOutcome("local", time.Second, false)
	}
	clock.Advance(31 * time.Second)

	// One caller takes the half-open slot but never records an outcome,
	// e.g. its deadline expired before the call was made.
	require.False(t, m.IsCircuitOpen("local"))
	assert.True(t, m.IsCircuitOpen("local"))

	// Within the response budget the slot stays held.
	clock.Advance(time.Second)
	assert.True(t, m.IsCircuitOpen("local"))

	// Past the budget the abandoned slot is handed to the next caller, so
	// the backend can still recover.
	clock.Advance(24 * time.Hour)
	assert.False(t, m.IsCircuitOpen("local"))

	m.RecordOutcome("local", 50*time.Millisecond, true)
	assert.Equal(t, StateHealthy, m.StateOf("local"))
	assert.False(t, m.IsCircuitOpen("local"))
}

func TestEmbeddedBackendNeverOpens(t *testing.T) {
	m, _ := newTestMonitor(nil)

	for i := 0; i < 1000; i++ {
		m.RecordOutcome("embedded", time.Millisecond, false)
	}
	assert.False(t, m.IsCircuitOpen("embedded"))
	assert.NotEqual(t, StateCircuitOpen, m.StateOf("embedded"))
}

func TestCircuitLatchingUnderConcurrentCalls(t *testing.T) {
	m, clock := newTestMonitor(nil)

	for i := 0; i < 3; i++ {
		m.RecordOutcome("local", time.Second, false)
	}
	clock.Advance(31 * time.Second)

	// Many goroutines race for the single half-open slot.
	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !m.IsCircuitOpen("local") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), admitted)
}

func TestIsAvailable_UsesFreshVerdictWithoutProbing(t *testing.T) {
	probes := 0
	probe := func(ctx context.Context, b types.BackendDescriptor) error {
		probes++
		return nil
	}
	m, clock := newTestMonitor(probe)

	// A recorded outcome makes the verdict fresh.
	m.RecordOutcome("local", 10*time.Millisecond, true)
	assert.True(t, m.IsAvailable(context.Background(), "local"))
	assert.Equal(t, 0, probes)

	// Once stale, the next check probes.
	clock.Advance(6 * time.Minute)
	assert.True(t, m.IsAvailable(context.Background(), "local"))
	assert.Equal(t, 1, probes)
}

func TestIsAvailable_FailedProbeMarksDegraded(t *testing.T) {
	probe := func(ctx context.Context, b types.BackendDescriptor) error {
		return errors.New("connection refused")
	}
	m, _ := newTestMonitor(probe)

	m.IsAvailable(context.Background(), "local")
	assert.Equal(t, StateDegraded, m.StateOf("local"))
}

func TestIsAvailable_UnknownBackend(t *testing.T) {
	m, _ := newTestMonitor(nil)
	assert.False(t, m.IsAvailable(context.Background(), "no-such-backend"))
	assert.True(t, m.IsCircuitOpen("no-such-backend"))
}

func TestLoadBucket(t *testing.T) {
	m, _ := newTestMonitor(nil)
	assert.Equal(t, "low", m.LoadBucket())

	for i := 0; i < 20; i++ {
		m.RecordOutcome("local", time.Second, false)
		m.RecordOutcome("external", time.Second, false)
	}
	assert.Equal(t, "high", m.LoadBucket())
}
