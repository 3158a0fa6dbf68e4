package health

import (
	"context"
	"sync"
	"time"

	"github.com/driftlabs/driftroute/pkg/types"
	"github.com/driftlabs/driftroute/pkg/utils"
)

// State is the health state of one backend.
type State string

const (
	StateUnknown     State = "unknown"
	StateHealthy     State = "healthy"
	StateDegraded    State = "degraded"
	StateCircuitOpen State = "circuit-open"
)

// ProbeFunc actively checks one backend. It must respect the context
// deadline; a nil error means the backend answered.
type ProbeFunc func(ctx context.Context, backend types.BackendDescriptor) error

// Record is the mutable health bookkeeping for one backend. It is owned by
// the Monitor and only ever mutated under its lock.
type Record struct {
	BackendID           string        `json:"backend_id"`
	State               State         `json:"state"`
	Available           bool          `json:"available"`
	AvgLatency          time.Duration `json:"avg_latency"`
	ErrorRate           float64       `json:"error_rate"` // EMA in [0,1]
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastCheckedAt       time.Time     `json:"last_checked_at"`
	TotalOutcomes       int64         `json:"total_outcomes"`

	openedAt         time.Time
	halfOpenInFlight bool
	halfOpenSince    time.Time
}

// Config tunes the monitor.
type Config struct {
	ProbeTimeout    time.Duration // bound on a single active probe
	FreshnessWindow time.Duration // cached verdict lifetime for IsAvailable
	CheckInterval   time.Duration // periodic probe cadence when started
	SoftErrorRate   float64       // Healthy -> Degraded boundary
	LatencyAlpha    float64       // EMA factor for latency
	ErrorAlpha      float64       // EMA factor for error rate
}

// Monitor tracks availability, rolling latency, rolling error rate, and
// circuit state per registered backend. Passive monitoring comes from
// RecordOutcome on every call; active probes run on demand (stale verdicts)
// and optionally on a timer.
type Monitor struct {
	cfg      Config
	backends map[string]types.BackendDescriptor
	records  map[string]*Record
	probe    ProbeFunc
	log      *utils.Logger

	mu       sync.Mutex
	now      func() time.Time
	stopChan chan struct{}
	running  bool
}

// NewMonitor creates a monitor for the given registry. The probe may be nil,
// in which case backends are considered reachable until outcomes say
// otherwise.
func NewMonitor(backends []types.BackendDescriptor, cfg Config, probe ProbeFunc, log *utils.Logger) *Monitor {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.FreshnessWindow == 0 {
		cfg.FreshnessWindow = 5 * time.Minute
	}
	if cfg.SoftErrorRate == 0 {
		cfg.SoftErrorRate = 0.3
	}
	if cfg.LatencyAlpha == 0 {
		cfg.LatencyAlpha = 0.2
	}
	if cfg.ErrorAlpha == 0 {
		cfg.ErrorAlpha = 0.1
	}
	if log == nil {
		log = utils.NewLogger()
	}

	m := &Monitor{
		cfg:      cfg,
		backends: make(map[string]types.BackendDescriptor, len(backends)),
		records:  make(map[string]*Record, len(backends)),
		probe:    probe,
		log:      log,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, b := range backends {
		m.backends[b.ID] = b
		m.records[b.ID] = &Record{BackendID: b.ID, State: StateUnknown, Available: true}
	}
	return m
}

// Start begins periodic active probing. Optional; passive monitoring works
// without it.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running || m.cfg.CheckInterval == 0 || m.probe == nil {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.log.Info("health monitor started (interval: %v)", m.cfg.CheckInterval)
	go m.periodicProbe()
}

// Stop halts periodic probing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stopChan)
	m.running = false
	m.log.Info("health monitor stopped")
}

func (m *Monitor) periodicProbe() {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for id := range m.backends {
				go m.probeBackend(context.Background(), id)
			}
		case <-m.stopChan:
			return
		}
	}
}

// IsAvailable returns the cached availability verdict when it is fresh;
// otherwise it runs a bounded active probe and reports the updated verdict.
func (m *Monitor) IsAvailable(ctx context.Context, backendID string) bool {
	m.mu.Lock()
	rec, ok := m.records[backendID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	fresh := !rec.LastCheckedAt.IsZero() && m.now().Sub(rec.LastCheckedAt) < m.cfg.FreshnessWindow
	available := rec.Available
	m.mu.Unlock()

	if fresh || m.probe == nil {
		return available
	}
	return m.probeBackend(ctx, backendID)
}

// probeBackend runs one active probe outside the lock and folds the result
// into the record.
func (m *Monitor) probeBackend(ctx context.Context, backendID string) bool {
	m.mu.Lock()
	backend, ok := m.backends[backendID]
	m.mu.Unlock()
	if !ok || m.probe == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := m.now()
	err := m.probe(probeCtx, backend)
	m.RecordOutcome(backendID, m.now().Sub(start), err == nil)

	if err != nil {
		m.log.Debug("health probe failed for %s: %v", backendID, err)
	}
	return err == nil
}

// RecordOutcome folds one call (or probe) result into the backend's record:
// exponential decay on error rate and latency, consecutive-failure counting,
// and the state machine transitions.
func (m *Monitor) RecordOutcome(backendID string, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[backendID]
	if !ok {
		return
	}
	backend := m.backends[backendID]

	rec.LastCheckedAt = m.now()
	rec.TotalOutcomes++

	// errorRate = errorRate*(1-a) + observation*a
	observation := 0.0
	if !success {
		observation = 1.0
	}
	rec.ErrorRate = rec.ErrorRate*(1-m.cfg.ErrorAlpha) + observation*m.cfg.ErrorAlpha

	if success {
		if rec.AvgLatency == 0 {
			rec.AvgLatency = latency
		} else {
			a := m.cfg.LatencyAlpha
			rec.AvgLatency = time.Duration(float64(rec.AvgLatency)*(1-a) + float64(latency)*a)
		}
		rec.ConsecutiveFailures = 0
	} else {
		rec.ConsecutiveFailures++
	}

	m.transition(rec, backend, success)
}

// transition applies the Unknown -> Healthy -> Degraded -> CircuitOpen state
// machine. Caller holds the lock.
func (m *Monitor) transition(rec *Record, backend types.BackendDescriptor, success bool) {
	// A threshold of zero or below means the backend is exempt from circuit
	// breaking (the embedded responder).
	breakable := backend.FailureThreshold > 0

	switch rec.State {
	case StateUnknown:
		if success {
			rec.State = StateHealthy
			rec.Available = true
		} else {
			rec.State = StateDegraded
		}

	case StateHealthy:
		if rec.ErrorRate > m.cfg.SoftErrorRate {
			rec.State = StateDegraded
			m.log.Warn("backend %s degraded (error rate %.2f)", rec.BackendID, rec.ErrorRate)
		}

	case StateDegraded:
		if success && rec.ErrorRate <= m.cfg.SoftErrorRate {
			rec.State = StateHealthy
			m.log.Info("backend %s recovered (error rate %.2f)", rec.BackendID, rec.ErrorRate)
		}

	case StateCircuitOpen:
		rec.halfOpenInFlight = false
		if success {
			rec.State = StateHealthy
			rec.Available = true
			rec.ConsecutiveFailures = 0
			m.log.Info("backend %s circuit closed after successful half-open probe", rec.BackendID)
		} else {
			// Failed half-open attempt: stay open for another cool-down.
			rec.openedAt = m.now()
		}
		return
	}

	if breakable && rec.State != StateCircuitOpen && rec.ConsecutiveFailures >= backend.FailureThreshold {
		rec.State = StateCircuitOpen
		rec.Available = false
		rec.openedAt = m.now()
		rec.halfOpenInFlight = false
		m.log.Warn("backend %s circuit opened (%d consecutive failures)", rec.BackendID, rec.ConsecutiveFailures)
	}
}

// IsCircuitOpen reports whether calls to the backend should be skipped.
// Once the cool-down has elapsed, exactly one caller is let through as the
// half-open probe; everyone else keeps seeing an open circuit until that
// attempt's outcome is recorded.
func (m *Monitor) IsCircuitOpen(backendID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[backendID]
	if !ok {
		return true
	}
	if rec.State != StateCircuitOpen {
		return false
	}

	backend := m.backends[backendID]
	coolDown := backend.CoolDown
	if coolDown == 0 {
		coolDown = 30 * time.Second
	}
	if m.now().Sub(rec.openedAt) < coolDown {
		return true
	}
	if rec.halfOpenInFlight {
		// The admitted attempt gets one response budget to report back.
		// Past that it is considered abandoned (deadline expired before
		// the call was made) and the slot is reclaimed, otherwise the
		// backend would stay locked out until restart.
		expiry := backend.MaxResponseTime
		if expiry < m.cfg.ProbeTimeout {
			expiry = m.cfg.ProbeTimeout
		}
		if m.now().Sub(rec.halfOpenSince) < expiry {
			return true
		}
		m.log.Warn("backend %s half-open attempt never reported, reclaiming the slot", backendID)
	}
	rec.halfOpenInFlight = true
	rec.halfOpenSince = m.now()
	m.log.Info("backend %s half-open: allowing a single probe attempt", backendID)
	return false
}

// StateOf returns the current state of the backend.
func (m *Monitor) StateOf(backendID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[backendID]; ok {
		return rec.State
	}
	return StateUnknown
}

// Snapshot returns a copy of every record for observability endpoints.
func (m *Monitor) Snapshot() map[string]Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Record, len(m.records))
	for id, rec := range m.records {
		out[id] = *rec
	}
	return out
}

// ErrorRate returns the rolling error rate for one backend.
func (m *Monitor) ErrorRate(backendID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[backendID]; ok {
		return rec.ErrorRate
	}
	return 0
}

// LoadBucket summarizes overall system health as a coarse bucket ("low",
// "medium", "high") derived from the mean error rate across breakable
// backends. It feeds the Q-state.
func (m *Monitor) LoadBucket() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	total, n := 0.0, 0
	for id, rec := range m.records {
		if m.backends[id].FailureThreshold <= 0 {
			continue
		}
		total += rec.ErrorRate
		if rec.State == StateCircuitOpen {
			total += 1.0
		}
		n++
	}
	if n == 0 {
		return "low"
	}
	switch mean := total / float64(n); {
	case mean < 0.1:
		return "low"
	case mean < 0.4:
		return "medium"
	default:
		return "high"
	}
}
