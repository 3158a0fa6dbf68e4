package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus instruments for the routing core. All
// instruments are registered on the registry passed to NewCollector, so
// embedders can isolate them or merge them into an existing registry.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	fallbacksTotal  prometheus.Counter
	emergencyTotal  prometheus.Counter
	attemptsTotal   *prometheus.CounterVec
	routeLatency    prometheus.Histogram
	backendLatency  *prometheus.HistogramVec
	circuitOpens    *prometheus.CounterVec
	epsilon         prometheus.Gauge
	qTableStates    prometheus.Gauge
	rewardHistogram prometheus.Histogram
}

// NewCollector creates and registers all instruments. Pass nil to get a
// collector on a fresh private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftroute",
			Name:      "requests_total",
			Help:      "Routed requests by outcome and complexity level.",
		}, []string{"outcome", "complexity"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "driftroute",
			Name:      "fallbacks_total",
			Help:      "Requests that were not served by the first candidate.",
		}),
		emergencyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "driftroute",
			Name:      "emergency_responses_total",
			Help:      "Requests answered by the synthesized emergency response.",
		}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftroute",
			Name:      "backend_attempts_total",
			Help:      "Backend attempts by backend id and result.",
		}, []string{"backend", "result"}),
		routeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "driftroute",
			Name:      "route_duration_seconds",
			Help:      "End-to-end latency of Route calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
		}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "driftroute",
			Name:      "backend_duration_seconds",
			Help:      "Latency of individual backend attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
		}, []string{"backend"}),
		circuitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftroute",
			Name:      "circuit_opens_total",
			Help:      "Circuit breaker open transitions by backend id.",
		}, []string{"backend"}),
		epsilon: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "driftroute",
			Name:      "exploration_epsilon",
			Help:      "Current exploration rate of the strategy selector.",
		}),
		qTableStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "driftroute",
			Name:      "qtable_states",
			Help:      "Number of distinct states in the Q-table.",
		}),
		rewardHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "driftroute",
			Name:      "reward",
			Help:      "Shaped rewards fed to the learner.",
			Buckets:   prometheus.LinearBuckets(-1, 0.25, 9),
		}),
	}

	reg.MustRegister(
		c.requestsTotal,
		c.fallbacksTotal,
		c.emergencyTotal,
		c.attemptsTotal,
		c.routeLatency,
		c.backendLatency,
		c.circuitOpens,
		c.epsilon,
		c.qTableStates,
		c.rewardHistogram,
	)
	return c
}

// Registry exposes the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRoute records one completed Route call.
func (c *Collector) ObserveRoute(outcome, complexity string, elapsed time.Duration, fallback, emergency bool) {
	c.requestsTotal.WithLabelValues(outcome, complexity).Inc()
	c.routeLatency.Observe(elapsed.Seconds())
	if fallback {
		c.fallbacksTotal.Inc()
	}
	if emergency {
		c.emergencyTotal.Inc()
	}
}

// ObserveAttempt records one backend attempt.
func (c *Collector) ObserveAttempt(backendID, result string, latency time.Duration) {
	c.attemptsTotal.WithLabelValues(backendID, result).Inc()
	c.backendLatency.WithLabelValues(backendID).Observe(latency.Seconds())
}

// CircuitOpened records a breaker opening for the given backend.
func (c *Collector) CircuitOpened(backendID string) {
	c.circuitOpens.WithLabelValues(backendID).Inc()
}

// SetLearnerStats updates the learner gauges.
func (c *Collector) SetLearnerStats(epsilon float64, states int) {
	c.epsilon.Set(epsilon)
	c.qTableStates.Set(float64(states))
}

// ObserveReward records one shaped reward.
func (c *Collector) ObserveReward(reward float64) {
	c.rewardHistogram.Observe(reward)
}
