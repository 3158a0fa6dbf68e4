package types

import "time"

// BackendKind identifies the class of a processing backend.
type BackendKind string

const (
	KindEmbedded BackendKind = "embedded" // in-process rule-based responder
	KindLocal    BackendKind = "local"    // locally hosted inference process
	KindExternal BackendKind = "external" // externally hosted API
	KindHybrid   BackendKind = "hybrid"   // local/external combination
)

// BackendDescriptor is the static configuration entry for one backend.
// Built once at startup from configuration and read-only thereafter.
type BackendDescriptor struct {
	ID               string        `json:"id"`
	Kind             BackendKind   `json:"kind"`
	Endpoint         string        `json:"endpoint,omitempty"`
	CostPerCall      float64       `json:"cost_per_call"`
	MaxResponseTime  time.Duration `json:"max_response_time"`
	FailureThreshold int           `json:"failure_threshold"`
	CoolDown         time.Duration `json:"cool_down"`
	Capabilities     []string      `json:"capabilities,omitempty"`
}

// HasCapability reports whether the descriptor declares the given tag.
func (d BackendDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Offline reports whether calls to this backend stay on the host.
func (d BackendDescriptor) Offline() bool {
	return d.Kind == KindEmbedded || d.Kind == KindLocal
}

// GenerateResult is the payload a backend returns for one request.
type GenerateResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // declared by the backend, in [0,1]
}

// Outcome records how one backend attempt went. It feeds health bookkeeping
// and reward shaping.
type Outcome struct {
	BackendID  string        `json:"backend_id"`
	Success    bool          `json:"success"`
	TimedOut   bool          `json:"timed_out"`
	Latency    time.Duration `json:"latency"`
	Confidence float64       `json:"confidence"`
	Cost       float64       `json:"cost"`
}
